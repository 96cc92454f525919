// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package orchestrator composes classification, handler dispatch, safety
// wrapping, explainability, and auditing into a single request pipeline.
// Every caller-visible outcome is a WrappedResponse; component failures
// become error envelopes, never panics.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/careroute/careroute/internal/audit"
	"github.com/careroute/careroute/internal/classifier"
	"github.com/careroute/careroute/internal/explain"
	"github.com/careroute/careroute/internal/handler"
	"github.com/careroute/careroute/internal/safety"
)

// Options configures the orchestrator.
type Options struct {
	// DefaultDeadline bounds handler dispatch when the caller's context
	// carries no deadline. Defaults to 30 seconds.
	DefaultDeadline time.Duration
}

// Orchestrator is the single entry point for clinical decision-support
// requests.
type Orchestrator struct {
	registry   *handler.Registry
	classifier *classifier.Classifier
	wrapper    *safety.Wrapper
	store      *audit.Store
	deadline   time.Duration

	// locks serializes Process calls per non-reentrant handler instance.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires the pipeline components together.
func New(reg *handler.Registry, cls *classifier.Classifier, wrap *safety.Wrapper, store *audit.Store, opts Options) *Orchestrator {
	deadline := opts.DefaultDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Orchestrator{
		registry:   reg,
		classifier: cls,
		wrapper:    wrap,
		store:      store,
		deadline:   deadline,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Process runs the full pipeline for one request.
func (o *Orchestrator) Process(ctx context.Context, req *handler.Request) *safety.WrappedResponse {
	requestID := uuid.NewString()
	logger := log.WithField("request_id", requestID)

	if req == nil || !validMessage(req) {
		logger.Warn("Rejected request with empty message")
		return o.errorEnvelope("Message cannot be empty", "", "")
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	intent := o.classifier.Classify(req)
	logger.WithFields(log.Fields{
		"handler":    intent.PrimaryHandler,
		"urgency":    intent.Urgency,
		"confidence": intent.Confidence,
	}).Info("Request classified")

	return o.runHandler(ctx, logger, req, intent.PrimaryHandler, intent)
}

// ProcessMulti dispatches one request to several named handlers. Each
// reply is wrapped, explained, and audited independently; one handler
// failing never aborts the others.
func (o *Orchestrator) ProcessMulti(ctx context.Context, req *handler.Request, handlerNames []string) map[string]*safety.WrappedResponse {
	requestID := uuid.NewString()
	logger := log.WithField("request_id", requestID)

	out := make(map[string]*safety.WrappedResponse, len(handlerNames))
	if req == nil || !validMessage(req) {
		for _, name := range handlerNames {
			out[name] = o.errorEnvelope("Message cannot be empty", "", "")
		}
		return out
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	for _, name := range handlerNames {
		out[name] = o.runHandler(ctx, logger.WithField("handler", name), req, name, nil)
	}
	return out
}

// runHandler executes steps 3-9 of the pipeline for one handler name.
// intent is nil on the multi-handler path, which skips classification.
func (o *Orchestrator) runHandler(ctx context.Context, logger *log.Entry, req *handler.Request, handlerName string, intent *classifier.Classification) *safety.WrappedResponse {
	// The only context mutation the pipeline performs: the fallback Q&A
	// handler reads the message from the question field.
	if handlerName == "communication" && req.EnsureContext().Question == "" {
		req.Context.Question = req.Message
	}

	h, ok := o.registry.Get(handlerName)
	if !ok {
		logger.Warnf("Handler %q not registered", handlerName)
		return o.attachIntent(o.errorEnvelope(fmt.Sprintf("Handler '%s' is not available", handlerName), "", ""), intent)
	}
	if !h.Enabled() {
		logger.Warnf("Handler %q is disabled", handlerName)
		return o.attachIntent(o.errorEnvelope(fmt.Sprintf("Handler '%s' is currently disabled", handlerName), "", ""), intent)
	}
	if !h.ValidateRequest(req) {
		return o.attachIntent(o.errorEnvelope("Request rejected by handler validation", "", ""), intent)
	}

	reply, err := o.dispatch(ctx, h, req)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Handler dispatch failed")
		detail := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			detail = "handler did not complete before the request deadline"
		}
		auditID, auditErr := o.store.RecordFailure(ctx, req, handlerName, detail)
		if auditErr != nil {
			logger.WithField("error", auditErr.Error()).Error("Failed to audit handler failure")
		}
		return o.attachIntent(o.errorEnvelope("Handler processing failed", detail, auditID), intent)
	}

	handlerType := handlerName
	wrapped, verdict := o.wrapper.Wrap(reply, handlerType)
	if verdict.Blocked() {
		logger.WithField("violation", verdict.ViolationKind).Warn("Safety wrapper blocked handler output")
		auditID, auditErr := o.store.RecordViolation(ctx, req, verdict.ViolationKind, verdict.Details)
		if auditErr != nil {
			logger.WithField("error", auditErr.Error()).Error("Failed to audit safety violation")
		}
		return o.attachIntent(o.errorEnvelope("Response blocked by safety check", verdict.Details, auditID), intent)
	}

	meta := explain.Generate(reply, handlerType)

	escalation := ""
	if wrapped.Emergency {
		escalation = "emergency_indicators"
	}
	auditID, err := o.store.Record(ctx, req, reply, wrapped, meta, escalation)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Audit write failed")
		return o.attachIntent(o.errorEnvelope("Audit persistence failed", "the interaction could not be durably recorded", ""), intent)
	}

	wrapped.AuditID = auditID
	wrapped.Explainability = &safety.ExplainabilityInfo{
		Score:              meta.ExplainabilityScore,
		ReasoningAvailable: meta.ReasoningSummary != "",
	}
	return o.attachIntent(wrapped, intent)
}

// dispatch runs the handler in its own goroutine and stops waiting when
// the context expires. Non-reentrant handlers are serialized per instance.
func (o *Orchestrator) dispatch(ctx context.Context, h handler.Handler, req *handler.Request) (*handler.Reply, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	if r, ok := h.(handler.Reentrant); !ok || !r.Reentrant() {
		lock := o.handlerLock(h.Name())
		lock.Lock()
		defer lock.Unlock()
	}

	type result struct {
		reply *handler.Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := h.Process(ctx, req)
		if err == nil && reply == nil {
			err = fmt.Errorf("handler %q returned no reply", h.Name())
		}
		done <- result{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		return res.reply, res.err
	case <-ctx.Done():
		// The goroutine is abandoned, not killed; cancellation-aware
		// handlers observe ctx and return.
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) handlerLock(name string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[name] = lock
	}
	return lock
}

// errorEnvelope builds the failure-path WrappedResponse: success=false,
// no handler, no confidence, generic disclaimer, audit id when one exists.
func (o *Orchestrator) errorEnvelope(message, details, auditID string) *safety.WrappedResponse {
	data := map[string]any{"error": message}
	if details != "" {
		data["details"] = details
	}
	return &safety.WrappedResponse{
		Success:    false,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Disclaimer: o.wrapper.GenericDisclaimer(),
		AuditID:    auditID,
	}
}

func (o *Orchestrator) attachIntent(resp *safety.WrappedResponse, intent *classifier.Classification) *safety.WrappedResponse {
	if intent != nil {
		resp.Intent = intent.Map()
	}
	return resp
}

// HealthCheck reports component readiness and handler counts.
func (o *Orchestrator) HealthCheck(ctx context.Context) map[string]any {
	total := o.registry.Len()
	enabled := len(o.registry.ListEnabled())

	auditOK := true
	if _, err := o.store.List(ctx, audit.Filters{Limit: 1}); err != nil {
		auditOK = false
	}

	status := "healthy"
	if !auditOK || enabled == 0 {
		status = "degraded"
	}

	return map[string]any{
		"status":           status,
		"total_handlers":   total,
		"enabled_handlers": enabled,
		"components": map[string]any{
			"classifier":     map[string]any{"ok": true, "rule_version": o.classifier.RuleVersion()},
			"safety_wrapper": map[string]any{"ok": true},
			"audit_store":    map[string]any{"ok": auditOK},
		},
	}
}

// Registry exposes the handler registry for introspection surfaces.
func (o *Orchestrator) Registry() *handler.Registry { return o.registry }

// Classifier exposes the intent classifier for introspection surfaces.
func (o *Orchestrator) Classifier() *classifier.Classifier { return o.classifier }

func validMessage(req *handler.Request) bool {
	return strings.TrimSpace(req.Message) != ""
}
