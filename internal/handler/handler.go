// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package handler defines the contract every specialist handler satisfies and
// the registry the orchestrator dispatches through. Handlers are long-lived,
// registered once at startup, and may be toggled at runtime.
package handler

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

// UserType classifies the requesting user.
type UserType string

const (
	UserPatient   UserType = "patient"
	UserClinician UserType = "clinician"
	UserAdmin     UserType = "admin"
)

// UrgencyLevel is the triage urgency attached to a classification.
type UrgencyLevel string

const (
	UrgencyEmergency UrgencyLevel = "emergency"
	UrgencyUrgent    UrgencyLevel = "urgent"
	UrgencyRoutine   UrgencyLevel = "routine"
	UrgencyNonUrgent UrgencyLevel = "non_urgent"
)

// ConfidenceLevel is the display band derived from a raw confidence score.
type ConfidenceLevel string

const (
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceModerate ConfidenceLevel = "moderate"
	ConfidenceHigh     ConfidenceLevel = "high"
)

// DeriveConfidenceLevel maps a confidence score in [0,1] to its display band.
// The mapping is total and monotonic: [0.80,1.0] high, [0.50,0.80) moderate,
// [0.20,0.50) low, below 0.20 very low.
func DeriveConfidenceLevel(score float64) ConfidenceLevel {
	switch {
	case score >= 0.80:
		return ConfidenceHigh
	case score >= 0.50:
		return ConfidenceModerate
	case score >= 0.20:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// Indicator returns the stable display glyph for a confidence level.
func (l ConfidenceLevel) Indicator() string {
	switch l {
	case ConfidenceHigh:
		return "🟢"
	case ConfidenceModerate:
		return "🟡"
	case ConfidenceLow:
		return "🟠"
	default:
		return "🔴"
	}
}

// Context is the typed envelope of per-request context a caller supplies.
// Known fields are read by the orchestrator and the built-in handlers; any
// handler-specific extension travels in Extra and is passed through opaquely.
type Context struct {
	// Task selects a handler sub-mode (handler-specific).
	Task string `json:"task,omitempty"`

	// UserType is one of patient, clinician, admin.
	UserType UserType `json:"user_type,omitempty"`

	// Question carries the message for Q&A handlers. The orchestrator fills
	// it from the message when routing to the fallback handler.
	Question string `json:"question,omitempty"`

	// Symptoms lists structured symptom strings, if the caller extracted any.
	Symptoms []string `json:"symptoms,omitempty"`

	// Vitals holds structured vital-sign readings keyed by name
	// (temperature, heart_rate, oxygen_saturation, ...).
	Vitals map[string]float64 `json:"vitals,omitempty"`

	// PatientContext carries structured medical background fields.
	PatientContext map[string]any `json:"patient_context,omitempty"`

	// Extra is the escape hatch for handler-specific keys.
	Extra map[string]any `json:"extra,omitempty"`
}

// Map renders the context as a string-keyed mapping, merging Extra with the
// known fields. The audit logger redacts this view before persisting it.
func (c *Context) Map() map[string]any {
	if c == nil {
		return nil
	}
	m := make(map[string]any)
	for k, v := range c.Extra {
		m[k] = v
	}
	if c.Task != "" {
		m["task"] = c.Task
	}
	if c.UserType != "" {
		m["user_type"] = string(c.UserType)
	}
	if c.Question != "" {
		m["question"] = c.Question
	}
	if len(c.Symptoms) > 0 {
		m["symptoms"] = c.Symptoms
	}
	if len(c.Vitals) > 0 {
		vitals := make(map[string]any, len(c.Vitals))
		for k, v := range c.Vitals {
			vitals[k] = v
		}
		m["vitals"] = vitals
	}
	if len(c.PatientContext) > 0 {
		m["patient_context"] = c.PatientContext
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Request is one user query flowing through the pipeline. Requests are
// ephemeral; the orchestrator executes exactly one pipeline per request.
type Request struct {
	UserID      string    `json:"user_id"`
	Message     string    `json:"message"`
	SessionID   string    `json:"session_id,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	Context     *Context  `json:"context,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EnsureContext returns the request context, allocating it on first use so
// handlers can rely on a non-nil envelope.
func (r *Request) EnsureContext() *Context {
	if r.Context == nil {
		r.Context = &Context{}
	}
	return r.Context
}

// Reply is the raw output of a handler before safety wrapping.
type Reply struct {
	HandlerName string `json:"handler_name"`
	Success     bool   `json:"success"`

	// Data is the handler's free-form structured payload.
	Data map[string]any `json:"data"`

	// Confidence is the handler's self-assessed score in [0,1].
	Confidence float64 `json:"confidence"`

	Reasoning string `json:"reasoning,omitempty"`

	// RedFlags are short human-readable warnings. A non-empty list forces
	// the emergency overlay in the safety wrapper.
	RedFlags []string `json:"red_flags,omitempty"`

	RequiresEscalation bool `json:"requires_escalation"`

	// SuggestedHandlers names other handlers the orchestrator may consult.
	SuggestedHandlers []string `json:"suggested_handlers,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ConfidenceLevel returns the display band for the reply's confidence.
func (r *Reply) ConfidenceLevel() ConfidenceLevel {
	return DeriveConfidenceLevel(r.Confidence)
}

// Handler is the contract every specialist handler implements. A handler's
// Process call is treated as non-reentrant unless it also implements
// Reentrant; the orchestrator serializes calls per instance otherwise.
type Handler interface {
	// Name returns the stable lowercase identifier the registry indexes.
	Name() string

	// Description returns the handler's human-readable purpose.
	Description() string

	// Capabilities returns the keywords the classifier and registry index.
	Capabilities() []string

	// ConfidenceThreshold is the minimum confidence at which this handler's
	// outputs should be surfaced.
	ConfidenceThreshold() float64

	Enabled() bool
	SetEnabled(bool)

	// Process executes the handler's specialized task. It may block on I/O;
	// implementations must honor ctx cancellation.
	Process(ctx context.Context, req *Request) (*Reply, error)

	// ValidateRequest reports whether the request is structurally acceptable.
	ValidateRequest(req *Request) bool
}

// Reentrant marks a handler whose Process method is safe for concurrent
// in-flight calls. The orchestrator skips per-instance serialization for it.
type Reentrant interface {
	Reentrant() bool
}

// Base provides the default enablement and validation behavior handlers
// embed. The zero value is enabled.
type Base struct {
	disabled atomic.Bool
}

func (b *Base) Enabled() bool           { return !b.disabled.Load() }
func (b *Base) SetEnabled(enabled bool) { b.disabled.Store(!enabled) }

// ConfidenceThreshold returns the default surfacing threshold; handlers
// override it when they need a stricter bar.
func (b *Base) ConfidenceThreshold() float64 { return 0.20 }

// ValidateRequest accepts any request with a non-empty message.
func (b *Base) ValidateRequest(req *Request) bool {
	return req != nil && strings.TrimSpace(req.Message) != ""
}
