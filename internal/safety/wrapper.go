// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package safety post-processes every handler reply before it leaves the
// system. The wrapper is the sole authority on the disclaimer, the
// emergency flag, and prohibited-content blocking; no handler can bypass
// it. Wrapping is referentially transparent: the same reply wraps to the
// same response, timestamp aside.
package safety

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/careroute/careroute/internal/handler"
)

// Decision is the outcome of the safety checks for one reply.
type Decision string

const (
	DecisionAllow        Decision = "allow"
	DecisionAllowOverlay Decision = "allow_with_overlay"
	DecisionBlock        Decision = "block"
)

// Verdict reports the safety decision. On a block the violation fields name
// the offending check without quoting the handler output.
type Verdict struct {
	Decision      Decision `json:"decision"`
	ViolationKind string   `json:"violation_kind,omitempty"`
	Details       string   `json:"details,omitempty"`
}

// Blocked reports whether the verdict vetoes the reply.
func (v Verdict) Blocked() bool { return v.Decision == DecisionBlock }

// ConfidenceInfo is the leveled confidence block of a wrapped response.
type ConfidenceInfo struct {
	ScorePercent int    `json:"score_percent"`
	Level        string `json:"level"`
	Indicator    string `json:"indicator"`
}

// ExplainabilityInfo summarizes the explainability metadata attached by the
// orchestrator.
type ExplainabilityInfo struct {
	Score              int  `json:"score"`
	ReasoningAvailable bool `json:"reasoning_available"`
}

// CheckInfo records which safety checks ran and their outcomes.
type CheckInfo struct {
	DisclaimerApplied  bool   `json:"disclaimer_applied"`
	ProhibitedLanguage string `json:"prohibited_language"`
	EmergencyOverlay   bool   `json:"emergency_overlay"`
	HandlerType        string `json:"handler_type"`
}

// WrappedResponse is the envelope returned to callers and summarized into
// the audit trail. Field names are part of the observable contract.
type WrappedResponse struct {
	Success        bool                `json:"success"`
	Handler        string              `json:"handler,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	Confidence     *ConfidenceInfo     `json:"confidence"`
	Data           map[string]any      `json:"data"`
	Reasoning      string              `json:"reasoning,omitempty"`
	Disclaimer     string              `json:"disclaimer"`
	AuditID        string              `json:"audit_id,omitempty"`
	Emergency      bool                `json:"emergency"`
	EmergencyAlert string              `json:"emergency_alert,omitempty"`
	Intent         map[string]any      `json:"intent,omitempty"`
	SafetyCheck    *CheckInfo          `json:"safety_check,omitempty"`
	Explainability *ExplainabilityInfo `json:"explainability,omitempty"`
}

// Options configures a Wrapper.
type Options struct {
	// DisclaimersPath overrides the embedded disclaimer table.
	DisclaimersPath string

	// ProhibitedPhrasesPath overrides the embedded phrase list.
	ProhibitedPhrasesPath string
}

// Wrapper applies the safety pipeline to handler replies.
type Wrapper struct {
	tables *tables
}

// New loads the disclaimer and phrase tables and returns a ready wrapper.
func New(opts Options) (*Wrapper, error) {
	t, err := loadTables(opts.DisclaimersPath, opts.ProhibitedPhrasesPath)
	if err != nil {
		return nil, fmt.Errorf("safety: %w", err)
	}
	return &Wrapper{tables: t}, nil
}

// GenericDisclaimer returns the fallback disclaimer used in error envelopes.
func (w *Wrapper) GenericDisclaimer() string {
	return w.tables.disclaimerFor("general")
}

// DisclaimerFor returns the disclaimer for a handler type.
func (w *Wrapper) DisclaimerFor(handlerType string) string {
	return w.tables.disclaimerFor(handlerType)
}

// Wrap runs the safety pipeline over a handler reply. On a block verdict
// the returned response is nil and the verdict carries the violation; the
// wrapper never rewrites content.
func (w *Wrapper) Wrap(reply *handler.Reply, handlerType string) (*WrappedResponse, Verdict) {
	if phrase := w.findProhibited(reply); phrase != "" {
		return nil, Verdict{
			Decision:      DecisionBlock,
			ViolationKind: "prohibited_language",
			Details:       fmt.Sprintf("prohibited phrase %q detected in handler output", phrase),
		}
	}

	emergency := reply.RequiresEscalation || len(reply.RedFlags) > 0

	level := reply.ConfidenceLevel()
	resp := &WrappedResponse{
		Success:   reply.Success,
		Handler:   reply.HandlerName,
		Timestamp: time.Now().UTC(),
		Confidence: &ConfidenceInfo{
			ScorePercent: int(math.Round(reply.Confidence * 100)),
			Level:        string(level),
			Indicator:    level.Indicator(),
		},
		Data:       reply.Data,
		Reasoning:  reply.Reasoning,
		Disclaimer: w.tables.disclaimerFor(handlerType),
		Emergency:  emergency,
		SafetyCheck: &CheckInfo{
			DisclaimerApplied:  true,
			ProhibitedLanguage: "passed",
			EmergencyOverlay:   emergency,
			HandlerType:        handlerType,
		},
	}

	verdict := Verdict{Decision: DecisionAllow}
	if emergency {
		resp.EmergencyAlert = w.emergencyAlert(reply)
		verdict.Decision = DecisionAllowOverlay
	}

	return resp, verdict
}

// findProhibited searches the stringified payload and reasoning for the
// first prohibited phrase. map keys are sorted by encoding/json, so the
// search order is deterministic for a given reply.
func (w *Wrapper) findProhibited(reply *handler.Reply) string {
	var sb strings.Builder
	if len(reply.Data) > 0 {
		if data, err := json.Marshal(reply.Data); err == nil {
			sb.Write(data)
		}
	}
	sb.WriteByte('\n')
	sb.WriteString(reply.Reasoning)

	haystack := strings.ToLower(sb.String())
	for _, phrase := range w.tables.phrases {
		if strings.Contains(haystack, phrase) {
			return phrase
		}
	}
	return ""
}

// emergencyAlert renders the overlay summary prepended to escalated
// responses.
func (w *Wrapper) emergencyAlert(reply *handler.Reply) string {
	if len(reply.RedFlags) > 0 {
		return fmt.Sprintf(
			"🚨 EMERGENCY INDICATORS DETECTED (%s). If this is a medical emergency, call your local emergency number now.",
			strings.Join(reply.RedFlags, "; "),
		)
	}
	return "🚨 This response has been escalated for immediate clinical attention. If this is a medical emergency, call your local emergency number now."
}
