// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package builtin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/careroute/careroute/internal/handler"
)

// HealthSupport handles wellness check-ins and symptom logging. State is
// in-memory and per-process; its Process is stateful, so it stays
// non-reentrant and the orchestrator serializes calls to it.
type HealthSupport struct {
	handler.Base

	mu          sync.Mutex
	symptomLogs map[string][]symptomLog
}

type symptomLog struct {
	symptoms  []string
	timestamp time.Time
}

// NewHealthSupport returns the wellness support handler.
func NewHealthSupport() *HealthSupport {
	return &HealthSupport{symptomLogs: make(map[string][]symptomLog)}
}

func (h *HealthSupport) Name() string { return "health_support" }

func (h *HealthSupport) Description() string {
	return "Health support: daily wellness check-ins, symptom logging, and ongoing health management"
}

func (h *HealthSupport) Capabilities() []string {
	return []string{
		"daily check-in", "check in", "wellness check", "log symptoms",
		"how am i doing", "health update", "feeling today", "condition monitoring",
	}
}

func (h *HealthSupport) ConfidenceThreshold() float64 { return 0.65 }

func (h *HealthSupport) Process(ctx context.Context, req *handler.Request) (*handler.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := req.EnsureContext()
	switch reqCtx.Task {
	case "log_symptoms":
		return h.logSymptoms(req, reqCtx), nil
	default:
		return h.checkIn(req), nil
	}
}

func (h *HealthSupport) checkIn(req *handler.Request) *handler.Reply {
	h.mu.Lock()
	logged := len(h.symptomLogs[req.UserID])
	h.mu.Unlock()

	message := "Thanks for checking in. How are you feeling today? " +
		"You can tell me about any symptoms, or just let me know you're doing well."
	if logged > 0 {
		message = fmt.Sprintf(
			"Welcome back. You have %d symptom log(s) on record this session. "+
				"How are you feeling today compared to before?", logged)
	}

	return &handler.Reply{
		HandlerName: h.Name(),
		Success:     true,
		Data: map[string]any{
			"task":          "daily_check_in",
			"message":       message,
			"logged_visits": logged,
		},
		Confidence: 0.80,
		Reasoning:  "Daily wellness check-in response generated.",
		Timestamp:  time.Now().UTC(),
	}
}

func (h *HealthSupport) logSymptoms(req *handler.Request, reqCtx *handler.Context) *handler.Reply {
	symptoms := reqCtx.Symptoms
	if len(symptoms) == 0 {
		return &handler.Reply{
			HandlerName: h.Name(),
			Success:     false,
			Data:        map[string]any{"error": "'symptoms' list required for symptom logging"},
			Reasoning:   "No symptoms supplied to log",
			Timestamp:   time.Now().UTC(),
		}
	}

	entry := symptomLog{symptoms: symptoms, timestamp: time.Now().UTC()}
	h.mu.Lock()
	h.symptomLogs[req.UserID] = append(h.symptomLogs[req.UserID], entry)
	total := len(h.symptomLogs[req.UserID])
	h.mu.Unlock()

	return &handler.Reply{
		HandlerName: h.Name(),
		Success:     true,
		Data: map[string]any{
			"task":            "log_symptoms",
			"symptoms_logged": symptoms,
			"total_logs":      total,
			"message": fmt.Sprintf("Logged %d symptom(s): %s. Track changes over time and "+
				"contact a provider if they persist or worsen.",
				len(symptoms), strings.Join(symptoms, ", ")),
		},
		Confidence: 0.85,
		Reasoning:  fmt.Sprintf("Recorded %d symptom(s) for ongoing tracking.", len(symptoms)),
		Timestamp:  time.Now().UTC(),
	}
}
