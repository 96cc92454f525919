// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careroute/careroute/internal/handler"
)

// Inferencer answers a free-text question. Model backends are external;
// the handler treats the function as an opaque collaborator. A nil
// Inferencer degrades to a canned guidance response.
type Inferencer func(ctx context.Context, question string) (string, error)

// Communication is the general medical Q&A handler and the classifier's
// fallback target. It never diagnoses; it educates and points to care.
type Communication struct {
	handler.Base
	infer Inferencer
}

// NewCommunication returns the Q&A handler backed by the given inferencer.
func NewCommunication(infer Inferencer) *Communication {
	return &Communication{infer: infer}
}

func (c *Communication) Name() string { return "communication" }

func (c *Communication) Description() string {
	return "Doctor-patient communication: medical Q&A, simplification, and patient education"
}

func (c *Communication) Capabilities() []string {
	return []string{
		"medical question", "explain", "simplify", "q&a", "communication",
		"patient education", "health literacy",
	}
}

func (c *Communication) ConfidenceThreshold() float64 { return 0.60 }

// Reentrant: the handler keeps no per-request state; the inferencer is
// required to be safe for concurrent calls.
func (c *Communication) Reentrant() bool { return true }

var qaEmergencyKeywords = []string{
	"chest pain", "can't breathe", "difficulty breathing",
	"severe bleeding", "unconscious", "suicide", "suicidal",
	"stroke", "heart attack", "seizure", "severe headache",
	"can't move", "paralysis", "severe burn",
}

func (c *Communication) Process(ctx context.Context, req *handler.Request) (*handler.Reply, error) {
	question := req.EnsureContext().Question
	if question == "" {
		question = req.Message
	}

	answer, reasoning, err := c.answer(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("communication inference failed: %w", err)
	}

	redFlags := detectQARedFlags(question)
	confidence := 0.75
	if len(reasoning) > 50 {
		confidence += 0.10
	}

	return &handler.Reply{
		HandlerName: c.Name(),
		Success:     true,
		Data: map[string]any{
			"task":     "medical_qa",
			"question": question,
			"answer":   answer,
			"when_to_seek_care": "Contact a healthcare provider if symptoms persist, worsen, " +
				"or if you are unsure about your condition.",
		},
		Confidence:         confidence,
		Reasoning:          reasoning,
		RedFlags:           redFlags,
		RequiresEscalation: len(redFlags) > 0,
		Timestamp:          time.Now().UTC(),
	}, nil
}

func (c *Communication) answer(ctx context.Context, question string) (answer, reasoning string, err error) {
	if c.infer == nil {
		return "I can help with general health questions, but a detailed answer requires " +
				"the language model backend, which is not configured. For specific medical " +
				"concerns, please consult a healthcare provider.",
			"No inference backend configured.",
			nil
	}

	answer, err = c.infer(ctx, question)
	if err != nil {
		return "", "", err
	}
	return answer, "Medical Q&A response generated from the configured inference backend.", nil
}

func detectQARedFlags(question string) []string {
	var flags []string
	lower := strings.ToLower(question)
	for _, kw := range qaEmergencyKeywords {
		if strings.Contains(lower, kw) {
			flags = append(flags, fmt.Sprintf("⚠️ EMERGENCY KEYWORD: %s", kw))
		}
	}
	return flags
}
