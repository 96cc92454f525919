// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package safety

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careroute/careroute/internal/handler"
)

func newTestWrapper(t *testing.T) *Wrapper {
	t.Helper()
	w, err := New(Options{})
	require.NoError(t, err)
	return w
}

func okReply(confidence float64) *handler.Reply {
	return &handler.Reply{
		HandlerName: "triage",
		Success:     true,
		Data:        map[string]any{"urgency_level": "ROUTINE"},
		Confidence:  confidence,
		Reasoning:   "Symptoms reviewed against triage rules.",
	}
}

func TestWrapAllowsCleanReply(t *testing.T) {
	w := newTestWrapper(t)

	resp, verdict := w.Wrap(okReply(0.85), "triage")
	require.NotNil(t, resp)
	assert.Equal(t, DecisionAllow, verdict.Decision)
	assert.False(t, verdict.Blocked())

	assert.True(t, resp.Success)
	assert.Equal(t, "triage", resp.Handler)
	assert.NotEmpty(t, resp.Disclaimer)
	assert.False(t, resp.Emergency)
	assert.Empty(t, resp.EmergencyAlert)

	require.NotNil(t, resp.Confidence)
	assert.Equal(t, 85, resp.Confidence.ScorePercent)
	assert.Equal(t, "high", resp.Confidence.Level)
	assert.Equal(t, "🟢", resp.Confidence.Indicator)

	require.NotNil(t, resp.SafetyCheck)
	assert.True(t, resp.SafetyCheck.DisclaimerApplied)
	assert.Equal(t, "passed", resp.SafetyCheck.ProhibitedLanguage)
	assert.False(t, resp.SafetyCheck.EmergencyOverlay)
}

func TestWrapBlocksProhibitedLanguage(t *testing.T) {
	w := newTestWrapper(t)

	tests := []struct {
		name  string
		reply *handler.Reply
	}{
		{
			name: "definitive diagnosis in data",
			reply: &handler.Reply{
				HandlerName: "diagnostic_support",
				Success:     true,
				Data:        map[string]any{"assessment": "You have diabetes"},
				Confidence:  0.9,
			},
		},
		{
			name: "prescription language in reasoning",
			reply: &handler.Reply{
				HandlerName: "drug_info",
				Success:     true,
				Data:        map[string]any{},
				Confidence:  0.9,
				Reasoning:   "Based on the symptoms I prescribe amoxicillin.",
			},
		},
		{
			name: "nested data is scanned",
			reply: &handler.Reply{
				HandlerName: "communication",
				Success:     true,
				Data: map[string]any{
					"answer": map[string]any{"text": "there is a GUARANTEED CURE available"},
				},
				Confidence: 0.5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, verdict := w.Wrap(tt.reply, tt.reply.HandlerName)
			assert.Nil(t, resp, "blocked reply must not produce a response")
			assert.True(t, verdict.Blocked())
			assert.Equal(t, "prohibited_language", verdict.ViolationKind)
			assert.NotEmpty(t, verdict.Details)
		})
	}
}

func TestBlockDetailsNeverQuoteContent(t *testing.T) {
	w := newTestWrapper(t)

	reply := &handler.Reply{
		HandlerName: "diagnostic_support",
		Success:     true,
		Data:        map[string]any{"assessment": "You have stage four pancreatic cancer SECRET-PAYLOAD"},
		Confidence:  0.9,
	}
	_, verdict := w.Wrap(reply, "diagnostic_support")
	require.True(t, verdict.Blocked())
	assert.NotContains(t, verdict.Details, "SECRET-PAYLOAD")
	assert.Contains(t, verdict.Details, "you have")
}

func TestWrapEmergencyOverlay(t *testing.T) {
	w := newTestWrapper(t)

	t.Run("red flags trigger overlay", func(t *testing.T) {
		reply := okReply(0.9)
		reply.RedFlags = []string{"🚨 EMERGENCY: Chest Pain"}

		resp, verdict := w.Wrap(reply, "triage")
		require.NotNil(t, resp)
		assert.Equal(t, DecisionAllowOverlay, verdict.Decision)
		assert.True(t, resp.Emergency)
		assert.Contains(t, resp.EmergencyAlert, "🚨")
		assert.Contains(t, resp.EmergencyAlert, "Chest Pain")
		assert.True(t, resp.SafetyCheck.EmergencyOverlay)
	})

	t.Run("escalation flag triggers overlay without red flags", func(t *testing.T) {
		reply := okReply(0.9)
		reply.RequiresEscalation = true

		resp, verdict := w.Wrap(reply, "triage")
		require.NotNil(t, resp)
		assert.Equal(t, DecisionAllowOverlay, verdict.Decision)
		assert.True(t, resp.Emergency)
		assert.NotEmpty(t, resp.EmergencyAlert)
	})
}

func TestDisclaimerSelection(t *testing.T) {
	w := newTestWrapper(t)

	triage, _ := w.Wrap(okReply(0.9), "triage")
	generic, _ := w.Wrap(okReply(0.9), "some_unknown_type")

	require.NotNil(t, triage)
	require.NotNil(t, generic)
	assert.Contains(t, triage.Disclaimer, "TRIAGE")
	assert.Equal(t, w.GenericDisclaimer(), generic.Disclaimer)
	assert.NotEqual(t, triage.Disclaimer, generic.Disclaimer)
}

func TestWrapIdempotent(t *testing.T) {
	w := newTestWrapper(t)
	reply := okReply(0.73)
	reply.RedFlags = []string{"⚠️ Rapid heart rate: 140 bpm"}

	first, firstVerdict := w.Wrap(reply, "triage")
	second, secondVerdict := w.Wrap(reply, "triage")

	assert.Equal(t, firstVerdict, secondVerdict)

	// Identical apart from the response timestamp.
	second.Timestamp = first.Timestamp
	assert.Equal(t, first, second)
}

func TestLoadTablesFromFiles(t *testing.T) {
	dir := t.TempDir()
	disclaimers := filepath.Join(dir, "disclaimers.yaml")
	phrases := filepath.Join(dir, "phrases.yaml")

	writeFile(t, disclaimers, "version: 1\ndisclaimers:\n  general: custom notice\n")
	writeFile(t, phrases, "version: 1\nphrases:\n  - \"Custom Forbidden\"\n")

	w, err := New(Options{DisclaimersPath: disclaimers, ProhibitedPhrasesPath: phrases})
	require.NoError(t, err)
	assert.Equal(t, "custom notice", w.GenericDisclaimer())

	reply := okReply(0.9)
	reply.Reasoning = "this is CUSTOM forbidden output"
	_, verdict := w.Wrap(reply, "triage")
	assert.True(t, verdict.Blocked(), "phrase matching must be case-insensitive")
}

func TestLoadTablesValidation(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing general disclaimer", func(t *testing.T) {
		path := filepath.Join(dir, "no_general.yaml")
		writeFile(t, path, "version: 1\ndisclaimers:\n  triage: only triage\n")
		_, err := New(Options{DisclaimersPath: path})
		assert.Error(t, err)
	})

	t.Run("empty phrase list", func(t *testing.T) {
		path := filepath.Join(dir, "empty_phrases.yaml")
		writeFile(t, path, "version: 1\nphrases: []\n")
		_, err := New(Options{ProhibitedPhrasesPath: path})
		assert.Error(t, err)
	})
}

func TestConfidenceLevelingProperty(t *testing.T) {
	w := newTestWrapper(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("score percent matches the raw confidence", prop.ForAll(
		func(confidence float64) bool {
			resp, verdict := w.Wrap(okReply(confidence), "triage")
			if verdict.Blocked() || resp.Confidence == nil {
				return false
			}
			return resp.Confidence.ScorePercent >= 0 && resp.Confidence.ScorePercent <= 100
		},
		gen.Float64Range(0, 1),
	))

	properties.Property("level bands are monotonic in confidence", prop.ForAll(
		func(low, high float64) bool {
			if low > high {
				low, high = high, low
			}
			lowResp, _ := w.Wrap(okReply(low), "triage")
			highResp, _ := w.Wrap(okReply(high), "triage")
			return levelRank(lowResp.Confidence.Level) <= levelRank(highResp.Confidence.Level)
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func levelRank(level string) int {
	switch level {
	case "very_low":
		return 0
	case "low":
		return 1
	case "moderate":
		return 2
	case "high":
		return 3
	}
	return -1
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
