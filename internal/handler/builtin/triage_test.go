// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careroute/careroute/internal/handler"
)

func triageRequest(message string, ctx *handler.Context) *handler.Request {
	return &handler.Request{UserID: "patient-1", Message: message, Context: ctx}
}

func TestTriageEmergencyKeyword(t *testing.T) {
	tr := NewTriage()

	reply, err := tr.Process(context.Background(), triageRequest("I am having crushing chest pain", nil))
	require.NoError(t, err)

	assert.True(t, reply.Success)
	assert.Equal(t, "EMERGENCY", reply.Data["urgency_level"])
	assert.True(t, reply.RequiresEscalation)
	assert.NotEmpty(t, reply.RedFlags)
	assert.Empty(t, reply.SuggestedHandlers, "emergencies get no referrals")
}

func TestTriageEmergencyFromSymptomList(t *testing.T) {
	tr := NewTriage()

	reply, err := tr.Process(context.Background(), triageRequest("feeling bad", &handler.Context{
		Symptoms: []string{"Severe Bleeding from the arm"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "EMERGENCY", reply.Data["urgency_level"])
}

func TestTriageCriticalVitals(t *testing.T) {
	tr := NewTriage()

	tests := []struct {
		name   string
		vitals map[string]float64
	}{
		{"hypoxia", map[string]float64{"oxygen_saturation": 85}},
		{"tachycardia", map[string]float64{"heart_rate": 150}},
		{"hyperthermia", map[string]float64{"temperature": 41}},
		{"hypotension", map[string]float64{"blood_pressure_systolic": 80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := tr.Process(context.Background(), triageRequest("not feeling great", &handler.Context{Vitals: tt.vitals}))
			require.NoError(t, err)
			assert.Equal(t, "EMERGENCY", reply.Data["urgency_level"])
			assert.True(t, reply.RequiresEscalation)
		})
	}
}

func TestTriageUrgentKeyword(t *testing.T) {
	tr := NewTriage()

	reply, err := tr.Process(context.Background(), triageRequest("my child has a high fever that won't respond to medicine", nil))
	require.NoError(t, err)
	assert.Equal(t, "URGENT", reply.Data["urgency_level"])
	assert.True(t, reply.RequiresEscalation)
	assert.Contains(t, reply.SuggestedHandlers, "diagnostic_support")
}

func TestTriageRoutineOnManySymptoms(t *testing.T) {
	tr := NewTriage()

	reply, err := tr.Process(context.Background(), triageRequest("feeling off lately", &handler.Context{
		Symptoms: []string{"fatigue", "mild cough", "runny nose", "low appetite"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "ROUTINE", reply.Data["urgency_level"])
	assert.False(t, reply.RequiresEscalation)
}

func TestTriageSelfCareDefault(t *testing.T) {
	tr := NewTriage()

	reply, err := tr.Process(context.Background(), triageRequest("I feel a little tired", nil))
	require.NoError(t, err)
	assert.Equal(t, "SELF_CARE", reply.Data["urgency_level"])
	assert.False(t, reply.RequiresEscalation)
	assert.Empty(t, reply.RedFlags)
}

func TestTriageConfidenceGrowsWithInformation(t *testing.T) {
	tr := NewTriage()

	bare, err := tr.Process(context.Background(), triageRequest("mild headache", nil))
	require.NoError(t, err)

	rich, err := tr.Process(context.Background(), triageRequest("mild headache", &handler.Context{
		Symptoms:       []string{"headache", "fatigue"},
		Vitals:         map[string]float64{"heart_rate": 72},
		PatientContext: map[string]any{"age": 40},
	}))
	require.NoError(t, err)

	assert.InDelta(t, 0.70, bare.Confidence, 1e-9)
	assert.InDelta(t, 0.95, rich.Confidence, 1e-9)
}

func TestTriageCombinationRedFlag(t *testing.T) {
	tr := NewTriage()

	reply, err := tr.Process(context.Background(), triageRequest("chest pain and shortness of breath", nil))
	require.NoError(t, err)
	assert.Contains(t, reply.RedFlags, "🚨 EMERGENCY: Chest pain + difficulty breathing")
}

func TestTriageHonorsCancelledContext(t *testing.T) {
	tr := NewTriage()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Process(ctx, triageRequest("chest pain", nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTriageMetadata(t *testing.T) {
	tr := NewTriage()
	assert.Equal(t, "triage", tr.Name())
	assert.Contains(t, tr.Capabilities(), "emergency")
	assert.Equal(t, 0.60, tr.ConfidenceThreshold())
	assert.True(t, tr.Reentrant())
	assert.True(t, tr.Enabled())
}
