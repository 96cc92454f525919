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
	"github.com/careroute/careroute/internal/safety"
)

// Every reply the built-in handlers produce on benign input must clear the
// safety wrapper; the prohibited-phrase table and the handlers ship
// together, so a false block here is a data bug.
func TestBuiltinRepliesClearSafetyWrapper(t *testing.T) {
	wrapper, err := safety.New(safety.Options{})
	require.NoError(t, err)

	hs := NewHealthSupport()
	_, err = hs.Process(context.Background(), &handler.Request{
		UserID:  "u1",
		Message: "log it",
		Context: &handler.Context{Task: "log_symptoms", Symptoms: []string{"headache"}},
	})
	require.NoError(t, err)

	drugs := newDrugInfo(t)

	tests := []struct {
		name    string
		handler handler.Handler
		req     *handler.Request
	}{
		{
			name:    "returning-user check-in mentions the log count",
			handler: hs,
			req:     &handler.Request{UserID: "u1", Message: "daily check in"},
		},
		{
			name:    "question echo containing a diagnosis-adjacent phrase",
			handler: NewCommunication(nil),
			req: &handler.Request{
				UserID:  "u2",
				Message: "what does it mean when you have high cholesterol?",
			},
		},
		{
			name:    "self-care triage",
			handler: NewTriage(),
			req:     &handler.Request{UserID: "u3", Message: "I feel a little tired"},
		},
		{
			name:    "medication explanation",
			handler: drugs,
			req: &handler.Request{
				UserID:  "u4",
				Message: "tell me about metformin",
			},
		},
		{
			name:    "interaction check with a major finding",
			handler: drugs,
			req: &handler.Request{
				UserID:  "u5",
				Message: "can I take these together?",
				Context: &handler.Context{
					Task:  "check_interactions",
					Extra: map[string]any{"medications": []string{"warfarin", "aspirin"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := tt.handler.Process(context.Background(), tt.req)
			require.NoError(t, err)

			resp, verdict := wrapper.Wrap(reply, tt.handler.Name())
			assert.False(t, verdict.Blocked(), "details: %s", verdict.Details)
			require.NotNil(t, resp)
			assert.NotEmpty(t, resp.Disclaimer)
		})
	}
}
