// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactTopLevel(t *testing.T) {
	in := map[string]any{
		"name":    "Jane Roe",
		"email":   "jane@example.com",
		"message": "I have a headache",
	}
	out := Redact(in)

	assert.Equal(t, "[REDACTED]", out["name"])
	assert.Equal(t, "[REDACTED]", out["email"])
	assert.Equal(t, "I have a headache", out["message"])
}

func TestRedactNested(t *testing.T) {
	in := map[string]any{
		"context": map[string]any{
			"patient_context": map[string]any{
				"dob":        "1990-01-01",
				"conditions": []any{"asthma"},
			},
			"contacts": []any{
				map[string]any{"phone": "555-0100", "relation": "spouse"},
			},
		},
	}
	out := Redact(in)

	ctx := out["context"].(map[string]any)
	patient := ctx["patient_context"].(map[string]any)
	assert.Equal(t, "[REDACTED]", patient["dob"])
	assert.Equal(t, []any{"asthma"}, patient["conditions"])

	contact := ctx["contacts"].([]any)[0].(map[string]any)
	assert.Equal(t, "[REDACTED]", contact["phone"])
	assert.Equal(t, "spouse", contact["relation"])
}

func TestRedactCaseInsensitiveKeys(t *testing.T) {
	out := Redact(map[string]any{"SSN": "123-45-6789", "Address": "1 Main St"})
	assert.Equal(t, "[REDACTED]", out["SSN"])
	assert.Equal(t, "[REDACTED]", out["Address"])
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	nested := map[string]any{"name": "Jane"}
	in := map[string]any{"context": nested}

	Redact(in)
	assert.Equal(t, "Jane", nested["name"])
}

func TestRedactNil(t *testing.T) {
	assert.Nil(t, Redact(nil))
}

func TestHashUserID(t *testing.T) {
	hash := HashUserID("patient-42")
	require.Len(t, hash, 16)
	assert.Equal(t, hash, HashUserID("patient-42"), "hashing must be deterministic")
	assert.NotEqual(t, hash, HashUserID("patient-43"))
	assert.NotContains(t, hash, "patient")
}
