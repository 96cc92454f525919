// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careroute/careroute/internal/handler"
)

func TestCommunicationWithInferencer(t *testing.T) {
	var seenQuestion string
	infer := func(ctx context.Context, question string) (string, error) {
		seenQuestion = question
		return "Diabetes is a chronic condition affecting blood sugar regulation.", nil
	}
	c := NewCommunication(infer)

	reply, err := c.Process(context.Background(), &handler.Request{
		UserID:  "u",
		Message: "ignored",
		Context: &handler.Context{Question: "what is diabetes?"},
	})
	require.NoError(t, err)

	assert.Equal(t, "what is diabetes?", seenQuestion)
	assert.True(t, reply.Success)
	assert.Equal(t, "Diabetes is a chronic condition affecting blood sugar regulation.", reply.Data["answer"])
	assert.False(t, reply.RequiresEscalation)
	assert.InDelta(t, 0.85, reply.Confidence, 1e-9)
}

func TestCommunicationFallsBackToMessage(t *testing.T) {
	var seenQuestion string
	c := NewCommunication(func(ctx context.Context, question string) (string, error) {
		seenQuestion = question
		return "answer", nil
	})

	_, err := c.Process(context.Background(), &handler.Request{UserID: "u", Message: "what is a fever?"})
	require.NoError(t, err)
	assert.Equal(t, "what is a fever?", seenQuestion)
}

func TestCommunicationWithoutInferencer(t *testing.T) {
	c := NewCommunication(nil)

	reply, err := c.Process(context.Background(), &handler.Request{UserID: "u", Message: "what is a fever?"})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Contains(t, reply.Data["answer"], "not configured")
	assert.InDelta(t, 0.75, reply.Confidence, 1e-9)
}

func TestCommunicationInferenceError(t *testing.T) {
	c := NewCommunication(func(ctx context.Context, question string) (string, error) {
		return "", errors.New("model timed out")
	})

	_, err := c.Process(context.Background(), &handler.Request{UserID: "u", Message: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model timed out")
}

func TestCommunicationRedFlags(t *testing.T) {
	c := NewCommunication(nil)

	reply, err := c.Process(context.Background(), &handler.Request{
		UserID:  "u",
		Message: "my neighbor is having chest pain, what should I do?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.RedFlags)
	assert.True(t, reply.RequiresEscalation)
}

func TestCommunicationMetadata(t *testing.T) {
	c := NewCommunication(nil)
	assert.Equal(t, "communication", c.Name())
	assert.True(t, c.Reentrant())
	assert.Equal(t, 0.60, c.ConfidenceThreshold())
}
