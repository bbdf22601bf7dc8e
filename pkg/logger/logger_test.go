package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	l := New("debug")
	require.NotNil(t, l)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l = New("warn")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l = New("not-a-level")
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestContextLogger_AddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithValue(context.Background(), PartyIDKey, "p1")
	ctx = WithValue(ctx, UserIDKey, "u1")
	ctx = WithValue(ctx, RequestIDKey, "")

	cl.LogInfo(ctx, "joined")
	cl.LogError(ctx, errors.New("boom"), "push failed")

	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "p1", fields["party_id"])
	assert.Equal(t, "u1", fields["user_id"])
	_, hasRequestID := fields["request_id"]
	assert.False(t, hasRequestID)

	assert.Equal(t, "push failed", entries[1].Message)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}
