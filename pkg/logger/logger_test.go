package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	return line
}

func TestContextFieldsAreAttached(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Environment: "test", Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithOrderID(ctx, "order-9")
	logg.Info(ctx, "order.transition")

	line := decodeLine(t, &buf)
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "order-9", line["order_id"])
	assert.Equal(t, "api", line["service"])
	assert.Equal(t, "test", line["env"])
	assert.Equal(t, "order.transition", line["message"])

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestDerivedContextsDoNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	parent := logg.WithField(context.Background(), "order_id", "o-1")
	_ = logg.WithFields(parent, map[string]any{"refund_id": "r-1"})
	logg.Info(parent, "parent")

	line := decodeLine(t, &buf)
	assert.Equal(t, "o-1", line["order_id"])
	assert.NotContains(t, line, "refund_id")
}

func TestWarnAndErrorStacks(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	logg.Warn(logg.WithActor(context.Background(), "seller-7", "seller"), "order.forbidden")
	line := decodeLine(t, &buf)
	assert.Equal(t, "seller-7", line["actor_ref"])
	assert.Equal(t, "warn", line["level"])
	assert.NotContains(t, line, "stack")

	buf.Reset()
	logg.Error(context.Background(), "refund failed", errors.New("gateway down"))
	line = decodeLine(t, &buf)
	assert.Equal(t, "gateway down", line["error"])
	assert.Contains(t, line, "stack")

	buf.Reset()
	New(Options{Output: &buf, WarnStack: true}).Warn(context.Background(), "slow")
	assert.Contains(t, decodeLine(t, &buf), "stack")
}

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{Level: zerolog.ErrorLevel, Output: &buf})
	logg.Info(context.Background(), "hidden")
	logg.Warn(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestConsoleFormatIsNotJSON(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Format: FormatConsole, Output: &buf}).Info(context.Background(), "hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestNilLoggerIsSilent(t *testing.T) {
	var logg *Logger
	ctx := logg.WithField(context.Background(), "k", "v")
	assert.NotPanics(t, func() {
		logg.Info(ctx, "nothing")
		logg.Error(ctx, "nothing", errors.New("x"))
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}
