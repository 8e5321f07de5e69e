package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelInfo), WithService("svc"))

	logger.Debug("skip")
	assert.Zero(t, buf.Len(), "debug must be filtered at info level")

	logger.Info("hello", "correlation_id", "abc", "foo", "bar", "num", 1)
	entry := decodeLastLog(t, buf.Bytes())

	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "abc", entry["correlation_id"])
	assert.Equal(t, "svc", entry["service"])

	fields := entry["fields"].(map[string]interface{})
	assert.Equal(t, "bar", fields["foo"])
	assert.EqualValues(t, 1, fields["num"])
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelWarn))
	ctx := WithCorrelationID(context.Background(), "ctxid")

	logger.InfoWithContext(ctx, "skip")
	assert.Zero(t, buf.Len())

	logger.WarnWithContext(ctx, "warned", "k", "v")
	entry := decodeLastLog(t, buf.Bytes())
	assert.Equal(t, "ctxid", entry["correlation_id"])
	assert.Equal(t, "warn", entry["level"])
}

func TestLoggerSetLevelAffectsChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelError))
	child := logger.With("component", "vault")

	child.Info("skip")
	assert.Zero(t, buf.Len())

	logger.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.Level())

	child.Debug("visible", "user_id", "42")
	entry := decodeLastLog(t, buf.Bytes())
	fields := entry["fields"].(map[string]interface{})
	assert.Equal(t, "vault", fields["component"])
	assert.Equal(t, "42", fields["user_id"])
}

func TestLoggerStringifiesErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))

	logger.Error("failed", "error", errors.New("boom"))
	entry := decodeLastLog(t, buf.Bytes())
	assert.Equal(t, "boom", entry["fields"].(map[string]interface{})["error"])
}

func TestLoggerMarshalError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelDebug))

	logger.Info("bad", "field", func() {})
	assert.Zero(t, buf.Len(), "no output when marshal fails")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestParseFields(t *testing.T) {
	cid, fields := parseFields([]interface{}{"correlation_id", "cid", "foo", 1, 42, "bad"})
	assert.Equal(t, "cid", cid)
	assert.Equal(t, 1, fields["foo"])
	assert.Len(t, fields, 1)
}

func decodeLastLog(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}
