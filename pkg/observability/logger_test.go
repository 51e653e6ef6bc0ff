package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		assert.NotZero(t, buf.Len())

		buf.Reset()
		logger.Error("error message")
		assert.Equal(t, "ERROR", decodeEntry(t, &buf)["level"])
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("subject", "alice").
		WithFields(map[string]interface{}{"permission": "users.read", "attempt": 2}).
		WithError(errors.New("connection refused")).
		Info("message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "alice", entry["subject"])
	assert.Equal(t, "users.read", entry["permission"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, "connection refused", entry["error"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, nil)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"Debugf", func() { logger.Debugf("test %s %d", "string", 42) }, "test string 42"},
		{"Infof", func() { logger.Infof("test %d", 123) }, "test 123"},
		{"Warnf", func() { logger.Warnf("warning %s", "test") }, "warning test"},
		{"Errorf", func() { logger.Errorf("error %v", "test") }, "error test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			assert.Equal(t, tt.want, decodeEntry(t, &buf)["msg"])
		})
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	assert.Equal(t, ErrorLevel, logger.Level())
	assert.NotPanics(t, func() { logger.Error("discarded") })
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLogLevel("verbose"))
	assert.Equal(t, InfoLevel, ParseLogLevel(""))
}

func TestContextLogger(t *testing.T) {
	t.Run("fallback used without context logger", func(t *testing.T) {
		fallback := NewLogger(WarnLevel, nil)
		assert.Same(t, fallback, GetLogger(context.Background(), fallback))
	})

	t.Run("context logger preferred", func(t *testing.T) {
		stored := NewLogger(InfoLevel, nil)
		ctx := WithLogger(context.Background(), stored)
		assert.Same(t, stored, GetLogger(ctx, NopLogger()))
	})

	t.Run("FromContext adds request fields", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = contextkeys.WithRequestID(ctx, "req-123")
		ctx = contextkeys.WithUserID(ctx, "user-456")

		FromContext(ctx, nil).Info("test message")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, "req-123", entry["request_id"])
		assert.Equal(t, "user-456", entry["user_id"])
	})
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithFormat(InfoLevel, FormatText, &buf).WithField("role", "manager").Info("role updated")

	line := buf.String()
	assert.Contains(t, line, `msg="role updated"`)
	assert.Contains(t, line, "role=manager")

	f, err := ParseLogFormat(" Text ")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)
	f, err = ParseLogFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	_, err = ParseLogFormat("logfmt")
	assert.Error(t, err)
}
