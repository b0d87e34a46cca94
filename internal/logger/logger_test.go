package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Info("should be dropped")
	require.Empty(t, buf.String())

	Warn("should appear", "pid", 42)
	require.Contains(t, buf.String(), "should appear")
	require.Contains(t, buf.String(), "pid=42")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	Info("crash reported", KeyCrashID, "DEADBEEFCAFEBABE")

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	require.Equal(t, "crash reported", decoded["msg"])
	require.Equal(t, "DEADBEEFCAFEBABE", decoded[KeyCrashID])
}

func TestContextFieldsPrepended(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	lc := NewLogContext("handler").WithSession(0xBEEF).WithCrash("crashy", 4242)
	ctx := WithContext(t.Context(), lc)

	InfoCtx(ctx, "session accepted")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "handler", decoded[KeyPeer])
	require.Equal(t, float64(4242), decoded[KeyPid])
}
