package log

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		" error ": LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestInitWriter_FormatsFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)

	Warn(CatRegistry, "conflict detected", "kind", "route", "id", "/checkout")

	line := buf.String()
	require.Contains(t, line, "[WARN] [registry] conflict detected")
	require.Contains(t, line, "kind=route")
	require.Contains(t, line, "id=/checkout")
}

func TestLog_OddFieldCount(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)

	Info(CatConfig, "reloaded", "path")

	require.Contains(t, buf.String(), "path=<missing>")
}

func TestLog_MinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	SetMinLevel(LevelWarn)

	Info(CatRegistry, "registered")
	Debug(CatRegistry, "registered")
	require.Empty(t, buf.String())

	Error(CatRegistry, "boom")
	require.Contains(t, buf.String(), "[ERROR]")
}

func TestLog_Disabled(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	SetEnabled(false)

	Error(CatRegistry, "boom")
	require.Empty(t, buf.String())
}

func TestErrorErr_NilError(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)

	ErrorErr(CatJournal, "append failed", nil)
	require.Contains(t, buf.String(), "error=<nil>")
}

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "arbiter.log")

	cleanup, err := Init(path)
	require.NoError(t, err)

	Info(CatServer, "listening", "addr", "127.0.0.1:0")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[INFO] [server] listening addr=127.0.0.1:0")
}

func TestSubscribe_ReceivesLines(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := Subscribe(ctx)
	require.NotNil(t, ch)

	Info(CatWatcher, "config changed")

	select {
	case event := <-ch:
		require.Contains(t, event.Payload, "config changed")
	case <-time.After(time.Second):
		require.Fail(t, "timeout waiting for log line")
	}
}
