package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info("hidden")
	log.Warn("Send buffer full, closing client", "clientID", "abc")

	var entry map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &entry))
	req.Equal("Send buffer full, closing client", entry["msg"])
	req.Equal("abc", entry["clientID"])
	req.Equal("WARN", entry["level"])
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "text").Info("User joined", "name", "Ana")
	require.Contains(t, buf.String(), "msg=\"User joined\" name=Ana")
}
