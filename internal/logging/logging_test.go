package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/luadebug/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"0", zapcore.InfoLevel, false},
		{"2", zapcore.Level(-2), false},
		{"-1", zapcore.InfoLevel, true},
		{"chatty", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseLevel(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseLevel(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseLevel(%q)", tt.in)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Level: "info", Format: "json"}, WithOutput(&buf))
	require.NoError(t, err)

	log.WithName("session").Info("paused", "line", 10)
	log.V(1).Info("hidden")
	log.Flush()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	entry := gjson.ParseBytes(lines[0])
	assert.Equal(t, "paused", entry.Get("msg").String())
	assert.Equal(t, "session", entry.Get("logger").String())
	assert.Equal(t, int64(10), entry.Get("line").Int())
}

func TestSetLevelEnablesVerbosity(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Format: "json"}, WithOutput(&buf))
	require.NoError(t, err)

	assert.False(t, log.V(1).Enabled())
	log.SetLevel(zapcore.DebugLevel)
	assert.True(t, log.V(1).Enabled())
	assert.False(t, log.V(2).Enabled())
	assert.Equal(t, zapcore.DebugLevel, log.Level())
}

func TestNewLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luadebug.log")
	log, err := New(config.LogConfig{Level: "debug", Format: "console", File: path})
	require.NoError(t, err)

	log.Info("hello")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = New(config.LogConfig{Format: "xml"})
	assert.Error(t, err)
}
