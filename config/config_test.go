package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitdabbler/fluentfwd"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fluentfwd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[forwarder]
host = "fluentd.internal"
port = 24225
tag = "app.access"
no_delay = true
send_buffer_size = 16384
send_timeout_ms = 250
disable_linger = true
dial_timeout_ms = 500
time_mode = "integer"
compat = "binary"

[handler]
level = "warn"
logger_name = "api"
emit_stack_trace = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	fo, err := cfg.ForwarderOptions()
	require.NoError(t, err)
	assert.Equal(t, "fluentd.internal", fo.Host)
	assert.Equal(t, 24225, fo.Port)
	assert.Equal(t, "app.access", fo.Tag)
	assert.True(t, fo.NoDelay)
	assert.Equal(t, 16384, fo.SendBufferSize)
	assert.Equal(t, 8192, fo.ReceiveBufferSize, "missing keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, fo.SendTimeout)
	assert.Equal(t, time.Second, fo.ReceiveTimeout)
	assert.True(t, fo.DisableLinger)
	assert.Equal(t, 500*time.Millisecond, fo.DialTimeout)
	assert.Equal(t, fluentfwd.IntegerTimeMode, fo.Encoder.TimeMode)
	assert.Equal(t, fluentfwd.CompatBinary, fo.Encoder.Compat)

	ho, err := cfg.HandlerOptions()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, ho.Level)
	assert.Equal(t, "api", ho.LoggerName)
	assert.True(t, ho.EmitStackTrace)
	assert.False(t, ho.AddSource)
	assert.Equal(t, time.RFC3339Nano, ho.TimeFormat)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[forwarder]\n"))
	require.NoError(t, err)

	fo, err := cfg.ForwarderOptions()
	require.NoError(t, err)

	want := fluentfwd.DefaultForwarderOptions()
	assert.Equal(t, want.Host, fo.Host)
	assert.Equal(t, want.Port, fo.Port)
	assert.Equal(t, want.DisableLinger, fo.DisableLinger)
	assert.Equal(t, want.LingerTime, fo.LingerTime)
	assert.Equal(t, want.DialTimeout, fo.DialTimeout)
	assert.Equal(t, fluentfwd.EventTimeMode, fo.Encoder.TimeMode)
	assert.Equal(t, fluentfwd.CompatRaw, fo.Encoder.Compat)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"time mode", "[forwarder]\ntime_mode = \"nanos\"\n", ErrInvalidTimeMode},
		{"compat", "[forwarder]\ncompat = \"zip\"\n", ErrInvalidCompat},
		{"level", "[handler]\nlevel = \"loud\"\n", ErrInvalidLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		require.Error(t, err)
	})
}
