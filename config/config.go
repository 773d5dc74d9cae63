// Package config loads Forwarder and Handler settings from a TOML file.
//
// Durations are given in milliseconds, matching the socket option names:
//
//	[forwarder]
//	host = "fluentd.internal"
//	port = 24224
//	tag = "app.access"
//	send_timeout_ms = 1000
//	linger_time_ms = 1000
//	time_mode = "eventtime"  # or "integer"
//	compat = "raw"           # or "binary"
//
//	[handler]
//	level = "info"
//	logger_name = "api"
//	emit_stack_trace = true
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bitdabbler/fluentfwd"
)

var (
	ErrInvalidTimeMode = errors.New("invalid time_mode")
	ErrInvalidCompat   = errors.New("invalid compat")
	ErrInvalidLevel    = errors.New("invalid level")
)

// Config is the root of the configuration file.
type Config struct {
	Forwarder Forwarder `koanf:"forwarder"`
	Handler   Handler   `koanf:"handler"`
}

// Forwarder holds the [forwarder] table.
type Forwarder struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	Tag  string `koanf:"tag"`

	NoDelay           bool `koanf:"no_delay"`
	SendBufferSize    int  `koanf:"send_buffer_size"`
	ReceiveBufferSize int  `koanf:"receive_buffer_size"`
	SendTimeoutMs     int  `koanf:"send_timeout_ms"`
	ReceiveTimeoutMs  int  `koanf:"receive_timeout_ms"`
	DisableLinger     bool `koanf:"disable_linger"`
	LingerTimeMs      int  `koanf:"linger_time_ms"`
	DialTimeoutMs     int  `koanf:"dial_timeout_ms"`
	EagerConnect      bool `koanf:"eager_connect"`

	// TimeMode is "eventtime" or "integer".
	TimeMode string `koanf:"time_mode"`
	// Compat is "raw" or "binary".
	Compat string `koanf:"compat"`

	Verbose bool `koanf:"verbose"`
}

// Handler holds the [handler] table.
type Handler struct {
	Level                string `koanf:"level"`
	LoggerName           string `koanf:"logger_name"`
	TimeFormat           string `koanf:"time_format"`
	AddSource            bool   `koanf:"add_source"`
	EmitStackTrace       bool   `koanf:"emit_stack_trace"`
	IncludeAllProperties bool   `koanf:"include_all_properties"`
	Verbose              bool   `koanf:"verbose"`
}

// Default returns the configuration equivalent to the package defaults.
func Default() *Config {
	fo := fluentfwd.DefaultForwarderOptions()
	return &Config{
		Forwarder: Forwarder{
			Host:              fo.Host,
			Port:              fo.Port,
			Tag:               fo.Tag,
			NoDelay:           fo.NoDelay,
			SendBufferSize:    fo.SendBufferSize,
			ReceiveBufferSize: fo.ReceiveBufferSize,
			SendTimeoutMs:     int(fo.SendTimeout / time.Millisecond),
			ReceiveTimeoutMs:  int(fo.ReceiveTimeout / time.Millisecond),
			DisableLinger:     fo.DisableLinger,
			LingerTimeMs:      int(fo.LingerTime / time.Millisecond),
			DialTimeoutMs:     int(fo.DialTimeout / time.Millisecond),
			TimeMode:          fo.Encoder.TimeMode.String(),
			Compat:            fo.Encoder.Compat.String(),
		},
		Handler: Handler{
			Level:      slog.LevelInfo.String(),
			TimeFormat: time.RFC3339Nano,
		},
	}
}

// Load reads the TOML file at path over the defaults. Keys missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// fail on bad enums at load time instead of silently coercing them
	if _, err := cfg.ForwarderOptions(); err != nil {
		return nil, err
	}
	if _, err := cfg.HandlerOptions(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ForwarderOptions converts the [forwarder] table.
func (c *Config) ForwarderOptions() (*fluentfwd.ForwarderOptions, error) {
	f := c.Forwarder

	tm, err := parseTimeMode(f.TimeMode)
	if err != nil {
		return nil, err
	}
	cm, err := parseCompat(f.Compat)
	if err != nil {
		return nil, err
	}

	eo := fluentfwd.DefaultEncoderOptions()
	eo.TimeMode = tm
	eo.Compat = cm

	return &fluentfwd.ForwarderOptions{
		Host:              f.Host,
		Port:              f.Port,
		Tag:               f.Tag,
		NoDelay:           f.NoDelay,
		SendBufferSize:    f.SendBufferSize,
		ReceiveBufferSize: f.ReceiveBufferSize,
		SendTimeout:       millis(f.SendTimeoutMs),
		ReceiveTimeout:    millis(f.ReceiveTimeoutMs),
		DisableLinger:     f.DisableLinger,
		LingerTime:        millis(f.LingerTimeMs),
		DialTimeout:       millis(f.DialTimeoutMs),
		EagerConnect:      f.EagerConnect,
		Encoder:           eo,
		Verbose:           f.Verbose,
	}, nil
}

// HandlerOptions converts the [handler] table.
func (c *Config) HandlerOptions() (*fluentfwd.HandlerOptions, error) {
	h := c.Handler

	var lvl slog.Level
	if len(h.Level) > 0 {
		if err := lvl.UnmarshalText([]byte(h.Level)); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, h.Level)
		}
	}

	return &fluentfwd.HandlerOptions{
		Level:                lvl,
		LoggerName:           h.LoggerName,
		TimeFormat:           h.TimeFormat,
		AddSource:            h.AddSource,
		EmitStackTrace:       h.EmitStackTrace,
		IncludeAllProperties: h.IncludeAllProperties,
		Verbose:              h.Verbose,
	}, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func parseTimeMode(s string) (fluentfwd.TimeMode, error) {
	switch strings.ToLower(s) {
	case "", "eventtime", "event":
		return fluentfwd.EventTimeMode, nil
	case "integer", "int":
		return fluentfwd.IntegerTimeMode, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeMode, s)
}

func parseCompat(s string) (fluentfwd.CompatMode, error) {
	switch strings.ToLower(s) {
	case "", "raw":
		return fluentfwd.CompatRaw, nil
	case "binary", "bin":
		return fluentfwd.CompatBinary, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCompat, s)
}
