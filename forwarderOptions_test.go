package fluentfwd

import (
	"net"
	"testing"
	"time"
)

func TestForwarderOptions_resolvedHost(t *testing.T) {
	opts := &ForwarderOptions{}
	opts.resolve()
	if opts.Host != defaultHost {
		t.Errorf("expected empty host to be coerced to: %s, got: %s", defaultHost, opts.Host)
	}
}

func TestForwarderOptions_resolvedPort(t *testing.T) {

	tests := []struct {
		name   string
		input  int
		expect int
	}{
		{"valid custom port unchanged", 20_000, 20_000},
		{"low port coerced to default", 0, defaultPort},
		{"high port coerced to default", 100_000, defaultPort},
	}
	for i := 0; i < len(tests); i++ {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			opts := &ForwarderOptions{Port: tt.input}
			opts.resolve()
			if opts.Port != tt.expect {
				t.Errorf("failed: %s, expected: %d, got: %d", tt.name, tt.expect, opts.Port)
			}
		})
	}
}

func TestForwarderOptions_resolvedBufferSizes(t *testing.T) {
	tests := []struct {
		name   string
		input  int
		expect int
	}{
		{"positive size unchanged", 4096, 4096},
		{"0 size coerced to default", 0, defaultBufferSize},
		{"negative size coerced to default", -1, defaultBufferSize},
	}
	for i := 0; i < len(tests); i++ {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			opts := &ForwarderOptions{SendBufferSize: tt.input, ReceiveBufferSize: tt.input}
			opts.resolve()
			if opts.SendBufferSize != tt.expect || opts.ReceiveBufferSize != tt.expect {
				t.Errorf("failed: %s, expected: %d, got: %d/%d", tt.name, tt.expect, opts.SendBufferSize, opts.ReceiveBufferSize)
			}
		})
	}
}

// socket timeouts must be negative or positive, but not 0
func TestForwarderOptions_resolvedSocketTimeouts(t *testing.T) {
	tests := []struct {
		name   string
		input  time.Duration
		expect time.Duration
	}{
		{"valid (positive) timeout unchanged", time.Minute, time.Minute},
		{"negative timeout unchanged", -time.Second, -time.Second},
		{"0 duration gets coerced to the default", 0, defaultSocketTimeout},
	}
	for i := 0; i < len(tests); i++ {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			opts := &ForwarderOptions{SendTimeout: tt.input, ReceiveTimeout: tt.input}
			opts.resolve()
			if opts.SendTimeout != tt.expect || opts.ReceiveTimeout != tt.expect {
				t.Errorf("failed: %s, expected: %s, got: %s/%s", tt.name, tt.expect, opts.SendTimeout, opts.ReceiveTimeout)
			}
		})
	}
}

func TestForwarderOptions_resolvedLingerTime(t *testing.T) {
	tests := []struct {
		name   string
		input  time.Duration
		expect time.Duration
	}{
		{"positive linger unchanged", 5 * time.Second, 5 * time.Second},
		{"0 linger coerced to default", 0, defaultLingerTime},
		{"negative linger coerced to default", -time.Second, defaultLingerTime},
	}
	for i := 0; i < len(tests); i++ {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			opts := &ForwarderOptions{LingerTime: tt.input}
			opts.resolve()
			if opts.LingerTime != tt.expect {
				t.Errorf("failed: %s, expected: %s, got: %s", tt.name, tt.expect, opts.LingerTime)
			}
		})
	}
}

func TestForwarderOptions_partialOptionsKeepLinger(t *testing.T) {
	opts := &ForwarderOptions{Host: "collector"}
	opts.resolve()
	if opts.DisableLinger || opts.LingerTime != defaultLingerTime {
		t.Errorf("expected linger enabled for %s, got: %v/%s", defaultLingerTime, !opts.DisableLinger, opts.LingerTime)
	}
}

func TestForwarderOptions_resolvedDialTimeout(t *testing.T) {
	tests := []struct {
		name   string
		input  time.Duration
		expect time.Duration
	}{
		{"valid (positive) DialTimeout unchanged", time.Minute, time.Minute},
		{"0 duration gets coerced to the default", 0, defaultDialTimeout},
		{"negative duration gets coerced to the default", time.Second * -1, defaultDialTimeout},
	}
	for i := 0; i < len(tests); i++ {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			opts := &ForwarderOptions{DialTimeout: tt.input}
			opts.resolve()
			if opts.DialTimeout != tt.expect {
				t.Errorf("failed: %s, expected: %s, got: %s", tt.name, tt.expect, opts.DialTimeout)
			}
			if d, ok := opts.Dialer.(*net.Dialer); !ok || d.Timeout != tt.expect {
				t.Errorf("failed: %s, default Dialer must use the DialTimeout", tt.name)
			}
		})
	}
}

func TestForwarderOptions_resolvedDefaults(t *testing.T) {
	opts := &ForwarderOptions{}
	opts.resolve()
	if len(opts.Tag) == 0 {
		t.Error("expected a default tag")
	}
	if opts.Encoder == nil || opts.Dialer == nil || opts.ErrorSink == nil {
		t.Errorf("expected Encoder, Dialer and ErrorSink defaults, got: %+v", opts)
	}
}

func TestDefaultForwarderOptions(t *testing.T) {
	opts := DefaultForwarderOptions()
	if opts.DisableLinger || opts.LingerTime != time.Second {
		t.Errorf("expected linger enabled for 1s, got: %v/%s", !opts.DisableLinger, opts.LingerTime)
	}
	if opts.NoDelay {
		t.Error("expected NoDelay to default to false")
	}
	if opts.Encoder.TimeMode != EventTimeMode || opts.Encoder.Compat != CompatRaw {
		t.Errorf("unexpected encoder defaults: %+v", opts.Encoder)
	}
}
