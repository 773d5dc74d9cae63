package fluentfwd

import (
	"context"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dialer opens the connection to the collector. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ForwarderOptions are used to customize the Forwarder.
//
// # Invalid options are coerced
//
// Durations that map to socket options are given as time.Duration; the
// config package converts the millisecond values used in config files.
type ForwarderOptions struct {

	// Host of the Fluent collector. The default is "127.0.0.1".
	Host string

	// Port of the Fluent collector. The default is 24224.
	Port int

	// Tag is used for every record that does not carry its own tag. The
	// default is the base name of the running executable.
	Tag string

	// NoDelay disables Nagle's algorithm on the TCP connection. The default
	// is false, so small envelopes may be coalesced by the kernel.
	NoDelay bool

	// SendBufferSize and ReceiveBufferSize size the socket buffers. The
	// SendBufferSize also sizes the buffered stream over the connection. The
	// default for both is 8192 bytes.
	SendBufferSize    int
	ReceiveBufferSize int

	// SendTimeout bounds each envelope write, and ReceiveTimeout bounds
	// socket reads. The default for both is 1s.
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration

	// DisableLinger turns SO_LINGER off, so Close returns at once and the
	// kernel sends unsent data in the background. By default linger is on.
	DisableLinger bool

	// LingerTime bounds how long Close waits for unsent data while linger is
	// on. It is rounded up to whole seconds. The default is 1s.
	LingerTime time.Duration

	// DialTimeout bounds one connection attempt. The default is 3s.
	DialTimeout time.Duration

	// EagerConnect makes Start attempt the first connection instead of
	// waiting for the first Emit.
	EagerConnect bool

	// Encoder customizes the serialization context and the Encoder pool.
	Encoder *EncoderOptions

	// Dialer replaces the default *net.Dialer.
	Dialer Dialer

	// ErrorSink receives every failure. The default logs to the
	// InternalLogger.
	ErrorSink ErrorSink

	// Registerer, when set, registers the forwarder's Prometheus metrics.
	Registerer prometheus.Registerer

	// Verbose controls whether debug logs are written to the internal logger.
	Verbose bool
}

const (
	defaultHost           = "127.0.0.1"
	defaultPort           = 24224
	defaultBufferSize     = 8192
	defaultSocketTimeout  = time.Second
	defaultLingerTime     = time.Second
	defaultDialTimeout    = time.Second * 3
	defaultTagWhenUnknown = "fluentfwd"
)

// DefaultForwarderOptions returns *ForwarderOptions with all default values.
func DefaultForwarderOptions() *ForwarderOptions {
	return &ForwarderOptions{
		Host:              defaultHost,
		Port:              defaultPort,
		Tag:               defaultTag(),
		SendBufferSize:    defaultBufferSize,
		ReceiveBufferSize: defaultBufferSize,
		SendTimeout:       defaultSocketTimeout,
		ReceiveTimeout:    defaultSocketTimeout,
		LingerTime:        defaultLingerTime,
		DialTimeout:       defaultDialTimeout,
		Encoder:           DefaultEncoderOptions(),
	}
}

// resolve ensures that all options have valid values.
func (o *ForwarderOptions) resolve() {

	if len(o.Host) == 0 {
		o.Host = defaultHost
	}

	// constrain to valid range
	if o.Port < 1 || o.Port > 65535 {
		o.Port = defaultPort
	}

	if len(o.Tag) == 0 {
		o.Tag = defaultTag()
	}

	// must be positive
	if o.SendBufferSize < 1 {
		o.SendBufferSize = defaultBufferSize
	}
	if o.ReceiveBufferSize < 1 {
		o.ReceiveBufferSize = defaultBufferSize
	}

	// can be negative (no timeout) or positive, but not 0
	if o.SendTimeout == 0 {
		o.SendTimeout = defaultSocketTimeout
	}
	if o.ReceiveTimeout == 0 {
		o.ReceiveTimeout = defaultSocketTimeout
	}

	// must be positive
	if o.LingerTime < 1 {
		o.LingerTime = defaultLingerTime
	}

	// must be positive
	if o.DialTimeout < 1 {
		o.DialTimeout = defaultDialTimeout
	}

	if o.Encoder == nil {
		o.Encoder = DefaultEncoderOptions()
	} else {
		o.Encoder.resolve()
	}

	if o.Dialer == nil {
		o.Dialer = &net.Dialer{Timeout: o.DialTimeout}
	}

	if o.ErrorSink == nil {
		o.ErrorSink = internalSink
	}
}
