package fluentfwd

// TimeMode selects how the envelope timestamp is serialized.
//   - EventTimeMode packs the Fluent EventTime extension (type 0), with
//     sub-second precision
//   - IntegerTimeMode packs whole Unix seconds as an unsigned integer, for
//     collectors predating EventTime (Fluentd < v0.14)
//     ref: https://github.com/fluent/fluentd/wiki/Forward-Protocol-Specification-v1#eventtime-ext-format
type TimeMode int

const (
	// EventTimeMode indicates the Fluent EventTime extension format.
	EventTimeMode TimeMode = iota

	// IntegerTimeMode indicates integer seconds since the Unix epoch.
	IntegerTimeMode
)

func (m TimeMode) String() string {
	if m == IntegerTimeMode {
		return "integer"
	}
	return "eventtime"
}

// CompatMode selects how strings and binary values are serialized.
//   - CompatRaw follows the original msgpack spec: there is no str8 and no
//     bin family, so byte slices are packed with raw (string) headers
//   - CompatBinary uses the current msgpack spec, including str8 and bin
type CompatMode int

const (
	// CompatRaw packs binary as raw strings. This is the default, as it is
	// understood by every Fluentd version.
	CompatRaw CompatMode = iota

	// CompatBinary packs binary with the bin8/16/32 family.
	CompatBinary
)

func (m CompatMode) String() string {
	if m == CompatBinary {
		return "binary"
	}
	return "raw"
}

// EncoderContext is the serialization context shared by every Encoder of one
// Forwarder. It is fixed for the lifetime of the Forwarder so that successive
// connections to the same collector always see the same encoding.
type EncoderContext struct {
	Compat   CompatMode
	TimeMode TimeMode
}

// EncoderOptions are used to customize the Encoders and the Encoder pool.
//
// NB: The struct pointer options approach is used to be consistent with the
// ForwarderOptions and HandlerOptions.
type EncoderOptions struct {

	// TimeMode controls the timestamp representation. The default is
	// EventTimeMode.
	TimeMode TimeMode

	// Compat controls the string/binary compatibility mode. The default is
	// CompatRaw.
	Compat CompatMode

	// NewBufferCap sets the capacity, in bytes, for newly created Encoder
	// buffers. The minimum value is 64 bytes. The default is 1KiB (1<<10).
	NewBufferCap int

	// MaxBufferCap sets the maximum buffer capacity, in bytes, beyond which an
	// Encoder will not be returned to the shared Encoder pool, to prevent rare,
	// unusually large buffers from staying resident in memory. The minimum
	// value is the NewBufferCap. The default is 8KiB (1<<13).
	MaxBufferCap int
}

const (
	minBufferCap        = 64
	defaultNewBufferCap = 1024
	defaultMaxBufferCap = 8192
)

// DefaultEncoderOptions returns *EncoderOptions with all default values.
func DefaultEncoderOptions() *EncoderOptions {
	return &EncoderOptions{
		NewBufferCap: defaultNewBufferCap,
		MaxBufferCap: defaultMaxBufferCap,
	}
}

// Context returns the EncoderContext described by the options.
func (o *EncoderOptions) Context() EncoderContext {
	return EncoderContext{Compat: o.Compat, TimeMode: o.TimeMode}
}

// resolve ensures that all options have valid values.
func (o *EncoderOptions) resolve() {
	if o.TimeMode != EventTimeMode && o.TimeMode != IntegerTimeMode {
		o.TimeMode = EventTimeMode
	}
	if o.Compat != CompatRaw && o.Compat != CompatBinary {
		o.Compat = CompatRaw
	}
	if o.NewBufferCap == 0 {
		o.NewBufferCap = defaultNewBufferCap
	}
	if o.MaxBufferCap == 0 {
		o.MaxBufferCap = defaultMaxBufferCap
	}
	o.NewBufferCap = max(o.NewBufferCap, minBufferCap)
	o.MaxBufferCap = max(o.NewBufferCap, o.MaxBufferCap)
}
