package fluentfwd

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// EncoderPool defines a shared *Encoder pool, used to minimize heap
// allocations. Every Encoder from one pool shares its EncoderContext.
type EncoderPool struct {
	p sync.Pool
	*EncoderOptions
	ctx EncoderContext
}

// NewEncoderPool creates a shared *Encoder pool.
func NewEncoderPool(opts *EncoderOptions) *EncoderPool {
	if opts == nil {
		opts = DefaultEncoderOptions()
	} else {
		opts.resolve()
	}

	ep := &EncoderPool{EncoderOptions: opts, ctx: opts.Context()}
	ep.p = sync.Pool{
		New: func() any {
			enc := NewEncoder(opts.NewBufferCap, ep.ctx)
			enc.p = ep
			return enc
		},
	}

	return ep
}

// Context returns the serialization context of the pool.
func (p *EncoderPool) Context() EncoderContext { return p.ctx }

// Get returns an empty Encoder.
func (p *EncoderPool) Get() *Encoder {
	return p.p.Get().(*Encoder)
}

// Put resets an Encoder and returns it to the shared pool.
func (p *EncoderPool) Put(e *Encoder) {

	// drop if the buffer got too large
	if e.Buffer.Cap() > p.MaxBufferCap {
		return
	}

	// reset for the next usage
	e.Buffer.Reset()
	e.Encoder.Reset(e.Buffer)

	p.p.Put(e)
}

// Encoder provides a msgpack encoder and its underlying bytes.Buffer.
type Encoder struct {
	*bytes.Buffer
	*msgpack.Encoder
	ctx EncoderContext
	p   *EncoderPool

	// scratch for raw headers
	hdr [5]byte
}

// NewEncoder returns a newly allocated Encoder, not bound to any pool.
func NewEncoder(bufferCap int, ctx EncoderContext) *Encoder {
	buf := bytes.NewBuffer(make([]byte, 0, bufferCap))
	return &Encoder{
		Buffer:  buf,
		Encoder: msgpack.NewEncoder(buf),
		ctx:     ctx,
	}
}

// Free returns a pooled encoder to its pool after eagerly resetting it.
func (e *Encoder) Free() {
	if e.p != nil {
		e.p.Put(e)
	}
}

// Context returns the serialization context of the Encoder.
func (e *Encoder) Context() EncoderContext { return e.ctx }

// EncodeEventTime encodes the envelope timestamp. By default it is the custom
// msgpack type defined by Fluent (EventTime). In IntegerTimeMode it is the
// count of whole seconds since the Unix epoch, as an unsigned integer.
func (e *Encoder) EncodeEventTime(t time.Time) error {

	// no timezone support in Fluent spec; ensure time is in UTC
	utc := t.UTC()

	if e.ctx.TimeMode == IntegerTimeMode {
		if err := e.EncodeUint(uint64(utc.Unix())); err != nil {
			return fmt.Errorf("failed to encode timestamp as uint: %w", err)
		}
		return nil
	}

	et := EventTime(utc)
	if err := e.Encode(&et); err != nil {
		return fmt.Errorf("failed to encode timestamp as EventTime: %w", err)
	}

	return nil
}

// EncodeStr encodes s as a msgpack string. In CompatRaw mode the str8 format
// is never used, as it did not exist in the original msgpack spec.
func (e *Encoder) EncodeStr(s string) error {
	if e.ctx.Compat == CompatBinary {
		return e.EncodeString(s)
	}
	if err := e.writeRawHeader(len(s)); err != nil {
		return err
	}
	_, err := e.Buffer.WriteString(s)
	return err
}

// EncodeBin encodes b. In CompatRaw mode it is packed as a raw string.
func (e *Encoder) EncodeBin(b []byte) error {
	if e.ctx.Compat == CompatBinary {
		if err := e.EncodeBytesLen(len(b)); err != nil {
			return err
		}
	} else if err := e.writeRawHeader(len(b)); err != nil {
		return err
	}
	_, err := e.Buffer.Write(b)
	return err
}

func (e *Encoder) writeRawHeader(n int) error {
	switch {
	case n < 32:
		e.hdr[0] = msgpcode.FixedStrLow | byte(n)
		_, err := e.Buffer.Write(e.hdr[:1])
		return err
	case n <= math.MaxUint16:
		e.hdr[0] = msgpcode.Str16
		e.hdr[1] = byte(n >> 8)
		e.hdr[2] = byte(n)
		_, err := e.Buffer.Write(e.hdr[:3])
		return err
	case uint64(n) <= math.MaxUint32:
		e.hdr[0] = msgpcode.Str32
		e.hdr[1] = byte(n >> 24)
		e.hdr[2] = byte(n >> 16)
		e.hdr[3] = byte(n >> 8)
		e.hdr[4] = byte(n)
		_, err := e.Buffer.Write(e.hdr[:5])
		return err
	}
	return fmt.Errorf("raw string too long: %d bytes", n)
}

// EncodeValue encodes v, recursing through nested maps and sequences.
func (e *Encoder) EncodeValue(v Value) error {
	return e.encodeValue(v)
}

// EncodeRecord encodes m as a msgpack map: a header declaring the entry
// count, then each key and value in order.
func (e *Encoder) EncodeRecord(m Map) error {
	return e.encodeMap(m)
}

// EncodeSeq encodes vals as a msgpack array: a header declaring the element
// count, then each element in order.
func (e *Encoder) EncodeSeq(vals []Value) error {
	return e.encodeSeq(vals)
}

func (e *Encoder) encodeValue(v Value) error {
	var err error
	switch v.Kind() {
	case KindNull:
		err = e.EncodeNil()
	case KindBool:
		err = e.EncodeBool(v.Bool())
	case KindInt:
		err = e.EncodeInt(v.Int())
	case KindUint:
		err = e.EncodeUint(v.Uint())
	case KindFloat:
		err = e.EncodeFloat64(v.Float())
	case KindString:
		err = e.EncodeStr(v.Str())
	case KindBytes:
		err = e.EncodeBin(v.Raw())
	case KindMap:
		return e.encodeMap(v.Map())
	case KindSeq:
		return e.encodeSeq(v.Seq())
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedKind, v.Kind())
	}
	if err != nil {
		return &EncodingError{Err: err}
	}
	return nil
}

func (e *Encoder) encodeMap(m Map) error {
	if err := e.EncodeMapLen(len(m)); err != nil {
		return &EncodingError{Err: err}
	}
	for i := range m {
		if err := e.EncodeStr(m[i].Key); err != nil {
			return &EncodingError{Path: "." + m[i].Key, Err: err}
		}
		if err := e.encodeValue(m[i].Value); err != nil {
			return withPathPrefix(err, "."+m[i].Key)
		}
	}
	return nil
}

func (e *Encoder) encodeSeq(vals []Value) error {
	if err := e.EncodeArrayLen(len(vals)); err != nil {
		return &EncodingError{Err: err}
	}
	for i := range vals {
		if err := e.encodeValue(vals[i]); err != nil {
			return withPathPrefix(err, "["+strconv.Itoa(i)+"]")
		}
	}
	return nil
}

// withPathPrefix prepends seg to the key path of an EncodingError.
func withPathPrefix(err error, seg string) error {
	if ee, ok := err.(*EncodingError); ok {
		ee.Path = seg + ee.Path
		return ee
	}
	return &EncodingError{Path: seg, Err: err}
}
