package fluentfwd

import (
	"fmt"
	"io"
	"time"
)

// flusher is implemented by buffered streams, such as *bufio.Writer.
type flusher interface {
	Flush() error
}

// Emitter writes Fluent Message mode envelopes onto one byte stream.
//
// Each envelope is fully serialized into a pooled Encoder before any byte is
// written, so an encoding failure never leaves a partial envelope on the
// stream. An Emitter is not safe for concurrent use.
type Emitter struct {
	w    io.Writer
	pool *EncoderPool
}

// NewEmitter binds an Emitter to w. Encoders, and therefore the
// EncoderContext, come from pool.
func NewEmitter(w io.Writer, pool *EncoderPool) *Emitter {
	return &Emitter{w: w, pool: pool}
}

// Emit writes [tag, time, fields] to the stream, then flushes it if it is
// buffered. Errors are returned as is; the Emitter does not retry.
func (em *Emitter) Emit(t time.Time, tag string, fields Map) error {
	enc := em.pool.Get()
	defer enc.Free()

	if err := encodeEnvelope(enc, t, tag, fields); err != nil {
		return err
	}

	if _, err := em.w.Write(enc.Bytes()); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}

	if f, ok := em.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush envelope: %w", err)
		}
	}

	return nil
}

// encodeEnvelope serializes one Message mode event into enc. A panic while
// encoding is returned as an EncodingError.
func encodeEnvelope(enc *Encoder, t time.Time, tag string, fields Map) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &EncodingError{Path: "envelope", Err: fmt.Errorf("recovered panic: %v", p)}
		}
	}()

	if err := enc.EncodeArrayLen(3); err != nil {
		return &EncodingError{Path: "envelope", Err: err}
	}
	if err := enc.EncodeStr(tag); err != nil {
		return &EncodingError{Path: "tag", Err: err}
	}
	if err := enc.EncodeEventTime(t); err != nil {
		return &EncodingError{Path: "time", Err: err}
	}
	if err := enc.EncodeRecord(fields); err != nil {
		return withPathPrefix(err, "record")
	}
	return nil
}
