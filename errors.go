package fluentfwd

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrNotRunning is reported when Emit is called on a Forwarder that has
	// not been started, or that has been stopped.
	ErrNotRunning = errors.New("forwarder is not running")

	// ErrUnsupportedKind is returned when a Value of an unknown kind reaches
	// the Encoder.
	ErrUnsupportedKind = errors.New("unsupported value kind")

	// ErrMapHeaderExpected is returned by DecodeMap when the next value is
	// not a msgpack map.
	ErrMapHeaderExpected = errors.New("map header expected")

	// ErrStringKeyExpected is returned when a decoded map key is not a string.
	ErrStringKeyExpected = errors.New("string expected for a map key")
)

// Op names the stage of the forwarding pipeline that failed.
type Op string

const (
	OpConnect Op = "EnsureConnected"
	OpEmit    Op = "Emit"
	OpEncode  Op = "Encode"
	OpCleanup Op = "Cleanup"
)

// Failure is the error value handed to an ErrorSink.
type Failure struct {
	Op  Op
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("fluentfwd %s - %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// EncodingError reports a value the Encoder could not serialize. Path is the
// chain of map keys and sequence indexes leading to it.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to encode value: %v", e.Err)
	}
	return fmt.Sprintf("failed to encode value at %s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// ErrorSink receives every recoverable failure of a Forwarder. Reports are
// made synchronously, from the goroutine that called into the Forwarder, and
// an implementation must not call back into the same Forwarder.
type ErrorSink interface {
	Report(err error)
}

// ErrorSinkFunc adapts a function to the ErrorSink interface.
type ErrorSinkFunc func(err error)

func (f ErrorSinkFunc) Report(err error) { f(err) }

// ZapErrorSink returns an ErrorSink that logs failures at error level on l.
func ZapErrorSink(l *zap.Logger) ErrorSink {
	return ErrorSinkFunc(func(err error) {
		var f *Failure
		if errors.As(err, &f) {
			l.Error("log forwarding failed", zap.String("op", string(f.Op)), zap.Error(f.Err))
			return
		}
		l.Error("log forwarding failed", zap.Error(err))
	})
}

// internalSink is the default ErrorSink, writing to the InternalLogger.
var internalSink = ErrorSinkFunc(func(err error) {
	ZapErrorSink(InternalLogger()).Report(err)
})
