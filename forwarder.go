package fluentfwd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Record is one log event handed to the Forwarder. It is consumed by the
// Emit call and not retained.
type Record struct {

	// Time of the event. The zero time is replaced with time.Now().
	Time time.Time

	// Tag routes the event at the collector. When empty, the Forwarder's
	// default tag is used.
	Tag string

	// Fields is the record map of the envelope.
	Fields Map
}

// Forwarder ships Records to a Fluent collector over one TCP connection,
// (re)connecting as needed. Every failure is reported to the ErrorSink; none
// is returned to, or panics in, the caller.
//
// A Forwarder is not safe for concurrent use. Wrap it with NewSyncForwarder
// when more than one goroutine logs through it.
//
//	fwd, err := fluentfwd.NewForwarder(&fluentfwd.ForwarderOptions{
//		Host: "fluentd.internal",
//		Tag:  "app.access",
//	})
//	if err != nil {
//		log.Fatalln(err)
//	}
//	fwd.Start(ctx)
//	defer fwd.Stop()
//
//	fwd.Emit(ctx, fluentfwd.Record{Fields: fluentfwd.Map{
//		fluentfwd.F("message", fluentfwd.String("hello")),
//	}})
type Forwarder struct {
	opts    *ForwarderOptions
	conn    *connection
	metrics *Metrics
	running bool
}

// NewForwarder creates a Forwarder. It does not connect; see Start.
func NewForwarder(opts *ForwarderOptions) (*Forwarder, error) {
	if opts == nil {
		opts = DefaultForwarderOptions()
	}
	opts.resolve()

	f := &Forwarder{opts: opts}

	if opts.Registerer != nil {
		m, err := NewMetrics(opts.Registerer, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to register forwarder metrics: %w", err)
		}
		f.metrics = m
	}

	f.conn = &connection{
		ForwarderOptions: opts,
		addr:             net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		pool:             NewEncoderPool(opts.Encoder),
		metrics:          f.metrics,
		report:           f.report,
	}

	f.debug("created Forwarder with the resolved ForwarderOptions: %+v", opts)

	return f, nil
}

// Start makes the Forwarder accept records. With EagerConnect it also makes
// one connection attempt; a failure is reported, and the next Emit retries.
func (f *Forwarder) Start(ctx context.Context) {
	if f.running {
		return
	}
	f.running = true
	f.debug("forwarder started for %s", f.conn.addr)

	if f.opts.EagerConnect {
		if err := f.conn.ensureConnected(ctx); err != nil {
			f.report(err)
		}
	}
}

// Stop releases the connection. Records emitted after Stop are reported as
// ErrNotRunning until the Forwarder is started again.
func (f *Forwarder) Stop() {
	f.running = false
	if err := f.conn.teardown(); err != nil {
		f.report(err)
	}
	f.debug("forwarder stopped")
}

// Emit sends r synchronously: it ensures the connection, then writes one
// envelope. A failed connection attempt skips the write; it is retried by the
// next call.
func (f *Forwarder) Emit(ctx context.Context, r Record) {
	// stage running when a panic is recovered
	op := OpConnect
	defer func() {
		if p := recover(); p != nil {
			// the stream may hold a partial envelope
			if op == OpEmit {
				f.conn.broken = true
			}
			f.report(&Failure{Op: op, Err: fmt.Errorf("recovered panic: %v", p)})
		}
	}()

	if !f.running {
		f.report(&Failure{Op: OpEmit, Err: ErrNotRunning})
		return
	}

	if err := f.conn.ensureConnected(ctx); err != nil {
		f.report(err)
		return
	}

	tag := r.Tag
	if len(tag) == 0 {
		tag = f.opts.Tag
	}

	// ignore zero record time; Fluent requires one
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}

	op = OpEmit
	if err := f.conn.emit(t, tag, r.Fields); err != nil {
		f.report(err)
		return
	}

	f.metrics.incEmitted()
}

// Connected reports whether a connection is currently held. It does not probe
// the socket.
func (f *Forwarder) Connected() bool { return f.conn.live() }

// Options returns the resolved options.
func (f *Forwarder) Options() *ForwarderOptions { return f.opts }

func (f *Forwarder) report(err error) {
	var fl *Failure
	if errors.As(err, &fl) {
		f.metrics.incFailure(fl.Op)
	}
	f.opts.ErrorSink.Report(err)
}

func (f *Forwarder) debug(format string, args ...any) {
	if !f.opts.Verbose {
		return
	}
	InternalLogger().Sugar().Debugf(format, args...)
}

// SyncForwarder serializes Start, Emit and Stop on one Forwarder with a
// mutex, so that envelopes from concurrent goroutines never interleave on
// the stream.
type SyncForwarder struct {
	mu sync.Mutex
	f  *Forwarder
}

// NewSyncForwarder wraps f. f must not be used directly afterwards.
func NewSyncForwarder(f *Forwarder) *SyncForwarder {
	return &SyncForwarder{f: f}
}

func (s *SyncForwarder) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Start(ctx)
}

func (s *SyncForwarder) Emit(ctx context.Context, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Emit(ctx, r)
}

func (s *SyncForwarder) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Stop()
}

// Options returns the resolved options of the wrapped Forwarder.
func (s *SyncForwarder) Options() *ForwarderOptions { return s.f.opts }

// defaultTag names the event stream after the running executable.
func defaultTag() string {
	exe, err := os.Executable()
	if err != nil {
		return defaultTagWhenUnknown
	}
	name := filepath.Base(exe)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
