package fluentfwd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitdabbler/backoff"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	testHost = "127.0.0.1"
	testTag  = "test-tag"
)

// testCollector is an in-process Fluent collector. It decodes every envelope
// it receives and publishes it on envelopeCh.
type testCollector struct {
	listener   net.Listener
	envelopeCh chan *Envelope
	port       int
	accepted   atomic.Int32
	verbose    bool

	mu    sync.Mutex
	conns []net.Conn
}

func newTestCollector(t *testing.T) *testCollector {
	t.Helper()

	// assign port dynamically
	l, err := net.Listen("tcp", net.JoinHostPort(testHost, "0"))
	require.NoError(t, err, "failed to start test collector listener")

	c := &testCollector{
		listener:   l,
		envelopeCh: make(chan *Envelope, 128),
		port:       l.Addr().(*net.TCPAddr).Port,
	}
	t.Cleanup(c.Shutdown)

	go func() {
		c.debug("starting listener")
		for {
			conn, err := l.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					c.debug("shutting down")
					return
				}
				c.debug("listener.Accept() error: %v", err)
				continue
			}
			c.accepted.Add(1)
			c.mu.Lock()
			c.conns = append(c.conns, conn)
			c.mu.Unlock()
			go c.handle(conn)
		}
	}()

	return c
}

func (c *testCollector) handle(conn net.Conn) {
	d := msgpack.NewDecoder(conn)
	for {
		env := new(Envelope)
		if err := d.Decode(env); err != nil {
			c.debug("failed to decode envelope: %v", err)
			break
		}
		c.envelopeCh <- env
	}
	conn.Close()
}

// dropConnections closes every accepted connection, leaving the listener up.
func (c *testCollector) dropConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = nil
}

func (c *testCollector) Shutdown() {
	c.listener.Close()
	c.dropConnections()
}

// next waits for the next envelope.
func (c *testCollector) next(t *testing.T) *Envelope {
	t.Helper()
	select {
	case env := <-c.envelopeCh:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("envelope was not received in time")
		return nil
	}
}

func (c *testCollector) options() *ForwarderOptions {
	opts := DefaultForwarderOptions()
	opts.Host = testHost
	opts.Port = c.port
	opts.Tag = testTag
	return opts
}

func (c *testCollector) debug(format string, args ...any) {
	if !c.verbose {
		return
	}
	InternalLogger().Sugar().Debugf("testCollector: "+format, args...)
}

// waitFor polls cond with backoff until it holds, failing the test after 5s.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	b, err := backoff.New(
		backoff.WithInitialDelay(time.Millisecond),
		backoff.WithExponentialLimit(100*time.Millisecond),
	)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		b.Sleep()
	}
}

// sunk is one record received by a testSink, with its decoded wire form.
type sunk struct {
	rec Record
	env *Envelope
}

// testSink records everything emitted through it rather than send it to a
// collector. Each record is still encoded and decoded, so the wire form is
// checked too. It implements Sink.
type testSink struct {
	t    *testing.T
	pool *EncoderPool

	mu      sync.Mutex
	got     []sunk
	stopped bool
}

func newTestSink(t *testing.T) *testSink {
	return &testSink{t: t, pool: NewEncoderPool(nil)}
}

func (s *testSink) Emit(_ context.Context, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := NewEmitter(&buf, s.pool).Emit(ts, testTag, r.Fields); err != nil {
		s.t.Errorf("testSink failed to encode record: %v", err)
		return
	}

	env := new(Envelope)
	if err := msgpack.NewDecoder(&buf).Decode(env); err != nil {
		s.t.Errorf("testSink failed to decode envelope: %v", err)
		return
	}
	s.got = append(s.got, sunk{rec: r, env: env})
}

func (s *testSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *testSink) records() []Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Map, len(s.got))
	for i := range s.got {
		res[i] = s.got[i].env.Record
	}
	return res
}

func (s *testSink) last(t *testing.T) Map {
	t.Helper()
	recs := s.records()
	require.NotEmpty(t, recs, "no record emitted")
	return recs[len(recs)-1]
}

// toAny converts a Value to plain Go values: maps become map[string]any and
// sequences []any.
func toAny(v Value) any {
	switch v.Kind() {
	case KindBool:
		return v.Bool()
	case KindInt:
		return v.Int()
	case KindUint:
		return v.Uint()
	case KindFloat:
		return v.Float()
	case KindString:
		return v.Str()
	case KindBytes:
		return v.Raw()
	case KindMap:
		m := make(map[string]any, len(v.Map()))
		for _, f := range v.Map() {
			m[f.Key] = toAny(f.Value)
		}
		return m
	case KindSeq:
		s := make([]any, len(v.Seq()))
		for i, e := range v.Seq() {
			s[i] = toAny(e)
		}
		return s
	}
	return nil
}

// errorRecorder is an ErrorSink that keeps every report.
type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// ops lists the Op of every reported Failure, in order.
func (r *errorRecorder) ops() []Op {
	var ops []Op
	for _, err := range r.all() {
		var f *Failure
		if errors.As(err, &f) {
			ops = append(ops, f.Op)
		} else {
			ops = append(ops, "")
		}
	}
	return ops
}

// fakeConn is an in-memory net.Conn. It implements Connected, so tests
// control whether the connection looks alive.
type fakeConn struct {
	name   string
	events *[]string

	buf      bytes.Buffer
	alive    bool
	writeErr error
	closeErr error
	closes   int
}

func (c *fakeConn) Read([]byte) (int, error) { return 0, errors.New("fakeConn: no data") }

func (c *fakeConn) Write(b []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.buf.Write(b)
}

func (c *fakeConn) Close() error {
	c.closes++
	c.alive = false
	*c.events = append(*c.events, "close "+c.name)
	return c.closeErr
}

func (c *fakeConn) Connected() bool                  { return c.alive }
func (c *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

// envelopes decodes everything written to the connection.
func (c *fakeConn) envelopes(t *testing.T) []*Envelope {
	t.Helper()
	var res []*Envelope
	dec := msgpack.NewDecoder(bytes.NewReader(c.buf.Bytes()))
	for {
		env := new(Envelope)
		if err := dec.Decode(env); err != nil {
			break
		}
		res = append(res, env)
	}
	return res
}

// fakeDialer hands out fakeConns, recording each dial in events.
type fakeDialer struct {
	events []string
	conns  []*fakeConn
	dials  int
	err    error

	// wrap, when set, decorates each fakeConn before it is returned
	wrap func(*fakeConn) net.Conn
}

func (d *fakeDialer) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	d.dials++
	d.events = append(d.events, "dial")
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{
		name:   "conn" + string(rune('0'+len(d.conns))),
		events: &d.events,
		alive:  true,
	}
	d.conns = append(d.conns, c)
	if d.wrap != nil {
		return d.wrap(c), nil
	}
	return c, nil
}

func (d *fakeDialer) last() *fakeConn { return d.conns[len(d.conns)-1] }

// newFakeForwarder returns a started Forwarder wired to a fakeDialer.
func newFakeForwarder(t *testing.T) (*Forwarder, *fakeDialer, *errorRecorder) {
	t.Helper()
	d := &fakeDialer{}
	errs := &errorRecorder{}

	opts := DefaultForwarderOptions()
	opts.Tag = testTag
	opts.Dialer = d
	opts.ErrorSink = errs

	f, err := NewForwarder(opts)
	require.NoError(t, err)
	f.Start(context.Background())
	return f, d, errs
}
