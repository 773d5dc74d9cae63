package fluentfwd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// connection owns the socket to the collector, the buffered stream derived
// from it, and the Emitter bound to that stream. It is either absent
// (conn == nil) or live; all three resources are created and released
// together.
//
// connection does no locking. Callers serialize access.
type connection struct {
	*ForwarderOptions
	addr    string
	pool    *EncoderPool
	metrics *Metrics
	report  func(error)

	conn    net.Conn
	stream  *bufio.Writer
	emitter *Emitter

	// set when a write fails, so the next ensureConnected rebuilds
	broken bool
}

// connStater is implemented by connections that track their own state.
type connStater interface {
	Connected() bool
}

// probeWait bounds the portable liveness probe read.
const probeWait = time.Millisecond

func (c *connection) live() bool { return c.conn != nil }

// ensureConnected makes at most one connection attempt. It is a no-op when
// the current connection is live. A connection that reports itself closed is
// torn down first; a cleanup failure is reported but does not prevent the
// reconnect.
func (c *connection) ensureConnected(ctx context.Context) error {
	if c.conn != nil {
		if c.connected() {
			return nil
		}
		c.debug("connection to %s lost; tearing down", c.addr)
		if err := c.teardown(); err != nil {
			c.report(err)
		}
	}
	return c.connect(ctx)
}

// connected reports whether the live connection is still usable.
func (c *connection) connected() bool {
	if c.conn == nil || c.broken {
		return false
	}
	if s, ok := c.conn.(connStater); ok {
		return s.Connected()
	}
	return probeConn(c.conn)
}

// connect dials with ctx's values but not its cancellation: logging under a
// finished request context must still reach the collector. DialTimeout is the
// only bound.
func (c *connection) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.DialTimeout)
	defer cancel()

	c.debug("dialing Fluent collector at %s", c.addr)

	conn, err := c.Dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return &Failure{Op: OpConnect, Err: fmt.Errorf("failed to dial %s: %w", c.addr, err)}
	}

	if err = configureConn(conn, c.ForwarderOptions); err != nil {
		// never keep a half configured socket
		if cerr := conn.Close(); cerr != nil {
			c.report(&Failure{Op: OpCleanup, Err: cerr})
		}
		return &Failure{Op: OpConnect, Err: fmt.Errorf("failed to configure socket to %s: %w", c.addr, err)}
	}

	c.conn = conn
	c.stream = bufio.NewWriterSize(conn, c.SendBufferSize)
	c.emitter = NewEmitter(c.stream, c.pool)
	c.broken = false
	c.metrics.setConnected(true)

	c.debug("connected to Fluent collector at %s", c.addr)
	return nil
}

// emit writes one envelope on the live connection. A write failure marks the
// connection broken; an encoding failure leaves it untouched, as nothing was
// written.
func (c *connection) emit(t time.Time, tag string, fields Map) error {
	if c.SendTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.SendTimeout)); err != nil {
			c.broken = true
			return &Failure{Op: OpEmit, Err: err}
		}
	}

	err := c.emitter.Emit(t, tag, fields)
	if err == nil {
		return nil
	}

	var ee *EncodingError
	if errors.As(err, &ee) {
		return &Failure{Op: OpEncode, Err: err}
	}

	c.broken = true
	return &Failure{Op: OpEmit, Err: err}
}

// teardown releases the stream and the socket and always resets the
// connection to absent, even when closing fails.
func (c *connection) teardown() error {
	if c.conn == nil {
		return nil
	}

	defer func() {
		c.conn = nil
		c.stream = nil
		c.emitter = nil
		c.broken = false
		c.metrics.setConnected(false)
	}()

	if err := c.conn.Close(); err != nil {
		return &Failure{Op: OpCleanup, Err: err}
	}
	return nil
}

// configureConn applies the socket options. Only TCP connections have them;
// anything else returned by a custom Dialer is used as is.
func configureConn(conn net.Conn, opts *ForwarderOptions) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	linger := -1
	if !opts.DisableLinger {
		linger = int((opts.LingerTime + time.Second - 1) / time.Second)
	}

	return errors.Join(
		tcp.SetNoDelay(opts.NoDelay),
		tcp.SetWriteBuffer(opts.SendBufferSize),
		tcp.SetReadBuffer(opts.ReceiveBufferSize),
		tcp.SetLinger(linger),
		setSocketTimeouts(tcp, opts.SendTimeout, opts.ReceiveTimeout),
	)
}

// probeRead detects a peer close on any net.Conn by attempting a very short
// read. Data sent by the collector, if any, is discarded.
func probeRead(conn net.Conn) bool {
	if err := conn.SetReadDeadline(time.Now().Add(probeWait)); err != nil {
		return false
	}
	defer conn.SetReadDeadline(time.Time{})

	var b [1]byte
	_, err := conn.Read(b[:])
	if err == nil {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *connection) debug(format string, args ...any) {
	if !c.Verbose {
		return
	}
	InternalLogger().Sugar().Debugf(format, args...)
}
