//go:build unix

package fluentfwd

import (
	"errors"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// probeConn peeks at the socket without blocking and without consuming data.
// A zero-length read means the collector closed its end.
func probeConn(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return probeRead(conn)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	alive := true
	var b [1]byte
	err = rc.Read(func(fd uintptr) bool {
		n, _, rerr := unix.Recvfrom(int(fd), b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK || rerr == unix.EINTR:
		case rerr != nil:
			alive = false
		case n == 0:
			alive = false
		}
		return true
	})

	return err == nil && alive
}

// setSocketTimeouts sets SO_SNDTIMEO and SO_RCVTIMEO. The Go runtime uses
// non-blocking sockets, so writes are additionally bounded by deadlines.
func setSocketTimeouts(conn *net.TCPConn, send, recv time.Duration) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var serr error
	err = rc.Control(func(fd uintptr) {
		if send > 0 {
			tv := unix.NsecToTimeval(send.Nanoseconds())
			serr = errors.Join(serr, unix.SetsockoptTimeval(int(fd), unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv))
		}
		if recv > 0 {
			tv := unix.NsecToTimeval(recv.Nanoseconds())
			serr = errors.Join(serr, unix.SetsockoptTimeval(int(fd), unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv))
		}
	})

	return errors.Join(err, serr)
}
