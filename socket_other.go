//go:build !unix

package fluentfwd

import (
	"net"
	"time"
)

func probeConn(conn net.Conn) bool { return probeRead(conn) }

func setSocketTimeouts(*net.TCPConn, time.Duration, time.Duration) error { return nil }
