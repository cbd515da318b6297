//go:build !unix

package relay

import (
	"net"
	"time"
)

// tuneConn applies the portable subset of socket tuning on GOOS without
// golang.org/x/sys/unix support (Windows): keepalive only, since
// TCP_NODELAY is already Go's net package default for *net.TCPConn.
func tuneConn(conn net.Conn) {
	tc, ok := underlyingTCPConn(conn)
	if !ok {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(30 * time.Second)
}
