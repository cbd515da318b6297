//go:build unix

package relay

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// tuneConn applies low-delay socket options to an accepted TCP
// connection: a short keepalive period (the portable net.TCPConn API
// covers this everywhere) plus an explicit TCP_NODELAY set through a raw
// setsockopt call on the socket's descriptor.
func tuneConn(conn net.Conn) {
	tc, ok := underlyingTCPConn(conn)
	if !ok {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(30 * time.Second)

	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
}
