package relay

import "net"

// underlyingTCPConn unwraps conn through any Unwrap() net.Conn layers
// (countingConn and similar instrumentation wrappers) looking for the
// underlying *net.TCPConn, so socket tuning still reaches the real
// descriptor even when the Acceptor's Listener wraps connections.
func underlyingTCPConn(conn net.Conn) (*net.TCPConn, bool) {
	for {
		if tc, ok := conn.(*net.TCPConn); ok {
			return tc, true
		}
		u, ok := conn.(interface{ Unwrap() net.Conn })
		if !ok {
			return nil, false
		}
		conn = u.Unwrap()
	}
}
