package controller

import "net"

// countingConn wraps a net.Conn to report bytes moved in each direction,
// the Go equivalent of the original controller's bytesRead/bytesSend
// signal accumulation — done here at the connection boundary rather than
// inside internal/relay, so internal/relay stays ignorant of metrics.
type countingConn struct {
	net.Conn
	onRead  func(n int)
	onWrite func(n int)
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 && c.onRead != nil {
		c.onRead(n)
	}
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 && c.onWrite != nil {
		c.onWrite(n)
	}
	return n, err
}

// CloseWrite forwards to the underlying connection so internal/relay's
// half-close signaling still works through this wrapper.
func (c *countingConn) CloseWrite() error {
	if hc, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return nil
}

// Unwrap exposes the wrapped connection so internal/relay's socket-tuning
// helper can reach the real *net.TCPConn through this wrapper.
func (c *countingConn) Unwrap() net.Conn {
	return c.Conn
}

// countingListener wraps a net.Listener so every accepted connection
// reports its byte counts through onRead/onWrite.
type countingListener struct {
	net.Listener
	onRead  func(n int)
	onWrite func(n int)
}

func (l *countingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &countingConn{Conn: conn, onRead: l.onRead, onWrite: l.onWrite}, nil
}
