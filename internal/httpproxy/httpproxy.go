// Package httpproxy implements a minimal CONNECT-only HTTP proxy front
// end: it accepts plain HTTP CONNECT requests and tunnels them through
// the local SOCKS5 acceptor the Controller already runs, so a browser
// configured for an HTTP proxy can use the same Shadowsocks tunnel a
// SOCKS5-aware application would.
package httpproxy

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/postalsys/ssgo/internal/logging"
	"golang.org/x/net/proxy"
)

// halfCloser is implemented by *net.TCPConn and similar; CloseWrite lets
// one direction of a relay signal EOF without tearing down the other.
type halfCloser interface {
	CloseWrite() error
}

// Server accepts HTTP CONNECT requests and tunnels them through a local
// SOCKS5 proxy.
type Server struct {
	SOCKS5Addr string // "host:port" of the local SOCKS5 acceptor
	Logger     *slog.Logger
}

// NewServer builds a Server that dials socks5Addr for every CONNECT
// request.
func NewServer(socks5Addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Server{SOCKS5Addr: socks5Addr, Logger: logger}
}

// Serve accepts connections off ln until it's closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		return
	}

	if req.Method != http.MethodConnect {
		fmt.Fprintf(conn, "HTTP/1.1 405 Method Not Allowed\r\n\r\n")
		return
	}

	dialer, err := proxy.SOCKS5("tcp", s.SOCKS5Addr, nil, proxy.Direct)
	if err != nil {
		s.Logger.Warn("httpproxy: build socks5 dialer", logging.KeyError, err.Error())
		fmt.Fprintf(conn, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
		return
	}

	target, err := dialer.Dial("tcp", req.Host)
	if err != nil {
		s.Logger.Debug("httpproxy: dial through socks5", logging.KeyAddress, req.Host, logging.KeyError, err.Error())
		fmt.Fprintf(conn, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
		return
	}
	defer target.Close()

	if _, err := fmt.Fprintf(conn, "HTTP/1.0 200 Connection established\r\n\r\n"); err != nil {
		return
	}

	// br may have buffered bytes read past the CONNECT request's blank
	// line (pipelined TLS ClientHello, typically); replay them before
	// relaying conn's raw bytes.
	if err := relay(bufConn{Reader: br, Conn: conn}, target); err != nil {
		s.Logger.Debug("httpproxy: relay ended", logging.KeyError, err.Error())
	}
}

// bufConn lets a bufio.Reader's buffered-but-unconsumed bytes flow
// through Read while Write and the rest of net.Conn still go straight to
// the underlying connection.
type bufConn struct {
	*bufio.Reader
	net.Conn
}

func (b bufConn) Read(p []byte) (int, error) { return b.Reader.Read(p) }

// relay copies data bidirectionally between client and target, signaling
// half-close on whichever connection type supports it once its read side
// hits EOF.
func relay(client io.ReadWriter, target net.Conn) error {
	errCh := make(chan error, 2)

	go func() {
		_, err := io.Copy(target, client)
		if hc, ok := target.(halfCloser); ok {
			hc.CloseWrite()
		}
		errCh <- err
	}()

	go func() {
		_, err := io.Copy(client, target)
		if hc, ok := client.(halfCloser); ok {
			hc.CloseWrite()
		}
		errCh <- err
	}()

	err1 := <-errCh
	err2 := <-errCh
	if err1 != nil {
		return err1
	}
	return err2
}
