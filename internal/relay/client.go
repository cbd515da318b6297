package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/postalsys/ssgo/internal/cipher"
	"github.com/postalsys/ssgo/internal/logging"
	"github.com/postalsys/ssgo/internal/metrics"
	"github.com/postalsys/ssgo/internal/ssaddr"

	"golang.org/x/time/rate"
)

// ClientConfig wires a ClientRelay to the Shadowsocks server it tunnels
// into and to the collaborators (dialer, UDP relay address, logger) it
// needs but does not own.
type ClientConfig struct {
	ServerHost string
	ServerPort uint16
	Session    *cipher.Session

	// Dial connects to the Shadowsocks server. Defaults to net.Dialer.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)

	// UDPRelayAddr, if non-nil, returns the bound local address of the
	// client-role UDP relay so a UDP ASSOCIATE reply can point at it. A
	// false ok means UDP is not enabled and UDP ASSOCIATE is refused.
	UDPRelayAddr func() (ip net.IP, port uint16, ok bool)

	// Limiter, if non-nil, caps aggregate relay throughput for every
	// connection this ClientRelay serves.
	Limiter *rate.Limiter

	// Timeout is the per-connection inactivity timer: idle longer than
	// this on both directions closes the relay. Zero disables it.
	Timeout time.Duration

	Logger *slog.Logger

	// Metrics, if non-nil, observes dial latency and failure stage.
	Metrics *metrics.Metrics
}

// ClientRelay handles one local SOCKS5 connection: it authenticates
// (no-auth only), parses the CONNECT or UDP ASSOCIATE request, and for
// CONNECT dials the Shadowsocks server and relays encrypted traffic
// between the local application and it.
type ClientRelay struct {
	cfg   ClientConfig
	stage Stage
}

// NewClientRelay builds a ClientRelay from cfg, filling in defaults for an
// unset Dial or Logger.
func NewClientRelay(cfg ClientConfig) *ClientRelay {
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	return &ClientRelay{cfg: cfg, stage: StageInit}
}

// Serve drives conn through the client-role state machine until the
// connection is torn down. Serve never closes conn itself, on any path;
// the caller (the Acceptor's per-connection goroutine) closes it once
// Serve returns. In STREAM, pipe only half-closes each side's write
// direction as its copy finishes.
func (r *ClientRelay) Serve(ctx context.Context, conn net.Conn) error {
	defer func() { r.stage = StageDestroyed }()

	greeting := make([]byte, 1)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return err
	}
	if greeting[0] != socks5Version {
		// Not a SOCKS5 client (likely SOCKS4); reject with the historical
		// 2-byte rejection and let the peer close.
		conn.Write([]byte{0x00, 0x5B})
		io.Copy(io.Discard, conn)
		return fmt.Errorf("relay: unsupported socks version %d", greeting[0])
	}

	r.stage = StageAddr
	nmethods := make([]byte, 1)
	if _, err := io.ReadFull(conn, nmethods); err != nil {
		return err
	}
	methods := make([]byte, nmethods[0])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return err
	}
	if _, err := conn.Write([]byte{socks5Version, 0x00}); err != nil {
		return err
	}

	reqHeader := make([]byte, 3)
	if _, err := io.ReadFull(conn, reqHeader); err != nil {
		return err
	}
	cmd := reqHeader[1]

	destAddr, err := readSOCKS5Address(conn)
	if err != nil {
		writeSOCKS5Reply(conn, replyAddrNotSupported, nil, 0)
		return err
	}

	switch cmd {
	case cmdConnect:
		return r.handleConnect(ctx, conn, destAddr)
	case cmdUDPAssociate:
		return r.handleUDPAssociate(conn)
	default:
		writeSOCKS5Reply(conn, replyCmdNotSupported, nil, 0)
		return fmt.Errorf("relay: unsupported socks5 command %d", cmd)
	}
}

func (r *ClientRelay) handleConnect(ctx context.Context, local net.Conn, dest *ssaddr.Address) error {
	r.stage = StageDNS
	serverAddr := net.JoinHostPort(r.cfg.ServerHost, fmt.Sprintf("%d", r.cfg.ServerPort))

	dialStart := time.Now()
	remote, err := r.cfg.Dial(ctx, "tcp", serverAddr)
	if err != nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordTCPConnectError("dial")
		}
		writeSOCKS5Reply(local, replyHostUnreachable, nil, 0)
		return fmt.Errorf("relay: dial shadowsocks server %s: %w", serverAddr, err)
	}
	defer remote.Close()
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordTCPConnectLatency(time.Since(dialStart).Seconds())
	}

	r.stage = StageConnecting
	header, err := ssaddr.Pack(dest)
	if err != nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordTCPConnectError("header")
		}
		writeSOCKS5Reply(local, replyAddrNotSupported, nil, 0)
		return fmt.Errorf("relay: pack destination header: %w", err)
	}

	encWriter := r.cfg.Session.Writer(remote)
	if _, err := encWriter.Write(header); err != nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordTCPConnectError("header")
		}
		writeSOCKS5Reply(local, replyServerFailure, nil, 0)
		return fmt.Errorf("relay: write shadowsocks header: %w", err)
	}

	if err := writeSOCKS5Reply(local, replySucceeded, net.IPv4(0, 0, 0, 0), 0x1010); err != nil {
		return err
	}

	r.stage = StageStream
	r.cfg.Logger.Debug("client relay streaming", logging.KeyAddress, dest.String())

	decReader := r.cfg.Session.Reader(remote)
	return pipe(ctx, local, readWriter{r: decReader, w: encWriter, conn: remote}, r.cfg.Limiter, r.cfg.Timeout)
}

func (r *ClientRelay) handleUDPAssociate(conn net.Conn) error {
	r.stage = StageUDPAssoc
	if r.cfg.UDPRelayAddr == nil {
		writeSOCKS5Reply(conn, replyCmdNotSupported, nil, 0)
		return fmt.Errorf("relay: udp associate requested but udp relay disabled")
	}
	ip, port, ok := r.cfg.UDPRelayAddr()
	if !ok {
		writeSOCKS5Reply(conn, replyCmdNotSupported, nil, 0)
		return fmt.Errorf("relay: udp associate requested but udp relay not ready")
	}
	if err := writeSOCKS5Reply(conn, replySucceeded, ip, port); err != nil {
		return err
	}

	// Per RFC 1928, the association lives exactly as long as this TCP
	// connection; block on it and let the UDP relay's own cache handle
	// teardown once reads here fail.
	_, err := io.Copy(io.Discard, conn)
	return err
}

// readWriter composes an independently-built encrypting writer and
// decrypting reader (they wrap the same underlying conn but carry
// independent IV/salt state, see cipher.Session) into a single
// io.ReadWriter so pipe can treat the remote side uniformly.
type readWriter struct {
	r    io.Reader
	w    io.Writer
	conn net.Conn
}

func (rw readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

// SetReadDeadline forwards to the underlying connection so resetIdle can
// drive the inactivity timer through the encrypt/decrypt wrapping.
func (rw readWriter) SetReadDeadline(t time.Time) error {
	return rw.conn.SetReadDeadline(t)
}

// CloseWrite forwards to the underlying connection so pipe's half-close
// signaling still reaches the real socket despite the encrypt/decrypt
// wrapping in between.
func (rw readWriter) CloseWrite() error {
	if hc, ok := rw.conn.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return nil
}
