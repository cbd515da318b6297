package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/postalsys/ssgo/internal/banlist"
	"github.com/postalsys/ssgo/internal/cipher"
	"github.com/postalsys/ssgo/internal/logging"
	"github.com/postalsys/ssgo/internal/metrics"
	"github.com/postalsys/ssgo/internal/ssaddr"

	"golang.org/x/time/rate"
)

// ServerConfig wires a ServerRelay to the collaborators it needs to
// decrypt inbound traffic, resolve and dial the real destination, and
// apply the anti-probing ban policy.
type ServerConfig struct {
	Session *cipher.Session

	// Dial connects to the destination parsed out of the decrypted
	// header. Defaults to net.Dialer.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)

	// Bans is optional; when set, a malformed header or decrypt failure
	// records a failure against the peer IP, and the registry decides
	// whether that escalates to a ban for future connections.
	Bans *banlist.Registry

	// Limiter, if non-nil, caps aggregate relay throughput for every
	// connection this ServerRelay serves.
	Limiter *rate.Limiter

	// Timeout is the per-connection inactivity timer: idle longer than
	// this on both directions closes the relay. Zero disables it.
	Timeout time.Duration

	Logger *slog.Logger

	// Metrics, if non-nil, observes dial latency, failure stage, and
	// header-failure/ban escalation.
	Metrics *metrics.Metrics
}

// ServerRelay handles one inbound Shadowsocks connection: it builds a
// decrypting reader and encrypting writer over conn, reads the
// destination header, dials it, and relays plaintext between the two.
type ServerRelay struct {
	cfg   ServerConfig
	stage Stage
}

// NewServerRelay builds a ServerRelay from cfg, filling in defaults for an
// unset Dial or Logger.
func NewServerRelay(cfg ServerConfig) *ServerRelay {
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	return &ServerRelay{cfg: cfg, stage: StageInit}
}

// Serve drives conn through the server-role state machine until the
// connection is torn down.
func (r *ServerRelay) Serve(ctx context.Context, conn net.Conn) error {
	defer func() { r.stage = StageDestroyed }()
	r.stage = StageInit

	peerIP := peerIPOf(conn)

	prefixLen := r.cfg.Session.PrefixLen()
	prefix := make([]byte, prefixLen)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return err
	}

	decReader := r.cfg.Session.Reader(io.MultiReader(bytes.NewReader(prefix), conn))

	r.stage = StageDNS
	dest, err := readShadowsocksHeader(decReader)
	if err != nil {
		if !errors.Is(err, io.EOF) && r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordHeaderFailure()
		}
		r.recordHeaderFailure(peerIP, prefix, err)
		return fmt.Errorf("relay: read shadowsocks header from %s: %w", peerIP, err)
	}

	if err := ssaddr.ResolveBlocking(ctx, dest); err != nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordTCPConnectError("resolve")
		}
		return fmt.Errorf("relay: resolve %s: %w", dest.Text, err)
	}

	r.stage = StageConnecting
	target := net.JoinHostPort(dest.FirstIP().String(), fmt.Sprintf("%d", dest.Port))
	dialStart := time.Now()
	remote, err := r.cfg.Dial(ctx, "tcp", target)
	if err != nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordTCPConnectError("dial")
		}
		return fmt.Errorf("relay: dial destination %s: %w", target, err)
	}
	defer remote.Close()
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordTCPConnectLatency(time.Since(dialStart).Seconds())
	}

	r.stage = StageStream
	r.cfg.Logger.Debug("server relay streaming", logging.KeyAddress, dest.String(), logging.KeyRemoteAddr, peerIP)

	encWriter := r.cfg.Session.Writer(conn)
	local := readWriter{r: decReader, w: encWriter, conn: conn}
	return pipe(ctx, local, remote, r.cfg.Limiter, r.cfg.Timeout)
}

// recordHeaderFailure reports a malformed-header event to the ban
// registry, unless the failure is a clean disconnect (io.EOF) right after
// the IV/salt prefix, before any byte of the header itself arrived, which
// is ordinary port-scan noise rather than an attempt to probe the
// protocol. A disconnect before the full prefix arrives never reaches
// here: Serve returns on that read error first.
func (r *ServerRelay) recordHeaderFailure(peerIP string, prefix []byte, err error) {
	if r.cfg.Bans == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		return
	}
	banned := r.cfg.Bans.RecordFailure(peerIP, hex.EncodeToString(prefix))
	if banned && r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordBan()
	}
}

func peerIPOf(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
