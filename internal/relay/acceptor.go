package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/postalsys/ssgo/internal/banlist"
	"github.com/postalsys/ssgo/internal/logging"
	"github.com/postalsys/ssgo/internal/metrics"
)

// Handler is implemented by ClientRelay and ServerRelay: whatever the
// Acceptor spawns per accepted connection.
type Handler interface {
	Serve(ctx context.Context, conn net.Conn) error
}

// AcceptorConfig configures an Acceptor.
type AcceptorConfig struct {
	Listener net.Listener
	NewRelay func() Handler

	// Bans, when set, rejects a connection before the handshake if the
	// peer's IP is already banned. Server-role acceptors set this;
	// client-role acceptors (listening on loopback for local
	// applications) leave it nil.
	Bans *banlist.Registry

	Logger *slog.Logger

	// Metrics, if non-nil, tracks active/total TCP connection counts.
	Metrics *metrics.Metrics
}

// Acceptor runs the accept loop for one listener: one goroutine per
// connection, tracked so Stop can wait for every in-flight relay to
// finish before returning.
type Acceptor struct {
	cfg    AcceptorConfig
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewAcceptor builds an Acceptor from cfg.
func NewAcceptor(cfg AcceptorConfig) *Acceptor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	return &Acceptor{cfg: cfg}
}

// Start runs the accept loop on its own goroutine and returns immediately.
func (a *Acceptor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.acceptLoop(ctx)
}

func (a *Acceptor) acceptLoop(ctx context.Context) {
	for {
		conn, err := a.cfg.Listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.cfg.Logger.Warn("accept error", logging.KeyError, err.Error())
			continue
		}

		if a.cfg.Bans != nil {
			host := peerIPOf(conn)
			if a.cfg.Bans.IsBanned(host) {
				conn.Close()
				continue
			}
		}

		tuneConn(conn)

		if a.cfg.Metrics != nil {
			a.cfg.Metrics.RecordTCPConnect()
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer conn.Close()
			if a.cfg.Metrics != nil {
				defer a.cfg.Metrics.RecordTCPDisconnect()
			}
			relay := a.cfg.NewRelay()
			if err := relay.Serve(ctx, conn); err != nil {
				a.cfg.Logger.Debug("relay finished", logging.KeyError, err.Error())
			}
		}()
	}
}

// Stop closes the listener and waits for every in-flight relay to return.
func (a *Acceptor) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.cfg.Listener.Close()
	a.wg.Wait()
}
