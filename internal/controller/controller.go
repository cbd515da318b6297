// Package controller wires a loaded profile into a running Shadowsocks
// endpoint: the TCP acceptor, the UDP relay, the optional HTTP-proxy front
// end, the ban registry, and the metrics that observe all of them. It is
// the Go analogue of the original controller's start()/stop() pair.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/postalsys/ssgo/internal/banlist"
	"github.com/postalsys/ssgo/internal/cipher"
	"github.com/postalsys/ssgo/internal/httpproxy"
	"github.com/postalsys/ssgo/internal/logging"
	"github.com/postalsys/ssgo/internal/metrics"
	"github.com/postalsys/ssgo/internal/profile"
	"github.com/postalsys/ssgo/internal/relay"
	"github.com/postalsys/ssgo/internal/ssaddr"
	"github.com/postalsys/ssgo/internal/udprelay"

	"golang.org/x/time/rate"
)

// Options configures a Controller beyond what the profile itself carries.
type Options struct {
	// IsLocal selects client role (SOCKS5 + HTTP proxy on Profile's local
	// address) versus server role (public Shadowsocks endpoint).
	IsLocal bool

	// AutoBan enables the server-role anti-probing ban registry. Ignored
	// in client role, which never sees untrusted peers.
	AutoBan bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Controller owns every listener and background goroutine for one running
// profile. It is not reusable across a Start/Stop cycle: build a fresh one
// to restart.
type Controller struct {
	profile *profile.Profile
	opts    Options
	session *cipher.Session
	bans    *banlist.Registry
	limiter *rate.Limiter

	serverAddr *ssaddr.Address

	tcpAcceptor *relay.Acceptor
	tcpListener net.Listener

	udpListener net.PacketConn
	clientUDP   *udprelay.ClientRelay
	serverUDP   *udprelay.ServerRelay

	httpListener net.Listener
	httpServer   *httpproxy.Server

	bytesReceived atomic.Uint64
	bytesSent     atomic.Uint64
}

// New builds a Controller for p. It derives the cipher session up front so
// a bad method/password combination fails at construction, before any
// socket is opened.
func New(p *profile.Profile, opts Options) (*Controller, error) {
	session, err := cipher.NewSession(p.Method, p.Password)
	if err != nil {
		return nil, fmt.Errorf("controller: build cipher session: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}

	var bans *banlist.Registry
	if !opts.IsLocal && opts.AutoBan {
		bans = banlist.New()
	}

	return &Controller{
		profile: p,
		opts:    opts,
		session: session,
		bans:    bans,
		limiter: relay.NewLimiter(p.RateLimitBytesPerSec),
	}, nil
}

// Addr returns the bound TCP listener's address: the SOCKS5 address in
// client role (an ephemeral port when HTTPProxy is set, since the HTTP
// front end then takes the configured local port; HTTPAddr returns that
// one), or the public Shadowsocks address in server role. Nil before Start
// succeeds.
func (c *Controller) Addr() net.Addr {
	if c.tcpListener == nil {
		return nil
	}
	return c.tcpListener.Addr()
}

// HTTPAddr returns the HTTP proxy front end's bound address, or nil if
// HTTPProxy is not enabled.
func (c *Controller) HTTPAddr() net.Addr {
	if c.httpListener == nil {
		return nil
	}
	return c.httpListener.Addr()
}

// BytesReceived returns the cumulative bytes read off every accepted TCP
// connection this controller has relayed: bytes from the local application
// in client role, bytes from the Shadowsocks client in server role (the
// client-to-server direction in both roles).
func (c *Controller) BytesReceived() uint64 { return c.bytesReceived.Load() }

// BytesSent returns the cumulative bytes written to every TCP connection
// this controller has relayed.
func (c *Controller) BytesSent() uint64 { return c.bytesSent.Load() }

// Start resolves the Shadowsocks server address once (a failure here is
// logged but not fatal, matching the original controller: a transient DNS
// hiccup at boot shouldn't keep the process from coming up) and then binds
// the role-appropriate listeners.
func (c *Controller) Start(ctx context.Context) error {
	c.serverAddr = ssaddr.New(c.profile.ServerAddress, c.profile.ServerPort)
	if err := ssaddr.ResolveBlocking(ctx, c.serverAddr); err != nil {
		c.opts.Logger.Warn("controller: server address lookup failed",
			logging.KeyAddress, c.profile.ServerAddress, logging.KeyError, err.Error())
	}

	if c.opts.IsLocal {
		return c.startLocal(ctx)
	}
	return c.startServer(ctx)
}

// serverHost returns the text to dial/bind the Shadowsocks server host as:
// the resolved literal IP if the boot-time lookup succeeded, otherwise the
// original text (a per-connection dial still resolves it on demand).
func (c *Controller) serverHost() string {
	if c.serverAddr.HasIP() {
		return c.serverAddr.FirstIP().String()
	}
	return c.profile.ServerAddress
}

func (c *Controller) startLocal(ctx context.Context) error {
	bindHost := c.profile.LocalAddress
	socksPort := c.profile.LocalPort
	if c.profile.HTTPProxy {
		// The HTTP front end takes the configured local port; SOCKS5 moves
		// to an ephemeral port only the HTTP front end (and any SOCKS5-aware
		// application dialing it directly) needs to know about.
		socksPort = 0
	}

	socksLn, err := net.Listen("tcp", net.JoinHostPort(bindHost, strconv.Itoa(int(socksPort))))
	if err != nil {
		return fmt.Errorf("controller: listen socks5 %s: %w", bindHost, err)
	}
	c.tcpListener = &countingListener{Listener: socksLn, onRead: c.addBytesReceived, onWrite: c.addBytesSent}

	udpLn, err := net.ListenPacket("udp", socksLn.Addr().String())
	if err != nil {
		socksLn.Close()
		return fmt.Errorf("controller: listen udp %s: %w", socksLn.Addr(), err)
	}
	c.udpListener = udpLn

	c.clientUDP = udprelay.NewClientRelay(udprelay.ClientConfig{
		Listener:   udpLn,
		ServerAddr: net.JoinHostPort(c.serverHost(), strconv.Itoa(int(c.profile.ServerPort))),
		Session:    c.session,
		Logger:     c.opts.Logger,
		Metrics:    c.opts.Metrics,
	})
	go c.runUDP(c.clientUDP.Serve, "client udp relay")

	serverHost, serverPort := c.serverHost(), c.profile.ServerPort
	c.tcpAcceptor = relay.NewAcceptor(relay.AcceptorConfig{
		Listener: c.tcpListener,
		NewRelay: func() relay.Handler {
			return relay.NewClientRelay(relay.ClientConfig{
				ServerHost:   serverHost,
				ServerPort:   serverPort,
				Session:      c.session,
				UDPRelayAddr: c.clientUDPRelayAddr,
				Limiter:      c.limiter,
				Timeout:      c.timeout(),
				Logger:       c.opts.Logger,
				Metrics:      c.opts.Metrics,
			})
		},
		Logger:  c.opts.Logger,
		Metrics: c.opts.Metrics,
	})
	c.tcpAcceptor.Start()

	if c.profile.HTTPProxy {
		httpLn, err := net.Listen("tcp", net.JoinHostPort(bindHost, strconv.Itoa(int(c.profile.LocalPort))))
		if err != nil {
			c.Stop()
			return fmt.Errorf("controller: listen http proxy %s: %w", bindHost, err)
		}
		c.httpListener = httpLn
		c.httpServer = httpproxy.NewServer(socksLn.Addr().String(), c.opts.Logger)
		go func() {
			if err := c.httpServer.Serve(c.httpListener); err != nil {
				c.opts.Logger.Debug("controller: http proxy stopped", logging.KeyError, err.Error())
			}
		}()
	}

	return nil
}

func (c *Controller) startServer(ctx context.Context) error {
	addr := net.JoinHostPort(c.serverHost(), strconv.Itoa(int(c.profile.ServerPort)))

	tcpLn, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("controller: listen %s: %w", addr, err)
	}
	c.tcpListener = &countingListener{Listener: tcpLn, onRead: c.addBytesReceived, onWrite: c.addBytesSent}

	udpLn, err := net.ListenPacket("udp", addr)
	if err != nil {
		tcpLn.Close()
		return fmt.Errorf("controller: listen udp %s: %w", addr, err)
	}
	c.udpListener = udpLn

	c.serverUDP = udprelay.NewServerRelay(udprelay.ServerConfig{
		Listener: udpLn,
		Session:  c.session,
		Bans:     c.bans,
		Logger:   c.opts.Logger,
		Metrics:  c.opts.Metrics,
	})
	go c.runUDPCtx(ctx, c.serverUDP.Serve, "server udp relay")

	c.tcpAcceptor = relay.NewAcceptor(relay.AcceptorConfig{
		Listener: c.tcpListener,
		NewRelay: func() relay.Handler {
			return relay.NewServerRelay(relay.ServerConfig{
				Session: c.session,
				Bans:    c.bans,
				Limiter: c.limiter,
				Timeout: c.timeout(),
				Logger:  c.opts.Logger,
				Metrics: c.opts.Metrics,
			})
		},
		Bans:    c.bans,
		Logger:  c.opts.Logger,
		Metrics: c.opts.Metrics,
	})
	c.tcpAcceptor.Start()

	return nil
}

// timeout converts the profile's Timeout (seconds, matching the original
// controller's profile.timeout()) to a time.Duration for the inactivity
// timer. Non-positive disables it.
func (c *Controller) timeout() time.Duration {
	if c.profile.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.profile.Timeout) * time.Second
}

func (c *Controller) clientUDPRelayAddr() (net.IP, uint16, bool) {
	if c.clientUDP == nil {
		return nil, 0, false
	}
	udpAddr, ok := c.clientUDP.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, 0, false
	}
	return udpAddr.IP, uint16(udpAddr.Port), true
}

func (c *Controller) addBytesReceived(n int) {
	c.bytesReceived.Add(uint64(n))
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordBytes("received", float64(n))
	}
}

func (c *Controller) addBytesSent(n int) {
	c.bytesSent.Add(uint64(n))
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordBytes("sent", float64(n))
	}
}

func (c *Controller) runUDP(serve func() error, name string) {
	if err := serve(); err != nil {
		c.opts.Logger.Warn("controller: "+name+" stopped", logging.KeyError, err.Error())
	}
}

func (c *Controller) runUDPCtx(ctx context.Context, serve func(context.Context) error, name string) {
	if err := serve(ctx); err != nil {
		c.opts.Logger.Warn("controller: "+name+" stopped", logging.KeyError, err.Error())
	}
}

// Stop tears down every listener and waits for in-flight TCP relays to
// finish. UDP associations are not waited on individually; closing the
// listener they share stops new work and each association's own reverse-path
// goroutine exits once its upstream socket errors.
func (c *Controller) Stop() {
	if c.tcpAcceptor != nil {
		c.tcpAcceptor.Stop()
	}
	if c.udpListener != nil {
		c.udpListener.Close()
	}
	if c.httpListener != nil {
		c.httpListener.Close()
	}
}
