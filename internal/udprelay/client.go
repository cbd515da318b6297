package udprelay

import (
	"errors"
	"log/slog"
	"net"
	"net/netip"

	"github.com/postalsys/ssgo/internal/cipher"
	"github.com/postalsys/ssgo/internal/logging"
	"github.com/postalsys/ssgo/internal/metrics"
)

// socksUDPHeaderLen is RSV(2)+FRAG(1) ahead of a SOCKS5 UDP datagram.
const socksUDPHeaderLen = 3

// ClientConfig wires a client-role Relay to its local listener and the
// Shadowsocks server it tunnels into.
type ClientConfig struct {
	Listener   net.PacketConn
	ServerAddr string // Shadowsocks server's host:port
	Session    *cipher.Session
	Logger     *slog.Logger

	// Metrics, if non-nil, observes association churn and datagram
	// counts.
	Metrics *metrics.Metrics

	// ReadBufferSize matches spec.md's "read buffer >= 65536 bytes" for
	// both the listening socket and every upstream socket.
	ReadBufferSize int
}

// clientAssoc is one client application's dedicated socket to the
// Shadowsocks server: "connected", since every datagram from a given
// local application goes to the same server.
type clientAssoc struct {
	upstream net.Conn
}

// ClientRelay is the client-role UDP relay: it accepts SOCKS5 UDP
// datagrams from local applications on Listener, re-encrypts them to
// ServerAddr, and decrypts the reverse path back to the original sender.
type ClientRelay struct {
	cfg   ClientConfig
	cache *cache[clientAssoc]
}

// NewClientRelay builds a client-role ClientRelay from cfg.
func NewClientRelay(cfg ClientConfig) *ClientRelay {
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = 65536
	}
	return &ClientRelay{cfg: cfg, cache: newCache[clientAssoc]()}
}

// LocalAddr returns the listener's bound address, reported to the SOCKS5
// client in a UDP ASSOCIATE reply.
func (r *ClientRelay) LocalAddr() net.Addr {
	return r.cfg.Listener.LocalAddr()
}

// Serve reads datagrams off the listener until it's closed. Intended to be
// run on its own goroutine.
func (r *ClientRelay) Serve() error {
	buf := make([]byte, r.cfg.ReadBufferSize)
	for {
		n, from, err := r.cfg.Listener.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.handleLocalDatagram(append([]byte(nil), buf[:n]...), from)
	}
}

func (r *ClientRelay) handleLocalDatagram(datagram []byte, from net.Addr) {
	if len(datagram) < socksUDPHeaderLen || datagram[2] != 0 {
		return // FRAG must be 0; fragmentation is not supported.
	}
	ssPayload := datagram[socksUDPHeaderLen:]

	key, err := addrPortOf(from)
	if err != nil {
		r.cfg.Logger.Warn("udp relay: unrecognized client address", logging.KeyError, err.Error())
		return
	}

	assoc, err := r.associationFor(key)
	if err != nil {
		r.cfg.Logger.Warn("udp relay: dial upstream", logging.KeyError, err.Error())
		return
	}

	packet, err := r.cfg.Session.EncryptPacket(ssPayload)
	if err != nil {
		r.cfg.Logger.Warn("udp relay: encrypt", logging.KeyError, err.Error())
		return
	}
	assoc.upstream.Write(packet)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordUDPDatagram("client_to_server")
	}
}

// associationFor returns the cached upstream socket for key, dialing and
// registering a fresh one (plus its reverse-path reader goroutine) on
// cache miss. The upstream socket is "connected" to the Shadowsocks
// server, so its reverse path never needs to re-learn the peer address.
func (r *ClientRelay) associationFor(key netip.AddrPort) (*clientAssoc, error) {
	if a, ok := r.cache.get(key); ok {
		return a, nil
	}

	conn, err := net.Dial("udp", r.cfg.ServerAddr)
	if err != nil {
		return nil, err
	}

	a := &clientAssoc{upstream: conn}
	r.cache.put(key, a)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordUDPAssociationOpened()
	}

	clientAddr := net.UDPAddrFromAddrPort(key)
	go r.reversePath(key, clientAddr, conn)

	return a, nil
}

// reversePath reads datagrams arriving from the Shadowsocks server on
// conn, decrypts them, restores the SOCKS5 UDP prefix, and writes them
// back to clientAddr via the shared listener. It returns (dropping the
// cache entry) once conn errors or closes — there is no separate idle
// timer, matching the cache invariant that upstream-socket lifetime is
// cache-entry lifetime.
func (r *ClientRelay) reversePath(key netip.AddrPort, clientAddr net.Addr, conn net.Conn) {
	defer func() {
		conn.Close()
		r.cache.remove(key)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordUDPAssociationClosed()
		}
	}()

	buf := make([]byte, r.cfg.ReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		plaintext, err := r.cfg.Session.DecryptPacket(buf[:n])
		if err != nil {
			r.cfg.Logger.Debug("udp relay: decrypt reverse datagram", logging.KeyError, err.Error())
			continue
		}

		out := make([]byte, 0, socksUDPHeaderLen+len(plaintext))
		out = append(out, 0x00, 0x00, 0x00) // RSV(2) FRAG(1), no fragmentation
		out = append(out, plaintext...)
		r.cfg.Listener.WriteTo(out, clientAddr)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordUDPDatagram("server_to_client")
		}
	}
}

func addrPortOf(addr net.Addr) (netip.AddrPort, error) {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.AddrPort(), nil
	}
	return netip.ParseAddrPort(addr.String())
}
