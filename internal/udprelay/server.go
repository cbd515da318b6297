package udprelay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"

	"github.com/postalsys/ssgo/internal/banlist"
	"github.com/postalsys/ssgo/internal/cipher"
	"github.com/postalsys/ssgo/internal/logging"
	"github.com/postalsys/ssgo/internal/metrics"
	"github.com/postalsys/ssgo/internal/ssaddr"
)

// ServerConfig wires a server-role ServerRelay to its listener and the
// collaborators it needs to decrypt inbound datagrams, resolve/dial
// destinations, and apply the anti-probing ban policy.
type ServerConfig struct {
	Listener net.PacketConn
	Session  *cipher.Session

	// Bans is optional; when set, inbound datagrams from a banned IP are
	// dropped before decryption, and an unparseable header records a
	// failure that may escalate to a ban.
	Bans *banlist.Registry

	Logger *slog.Logger

	// ReadBufferSize matches spec.md's "read buffer >= 65536 bytes" for
	// both the listening socket and every per-client upstream socket.
	ReadBufferSize int

	// Metrics, if non-nil, observes association churn, datagram counts,
	// and header/decrypt failure escalation.
	Metrics *metrics.Metrics
}

// serverAssoc is one client's dedicated upstream socket. Unlike the
// client role's clientAssoc, this socket is unconnected: a single client
// may address many different destinations over its lifetime, so sends
// use WriteTo and the reverse path's ReadFrom recovers which destination
// answered (packed into the Shadowsocks header sent back to the client).
type serverAssoc struct {
	upstream net.PacketConn
}

// ServerRelay is the server-role UDP relay: it accepts encrypted
// datagrams from Shadowsocks clients, decrypts and forwards them to
// their named destination, and relays destination replies back to the
// client.
type ServerRelay struct {
	cfg   ServerConfig
	cache *cache[serverAssoc]
}

// NewServerRelay builds a server-role ServerRelay from cfg.
func NewServerRelay(cfg ServerConfig) *ServerRelay {
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = 65536
	}
	return &ServerRelay{cfg: cfg, cache: newCache[serverAssoc]()}
}

// Serve reads datagrams off the listener until it's closed. Intended to be
// run on its own goroutine.
func (r *ServerRelay) Serve(ctx context.Context) error {
	buf := make([]byte, r.cfg.ReadBufferSize)
	for {
		n, from, err := r.cfg.Listener.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.handleClientDatagram(ctx, append([]byte(nil), buf[:n]...), from)
	}
}

func (r *ServerRelay) handleClientDatagram(ctx context.Context, packet []byte, from net.Addr) {
	key, err := addrPortOf(from)
	if err != nil {
		r.cfg.Logger.Warn("udp relay: unrecognized peer address", logging.KeyError, err.Error())
		return
	}
	peerIP := key.Addr().String()

	if r.cfg.Bans != nil && r.cfg.Bans.IsBanned(peerIP) {
		return
	}

	plaintext, err := r.cfg.Session.DecryptPacket(packet)
	if err != nil {
		r.recordFailure(peerIP, packet)
		return
	}

	dest, headerLen, err := ssaddr.Parse(plaintext)
	if err != nil || headerLen == 0 {
		r.recordFailure(peerIP, packet)
		return
	}
	payload := plaintext[headerLen:]

	if err := ssaddr.ResolveBlocking(ctx, dest); err != nil {
		r.cfg.Logger.Warn("udp relay: resolve destination", logging.KeyAddress, dest.Text, logging.KeyError, err.Error())
		return
	}
	destAddr := &net.UDPAddr{IP: dest.FirstIP(), Port: int(dest.Port)}

	assoc, err := r.associationFor(key, from)
	if err != nil {
		r.cfg.Logger.Warn("udp relay: open upstream socket", logging.KeyError, err.Error())
		return
	}

	assoc.upstream.WriteTo(payload, destAddr)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordUDPDatagram("client_to_server")
	}
}

// recordFailure reports a decrypt/header failure to the ban registry; a
// fresh (ip, iv-or-ciphertext-prefix) pair only records, it does not yet
// ban, matching the registry's escalation rule.
func (r *ServerRelay) recordFailure(peerIP string, packet []byte) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordHeaderFailure()
	}
	if r.cfg.Bans == nil {
		return
	}
	prefixLen := r.cfg.Session.PrefixLen()
	if len(packet) < prefixLen {
		prefixLen = len(packet)
	}
	banned := r.cfg.Bans.RecordFailure(peerIP, string(packet[:prefixLen]))
	if banned && r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordBan()
	}
}

// associationFor returns the cached upstream socket for key, opening and
// registering a fresh one (plus its reverse-path reader goroutine) on
// cache miss.
func (r *ServerRelay) associationFor(key netip.AddrPort, clientAddr net.Addr) (*serverAssoc, error) {
	if a, ok := r.cache.get(key); ok {
		return a, nil
	}

	upstream, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, err
	}

	a := &serverAssoc{upstream: upstream}
	r.cache.put(key, a)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordUDPAssociationOpened()
	}

	go r.reversePath(key, clientAddr, upstream)

	return a, nil
}

// reversePath reads datagrams arriving from any destination the client
// has talked to on upstream, prefixes the Shadowsocks header naming the
// replying destination, encrypts, and writes the result back to
// clientAddr via the shared listener.
func (r *ServerRelay) reversePath(key netip.AddrPort, clientAddr net.Addr, upstream net.PacketConn) {
	defer func() {
		upstream.Close()
		r.cache.remove(key)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordUDPAssociationClosed()
		}
	}()

	buf := make([]byte, r.cfg.ReadBufferSize)
	for {
		n, from, err := upstream.ReadFrom(buf)
		if err != nil {
			return
		}

		sender, err := senderAddress(from)
		if err != nil {
			continue
		}
		header, err := ssaddr.Pack(sender)
		if err != nil {
			r.cfg.Logger.Warn("udp relay: pack reverse header", logging.KeyError, err.Error())
			continue
		}

		tail := make([]byte, 0, len(header)+n)
		tail = append(tail, header...)
		tail = append(tail, buf[:n]...)

		packet, err := r.cfg.Session.EncryptPacket(tail)
		if err != nil {
			r.cfg.Logger.Warn("udp relay: encrypt reverse datagram", logging.KeyError, err.Error())
			continue
		}
		r.cfg.Listener.WriteTo(packet, clientAddr)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordUDPDatagram("server_to_client")
		}
	}
}

// senderAddress turns a destination's reply address into the Address the
// Shadowsocks header packs to tell the client who just replied.
func senderAddress(addr net.Addr) (*ssaddr.Address, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil, errors.New("udprelay: reply address is not a UDP address")
	}
	return ssaddr.FromIP(udpAddr.IP, uint16(udpAddr.Port)), nil
}
