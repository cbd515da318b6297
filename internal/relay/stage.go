// Package relay implements the per-connection TCP relay: the client-role
// relay (SOCKS5 front end, encrypts outbound to a Shadowsocks server) and
// the server-role relay (decrypts inbound, forwards to the real
// destination), plus the Acceptor that listens and spawns one of either
// per accepted connection.
package relay

// Stage records where a relay is in its connection lifecycle. It exists
// for observability (logging, metrics) and as a guard against acting twice
// on a relay that has already reached Destroyed — the control flow itself
// is ordinary blocking goroutine code, not a callback state machine, so
// most transitions here are just bookkeeping around what the code is
// about to do next.
type Stage int

const (
	StageInit Stage = iota
	StageAddr
	StageUDPAssoc
	StageDNS
	StageConnecting
	StageStream
	StageDestroyed
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageAddr:
		return "addr"
	case StageUDPAssoc:
		return "udp_assoc"
	case StageDNS:
		return "dns"
	case StageConnecting:
		return "connecting"
	case StageStream:
		return "stream"
	case StageDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
