package relay

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/postalsys/ssgo/internal/ssaddr"
)

// readAddrPort reads an ATYP|ADDR|PORT triple directly off r, field by
// field, off a blocking reader — the SOCKS5 request's DST.ADDR/DST.PORT
// and the Shadowsocks wire header share this exact shape, only differing
// in what (if anything) precedes the ATYP byte, so both
// readSOCKS5Address and readShadowsocksHeader delegate here. This reads
// a connection directly rather than a pre-buffered slice, so unlike
// ssaddr.Parse there is no "wait for more bytes" zero-length case: once
// the ATYP byte is in hand, io.ReadFull either completes the rest of the
// fields or returns an error.
func readAddrPort(r io.Reader) (*ssaddr.Address, error) {
	atyp := make([]byte, 1)
	if _, err := io.ReadFull(r, atyp); err != nil {
		return nil, err
	}

	var addr *ssaddr.Address
	switch atyp[0] {
	case ssaddr.ATYPIPv4:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		addr = ssaddr.FromIP(net.IP(buf), 0)
	case ssaddr.ATYPIPv6:
		buf := make([]byte, 16)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		addr = ssaddr.FromIP(net.IP(buf), 0)
	case ssaddr.ATYPDomain:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return nil, err
		}
		if lenBuf[0] == 0 {
			return nil, ssaddr.ErrBadHeader
		}
		domain := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(r, domain); err != nil {
			return nil, err
		}
		addr = ssaddr.New(string(domain), 0)
	default:
		return nil, ssaddr.ErrBadHeader
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, portBuf); err != nil {
		return nil, err
	}
	addr.SetPort(binary.BigEndian.Uint16(portBuf))
	return addr, nil
}

// readSOCKS5Address reads the DST.ADDR/DST.PORT that follows VER CMD RSV
// in a SOCKS5 request.
func readSOCKS5Address(r io.Reader) (*ssaddr.Address, error) {
	return readAddrPort(r)
}

// writeSOCKS5Reply writes a VER REP RSV ATYP BND.ADDR BND.PORT reply. A nil
// bindIP is written as the IPv4 wildcard, matching the fixed dummy bind
// address the spec's client ADDR/CONNECT transition emits.
func writeSOCKS5Reply(w io.Writer, reply byte, bindIP net.IP, bindPort uint16) error {
	var atyp byte
	var addrBytes []byte
	if v4 := bindIP.To4(); v4 != nil {
		atyp = ssaddr.ATYPIPv4
		addrBytes = v4
	} else if bindIP != nil {
		atyp = ssaddr.ATYPIPv6
		addrBytes = bindIP
	} else {
		atyp = ssaddr.ATYPIPv4
		addrBytes = make([]byte, 4)
	}

	buf := make([]byte, 4+len(addrBytes)+2)
	buf[0] = socks5Version
	buf[1] = reply
	buf[3] = atyp
	copy(buf[4:], addrBytes)
	binary.BigEndian.PutUint16(buf[4+len(addrBytes):], bindPort)

	_, err := w.Write(buf)
	return err
}
