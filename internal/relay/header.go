package relay

import (
	"io"

	"github.com/postalsys/ssgo/internal/ssaddr"
)

// readShadowsocksHeader reads an ATYP|ADDR|PORT header directly off a
// decrypting reader — the server-role counterpart of readSOCKS5Address,
// same wire shape with no VER/CMD/RSV prefix in front of it.
func readShadowsocksHeader(r io.Reader) (*ssaddr.Address, error) {
	return readAddrPort(r)
}
