package cipher

import (
	"encoding/binary"

	"golang.org/x/crypto/salsa20/salsa"
)

// salsa20Stream wraps x/crypto/salsa20/salsa's block primitive in a
// cipher.Stream so it can be consumed a byte range at a time the way the
// relay reads off a TCP connection, the same shape as classicChaCha20 in
// chacha20.go. x/crypto only exposes a whole-buffer XORKeyStream entry point
// with an implicit zero counter, which doesn't compose with partial reads,
// so the per-call counter bookkeeping is done here.
type salsa20Stream struct {
	key     [32]byte
	nonce   [8]byte
	counter uint64
	block   [64]byte
	pos     int
}

func newSalsa20Stream(key, nonce []byte) *salsa20Stream {
	if len(key) != 32 {
		panic("cipher: salsa20 key must be 32 bytes")
	}
	if len(nonce) != 8 {
		panic("cipher: salsa20 nonce must be 8 bytes")
	}
	s := &salsa20Stream{pos: 64}
	copy(s.key[:], key)
	copy(s.nonce[:], nonce)
	return s
}

func (s *salsa20Stream) generateBlock() {
	var in [16]byte
	copy(in[0:8], s.nonce[:])
	binary.LittleEndian.PutUint64(in[8:16], s.counter)
	salsa.Core(&s.block, &in, &s.key, &salsa.Sigma)
	s.counter++
	s.pos = 0
}

// XORKeyStream implements cipher.Stream.
func (s *salsa20Stream) XORKeyStream(dst, src []byte) {
	for i := range src {
		if s.pos == 64 {
			s.generateBlock()
		}
		dst[i] = src[i] ^ s.block[s.pos]
		s.pos++
	}
}
