package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NewAEAD builds the cipher.AEAD for an AEAD method given its already
// HKDF-derived per-session subkey.
func NewAEAD(method string, subkey []byte) (gocipher.AEAD, error) {
	switch method {
	case "aes-128-gcm", "aes-192-gcm", "aes-256-gcm":
		block, err := aes.NewCipher(subkey)
		if err != nil {
			return nil, err
		}
		return gocipher.NewGCM(block)
	case "chacha20-ietf-poly1305":
		return chacha20poly1305.New(subkey)
	default:
		if err := CheckSupported(method); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", method, ErrUnsupportedMethod)
	}
}

// incrementNonce advances an AEAD nonce the way the chunk framing requires:
// little-endian, carrying into the next byte on overflow, wrapping at the
// end of the buffer. Called once after every Seal/Open so consecutive
// chunks never reuse a nonce under the same subkey.
func incrementNonce(nonce []byte) {
	for i := range nonce {
		nonce[i]++
		if nonce[i] != 0 {
			return
		}
	}
}
