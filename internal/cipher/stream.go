package cipher

import (
	gocipher "crypto/aes"
	"crypto/cipher"
	gocipherdes "crypto/des"
	"fmt"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
	"golang.org/x/crypto/chacha20"
)

// NewStreamCipher builds the cipher.Stream for a stream method, given the
// already-derived key (EVPBytesToKey output) and the per-connection IV
// (random on the sending side, read off the wire on the receiving side).
// encrypt selects CFB's direction; CTR and the dedicated stream
// constructions (chacha20 family, salsa20, rc4-md5) are symmetric.
func NewStreamCipher(method string, key, iv []byte, encrypt bool) (cipher.Stream, error) {
	switch method {
	case "aes-128-cfb", "aes-192-cfb", "aes-256-cfb":
		return newBlockCFB(gocipher.NewCipher, key, iv, encrypt)
	case "aes-128-ctr", "aes-192-ctr", "aes-256-ctr":
		return newBlockCTR(gocipher.NewCipher, key, iv)
	case "bf-cfb":
		return newBlockCFB(func(k []byte) (cipher.Block, error) { return blowfish.NewCipher(k) }, key, iv, encrypt)
	case "cast5-cfb":
		return newBlockCFB(func(k []byte) (cipher.Block, error) { return cast5.NewCipher(k) }, key, iv, encrypt)
	case "des-cfb":
		return newBlockCFB(gocipherdes.NewCipher, key, iv, encrypt)
	case "rc4-md5":
		return newRC4MD5(key, iv)
	case "salsa20":
		return newSalsa20Stream(key, iv), nil
	case "chacha20":
		return newClassicChaCha20(key, iv), nil
	case "chacha20-ietf":
		return chacha20.NewUnauthenticatedCipher(key, iv)
	default:
		if err := CheckSupported(method); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", method, ErrUnsupportedMethod)
	}
}

type blockConstructor func(key []byte) (cipher.Block, error)

func newBlockCFB(newBlock blockConstructor, key, iv []byte, encrypt bool) (cipher.Stream, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if encrypt {
		return cipher.NewCFBEncrypter(block, iv), nil
	}
	return cipher.NewCFBDecrypter(block, iv), nil
}

func newBlockCTR(newBlock blockConstructor, key, iv []byte) (cipher.Stream, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewCTR(block, iv), nil
}
