package cipher

import (
	"crypto/md5"
	"crypto/rc4"
)

// newRC4MD5 builds the "rc4-md5" stream cipher: the RC4 key is not the
// Shadowsocks master key directly but MD5(masterKey || iv), truncated back
// to the master key's length. The resulting keystream is ordinary RC4, so
// once the key is rekeyed this way the standard library's RC4 PRGA is used
// unmodified.
func newRC4MD5(masterKey, iv []byte) (*rc4.Cipher, error) {
	h := md5.New()
	h.Write(masterKey)
	h.Write(iv)
	realKey := h.Sum(nil)[:len(masterKey)]
	return rc4.NewCipher(realKey)
}
