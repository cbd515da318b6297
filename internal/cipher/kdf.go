package cipher

import (
	"crypto/md5"
	"crypto/sha1"
	"io"

	"golang.org/x/crypto/hkdf"
)

// EVPBytesToKey derives keyLen bytes from password using the iterative MD5
// chain OpenSSL's EVP_BytesToKey uses with no salt and an MD5 digest:
//
//	m[0] = MD5(password)
//	m[i] = MD5(m[i-1] || password)
//
// concatenated until there are at least keyLen bytes, then truncated. This
// is how every stream-cipher method derives its master key from a profile
// password; it predates and is independent of the per-session salt used by
// AEAD methods.
func EVPBytesToKey(password string, keyLen int) []byte {
	var (
		out  []byte
		prev []byte
	)
	for len(out) < keyLen {
		h := md5.New()
		h.Write(prev)
		h.Write([]byte(password))
		sum := h.Sum(nil)
		out = append(out, sum...)
		prev = sum
	}
	return out[:keyLen]
}

// DeriveAEADSubkey derives the per-session AEAD key from the profile's
// master key (itself produced by EVPBytesToKey, keyed to the AEAD method's
// KeyLen) and the per-connection salt, via HKDF-SHA1 with the fixed info
// string "ss-subkey" mandated by the AEAD construction.
func DeriveAEADSubkey(masterKey, salt []byte, keyLen int) ([]byte, error) {
	r := hkdf.New(sha1.New, masterKey, salt, []byte("ss-subkey"))
	subkey := make([]byte, keyLen)
	if _, err := io.ReadFull(r, subkey); err != nil {
		return nil, err
	}
	return subkey, nil
}
