// Package cipher implements the Shadowsocks symmetric-encryption layer:
// the method registry, EVP_BytesToKey / HKDF key derivation, the stream and
// AEAD cipher engines, and the stateful per-connection Encryptor used by
// the TCP relay and the whole-packet helpers used by the UDP relay.
package cipher

import "fmt"

// Kind distinguishes stream ciphers from AEAD ciphers; an Encryptor built
// on a Descriptor branches its framing on this field.
type Kind int

const (
	KindStream Kind = iota
	KindAEAD
)

// Descriptor describes one Shadowsocks method: its internal name, the key
// and IV/nonce sizes EVP_BytesToKey / HKDF must produce, and — for AEAD
// methods — the per-session salt length and the AEAD tag length.
type Descriptor struct {
	Name    string
	KeyLen  int
	IVLen   int // nonce length for AEAD
	Kind    Kind
	SaltLen int // AEAD only
	TagLen  int // AEAD only

	// supported is false for methods that are registered (so URI parsing
	// and "unknown vs unsupported" error reporting both work) but for
	// which no cipher engine is wired; see registry.go.
	supported bool
}

// ErrUnknownMethod is returned for a method string absent from the
// registry entirely.
var ErrUnknownMethod = fmt.Errorf("cipher: unknown method")

// ErrUnsupportedMethod is returned for a method present in the Shadowsocks
// method table (so its key/IV lengths are known) but for which ssgo has no
// cipher engine wired. This is fatal at controller start, same as an
// unknown method.
var ErrUnsupportedMethod = fmt.Errorf("cipher: unsupported method")

// Lookup returns the Descriptor for method, or ErrUnknownMethod if the
// method string isn't in the Shadowsocks method table at all.
func Lookup(method string) (Descriptor, error) {
	d, ok := registry[method]
	if !ok {
		return Descriptor{}, fmt.Errorf("%s: %w", method, ErrUnknownMethod)
	}
	return d, nil
}

// CheckSupported returns ErrUnsupportedMethod if method is a known but
// unimplemented entry in the registry (see registry.go's unsupported
// block), nil otherwise. Intended to be called once at controller start
// so misconfiguration fails fast rather than on the first connection.
func CheckSupported(method string) error {
	d, err := Lookup(method)
	if err != nil {
		return err
	}
	if !d.supported {
		return fmt.Errorf("%s: %w", method, ErrUnsupportedMethod)
	}
	return nil
}
