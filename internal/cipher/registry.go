package cipher

import "sort"

// registry is the Shadowsocks method table: key length, IV/nonce length,
// and for AEAD methods, salt and tag length. Methods marked unsupported
// are registered (so profile parsing and config validation recognize the
// name) but have no constructible engine in stream.go / aead.go; starting
// a controller with one of them fails with ErrUnsupportedMethod.
var registry = map[string]Descriptor{
	"aes-128-cfb": {Name: "aes-128-cfb", KeyLen: 16, IVLen: 16, Kind: KindStream, supported: true},
	"aes-192-cfb": {Name: "aes-192-cfb", KeyLen: 24, IVLen: 16, Kind: KindStream, supported: true},
	"aes-256-cfb": {Name: "aes-256-cfb", KeyLen: 32, IVLen: 16, Kind: KindStream, supported: true},
	"aes-128-ctr": {Name: "aes-128-ctr", KeyLen: 16, IVLen: 16, Kind: KindStream, supported: true},
	"aes-192-ctr": {Name: "aes-192-ctr", KeyLen: 24, IVLen: 16, Kind: KindStream, supported: true},
	"aes-256-ctr": {Name: "aes-256-ctr", KeyLen: 32, IVLen: 16, Kind: KindStream, supported: true},

	"bf-cfb":   {Name: "bf-cfb", KeyLen: 16, IVLen: 8, Kind: KindStream, supported: true},
	"cast5-cfb": {Name: "cast5-cfb", KeyLen: 16, IVLen: 8, Kind: KindStream, supported: true},
	"des-cfb":  {Name: "des-cfb", KeyLen: 8, IVLen: 8, Kind: KindStream, supported: true},

	"rc4-md5":  {Name: "rc4-md5", KeyLen: 16, IVLen: 16, Kind: KindStream, supported: true},
	"salsa20":  {Name: "salsa20", KeyLen: 32, IVLen: 8, Kind: KindStream, supported: true},

	"chacha20":      {Name: "chacha20", KeyLen: 32, IVLen: 8, Kind: KindStream, supported: true},
	"chacha20-ietf": {Name: "chacha20-ietf", KeyLen: 32, IVLen: 12, Kind: KindStream, supported: true},

	// Registered for the method table and URI round-tripping, but no
	// engine is wired: no library in the dependency stack implements
	// these block ciphers, and hand-rolling a block cipher (as opposed
	// to the stream constructions above, which only need a primitive
	// the standard library or x/crypto already provides) is out of
	// scope. See DESIGN.md.
	"camellia-128-cfb": {Name: "camellia-128-cfb", KeyLen: 16, IVLen: 16, Kind: KindStream},
	"camellia-192-cfb": {Name: "camellia-192-cfb", KeyLen: 24, IVLen: 16, Kind: KindStream},
	"camellia-256-cfb": {Name: "camellia-256-cfb", KeyLen: 32, IVLen: 16, Kind: KindStream},
	"idea-cfb":         {Name: "idea-cfb", KeyLen: 16, IVLen: 8, Kind: KindStream},
	"rc2-cfb":          {Name: "rc2-cfb", KeyLen: 16, IVLen: 8, Kind: KindStream},
	"seed-cfb":         {Name: "seed-cfb", KeyLen: 16, IVLen: 16, Kind: KindStream},
	"serpent-256-cfb":  {Name: "serpent-256-cfb", KeyLen: 32, IVLen: 16, Kind: KindStream},

	"aes-128-gcm": {Name: "aes-128-gcm", KeyLen: 16, IVLen: 12, Kind: KindAEAD, SaltLen: 16, TagLen: 16, supported: true},
	"aes-192-gcm": {Name: "aes-192-gcm", KeyLen: 24, IVLen: 12, Kind: KindAEAD, SaltLen: 24, TagLen: 16, supported: true},
	"aes-256-gcm": {Name: "aes-256-gcm", KeyLen: 32, IVLen: 12, Kind: KindAEAD, SaltLen: 32, TagLen: 16, supported: true},

	"chacha20-ietf-poly1305": {Name: "chacha20-ietf-poly1305", KeyLen: 32, IVLen: 12, Kind: KindAEAD, SaltLen: 32, TagLen: 16, supported: true},
}

// Methods returns the sorted list of every registered method name,
// supported or not.
func Methods() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportedMethods returns the sorted list of method names with a wired
// engine. Used by the wizard's method select and by "ssgo methods", so
// neither offers a name that would fail at NewSession time.
func SupportedMethods() []string {
	names := make([]string, 0, len(registry))
	for name, desc := range registry {
		if desc.supported {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
