// Package profile implements the Shadowsocks connection profile: the
// method/password/server/local settings needed to run as client or
// server, plus the legacy and SIP002 ss:// URI codecs used to exchange
// them out of band.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// otaSuffix marks a method name as carrying the deprecated legacy
// one-time-auth flag (e.g. "aes-256-cfb-auth").
const otaSuffix = "-auth"

// Profile is one Shadowsocks connection's settings: the fields a client
// needs to reach a server, plus the local-facing options (bind address,
// HTTP front-end, debug logging) that only matter to this process.
type Profile struct {
	Name          string `yaml:"name"`
	Method        string `yaml:"method"`
	Password      string `yaml:"password"`
	ServerAddress string `yaml:"server_address"`
	ServerPort    uint16 `yaml:"server_port"`
	LocalAddress  string `yaml:"local_address"`
	LocalPort     uint16 `yaml:"local_port"`
	Timeout       int    `yaml:"timeout"`
	HTTPProxy     bool   `yaml:"http_proxy"`
	Plugin        string `yaml:"plugin,omitempty"`
	Debug         bool   `yaml:"debug"`

	// RateLimitBytesPerSec caps aggregate relay throughput across both
	// directions of every connection this profile drives. Zero (the
	// default) means unlimited.
	RateLimitBytesPerSec int64 `yaml:"rate_limit_bytes_per_sec,omitempty"`

	// OTAEnabled records a "-auth" suffix recognized on Method. The
	// suffix is stripped from Method itself; implementations carry this
	// flag through without acting on it, since legacy one-time-auth is
	// deprecated.
	OTAEnabled bool `yaml:"ota,omitempty"`
}

// Default returns a Profile with the same defaults as the original
// client: loopback local address, a 10-minute idle timeout, everything
// else zero.
func Default() *Profile {
	return &Profile{
		LocalAddress: "127.0.0.1",
		Timeout:      600,
	}
}

// Load reads and parses a Profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a Profile from YAML bytes, starting from Default.
func Parse(data []byte) (*Profile, error) {
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("profile: parse: %w", err)
	}
	return p, nil
}

// Save writes p to path as YAML.
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("profile: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// splitOTASuffix strips a trailing "-auth" off method, reporting whether
// it was present.
func splitOTASuffix(method string) (bare string, ota bool) {
	if len(method) > len(otaSuffix) && method[len(method)-len(otaSuffix):] == otaSuffix {
		return method[:len(method)-len(otaSuffix)], true
	}
	return method, false
}

// wireMethod renders Method with the "-auth" suffix reattached when
// OTAEnabled, the form both URI encodings expect.
func (p *Profile) wireMethod() string {
	if p.OTAEnabled {
		return p.Method + otaSuffix
	}
	return p.Method
}
