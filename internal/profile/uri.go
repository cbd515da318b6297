package profile

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const uriScheme = "ss://"

// ErrInvalidURI is returned when an ss:// URI doesn't match either the
// legacy or SIP002 layout.
var ErrInvalidURI = fmt.Errorf("profile: invalid ss:// uri")

// FromURI parses either URI form Shadowsocks clients hand out:
//
//   - legacy:  ss://BASE64(method:password@host:port)#name
//   - SIP002:  ss://BASE64URL(method:password)@host:port/?plugin=...#name
//
// The form is distinguished the same way the original client does: look
// for an unencoded '@' in the body once the #name suffix is stripped off.
// Its presence means SIP002 (host:port sits outside the encoded
// userinfo); its absence means the whole body is one base64 blob
// (legacy). This check must run before any /plugin-path stripping:
// standard base64's alphabet includes '/', so a legacy body can itself
// contain a literal '/' and must not be truncated at it.
func FromURI(uri string) (*Profile, error) {
	if !strings.HasPrefix(uri, uriScheme) {
		return nil, ErrInvalidURI
	}
	body := uri[len(uriScheme):]
	p := Default()

	if hashPos := strings.LastIndexByte(body, '#'); hashPos >= 0 {
		p.Name = body[hashPos+1:]
		body = body[:hashPos]
	}

	atPos := strings.IndexByte(body, '@')
	if atPos < 0 {
		if err := p.parseLegacy(body); err != nil {
			return nil, err
		}
		return p, nil
	}

	// Only a SIP002 URI carries a /plugin path, and it always sits after
	// host:port, which itself sits after '@'; confine the search so a
	// stray '/' nowhere near the userinfo can't be mistaken for one.
	if slashPos := strings.IndexByte(body[atPos+1:], '/'); slashPos >= 0 {
		slashPos += atPos + 1
		query := strings.TrimPrefix(body[slashPos+1:], "?")
		body = body[:slashPos]
		if qs, err := url.ParseQuery(query); err == nil {
			p.Plugin = qs.Get("plugin")
		}
	}

	if err := p.parseSIP002(body, atPos); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) parseLegacy(encoded string) error {
	decoded, err := decodeBase64Any(base64.RawStdEncoding, base64.StdEncoding, encoded)
	if err != nil {
		return fmt.Errorf("%w: decode legacy body: %s", ErrInvalidURI, err)
	}

	colonPos := strings.IndexByte(decoded, ':')
	if colonPos < 0 {
		return fmt.Errorf("%w: no colon between method and password", ErrInvalidURI)
	}
	method := decoded[:colonPos]
	rest := decoded[colonPos+1:]

	atPos := strings.LastIndexByte(rest, '@')
	if atPos < 0 {
		return fmt.Errorf("%w: no '@' between password and host", ErrInvalidURI)
	}
	password := rest[:atPos]
	hostPort := rest[atPos+1:]

	host, port, err := splitHostPort(hostPort)
	if err != nil {
		return err
	}

	bare, ota := splitOTASuffix(method)
	p.Method = bare
	p.OTAEnabled = ota
	p.Password = password
	p.ServerAddress = host
	p.ServerPort = port
	return nil
}

func (p *Profile) parseSIP002(body string, atPos int) error {
	userInfo, err := decodeBase64Any(base64.RawURLEncoding, base64.URLEncoding, body[:atPos])
	if err != nil {
		return fmt.Errorf("%w: decode userinfo: %s", ErrInvalidURI, err)
	}

	spPos := strings.IndexByte(userInfo, ':')
	if spPos < 0 {
		return fmt.Errorf("%w: no colon between method and password", ErrInvalidURI)
	}
	method := userInfo[:spPos]
	password := userInfo[spPos+1:]

	host, port, err := splitHostPort(body[atPos+1:])
	if err != nil {
		return err
	}

	bare, ota := splitOTASuffix(method)
	p.Method = bare
	p.OTAEnabled = ota
	p.Password = password
	p.ServerAddress = host
	p.ServerPort = port
	return nil
}

func splitHostPort(hostPort string) (host string, port uint16, err error) {
	colonPos := strings.LastIndexByte(hostPort, ':')
	if colonPos < 0 {
		return "", 0, fmt.Errorf("%w: no colon between host and port", ErrInvalidURI)
	}
	n, err := strconv.Atoi(hostPort[colonPos+1:])
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad port: %s", ErrInvalidURI, err)
	}
	return hostPort[:colonPos], uint16(n), nil
}

// decodeBase64Any tries primary (typically the unpadded encoding real
// clients emit), falling back to fallback (the padded form) for
// interoperability with producers that didn't trim padding.
func decodeBase64Any(primary, fallback *base64.Encoding, s string) (string, error) {
	if b, err := primary.DecodeString(s); err == nil {
		return string(b), nil
	}
	b, err := fallback.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToURI renders the legacy ss://BASE64(method:password@host:port)#name
// form.
func (p *Profile) ToURI() string {
	plain := fmt.Sprintf("%s:%s@%s:%d", p.wireMethod(), p.Password, p.ServerAddress, p.ServerPort)
	encoded := base64.RawStdEncoding.EncodeToString([]byte(plain))
	return uriScheme + encoded + "#" + p.Name
}

// ToURISIP002 renders the SIP002 ss://BASE64URL(method:password)@host:port
// form, with an optional plugin query parameter.
func (p *Profile) ToURISIP002() string {
	userInfo := fmt.Sprintf("%s:%s", p.wireMethod(), p.Password)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(userInfo))
	uri := fmt.Sprintf("%s%s@%s:%d", uriScheme, encoded, p.ServerAddress, p.ServerPort)
	if p.Plugin != "" {
		uri += "/?plugin=" + url.QueryEscape(p.Plugin)
	}
	return uri + "#" + p.Name
}
