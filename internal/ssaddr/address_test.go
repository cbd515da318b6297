package ssaddr

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

func TestPackIPv4(t *testing.T) {
	got, err := Pack(New("127.0.0.1", 1080))
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	want := []byte{0x01, 0x7F, 0x00, 0x00, 0x01, 0x04, 0x38}
	if !bytes.Equal(got, want) {
		t.Errorf("Pack = % x, want % x", got, want)
	}
}

func TestPackParseRoundTrip(t *testing.T) {
	cases := []*Address{
		New("127.0.0.1", 1080),
		New("::1", 443),
		New("example.com", 8080),
		New("a", 1), // shortest possible domain
	}

	for _, a := range cases {
		t.Run(a.Text, func(t *testing.T) {
			packed, err := Pack(a)
			if err != nil {
				t.Fatalf("Pack(%v): %v", a, err)
			}
			parsed, n, err := Parse(packed)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if n != len(packed) {
				t.Errorf("headerLen = %d, want %d", n, len(packed))
			}
			if parsed.Text != a.Text || parsed.Port != a.Port {
				t.Errorf("parsed = %+v, want text=%s port=%d", parsed, a.Text, a.Port)
			}
		})
	}
}

func TestParseTruncatedReturnsZeroLength(t *testing.T) {
	full, _ := Pack(New("example.com", 443))
	for i := 0; i < len(full); i++ {
		addr, n, err := Parse(full[:i])
		if n != 0 {
			t.Errorf("Parse(truncated to %d) headerLen = %d, want 0", i, n)
		}
		if addr != nil {
			t.Errorf("Parse(truncated to %d) returned non-nil address", i)
		}
		if err != nil {
			t.Errorf("Parse(truncated to %d) returned error %v, want nil (needs more bytes)", i, err)
		}
	}
}

func TestParseUnknownATYP(t *testing.T) {
	buf := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	addr, n, err := Parse(buf)
	if addr != nil || n != 0 {
		t.Fatalf("Parse(bad ATYP) = (%v, %d), want (nil, 0)", addr, n)
	}
	if !errors.Is(err, ErrBadHeader) {
		t.Errorf("err = %v, want ErrBadHeader", err)
	}
}

func TestParseZeroLengthDomain(t *testing.T) {
	buf := []byte{0x03, 0x00, 0x00, 0x50}
	_, n, err := Parse(buf)
	if n != 0 || err != nil {
		t.Fatalf("Parse(zero-length domain) = (n=%d, err=%v), want (0, nil)", n, err)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		text string
		want Category
	}{
		{"192.168.1.1", CategoryIPv4},
		{"::1", CategoryIPv6},
		{"example.com", CategoryHost},
	}
	for _, tc := range tests {
		a := New(tc.text, 1)
		if got := a.Category(); got != tc.want {
			t.Errorf("Category(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestSetTextClearsIPsForDomain(t *testing.T) {
	a := New("192.168.1.1", 1)
	if !a.HasIP() {
		t.Fatal("literal IP should populate IPs immediately")
	}
	a.SetText("example.com")
	if a.HasIP() {
		t.Error("switching to a domain should clear IPs until resolved")
	}
}

func TestFromIP(t *testing.T) {
	ip := net.ParseIP("10.0.0.5")
	a := FromIP(ip, 53)
	if a.Text != "10.0.0.5" || a.FirstIP().String() != "10.0.0.5" {
		t.Errorf("FromIP = %+v", a)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := New("example.com", 80)
	a.SetIPs([]net.IP{net.ParseIP("1.2.3.4")})
	b := a.Clone()
	b.SetIPs([]net.IP{net.ParseIP("5.6.7.8")})
	if a.FirstIP().String() != "1.2.3.4" {
		t.Errorf("clone mutated original: %v", a.FirstIP())
	}
}
