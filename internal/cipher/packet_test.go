package cipher

import (
	"bytes"
	"testing"
)

func TestEncryptPacketAEADLength(t *testing.T) {
	session, err := NewSession("aes-256-gcm", "password")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	packet, err := session.EncryptPacket([]byte("Hello Shadowsocks"))
	if err != nil {
		t.Fatalf("EncryptPacket: %v", err)
	}
	// 32-byte salt + 17-byte payload + 16-byte tag = 65.
	if len(packet) != 65 {
		t.Errorf("len(packet) = %d, want 65", len(packet))
	}
}

func TestEncryptDecryptPacketAEADRoundTrip(t *testing.T) {
	session, err := NewSession("chacha20-ietf-poly1305", "password")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	msg := []byte("datagram payload")
	packet, err := session.EncryptPacket(msg)
	if err != nil {
		t.Fatalf("EncryptPacket: %v", err)
	}
	got, err := session.DecryptPacket(packet)
	if err != nil {
		t.Fatalf("DecryptPacket: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("round trip = %q, want %q", got, msg)
	}
}

func TestEncryptDecryptPacketStreamRoundTrip(t *testing.T) {
	session, err := NewSession("aes-128-cfb", "password")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	msg := []byte("datagram payload")
	packet, err := session.EncryptPacket(msg)
	if err != nil {
		t.Fatalf("EncryptPacket: %v", err)
	}
	if len(packet) != 16+len(msg) {
		t.Errorf("len(packet) = %d, want %d", len(packet), 16+len(msg))
	}
	got, err := session.DecryptPacket(packet)
	if err != nil {
		t.Fatalf("DecryptPacket: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("round trip = %q, want %q", got, msg)
	}
}

func TestEachPacketUsesAFreshIV(t *testing.T) {
	session, err := NewSession("aes-128-cfb", "password")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	msg := []byte("same plaintext twice")
	p1, _ := session.EncryptPacket(msg)
	p2, _ := session.EncryptPacket(msg)
	if bytes.Equal(p1, p2) {
		t.Error("two packets with the same plaintext produced identical ciphertext: IV was not randomized")
	}
}

func TestDecryptPacketTooShortIsBadHeader(t *testing.T) {
	session, err := NewSession("aes-256-gcm", "password")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	_, err = session.DecryptPacket([]byte{1, 2, 3})
	if err != ErrShortPacket {
		t.Errorf("err = %v, want ErrShortPacket", err)
	}
}

func TestUnsupportedMethodRejectedAtSessionCreation(t *testing.T) {
	_, err := NewSession("camellia-128-cfb", "password")
	if err == nil {
		t.Fatal("expected an error constructing a session for an unsupported method")
	}
}

func TestUnknownMethodRejectedAtSessionCreation(t *testing.T) {
	_, err := NewSession("not-a-real-method", "password")
	if err == nil {
		t.Fatal("expected an error constructing a session for an unknown method")
	}
}
