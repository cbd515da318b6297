package cipher

import (
	"crypto/rand"
	"fmt"
)

// ErrShortPacket is returned when a UDP datagram is too small to even
// contain the method's IV or salt prefix.
var ErrShortPacket = fmt.Errorf("cipher: packet shorter than iv/salt")

// EncryptPacket encrypts a whole UDP datagram with a fresh IV or salt,
// mirroring the original encryptAll/decryptAll behavior: UDP has no
// connection state to carry a cipher across packets, so every packet gets
// its own freshly keyed cipher instance and the IV/salt travels as a
// prefix on that single packet.
func (s *Session) EncryptPacket(plaintext []byte) ([]byte, error) {
	if s.desc.Kind == KindAEAD {
		salt := make([]byte, s.desc.SaltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		subkey, err := DeriveAEADSubkey(s.masterKey, salt, s.desc.KeyLen)
		if err != nil {
			return nil, err
		}
		aead, err := NewAEAD(s.desc.Name, subkey)
		if err != nil {
			return nil, err
		}
		nonce := make([]byte, aead.NonceSize())
		out := make([]byte, 0, len(salt)+len(plaintext)+aead.Overhead())
		out = append(out, salt...)
		out = aead.Seal(out, nonce, plaintext, nil)
		return out, nil
	}

	iv := make([]byte, s.desc.IVLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	stream, err := NewStreamCipher(s.desc.Name, s.masterKey, iv, true)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(iv)+len(plaintext))
	copy(out, iv)
	stream.XORKeyStream(out[len(iv):], plaintext)
	return out, nil
}

// DecryptPacket is EncryptPacket's inverse: it reads the IV or salt off
// the front of packet and decrypts the remainder with a freshly built
// cipher, keyed to that packet alone.
func (s *Session) DecryptPacket(packet []byte) ([]byte, error) {
	if s.desc.Kind == KindAEAD {
		if len(packet) < s.desc.SaltLen {
			return nil, ErrShortPacket
		}
		salt := packet[:s.desc.SaltLen]
		body := packet[s.desc.SaltLen:]
		subkey, err := DeriveAEADSubkey(s.masterKey, salt, s.desc.KeyLen)
		if err != nil {
			return nil, err
		}
		aead, err := NewAEAD(s.desc.Name, subkey)
		if err != nil {
			return nil, err
		}
		nonce := make([]byte, aead.NonceSize())
		return aead.Open(nil, nonce, body, nil)
	}

	if len(packet) < s.desc.IVLen {
		return nil, ErrShortPacket
	}
	iv := packet[:s.desc.IVLen]
	body := packet[s.desc.IVLen:]
	stream, err := NewStreamCipher(s.desc.Name, s.masterKey, iv, false)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	stream.XORKeyStream(out, body)
	return out, nil
}
