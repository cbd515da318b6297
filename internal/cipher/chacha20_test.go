package cipher

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestChaCha20IETFZeroKeyVector(t *testing.T) {
	key := make([]byte, 32)
	nonce := make([]byte, 12)
	plaintext := make([]byte, 9)

	stream, err := NewStreamCipher("chacha20-ietf", key, nonce, true)
	if err != nil {
		t.Fatalf("NewStreamCipher: %v", err)
	}
	out := make([]byte, len(plaintext))
	stream.XORKeyStream(out, plaintext)

	want, _ := hex.DecodeString("76b8e0ada0f13d9040")
	if !bytes.Equal(out, want) {
		t.Errorf("keystream = % x, want % x", out, want)
	}
}

func TestClassicChaCha20RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	plaintext := []byte("the quick brown fox jumps over the lazy dog, repeated enough to cross a 64 byte block boundary")

	enc, err := NewStreamCipher("chacha20", key, nonce, true)
	if err != nil {
		t.Fatalf("NewStreamCipher encrypt: %v", err)
	}
	ciphertext := make([]byte, len(plaintext))
	enc.XORKeyStream(ciphertext, plaintext)

	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	dec, err := NewStreamCipher("chacha20", key, nonce, false)
	if err != nil {
		t.Fatalf("NewStreamCipher decrypt: %v", err)
	}
	decrypted := make([]byte, len(ciphertext))
	dec.XORKeyStream(decrypted, ciphertext)

	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestClassicChaCha20IncrementalVsOneShot(t *testing.T) {
	key := make([]byte, 32)
	nonce := make([]byte, 8)
	plaintext := bytes.Repeat([]byte{0xAB}, 200)

	oneShot, _ := NewStreamCipher("chacha20", key, nonce, true)
	wantOut := make([]byte, len(plaintext))
	oneShot.XORKeyStream(wantOut, plaintext)

	incremental, _ := NewStreamCipher("chacha20", key, nonce, true)
	gotOut := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += 7 {
		end := i + 7
		if end > len(plaintext) {
			end = len(plaintext)
		}
		incremental.XORKeyStream(gotOut[i:end], plaintext[i:end])
	}

	if !bytes.Equal(gotOut, wantOut) {
		t.Error("splitting XORKeyStream calls across block boundaries changed the output")
	}
}
