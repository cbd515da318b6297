package cipher

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"
)

func TestMD5OfAbc(t *testing.T) {
	sum := md5.Sum([]byte("abc"))
	got := strings.ToUpper(hex.EncodeToString(sum[:]))
	want := "900150983CD24FB0D6963F7D28E17F72"
	if got != want {
		t.Errorf("MD5(abc) = %s, want %s", got, want)
	}
}

func TestEVPBytesToKeyLength(t *testing.T) {
	for _, keyLen := range []int{8, 16, 24, 32} {
		key := EVPBytesToKey("hunter2", keyLen)
		if len(key) != keyLen {
			t.Fatalf("len(EVPBytesToKey(_, %d)) = %d", keyLen, len(key))
		}
	}
}

func TestEVPBytesToKeyDeterministic(t *testing.T) {
	a := EVPBytesToKey("password", 32)
	b := EVPBytesToKey("password", 32)
	if hex.EncodeToString(a) != hex.EncodeToString(b) {
		t.Error("EVPBytesToKey is not deterministic for the same password")
	}
	c := EVPBytesToKey("different", 32)
	if hex.EncodeToString(a) == hex.EncodeToString(c) {
		t.Error("EVPBytesToKey produced identical keys for different passwords")
	}
}

func TestEVPBytesToKeyMatchesFirstChainLink(t *testing.T) {
	// m[0] = MD5(password); the first 16 bytes of any derived key must
	// equal that directly, independent of keyLen.
	sum := md5.Sum([]byte("abc"))
	key := EVPBytesToKey("abc", 16)
	if hex.EncodeToString(key) != hex.EncodeToString(sum[:]) {
		t.Errorf("EVPBytesToKey(abc, 16) = %x, want %x", key, sum)
	}
}

func TestDeriveAEADSubkeyLength(t *testing.T) {
	master := EVPBytesToKey("password", 32)
	salt := make([]byte, 32)
	subkey, err := DeriveAEADSubkey(master, salt, 32)
	if err != nil {
		t.Fatalf("DeriveAEADSubkey: %v", err)
	}
	if len(subkey) != 32 {
		t.Errorf("len(subkey) = %d, want 32", len(subkey))
	}
}

func TestDeriveAEADSubkeyVariesWithSalt(t *testing.T) {
	master := EVPBytesToKey("password", 32)
	s1, _ := DeriveAEADSubkey(master, make([]byte, 32), 32)
	salt2 := make([]byte, 32)
	salt2[0] = 1
	s2, _ := DeriveAEADSubkey(master, salt2, 32)
	if hex.EncodeToString(s1) == hex.EncodeToString(s2) {
		t.Error("subkeys for different salts must differ")
	}
}
