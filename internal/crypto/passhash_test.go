package crypto

import (
	"bytes"
	"testing"
)

func TestNewSalt(t *testing.T) {
	t.Parallel()

	a, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if len(a) != SaltLen {
		t.Fatalf("len=%d, want=%d", len(a), SaltLen)
	}
	b, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent salts are equal")
	}
}

func TestHashPassword_Deterministic(t *testing.T) {
	t.Parallel()

	pw := []byte("p@ssw0rd")
	salt := []byte("NaCl-16-bytes???")

	h1 := HashPassword(pw, salt)
	h2 := HashPassword(pw, salt)
	if len(h1) == 0 || !bytes.Equal(h1, h2) {
		t.Fatalf("hash not deterministic for same input")
	}

	if bytes.Equal(h1, HashPassword(pw, []byte("another-salt----"))) {
		t.Fatalf("hash should differ when salt differs")
	}
	if bytes.Equal(h1, HashPassword([]byte("p@ssw0rd!"), salt)) {
		t.Fatalf("hash should differ when password differs")
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	pw := []byte("correct horse battery staple")
	salt := []byte("salty-salt-123456")
	hash := HashPassword(pw, salt)

	if !VerifyPassword(pw, salt, hash) {
		t.Fatalf("expected true for correct password")
	}
	if VerifyPassword([]byte("wrong"), salt, hash) {
		t.Fatalf("expected false for wrong password")
	}
	if VerifyPassword(pw, []byte("wrong-salt-65432"), hash) {
		t.Fatalf("expected false for wrong salt")
	}
	if VerifyPassword(nil, salt, hash) {
		t.Fatalf("expected false for empty password")
	}
}
