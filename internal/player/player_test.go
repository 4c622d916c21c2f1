package player

import (
	"bytes"
	"errors"
	"testing"
)

func TestHashPasswordRequiresSixtyByteSalt(t *testing.T) {
	if _, err := HashPassword("secret", []byte("short")); !errors.Is(err, ErrSalt) {
		t.Fatalf("expected ErrSalt, got %v", err)
	}
}

func TestHashAndVerify(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltSize)
	stored, err := HashPassword("correct horse", salt)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	// 64 hex chars of salt digest + 128 hex chars of sha512 key.
	if len(stored) != 64+128 {
		t.Fatalf("unexpected stored length %d", len(stored))
	}

	if !VerifyPassword(stored, "correct horse") {
		t.Error("expected password to verify")
	}
	if VerifyPassword(stored, "battery staple") {
		t.Error("expected wrong password to fail")
	}
	if VerifyPassword("tooshort", "correct horse") {
		t.Error("expected malformed hash to fail")
	}

	again, _ := HashPassword("correct horse", salt)
	if again != stored {
		t.Error("hash should be deterministic for the same salt")
	}
}

func TestNewSaltAndPlayer(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if len(salt) != SaltSize {
		t.Fatalf("expected %d bytes, got %d", SaltSize, len(salt))
	}

	hash, err := HashPassword("pw", salt)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	p := New("p@example.com", hash)
	if !p.Authenticate("pw") {
		t.Error("expected player to authenticate")
	}
	if p.Authenticate("nope") {
		t.Error("expected wrong password to be rejected")
	}
}
