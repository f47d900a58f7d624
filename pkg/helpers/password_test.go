package helpers

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "secret" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("expected a bcrypt hash, got %q", hash)
	}
	if !h.Compare(hash, "secret") {
		t.Error("expected matching password to verify")
	}
	if h.Compare(hash, "Secret") {
		t.Error("expected wrong password to fail")
	}
	if h.Compare("not-a-hash", "secret") {
		t.Error("expected garbage hash to fail")
	}
}

func TestBcryptHasher_DefaultCost(t *testing.T) {
	if got := NewBcryptHasher(0).Cost; got != bcrypt.DefaultCost {
		t.Errorf("expected default cost, got %d", got)
	}
}

func TestBcryptHasher_TooLong(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	if _, err := h.Hash(strings.Repeat("a", 73)); err == nil {
		t.Error("expected error for password over 72 bytes")
	}
}
