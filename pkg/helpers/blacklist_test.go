package helpers

import (
	"context"
	"testing"
	"time"
)

func TestTokenBlacklist_NilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	b := NewTokenBlacklist(nil)
	if err := b.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := b.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Error("nil-backed blacklist must never report revoked")
	}

	var nilList *TokenBlacklist
	if revoked, _ := nilList.IsRevoked(ctx, "jti-1"); revoked {
		t.Error("nil blacklist must never report revoked")
	}
}

func TestKeyRevokedToken(t *testing.T) {
	if got := keyRevokedToken("abc"); got != "jwt:revoked:abc" {
		t.Errorf("unexpected key %q", got)
	}
}
