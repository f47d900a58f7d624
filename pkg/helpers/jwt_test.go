package helpers

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestManager() *JWTManager {
	return NewJWTManager("access-secret", "refresh-secret", time.Minute, time.Hour)
}

func TestJWTManager_IssueAndVerify(t *testing.T) {
	m := newTestManager()
	pair, err := m.Issue("user-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be non-empty")
	}
	if !pair.RefreshTokenExpiry.After(pair.AccessTokenExpiry) {
		t.Error("refresh token should outlive the access token")
	}

	ac, err := m.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if ac.UserID != "user-123" || ac.TokenType != TokenTypeAccess {
		t.Errorf("unexpected access claims: %+v", ac)
	}
	if ac.ID == "" {
		t.Error("expected a jti")
	}

	rc, err := m.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if rc.UserID != "user-123" || rc.TokenType != TokenTypeRefresh {
		t.Errorf("unexpected refresh claims: %+v", rc)
	}
	if rc.ID == ac.ID {
		t.Error("access and refresh tokens must have distinct ids")
	}
}

func TestJWTManager_RejectsCrossedTokens(t *testing.T) {
	m := newTestManager()
	pair, _ := m.Issue("user-123")

	// Refresh token signed with the refresh secret fails the access signature check.
	if _, err := m.VerifyAccess(pair.RefreshToken); err == nil {
		t.Error("refresh token must not verify as access token")
	}
	if _, err := m.VerifyRefresh(pair.AccessToken); err == nil {
		t.Error("access token must not verify as refresh token")
	}
}

func TestJWTManager_WrongTypeSameSecret(t *testing.T) {
	m := NewJWTManager("same", "same", time.Minute, time.Hour)
	pair, _ := m.Issue("user-123")
	if _, err := m.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("a", "r", -time.Minute, time.Hour)
	tok, _, err := m.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.VerifyAccess(tok); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTManager_Corrupted(t *testing.T) {
	m := newTestManager()
	tok, _, _ := m.IssueAccess("user-123")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"truncated", tok[:len(tok)-4]},
		{"other secret", mustSign(t, "other", TokenTypeAccess)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.VerifyAccess(tt.token); err == nil {
				t.Error("expected verification to fail")
			}
		})
	}
}

func TestJWTManager_RejectsNoneAlg(t *testing.T) {
	claims := &Claims{
		UserID:    "user-123",
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := newTestManager().VerifyAccess(tok); err == nil {
		t.Error("expected alg=none token to be rejected")
	}
}

func mustSign(t *testing.T, secret, tokenType string) string {
	t.Helper()
	m := NewJWTManager(secret, secret, time.Minute, time.Minute)
	s, _, err := m.sign("user-123", tokenType, time.Minute, []byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}
