package helpers

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// TokenIssuer issues and verifies signed session tokens.
// Handlers depend on this interface only, so the signing method can be swapped here.
type TokenIssuer interface {
	Issue(userID string) (TokenPair, error)
	IssueAccess(userID string) (string, time.Time, error)
	VerifyAccess(token string) (*Claims, error)
	VerifyRefresh(token string) (*Claims, error)
}

// JWTManager handles generation and validation of HS256 JWT tokens
type JWTManager struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func NewJWTManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTManager {
	return &JWTManager{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	}
}

type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func (m *JWTManager) Issue(userID string) (TokenPair, error) {
	access, aexp, err := m.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rexp, err := m.sign(userID, TokenTypeRefresh, m.RefreshTTL, m.RefreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

func (m *JWTManager) IssueAccess(userID string) (string, time.Time, error) {
	return m.sign(userID, TokenTypeAccess, m.AccessTTL, m.AccessSecret)
}

func (m *JWTManager) VerifyAccess(tokenStr string) (*Claims, error) {
	return parseToken(tokenStr, m.AccessSecret, TokenTypeAccess)
}

func (m *JWTManager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return parseToken(tokenStr, m.RefreshSecret, TokenTypeRefresh)
}

func (m *JWTManager) sign(userID, tokenType string, ttl time.Duration, secret []byte) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(secret)
	return s, exp, err
}

func parseToken(tokenStr string, secret []byte, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !tkn.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

var _ TokenIssuer = (*JWTManager)(nil)
