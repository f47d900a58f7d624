package helpers

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func keyRevokedToken(jti string) string { return "jwt:revoked:" + jti }

// TokenBlacklist records revoked refresh tokens by jti until they would have expired anyway.
// A nil client turns every operation into a no-op.
type TokenBlacklist struct {
	rdb *redis.Client
}

func NewTokenBlacklist(rdb *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rdb: rdb}
}

func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, until time.Time) error {
	if b == nil || b.rdb == nil || jti == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, keyRevokedToken(jti), "1", ttl).Err()
}

func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if b == nil || b.rdb == nil || jti == "" {
		return false, nil
	}
	err := b.rdb.Get(ctx, keyRevokedToken(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
