package services

import (
	"context"
	"time"
)

const revokedTokenKeyPrefix = "revoked:jwt:"

// KeyValue is the slice of the cache the token store needs.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TokenStore remembers logged-out token ids until the tokens expire.
type TokenStore struct {
	cache KeyValue
}

func NewTokenStore(cache KeyValue) *TokenStore {
	return &TokenStore{cache: cache}
}

// Revoke marks a token id as unusable for ttl. A non-positive ttl means
// the token already expired and nothing is stored.
func (s *TokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	return s.cache.Set(ctx, revokedTokenKeyPrefix+tokenID, []byte("1"), ttl)
}

// IsRevoked fails open: a cache error reads as not revoked.
func (s *TokenStore) IsRevoked(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}
	data, err := s.cache.Get(ctx, revokedTokenKeyPrefix+tokenID)
	if err != nil {
		return false
	}
	return data != nil
}
