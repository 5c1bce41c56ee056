// Package statuscache is the single source of truth polling clients read
// job status from. Values are stored as encoded bytes so a Set always
// replaces the previous value in full.
package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"credify/globals"
)

// Store is a key-value store with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// VerificationKey is the cache key of a verification job.
func VerificationKey(contentID string) string {
	return globals.VerificationPrefix + contentID
}

// ForgeryKey is the cache key of a forgery-detection job.
func ForgeryKey(contentID string) string {
	return globals.ForgeryPrefix + contentID
}

// GetJSON decodes the value at key into dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
