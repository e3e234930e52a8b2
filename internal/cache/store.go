// Package cache provides the expiring key/value store shared by admin
// sessions and the request throttle.
package cache

import (
	"context"
	"time"
)

// Key namespaces. Each consumer owns one prefix so a sweep or a flush can be
// scoped to it.
const (
	SessionPrefix   = "session:"
	RateLimitPrefix = "ratelimit:"
)

// Store is an expiring byte store. Get reports ok=false for keys that are
// missing or past their TTL.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// IncrementWithTTL bumps a counter. The TTL is set when the counter is
	// created or has expired, and is not extended by later hits.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}
