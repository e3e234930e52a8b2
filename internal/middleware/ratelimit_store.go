package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/csahub/internal/cache"
)

const defaultRateWindow = time.Minute

// RateStore counts hits for a key within a fixed window and reports how long
// the current window has left.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type memoryRateStore struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	nextGC  time.Time
	clock   func() time.Time
}

type rateWindow struct {
	hits    int
	resetAt time.Time
}

// NewMemoryRateStore keeps counters in process memory. Suitable for a single
// instance and for tests.
func NewMemoryRateStore() RateStore {
	return &memoryRateStore{windows: make(map[string]rateWindow), clock: time.Now}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = defaultRateWindow
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !now.Before(s.nextGC) {
		s.collect(now)
		s.nextGC = now.Add(window)
	}

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = rateWindow{resetAt: now.Add(window)}
	}
	w.hits++
	s.windows[key] = w

	return w.hits, w.resetAt.Sub(now), nil
}

// collect drops windows that have already reset. Callers hold mu.
func (s *memoryRateStore) collect(now time.Time) {
	for key, w := range s.windows {
		if now.After(w.resetAt) {
			delete(s.windows, key)
		}
	}
}

type cacheRateStore struct {
	store cache.Store
}

// NewStoreRateStore counts through the database-backed cache so limits hold
// across restarts and replicas. A nil store yields a nil RateStore, which
// disables RateLimit.
func NewStoreRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return cacheRateStore{store: store}
}

func (s cacheRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = defaultRateWindow
	}
	hits, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	if err != nil {
		return 0, 0, err
	}
	return int(hits), ttl, nil
}
