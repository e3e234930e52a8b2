package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/csahub/internal/models"
)

var errNotInitialised = errors.New("cache: database store not initialised")

// DatabaseStore implements the cache Store interface using the primary SQL database.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of the store using now as its time source.
func (s *DatabaseStore) WithClock(now func() time.Time) *DatabaseStore {
	if s == nil || now == nil {
		return s
	}
	cpy := *s
	cpy.now = now
	return &cpy
}

func (s *DatabaseStore) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx)
}

// keyIs quotes the "key" column, a reserved word on MySQL.
func keyIs(value any) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: value}
}

// IncrementWithTTL increments a fixed-window counter for key. The window
// starts with the first increment; the returned duration is the time left in it.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errNotInitialised
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now()
	count, expiry := int64(1), now.Add(window)

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.CacheEntry
		switch err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(keyIs(key)).Take(&current).Error; {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.CacheEntry{Key: key, Value: counterValue(count), ExpiresAt: expiry}).Error
		case err != nil:
			return err
		}

		if !current.Expired(now) {
			n, _ := strconv.ParseInt(string(current.Value), 10, 64)
			count, expiry = n+1, current.ExpiresAt
		}
		return tx.Model(&models.CacheEntry{}).Where(keyIs(key)).
			Updates(map[string]any{"value": counterValue(count), "expires_at": expiry}).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return count, expiry.Sub(now), nil
}

// Set upserts the value for a given key with expiry. A non-positive ttl never expires.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errNotInitialised
	}

	entry := models.CacheEntry{Key: key, Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl)
	}
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}
	return s.conn(ctx).Clauses(upsert).Create(&entry).Error
}

// Get retrieves a value by key, respecting expiry.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errNotInitialised
	}

	var entry models.CacheEntry
	switch err := s.conn(ctx).Where(keyIs(key)).Take(&entry).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	if entry.Expired(s.now()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Delete removes keys from the store.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errNotInitialised
	}
	if len(keys) == 0 {
		return nil
	}

	return s.conn(ctx).
		Where(clause.IN{Column: clause.Column{Name: "key"}, Values: toAny(keys)}).
		Delete(&models.CacheEntry{}).Error
}

// DeleteExpired purges every entry whose expiry is before now and returns the count removed.
func (s *DatabaseStore) DeleteExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errNotInitialised
	}
	res := s.conn(ctx).
		Where("expires_at > ? AND expires_at <= ?", time.Time{}, s.now()).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}

func counterValue(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
