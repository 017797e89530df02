package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

// CacheRepository is the Redis read-through cache for section timetables.
// The session resolver hits timetables on every call, so cached reads keep
// the hot path off Postgres. A nil client degrades to cache misses.
type CacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheRepository constructs the cache repository.
func NewCacheRepository(client *redis.Client, ttl time.Duration) *CacheRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CacheRepository{client: client, ttl: ttl}
}

func timetableKey(section string) string {
	return fmt.Sprintf("timetable:%s", section)
}

// GetTimetable returns a cached timetable or ErrCacheMiss.
func (r *CacheRepository) GetTimetable(ctx context.Context, section string) (*models.Timetable, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, timetableKey(section)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get timetable %s: %w", section, err)
	}
	var t models.Timetable
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unmarshal cached timetable %s: %w", section, err)
	}
	return &t, nil
}

// SetTimetable caches a timetable for the configured TTL.
func (r *CacheRepository) SetTimetable(ctx context.Context, t *models.Timetable) error {
	if r.client == nil || t == nil {
		return nil
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal timetable %s: %w", t.Section, err)
	}
	if err := r.client.Set(ctx, timetableKey(t.Section), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set timetable %s: %w", t.Section, err)
	}
	return nil
}

// InvalidateSections drops cached timetables after an upload replaces them.
func (r *CacheRepository) InvalidateSections(ctx context.Context, sections []string) error {
	if r.client == nil || len(sections) == 0 {
		return nil
	}
	keys := make([]string, len(sections))
	for i, s := range sections {
		keys[i] = timetableKey(s)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate timetables: %w", err)
	}
	return nil
}
