package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tcsintel/intelgraph/internal/circuitbreaker"
	"github.com/tcsintel/intelgraph/internal/metrics"
)

// indexKey holds the set of live cache keys. It lives outside the entry
// prefix so pattern scans over entries never pick it up.
const indexKey = "intel:cache_index"

// FetchFunc produces a fresh entry for a key on a cache miss.
type FetchFunc func(ctx context.Context) (*Entry, error)

// Store is the research cache: one Redis key per (competitor, focus)
// pair plus a set index of live keys. Reads degrade to a miss when Redis
// is unreachable; a research run never fails because the cache did.
type Store struct {
	client         *circuitbreaker.RedisWrapper
	logger         *zap.Logger
	storageTTL     time.Duration // hard cap on how long Redis keeps an entry
	defaultTTLDays int
	flights        singleflight.Group
}

// NewStore creates a cache store backed by the given Redis client.
func NewStore(client *circuitbreaker.RedisWrapper, storageTTL time.Duration, defaultTTLDays int, logger *zap.Logger) *Store {
	if defaultTTLDays <= 0 {
		defaultTTLDays = 60
	}
	return &Store{
		client:         client,
		logger:         logger,
		storageTTL:     storageTTL,
		defaultTTLDays: defaultTTLDays,
	}
}

// Get returns the entry for key, or nil when absent. Reads never mutate
// the cache: an expired or thin entry is reported as-is and left in
// place. Redis failures degrade to a miss.
func (s *Store) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := s.client.Get(ctx, key.redisKey()).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		s.logger.Warn("Cache read failed, treating as miss",
			zap.String("competitor", key.Competitor),
			zap.Error(err),
		)
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		s.logger.Warn("Cache entry corrupted, treating as miss",
			zap.String("competitor", key.Competitor),
			zap.Error(err),
		)
		return nil, nil
	}

	return &entry, nil
}

// Put stores the entry for key, replacing any prior one.
func (s *Store) Put(ctx context.Context, key Key, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	rk := key.redisKey()
	if err := s.client.Set(ctx, rk, data, s.storageTTL).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := s.client.SAdd(ctx, indexKey, rk).Err(); err != nil {
		// Entry written but unindexed; Info undercounts until the next Put
		s.logger.Warn("Failed to index cache entry", zap.String("key", rk), zap.Error(err))
	}

	s.logger.Info("Cached research data",
		zap.String("competitor", entry.Competitor),
		zap.Int("sources", len(entry.Sources)),
	)
	return nil
}

// GetOrFetch returns an acceptable cached entry, or collapses concurrent
// fetches for the same key into a single call to fetch and caches its
// result. The bool reports whether the entry came from cache. Every
// waiter of a shared flight receives the same fresh entry.
func (s *Store) GetOrFetch(ctx context.Context, key Key, maxAgeDays, minSources int, fetch FetchFunc) (*Entry, bool, error) {
	entry, _ := s.Get(ctx, key)
	if Accept(entry, maxAgeDays, minSources) {
		metrics.CacheHits.Inc()
		return entry, true, nil
	}
	metrics.CacheMisses.Inc()

	v, err, shared := s.flights.Do(key.redisKey(), func() (interface{}, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Put(ctx, key, fresh); err != nil {
			// A failed write only costs a re-fetch later
			s.logger.Warn("Failed to cache fresh research",
				zap.String("competitor", key.Competitor),
				zap.Error(err),
			)
		}
		return fresh, nil
	})
	if shared {
		metrics.SingleFlightShared.Inc()
	}
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// ClearAll removes every cache entry and returns how many were deleted.
func (s *Store) ClearAll(ctx context.Context) (int, error) {
	keys, err := s.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}

	deleted := 0
	for _, rk := range keys {
		n, err := s.client.Del(ctx, rk).Result()
		if err != nil {
			continue
		}
		deleted += int(n)
	}
	if err := s.client.Del(ctx, indexKey).Err(); err != nil {
		s.logger.Warn("Failed to drop cache index", zap.Error(err))
	}

	s.logger.Info("Cleared cache", zap.Int("deleted", deleted))
	return deleted, nil
}

// ClearCompetitor removes all entries for one competitor across every
// research focus and returns how many were deleted.
func (s *Store) ClearCompetitor(ctx context.Context, competitor string) (int, error) {
	pattern := keyPrefix + slug(competitor) + ":*"
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}

	deleted := 0
	for _, rk := range keys {
		n, err := s.client.Del(ctx, rk).Result()
		if err != nil {
			continue
		}
		deleted += int(n)
		s.client.SRem(ctx, indexKey, rk)
	}

	s.logger.Info("Cleared competitor cache",
		zap.String("competitor", competitor),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}

// CleanupExpired removes entries past their own freshness window
// (entries without one use defaultTTLDays) and returns how many were
// deleted. Running it twice deletes nothing the second time.
func (s *Store) CleanupExpired(ctx context.Context, defaultTTLDays int) (int, error) {
	if defaultTTLDays <= 0 {
		defaultTTLDays = s.defaultTTLDays
	}

	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read cache index: %w", err)
	}

	now := time.Now()
	deleted := 0
	for _, rk := range members {
		data, err := s.client.Get(ctx, rk).Bytes()
		if err == redis.Nil {
			// Storage cap already dropped the value; fix the index
			s.client.SRem(ctx, indexKey, rk)
			continue
		} else if err != nil {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.logger.Warn("Dropping corrupted cache entry", zap.String("key", rk))
			if s.client.Del(ctx, rk).Err() == nil {
				s.client.SRem(ctx, indexKey, rk)
				deleted++
			}
			continue
		}

		if entry.IsExpired(now, defaultTTLDays) {
			if s.client.Del(ctx, rk).Err() == nil {
				s.client.SRem(ctx, indexKey, rk)
				deleted++
			}
		}
	}

	s.logger.Info("Cleaned up expired cache entries", zap.Int("deleted", deleted))
	return deleted, nil
}

// Info summarizes the cache contents, newest entries first.
func (s *Store) Info(ctx context.Context) (*Info, error) {
	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache index: %w", err)
	}

	now := time.Now()
	info := &Info{CacheEntries: make([]InfoEntry, 0, len(members))}
	for _, rk := range members {
		if !strings.HasPrefix(rk, keyPrefix) {
			continue
		}
		data, err := s.client.Get(ctx, rk).Bytes()
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}

		expiresAt := entry.ExpiresAt(s.defaultTTLDays)
		info.CacheEntries = append(info.CacheEntries, InfoEntry{
			Competitor:      entry.Competitor,
			ResearchFocus:   entry.ResearchFocus,
			CachedAt:        entry.CachedAt,
			ExpiresAt:       expiresAt,
			IsExpired:       now.After(expiresAt),
			SourcesCount:    len(entry.Sources),
			ConfidenceScore: entry.ConfidenceScore,
		})
	}

	sort.Slice(info.CacheEntries, func(i, j int) bool {
		return info.CacheEntries[i].CachedAt.After(info.CacheEntries[j].CachedAt)
	})

	info.TotalCached = len(info.CacheEntries)
	for _, e := range info.CacheEntries {
		if e.IsExpired {
			info.ExpiredCount++
		}
	}
	return info, nil
}

// RedisWrapper returns the underlying Redis wrapper for health checks.
func (s *Store) RedisWrapper() *circuitbreaker.RedisWrapper {
	return s.client
}

// Info summarizes cache contents for the inspection endpoint.
type Info struct {
	TotalCached  int         `json:"total_cached"`
	ExpiredCount int         `json:"expired_count"`
	CacheEntries []InfoEntry `json:"cache_entries"`
}

// InfoEntry is one cache entry's summary line.
type InfoEntry struct {
	Competitor      string    `json:"competitor"`
	ResearchFocus   string    `json:"research_focus"`
	CachedAt        time.Time `json:"cached_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsExpired       bool      `json:"is_expired"`
	SourcesCount    int       `json:"sources_count"`
	ConfidenceScore float64   `json:"confidence_score"`
}
