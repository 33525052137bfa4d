package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"

	"rentalspot/internal/domain/calendar"
)

const (
	keyPrefix  = "rentalspot:prices:"
	DefaultTTL = 10 * time.Minute
)

// Client is the subset of go-redis the cache uses.
type Client interface {
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// CachedStore serves price calendars from Redis and falls back to the
// wrapped store on a miss. It backs calendar reads only; writers go through
// Writes. Every commit deletes the cached calendars it
// targeted, whether or not it succeeded, so a reader never keeps a stale
// revision for long. Redis failures degrade to the wrapped store.
type CachedStore struct {
	inner  calendar.Store
	client Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedStore(inner calendar.Store, client Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (s *CachedStore) MaxIDsPerQuery() int { return s.inner.MaxIDsPerQuery() }

func (s *CachedStore) AvailabilityByIDs(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.AvailabilityShard, error) {
	return s.inner.AvailabilityByIDs(ctx, ids)
}

func (s *CachedStore) PriceCalendarByIDs(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.PriceCalendar, error) {
	if len(ids) > s.inner.MaxIDsPerQuery() {
		return nil, errors.Wrapf(calendar.ErrTooManyIDs, "%d ids, limit %d", len(ids), s.inner.MaxIDsPerQuery())
	}
	out := make(map[calendar.ShardID]calendar.PriceCalendar, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	misses := ids
	if s.client != nil {
		var err error
		misses, err = s.fromCache(ctx, ids, out)
		if err != nil {
			s.warn("price cache read failed", err)
			misses = ids
		}
	}
	if len(misses) == 0 {
		return out, nil
	}
	found, err := s.inner.PriceCalendarByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, cal := range found {
		out[id] = cal
		s.store(ctx, cal)
	}
	return out, nil
}

func (s *CachedStore) fromCache(ctx context.Context, ids []calendar.ShardID, out map[calendar.ShardID]calendar.PriceCalendar) ([]calendar.ShardID, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis mget")
	}
	var misses []calendar.ShardID
	for i, id := range ids {
		raw, ok := values[i].(string)
		if !ok {
			misses = append(misses, id)
			continue
		}
		var cal calendar.PriceCalendar
		if err := json.Unmarshal([]byte(raw), &cal); err != nil {
			s.warn("price cache entry unreadable", err)
			misses = append(misses, id)
			continue
		}
		out[id] = cal
	}
	return misses, nil
}

func (s *CachedStore) store(ctx context.Context, cal calendar.PriceCalendar) {
	if s.client == nil {
		return
	}
	raw, err := json.Marshal(cal)
	if err != nil {
		s.warn("price cache encode failed", err)
		return
	}
	if err := s.client.Set(ctx, cacheKey(cal.ID), raw, s.ttl).Err(); err != nil {
		s.warn("price cache write failed", err)
	}
}

func (s *CachedStore) Commit(ctx context.Context, batch calendar.WriteBatch) error {
	err := s.inner.Commit(ctx, batch)
	if s.client == nil {
		return err
	}
	targets := batch.Targets()[calendar.CollectionPrices]
	if len(targets) == 0 {
		return err
	}
	keys := make([]string, len(targets))
	for i, id := range targets {
		keys[i] = cacheKey(id)
	}
	if delErr := s.client.Del(ctx, keys...).Err(); delErr != nil {
		s.warn("price cache invalidation failed", delErr)
	}
	return err
}

// Writes returns the view of s the write path uses. Its reads skip Redis, so
// the revisions a commit is guarded by come from the store itself; its
// commits still invalidate the cache.
func (s *CachedStore) Writes() calendar.Store {
	return writeView{cached: s}
}

type writeView struct {
	cached *CachedStore
}

func (w writeView) MaxIDsPerQuery() int { return w.cached.inner.MaxIDsPerQuery() }

func (w writeView) AvailabilityByIDs(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.AvailabilityShard, error) {
	return w.cached.inner.AvailabilityByIDs(ctx, ids)
}

func (w writeView) PriceCalendarByIDs(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.PriceCalendar, error) {
	return w.cached.inner.PriceCalendarByIDs(ctx, ids)
}

func (w writeView) Commit(ctx context.Context, batch calendar.WriteBatch) error {
	return w.cached.Commit(ctx, batch)
}

func (s *CachedStore) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, "err", err)
	}
}

func cacheKey(id calendar.ShardID) string {
	return keyPrefix + string(id)
}

// NewClient connects to addr and pings it.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return client, nil
}

var (
	_ calendar.Store = (*CachedStore)(nil)
	_ calendar.Store = writeView{}
	_ Client         = (*goredis.Client)(nil)
)
