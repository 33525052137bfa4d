package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalspot/internal/app/persister"
	"rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/pricing"
	cache "rentalspot/internal/infra/cache/redis"
	"rentalspot/internal/infra/storage/memory"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	gets   int
	down   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) MGet(ctx context.Context, keys ...string) *goredis.SliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.down != nil {
		return goredis.NewSliceResult(nil, f.down)
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := f.values[k]; ok {
			out[i] = v
		}
	}
	return goredis.NewSliceResult(out, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down != nil {
		return goredis.NewStatusResult("", f.down)
	}
	f.values[key] = string(value.([]byte))
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

var july = calendar.YearMonth{Year: 2025, Month: time.July}

func seedCalendar(t *testing.T, store *memory.ShardStore, price float64) calendar.PriceCalendar {
	t.Helper()
	cal := calendar.PriceCalendar{
		ID:         calendar.NewShardID("villa", july),
		PropertyID: "villa",
		Month:      july,
		Days: map[int]calendar.DayRecord{
			1: {BasePrice: 100, AdjustedPrice: price, Prices: map[int]float64{2: price}, Available: true, MinimumStay: 1, PriceSource: pricing.SourceBase},
		},
	}
	var batch calendar.WriteBatch
	batch.Add(calendar.PriceCalendarPut{Calendar: cal})
	require.NoError(t, store.Commit(context.Background(), batch))
	return cal
}

func TestCachedStoreServesRepeatReadsFromRedis(t *testing.T) {
	inner := memory.NewShardStore(30)
	cal := seedCalendar(t, inner, 100)
	client := newFakeRedis()
	store := cache.NewCachedStore(inner, client, time.Minute, nil)
	ctx := context.Background()
	ids := []calendar.ShardID{cal.ID, "villa_2025-08"}

	first, err := store.PriceCalendarByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, first, 1)
	inner.ResetLookups()

	second, err := store.PriceCalendarByIDs(ctx, []calendar.ShardID{cal.ID})
	require.NoError(t, err)
	assert.Empty(t, inner.Lookups(), "hit must not reach the store")
	assert.Equal(t, 100.0, second[cal.ID].Days[1].AdjustedPrice)
	assert.Equal(t, map[int]float64{2: 100}, second[cal.ID].Days[1].Prices)
	assert.Equal(t, int64(1), second[cal.ID].Revision)
}

func TestCachedStoreInvalidatesOnCommit(t *testing.T) {
	inner := memory.NewShardStore(30)
	cal := seedCalendar(t, inner, 100)
	client := newFakeRedis()
	store := cache.NewCachedStore(inner, client, time.Minute, nil)
	ctx := context.Background()

	_, err := store.PriceCalendarByIDs(ctx, []calendar.ShardID{cal.ID})
	require.NoError(t, err)

	price := 140.0
	var batch calendar.WriteBatch
	batch.Add(calendar.PriceDaysUpdate{ID: cal.ID, ExpectedRevision: 1, Days: map[int]calendar.DayPatch{1: {AdjustedPrice: &price}}})
	require.NoError(t, store.Commit(ctx, batch))

	got, err := store.PriceCalendarByIDs(ctx, []calendar.ShardID{cal.ID})
	require.NoError(t, err)
	assert.Equal(t, 140.0, got[cal.ID].Days[1].AdjustedPrice)
	assert.Equal(t, int64(2), got[cal.ID].Revision)
}

func TestCachedStoreFallsBackWhenRedisIsDown(t *testing.T) {
	inner := memory.NewShardStore(30)
	cal := seedCalendar(t, inner, 90)
	client := newFakeRedis()
	client.down = errors.New("connection refused")
	store := cache.NewCachedStore(inner, client, time.Minute, nil)

	got, err := store.PriceCalendarByIDs(context.Background(), []calendar.ShardID{cal.ID})

	require.NoError(t, err)
	assert.Equal(t, 90.0, got[cal.ID].Days[1].AdjustedPrice)
}

func TestCachedStoreKeepsLookupLimit(t *testing.T) {
	store := cache.NewCachedStore(memory.NewShardStore(2), newFakeRedis(), time.Minute, nil)

	_, err := store.PriceCalendarByIDs(context.Background(), []calendar.ShardID{"a_2025-01", "a_2025-02", "a_2025-03"})

	assert.True(t, errors.Is(err, calendar.ErrTooManyIDs))
}

func TestWritesIgnoreStaleCacheEntries(t *testing.T) {
	inner := memory.NewShardStore(30)
	cal := seedCalendar(t, inner, 100)
	client := newFakeRedis()
	store := cache.NewCachedStore(inner, client, time.Minute, nil)
	ctx := context.Background()

	// Cache revision 1, then move the stored calendar on without invalidating.
	_, err := store.PriceCalendarByIDs(ctx, []calendar.ShardID{cal.ID})
	require.NoError(t, err)
	price := 120.0
	var raced calendar.WriteBatch
	raced.Add(calendar.PriceDaysUpdate{ID: cal.ID, ExpectedRevision: 1, Days: map[int]calendar.DayPatch{1: {AdjustedPrice: &price}}})
	require.NoError(t, inner.Commit(ctx, raced))

	p := persister.New(store.Writes(), nil)
	_, err = p.Apply(ctx, persister.Plan{
		Availability:   []persister.AvailabilityChange{{PropertyID: "villa", Month: july, Days: map[int]bool{1: false}}},
		MirrorToPrices: true,
	})
	require.NoError(t, err)

	got, err := store.PriceCalendarByIDs(ctx, []calendar.ShardID{cal.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got[cal.ID].Revision)
	assert.False(t, got[cal.ID].Days[1].Available)
	assert.Equal(t, 120.0, got[cal.ID].Days[1].AdjustedPrice)
}
