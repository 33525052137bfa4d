package persister

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/pkg/clock"
)

// Persister turns per-shard changes into store writes. Lookups are chunked
// to the store's id limit and fanned out concurrently; every Apply ends in a
// single atomic commit.
type Persister struct {
	store calendar.Store
	clock clock.Clock
}

func New(store calendar.Store, clk clock.Clock) *Persister {
	if store == nil {
		panic("persister: store required")
	}
	return &Persister{store: store, clock: clock.OrReal(clk)}
}

// Chunk splits ids into consecutive batches of at most size ids.
func Chunk(ids []calendar.ShardID, size int) [][]calendar.ShardID {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(ids)
	}
	out := make([][]calendar.ShardID, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func uniqueSorted(ids []calendar.ShardID) []calendar.ShardID {
	seen := make(map[calendar.ShardID]struct{}, len(ids))
	out := make([]calendar.ShardID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func fanOut[T any](ctx context.Context, ids []calendar.ShardID, size int, fetch func(context.Context, []calendar.ShardID) (map[calendar.ShardID]T, error)) (map[calendar.ShardID]T, error) {
	ids = uniqueSorted(ids)
	merged := make(map[calendar.ShardID]T, len(ids))
	if len(ids) == 0 {
		return merged, nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range Chunk(ids, size) {
		g.Go(func() error {
			found, err := fetch(gctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for id, doc := range found {
				merged[id] = doc
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}

// LookupAvailability multi-gets availability shards; missing ids are absent.
func (p *Persister) LookupAvailability(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.AvailabilityShard, error) {
	out, err := fanOut(ctx, ids, p.store.MaxIDsPerQuery(), p.store.AvailabilityByIDs)
	return out, errors.Wrap(err, "lookup availability shards")
}

// LookupPriceCalendars multi-gets price calendars; missing ids are absent.
func (p *Persister) LookupPriceCalendars(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.PriceCalendar, error) {
	out, err := fanOut(ctx, ids, p.store.MaxIDsPerQuery(), p.store.PriceCalendarByIDs)
	return out, errors.Wrap(err, "lookup price calendars")
}

// AvailabilityChange sets the listed days of one month.
type AvailabilityChange struct {
	PropertyID property.ID
	Month      calendar.YearMonth
	Days       map[int]bool
}

func (c AvailabilityChange) ID() calendar.ShardID {
	return calendar.NewShardID(c.PropertyID, c.Month)
}

// Plan describes the writes of one Apply call.
type Plan struct {
	Availability []AvailabilityChange
	// MirrorToPrices copies availability changes onto existing price
	// calendars so both views stay in step.
	MirrorToPrices bool
	// Calendars replace whole price-calendar documents.
	Calendars []calendar.PriceCalendar
	// DayPatches update individual days of existing price calendars.
	DayPatches map[calendar.ShardID]map[int]calendar.DayPatch
}

type Outcome struct {
	AvailabilityUpdated int
	AvailabilityCreated int
	CalendarsWritten    int
	CalendarsPatched    int
	// MissingCalendars lists shards whose day patches had no calendar to land on.
	MissingCalendars []calendar.ShardID
}

// Apply reads the current revision of every targeted shard, builds one
// write per (collection, shard) and commits them together. Existing
// availability shards receive only the changed days; missing ones are
// created with every other day open.
func (p *Persister) Apply(ctx context.Context, plan Plan) (Outcome, error) {
	var out Outcome
	availIDs := make([]calendar.ShardID, 0, len(plan.Availability))
	for _, ch := range plan.Availability {
		availIDs = append(availIDs, ch.ID())
	}
	priceIDs := make([]calendar.ShardID, 0, len(plan.Calendars)+len(plan.DayPatches))
	for _, cal := range plan.Calendars {
		priceIDs = append(priceIDs, cal.ID)
	}
	for id := range plan.DayPatches {
		priceIDs = append(priceIDs, id)
	}
	if plan.MirrorToPrices {
		priceIDs = append(priceIDs, availIDs...)
	}

	var (
		existingAvail  map[calendar.ShardID]calendar.AvailabilityShard
		existingPrices map[calendar.ShardID]calendar.PriceCalendar
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		existingAvail, err = p.LookupAvailability(gctx, availIDs)
		return err
	})
	g.Go(func() (err error) {
		existingPrices, err = p.LookupPriceCalendars(gctx, priceIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return out, err
	}

	now := p.clock.Now()
	var batch calendar.WriteBatch

	changes := mergeAvailability(plan.Availability)
	for _, id := range sortedKeys(changes) {
		ch := changes[id]
		if cur, ok := existingAvail[id]; ok {
			batch.Add(calendar.AvailabilityUpdate{ID: id, ExpectedRevision: cur.Revision, Days: ch.Days, UpdatedAt: now})
			out.AvailabilityUpdated++
			continue
		}
		days := calendar.DefaultAvailability(ch.Month)
		for d, v := range ch.Days {
			if _, inMonth := days[d]; inMonth {
				days[d] = v
			}
		}
		batch.Add(calendar.AvailabilityCreate{Shard: calendar.AvailabilityShard{
			ID:         id,
			PropertyID: ch.PropertyID,
			Month:      ch.Month,
			Available:  days,
			UpdatedAt:  now,
		}})
		out.AvailabilityCreated++
	}

	patches := make(map[calendar.ShardID]map[int]calendar.DayPatch, len(plan.DayPatches))
	for id, days := range plan.DayPatches {
		dst := patchesFor(patches, id)
		for d, patch := range days {
			dst[d] = patch
		}
	}
	if plan.MirrorToPrices {
		for id, ch := range changes {
			dst := patchesFor(patches, id)
			for d, v := range ch.Days {
				v := v
				patch := dst[d]
				patch.Available = &v
				dst[d] = patch
			}
		}
	}

	replaced := make(map[calendar.ShardID]struct{}, len(plan.Calendars))
	for _, cal := range plan.Calendars {
		if extra, ok := patches[cal.ID]; ok {
			cal = cal.Patched(extra)
		}
		cur, exists := existingPrices[cal.ID]
		batch.Add(calendar.PriceCalendarPut{Calendar: cal, ExpectedRevision: cur.Revision, Exists: exists})
		replaced[cal.ID] = struct{}{}
		out.CalendarsWritten++
	}

	for _, id := range sortedKeys(patches) {
		if _, ok := replaced[id]; ok {
			continue
		}
		cur, ok := existingPrices[id]
		if !ok {
			out.MissingCalendars = append(out.MissingCalendars, id)
			continue
		}
		days := make(map[int]calendar.DayPatch, len(patches[id]))
		for d, patch := range patches[id] {
			if _, ok := cur.Days[d]; ok {
				days[d] = patch
			}
		}
		if len(days) == 0 {
			continue
		}
		patched := cur.Patched(days)
		batch.Add(calendar.PriceDaysUpdate{
			ID:               id,
			ExpectedRevision: cur.Revision,
			Days:             days,
			Summary:          patched.Summary,
		})
		out.CalendarsPatched++
	}

	if batch.Empty() {
		return out, nil
	}
	if err := p.store.Commit(ctx, batch); err != nil {
		return Outcome{}, errors.Wrap(err, "commit month shards")
	}
	return out, nil
}

func mergeAvailability(changes []AvailabilityChange) map[calendar.ShardID]AvailabilityChange {
	out := make(map[calendar.ShardID]AvailabilityChange, len(changes))
	for _, ch := range changes {
		id := ch.ID()
		cur, ok := out[id]
		if !ok {
			cur = AvailabilityChange{PropertyID: ch.PropertyID, Month: ch.Month, Days: make(map[int]bool, len(ch.Days))}
		}
		for d, v := range ch.Days {
			cur.Days[d] = v
		}
		out[id] = cur
	}
	return out
}

func patchesFor(all map[calendar.ShardID]map[int]calendar.DayPatch, id calendar.ShardID) map[int]calendar.DayPatch {
	dst, ok := all[id]
	if !ok {
		dst = make(map[int]calendar.DayPatch)
		all[id] = dst
	}
	return dst
}

func sortedKeys[V any](m map[calendar.ShardID]V) []calendar.ShardID {
	keys := make([]calendar.ShardID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
