package calendar

import (
	"context"
	"time"

	"rentalspot/internal/domain/pricing"
)

// Store persists month shards. Lookups are capped at MaxIDsPerQuery ids per
// call and fail with ErrTooManyIDs beyond it; missing ids are absent from the
// result. Commit applies every op of a batch or none of them, and fails with
// ErrConcurrentUpdate when an op's revision guard no longer matches.
type Store interface {
	AvailabilityByIDs(ctx context.Context, ids []ShardID) (map[ShardID]AvailabilityShard, error)
	PriceCalendarByIDs(ctx context.Context, ids []ShardID) (map[ShardID]PriceCalendar, error)
	Commit(ctx context.Context, batch WriteBatch) error
	MaxIDsPerQuery() int
}

type Collection string

const (
	CollectionAvailability Collection = "availability"
	CollectionPrices       Collection = "prices"
)

// WriteOp is one document write inside a batch.
type WriteOp interface {
	Target() (Collection, ShardID)
}

type WriteBatch struct {
	Ops []WriteOp
}

func (b *WriteBatch) Add(op WriteOp) {
	b.Ops = append(b.Ops, op)
}

func (b WriteBatch) Empty() bool { return len(b.Ops) == 0 }

// Targets lists every (collection, shard) the batch touches.
func (b WriteBatch) Targets() map[Collection][]ShardID {
	out := make(map[Collection][]ShardID)
	for _, op := range b.Ops {
		c, id := op.Target()
		out[c] = append(out[c], id)
	}
	return out
}

// AvailabilityUpdate sets individual days on an existing shard whose
// revision is still ExpectedRevision.
type AvailabilityUpdate struct {
	ID               ShardID
	ExpectedRevision int64
	Days             map[int]bool
	UpdatedAt        time.Time
}

func (op AvailabilityUpdate) Target() (Collection, ShardID) {
	return CollectionAvailability, op.ID
}

// AvailabilityCreate inserts a fully populated shard. It fails with
// ErrConcurrentUpdate when the shard already exists.
type AvailabilityCreate struct {
	Shard AvailabilityShard
}

func (op AvailabilityCreate) Target() (Collection, ShardID) {
	return CollectionAvailability, op.Shard.ID
}

// PriceCalendarPut replaces a whole price calendar. ExpectedRevision 0
// means the document must not exist yet.
// PriceCalendarPut replaces a whole price calendar. Without Exists the
// document is created and must not be stored yet; with it the stored
// document must still be at ExpectedRevision, which may be zero for
// documents written without a revision.
type PriceCalendarPut struct {
	Calendar         PriceCalendar
	ExpectedRevision int64
	Exists           bool
}

func (op PriceCalendarPut) Target() (Collection, ShardID) {
	return CollectionPrices, op.Calendar.ID
}

// DayPatch lists the day fields to overwrite; nil fields are left alone.
type DayPatch struct {
	AdjustedPrice *float64
	Prices        map[int]float64
	Available     *bool
	MinimumStay   *int
	SeasonID      *string
	SeasonName    *string
	OverrideID    *string
	Reason        *string
	PriceSource   *pricing.Source
}

// PriceDaysUpdate patches individual day fields of an existing calendar and
// replaces its summary.
type PriceDaysUpdate struct {
	ID               ShardID
	ExpectedRevision int64
	Days             map[int]DayPatch
	Summary          Summary
}

func (op PriceDaysUpdate) Target() (Collection, ShardID) {
	return CollectionPrices, op.ID
}

// Apply returns a copy of rec with the patch's non-nil fields set.
func (p DayPatch) Apply(rec DayRecord) DayRecord {
	if p.AdjustedPrice != nil {
		rec.AdjustedPrice = *p.AdjustedPrice
	}
	if p.Prices != nil {
		prices := make(map[int]float64, len(p.Prices))
		for g, v := range p.Prices {
			prices[g] = v
		}
		rec.Prices = prices
	}
	if p.Available != nil {
		rec.Available = *p.Available
	}
	if p.MinimumStay != nil {
		rec.MinimumStay = *p.MinimumStay
	}
	if p.SeasonID != nil {
		rec.SeasonID = *p.SeasonID
	}
	if p.SeasonName != nil {
		rec.SeasonName = *p.SeasonName
	}
	if p.OverrideID != nil {
		rec.OverrideID = *p.OverrideID
	}
	if p.Reason != nil {
		rec.Reason = *p.Reason
	}
	if p.PriceSource != nil {
		rec.PriceSource = *p.PriceSource
	}
	return rec
}

// Patched returns a copy of c with patches applied and the summary
// recomputed. Days absent from c are ignored.
func (c PriceCalendar) Patched(patches map[int]DayPatch) PriceCalendar {
	days := make(map[int]DayRecord, len(c.Days))
	for d, rec := range c.Days {
		days[d] = rec
	}
	for d, p := range patches {
		rec, ok := days[d]
		if !ok {
			continue
		}
		days[d] = p.Apply(rec)
	}
	out := c
	out.Days = days
	out.Summary = Summarize(days, c.BasePrice())
	return out
}

// BasePrice reads the base nightly price recorded on the calendar's days.
func (c PriceCalendar) BasePrice() float64 {
	for _, rec := range c.Days {
		return rec.BasePrice
	}
	return 0
}
