package memory

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/domain/calendar"
)

// ShardStore keeps month shards in memory. Commit validates every revision
// guard before applying anything, so a batch lands whole or not at all.
type ShardStore struct {
	mu        sync.RWMutex
	maxIDs    int
	avail     map[calendar.ShardID]calendar.AvailabilityShard
	prices    map[calendar.ShardID]calendar.PriceCalendar
	lookups   [][]calendar.ShardID
	failNext  error
	commitLog []calendar.WriteBatch
}

func NewShardStore(maxIDs int) *ShardStore {
	if maxIDs <= 0 {
		maxIDs = 30
	}
	return &ShardStore{
		maxIDs: maxIDs,
		avail:  make(map[calendar.ShardID]calendar.AvailabilityShard),
		prices: make(map[calendar.ShardID]calendar.PriceCalendar),
	}
}

func (s *ShardStore) MaxIDsPerQuery() int { return s.maxIDs }

func (s *ShardStore) AvailabilityByIDs(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.AvailabilityShard, error) {
	if err := s.recordLookup(ctx, ids); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[calendar.ShardID]calendar.AvailabilityShard, len(ids))
	for _, id := range ids {
		if shard, ok := s.avail[id]; ok {
			out[id] = copyAvailability(shard)
		}
	}
	return out, nil
}

func (s *ShardStore) PriceCalendarByIDs(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.PriceCalendar, error) {
	if err := s.recordLookup(ctx, ids); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[calendar.ShardID]calendar.PriceCalendar, len(ids))
	for _, id := range ids {
		if cal, ok := s.prices[id]; ok {
			out[id] = copyCalendar(cal)
		}
	}
	return out, nil
}

func (s *ShardStore) recordLookup(ctx context.Context, ids []calendar.ShardID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) > s.maxIDs {
		return errors.Wrapf(calendar.ErrTooManyIDs, "%d ids, limit %d", len(ids), s.maxIDs)
	}
	batch := append([]calendar.ShardID(nil), ids...)
	s.mu.Lock()
	s.lookups = append(s.lookups, batch)
	s.mu.Unlock()
	return nil
}

func (s *ShardStore) Commit(ctx context.Context, batch calendar.WriteBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	for _, op := range batch.Ops {
		if err := s.check(op); err != nil {
			return err
		}
	}
	for _, op := range batch.Ops {
		s.apply(op)
	}
	s.commitLog = append(s.commitLog, batch)
	return nil
}

func (s *ShardStore) check(op calendar.WriteOp) error {
	switch op := op.(type) {
	case calendar.AvailabilityUpdate:
		cur, ok := s.avail[op.ID]
		if !ok || cur.Revision != op.ExpectedRevision {
			return errors.Wrapf(calendar.ErrConcurrentUpdate, "availability %s", op.ID)
		}
	case calendar.AvailabilityCreate:
		if _, ok := s.avail[op.Shard.ID]; ok {
			return errors.Wrapf(calendar.ErrConcurrentUpdate, "availability %s already exists", op.Shard.ID)
		}
	case calendar.PriceCalendarPut:
		cur, ok := s.prices[op.Calendar.ID]
		if !op.Exists && ok {
			return errors.Wrapf(calendar.ErrConcurrentUpdate, "price calendar %s already exists", op.Calendar.ID)
		}
		if op.Exists && (!ok || cur.Revision != op.ExpectedRevision) {
			return errors.Wrapf(calendar.ErrConcurrentUpdate, "price calendar %s", op.Calendar.ID)
		}
	case calendar.PriceDaysUpdate:
		cur, ok := s.prices[op.ID]
		if !ok || cur.Revision != op.ExpectedRevision {
			return errors.Wrapf(calendar.ErrConcurrentUpdate, "price calendar %s", op.ID)
		}
	default:
		return errors.Newf("memory: unsupported write op %T", op)
	}
	return nil
}

func (s *ShardStore) apply(op calendar.WriteOp) {
	switch op := op.(type) {
	case calendar.AvailabilityUpdate:
		cur := s.avail[op.ID]
		if cur.Available == nil {
			cur.Available = make(map[int]bool, len(op.Days))
		}
		for d, v := range op.Days {
			cur.Available[d] = v
		}
		cur.UpdatedAt = op.UpdatedAt
		cur.Revision++
		s.avail[op.ID] = cur
	case calendar.AvailabilityCreate:
		shard := copyAvailability(op.Shard)
		shard.Revision = 1
		s.avail[shard.ID] = shard
	case calendar.PriceCalendarPut:
		cal := copyCalendar(op.Calendar)
		cal.Revision = op.ExpectedRevision + 1
		s.prices[cal.ID] = cal
	case calendar.PriceDaysUpdate:
		cur := s.prices[op.ID]
		cur = cur.Patched(op.Days)
		cur.Summary = op.Summary
		cur.Revision++
		s.prices[op.ID] = cur
	}
}

// Lookups returns the id batches passed to multi-get calls so far.
func (s *ShardStore) Lookups() [][]calendar.ShardID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]calendar.ShardID, len(s.lookups))
	copy(out, s.lookups)
	return out
}

func (s *ShardStore) ResetLookups() {
	s.mu.Lock()
	s.lookups = nil
	s.mu.Unlock()
}

// Commits returns the batches committed so far.
func (s *ShardStore) Commits() []calendar.WriteBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]calendar.WriteBatch, len(s.commitLog))
	copy(out, s.commitLog)
	return out
}

// FailNextCommit makes the next Commit return err without writing.
func (s *ShardStore) FailNextCommit(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// Availability returns a stored availability shard.
func (s *ShardStore) Availability(id calendar.ShardID) (calendar.AvailabilityShard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shard, ok := s.avail[id]
	return copyAvailability(shard), ok
}

// PriceCalendar returns a stored price calendar.
func (s *ShardStore) PriceCalendar(id calendar.ShardID) (calendar.PriceCalendar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cal, ok := s.prices[id]
	return copyCalendar(cal), ok
}

// PutAvailability seeds a shard directly, bypassing revision checks.
func (s *ShardStore) PutAvailability(shard calendar.AvailabilityShard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shard.Revision == 0 {
		shard.Revision = 1
	}
	s.avail[shard.ID] = copyAvailability(shard)
}

// PutPriceCalendar seeds a calendar directly, keeping its revision as
// given; zero stands for a document written without one.
func (s *ShardStore) PutPriceCalendar(cal calendar.PriceCalendar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[cal.ID] = copyCalendar(cal)
}

func copyAvailability(in calendar.AvailabilityShard) calendar.AvailabilityShard {
	out := in
	if in.Available != nil {
		out.Available = make(map[int]bool, len(in.Available))
		for d, v := range in.Available {
			out.Available[d] = v
		}
	}
	return out
}

func copyCalendar(in calendar.PriceCalendar) calendar.PriceCalendar {
	out := in
	if in.Days != nil {
		out.Days = make(map[int]calendar.DayRecord, len(in.Days))
		for d, rec := range in.Days {
			if rec.Prices != nil {
				prices := make(map[int]float64, len(rec.Prices))
				for g, p := range rec.Prices {
					prices[g] = p
				}
				rec.Prices = prices
			}
			out.Days[d] = rec
		}
	}
	return out
}

var _ calendar.Store = (*ShardStore)(nil)
