package mongo

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentalspot/internal/domain/calendar"
)

const (
	availabilityCollection = "calendar_availability"
	pricesCollection       = "calendar_prices"
)

// ShardStore keeps month shards in two collections keyed by shard id. Every
// Commit runs in one transaction; a revision guard that no longer matches
// aborts it with calendar.ErrConcurrentUpdate.
type ShardStore struct {
	db     *mongo.Database
	avail  *mongo.Collection
	prices *mongo.Collection
	maxIDs int
}

func NewShardStore(db *mongo.Database, maxIDs int) *ShardStore {
	if maxIDs <= 0 {
		maxIDs = 30
	}
	avail := db.Collection(availabilityCollection)
	prices := db.Collection(pricesCollection)
	_, _ = avail.Indexes().CreateOne(context.Background(), mongo.IndexModel{Keys: bson.D{{Key: "propertyId", Value: 1}, {Key: "month", Value: 1}}})
	_, _ = prices.Indexes().CreateOne(context.Background(), mongo.IndexModel{Keys: bson.D{{Key: "propertyId", Value: 1}, {Key: "year", Value: 1}, {Key: "month", Value: 1}}})
	return &ShardStore{db: db, avail: avail, prices: prices, maxIDs: maxIDs}
}

func (s *ShardStore) MaxIDsPerQuery() int { return s.maxIDs }

func (s *ShardStore) AvailabilityByIDs(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.AvailabilityShard, error) {
	if err := s.checkLimit(ids); err != nil {
		return nil, err
	}
	out := make(map[calendar.ShardID]calendar.AvailabilityShard, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.avail.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, errors.Wrap(err, "find availability shards")
	}
	var docs []availabilityDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode availability shards")
	}
	for _, doc := range docs {
		shard, err := doc.toShard()
		if err != nil {
			return nil, err
		}
		out[shard.ID] = shard
	}
	return out, nil
}

func (s *ShardStore) PriceCalendarByIDs(ctx context.Context, ids []calendar.ShardID) (map[calendar.ShardID]calendar.PriceCalendar, error) {
	if err := s.checkLimit(ids); err != nil {
		return nil, err
	}
	out := make(map[calendar.ShardID]calendar.PriceCalendar, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.prices.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, errors.Wrap(err, "find price calendars")
	}
	var docs []priceCalendarDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode price calendars")
	}
	for _, doc := range docs {
		cal, err := doc.toCalendar()
		if err != nil {
			return nil, err
		}
		out[cal.ID] = cal
	}
	return out, nil
}

func (s *ShardStore) checkLimit(ids []calendar.ShardID) error {
	if len(ids) > s.maxIDs {
		return errors.Wrapf(calendar.ErrTooManyIDs, "%d ids, limit %d", len(ids), s.maxIDs)
	}
	return nil
}

// Commit applies the batch inside a single transaction. The transaction is
// started, committed and aborted explicitly; a failed commit is not retried.
func (s *ShardStore) Commit(ctx context.Context, batch calendar.WriteBatch) error {
	if batch.Empty() {
		return nil
	}
	session, err := s.db.Client().StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().SetReadConcern(s.db.ReadConcern()).SetWriteConcern(s.db.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	sctx := mongo.NewSessionContext(ctx, session)
	for _, op := range batch.Ops {
		if err := s.apply(sctx, op); err != nil {
			_ = session.AbortTransaction(ctx)
			return mapWriteError(err)
		}
	}
	if err := session.CommitTransaction(ctx); err != nil {
		return mapWriteError(errors.Wrap(err, "commit transaction"))
	}
	return nil
}

func (s *ShardStore) apply(ctx context.Context, op calendar.WriteOp) error {
	switch op := op.(type) {
	case calendar.AvailabilityUpdate:
		set := bson.M{"updatedAt": op.UpdatedAt.UTC()}
		for d, v := range op.Days {
			set["available."+strconv.Itoa(d)] = v
		}
		return s.guardedUpdate(ctx, s.avail, string(op.ID), op.ExpectedRevision, set)
	case calendar.AvailabilityCreate:
		_, err := s.avail.InsertOne(ctx, newAvailabilityDocument(op.Shard, 1))
		return errors.Wrapf(err, "create availability %s", op.Shard.ID)
	case calendar.PriceCalendarPut:
		doc := newPriceCalendarDocument(op.Calendar, op.ExpectedRevision+1)
		if !op.Exists {
			_, err := s.prices.InsertOne(ctx, doc)
			return errors.Wrapf(err, "create price calendar %s", op.Calendar.ID)
		}
		res, err := s.prices.ReplaceOne(ctx, revisionFilter(doc.ID, op.ExpectedRevision), doc)
		if err != nil {
			return errors.Wrapf(err, "replace price calendar %s", op.Calendar.ID)
		}
		if res.MatchedCount == 0 {
			return errors.Wrapf(calendar.ErrConcurrentUpdate, "price calendar %s", op.Calendar.ID)
		}
		return nil
	case calendar.PriceDaysUpdate:
		set := bson.M{"summary": newSummaryDocument(op.Summary)}
		for d, patch := range op.Days {
			for field, value := range patchFields(patch) {
				set["days."+strconv.Itoa(d)+"."+field] = value
			}
		}
		return s.guardedUpdate(ctx, s.prices, string(op.ID), op.ExpectedRevision, set)
	default:
		return errors.Newf("mongo: unsupported write op %T", op)
	}
}

func (s *ShardStore) guardedUpdate(ctx context.Context, col *mongo.Collection, id string, revision int64, set bson.M) error {
	filter := revisionFilter(id, revision)
	update := bson.M{"$set": set, "$inc": bson.M{"revision": 1}}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrapf(err, "update %s %s", col.Name(), id)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(calendar.ErrConcurrentUpdate, "%s %s", col.Name(), id)
	}
	return nil
}

// revisionFilter matches id at revision. Revision zero also matches a
// document that carries no revision field.
func revisionFilter(id string, revision int64) bson.M {
	if revision == 0 {
		return bson.M{"_id": id, "revision": bson.M{"$in": bson.A{int64(0), nil}}}
	}
	return bson.M{"_id": id, "revision": revision}
}

// patchFields lists the day fields a patch overwrites.
func patchFields(p calendar.DayPatch) bson.M {
	out := bson.M{}
	if p.AdjustedPrice != nil {
		out["adjustedPrice"] = *p.AdjustedPrice
	}
	if p.Prices != nil {
		out["prices"] = guestKeys(p.Prices)
	}
	if p.Available != nil {
		out["available"] = *p.Available
	}
	if p.MinimumStay != nil {
		out["minimumStay"] = *p.MinimumStay
	}
	if p.SeasonID != nil {
		out["seasonId"] = nullable(*p.SeasonID)
	}
	if p.SeasonName != nil {
		out["seasonName"] = nullable(*p.SeasonName)
	}
	if p.OverrideID != nil {
		out["overrideId"] = nullable(*p.OverrideID)
	}
	if p.Reason != nil {
		out["reason"] = nullable(*p.Reason)
	}
	if p.PriceSource != nil {
		out["priceSource"] = string(*p.PriceSource)
	}
	return out
}

// mapWriteError turns duplicate inserts and transaction write conflicts into
// calendar.ErrConcurrentUpdate.
func mapWriteError(err error) error {
	if errors.Is(err, calendar.ErrConcurrentUpdate) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return errors.Mark(err, calendar.ErrConcurrentUpdate)
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return errors.Mark(err, calendar.ErrConcurrentUpdate)
	}
	return err
}

func idStrings(ids []calendar.ShardID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

var _ calendar.Store = (*ShardStore)(nil)
