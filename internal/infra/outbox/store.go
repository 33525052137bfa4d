package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appoutbox "rentalspot/internal/app/outbox"
)

const (
	stateNew     = "NEW"
	stateClaimed = "CLAIMED"
	stateSent    = "SENT"
	stateFailed  = "FAILED"
)

// DefaultLease is how long a claim holds before another worker may take the
// record over.
const DefaultLease = time.Minute

// Store is the Mongo-backed outbox. Records are inserted as soon as they are
// added; Flush has nothing left to do.
type Store struct {
	col   *mongo.Collection
	lease time.Duration
	now   func() time.Time
}

func NewStore(db *mongo.Database, lease time.Duration) *Store {
	col := db.Collection("calendar_outbox")
	idx := mongo.IndexModel{Keys: bson.D{{Key: "state", Value: 1}, {Key: "nextAttemptAt", Value: 1}}}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Store{col: col, lease: lease, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Add(ctx context.Context, record appoutbox.EventRecord) error {
	now := s.now()
	doc := eventDocument{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     record.Payload,
		OccurredAt:  record.OccurredAt.UTC(),
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       stateNew,
		NextAttempt: now,
		CreatedAt:   now,
	}
	_, err := s.col.InsertOne(ctx, doc)
	return errors.Wrapf(err, "outbox insert %s", record.Name)
}

func (s *Store) Flush(context.Context) error {
	return nil
}

type eventDocument struct {
	ID          string            `bson:"_id"`
	Name        string            `bson:"name"`
	Payload     []byte            `bson:"payload"`
	OccurredAt  time.Time         `bson:"occurredAt"`
	Aggregate   string            `bson:"aggregate"`
	Headers     map[string]string `bson:"headers"`
	State       string            `bson:"state"`
	Attempts    int               `bson:"attempts"`
	NextAttempt time.Time         `bson:"nextAttemptAt"`
	CreatedAt   time.Time         `bson:"createdAt"`
	ClaimedBy   string            `bson:"claimedBy,omitempty"`
	ClaimedAt   time.Time         `bson:"claimedAt,omitempty"`
	SentAt      time.Time         `bson:"sentAt,omitempty"`
	LastError   string            `bson:"lastError,omitempty"`
}

// Claim takes the oldest due record. Claims older than the lease count as
// abandoned and are handed out again.
func (s *Store) Claim(ctx context.Context, workerID string) (*appoutbox.Claimed, error) {
	now := s.now()
	filter := bson.M{"$or": bson.A{
		bson.M{"state": bson.M{"$in": bson.A{stateNew, stateFailed}}, "nextAttemptAt": bson.M{"$lte": now}},
		bson.M{"state": stateClaimed, "claimedAt": bson.M{"$lte": now.Add(-s.lease)}},
	}}
	update := bson.M{"$set": bson.M{"state": stateClaimed, "claimedBy": workerID, "claimedAt": now}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "nextAttemptAt", Value: 1}})
	var doc eventDocument
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "outbox claim")
	}
	return &appoutbox.Claimed{
		EventRecord: appoutbox.EventRecord{
			ID:         doc.ID,
			Name:       doc.Name,
			Payload:    doc.Payload,
			OccurredAt: doc.OccurredAt,
			Aggregate:  doc.Aggregate,
			Headers:    doc.Headers,
		},
		Attempts: doc.Attempts,
	}, nil
}

func (s *Store) MarkSent(ctx context.Context, id string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"state": stateSent, "sentAt": s.now()}})
	return errors.Wrapf(err, "outbox mark sent %s", id)
}

func (s *Store) MarkFailed(ctx context.Context, id string, next time.Time, reason string) error {
	update := bson.M{
		"$set": bson.M{
			"state":         stateFailed,
			"nextAttemptAt": next.UTC(),
			"lastError":     reason,
		},
		"$inc": bson.M{"attempts": 1},
	}
	_, err := s.col.UpdateByID(ctx, id, update)
	return errors.Wrapf(err, "outbox mark failed %s", id)
}

var (
	_ appoutbox.Outbox = (*Store)(nil)
	_ appoutbox.Queue  = (*Store)(nil)
)
