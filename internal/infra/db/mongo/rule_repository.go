package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
)

// RuleRepository stores seasonal rules and date overrides. Override dates
// are stored as YYYY-MM-DD keys so range queries compare lexically.
type RuleRepository struct {
	seasons   *mongo.Collection
	overrides *mongo.Collection
}

func NewRuleRepository(db *mongo.Database) *RuleRepository {
	seasons := db.Collection("pricing_seasons")
	overrides := db.Collection("pricing_overrides")
	_, _ = seasons.Indexes().CreateOne(context.Background(), mongo.IndexModel{Keys: bson.D{{Key: "propertyId", Value: 1}}})
	_, _ = overrides.Indexes().CreateOne(context.Background(), mongo.IndexModel{Keys: bson.D{{Key: "propertyId", Value: 1}, {Key: "date", Value: 1}}})
	return &RuleRepository{seasons: seasons, overrides: overrides}
}

func (r *RuleRepository) Seasons(ctx context.Context, propertyID property.ID) ([]pricing.SeasonalRule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.seasons.Find(ctx, bson.M{"propertyId": string(propertyID)}, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "find seasons of %s", propertyID)
	}
	var docs []seasonDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode seasons")
	}
	out := make([]pricing.SeasonalRule, 0, len(docs))
	for _, doc := range docs {
		rule, err := doc.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *RuleRepository) Overrides(ctx context.Context, propertyID property.ID, from, to time.Time) ([]pricing.DateOverride, error) {
	filter := bson.M{
		"propertyId": string(propertyID),
		"date":       bson.M{"$gte": daterange.Key(from), "$lt": daterange.Key(to)},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cur, err := r.overrides.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "find overrides of %s", propertyID)
	}
	var docs []overrideDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode overrides")
	}
	out := make([]pricing.DateOverride, 0, len(docs))
	for _, doc := range docs {
		o, err := doc.toOverride()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *RuleRepository) OverrideOn(ctx context.Context, propertyID property.ID, day time.Time) (pricing.DateOverride, error) {
	var doc overrideDocument
	err := r.overrides.FindOne(ctx, bson.M{"propertyId": string(propertyID), "date": daterange.Key(day)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return pricing.DateOverride{}, errors.Wrapf(pricing.ErrOverrideNotFound, "%s %s", propertyID, daterange.Key(day))
		}
		return pricing.DateOverride{}, errors.Wrap(err, "find override")
	}
	return doc.toOverride()
}

func (r *RuleRepository) OverrideByID(ctx context.Context, id string) (pricing.DateOverride, error) {
	var doc overrideDocument
	if err := r.overrides.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return pricing.DateOverride{}, errors.Wrapf(pricing.ErrOverrideNotFound, "%s", id)
		}
		return pricing.DateOverride{}, errors.Wrapf(err, "find override %s", id)
	}
	return doc.toOverride()
}

func (r *RuleRepository) SaveSeason(ctx context.Context, rule pricing.SeasonalRule) error {
	doc := newSeasonDocument(rule)
	_, err := r.seasons.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "save season %s", rule.ID)
}

func (r *RuleRepository) DeleteSeason(ctx context.Context, propertyID property.ID, seasonID string) error {
	res, err := r.seasons.DeleteOne(ctx, bson.M{"_id": seasonID, "propertyId": string(propertyID)})
	if err != nil {
		return errors.Wrapf(err, "delete season %s", seasonID)
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(pricing.ErrSeasonNotFound, "%s", seasonID)
	}
	return nil
}

// SaveOverride replaces every override stored for the same day; the _id
// upsert moves an existing override with the same id.
func (r *RuleRepository) SaveOverride(ctx context.Context, o pricing.DateOverride) error {
	doc := newOverrideDocument(o)
	if _, err := r.overrides.DeleteMany(ctx, bson.M{"propertyId": doc.PropertyID, "date": doc.Date, "_id": bson.M{"$ne": doc.ID}}); err != nil {
		return errors.Wrapf(err, "replace override %s", doc.Date)
	}
	_, err := r.overrides.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "save override %s", doc.Date)
}

func (r *RuleRepository) DeleteOverride(ctx context.Context, propertyID property.ID, day time.Time) error {
	res, err := r.overrides.DeleteMany(ctx, bson.M{"propertyId": string(propertyID), "date": daterange.Key(day)})
	if err != nil {
		return errors.Wrap(err, "delete override")
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(pricing.ErrOverrideNotFound, "%s %s", propertyID, daterange.Key(day))
	}
	return nil
}

type seasonDocument struct {
	ID          string    `bson:"_id"`
	PropertyID  string    `bson:"propertyId"`
	Name        string    `bson:"name"`
	Season      string    `bson:"seasonType"`
	Start       string    `bson:"startDate"`
	End         string    `bson:"endDate"`
	Multiplier  float64   `bson:"multiplier"`
	MinimumStay int       `bson:"minimumStay"`
	Enabled     bool      `bson:"enabled"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func newSeasonDocument(s pricing.SeasonalRule) seasonDocument {
	return seasonDocument{
		ID:          s.ID,
		PropertyID:  string(s.PropertyID),
		Name:        s.Name,
		Season:      string(s.Season),
		Start:       daterange.Key(s.Start),
		End:         daterange.Key(s.End),
		Multiplier:  s.Multiplier,
		MinimumStay: s.MinimumStay,
		Enabled:     s.Enabled,
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
}

func (d seasonDocument) toRule() (pricing.SeasonalRule, error) {
	start, err := daterange.ParseDay(d.Start)
	if err != nil {
		return pricing.SeasonalRule{}, errors.Wrapf(err, "season %s start", d.ID)
	}
	end, err := daterange.ParseDay(d.End)
	if err != nil {
		return pricing.SeasonalRule{}, errors.Wrapf(err, "season %s end", d.ID)
	}
	return pricing.SeasonalRule{
		ID:          d.ID,
		PropertyID:  property.ID(d.PropertyID),
		Name:        d.Name,
		Season:      pricing.SeasonType(d.Season),
		Start:       start,
		End:         end,
		Multiplier:  d.Multiplier,
		MinimumStay: d.MinimumStay,
		Enabled:     d.Enabled,
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

type overrideDocument struct {
	ID          string    `bson:"_id"`
	PropertyID  string    `bson:"propertyId"`
	Date        string    `bson:"date"`
	CustomPrice float64   `bson:"customPrice"`
	Reason      string    `bson:"reason,omitempty"`
	MinimumStay *int      `bson:"minimumStay,omitempty"`
	Available   *bool     `bson:"available,omitempty"`
	FlatRate    bool      `bson:"flatRate"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func newOverrideDocument(o pricing.DateOverride) overrideDocument {
	return overrideDocument{
		ID:          o.ID,
		PropertyID:  string(o.PropertyID),
		Date:        daterange.Key(o.Date),
		CustomPrice: o.CustomPrice,
		Reason:      o.Reason,
		MinimumStay: o.MinimumStay,
		Available:   o.Available,
		FlatRate:    o.FlatRate,
		UpdatedAt:   o.UpdatedAt.UTC(),
	}
}

func (d overrideDocument) toOverride() (pricing.DateOverride, error) {
	day, err := daterange.ParseDay(d.Date)
	if err != nil {
		return pricing.DateOverride{}, errors.Wrapf(err, "override %s date", d.ID)
	}
	return pricing.DateOverride{
		ID:          d.ID,
		PropertyID:  property.ID(d.PropertyID),
		Date:        day,
		CustomPrice: d.CustomPrice,
		Reason:      d.Reason,
		MinimumStay: d.MinimumStay,
		Available:   d.Available,
		FlatRate:    d.FlatRate,
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

var _ pricing.RuleRepository = (*RuleRepository)(nil)
