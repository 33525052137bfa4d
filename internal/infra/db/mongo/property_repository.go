package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentalspot/internal/domain/property"
)

type PropertyCatalog struct {
	col *mongo.Collection
}

func NewPropertyCatalog(db *mongo.Database) *PropertyCatalog {
	return &PropertyCatalog{col: db.Collection("pricing_properties")}
}

func (r *PropertyCatalog) ByID(ctx context.Context, id property.ID) (property.Property, error) {
	var doc propertyDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return property.Property{}, errors.Wrapf(property.ErrPropertyNotFound, "%s", id)
		}
		return property.Property{}, errors.Wrapf(err, "find property %s", id)
	}
	return doc.toProperty(), nil
}

func (r *PropertyCatalog) Save(ctx context.Context, p property.Property) error {
	doc := newPropertyDocument(p)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "save property %s", p.ID)
}

type weekendDocument struct {
	Enabled    bool     `bson:"enabled"`
	Days       []string `bson:"days"`
	Multiplier float64  `bson:"multiplier"`
}

type propertyDocument struct {
	ID            string           `bson:"_id"`
	PricePerNight float64          `bson:"pricePerNight"`
	BaseOccupancy int              `bson:"baseOccupancy"`
	MaxGuests     int              `bson:"maxGuests"`
	ExtraGuestFee float64          `bson:"extraGuestFee"`
	Weekend       *weekendDocument `bson:"weekendPricing,omitempty"`
	UpdatedAt     time.Time        `bson:"updatedAt"`
}

func newPropertyDocument(p property.Property) propertyDocument {
	doc := propertyDocument{
		ID:            string(p.ID),
		PricePerNight: p.PricePerNight,
		BaseOccupancy: p.BaseOccupancy,
		MaxGuests:     p.MaxGuests,
		ExtraGuestFee: p.ExtraGuestFee,
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
	if p.Weekend != nil {
		doc.Weekend = &weekendDocument{Enabled: p.Weekend.Enabled, Days: p.Weekend.Days, Multiplier: p.Weekend.Multiplier}
	}
	return doc
}

func (d propertyDocument) toProperty() property.Property {
	p := property.Property{
		ID:            property.ID(d.ID),
		PricePerNight: d.PricePerNight,
		BaseOccupancy: d.BaseOccupancy,
		MaxGuests:     d.MaxGuests,
		ExtraGuestFee: d.ExtraGuestFee,
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	if d.Weekend != nil {
		p.Weekend = &property.WeekendPricing{Enabled: d.Weekend.Enabled, Days: d.Weekend.Days, Multiplier: d.Weekend.Multiplier}
	}
	return p
}

var _ property.Catalog = (*PropertyCatalog)(nil)
