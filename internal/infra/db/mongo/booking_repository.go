package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "rentalspot/internal/domain/booking"
	"rentalspot/internal/domain/property"
	domainrange "rentalspot/internal/domain/shared/daterange"
)

var blockingStatuses = []string{string(domainbooking.StatusConfirmed), string(domainbooking.StatusOnHold)}

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	col := db.Collection("bookings")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{Keys: bson.D{{Key: "propertyId", Value: 1}, {Key: "status", Value: 1}}})
	return &BookingRepository{col: col}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainbooking.Booking{}, errors.Wrapf(domainbooking.ErrBookingNotFound, "%s", id)
		}
		return domainbooking.Booking{}, errors.Wrapf(err, "find booking %s", id)
	}
	return doc.toBooking(), nil
}

func (r *BookingRepository) Blocking(ctx context.Context, propertyID property.ID) ([]domainbooking.Booking, error) {
	filter := bson.M{"propertyId": string(propertyID), "status": bson.M{"$in": blockingStatuses}}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrapf(err, "find bookings of %s", propertyID)
	}
	var docs []bookingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode bookings")
	}
	out := make([]domainbooking.Booking, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toBooking())
	}
	return out, nil
}

func (r *BookingRepository) Save(ctx context.Context, b domainbooking.Booking) error {
	doc := newBookingDocument(b)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return errors.Wrapf(err, "save booking %s", b.ID)
}

type bookingDocument struct {
	ID         string        `bson:"_id"`
	PropertyID string        `bson:"propertyId"`
	Range      rangeDocument `bson:"range"`
	Status     string        `bson:"status"`
	UpdatedAt  int64         `bson:"updatedAt"`
}

type rangeDocument struct {
	CheckIn  int64 `bson:"checkIn"`
	CheckOut int64 `bson:"checkOut"`
}

func newBookingDocument(b domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:         string(b.ID),
		PropertyID: string(b.PropertyID),
		Range:      rangeDocument{CheckIn: b.Range.CheckIn.UnixMilli(), CheckOut: b.Range.CheckOut.UnixMilli()},
		Status:     string(b.Status),
		UpdatedAt:  b.UpdatedAt.UnixMilli(),
	}
}

func (d bookingDocument) toBooking() domainbooking.Booking {
	return domainbooking.Booking{
		ID:         domainbooking.BookingID(d.ID),
		PropertyID: property.ID(d.PropertyID),
		Range:      domainrange.DateRange{CheckIn: timestampToTime(d.Range.CheckIn), CheckOut: timestampToTime(d.Range.CheckOut)},
		Status:     domainbooking.Status(d.Status),
		UpdatedAt:  timestampToTime(d.UpdatedAt),
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
