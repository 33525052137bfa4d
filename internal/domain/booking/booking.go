package booking

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
)

var (
	ErrBookingNotFound = errors.New("booking: not found")
	ErrInvalidStatus   = errors.New("booking: unknown status")
	ErrIDRequired      = errors.New("booking: id is required")
)

type BookingID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusOnHold    Status = "on-hold"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus accepts the lowercase status names and their uppercase or
// underscore spellings ("ON_HOLD").
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-"))
	switch s {
	case StatusPending, StatusConfirmed, StatusOnHold, StatusCancelled, StatusCompleted:
		return s, nil
	case "":
		return "", nil
	}
	return "", errors.Wrapf(ErrInvalidStatus, "%q", raw)
}

// Blocks reports whether a booking in this status holds its dates.
func (s Status) Blocks() bool {
	return s == StatusConfirmed || s == StatusOnHold
}

// Booking is the slice of a reservation the calendar needs. The booking
// workflow owns the record; this side keeps a snapshot fed by events.
type Booking struct {
	ID         BookingID
	PropertyID property.ID
	Range      daterange.DateRange
	Status     Status
	UpdatedAt  time.Time
}

func (b Booking) Validate() error {
	if strings.TrimSpace(string(b.ID)) == "" {
		return ErrIDRequired
	}
	if strings.TrimSpace(string(b.PropertyID)) == "" {
		return errors.New("booking: property id is required")
	}
	return b.Range.Validate()
}

func (b Booking) Blocks() bool {
	return b.Status.Blocks()
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (Booking, error)
	// Blocking returns the property's bookings whose status holds dates.
	Blocking(ctx context.Context, propertyID property.ID) ([]Booking, error)
	Save(ctx context.Context, b Booking) error
}
