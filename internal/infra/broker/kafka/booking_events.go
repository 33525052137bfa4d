package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/commands"
	calendarhandlers "rentalspot/internal/app/handlers/calendar"
	"rentalspot/internal/domain/booking"
	domaincalendar "rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
	"rentalspot/internal/pkg/clock"
)

// Inbox deduplicates consumed events.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// BookingEvent is a booking status change published by the booking
// workflow. It arrives bare or as the data of a CloudEvent.
type BookingEvent struct {
	EventID        string `json:"eventId"`
	BookingID      string `json:"bookingId"`
	PropertyID     string `json:"propertyId"`
	CheckIn        string `json:"checkIn"`
	CheckOut       string `json:"checkOut"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus"`
}

type cloudEvent struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// DecodeBookingEvent reads a bare or CloudEvents-wrapped booking event.
// Without an explicit event id, the id is derived from the change itself.
func DecodeBookingEvent(value []byte) (BookingEvent, error) {
	var envelope cloudEvent
	if err := json.Unmarshal(value, &envelope); err != nil {
		return BookingEvent{}, errors.Mark(errors.Wrap(err, "decode booking event"), domaincalendar.ErrValidation)
	}
	raw := value
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		raw = envelope.Data
	}
	var evt BookingEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return BookingEvent{}, errors.Mark(errors.Wrap(err, "decode booking event data"), domaincalendar.ErrValidation)
	}
	if evt.EventID == "" {
		evt.EventID = envelope.ID
	}
	if evt.EventID == "" {
		evt.EventID = strings.Join([]string{evt.BookingID, evt.Status, evt.CheckIn, evt.CheckOut}, ":")
	}
	return evt, nil
}

// BookingEventHandler keeps booking snapshots in step with the booking
// workflow and patches availability when a booking enters or leaves a
// blocking status.
type BookingEventHandler struct {
	Bookings booking.Repository
	Commands commands.Bus
	Inbox    Inbox
	Clock    clock.Clock
	Logger   *slog.Logger
}

func (h *BookingEventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	evt, err := DecodeBookingEvent(msg.Value)
	if err != nil {
		h.log().Warn("booking event dropped", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		return nil
	}
	return h.Apply(ctx, evt)
}

// Apply processes one decoded event. Malformed events are dropped; a failed
// patch forgets the event id so that a redelivery is handled again.
func (h *BookingEventHandler) Apply(ctx context.Context, evt BookingEvent) error {
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, evt.EventID)
		if err != nil {
			return err
		}
		if seen {
			h.log().Debug("booking event already handled", "event_id", evt.EventID)
			return nil
		}
	}
	if err := h.apply(ctx, evt); err != nil {
		if errors.Is(err, domaincalendar.ErrValidation) {
			h.log().Warn("booking event rejected", "event_id", evt.EventID, "booking_id", evt.BookingID, "err", err)
			return nil
		}
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(ctx, evt.EventID); ferr != nil {
				err = errors.CombineErrors(err, ferr)
			}
		}
		return err
	}
	return nil
}

func (h *BookingEventHandler) apply(ctx context.Context, evt BookingEvent) error {
	status, err := booking.ParseStatus(evt.Status)
	if err != nil {
		return errors.Mark(err, domaincalendar.ErrValidation)
	}
	previous, err := booking.ParseStatus(evt.PreviousStatus)
	if err != nil {
		return errors.Mark(err, domaincalendar.ErrValidation)
	}
	checkIn, err := daterange.ParseDay(evt.CheckIn)
	if err != nil {
		return errors.Mark(err, domaincalendar.ErrValidation)
	}
	checkOut, err := daterange.ParseDay(evt.CheckOut)
	if err != nil {
		return errors.Mark(err, domaincalendar.ErrValidation)
	}
	rng, err := daterange.New(checkIn, checkOut)
	if err != nil {
		return errors.Mark(err, domaincalendar.ErrValidation)
	}
	b := booking.Booking{
		ID:         booking.BookingID(evt.BookingID),
		PropertyID: property.ID(evt.PropertyID),
		Range:      rng,
		Status:     status,
		UpdatedAt:  clock.OrReal(h.Clock).Now(),
	}
	if err := b.Validate(); err != nil {
		return errors.Mark(err, domaincalendar.ErrValidation)
	}
	if err := h.Bookings.Save(ctx, b); err != nil {
		return errors.Wrapf(err, "save booking %s", b.ID)
	}

	var available bool
	switch {
	case status.Blocks():
		available = false
	case previous.Blocks() || status == booking.StatusCancelled:
		available = true
	default:
		h.log().Debug("booking event needs no patch", "booking_id", b.ID, "status", status)
		return nil
	}
	_, err = commands.Dispatch[calendarhandlers.PatchAvailabilityCommand, *calendarhandlers.PatchAvailabilityResult](ctx, h.Commands, calendarhandlers.PatchAvailabilityCommand{
		PropertyID: evt.PropertyID,
		BookingID:  evt.BookingID,
		Start:      rng.CheckIn,
		End:        rng.CheckOut,
		Available:  available,
	})
	if err != nil {
		return errors.Wrapf(err, "patch availability for booking %s", b.ID)
	}
	h.log().Info("booking event applied",
		"event_id", evt.EventID, "booking_id", b.ID, "property_id", b.PropertyID, "status", status, "available", available)
	return nil
}

func (h *BookingEventHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = (*BookingEventHandler)(nil)
