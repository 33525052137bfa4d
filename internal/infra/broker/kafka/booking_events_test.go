package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalspot/internal/app/commands"
	calendarhandlers "rentalspot/internal/app/handlers/calendar"
	"rentalspot/internal/app/persister"
	"rentalspot/internal/domain/booking"
	domaincalendar "rentalspot/internal/domain/calendar"
	"rentalspot/internal/infra/broker/kafka"
	"rentalspot/internal/infra/storage/memory"
	"rentalspot/internal/pkg/clock"
)

var july = domaincalendar.YearMonth{Year: 2025, Month: time.July}

type intake struct {
	store    *memory.ShardStore
	bookings *memory.BookingRepository
	inbox    *memory.Inbox
	handler  *kafka.BookingEventHandler
}

func newIntake(t *testing.T) *intake {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	in := &intake{
		store:    memory.NewShardStore(30),
		bookings: memory.NewBookingRepository(),
		inbox:    memory.NewInbox(),
	}
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[calendarhandlers.PatchAvailabilityCommand, *calendarhandlers.PatchAvailabilityResult](bus, &calendarhandlers.Patcher{
		Rules:     memory.NewRuleRepository(),
		Bookings:  in.bookings,
		Persister: persister.New(in.store, clk),
		Clock:     clk,
	})
	in.handler = &kafka.BookingEventHandler{Bookings: in.bookings, Commands: bus, Inbox: in.inbox, Clock: clk}
	return in
}

func (in *intake) available(t *testing.T) map[int]bool {
	t.Helper()
	shard, ok := in.store.Availability(domaincalendar.NewShardID("villa", july))
	require.True(t, ok)
	return shard.Available
}

func message(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "booking.events.v1", Value: []byte(value)}
}

func TestDecodeBookingEvent(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		wantID string
	}{
		{
			name:   "bare event with id",
			raw:    `{"eventId":"ev-1","bookingId":"b1","propertyId":"villa","checkIn":"2025-07-10","checkOut":"2025-07-13","status":"confirmed"}`,
			wantID: "ev-1",
		},
		{
			name:   "cloudevent envelope",
			raw:    `{"specversion":"1.0","id":"ce-9","type":"booking.confirmed.v1","data":{"bookingId":"b1","propertyId":"villa","checkIn":"2025-07-10","checkOut":"2025-07-13","status":"confirmed"}}`,
			wantID: "ce-9",
		},
		{
			name:   "derived id",
			raw:    `{"bookingId":"b1","propertyId":"villa","checkIn":"2025-07-10","checkOut":"2025-07-13","status":"confirmed"}`,
			wantID: "b1:confirmed:2025-07-10:2025-07-13",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt, err := kafka.DecodeBookingEvent([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, evt.EventID)
			assert.Equal(t, "b1", evt.BookingID)
			assert.Equal(t, "2025-07-13", evt.CheckOut)
		})
	}

	_, err := kafka.DecodeBookingEvent([]byte("{"))
	assert.True(t, errors.Is(err, domaincalendar.ErrValidation))
}

func TestBookingEventBlocksAndReleasesDates(t *testing.T) {
	in := newIntake(t)
	ctx := context.Background()

	require.NoError(t, in.handler.Handle(ctx, message(`{"eventId":"e1","bookingId":"b1","propertyId":"villa","checkIn":"2025-07-10","checkOut":"2025-07-13","status":"confirmed","previousStatus":"pending"}`)))

	days := in.available(t)
	assert.False(t, days[10])
	assert.False(t, days[12])
	assert.True(t, days[13])
	stored, err := in.bookings.ByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, stored.Status)

	require.NoError(t, in.handler.Handle(ctx, message(`{"eventId":"e2","bookingId":"b1","propertyId":"villa","checkIn":"2025-07-10","checkOut":"2025-07-13","status":"cancelled","previousStatus":"confirmed"}`)))

	days = in.available(t)
	assert.True(t, days[10])
	assert.True(t, days[12])
	stored, err = in.bookings.ByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
}

func TestBookingEventDuplicateIsDropped(t *testing.T) {
	in := newIntake(t)
	ctx := context.Background()
	confirmed := `{"eventId":"e1","bookingId":"b1","propertyId":"villa","checkIn":"2025-07-10","checkOut":"2025-07-11","status":"confirmed"}`

	require.NoError(t, in.handler.Handle(ctx, message(confirmed)))
	commits := len(in.store.Commits())
	require.NoError(t, in.handler.Handle(ctx, message(confirmed)))

	assert.Len(t, in.store.Commits(), commits)
}

func TestBookingEventPendingNeedsNoPatch(t *testing.T) {
	in := newIntake(t)

	require.NoError(t, in.handler.Handle(context.Background(), message(`{"eventId":"e1","bookingId":"b1","propertyId":"villa","checkIn":"2025-07-10","checkOut":"2025-07-11","status":"pending"}`)))

	assert.Empty(t, in.store.Commits())
	stored, err := in.bookings.ByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status)
}

func TestBookingEventMalformedIsDropped(t *testing.T) {
	in := newIntake(t)

	err := in.handler.Handle(context.Background(), message(`{"eventId":"e1","bookingId":"b1","propertyId":"villa","checkIn":"2025-07-12","checkOut":"2025-07-10","status":"confirmed"}`))

	assert.NoError(t, err)
	assert.Empty(t, in.store.Commits())
}

func TestBookingEventFailureForgetsEventID(t *testing.T) {
	in := newIntake(t)
	ctx := context.Background()
	in.store.FailNextCommit(errors.New("primary stepped down"))
	raw := `{"eventId":"e1","bookingId":"b1","propertyId":"villa","checkIn":"2025-07-10","checkOut":"2025-07-11","status":"confirmed"}`

	err := in.handler.Handle(ctx, message(raw))
	require.Error(t, err)

	require.NoError(t, in.handler.Handle(ctx, message(raw)))
	assert.False(t, in.available(t)[10])
}
