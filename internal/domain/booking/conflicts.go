package booking

import (
	"time"

	"rentalspot/internal/domain/shared/daterange"
)

// DateSet is a set of calendar days keyed YYYY-MM-DD.
type DateSet map[string]struct{}

func (s DateSet) Add(day time.Time) {
	s[daterange.Key(day)] = struct{}{}
}

func (s DateSet) Has(day time.Time) bool {
	_, ok := s[daterange.Key(day)]
	return ok
}

func (s DateSet) Len() int { return len(s) }

// BlockedDates returns every day occupied by a blocking booking. Checkout
// days stay open so turnovers remain bookable. Bookings listed in exclude
// are ignored.
func BlockedDates(bookings []Booking, exclude ...BookingID) DateSet {
	skip := make(map[BookingID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	blocked := make(DateSet)
	for _, b := range bookings {
		if !b.Blocks() {
			continue
		}
		if _, ok := skip[b.ID]; ok {
			continue
		}
		for _, d := range b.Range.Days() {
			blocked.Add(d)
		}
	}
	return blocked
}
