package calendar

import (
	"context"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/dto"
	"rentalspot/internal/app/persister"
	domaincalendar "rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/property"
)

const (
	getAvailabilityKey   = "calendar.get_availability"
	getPriceCalendarKey  = "calendar.get_price_calendar"
	listPriceCalendarKey = "calendar.list_price_calendars"
)

type GetAvailabilityQuery struct {
	PropertyID string `validate:"required"`
	Month      string `validate:"required,datetime=2006-01"`
}

func (q GetAvailabilityQuery) Key() string { return getAvailabilityKey }

type GetPriceCalendarQuery struct {
	PropertyID string `validate:"required"`
	Month      string `validate:"required,datetime=2006-01"`
}

func (q GetPriceCalendarQuery) Key() string { return getPriceCalendarKey }

type ListPriceCalendarsQuery struct {
	PropertyID string `validate:"required"`
	From       string `validate:"required,datetime=2006-01"`
	Months     int    `validate:"gte=1,lte=60"`
}

func (q ListPriceCalendarsQuery) Key() string { return listPriceCalendarKey }

type PriceCalendarList struct {
	PropertyID string              `json:"propertyId"`
	Calendars  []dto.PriceCalendar `json:"calendars"`
	Missing    []string            `json:"missing"`
}

// Reader serves month shards to calendar consumers.
type Reader struct {
	Persister *persister.Persister
}

func (r *Reader) Availability(ctx context.Context, q GetAvailabilityQuery) (*dto.AvailabilityMonth, error) {
	id, err := shardID(q.PropertyID, q.Month)
	if err != nil {
		return nil, err
	}
	found, err := r.Persister.LookupAvailability(ctx, []domaincalendar.ShardID{id})
	if err != nil {
		return nil, err
	}
	shard, ok := found[id]
	if !ok {
		return nil, errors.Wrapf(domaincalendar.ErrShardNotFound, "%s", id)
	}
	out := dto.MapAvailability(shard)
	return &out, nil
}

func (r *Reader) PriceCalendar(ctx context.Context, q GetPriceCalendarQuery) (*dto.PriceCalendar, error) {
	id, err := shardID(q.PropertyID, q.Month)
	if err != nil {
		return nil, err
	}
	found, err := r.Persister.LookupPriceCalendars(ctx, []domaincalendar.ShardID{id})
	if err != nil {
		return nil, err
	}
	cal, ok := found[id]
	if !ok {
		return nil, errors.Wrapf(domaincalendar.ErrShardNotFound, "%s", id)
	}
	out := dto.MapPriceCalendar(cal)
	return &out, nil
}

// PriceCalendars returns the stored calendars of consecutive months in
// calendar order; months never generated are listed in Missing.
func (r *Reader) PriceCalendars(ctx context.Context, q ListPriceCalendarsQuery) (*PriceCalendarList, error) {
	from, err := domaincalendar.ParseYearMonth(q.From)
	if err != nil {
		return nil, err
	}
	propertyID := property.ID(q.PropertyID)
	window := domaincalendar.Window(from, q.Months)
	ids := make([]domaincalendar.ShardID, 0, len(window))
	for _, m := range window {
		ids = append(ids, domaincalendar.NewShardID(propertyID, m))
	}
	found, err := r.Persister.LookupPriceCalendars(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := &PriceCalendarList{PropertyID: q.PropertyID, Calendars: []dto.PriceCalendar{}, Missing: []string{}}
	for i, id := range ids {
		cal, ok := found[id]
		if !ok {
			out.Missing = append(out.Missing, window[i].String())
			continue
		}
		out.Calendars = append(out.Calendars, dto.MapPriceCalendar(cal))
	}
	return out, nil
}

func shardID(propertyID, month string) (domaincalendar.ShardID, error) {
	ym, err := domaincalendar.ParseYearMonth(month)
	if err != nil {
		return "", err
	}
	return domaincalendar.NewShardID(property.ID(propertyID), ym), nil
}
