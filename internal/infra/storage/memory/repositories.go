package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/domain/booking"
	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
)

// PropertyCatalog is an in-memory property.Catalog.
type PropertyCatalog struct {
	mu    sync.RWMutex
	items map[property.ID]property.Property
	// failOn makes ByID fail for the listed ids.
	failOn map[property.ID]error
}

func NewPropertyCatalog() *PropertyCatalog {
	return &PropertyCatalog{
		items:  make(map[property.ID]property.Property),
		failOn: make(map[property.ID]error),
	}
}

func (r *PropertyCatalog) ByID(ctx context.Context, id property.ID) (property.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err, ok := r.failOn[id]; ok {
		return property.Property{}, err
	}
	p, ok := r.items[id]
	if !ok {
		return property.Property{}, errors.Wrapf(property.ErrPropertyNotFound, "%s", id)
	}
	return copyProperty(p), nil
}

func (r *PropertyCatalog) Save(ctx context.Context, p property.Property) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = copyProperty(p)
	return nil
}

// FailLookups makes subsequent lookups of id fail with err; a nil err clears it.
func (r *PropertyCatalog) FailLookups(id property.ID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failOn, id)
		return
	}
	r.failOn[id] = err
}

func copyProperty(p property.Property) property.Property {
	if p.Weekend != nil {
		w := *p.Weekend
		w.Days = append([]string(nil), p.Weekend.Days...)
		p.Weekend = &w
	}
	return p
}

// RuleRepository keeps seasonal rules and date overrides per property.
type RuleRepository struct {
	mu        sync.RWMutex
	seasons   map[property.ID]map[string]pricing.SeasonalRule
	overrides map[property.ID][]pricing.DateOverride
}

func NewRuleRepository() *RuleRepository {
	return &RuleRepository{
		seasons:   make(map[property.ID]map[string]pricing.SeasonalRule),
		overrides: make(map[property.ID][]pricing.DateOverride),
	}
}

func (r *RuleRepository) Seasons(ctx context.Context, propertyID property.ID) ([]pricing.SeasonalRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pricing.SeasonalRule, 0, len(r.seasons[propertyID]))
	for _, s := range r.seasons[propertyID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RuleRepository) Overrides(ctx context.Context, propertyID property.ID, from, to time.Time) ([]pricing.DateOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	from, to = daterange.Day(from), daterange.Day(to)
	var out []pricing.DateOverride
	for _, o := range r.overrides[propertyID] {
		d := daterange.Day(o.Date)
		if d.Before(from) || !d.Before(to) {
			continue
		}
		out = append(out, copyOverride(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *RuleRepository) OverrideOn(ctx context.Context, propertyID property.ID, day time.Time) (pricing.DateOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := daterange.Key(day)
	for _, o := range r.overrides[propertyID] {
		if daterange.Key(o.Date) == key {
			return copyOverride(o), nil
		}
	}
	return pricing.DateOverride{}, errors.Wrapf(pricing.ErrOverrideNotFound, "%s %s", propertyID, key)
}

func (r *RuleRepository) OverrideByID(ctx context.Context, id string) (pricing.DateOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, list := range r.overrides {
		for _, o := range list {
			if o.ID == id {
				return copyOverride(o), nil
			}
		}
	}
	return pricing.DateOverride{}, errors.Wrapf(pricing.ErrOverrideNotFound, "%s", id)
}

func (r *RuleRepository) SaveSeason(ctx context.Context, rule pricing.SeasonalRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.seasons[rule.PropertyID]
	if !ok {
		byID = make(map[string]pricing.SeasonalRule)
		r.seasons[rule.PropertyID] = byID
	}
	byID[rule.ID] = rule
	return nil
}

func (r *RuleRepository) DeleteSeason(ctx context.Context, propertyID property.ID, seasonID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seasons[propertyID][seasonID]; !ok {
		return errors.Wrapf(pricing.ErrSeasonNotFound, "%s", seasonID)
	}
	delete(r.seasons[propertyID], seasonID)
	return nil
}

func (r *RuleRepository) SaveOverride(ctx context.Context, o pricing.DateOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := daterange.Key(o.Date)
	for propertyID, stored := range r.overrides {
		list := stored[:0:0]
		for _, existing := range stored {
			if existing.ID == o.ID || (propertyID == o.PropertyID && daterange.Key(existing.Date) == key) {
				continue
			}
			list = append(list, existing)
		}
		r.overrides[propertyID] = list
	}
	r.overrides[o.PropertyID] = append(r.overrides[o.PropertyID], copyOverride(o))
	return nil
}

// AppendOverride stores o without replacing an override for the same day,
// the way an external writer could.
func (r *RuleRepository) AppendOverride(o pricing.DateOverride) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[o.PropertyID] = append(r.overrides[o.PropertyID], copyOverride(o))
}

func (r *RuleRepository) DeleteOverride(ctx context.Context, propertyID property.ID, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := daterange.Key(day)
	list := r.overrides[propertyID][:0:0]
	removed := false
	for _, existing := range r.overrides[propertyID] {
		if daterange.Key(existing.Date) == key {
			removed = true
			continue
		}
		list = append(list, existing)
	}
	if !removed {
		return errors.Wrapf(pricing.ErrOverrideNotFound, "%s %s", propertyID, key)
	}
	r.overrides[propertyID] = list
	return nil
}

func copyOverride(o pricing.DateOverride) pricing.DateOverride {
	if o.MinimumStay != nil {
		v := *o.MinimumStay
		o.MinimumStay = &v
	}
	if o.Available != nil {
		v := *o.Available
		o.Available = &v
	}
	return o
}

// BookingRepository stores booking snapshots in memory.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[booking.BookingID]booking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[booking.BookingID]booking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id booking.BookingID) (booking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return booking.Booking{}, errors.Wrapf(booking.ErrBookingNotFound, "%s", id)
	}
	return b, nil
}

func (r *BookingRepository) Blocking(ctx context.Context, propertyID property.ID) ([]booking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []booking.Booking
	for _, b := range r.items {
		if b.PropertyID == propertyID && b.Blocks() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *BookingRepository) Save(ctx context.Context, b booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[b.ID] = b
	return nil
}

var (
	_ property.Catalog       = (*PropertyCatalog)(nil)
	_ pricing.RuleRepository = (*RuleRepository)(nil)
	_ booking.Repository     = (*BookingRepository)(nil)
)
