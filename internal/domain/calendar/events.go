package calendar

import (
	"time"

	"rentalspot/internal/domain/property"
)

const (
	EventCalendarRegenerated = "calendar.regenerated"
	EventAvailabilityPatched = "calendar.availability_patched"
	EventOverrideDayUpdated  = "calendar.override_day_updated"
)

type CalendarRegenerated struct {
	PropertyID property.ID `json:"propertyId"`
	Generated  []string    `json:"generated"`
	Skipped    []string    `json:"skipped,omitempty"`
	At         time.Time   `json:"at"`
}

func (e CalendarRegenerated) EventName() string     { return EventCalendarRegenerated }
func (e CalendarRegenerated) AggregateID() string   { return string(e.PropertyID) }
func (e CalendarRegenerated) OccurredAt() time.Time { return e.At }

type AvailabilityPatched struct {
	PropertyID property.ID `json:"propertyId"`
	From       time.Time   `json:"from"`
	To         time.Time   `json:"to"`
	Available  bool        `json:"available"`
	Months     []string    `json:"months"`
	Kept       []string    `json:"keptUnavailable,omitempty"`
	At         time.Time   `json:"at"`
}

func (e AvailabilityPatched) EventName() string     { return EventAvailabilityPatched }
func (e AvailabilityPatched) AggregateID() string   { return string(e.PropertyID) }
func (e AvailabilityPatched) OccurredAt() time.Time { return e.At }

type OverrideDayUpdated struct {
	PropertyID property.ID `json:"propertyId"`
	Date       string      `json:"date"`
	OverrideID string      `json:"overrideId"`
	At         time.Time   `json:"at"`
}

func (e OverrideDayUpdated) EventName() string     { return EventOverrideDayUpdated }
func (e OverrideDayUpdated) AggregateID() string   { return string(e.PropertyID) }
func (e OverrideDayUpdated) OccurredAt() time.Time { return e.At }
