package events

import "time"

// DomainEvent is a fact raised by a calendar write, relayed through the outbox.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}
