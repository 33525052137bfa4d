package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "rentalspot/internal/app/outbox"
)

type outboxEntry struct {
	record    appoutbox.EventRecord
	attempts  int
	claimed   bool
	nextRetry time.Time
}

// Outbox keeps events in memory until a relay marks them sent. Without a
// relay, Flush discards what was recorded.
type Outbox struct {
	mu      sync.Mutex
	entries []*outboxEntry
	relayed bool
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

// Relayed keeps records across Flush so a worker can deliver them.
func (o *Outbox) Relayed() *Outbox {
	o.mu.Lock()
	o.relayed = true
	o.mu.Unlock()
	return o
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, &outboxEntry{record: record})
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.relayed {
		o.entries = nil
	}
	return nil
}

// Records returns the pending records in insertion order.
func (o *Outbox) Records() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e.record)
	}
	return out
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*appoutbox.Claimed, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	for _, e := range o.entries {
		if e.claimed || now.Before(e.nextRetry) {
			continue
		}
		e.claimed = true
		return &appoutbox.Claimed{EventRecord: e.record, Attempts: e.attempts}, nil
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, e := range o.entries {
		if e.record.ID == id {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.entries {
		if e.record.ID == id {
			e.claimed = false
			e.attempts++
			e.nextRetry = next
		}
	}
	return nil
}

var (
	_ appoutbox.Outbox = (*Outbox)(nil)
	_ appoutbox.Queue  = (*Outbox)(nil)
)
