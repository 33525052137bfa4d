package outbox_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "rentalspot/internal/app/outbox"
	"rentalspot/internal/infra/outbox"
	"rentalspot/internal/infra/storage/memory"
)

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	mu   sync.Mutex
	fail error
	sent []published
}

func (p *fakeProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.sent = append(p.sent, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func seed(t *testing.T, box *memory.Outbox, id, name string) {
	t.Helper()
	require.NoError(t, box.Add(context.Background(), appoutbox.EventRecord{
		ID:         id,
		Name:       name,
		Payload:    []byte(`{"propertyId":"villa"}`),
		OccurredAt: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
		Aggregate:  "villa",
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	}))
}

func TestWorkerDrainPublishesCloudEvents(t *testing.T) {
	box := memory.NewOutbox().Relayed()
	seed(t, box, "e1", "calendar.regenerated")
	seed(t, box, "e2", "calendar.availability_patched")
	producer := &fakeProducer{}
	w := &outbox.Worker{Queue: box, Producer: producer, TopicPrefix: "dev.", ID: "w1"}

	require.NoError(t, w.Drain(context.Background()))

	require.Len(t, producer.sent, 2)
	assert.Empty(t, box.Records())
	first := producer.sent[0]
	assert.Equal(t, "dev.calendar.events.v1", first.topic)
	assert.Equal(t, "villa", first.key)
	assert.Equal(t, "application/cloudevents+json", first.headers["content-type"])
	assert.Equal(t, "00-abc-def-01", first.headers["traceparent"])

	var evt map[string]any
	require.NoError(t, json.Unmarshal(first.payload, &evt))
	assert.Equal(t, "1.0", evt["specversion"])
	assert.Equal(t, "e1", evt["id"])
	assert.Equal(t, "calendar.regenerated.v1", evt["type"])
	assert.Equal(t, "app://rentalspot", evt["source"])
	assert.Equal(t, map[string]any{"propertyId": "villa"}, evt["data"])
}

func TestWorkerReschedulesFailedPublish(t *testing.T) {
	box := memory.NewOutbox().Relayed()
	seed(t, box, "e1", "calendar.regenerated")
	producer := &fakeProducer{fail: errors.New("broker down")}
	w := &outbox.Worker{Queue: box, Producer: producer, Backoff: []time.Duration{time.Hour}}

	require.NoError(t, w.Drain(context.Background()))

	assert.Len(t, box.Records(), 1)
	claimed, err := box.Claim(context.Background(), "again")
	require.NoError(t, err)
	assert.Nil(t, claimed, "record is not due before its backoff elapses")
}

func TestWorkerRejectsUndecodablePayload(t *testing.T) {
	box := memory.NewOutbox().Relayed()
	require.NoError(t, box.Add(context.Background(), appoutbox.EventRecord{ID: "bad", Name: "calendar.regenerated", Payload: []byte("not json")}))
	producer := &fakeProducer{}
	w := &outbox.Worker{Queue: box, Producer: producer, Backoff: []time.Duration{time.Hour}}

	require.NoError(t, w.Drain(context.Background()))

	assert.Empty(t, producer.sent)
	assert.Len(t, box.Records(), 1)
}

func TestWorkerRunRequiresDependencies(t *testing.T) {
	err := (&outbox.Worker{}).Run(context.Background())
	assert.ErrorIs(t, err, outbox.ErrWorkerNotConfigured)
}
