package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-pass-gate/internal/adapters/crdb"
	"github.com/robertarktes/event-pass-gate/internal/observability"
)

type fakeStore struct {
	records   []crdb.OutboxRecord
	published map[uuid.UUID]bool
}

func (f *fakeStore) WithTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeStore) GetUnpublishedOutbox(_ context.Context, _ pgx.Tx, limit int) ([]crdb.OutboxRecord, error) {
	var out []crdb.OutboxRecord
	for _, r := range f.records {
		if !f.published[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, _ pgx.Tx, id uuid.UUID, _ time.Time) error {
	f.published[id] = true
	return nil
}

type fakeBroker struct {
	failKey  string
	failures int
	sent     []amqp.Publishing
	keys     []string
}

func (f *fakeBroker) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	if key == f.failKey && f.failures > 0 {
		f.failures--
		return errors.New("channel closed")
	}
	f.sent = append(f.sent, msg)
	f.keys = append(f.keys, key)
	return nil
}

func newRecords(types ...string) []crdb.OutboxRecord {
	recs := make([]crdb.OutboxRecord, len(types))
	for i, t := range types {
		recs[i] = crdb.OutboxRecord{
			ID:        uuid.New(),
			EventType: t,
			Payload:   []byte(`{}`),
			CreatedAt: time.Now().Add(-time.Minute),
			DedupeKey: t + ":" + uuid.NewString(),
		}
	}
	return recs
}

func newTestPublisher(store Store, broker MessagePublisher) *Publisher {
	p := NewPublisher(store, broker, observability.NewNopLogger(), time.Second, 10)
	p.backoff = 0
	return p
}

func TestPublisher_RunOncePublishesInOrder(t *testing.T) {
	store := &fakeStore{records: newRecords("booking.created", "entry.admitted"), published: map[uuid.UUID]bool{}}
	broker := &fakeBroker{}

	n, err := newTestPublisher(store, broker).RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(broker.keys) != 2 || broker.keys[0] != "booking.created" || broker.keys[1] != "entry.admitted" {
		t.Errorf("expected both events in order, got %d %v", n, broker.keys)
	}
	if broker.sent[0].MessageId != store.records[0].DedupeKey || broker.sent[0].DeliveryMode != amqp.Persistent {
		t.Errorf("unexpected message %+v", broker.sent[0])
	}
}

func TestPublisher_RetriesTransientFailure(t *testing.T) {
	store := &fakeStore{records: newRecords("entry.admitted"), published: map[uuid.UUID]bool{}}
	broker := &fakeBroker{failKey: "entry.admitted", failures: 2}

	n, err := newTestPublisher(store, broker).RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || !store.published[store.records[0].ID] {
		t.Errorf("expected record published after retries, got %d", n)
	}
}

func TestPublisher_StopsBatchOnPersistentFailure(t *testing.T) {
	store := &fakeStore{records: newRecords("booking.created", "entry.admitted", "entry.admitted"), published: map[uuid.UUID]bool{}}
	broker := &fakeBroker{failKey: "entry.admitted", failures: publishAttempts}

	n, err := newTestPublisher(store, broker).RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected only the first record published, got %d", n)
	}
	if store.published[store.records[1].ID] || store.published[store.records[2].ID] {
		t.Error("expected records after the failure to stay unpublished")
	}

	n, err = newTestPublisher(store, broker).RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected the remaining records on the next run, got %d", n)
	}
}
