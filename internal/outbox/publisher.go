package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-pass-gate/internal/adapters/crdb"
	"github.com/robertarktes/event-pass-gate/internal/observability"
)

const publishAttempts = 3

type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetUnpublishedOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error
}

type MessagePublisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	repo      Store
	rabbitPub MessagePublisher
	logger    observability.Logger
	interval  time.Duration
	batch     int
	backoff   time.Duration
	now       func() time.Time
}

func NewPublisher(repo Store, rabbitPub MessagePublisher, logger observability.Logger, interval time.Duration, batch int) *Publisher {
	return &Publisher{
		repo:      repo,
		rabbitPub: rabbitPub,
		logger:    logger,
		interval:  interval,
		batch:     batch,
		backoff:   200 * time.Millisecond,
		now:       time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.RunOnce(ctx)
			if err != nil {
				p.logger.WithError(err).Error("outbox relay failed")
				continue
			}
			if n > 0 {
				p.logger.WithField("published", n).Debug("outbox batch relayed")
			}
		}
	}
}

// RunOnce relays one batch in creation order and returns how many records
// were published. A record that cannot be published stops the batch so
// later events are not delivered ahead of it.
func (p *Publisher) RunOnce(ctx context.Context) (int, error) {
	published := 0
	err := p.repo.WithTx(ctx, func(tx pgx.Tx) error {
		published = 0
		records, err := p.repo.GetUnpublishedOutbox(ctx, tx, p.batch)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			observability.OutboxLag.Set(0)
			return nil
		}
		observability.OutboxLag.Set(p.now().Sub(records[0].CreatedAt).Seconds())

		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:    rec.DedupeKey,
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    rec.CreatedAt,
				Type:         rec.EventType,
				Body:         rec.Payload,
			}
			if err := p.publish(ctx, rec.EventType, msg); err != nil {
				p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).Warn("outbox publish failed, will retry next tick")
				break
			}
			if err := p.repo.MarkPublished(ctx, tx, rec.ID, p.now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "relay outbox batch")
	}
	return published, nil
}

func (p *Publisher) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err = p.rabbitPub.Publish(ctx, key, msg); err == nil {
			return nil
		}
		if attempt == publishAttempts {
			break
		}
		observability.RabbitPublishRetries.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(attempt)):
		}
	}
	return err
}
