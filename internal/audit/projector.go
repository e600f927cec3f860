// Package audit projects gate events from the broker into the audit log.
package audit

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-pass-gate/internal/adapters/rabbit"
	"github.com/robertarktes/event-pass-gate/internal/domain"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ErrMalformedEvent marks events that can never be projected.
var ErrMalformedEvent = errors.New("malformed event")

type Sink interface {
	LogEvent(ctx context.Context, action, subject, dedupeKey string, data map[string]interface{}) error
}

type Projector struct {
	sink   Sink
	logger observability.Logger
}

func NewProjector(sink Sink, logger observability.Logger) *Projector {
	return &Projector{sink: sink, logger: logger}
}

// Project writes one event to the sink. messageID deduplicates redeliveries.
func (p *Projector) Project(ctx context.Context, routingKey, messageID string, body []byte) error {
	switch routingKey {
	case domain.EventEntryAdmitted:
		var ev domain.EntryAdmittedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Mark(errors.Wrapf(err, "decode %s", routingKey), ErrMalformedEvent)
		}
		return p.sink.LogEvent(ctx, routingKey, ev.BookingID, dedupeKey(messageID, ev.EntryLogID), map[string]interface{}{
			"entry_log_id":   ev.EntryLogID,
			"booking_code":   ev.BookingCode,
			"buyer_phone":    ev.BuyerPhone,
			"scanned_by":     ev.ScannedBy,
			"people_entered": ev.PeopleEntered,
			"total_entered":  ev.TotalEntered,
			"status":         string(ev.Status),
			"admin_override": ev.AdminOverride,
			"scanned_at":     ev.ScannedAt,
		})
	case domain.EventBookingCreated:
		var ev domain.BookingCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Mark(errors.Wrapf(err, "decode %s", routingKey), ErrMalformedEvent)
		}
		return p.sink.LogEvent(ctx, routingKey, ev.BookingID, dedupeKey(messageID, ev.BookingID), map[string]interface{}{
			"booking_code":   ev.BookingCode,
			"buyer_name":     ev.BuyerName,
			"buyer_phone":    ev.BuyerPhone,
			"pass_type":      ev.PassType,
			"total_people":   ev.TotalPeople,
			"total_amount":   ev.TotalAmount,
			"payment_status": string(ev.PaymentStatus),
			"created_at":     ev.CreatedAt,
		})
	default:
		return errors.Mark(errors.Newf("unknown routing key %q", routingKey), ErrMalformedEvent)
	}
}

func dedupeKey(messageID, fallback string) string {
	if messageID != "" {
		return messageID
	}
	return fallback
}

// Run projects deliveries with the given number of workers until the
// channel closes or ctx ends. Malformed events are rejected, sink failures
// are requeued.
func (p *Projector) Run(ctx context.Context, deliveries <-chan amqp.Delivery, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return nil
					}
					p.handle(gctx, d)
				}
			}
		})
	}
	return g.Wait()
}

func (p *Projector) handle(ctx context.Context, d amqp.Delivery) {
	log := p.logger.WithFields(map[string]interface{}{
		"routing_key": d.RoutingKey,
		"message_id":  d.MessageId,
	})

	ctx, span := otel.Tracer("audit").Start(rabbit.ExtractContext(ctx, d.Headers), "audit.Project")
	span.SetAttributes(attribute.String("audit.routing_key", d.RoutingKey))
	defer span.End()

	err := p.Project(ctx, d.RoutingKey, d.MessageId, d.Body)
	if err != nil {
		span.RecordError(err)
	}
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.WithError(ackErr).Error("failed to ack delivery")
		}
	case errors.Is(err, ErrMalformedEvent):
		log.WithError(err).Warn("rejecting malformed event")
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.WithError(nackErr).Error("failed to reject delivery")
		}
	default:
		log.WithError(err).Error("audit projection failed, requeueing")
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.WithError(nackErr).Error("failed to requeue delivery")
		}
	}
}
