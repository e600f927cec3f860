package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const AuditQueue = "gate.audit.q"

// AuditBindings route every entry and booking event to the audit queue.
var AuditBindings = []string{"entry.*", "booking.*"}

type Consumer struct {
	ch    *amqp.Channel
	queue string
}

// NewConsumer declares a durable queue bound to the gate exchange with
// each of the given routing patterns.
func NewConsumer(conn *amqp.Connection, queue string, bindings []string, prefetch int) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open consume channel")
	}
	if err := declareExchange(ch); err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, errors.Wrapf(err, "declare queue %s", queue)
	}
	for _, key := range bindings {
		if err := ch.QueueBind(queue, key, ExchangeName, false, nil); err != nil {
			return nil, errors.Wrapf(err, "bind %s to %s", queue, key)
		}
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, errors.Wrap(err, "set prefetch")
	}
	return &Consumer{ch: ch, queue: queue}, nil
}

// Consume starts manual-ack delivery. The channel is closed when ctx ends.
func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "consume %s", c.queue)
	}
	return deliveries, nil
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
