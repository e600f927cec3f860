package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
)

const ExchangeName = "gate.events"

// ErrNacked is returned when the broker refuses a confirmed publish.
var ErrNacked = errors.New("broker nacked publish")

func declareExchange(ch *amqp.Channel) error {
	return errors.Wrapf(ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil), "declare exchange %s", ExchangeName)
}

// Publisher sends persistent gate events on a confirm-mode channel.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open publish channel")
	}
	if err := declareExchange(ch); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Wrap(err, "enable publisher confirms")
	}
	return &Publisher{ch: ch}, nil
}

// Publish returns once the broker has confirmed msg. The caller's trace
// context travels in the message headers.
func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if msg.Headers == nil {
		msg.Headers = amqp.Table{}
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Headers))

	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, ExchangeName, key, false, false, msg)
	if err != nil {
		return errors.Wrapf(err, "publish %s", key)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "confirm %s", key)
	}
	if !acked {
		return errors.Wrapf(ErrNacked, "publish %s", key)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
