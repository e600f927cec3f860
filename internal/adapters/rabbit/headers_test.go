package rabbit

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_RoundTripsTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	headers := amqp.Table{"x-origin": "outbox"}
	propagation.TraceContext{}.Inject(parent, headerCarrier(headers))
	if headers["traceparent"] != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("unexpected traceparent %v", headers["traceparent"])
	}

	got := trace.SpanContextFromContext(propagation.TraceContext{}.Extract(context.Background(), headerCarrier(headers)))
	if got.TraceID() != traceID || got.SpanID() != spanID {
		t.Errorf("expected span context to survive the headers, got %v", got)
	}
	if len(headerCarrier(headers).Keys()) != 2 {
		t.Errorf("expected origin and traceparent keys, got %v", headerCarrier(headers).Keys())
	}
}

func TestExtractContext_NilHeaders(t *testing.T) {
	ctx := context.Background()
	if got := ExtractContext(ctx, nil); got != ctx {
		t.Errorf("expected ctx unchanged")
	}
}
