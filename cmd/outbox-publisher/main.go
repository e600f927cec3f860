package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-pass-gate/internal/adapters/crdb"
	"github.com/robertarktes/event-pass-gate/internal/adapters/rabbit"
	"github.com/robertarktes/event-pass-gate/internal/config"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"github.com/robertarktes/event-pass-gate/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "gate-outbox-publisher")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel(context.Background())

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	publisher := outbox.NewPublisher(repo, rabbitPub, logger, cfg.OutboxInterval, cfg.OutboxBatch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := repo.Ping(ctx); err != nil {
		log.Fatalf("crdb not reachable: %v", err)
	}

	// A lost broker connection ends the relay so the supervisor restarts it
	// with a fresh channel.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case amqpErr := <-closed:
			if amqpErr != nil {
				logger.WithError(amqpErr).Error("rabbitmq connection closed")
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.WithFields(map[string]interface{}{
		"interval": cfg.OutboxInterval.String(),
		"batch":    cfg.OutboxBatch,
	}).Info("Outbox publisher started")
	publisher.Run(ctx)
	logger.Info("Shutdown outbox publisher")
}
