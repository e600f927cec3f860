package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	mongoadapter "github.com/robertarktes/event-pass-gate/internal/adapters/mongo"
	"github.com/robertarktes/event-pass-gate/internal/adapters/rabbit"
	"github.com/robertarktes/event-pass-gate/internal/audit"
	"github.com/robertarktes/event-pass-gate/internal/config"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const workers = 4

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "gate-audit-consumer")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel(context.Background())

	logger := observability.NewLogger(cfg.LogLevel)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	auditLog := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)
	if err := auditLog.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("failed to create audit indexes: %v", err)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, rabbit.AuditQueue, rabbit.AuditBindings, workers*2)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to start consuming: %v", err)
	}

	logger.WithField("queue", rabbit.AuditQueue).Info("Audit consumer started")
	if err := audit.NewProjector(auditLog, logger).Run(ctx, deliveries, workers); err != nil {
		logger.WithError(err).Error("audit consumer stopped")
	}
	logger.Info("Shutdown audit consumer")
}
