package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-pass-gate/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/event-pass-gate/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/event-pass-gate/internal/adapters/redis"
	"github.com/robertarktes/event-pass-gate/internal/booking"
	"github.com/robertarktes/event-pass-gate/internal/config"
	"github.com/robertarktes/event-pass-gate/internal/gate"
	httphandler "github.com/robertarktes/event-pass-gate/internal/http"
	"github.com/robertarktes/event-pass-gate/internal/idempotency"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"github.com/robertarktes/event-pass-gate/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "gate-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown(context.Background())

	logger := observability.NewLogger(cfg.LogLevel)
	if cfg.AdminPIN == "" {
		logger.Warn("ADMIN_PIN is not set, admin overrides are disabled")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	if err := crdbRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to apply crdb schema: %v", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	passTypes := mongoadapter.NewPassTypeCatalog(mongoClient.Database(cfg.MongoDB), logger)
	if err := passTypes.EnsureIndexes(ctx); err != nil {
		log.Fatalf("failed to create pass type indexes: %v", err)
	}
	if err := passTypes.SeedDefaults(ctx); err != nil {
		log.Fatalf("failed to seed pass types: %v", err)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	responses := redisadapter.NewResponseCache(redisClient)
	idemp := idempotency.NewIdempotency(responses, redisCache, cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache)

	auth, err := httphandler.NewAuth(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("failed to configure auth: %v", err)
	}
	if !auth.Enabled() {
		logger.Warn("JWT_PUBLIC_KEY is not set, requests are not authenticated")
	}

	handlers := httphandler.NewHandlers(httphandler.Deps{
		Resolver:  gate.NewResolver(crdbRepo),
		Admitter:  gate.NewAccumulator(crdbRepo, cfg.AdminPIN),
		Bookings:  booking.NewService(crdbRepo, passTypes),
		Gate:      crdbRepo,
		EntryLogs: crdbRepo,
		PassTypes: passTypes,
		Checks: map[string]httphandler.Pinger{
			"crdb":  crdbRepo,
			"mongo": passTypes,
			"redis": redisCache,
		},
		Logger: logger,
	})

	r := httphandler.SetupRouter(handlers, httphandler.RouterConfig{
		Logger:      logger,
		Auth:        auth,
		Limiter:     rl,
		RateLimit:   cfg.GateRateLimit,
		RateWindow:  cfg.GateRateWindow,
		Idempotency: idemp,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("gate api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
