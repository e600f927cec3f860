package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr           string
	CRDBDSN            string
	MongoURI           string
	MongoDB            string
	RedisAddr          string
	RabbitURL          string
	JWTPublicKey       string
	AdminPIN           string
	OTLPEndpoint       string
	LogLevel           string
	CORSAllowedOrigins []string
	GateRateLimit      int
	GateRateWindow     time.Duration
	IdempotencyTTL     time.Duration
	OutboxInterval     time.Duration
	OutboxBatch        int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		CRDBDSN:            os.Getenv("CRDB_DSN"),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "passes"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		JWTPublicKey:       os.Getenv("JWT_PUBLIC_KEY"),
		AdminPIN:           os.Getenv("ADMIN_PIN"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	var err error
	if cfg.GateRateLimit, err = intEnv("GATE_RATE_LIMIT", 30); err != nil {
		return nil, err
	}
	if cfg.OutboxBatch, err = intEnv("OUTBOX_BATCH", 50); err != nil {
		return nil, err
	}
	if cfg.GateRateWindow, err = durationEnv("GATE_RATE_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.OutboxInterval, err = durationEnv("OUTBOX_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.Newf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, errors.Newf("config: %s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
