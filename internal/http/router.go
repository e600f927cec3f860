package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Logger      observability.Logger
	Auth        *Auth
	Limiter     Limiter
	RateLimit   int
	RateWindow  time.Duration
	Idempotency IdempotencyStore
	CORSOrigins []string
}

func SetupRouter(h *Handlers, rc RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(rc.Logger))
	r.Use(otelhttp.NewMiddleware("gate-api"))
	r.Use(MetricsMiddleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   rc.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	idempotent := func(next http.Handler) http.Handler { return next }
	if rc.Idempotency != nil {
		idempotent = IdempotencyMiddleware(rc.Idempotency, rc.Logger)
	}

	r.Group(func(r chi.Router) {
		r.Use(rc.Auth.Authenticate)

		r.Route("/v1/entry", func(r chi.Router) {
			if rc.Limiter != nil {
				r.Use(RateLimitMiddleware(rc.Limiter, rc.RateLimit, rc.RateWindow, rc.Logger))
			}
			r.Post("/search", h.SearchPass)
			r.With(idempotent).Post("/checkin", h.MarkEntry)
			r.With(rc.Auth.RequireRole("Admin")).Get("/logs", h.GetEntryLogs)
			r.Get("/bookings", h.GetGateBookings)
		})

		r.With(idempotent).Post("/v1/bookings", h.CreateBooking)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Get("/v1/pass-types", h.ListPassTypes)
		r.With(rc.Auth.RequireRole("Admin")).Post("/v1/pass-types", h.CreatePassType)
	})

	return r
}
