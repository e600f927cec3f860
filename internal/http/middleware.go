package http

import (
	"bytes"
	"context"
	"crypto/rsa"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/robertarktes/event-pass-gate/internal/idempotency"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"github.com/robertarktes/event-pass-gate/internal/rateLimit"
)

const minIdempotencyKeyLen = 16

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// LoggerMiddleware stores a request-scoped logger in the context and logs
// each completed request.
func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := observability.WithLogger(r.Context(), entry)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			entry.WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request completed")
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status()), r.Method).Inc()
	})
}

// Claims are the operator claims issued by the auth service.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Auth verifies RS256 bearer tokens. A zero Auth lets every request
// through without claims.
type Auth struct {
	key *rsa.PublicKey
}

func NewAuth(publicKeyPEM string) (*Auth, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return &Auth{}, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, errors.Wrap(err, "parse JWT public key")
	}
	return &Auth{key: key}, nil
}

func (a *Auth) Enabled() bool {
	return a != nil && a.key != nil
}

func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return a.key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			observability.FromContext(r.Context(), observability.NewNopLogger()).WithError(err).Debug("token rejected")
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole refuses requests whose claims carry a different role. It is a
// no-op while authentication is disabled.
func (a *Auth) RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || claims.Role != role {
				writeError(w, http.StatusForbidden, "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) (rateLimit.Decision, error)
}

// RateLimitMiddleware limits each client to rate requests per period. The
// client is the token subject when present, otherwise the remote IP.
// Limiter failures let the request through.
func RateLimitMiddleware(rl Limiter, rate int, period time.Duration, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "gate:ip:" + clientIP(r)
			if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
				key = "gate:user:" + claims.Subject
			}

			d, err := rl.Allow(r.Context(), key, rate, period)
			if err != nil {
				observability.FromContext(r.Context(), logger).WithError(err).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rate))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				observability.RateLimitExceeded.Inc()
				retry := d.ResetIn
				if retry <= 0 {
					retry = period
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "Too many gate requests, please slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (*idempotency.Response, *idempotency.Reservation, error)
	Complete(ctx context.Context, res *idempotency.Reservation, resp idempotency.Response) error
	Abort(ctx context.Context, res *idempotency.Reservation) error
}

// IdempotencyMiddleware replays the stored response of a POST carrying a
// previously seen Idempotency-Key. Requests without the header pass through.
// Server errors and conflicts are not stored.
func IdempotencyMiddleware(idemp IdempotencyStore, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < minIdempotencyKeyLen {
				writeError(w, http.StatusBadRequest, "invalid Idempotency-Key")
				return
			}
			log := observability.FromContext(r.Context(), logger)
			scoped := r.URL.Path + ":" + key

			stored, res, err := idemp.Begin(r.Context(), scoped)
			if errors.Is(err, idempotency.ErrInFlight) {
				writeError(w, http.StatusConflict, "A request with this Idempotency-Key is already in progress")
				return
			}
			if err != nil {
				log.WithError(err).Warn("idempotency store unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if stored != nil {
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				w.Write(stored.Result)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status >= http.StatusInternalServerError || status == http.StatusConflict {
				err = idemp.Abort(context.WithoutCancel(r.Context()), res)
			} else {
				err = idemp.Complete(context.WithoutCancel(r.Context()), res, idempotency.Response{
					Status:      status,
					ContentType: ww.Header().Get("Content-Type"),
					Result:      body.Bytes(),
				})
			}
			if err != nil {
				log.WithError(err).Warn("failed to finish idempotency record")
			}
		})
	}
}
