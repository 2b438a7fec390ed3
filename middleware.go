package main

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/example/blogauth/internal/auth"
)

// Guard admits a request only when it carries a valid, unrevoked bearer
// token of the given kind. The verified identity is put on the request
// context.
func (a *App) Guard(kind auth.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				a.guardOutcome(kind, "missing")
				a.fail(w, r, authenticationError("Authorization token required"))
				return
			}

			id, err := a.Issuer.Verify(raw, kind)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					a.guardOutcome(kind, "expired")
					a.fail(w, r, authenticationError("Token expired"))
					return
				}
				a.guardOutcome(kind, "invalid")
				a.fail(w, r, authenticationError("Invalid token"))
				return
			}

			revoked, err := a.Ledger.IsRevoked(r.Context(), id.TokenID)
			if err != nil {
				// fail closed
				a.Log.WithError(err).WithField("jti", id.TokenID).Error("revocation lookup failed")
				a.guardOutcome(kind, "ledger_error")
				a.fail(w, r, authenticationError("Invalid token"))
				return
			}
			if revoked {
				a.guardOutcome(kind, "revoked")
				a.fail(w, r, authenticationError("Invalid token"))
				return
			}

			a.guardOutcome(kind, "ok")
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func (a *App) guardOutcome(kind auth.Kind, outcome string) {
	a.metrics.AuthGuardTotal.WithLabelValues(string(kind), outcome).Inc()
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// RateLimiter hands out one token bucket per client key. Buckets of idle
// clients are evicted.
type RateLimiter struct {
	limiters *lru.LRU[string, *rate.Limiter]
	perMin   int
	mu       sync.Mutex
}

func NewRateLimiter(limitPerMinute int) *RateLimiter {
	if limitPerMinute < 1 {
		limitPerMinute = 1
	}
	return &RateLimiter{
		limiters: lru.NewLRU[string, *rate.Limiter](10000, nil, 10*time.Minute),
		perMin:   limitPerMinute,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.perMin)/60, rl.perMin)
		rl.limiters.Add(key, limiter)
	}
	return limiter
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// RateLimit throttles credential endpoints per client IP.
func (a *App) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.rateLimiter.Allow(clientIP(r)) {
			a.fail(w, r, rateLimitError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Logging logs every routed request and records its metrics.
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		a.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		a.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		a.Log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"status":   wrapped.statusCode,
			"duration": duration,
		}).Info("request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
