package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// adminAuth verifies a bearer token signed with the configured HMAC
// secret and carrying role=admin. With no secret configured the admin
// surface is closed entirely.
func (h *handler) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.JWTSecret == "" {
			writeError(w, http.StatusForbidden, fmt.Errorf("admin endpoints disabled"))
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(h.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
			return
		}
		if role, _ := claims["role"].(string); role != "admin" {
			writeError(w, http.StatusForbidden, fmt.Errorf("admin role required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// relayAuth gates the delivery callback behind the shared relay token.
func (h *handler) relayAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.RelayToken == "" || r.Header.Get("X-Relay-Token") != h.cfg.RelayToken {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid relay token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter applies a per-client token bucket keyed by remote host.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newRateLimiter(perSecond, burst int) *rateLimiter {
	if burst <= 0 {
		burst = perSecond
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = lim
		if len(rl.limiters) > 10000 {
			rl.limiters = map[string]*rate.Limiter{key: lim}
		}
	}
	return lim
}

func (rl *rateLimiter) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			key = r.RemoteAddr
		}
		if !rl.get(key).Allow() {
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
