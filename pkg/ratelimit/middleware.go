package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
)

// Config holds rate limiting configuration
type Config struct {
	Capacity   int     // Max burst per client
	RefillRate float64 // Requests per second per client
	// BucketTTL is how long to keep inactive buckets in memory
	BucketTTL time.Duration
}

// DefaultConfig allows a burst of 5 requests and one more every 12 seconds.
func DefaultConfig() Config {
	return Config{
		Capacity:   5,
		RefillRate: 5.0 / 60.0,
		BucketTTL:  time.Hour,
	}
}

// Middleware limits requests per client IP
type Middleware struct {
	limiter *RateLimiter
}

func NewMiddleware(config Config, opts ...Option) *Middleware {
	if config.Capacity <= 0 {
		config.Capacity = DefaultConfig().Capacity
	}
	return &Middleware{
		limiter: NewRateLimiter(config.Capacity, config.RefillRate, config.BucketTTL, opts...),
	}
}

type limitedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handler reports the client's budget in X-RateLimit-* headers and rejects
// requests over the limit with 429 and a Retry-After header.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, retryAfter := m.limiter.Allow(ip)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limiter.capacity))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(m.limiter.Remaining(ip)))
		if !ok {
			slog.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path, "method", r.Method)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, limitedResponse{Message: "Too many requests. Please try again later."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close releases the background cleanup goroutine
func (m *Middleware) Close() {
	m.limiter.Close()
}

// clientIP uses RemoteAddr only. Forwarded headers are honoured by a
// RealIP middleware earlier in the chain when the service runs behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
