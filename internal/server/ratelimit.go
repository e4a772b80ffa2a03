// -----------------------------------------------------------------------
// Rate Limiting - Per-client token buckets for the API surface
// -----------------------------------------------------------------------

package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/handlers"
)

const (
	// Idle clients are forgotten after this long
	clientIdleTimeout = 5 * time.Minute
	// How often the janitor sweeps idle clients
	clientSweepInterval = time.Minute
)

// limiterExemptPrefixes are dashboard read paths that poll aggressively and
// never mutate state; GETs here bypass the normal limiter.
var limiterExemptPrefixes = []string{
	"/api/status",
	"/api/pipelines",
	"/api/reports",
	"/api/health",
}

// client is one remote address's set of token buckets.
type client struct {
	normal   *rate.Limiter
	scan     *rate.Limiter
	bulk     *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out per-client limiters and answers 429 when a bucket
// runs dry. Scan creation and bulk import carry their own, stricter buckets.
type rateLimiter struct {
	cfg common.RateLimitConfig

	mu      sync.Mutex
	clients map[string]*client

	done chan struct{}
}

func newRateLimiter(cfg common.RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		cfg:     cfg,
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Close stops the janitor goroutine.
func (rl *rateLimiter) Close() {
	close(rl.done)
}

// sweep drops clients that have been idle past the timeout.
func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(clientSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-clientIdleTimeout)
			rl.mu.Lock()
			for addr, c := range rl.clients {
				if c.lastSeen.Before(cutoff) {
					delete(rl.clients, addr)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// perMinute builds a limiter refilling n tokens per minute.
func perMinute(n, burst int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), burst)
}

// get returns the buckets for one remote address, creating them on first use.
func (rl *rateLimiter) get(addr string) *client {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[addr]
	if !ok {
		c = &client{
			normal: perMinute(rl.cfg.NormalPerMinute, rl.cfg.NormalBurst),
			scan:   perMinute(rl.cfg.ScanPerMinute, rl.cfg.ScanBurst),
			bulk:   perMinute(rl.cfg.ImportPerMinute, rl.cfg.ImportBurst),
		}
		rl.clients[addr] = c
	}
	c.lastSeen = time.Now()
	return c
}

// pick selects the bucket a request draws from, or nil when the request is
// exempt.
func (rl *rateLimiter) pick(r *http.Request) *rate.Limiter {
	path := r.URL.Path

	if !strings.HasPrefix(path, "/api/") {
		return nil
	}

	c := rl.get(clientAddr(r))

	if path == "/api/scan" {
		return c.scan
	}
	if path == "/api/jobs/import" {
		return c.bulk
	}

	if r.Method == http.MethodGet {
		for _, prefix := range limiterExemptPrefixes {
			if strings.HasPrefix(path, prefix) {
				return nil
			}
		}
	}

	return c.normal
}

// allow admits or rejects one request. On rejection it reports how many
// seconds until the bucket refills one token.
func (rl *rateLimiter) allow(r *http.Request) (bool, int) {
	limiter := rl.pick(r)
	if limiter == nil {
		return true, 0
	}
	if limiter.Allow() {
		return true, 0
	}
	return false, retryAfterSeconds(limiter.Limit())
}

// retryAfterSeconds converts a refill rate to a whole-second wait hint.
func retryAfterSeconds(limit rate.Limit) int {
	if limit <= 0 {
		return 1
	}
	secs := int(math.Ceil(1 / float64(limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// clientAddr extracts the remote IP, falling back to the raw address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimitBody is the 429 response envelope.
type rateLimitBody struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	RetryAfter int       `json:"retryAfter"`
	Timestamp  time.Time `json:"timestamp"`
}

// rateLimitMiddleware rejects requests whose bucket is empty with a 429 and
// a Retry-After hint.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter := s.limiter.allow(r)
		if !ok {
			s.app.Logger.Warn().
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("Request rate limited")

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			handlers.WriteJSON(w, http.StatusTooManyRequests, rateLimitBody{
				Error:      "Too Many Requests",
				Message:    "request rate limit exceeded, slow down",
				RetryAfter: retryAfter,
				Timestamp:  time.Now().UTC(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
