package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Defaults applied to a zero RateLimitConfig.
const (
	DefaultRateLimitMax    = 100
	DefaultRateLimitWindow = 15 * time.Minute
)

// RateLimitConfig configures the per-client request limit.
type RateLimitConfig struct {
	// Max requests per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from counting, e.g. health probes.
	Skip func(*http.Request) bool
}

func (c *RateLimitConfig) setDefaults() {
	if c.Max <= 0 {
		c.Max = DefaultRateLimitMax
	}
	if c.Window <= 0 {
		c.Window = DefaultRateLimitWindow
	}
	if c.KeyFunc == nil {
		c.KeyFunc = ClientIP
	}
}

// counter is a sliding window approximated from two fixed windows: the
// previous window's count is weighted by how much of it still overlaps.
type counter struct {
	start time.Time
	curr  float64
	prev  float64
}

type decision struct {
	allowed   bool
	remaining int
	reset     time.Time
}

type limiter struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(max int, window time.Duration) *limiter {
	return &limiter{max: max, window: window, counters: make(map[string]*counter)}
}

func (l *limiter) take(key string, now time.Time) decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		c = &counter{start: now.Truncate(l.window)}
		l.counters[key] = c
	}
	switch age := now.Sub(c.start); {
	case age >= 2*l.window:
		c.prev, c.curr = 0, 0
		c.start = now.Truncate(l.window)
	case age >= l.window:
		c.prev, c.curr = c.curr, 0
		c.start = c.start.Add(l.window)
	}

	weight := 1 - float64(now.Sub(c.start))/float64(l.window)
	used := c.prev*math.Max(weight, 0) + c.curr
	d := decision{reset: c.start.Add(l.window)}
	if used >= float64(l.max) {
		return d
	}
	c.curr++
	d.allowed = true
	d.remaining = max(int(float64(l.max)-used-1), 0)
	return d
}

// evict drops counters idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

// RateLimit limits requests per client. Rejected requests get 429 with a
// Retry-After header; every counted response carries X-RateLimit-* headers.
// Counters are evicted in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	cfg.setDefaults()
	l := newLimiter(cfg.Max, cfg.Window)
	go func() {
		t := time.NewTicker(2 * cfg.Window)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			now := time.Now()
			d := l.take(cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))
			if !d.allowed {
				wait := max(d.reset.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the host of
// RemoteAddr, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: status, Message: msg})
}
