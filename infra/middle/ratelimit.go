package middle

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/dukapi/infra/cache"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/metrics"
	"github.com/mstgnz/dukapi/infra/response"
)

// RateLimiter is a fixed-window limiter. Windows live in Redis when available
// so that limits hold across instances, and in memory otherwise.
type RateLimiter struct {
	redis    *cache.Client
	metrics  *metrics.Metrics
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	count     int
	lastReset time.Time
}

// RateLimitInfo describes the caller's current window
type RateLimitInfo struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter allows rate requests per window for each key
func NewRateLimiter(rc *cache.Client, rate int, window time.Duration, m *metrics.Metrics) *RateLimiter {
	if rate <= 0 {
		rate = 100
	}
	if window <= 0 {
		window = time.Minute
	}

	rl := &RateLimiter{
		redis:    rc,
		metrics:  m,
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow counts a request for key
func (rl *RateLimiter) Allow(ctx context.Context, key string) RateLimitInfo {
	if rl.redis.Enabled() {
		count, left, err := rl.redis.Hit(ctx, "rl:"+key, rl.window)
		if err == nil {
			return rl.info(int(count), left)
		}
		logger.Warn("Redis rate limit failed, using memory", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists || now.Sub(v.lastReset) >= rl.window {
		v = &visitor{lastReset: now}
		rl.visitors[key] = v
	}
	v.count++

	return rl.info(v.count, v.lastReset.Add(rl.window).Sub(now))
}

func (rl *RateLimiter) info(count int, left time.Duration) RateLimitInfo {
	return RateLimitInfo{
		Allowed:    count <= rl.rate,
		Limit:      rl.rate,
		Remaining:  max(0, rl.rate-count),
		RetryAfter: left,
	}
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, v := range rl.visitors {
				if now.Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimitMiddleware limits authenticated callers by user id and everyone
// else by client IP.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + GetClientIP(r)
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				key = "user:" + strconv.Itoa(claims.ID)
			}

			info := rl.Allow(r.Context(), key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))

			if !info.Allowed {
				rl.metrics.IncrementRateLimited()
				w.Header().Set("Retry-After", strconv.Itoa(int(info.RetryAfter.Seconds()+0.5)))
				response.Error(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetClientIP extracts the real client IP
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	remoteAddr := r.RemoteAddr
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		ip := remoteAddr[:idx]
		if ip == "[::1]" {
			return "127.0.0.1"
		}
		return strings.Trim(ip, "[]")
	}

	if remoteAddr == "[::1]" {
		return "127.0.0.1"
	}

	return remoteAddr
}
