package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/shared/metrics"
	"medocs-backend/internal/shared/server/respond"
)

const (
	defaultRateGroup = "DEFAULT"
	// Buckets untouched for this long are full again and can be forgotten.
	bucketIdleTTL  = 10 * time.Minute
	pruneThreshold = 10000
)

// RateRule is a token bucket: PerSecond tokens refill up to Burst.
type RateRule struct {
	PerSecond float64
	Burst     int
}

func (r RateRule) unlimited() bool {
	return r.PerSecond <= 0 || r.Burst <= 0
}

type RateLimitConfig struct {
	Rules map[string]RateRule
	// Default names the group used when Classify is nil or returns "".
	Default  string
	Classify func(*gin.Context) string
	Limiter  *RateLimiter
}

// RateLimiter keeps one bucket per principal and group.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{buckets: make(map[string]*bucket), now: now}
}

// RateLimit rejects requests over their group's budget with 429 and a
// Retry-After header. Authenticated users are keyed by ID, others by IP.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	if cfg.Default == "" {
		cfg.Default = defaultRateGroup
	}
	return func(c *gin.Context) {
		group := cfg.Default
		if cfg.Classify != nil {
			if g := strings.TrimSpace(cfg.Classify(c)); g != "" {
				group = g
			}
		}
		rule, ok := cfg.Rules[group]
		if !ok {
			c.Next()
			return
		}

		principal := UserIDFromContext(c)
		if principal == "" {
			principal = "ip:" + c.ClientIP()
		}
		wait, ok := cfg.Limiter.Take(principal+"|"+group, rule)
		if ok {
			c.Next()
			return
		}

		metrics.IncRateLimited(group)
		retryMs := wait.Milliseconds()
		if retryMs <= 0 {
			retryMs = 1
		}
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(float64(retryMs)/1000)), 10))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "too many requests", gin.H{
			"group":        group,
			"retryAfterMs": retryMs,
		})
	}
}

// Take spends one token from key's bucket. When the bucket is empty it
// reports how long until a token is available.
func (l *RateLimiter) Take(key string, rule RateRule) (time.Duration, bool) {
	if l == nil || rule.unlimited() {
		return 0, true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil {
		if len(l.buckets) >= pruneThreshold {
			l.pruneLocked(now)
		}
		b = &bucket{tokens: float64(rule.Burst), seen: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.seen).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(rule.Burst), b.tokens+elapsed*rule.PerSecond)
	}
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	wait := (1 - b.tokens) / rule.PerSecond
	return time.Duration(math.Ceil(wait*1000)) * time.Millisecond, false
}

// Len reports the number of tracked buckets.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.seen) > bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
}
