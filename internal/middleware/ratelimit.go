package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exam-portal/internal/response"
)

// RateLimiter is a per-client token bucket that refills continuously at
// rate tokens per interval.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     int
	interval time.Duration
	keyFunc  func(c *gin.Context) string
	now      func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter allows rate requests per interval for each client IP.
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		keyFunc:  func(c *gin.Context) string { return c.ClientIP() },
		now:      time.Now,
	}

	go func() {
		for range time.Tick(time.Minute) {
			rl.cleanup()
		}
	}()

	return rl
}

// ByUser keys the limiter on the authenticated user instead of the client IP.
// Requests without claims fall back to the IP.
func (rl *RateLimiter) ByUser() *RateLimiter {
	rl.keyFunc = func(c *gin.Context) string {
		if claims := GetClaims(c); claims != nil {
			return fmt.Sprintf("user:%d", claims.UserID)
		}
		return c.ClientIP()
	}
	return rl
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := rl.take(rl.keyFunc(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// take spends one token for key. When none is left it reports how long
// until the next one.
func (rl *RateLimiter) take(key string) (bool, time.Duration) {
	now := rl.now()
	perToken := rl.interval / time.Duration(rl.rate)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.rate), last: now}
		rl.buckets[key] = b
	}
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = math.Min(float64(rl.rate), b.tokens+float64(elapsed)/float64(perToken))
		b.last = now
	}

	if b.tokens < 1 {
		return false, time.Duration((1 - b.tokens) * float64(perToken))
	}
	b.tokens--
	return true, 0
}

// cleanup forgets clients whose bucket has been full for a while.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.last) > rl.interval+3*time.Minute {
			delete(rl.buckets, key)
		}
	}
}
