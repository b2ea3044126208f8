package handler

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

type clientBucket struct {
	bucket *rate.Limiter
	seen   time.Time
}

// clientBuckets holds one token bucket per client IP.
type clientBuckets struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	limit   rate.Limit
	burst   int
}

func (b *clientBuckets) reserve(ip string, now time.Time) (ok bool, retryAfter time.Duration) {
	b.mu.Lock()
	cb, found := b.buckets[ip]
	if !found {
		cb = &clientBucket{bucket: rate.NewLimiter(b.limit, b.burst)}
		b.buckets[ip] = cb
	}
	cb.seen = now
	b.mu.Unlock()

	r := cb.bucket.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (b *clientBuckets) sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ip, cb := range b.buckets {
		if now.Sub(cb.seen) > limiterIdleTTL {
			delete(b.buckets, ip)
		}
	}
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting at rps requests per second with bursts of up to burst.
// Rejected requests get 429 with a Retry-After rounded up to whole seconds.
// Idle buckets are swept until ctx is done.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	b := &clientBuckets{
		buckets: make(map[string]*clientBucket),
		limit:   rate.Limit(rps),
		burst:   burst,
	}

	go func() {
		t := time.NewTicker(limiterSweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				b.sweep(now)
			}
		}
	}()

	return func(c *gin.Context) {
		ok, wait := b.reserve(c.ClientIP(), time.Now())
		if !ok {
			secs := int((wait + time.Second - 1) / time.Second)
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
