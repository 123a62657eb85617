package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jmerrifield20/AyuTrack/internal/identity"
)

const (
	budgetRead   = "read"
	budgetAppend = "append"

	callerIdle   = 10 * time.Minute
	sweepPeriod  = 5 * time.Minute
	appendMethod = http.MethodPost
	appendRoute  = "/api/v1/batches"
)

// Budget is a token-bucket allowance per caller. A zero RPS disables it.
type Budget struct {
	RPS   int
	Burst int
}

func (b Budget) enabled() bool { return b.RPS > 0 }

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// callerBuckets holds one token bucket per caller for a single budget.
type callerBuckets struct {
	budget Budget

	mu      sync.Mutex
	buckets map[string]*callerBucket
}

func newCallerBuckets(ctx context.Context, b Budget) *callerBuckets {
	if b.Burst <= 0 {
		b.Burst = b.RPS * 2
	}
	cb := &callerBuckets{budget: b, buckets: make(map[string]*callerBucket)}
	go cb.sweep(ctx)
	return cb
}

func (cb *callerBuckets) allow(caller string) bool {
	cb.mu.Lock()
	bucket, ok := cb.buckets[caller]
	if !ok {
		bucket = &callerBucket{limiter: rate.NewLimiter(rate.Limit(cb.budget.RPS), cb.budget.Burst)}
		cb.buckets[caller] = bucket
	}
	bucket.lastSeen = time.Now()
	cb.mu.Unlock()
	return bucket.limiter.Allow()
}

// sweep forgets idle callers until ctx ends.
func (cb *callerBuckets) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cb.mu.Lock()
			for caller, b := range cb.buckets {
				if time.Since(b.lastSeen) > callerIdle {
					delete(cb.buckets, caller)
				}
			}
			cb.mu.Unlock()
		}
	}
}

// RateLimiter returns a Gin middleware that throttles callers. Batch appends
// draw from the append budget and every other request from the read budget,
// so a burst of scans never starves custodians submitting batches. Callers
// presenting a valid custodian token are counted per custodian, everyone
// else per client IP. tokens may be nil.
func RateLimiter(ctx context.Context, read, appends Budget, tokens *identity.TokenIssuer) gin.HandlerFunc {
	var readBuckets, appendBuckets *callerBuckets
	if read.enabled() {
		readBuckets = newCallerBuckets(ctx, read)
	}
	if appends.enabled() {
		appendBuckets = newCallerBuckets(ctx, appends)
	}

	return func(c *gin.Context) {
		buckets, name := readBuckets, budgetRead
		if c.Request.Method == appendMethod && c.FullPath() == appendRoute {
			buckets, name = appendBuckets, budgetAppend
		}
		if buckets == nil {
			c.Next()
			return
		}

		if !buckets.allow(callerKey(c, tokens)) {
			rateLimitedTotal.WithLabelValues(name).Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": name + " rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// callerKey names the bucket a request is charged to.
func callerKey(c *gin.Context, tokens *identity.TokenIssuer) string {
	if tokens != nil {
		if raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
			if claims, err := tokens.Verify(raw); err == nil && claims.CustodianID != "" {
				return "custodian:" + claims.CustodianID
			}
		}
	}
	return "ip:" + c.ClientIP()
}
