package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/metrics"
	"github.com/cardotrejos/babypeek-sub000/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit gates expensive routes per authenticated client. Runs after Auth.
// The limiter only ever sees a salted hash of the user ID: memory per key is
// bounded and the store never holds a raw identity. On a store error the
// request is admitted — losing rate limiting briefly beats failing all
// traffic.
func RateLimit(store ratelimit.Store, salt string, logger *slog.Logger) gin.HandlerFunc {
	log := logger.With("component", "rate_limit")

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := LimitKey(salt, c.GetString("userID"))

		d, err := store.Increment(ctx, key)
		if err != nil {
			log.ErrorContext(ctx, "rate limit store unavailable, admitting", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := int64(d.RetryAfter(time.Now()).Seconds()) + 1
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			metrics.RateLimitDecisionsTotal.WithLabelValues("denied").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":           "rate limit exceeded",
				"retry_after_sec": retryAfter,
			})
			return
		}

		metrics.RateLimitDecisionsTotal.WithLabelValues("allowed").Inc()
		c.Next()
	}
}

// LimitKey derives the opaque limiter key from a client identity.
func LimitKey(salt, userID string) string {
	sum := sha256.Sum256([]byte(salt + ":" + userID))
	return hex.EncodeToString(sum[:])
}
