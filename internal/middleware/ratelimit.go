package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/pkg/metrics"
	"github.com/jwalitptl/telecare-api/pkg/ratelimit"
)

// KeyFunc picks the identity a request is limited by.
type KeyFunc func(c *gin.Context) string

func KeyByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// KeyByUser limits authenticated callers by user id and falls back to the
// client address.
func KeyByUser(c *gin.Context) string {
	if p := GetPrincipal(c); p != nil {
		return "user:" + p.UserID.String()
	}
	return KeyByIP(c)
}

// SlidingWindowRateLimit answers 429 with Retry-After once a key exceeds the
// limiter's window.
func SlidingWindowRateLimit(limiter *ratelimit.SlidingWindow, name string, key KeyFunc, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := limiter.Allow(key(c), time.Now())
		if !allowed {
			if m != nil {
				m.RateLimited.WithLabelValues(name).Inc()
			}
			tooManyRequests(c, retryAfter)
			return
		}
		c.Next()
	}
}

func tooManyRequests(c *gin.Context, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, handler.NewErrorResponse("too many requests"))
}
