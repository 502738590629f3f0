package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telecare-api/pkg/metrics"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

// RateLimiter is the process-wide token bucket in front of every route.
type RateLimiter struct {
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

func NewRateLimiter(config RateLimiterConfig, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(config.Rate, config.Burst),
		metrics: m,
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := rl.limiter.Reserve()
		if !r.OK() {
			rl.reject(c, 0)
			return
		}
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			rl.reject(c, delay)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) reject(c *gin.Context, retryAfter time.Duration) {
	if rl.metrics != nil {
		rl.metrics.RateLimited.WithLabelValues("global").Inc()
	}
	tooManyRequests(c, retryAfter)
}
