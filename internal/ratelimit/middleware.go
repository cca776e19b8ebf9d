package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"justgov/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// ByIP throttles a route per client IP. On rejection it answers 429 with a
// Retry-After header; the limiter itself never blocks on redis failures.
func (l *Limiter) ByIP(scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := l.Check(c.Request.Context(), scope+":ip", c.ClientIP(), limit, window)
		if err != nil {
			var rlErr *Error
			if errors.As(err, &rlErr) {
				retrySec := int64(rlErr.RetryAfter.Seconds())
				if retrySec < 1 {
					retrySec = 1
				}
				c.Header("Retry-After", strconv.FormatInt(retrySec, 10))
				response.Fail(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
