package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/patient-records/pkg/httputil"
)

// RateLimit throttles the whole API through one token bucket of r requests
// per second with the given burst. Rejected requests get 429 and a
// Retry-After hint in whole seconds.
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(r, burst)

	return func(c *gin.Context) {
		reservation := limiter.Reserve()
		if !reservation.OK() {
			httputil.Abort(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			c.Header("Retry-After", retryAfter(delay))
			httputil.Abort(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func retryAfter(d time.Duration) string {
	secs := math.Ceil(d.Seconds())
	if secs > math.MaxInt32 {
		secs = math.MaxInt32
	}
	return strconv.Itoa(int(secs))
}
