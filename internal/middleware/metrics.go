package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/pkg/metrics"
)

// Metrics records request count, latency and errors. Paths are labelled by
// route template so codes and names do not explode cardinality.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		statusLabel := strconv.Itoa(status)
		method := c.Request.Method

		m.RequestTotal.WithLabelValues(method, path, statusLabel).Inc()
		m.RequestDuration.WithLabelValues(method, path, statusLabel).Observe(time.Since(start).Seconds())

		switch {
		case status >= 500:
			m.ErrorTotal.WithLabelValues(method, path, "server").Inc()
		case status >= 400:
			m.ErrorTotal.WithLabelValues(method, path, "client").Inc()
		}
	}
}
