package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/pkg/httputil"
)

// DefaultMaxBodySize bounds JSON request bodies (1MB).
const DefaultMaxBodySize int64 = 1 << 20

// SizeLimit rejects bodies larger than maxBytes. Bodies without a declared
// length are cut off while reading.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			httputil.Abort(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request size exceeds limit: body size exceeds %d bytes", maxBytes))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
