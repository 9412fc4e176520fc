package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig lists the cross-origin policy. The API is credential-free, so
// a wildcard origin is answered with "*".
type CORSConfig struct {
	AllowOrigins  []string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Requested-With", HeaderXRequestID},
		ExposeHeaders: []string{"Content-Length", "Content-Type", HeaderXRequestID},
		MaxAge:        86400,
	}
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when origin is not permitted.
func (c CORSConfig) allowedOrigin(origin string) string {
	for _, o := range c.AllowOrigins {
		switch o {
		case "*":
			return "*"
		case origin:
			return origin
		}
	}
	return ""
}

func CORS(config CORSConfig) gin.HandlerFunc {
	methods := strings.Join(config.AllowMethods, ", ")
	headers := strings.Join(config.AllowHeaders, ", ")
	expose := strings.Join(config.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := config.allowedOrigin(origin)
		if allowed != "*" {
			c.Writer.Header().Add("Vary", "Origin")
		}
		if allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Access-Control-Expose-Headers", expose)
			c.Header("Access-Control-Max-Age", maxAge)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
