package router

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/pkg/httputil"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

const apiPrefix = "/api"

type Handler interface {
	RegisterRoutes(gin.IRouter)
}

type Router struct {
	engine        *gin.Engine
	patientH      Handler
	healthH       Handler
	metrics       *metrics.Metrics
	staticDir     string
	staticEnabled bool
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	MaxBodySize      int64
	RequestTimeout   time.Duration
	// StaticDir is served on every non-API path. Empty disables it.
	StaticDir string
}

func NewRouter(patientH, healthH Handler, m *metrics.Metrics, config RouterConfig) *Router {
	engine := gin.New()

	r := &Router{
		engine:    engine,
		patientH:  patientH,
		healthH:   healthH,
		metrics:   m,
		staticDir: config.StaticDir,
	}
	if config.StaticDir != "" {
		if info, err := os.Stat(config.StaticDir); err == nil && info.IsDir() {
			r.staticEnabled = true
		}
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
	)
	if m != nil {
		engine.Use(middleware.Metrics(m))
	}
	engine.Use(middleware.CORS(config.CORSConfig))

	if config.RateLimitEnabled {
		engine.Use(middleware.RateLimit(config.RateLimit, config.RateBurst))
	}

	maxBody := config.MaxBodySize
	if maxBody <= 0 {
		maxBody = middleware.DefaultMaxBodySize
	}
	engine.Use(
		middleware.SizeLimit(maxBody),
		middleware.Timeout(config.RequestTimeout),
	)

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)
	if r.metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	api := r.engine.Group(apiPrefix)
	r.patientH.RegisterRoutes(api)

	r.engine.NoRoute(r.noRoute)
}

// noRoute answers unknown API paths with the error envelope and everything
// else from the static directory, falling back to its index.html.
func (r *Router) noRoute(c *gin.Context) {
	path := c.Request.URL.Path
	if path == apiPrefix || strings.HasPrefix(path, apiPrefix+"/") || !r.staticEnabled {
		httputil.Abort(c, http.StatusNotFound, "Route not found")
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		httputil.Abort(c, http.StatusNotFound, "Route not found")
		return
	}

	file := filepath.Join(r.staticDir, filepath.Clean("/"+path))
	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		c.File(file)
		return
	}
	c.File(filepath.Join(r.staticDir, "index.html"))
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
