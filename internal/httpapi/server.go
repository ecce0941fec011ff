// Package httpapi is the web front end: JSON person search, identity images,
// health and metrics.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"padron/internal/metrics"
	"padron/internal/search"
	"padron/internal/storage"
	logx "padron/pkg/logx"
)

// Searcher runs an enriched person search.
type Searcher interface {
	Search(ctx context.Context, channel string, c storage.Criteria) ([]search.Result, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Searcher  Searcher
	Pinger    Pinger
	ImageRoot string

	CORSOrigins []string

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Logger logx.Logger
}

type Server struct {
	searcher  Searcher
	pinger    Pinger
	imageRoot string
	metrics   *metrics.Metrics
	log       logx.Logger

	engine *gin.Engine
}

// New builds the gin engine with its middleware and routes.
func New(opt Options) *Server {
	log := opt.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		searcher:  opt.Searcher,
		pinger:    opt.Pinger,
		imageRoot: opt.ImageRoot,
		metrics:   opt.Metrics,
		log:       log.With(logx.String("comp", "http")),
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(requestID())
	r.Use(recovery(s.log))
	r.Use(requestLog(s.log))
	r.Use(observe(s.metrics))
	if len(opt.CORSOrigins) > 0 {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = opt.CORSOrigins
		cc.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		cc.AllowHeaders = []string{"Content-Type", "Accept", headerRequestID}
		cc.ExposeHeaders = []string{headerRequestID}
		cc.MaxAge = 12 * time.Hour
		r.Use(cors.New(cc))
	}

	r.POST("/search", s.handleSearch)
	r.GET(search.ImageRoute+"*filename", s.handleImage)
	r.GET("/healthz", s.handleHealth)
	if opt.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opt.Gatherer, promhttp.HandlerOpts{})))
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recurso no encontrado."})
	})

	s.engine = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }
