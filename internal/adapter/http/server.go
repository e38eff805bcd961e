package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/query"
)

// Queries answers read requests.
type Queries interface {
	Observations(ctx context.Context, req query.Request) ([]domain.ObservationRecord, error)
	Series(ctx context.Context, seriesID string) (*domain.SeriesExtrema, error)
}

// SeriesWriter inserts and deletes observations while keeping their series
// summaries current.
type SeriesWriter interface {
	Insert(ctx context.Context, rec domain.ObservationRecord) (*domain.SeriesExtrema, error)
	Delete(ctx context.Context, recordID string) (*domain.SeriesExtrema, error)
}

// Server exposes the observation API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	queries    Queries
	writer     SeriesWriter
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, queries Queries, writer SeriesWriter, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		queries: queries,
		writer:  writer,
		logger:  logger,
	}

	engine.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	engine.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(ready)))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1", requestID(), accessLog(logger))
	api.GET("/observations", s.handleListObservations)
	api.POST("/observations", s.handleInsertObservation)
	api.DELETE("/observations/:id", s.handleDeleteObservation)
	api.GET("/series/:id", s.handleGetSeries)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
