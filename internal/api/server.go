package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/user/contact-enricher/internal/config"
	"github.com/user/contact-enricher/internal/monitoring"
	"github.com/user/contact-enricher/internal/processor"
	"go.uber.org/zap"
)

// requestTimeout bounds one enrichment request. Rows still running when it
// fires are reported with Status Error.
const requestTimeout = 10 * time.Minute

// Pinger is a backend whose health is reported by /api/health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	processor  *processor.Processor
	pgStore    Pinger
	redisStore Pinger
	gatherer   prometheus.Gatherer
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewServer wires the routes. pgStore and redisStore may be nil when the
// backend is not configured.
func NewServer(cfg *config.Config, p *processor.Processor, pgStore, redisStore Pinger, g prometheus.Gatherer, m *monitoring.Metrics, l *zap.Logger) *Server {
	s := &Server{
		config:     cfg,
		processor:  p,
		pgStore:    pgStore,
		redisStore: redisStore,
		gatherer:   g,
		metrics:    m,
		logger:     l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 30*time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
