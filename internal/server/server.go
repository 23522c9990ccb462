// Package server provides the HTTP API for tagsearch.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/tagsearch/internal/config"
	"github.com/hyperjump/tagsearch/internal/indexer"
	"github.com/hyperjump/tagsearch/internal/search"
	"github.com/hyperjump/tagsearch/internal/storage"
)

// IndexStats reports the size of the post index.
type IndexStats interface {
	DocCount() (uint64, error)
}

// Server is the HTTP server for the tagsearch API.
type Server struct {
	engine   *search.Engine
	indexer  *indexer.Indexer
	storage  storage.Storage
	index    IndexStats
	config   *config.Config
	metrics  *search.Metrics
	gatherer prometheus.Gatherer
	version  string
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithIndexStats reports the indexed post count in the status response.
func WithIndexStats(ix IndexStats) Option {
	return func(s *Server) { s.index = ix }
}

// WithMetrics records request metrics and serves gatherer on /metrics.
func WithMetrics(m *search.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithVersion sets the version reported by the status endpoint.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		engine:  engine,
		indexer: idx,
		storage: storage,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/parse", s.handleParse)
		r.Post("/compile", s.handleCompile)
		r.Get("/posts", s.handleSearch)
		r.Get("/status", s.handleStatus)
		r.Post("/reindex", s.handleReindex)
	})
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
