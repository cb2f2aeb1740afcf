// Package api serves the status and metrics surface: liveness,
// readiness, Prometheus metrics, and the latest run report.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/config"
	"github.com/refstream/refstream/internal/ledger"
	"github.com/refstream/refstream/internal/pipeline"
	"github.com/refstream/refstream/internal/storage"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	store      storage.Store
	ledger     ledger.Ledger
	logger     *zap.Logger

	mu     sync.RWMutex
	latest *pipeline.RunReport
}

func NewServer(cfg *config.Config, store storage.Store, led ledger.Ledger, l *zap.Logger) *Server {
	s := &Server{
		config: cfg,
		store:  store,
		ledger: led,
		logger: l,
	}
	s.router = s.setupRouter()
	return s
}

// SetLatest publishes the report served by /api/runs/latest. Called
// after every scheduled run.
func (s *Server) SetLatest(r *pipeline.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
}

// Latest returns the most recently published report, or nil.
func (s *Server) Latest() *pipeline.RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
