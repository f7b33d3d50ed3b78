// Copyright 2025 James Ross

// Package httpapi implements the ingest server: the HTTP surface clients
// use to submit generation jobs, poll progress, cancel in-flight work, and
// browse a user's episode catalog and podcast feed.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
	"github.com/ghostradio/podcastd/internal/feed"
	"github.com/ghostradio/podcastd/internal/jobstatus"
	"github.com/ghostradio/podcastd/internal/provider"
	"github.com/ghostradio/podcastd/internal/queue"
	"github.com/ghostradio/podcastd/internal/worker"
	"go.uber.org/zap"
)

// Server is the ingest HTTP API: a thin routing and validation layer over
// the queue, job status store, episode catalogs and the worker it triggers.
type Server struct {
	cfg       config.Config
	queue     *queue.Store
	statuses  *jobstatus.Store
	worker    *worker.Worker
	registry  *provider.Registry
	log       *zap.Logger
	server    *http.Server
	startedAt time.Time
}

func NewServer(
	cfg config.Config,
	queueStore *queue.Store,
	statuses *jobstatus.Store,
	w *worker.Worker,
	registry *provider.Registry,
	log *zap.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		queue:     queueStore,
		statuses:  statuses,
		worker:    w,
		registry:  registry,
		log:       log,
		startedAt: time.Now(),
	}
}

// Routes builds the handler tree using Go 1.22's method+path ServeMux
// patterns rather than pulling in a router library the filesystem-backed
// queue has no need for.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/progress/{job_id}", s.handleProgress)
	mux.HandleFunc("POST /api/cancel/{job_id}", s.handleCancel)
	mux.HandleFunc("GET /api/episodes", s.handleEpisodes)
	mux.HandleFunc("GET /api/qrcode", s.handleQRCode)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/worker", s.handleHealthWorker)
	mux.HandleFunc("GET /health/system", s.handleHealthSystem)
	mux.HandleFunc("GET /health/full", s.handleHealthFull)

	return s.applyMiddleware(mux)
}

func (s *Server) applyMiddleware(h http.Handler) http.Handler {
	h = loggingMiddleware(s.log)(h)
	h = corsMiddleware(s.cfg.Server.CORSAllowOrigins)(h)
	h = rateLimitMiddleware(s.cfg.Server.RateLimitPerMinute, s.cfg.Server.RateLimitBurst, s.log)(h)
	h = requestIDMiddleware()(h)
	h = recoveryMiddleware(s.log)(h)
	return h
}

// Start runs the HTTP server until Shutdown is called or it errors.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	s.log.Info("starting ingest server", zap.String("addr", s.cfg.Server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ingest server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) feedQR(rssURL string) (feed.QRPayload, error) {
	return feed.GenerateFeedQR(rssURL)
}
