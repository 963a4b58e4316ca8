// Package api provides the HTTP REST API for the document QA service.
//
// Endpoints:
//
//	POST   /api/upload          →  ingest an uploaded document
//	POST   /api/ask             →  ask a question over the documents
//	GET    /api/documents       →  collection summary (hasDocuments, fileNames, count)
//	GET    /api/documents/rows  →  list stored chunks (paginated)
//	DELETE /api/documents       →  clear the whole collection
//	GET    /health              →  liveness probe
//	GET    /ready               →  readiness probe (pings the database)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - ratelimit.go: per-IP rate limiting
//   - health.go: health check endpoints (/health, /ready)
//   - upload.go: document upload endpoint
//   - ask.go: question answering endpoint
//   - documents.go: collection listing and clearing endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/docuquery/docqa/internal/chunk"
	"github.com/docuquery/docqa/internal/docqa"
	"github.com/docuquery/docqa/internal/qa"
	"github.com/docuquery/docqa/internal/store"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = ":8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	// Uploads and LLM round-trips can be slow, so it is generous.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Service is the application surface the handlers call. It is implemented
// by *docqa.Service; tests substitute a fake.
type Service interface {
	Ingest(ctx context.Context, path, originalName string) (docqa.IngestResult, error)
	Ask(ctx context.Context, question string, history []qa.Message) (qa.Answer, error)
	Summary(ctx context.Context) (store.Summary, error)
	ListChunks(ctx context.Context, limit, offset int) ([]chunk.Chunk, error)
	ClearAll(ctx context.Context) error
}

// Options configures the server beyond its service dependency.
type Options struct {
	// MaxUploadBytes caps the accepted upload size.
	MaxUploadBytes int64

	// RateLimitRPS and RateLimitBurst configure per-IP rate limiting.
	// A non-positive RPS disables the limiter.
	RateLimitRPS   float64
	RateLimitBurst int

	// TrustProxy enables X-Real-IP/X-Forwarded-For for client IPs.
	// Only set behind a reverse proxy.
	TrustProxy bool
}

// Server is the HTTP server for the document QA REST API.
type Server struct {
	mux     *http.ServeMux
	limiter *rateLimiter
	opts    Options
	logger  *slog.Logger

	health    *HealthHandler
	upload    *UploadHandler
	ask       *AskHandler
	documents *DocumentsHandler
}

// NewServer creates a new HTTP server with all routes registered.
// pinger reports database readiness; it may be nil in tests.
func NewServer(svc Service, pinger Pinger, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		opts:      opts,
		logger:    logger,
		health:    NewHealthHandler(pinger, logger),
		upload:    NewUploadHandler(svc, opts.MaxUploadBytes, logger),
		ask:       NewAskHandler(svc, logger),
		documents: NewDocumentsHandler(svc, logger),
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	s.health.RegisterRoutes(mux)
	s.upload.RegisterRoutes(mux)
	s.ask.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → rate limit → handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, rateLimitMiddleware(s.limiter, s.opts.TrustProxy, s.logger))
	}
	return chainMiddleware(s.mux, middlewares...)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
