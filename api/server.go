// Package api provides the HTTP REST API for SoilWise.
//
// Endpoints:
//
//	POST   /api/files           - upload a document for background ingestion
//	GET    /api/files/jobs/{id} - ingestion job status
//	DELETE /api/files           - delete all chunks of one document
//	POST   /api/chat            - answer a question against the indexed corpus
//	GET    /health              - liveness probe
//	GET    /ready               - readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints (/health, /ready)
//   - files.go: document upload, job status, deletion
//   - chat.go: question answering
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/soilwise/soilwise/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	// Uploads can be large, so this is generous.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing the response. Answer
	// synthesis can take minutes on a cold model.
	WriteTimeout = 180 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the SoilWise REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health *HealthHandler
	files  *FilesHandler
	chat   *ChatHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(health *HealthHandler, files *FilesHandler, chat *ChatHandler, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:    mux,
		logger: logger,
		health: health,
		files:  files,
		chat:   chat,
	}

	s.health.RegisterRoutes(mux)
	s.files.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
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
