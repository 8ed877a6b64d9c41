// Package statusserver exposes the pipeline's progress side channel and
// the Prometheus registry over plain HTTP, CORS-enabled so a browser
// dashboard can poll it.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/blockparser/blockparser/internal/pipeline"
)

// Server serves /progress and /metrics on one listener.
type Server struct {
	logger *zap.Logger
	http   *http.Server
}

// New builds a Server reading live progress from snapshot.
func New(addr string, snapshot func() pipeline.Progress, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/progress", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			logger.Error("encode progress", zap.Error(err))
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		logger: logger,
		http: &http.Server{
			Addr:              addr,
			Handler:           cors.Default().Handler(mux),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
		},
	}
}

// Start serves until the context is canceled, then shuts down gracefully.
// Serve errors are logged, not fatal: the status surface is advisory and
// must never take the parse down with it.
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown", zap.Error(err))
		}
	}()
}
