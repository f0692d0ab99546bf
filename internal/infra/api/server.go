package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"installment-engine/internal/config"
	"installment-engine/internal/infra/logging"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// NewRouter builds the root router with the shared middleware stack, /health and /metrics.
// Versioned routes are registered on the returned router by the caller.
func NewRouter(cfg config.HTTPConfig, logger *zerolog.Logger, checks map[string]HealthCheck) *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		TraceID(),
		RequestLog(logger),
		Recover(logger),
		Metrics(),
		Timeout(cfg.RequestTimeout),
	)
	r.Get("/health", healthHandler(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				out[name] = "down"
				continue
			}
			out[name] = "ok"
		}
		WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": out})
	}
}

// Server owns the listening http.Server.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewServer(cfg config.HTTPConfig, handler http.Handler, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       cfg.RequestTimeout + 5*time.Second,
			WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: &compLog,
	}
}

func (s *Server) Addr() string { return s.srv.Addr }

// Start blocks until the server stops. A graceful Shutdown is not reported as an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	l := logging.With(ctx, s.log)
	l.Info().Msg("http shutting down")
	return s.srv.Shutdown(ctx)
}
