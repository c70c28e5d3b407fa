// Package server exposes prosody analysis over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rsvp/internal/metrics"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/dgnsrekt/rsvp/internal/settings"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// maxBodyBytes bounds request bodies: the longest accepted text in 4-byte
// runes plus room for the envelope.
const maxBodyBytes = 4*prosody.MaxTextLength + 64<<10

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	Text     string          `json:"text"`
	Provider string          `json:"provider,omitempty"`
	Options  *AnalyzeOptions `json:"options,omitempty"`
}

// AnalyzeOptions tunes an analysis. Zero values take the defaults.
type AnalyzeOptions struct {
	WPM         int      `json:"wpm,omitempty"`
	Sensitivity *float64 `json:"sensitivity,omitempty"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Providers []string `json:"providers"`
}

// ProvidersResponse is the body of GET /api/v1/providers.
type ProvidersResponse struct {
	Providers map[string]prosody.Capabilities `json:"providers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server handles the prosody API.
type Server struct {
	registry *prosody.Registry
	logger   *log.Logger
	metrics  *metrics.Metrics
	version  string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by the health check.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New returns a server over the providers in registry.
func New(registry *prosody.Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		logger:   log.Default(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(metrics.RequestMiddleware(s.metrics))

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.Analyze)
		r.Get("/health", s.Health)
		r.Get("/providers", s.Providers)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then drains connections.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Analyze handles POST /api/v1/analyze.
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.logger.Debug("invalid analyze body", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := prosody.DefaultOptions()
	if o := req.Options; o != nil {
		if o.WPM != 0 {
			if o.WPM < settings.MinWPM || o.WPM > settings.MaxWPM {
				writeError(w, http.StatusBadRequest, "wpm must be between 100 and 1000")
				return
			}
			opts.WPM = o.WPM
		}
		if o.Sensitivity != nil {
			if *o.Sensitivity < 0 || *o.Sensitivity > 1 {
				writeError(w, http.StatusBadRequest, "sensitivity must be between 0 and 1")
				return
			}
			opts.Sensitivity = *o.Sensitivity
		}
	}

	name := req.Provider
	if name == "" {
		name = prosody.NewRuleBased().Name()
	}
	provider, err := s.registry.Lookup(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := provider.Analyze(r.Context(), req.Text, opts)
	switch {
	case errors.Is(err, prosody.ErrEmptyText), errors.Is(err, prosody.ErrTextTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("analysis failed", "provider", name, "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed: "+err.Error())
		return
	}

	s.logger.Debug("text analyzed", "provider", name, "words", res.Metadata.WordCount)
	writeJSON(w, http.StatusOK, res)
}

// Health handles GET /api/v1/health.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.version,
		Providers: s.registry.Names(),
	})
}

// Providers handles GET /api/v1/providers.
func (s *Server) Providers(w http.ResponseWriter, _ *http.Request) {
	resp := ProvidersResponse{Providers: make(map[string]prosody.Capabilities)}
	for _, name := range s.registry.Names() {
		p, err := s.registry.Lookup(name)
		if err != nil {
			continue
		}
		resp.Providers[name] = p.Capabilities()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
