// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ClearsDependencies
	StatsDependencies
	ProgressDependencies
	AdminDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	clearsHandler   *ClearsHandler
	statsHandler    *StatsHandler
	progressHandler *ProgressHandler
	adminHandler    *AdminHandler

	limiter *RateLimiter
	logger  logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits write requests per client to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.limiter = NewRateLimiter(rps, burst)
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.clearsHandler = NewClearsHandler(deps, s.logger)
	s.statsHandler = NewStatsHandler(deps, s.logger)
	s.progressHandler = NewProgressHandler(deps, s.logger)
	s.adminHandler = NewAdminHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	write := func(h http.HandlerFunc) http.HandlerFunc {
		if s.limiter == nil {
			return h
		}
		return s.limiter.Wrap(h)
	}

	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.Handle("/metrics", s.healthHandler.MetricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/status", MetricsMiddleware(s.adminHandler.HandleStatus, "status")).Methods(http.MethodGet)

	r.HandleFunc("/bosses", MetricsMiddleware(s.progressHandler.HandleBosses, "bosses")).Methods(http.MethodGet)
	r.HandleFunc("/progress", MetricsMiddleware(s.progressHandler.HandleProgress, "progress")).Methods(http.MethodGet)

	r.HandleFunc("/clears", MetricsMiddleware(write(s.clearsHandler.HandleRecord), "clears")).Methods(http.MethodPost)
	r.HandleFunc("/clears", MetricsMiddleware(s.clearsHandler.HandleList, "clears")).Methods(http.MethodGet)
	r.HandleFunc("/clears/{id}", MetricsMiddleware(s.clearsHandler.HandleGet, "clear")).Methods(http.MethodGet)
	r.HandleFunc("/clears/{id}", MetricsMiddleware(write(s.clearsHandler.HandleUpdate), "clear")).Methods(http.MethodPut)
	r.HandleFunc("/clears/{id}", MetricsMiddleware(write(s.clearsHandler.HandleDelete), "clear")).Methods(http.MethodDelete)
	r.HandleFunc("/clears/{id}/drops", MetricsMiddleware(write(s.clearsHandler.HandleAddDrop), "drops")).Methods(http.MethodPost)

	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleQuery, "stats")).Methods(http.MethodGet)
	r.HandleFunc("/stats/rare", MetricsMiddleware(s.statsHandler.HandleRare, "stats_rare")).Methods(http.MethodGet)
	r.HandleFunc("/stats/overview", MetricsMiddleware(s.statsHandler.HandleOverview, "stats_overview")).Methods(http.MethodGet)

	r.HandleFunc("/internal/recompute", MetricsMiddleware(s.adminHandler.HandleRecompute, "recompute")).Methods(http.MethodPost)
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) *mux.Router {
	r := mux.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and error body. Server errors are logged.
func writeError(ctx context.Context, w http.ResponseWriter, l logger.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		l.Error(ctx, "request failed", logger.Int("status", status), logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: clientMessage(status, err)})
}

// decodeJSON reads a single JSON object from the body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return fmt.Errorf("invalid body: %w", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errors.New("invalid body: trailing data after JSON object")
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError(name, "must be an integer")
	}
	return n, nil
}
