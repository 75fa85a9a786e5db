package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/journal-tracker/internal/gateway"
	"github.com/JakeFAU/journal-tracker/internal/metrics"
	"github.com/JakeFAU/journal-tracker/internal/orchestrator"
	"github.com/JakeFAU/journal-tracker/internal/runs"
	"github.com/JakeFAU/journal-tracker/internal/topics"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultScrapeTimeout  = 10 * time.Minute
	readyTimeout          = 3 * time.Second
)

// Runner executes a scrape run.
type Runner interface {
	Run(ctx context.Context) (orchestrator.RunSummary, error)
}

// RunHistory lists recent scrape runs.
type RunHistory interface {
	Get(id string) (runs.Run, error)
	List(limit, offset int) []runs.Run
}

// Config holds HTTP-layer settings.
type Config struct {
	RequestTimeout time.Duration
	// ScrapeTimeout bounds POST /v1/scrape, which outlives RequestTimeout.
	ScrapeTimeout time.Duration
}

// Server wires HTTP handlers to the store, gateway and orchestrator.
type Server struct {
	router  chi.Router
	store   tracker.Store
	runner  Runner
	gateway *gateway.Gateway
	tagger  *topics.Tagger
	history RunHistory
	clock   tracker.Clock
	cfg     Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runner and
// history may be nil, in which case their routes answer 503.
func NewServer(
	store tracker.Store,
	runner Runner,
	gw *gateway.Gateway,
	tagger *topics.Tagger,
	history RunHistory,
	clock tracker.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = defaultScrapeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tagger == nil {
		tagger = topics.New()
	}
	s := &Server{
		store:   store,
		runner:  runner,
		gateway: gw,
		tagger:  tagger,
		history: history,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.scrape)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Get("/papers", s.listPapers)
			r.Get("/papers/{id}", s.getPaper)
			r.Post("/sync", s.sync)
			r.Get("/stats", s.stats)
			r.Get("/topics", s.topics)
			r.Get("/topics/trending", s.trendingTopics)
			r.Get("/journals", s.journals)
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeResponse struct {
	RunID      string            `json:"run_id"`
	Results    map[string]string `json:"results"`
	TotalAdded int               `json:"total_added"`
	TotalFound int               `json:"total_found"`
	Message    string            `json:"message"`
}

// scrape runs detached from the client connection so a dropped request does
// not abandon half-saved journals.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "scraper unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.ScrapeTimeout)
	defer cancel()

	summary, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, orchestrator.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("scrape run failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scrapeResponse{
		RunID:      summary.RunID,
		Results:    summary.Messages(),
		TotalAdded: summary.TotalAdded,
		TotalFound: summary.TotalFound,
		Message:    summary.Message(),
	})
}

type syncResponse struct {
	Status string `json:"status"`
	tracker.SyncSummary
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	var records []tracker.SyncRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: expected an array of papers")
		return
	}
	summary := s.gateway.Sync(r.Context(), records)
	writeJSON(w, http.StatusOK, syncResponse{Status: "success", SyncSummary: summary})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", requestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
