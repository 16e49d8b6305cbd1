// Package httpapi exposes a read-only HTTP surface over the latest run.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"StockScreener/internal/metrics"
	"StockScreener/internal/model"
	"StockScreener/internal/pipeline"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ReportSource provides the most recent run report, or nil.
type ReportSource interface {
	Latest() *pipeline.Report
}

// Pinger checks the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the read-only HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	reports ReportSource
	db      Pinger
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewServer wires routes; db and m may be nil.
func NewServer(addr string, reports ReportSource, db Pinger, m *metrics.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		reports: reports,
		db:      db,
		metrics: m,
		log:     log,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api.HandleFunc("/recommendations", s.recommendations).Methods(http.MethodGet)
	api.HandleFunc("/recommendations/{code}", s.recommendation).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown; http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type ctxKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		id, _ := r.Context().Value(ctxKey{}).(string)
		s.log.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if rep := s.reports.Latest(); rep != nil {
		body["last_run"] = rep.FinishedAt
		body["last_status"] = rep.Status()
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, body)
}

// Item is one recommendation in API responses.
type Item struct {
	Code  string `json:"code"`
	Close string `json:"close"`
	SMA5  string `json:"sma5"`
	SMA10 string `json:"sma10"`
	SMA20 string `json:"sma20"`
}

// Listing is the /recommendations payload.
type Listing struct {
	RunID      string         `json:"run_id"`
	Status     string         `json:"status"`
	FinishedAt time.Time      `json:"finished_at"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Count      int            `json:"count"`
	Failures   map[string]int `json:"failures"`
	Items      []Item         `json:"items"`
}

func toItem(code string, r model.Recommendation) Item {
	return Item{
		Code:  code,
		Close: r.Close.StringFixed(2),
		SMA5:  r.SMA5.StringFixed(2),
		SMA10: r.SMA10.StringFixed(2),
		SMA20: r.SMA20.StringFixed(2),
	}
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	rep := s.reports.Latest()
	if rep == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed run"})
		return
	}
	out := Listing{
		RunID:      rep.RunID,
		Status:     rep.Status(),
		FinishedAt: rep.FinishedAt,
		Start:      rep.Range.Start.Format(model.DateLayout),
		End:        rep.Range.End.Format(model.DateLayout),
		Count:      len(rep.Recommendations),
		Failures:   map[string]int{},
		Items:      []Item{},
	}
	for reason, n := range rep.FailureCounts() {
		out.Failures[string(reason)] = n
	}
	for _, code := range rep.Recommendations.Codes() {
		out.Items = append(out.Items, toItem(code, rep.Recommendations[code]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) recommendation(w http.ResponseWriter, r *http.Request) {
	rep := s.reports.Latest()
	if rep == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed run"})
		return
	}
	code := strings.ToUpper(mux.Vars(r)["code"])
	rec, ok := rep.Recommendations[code]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": code + " not recommended"})
		return
	}
	writeJSON(w, http.StatusOK, toItem(code, rec))
}
