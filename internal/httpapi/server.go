package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
	"github.com/joelkehle/clinical-handoff/internal/jobs"
	"github.com/joelkehle/clinical-handoff/internal/telemetry"
)

const defaultMaxUploadBytes = 10 << 20

// PDFRenderer turns report markdown into a PDF document.
type PDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

type Deps struct {
	Pipeline       *handoff.Pipeline
	Runner         *jobs.Runner
	PDF            PDFRenderer
	Metrics        *telemetry.Collector
	Logger         *zap.Logger
	MaxUploadBytes int64
	// Generative reports whether a generative summarizer is configured.
	Generative bool
}

type Server struct {
	pipeline   *handoff.Pipeline
	runner     *jobs.Runner
	pdf        PDFRenderer
	metrics    *telemetry.Collector
	logger     *zap.Logger
	maxUpload  int64
	generative bool
}

func NewServer(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NewCollector("handoff")
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		pipeline:   d.Pipeline,
		runner:     d.Runner,
		pdf:        d.PDF,
		metrics:    d.Metrics,
		logger:     d.Logger,
		maxUpload:  d.MaxUploadBytes,
		generative: d.Generative,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/summaries", s.handleSummarize)
		r.Post("/documents", s.handleDocument)
		r.Post("/sanitize", s.handleSanitize)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleSubmitJob)
			r.Get("/", s.handleListJobs)
			r.Get("/{id}", s.handleGetJob)
			r.Get("/{id}/report", s.handleJobReport)
			r.Get("/{id}/report.pdf", s.handleJobReportPDF)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeProcessError maps a pipeline failure onto a status code. Rejected
// input is the caller's problem; anything else is ours.
func (s *Server) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *handoff.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "input validation failed",
			"stage":    handoff.StageInputProcessing,
			"errors":   ve.Errors,
			"warnings": ve.Warnings,
		})
		return
	}
	stage := handoff.StageNameFromError(err)
	status := http.StatusInternalServerError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	s.logger.Error("summarize failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("stage", stage),
		zap.Error(err))
	writeJSON(w, status, map[string]any{"error": err.Error(), "stage": stage})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

// observe records request metrics under the matched route pattern and logs
// every request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		s.metrics.InFlightGauge.Inc()
		defer func() {
			s.metrics.InFlightGauge.Dec()
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(started)
			s.metrics.ObserveRequest(r.Method, route, status, elapsed)
			s.logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed))
		}()
		next.ServeHTTP(ww, r)
	})
}
