package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joelkehle/clinical-handoff/internal/extract"
	"github.com/joelkehle/clinical-handoff/internal/handoff"
	"github.com/joelkehle/clinical-handoff/internal/jobs"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generative": s.generative,
	})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	var req handoff.NoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.summarize(w, r, req)
}

// handleDocument accepts a multipart upload in field "file", extracts its
// text and summarizes it synchronously.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	text, err := extract.ExtractBytes(content, filepath.Ext(header.Filename))
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.summarize(w, r, handoff.NoteRequest{NoteID: strings.TrimSpace(r.FormValue("note_id")), Text: text})
}

// summarize answers with the summary as JSON, or as the markdown report when
// ?format=markdown is given.
func (s *Server) summarize(w http.ResponseWriter, r *http.Request, req handoff.NoteRequest) {
	summary, err := s.pipeline.Process(r.Context(), req)
	if err != nil {
		s.writeProcessError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		writeMarkdown(w, handoff.BuildReportMarkdown(summary))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": s.pipeline.Sanitize(req.Text)})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	var req handoff.NoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.runner.Submit(r.Context(), req)
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, jobs.ErrRunnerStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("submit job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.runner.Store().List(r.Context(), parseInt(r.URL.Query().Get("limit"), 50))
	if err != nil {
		s.logger.Error("list jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobReport(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.completedSummary(w, r)
	if !ok {
		return
	}
	writeMarkdown(w, handoff.BuildReportMarkdown(summary))
}

func (s *Server) handleJobReportPDF(w http.ResponseWriter, r *http.Request) {
	if s.pdf == nil {
		writeError(w, http.StatusServiceUnavailable, "pdf renderer unavailable")
		return
	}
	summary, ok := s.completedSummary(w, r)
	if !ok {
		return
	}
	pdf, err := s.pdf.Render(r.Context(), handoff.BuildReportMarkdown(summary))
	if err != nil {
		s.logger.Error("render report pdf", zap.String("summary_id", summary.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render pdf")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "handoff-"+sanitizeFilename(summary.SourceNoteID)+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (jobs.Job, bool) {
	job, err := s.runner.Store().Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return jobs.Job{}, false
	}
	if err != nil {
		s.logger.Error("get job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return jobs.Job{}, false
	}
	return job, true
}

func (s *Server) completedSummary(w http.ResponseWriter, r *http.Request) (handoff.StructuredSummary, bool) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return handoff.StructuredSummary{}, false
	}
	if job.Status != jobs.StatusCompleted || job.Summary == nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "job has no report", "status": job.Status})
		return handoff.StructuredSummary{}, false
	}
	return *job.Summary, true
}

func writeMarkdown(w http.ResponseWriter, md string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, md)
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "report"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, v)
}
