package main

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// server exposes the extraction and course-generation boundaries over HTTP.
type server struct {
	extractor *Extractor
	pipeline  *Pipeline
	settings  *Settings
	authToken string
	logger    *logrus.Logger
}

func newServer(extractor *Extractor, pipeline *Pipeline, settings *Settings, authToken string, logger *logrus.Logger) *server {
	return &server{
		extractor: extractor,
		pipeline:  pipeline,
		settings:  settings,
		authToken: authToken,
		logger:    logger,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transcripts", s.requireAuth(s.handleTranscript))
	mux.HandleFunc("POST /api/courses", s.requireAuth(s.handleCreateCourse))
	mux.HandleFunc("GET /api/courses/runs", s.requireAuth(s.handleRunStatus))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.logRequests(mux)
}

// requireAuth validates the bearer credential with a constant-time compare.
func (s *server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.authToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(recorder, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   recorder.status,
			"duration": time.Since(started).String(),
		}).Info("request")
	})
}

type transcriptRequest struct {
	VideoID  string `json:"videoId"`
	Language string `json:"language"`
}

type transcriptResponse struct {
	Transcript []TranscriptSegment `json:"transcript"`
	VideoID    string              `json:"videoId"`
	Segments   int                 `json:"segments"`
	File       string              `json:"file"`
}

// handleTranscript runs one extraction and returns the normalized segments.
func (s *server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	lang := s.resolveLanguage(req.Language)
	if !s.settings.supportsLanguage(lang) {
		s.writeError(w, lang, errUnsupportedLanguage(lang, req.Language))
		return
	}

	result, err := s.extractor.Extract(r.Context(), req.VideoID, lang)
	if err != nil {
		s.writeError(w, lang, err)
		return
	}

	writeJSON(w, http.StatusOK, transcriptResponse{
		Transcript: result.Segments,
		VideoID:    strings.TrimSpace(req.VideoID),
		Segments:   result.SegmentCount,
		File:       result.SourceFile,
	})
}

// handleCreateCourse admits a course-generation run. Duplicate requests
// inside the idempotency window receive the existing run's identifier.
func (s *server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Language = s.resolveLanguage(req.Language)
	if !s.settings.supportsLanguage(req.Language) {
		s.writeError(w, req.Language, errUnsupportedLanguage(req.Language, req.Language))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}
	if _, err := sanitizeVideoID(req.VideoID, req.Language); err != nil {
		s.writeError(w, req.Language, err)
		return
	}

	run, coalesced := s.pipeline.Admit(req)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":     run.ID,
		"step":      run.Step(),
		"coalesced": coalesced,
	})
}

// handleRunStatus returns a run snapshot by ID.
func (s *server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	run, ok := s.pipeline.RunByID(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) resolveLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return s.settings.DefaultLanguage
	}
	return lang
}

// writeError maps a failure to its HTTP response. Callers only ever see the
// localized user message; code, status and context go to the logs.
func (s *server) writeError(w http.ResponseWriter, lang string, err error) {
	if appErr, ok := IsAppError(err); ok {
		s.logger.WithFields(logrus.Fields{
			"code":        appErr.Code,
			"http_status": appErr.HTTPStatus,
			"context":     appErr.Context,
		}).WithError(err).Warn("request failed")
		writeJSON(w, appErr.HTTPStatus, map[string]string{"error": appErr.UserMessage})
		return
	}

	s.logger.WithError(err).Error("request failed with untyped error")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": userMessage(lang, "generic")})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
