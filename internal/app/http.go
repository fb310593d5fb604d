package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"quill/api/internal/notify"
	"quill/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":     false,
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ready"})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "drafts" {
		s.handleDrafts(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDrafts(w http.ResponseWriter, r *http.Request, caseID string, parts []string) {
	ctx := r.Context()

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		view, err := s.service.GetDraft(ctx, caseID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 1 && parts[0] == "open" && r.Method == http.MethodPost:
		var body struct {
			InitialContent string `json:"initialContent"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.OpenDraft(ctx, caseID, body.InitialContent)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 1 && parts[0] == "content" && r.Method == http.MethodPut:
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		content, err := s.service.UpdateContent(ctx, caseID, body.Content)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"content": content})

	case len(parts) == 1 && parts[0] == "generated" && r.Method == http.MethodPost:
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		snapshot, recorded, err := s.service.ApplyGenerated(ctx, caseID, body.Content)
		if err != nil {
			respondError(w, err)
			return
		}
		payload := map[string]any{"recorded": recorded}
		if recorded {
			payload["version"] = snapshot
		}
		writeJSON(w, http.StatusOK, payload)

	case len(parts) == 1 && parts[0] == "save" && r.Method == http.MethodPost:
		receipt, err := s.service.SaveDraft(ctx, caseID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, receipt)

	case len(parts) == 1 && parts[0] == "versions" && r.Method == http.MethodGet:
		view, err := s.service.GetDraft(ctx, caseID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": view.History})

	case len(parts) == 3 && parts[0] == "versions" && parts[2] == "restore" && r.Method == http.MethodPost:
		content, restored, err := s.service.RestoreVersion(ctx, caseID, parts[1])
		if err != nil {
			respondError(w, err)
			return
		}
		payload := map[string]any{"restored": restored}
		if restored {
			payload["content"] = content
		}
		writeJSON(w, http.StatusOK, payload)

	case len(parts) == 1 && parts[0] == "comments" && r.Method == http.MethodPost:
		var body struct {
			AnchorText string `json:"anchorText"`
			Body       string `json:"body"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.AddComment(ctx, caseID, body.AnchorText, body.Body)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)

	case len(parts) == 3 && parts[0] == "comments" && parts[2] == "resolve" && r.Method == http.MethodPost:
		toggled, err := s.service.ToggleComment(ctx, caseID, parts[1])
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"toggled": toggled})

	case len(parts) == 1 && parts[0] == "track-changes" && r.Method == http.MethodPost:
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetTrackChanges(ctx, caseID, body.Enabled); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"trackChanges": body.Enabled})

	case len(parts) == 1 && parts[0] == "changes" && r.Method == http.MethodPost:
		var body struct {
			Kind string `json:"kind"`
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		entry, recorded, err := s.service.RecordChange(ctx, caseID, body.Kind, body.Text)
		if err != nil {
			respondError(w, err)
			return
		}
		payload := map[string]any{"recorded": recorded}
		if recorded {
			payload["entry"] = entry
		}
		writeJSON(w, http.StatusOK, payload)

	case len(parts) == 1 && parts[0] == "events" && r.Method == http.MethodGet:
		s.handleSaveEvents(w, r, caseID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleSaveEvents streams collaborator save events for a case as
// server-sent events until the client disconnects.
func (s *HTTPServer) handleSaveEvents(w http.ResponseWriter, r *http.Request, caseID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "Streaming not supported", nil)
		return
	}

	events := make(chan notify.SaveEvent, 8)
	stop, err := s.service.SubscribeSaves(r.Context(), caseID, func(event notify.SaveEvent) {
		select {
		case events <- event:
		default:
			// a stalled client misses events rather than blocking delivery
		}
	})
	if err != nil {
		respondError(w, err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewRequestID()
		}
		setCORSHeaders(w.Header(), s.corsOrigin)
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logrus.Infof("%s %s %d %s %dms",
			r.Method,
			r.URL.Path,
			recorder.status,
			requestID,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps the event-stream endpoint working behind the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func respondError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
