// Package http provides the HTTP handlers and middleware for the query
// orchestration API.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// defaultQuery stands in when a request carries no query text.
const defaultQuery = "Implement the Fast Fourier Transform in Python, explain the math behind it, and analyze numerical stability issues"

// Handlers bundles the dependencies the HTTP endpoints need.
type Handlers struct {
	pipeline *service.Pipeline
	cfg      *config.Config
}

// NewHandlers creates the handler set.
func NewHandlers(pipeline *service.Pipeline, cfg *config.Config) *Handlers {
	return &Handlers{pipeline: pipeline, cfg: cfg}
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// HandleQuery runs a query through the pipeline and streams progress as
// chunked plain text. The response status is always 200; terminal failures
// are reported in-band as an ==== ERROR ==== section, because by the time
// they surface the stream has already started.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[queryRequest](w, r)
	if !ok {
		return
	}

	if req.Query == "" {
		req.Query = defaultQuery
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	slog.Info("query accepted",
		"session_id", req.SessionID,
		"query_len", len(req.Query),
	)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Session-ID", req.SessionID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	// Detach from the request context so a dropped client does not abort
	// the pipeline mid-subtask; the session still reaches a terminal state
	// and is torn down.
	ctx := context.WithoutCancel(r.Context())

	h.pipeline.Run(ctx, req.Query, req.SessionID, func(chunk string) {
		if chunk == "" {
			return
		}
		if _, err := fmt.Fprint(w, chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
}

type streamPayload struct {
	Logs []string `json:"logs"`
}

// HandleStream serves the per-session progress feed as server-sent events.
// Each tick drains the entries buffered since the previous one; the stream
// ends when the session reaches a terminal state and leaves the registry.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sessions := h.pipeline.Sessions()
	ticker := time.NewTicker(h.cfg.Session.PollInterval)
	defer ticker.Stop()

	for {
		logs, alive := sessions.Drain(sessionID)

		if len(logs) > 0 {
			data, err := json.Marshal(streamPayload{Logs: logs})
			if err != nil {
				slog.Error("failed to marshal stream payload", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}

		if !alive {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Endpoint string `json:"endpoint"`
}

// HandleHealth reports liveness and the number of in-flight sessions.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: h.pipeline.Sessions().Len(),
		Endpoint: h.cfg.Backend.Endpoint,
	})
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
