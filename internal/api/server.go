// Package api exposes the agent's local HTTP surface: health, recent
// events, pattern status, and a manual-scan trigger.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"hostmend/internal/buffer"
	"hostmend/internal/engine"
	"hostmend/internal/schema"
)

// APIError is a structured error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// writeJSONError writes a structured JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
		Details: details,
	}); err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// EngineView is the read-only engine surface the API serves. Satisfied
// by *engine.Engine.
type EngineView interface {
	AddEvent(event *schema.Event) ([]engine.Firing, error)
	Patterns() []engine.PatternStatus
	RecentEvents(limit int) []*schema.Event
	BufferMetrics() buffer.Metrics
}

// Sweeper triggers one immediate check of every probe. Satisfied by
// *probes.Set.
type Sweeper interface {
	Sweep(ctx context.Context)
	Names() []string
}

// Server handles the agent's HTTP endpoints.
type Server struct {
	engine  EngineView
	probes  Sweeper
	metrics http.Handler
	started time.Time
	version string
}

// NewServer creates the API server. metricsHandler may be nil, in
// which case /metrics is not registered.
func NewServer(eng EngineView, probes Sweeper, metricsHandler http.Handler, version string) *Server {
	return &Server{
		engine:  eng,
		probes:  probes,
		metrics: metricsHandler,
		started: time.Now(),
		version: version,
	}
}

// Routes registers all endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/patterns", s.handlePatterns)
	mux.HandleFunc("POST /v1/scan", s.handleScan)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"uptime":  time.Since(s.started).String(),
	})
}

// statusResponse is the aggregate agent status.
type statusResponse struct {
	Version  string                 `json:"version"`
	Uptime   string                 `json:"uptime"`
	Buffer   buffer.Metrics         `json:"buffer"`
	Patterns []engine.PatternStatus `json:"patterns"`
	Probes   []string               `json:"probes"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Version:  s.version,
		Uptime:   time.Since(s.started).String(),
		Buffer:   s.engine.BufferMetrics(),
		Patterns: s.engine.Patterns(),
		Probes:   s.probes.Names(),
	})
}

// maxEventLimit caps the events returned by one request.
const maxEventLimit = 1000

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONError(w, http.StatusBadRequest, "INVALID_LIMIT",
				"limit must be a positive integer", raw)
			return
		}
		limit = parsed
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events := s.engine.RecentEvents(limit)
	if events == nil {
		events = []*schema.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	patterns := s.engine.Patterns()
	if patterns == nil {
		patterns = []engine.PatternStatus{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// handleScan runs every probe once and records a manual_scan event so
// operator-initiated checks are visible in the event stream.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.probes.Sweep(r.Context())

	firings, err := s.engine.AddEvent(schema.New(schema.TypeManualScan, "api", 1, map[string]any{
		"remote_addr": r.RemoteAddr,
	}))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "SCAN_FAILED",
			"failed to record scan event", err.Error())
		return
	}
	if firings == nil {
		firings = []engine.Firing{}
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "scan complete",
		"probes":  s.probes.Names(),
		"firings": firings,
	})
}
