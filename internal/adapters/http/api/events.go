// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/cull/internal/domain/dedupe"
	"github.com/okian/cull/internal/domain/model"
)

// EventDependencies defines the interface for event ingestion dependencies.
type EventDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, e model.Event) bool
}

// EventsHandler handles event ingestion requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// eventRequest mirrors the OpenAPI schema for POST /api/events.
type eventRequest struct {
	EventID     string `json:"event_id"`
	ProjectID   string `json:"project_id"`
	Fingerprint string `json:"fingerprint"`
	Message     string `json:"message"`
	Level       string `json:"level"`
	TS          string `json:"ts"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.ProjectID) == "":
		return errors.New("missing project_id")
	case strings.TrimSpace(e.Fingerprint) == "":
		return errors.New("missing fingerprint")
	case strings.TrimSpace(e.Message) == "":
		return errors.New("missing message")
	}
	if e.TS != "" {
		if _, err := time.Parse(time.RFC3339, e.TS); err != nil {
			return errors.New("invalid ts; must be RFC3339")
		}
	}
	return nil
}

// HandlePostEvent handles POST /api/events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	// Clients that do not supply an id get one; such events can never
	// be deduplicated across retries.
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}

	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(r.Context(), req.EventID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	// Try to enqueue for async digestion
	if ok := h.deps.Enqueue(r.Context(), req.toEvent()); !ok {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), req.EventID)
		writeError(w, http.StatusTooManyRequests, "backpressure", newKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}

func (e eventRequest) toEvent() model.Event {
	level := e.Level
	if level == "" {
		level = "error"
	}
	var ts time.Time
	if e.TS != "" {
		ts, _ = time.Parse(time.RFC3339, e.TS)
	}
	return model.Event{
		ID:        e.EventID,
		ProjectID: e.ProjectID,
		IssueID:   e.Fingerprint,
		Message:   e.Message,
		Level:     level,
		Timestamp: ts,
	}
}
