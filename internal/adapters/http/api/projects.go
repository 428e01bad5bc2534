// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/cull/internal/domain/model"
)

// ProjectDependencies defines the interface for project administration.
type ProjectDependencies interface {
	CreateProject(ctx context.Context, name string, maxEventCount int64) (model.Project, error)
	Projects(ctx context.Context) ([]model.Project, error)
	ProjectStats(ctx context.Context, projectID string) (model.ProjectStats, error)
}

// ProjectsHandler handles project administration requests.
type ProjectsHandler struct {
	deps ProjectDependencies
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(deps ProjectDependencies) *ProjectsHandler {
	return &ProjectsHandler{deps: deps}
}

// createProjectRequest mirrors the OpenAPI schema for POST /api/projects.
// A zero or missing max_event_count falls back to the service default.
type createProjectRequest struct {
	Name          string `json:"name"`
	MaxEventCount int64  `json:"max_event_count"`
}

type projectResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MaxEventCount int64  `json:"max_event_count"`
	CreatedAt     string `json:"created_at"`
}

func toProjectResponse(p model.Project) projectResponse {
	return projectResponse{
		ID:            p.ID,
		Name:          p.Name,
		MaxEventCount: p.MaxEventCount,
		CreatedAt:     p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// HandleProjects handles POST and GET /api/projects requests.
func (h *ProjectsHandler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	const op = "api.projects"
	switch r.Method {
	case http.MethodPost:
		var req createProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing name")))
			return
		}
		if req.MaxEventCount < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("max_event_count must not be negative")))
			return
		}
		p, err := h.deps.CreateProject(r.Context(), req.Name, req.MaxEventCount)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		writeJSON(w, http.StatusCreated, toProjectResponse(p))

	case http.MethodGet:
		projects, err := h.deps.Projects(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		out := make([]projectResponse, 0, len(projects))
		for _, p := range projects {
			out = append(out, toProjectResponse(p))
		}
		writeJSON(w, http.StatusOK, out)

	default:
		http.NotFound(w, r)
	}
}

// HandleProjectStats handles GET /api/projects/{id}/stats requests.
func (h *ProjectsHandler) HandleProjectStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameters after /api/projects/
	path := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	projectID, rest, found := strings.Cut(path, "/")
	if !found || projectID == "" || rest != "stats" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	stats, err := h.deps.ProjectStats(r.Context(), projectID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
