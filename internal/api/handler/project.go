package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ellenlabs/ellen/internal/api/response"
	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ProjectHandler handles project endpoints
type ProjectHandler struct {
	projectService *service.ProjectService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projectService *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

type projectRequest struct {
	Name string           `json:"name" validate:"max=200"`
	LLM  *domain.LLMPrefs `json:"llm,omitempty"`
}

// Create creates a new project
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		response.BadRequest(w, "name is required")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	project, err := h.projectService.Create(r.Context(), req.Name, req.LLM)
	if err != nil {
		response.InternalError(w, "failed to create project")
		return
	}

	response.Created(w, project)
}

// List lists projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	projects, err := h.projectService.List(r.Context(), limit, offset)
	if err != nil {
		response.InternalError(w, "failed to list projects")
		return
	}

	response.OK(w, projects)
}

// Get returns one project
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		response.BadRequest(w, "invalid project ID")
		return
	}

	project, err := h.projectService.Get(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "project not found")
			return
		}
		response.InternalError(w, "failed to fetch project")
		return
	}

	response.OK(w, project)
}

// Update updates a project's name or chat preferences
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		response.BadRequest(w, "invalid project ID")
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	project, err := h.projectService.Update(r.Context(), projectID, req.Name, req.LLM)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "project not found")
			return
		}
		response.InternalError(w, "failed to update project")
		return
	}

	response.OK(w, project)
}

// Delete deletes a project
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		response.BadRequest(w, "invalid project ID")
		return
	}

	if err := h.projectService.Delete(r.Context(), projectID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "project not found")
			return
		}
		response.InternalError(w, "failed to delete project")
		return
	}

	response.OK(w, map[string]string{"message": "project deleted"})
}
