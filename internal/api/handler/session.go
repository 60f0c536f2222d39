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

type SessionHandler struct {
	chatService *service.ChatService
}

func NewSessionHandler(chatService *service.ChatService) *SessionHandler {
	return &SessionHandler{chatService: chatService}
}

// List returns sessions, most recently active first. An optional project_id
// query parameter narrows the listing to one project.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
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

	var projectID *uuid.UUID
	if p := r.URL.Query().Get("project_id"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			response.BadRequest(w, "invalid project ID")
			return
		}
		projectID = &id
	}

	sessions, err := h.chatService.ListSessions(r.Context(), projectID, limit, offset)
	if err != nil {
		response.InternalError(w, "failed to list sessions")
		return
	}

	response.OK(w, sessions)
}

// Create creates a new session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Optional body
		req = domain.CreateSessionRequest{}
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	session, err := h.chatService.CreateSession(r.Context(), req)
	if err != nil {
		response.InternalError(w, "failed to create session")
		return
	}

	response.Created(w, session)
}

// Get returns one session with its full thread history
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.BadRequest(w, "invalid session ID")
		return
	}

	session, err := h.chatService.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		response.InternalError(w, "failed to fetch session")
		return
	}

	response.OK(w, session)
}

// Delete deletes a session and its threads
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.BadRequest(w, "invalid session ID")
		return
	}

	if err := h.chatService.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		response.InternalError(w, "failed to delete session")
		return
	}

	response.OK(w, map[string]string{"message": "session deleted"})
}
