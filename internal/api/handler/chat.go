package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ellenlabs/ellen/internal/api/response"
	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/service"
	"github.com/ellenlabs/ellen/internal/stream"
	"github.com/rs/zerolog/log"
)

// ChatHandler handles the streaming chat endpoint
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Stream answers one chat message as a stream of events. The framing is
// NDJSON unless the client asks for text/event-stream. The resolved session
// ID is returned in the X-Session-ID header before the first event, so
// clients that opened a fresh conversation can address the session later.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	session, err := h.chatService.EnsureSession(r.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		log.Error().Err(err).Msg("failed to resolve session")
		response.InternalError(w, "failed to resolve session")
		return
	}

	framing := stream.FramingNDJSON
	contentType := "application/x-ndjson"
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		framing = stream.FramingSSE
		contentType = "text/event-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Session-ID", session.ID.String())
	w.WriteHeader(http.StatusOK)

	var flush func()
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
		flush = flusher.Flush
	}
	writer := stream.NewWriter(w, framing, flush)

	if err := h.chatService.StreamAnswer(r.Context(), req, writer); err != nil {
		// Headers are out; all we can do is stop writing.
		log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("chat stream aborted")
		return
	}

	if err := writer.Done(); err != nil {
		log.Warn().Err(err).Msg("failed to terminate chat stream")
	}
}
