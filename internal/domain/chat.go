package domain

import "github.com/google/uuid"

// ChatRequest is the body of POST /chat/stream.
type ChatRequest struct {
	SessionID uuid.UUID  `json:"session_id,omitempty"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	Message   string     `json:"message" validate:"required,max=8000"`
	Provider  string     `json:"provider,omitempty"`
	Model     string     `json:"model,omitempty"`
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	Title     string     `json:"title,omitempty" validate:"max=200"`
}
