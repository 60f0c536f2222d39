package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Thread is one user-turn/assistant-turn pair plus the structured side
// channels that arrive with the assistant answer. Until the server assigns
// a durable ID, Pending is true and ID is a client-generated placeholder.
type Thread struct {
	ID          uuid.UUID  `json:"id"`
	Pending     bool       `json:"pending,omitempty"`
	User        Message    `json:"user"`
	Assistant   Message    `json:"assistant"`
	Sources     []Source   `json:"sources,omitempty"`
	Materials   []Material `json:"materials,omitempty"`
	Suggestions []string   `json:"suggestions,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Session is an ordered collection of threads belonging to one conversation.
// The Streaming flag is transient client state and is never persisted.
type Session struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	Title        string     `json:"title"`
	Threads      []Thread   `json:"threads"`
	Streaming    bool       `json:"-"`
	PendingQuery string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// LastThread returns the open thread, the only one stream events may target.
func (s *Session) LastThread() *Thread {
	if len(s.Threads) == 0 {
		return nil
	}
	return &s.Threads[len(s.Threads)-1]
}

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	List(ctx context.Context, projectID *uuid.UUID, limit, offset int) ([]Session, error)
	Update(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ThreadRepository defines the interface for durable thread storage.
// ListBySession returns the most recent limit threads in chronological
// order; limit <= 0 means all of them.
type ThreadRepository interface {
	Create(ctx context.Context, sessionID uuid.UUID, thread *Thread) error
	Update(ctx context.Context, sessionID uuid.UUID, thread *Thread) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]Thread, error)
}
