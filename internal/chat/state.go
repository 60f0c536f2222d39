package chat

import (
	"time"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/google/uuid"
)

// The functions in this file are the only way the streaming side mutates a
// session. Each one is pure with respect to its input: the caller gets a new
// session value and commits it, so observers holding an older snapshot never
// see a half-applied update. Only the last thread is ever touched.

// AppendOptimisticThread inserts a placeholder thread with a client-generated
// ID, the user's message, and an empty assistant message. O(1) amortized.
func AppendOptimisticThread(s domain.Session, userContent string) domain.Session {
	threads := make([]domain.Thread, len(s.Threads)+1)
	copy(threads, s.Threads)
	threads[len(s.Threads)] = domain.Thread{
		ID:      uuid.New(),
		Pending: true,
		User: domain.Message{
			Role:    domain.RoleUser,
			Content: userContent,
		},
		Assistant: domain.Message{
			Role: domain.RoleAssistant,
		},
		CreatedAt: time.Now(),
	}
	s.Threads = threads
	return s
}

// ApplyTokenUpdate replaces the assistant content of the last thread with the
// cumulative streamed text. No-op on a session with no threads.
func ApplyTokenUpdate(s domain.Session, cumulative string) domain.Session {
	return withLastThread(s, func(t *domain.Thread) {
		t.Assistant.Content = cumulative
	})
}

// ApplySources replaces (never merges) the source list of the last thread.
func ApplySources(s domain.Session, sources []domain.Source) domain.Session {
	return withLastThread(s, func(t *domain.Thread) {
		t.Sources = sources
	})
}

// ApplyMaterials replaces the material list of the last thread.
func ApplyMaterials(s domain.Session, materials []domain.Material) domain.Session {
	return withLastThread(s, func(t *domain.Thread) {
		t.Materials = materials
	})
}

// ApplySuggestions replaces the follow-up suggestions of the last thread.
func ApplySuggestions(s domain.Session, suggestions []string) domain.Session {
	return withLastThread(s, func(t *domain.Thread) {
		t.Suggestions = suggestions
	})
}

// Reconcile replaces the client's optimistic state wholesale with the
// server's durable view. Transient client-only fields are reset.
func Reconcile(s domain.Session, authoritative domain.Session) domain.Session {
	authoritative.Streaming = false
	authoritative.PendingQuery = ""
	return authoritative
}

func withLastThread(s domain.Session, mutate func(*domain.Thread)) domain.Session {
	if len(s.Threads) == 0 {
		return s
	}
	threads := make([]domain.Thread, len(s.Threads))
	copy(threads, s.Threads)
	mutate(&threads[len(threads)-1])
	s.Threads = threads
	return s
}
