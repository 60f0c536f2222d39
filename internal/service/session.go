package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/google/uuid"
)

// CreateSession creates a new chat session
func (s *ChatService) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
	title := req.Title
	if title == "" {
		title = defaultSessionTitle
	}
	now := time.Now()
	session := &domain.Session{
		ID:        uuid.New(),
		ProjectID: req.ProjectID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session with its threads, oldest first.
func (s *ChatService) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	threads, err := s.threadRepo.ListBySession(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	session.Threads = threads
	return session, nil
}

// ListSessions lists sessions, most recently active first.
func (s *ChatService) ListSessions(ctx context.Context, projectID *uuid.UUID, limit, offset int) ([]domain.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.sessionRepo.List(ctx, projectID, limit, offset)
}

// DeleteSession deletes a session and its threads
func (s *ChatService) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessionRepo.Delete(ctx, sessionID)
}
