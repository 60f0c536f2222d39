package service

import (
	"context"
	"testing"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionDefaultsTitle(t *testing.T) {
	f := newChatFixture(Settings{})

	var created *domain.Session
	f.sessions.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.Session) }).
		Return(nil)

	session, err := f.svc.CreateSession(context.Background(), domain.CreateSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, defaultSessionTitle, session.Title)
	require.NotNil(t, created)
	assert.Equal(t, session.ID, created.ID)
}

func TestGetSessionLoadsThreads(t *testing.T) {
	f := newChatFixture(Settings{})
	sessionID := uuid.New()

	threads := []domain.Thread{
		{User: domain.Message{Role: domain.RoleUser, Content: "q"}},
	}
	f.sessions.On("Get", mock.Anything, sessionID).Return(titledSession(sessionID, "Graphene"), nil)
	f.threads.On("ListBySession", mock.Anything, sessionID, 0).Return(threads, nil)

	session, err := f.svc.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, threads, session.Threads)
}

func TestGetSessionNotFound(t *testing.T) {
	f := newChatFixture(Settings{})
	sessionID := uuid.New()
	f.sessions.On("Get", mock.Anything, sessionID).Return(nil, domain.ErrNotFound)

	_, err := f.svc.GetSession(context.Background(), sessionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListSessionsClampsLimit(t *testing.T) {
	f := newChatFixture(Settings{})
	f.sessions.On("List", mock.Anything, (*uuid.UUID)(nil), 50, 0).Return([]domain.Session{}, nil)

	_, err := f.svc.ListSessions(context.Background(), nil, 5000, 0)
	require.NoError(t, err)
	f.sessions.AssertExpectations(t)
}
