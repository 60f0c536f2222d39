package service

import (
	"context"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/llm"
	"github.com/ellenlabs/ellen/internal/repository/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockSessionRepository mocks the SessionRepository interface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) List(ctx context.Context, projectID *uuid.UUID, limit, offset int) ([]domain.Session, error) {
	args := m.Called(ctx, projectID, limit, offset)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockThreadRepository mocks the ThreadRepository interface
type MockThreadRepository struct {
	mock.Mock
}

func (m *MockThreadRepository) Create(ctx context.Context, sessionID uuid.UUID, thread *domain.Thread) error {
	args := m.Called(ctx, sessionID, thread)
	return args.Error(0)
}

func (m *MockThreadRepository) Update(ctx context.Context, sessionID uuid.UUID, thread *domain.Thread) error {
	args := m.Called(ctx, sessionID, thread)
	return args.Error(0)
}

func (m *MockThreadRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Thread, error) {
	args := m.Called(ctx, sessionID, limit)
	return args.Get(0).([]domain.Thread), args.Error(1)
}

// MockMaterialRepository mocks the MaterialRepository interface
type MockMaterialRepository struct {
	mock.Mock
}

func (m *MockMaterialRepository) Search(ctx context.Context, query string, limit int) ([]domain.Material, error) {
	args := m.Called(ctx, query, limit)
	return args.Get(0).([]domain.Material), args.Error(1)
}

func (m *MockMaterialRepository) GetByName(ctx context.Context, name string) (*domain.Material, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Material), args.Error(1)
}

// MockSourceRepository mocks the SourceRepository interface
type MockSourceRepository struct {
	mock.Mock
}

func (m *MockSourceRepository) Search(ctx context.Context, query string, limit int) ([]domain.Source, error) {
	args := m.Called(ctx, query, limit)
	return args.Get(0).([]domain.Source), args.Error(1)
}

// MockProjectRepository mocks the ProjectRepository interface
type MockProjectRepository struct {
	mock.Mock
}

func (m *MockProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockProjectRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Project), args.Error(1)
}

func (m *MockProjectRepository) List(ctx context.Context, limit, offset int) ([]domain.Project, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]domain.Project), args.Error(1)
}

func (m *MockProjectRepository) Update(ctx context.Context, project *domain.Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// fakeProvider scripts a streamed answer without testify, since StreamChat
// has to drive the token callback.
type fakeProvider struct {
	name         string
	deltas       []string
	streamErr    error
	beforeReturn func()

	completions map[string]string // prompt substring -> response
	completeErr error

	lastRequest llm.Request
	lastModel   string
}

func (p *fakeProvider) Name() string {
	if p.name == "" {
		return "fake"
	}
	return p.name
}

func (p *fakeProvider) AvailableModels() []string { return []string{"fake-model"} }
func (p *fakeProvider) DefaultModel() string      { return "fake-model" }
func (p *fakeProvider) IsConfigured() bool        { return true }

func (p *fakeProvider) StreamChat(ctx context.Context, req llm.Request, model string, onToken llm.TokenFunc) (*llm.Response, error) {
	p.lastRequest = req
	p.lastModel = model

	var content string
	for _, delta := range p.deltas {
		content += delta
		if err := onToken(delta); err != nil {
			return nil, err
		}
	}
	if p.beforeReturn != nil {
		p.beforeReturn()
	}
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	return &llm.Response{Content: content, Model: model}, nil
}

func (p *fakeProvider) Complete(ctx context.Context, prompt, model string) (string, error) {
	if p.completeErr != nil {
		return "", p.completeErr
	}
	for needle, response := range p.completions {
		if contains(prompt, needle) {
			return response, nil
		}
	}
	return "", nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// recordingSink captures emitted events in order.
type recordingSink struct {
	order       []string
	tokens      []string
	sources     []domain.Source
	materials   []domain.Material
	suggestions []string
	errMessage  string
}

func (s *recordingSink) Token(delta string) error {
	s.order = append(s.order, "token")
	s.tokens = append(s.tokens, delta)
	return nil
}

func (s *recordingSink) Sources(sources []domain.Source) error {
	s.order = append(s.order, "sources")
	s.sources = sources
	return nil
}

func (s *recordingSink) Materials(materials []domain.Material) error {
	s.order = append(s.order, "materials")
	s.materials = materials
	return nil
}

func (s *recordingSink) Suggestions(suggestions []string) error {
	s.order = append(s.order, "suggestions")
	s.suggestions = suggestions
	return nil
}

func (s *recordingSink) Error(message string) error {
	s.order = append(s.order, "error")
	s.errMessage = message
	return nil
}

// fakeCache is an in-memory RetrievalCache.
type fakeCache struct {
	entries map[string]*redis.RetrievalBundle
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*redis.RetrievalBundle)}
}

func (c *fakeCache) Get(ctx context.Context, query string) (*redis.RetrievalBundle, error) {
	if bundle, ok := c.entries[query]; ok {
		c.hits++
		return bundle, nil
	}
	return nil, nil
}

func (c *fakeCache) Set(ctx context.Context, query string, bundle *redis.RetrievalBundle) error {
	c.entries[query] = bundle
	return nil
}
