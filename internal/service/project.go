package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/security"
	"github.com/google/uuid"
)

// ProjectService manages projects and their chat preferences. Provider API
// keys are encrypted before they reach storage and never returned to
// callers.
type ProjectService struct {
	projectRepo domain.ProjectRepository
	encryptor   *security.Encryptor
}

// NewProjectService creates a new project service
func NewProjectService(projectRepo domain.ProjectRepository, encryptor *security.Encryptor) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		encryptor:   encryptor,
	}
}

// Create creates a new project
func (s *ProjectService) Create(ctx context.Context, name string, prefs *domain.LLMPrefs) (*domain.Project, error) {
	sealed, err := s.sealPrefs(prefs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	project := &domain.Project{
		ID:        uuid.New(),
		Name:      name,
		LLM:       sealed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return redact(project), nil
}

// Get retrieves a project
func (s *ProjectService) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	project, err := s.projectRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return redact(project), nil
}

// List lists projects
func (s *ProjectService) List(ctx context.Context, limit, offset int) ([]domain.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	projects, err := s.projectRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		redact(&projects[i])
	}
	return projects, nil
}

// Update updates a project's name and preferences. An empty APIKey in
// prefs keeps the stored key.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, name string, prefs *domain.LLMPrefs) (*domain.Project, error) {
	project, err := s.projectRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != "" {
		project.Name = name
	}
	if prefs != nil {
		if prefs.APIKey == "" && project.LLM != nil {
			prefs.APIKey = project.LLM.APIKey
			project.LLM = prefs
		} else {
			sealed, err := s.sealPrefs(prefs)
			if err != nil {
				return nil, err
			}
			project.LLM = sealed
		}
	}
	project.UpdatedAt = time.Now()

	if err := s.projectRepo.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return redact(project), nil
}

// Delete deletes a project
func (s *ProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.projectRepo.Delete(ctx, id)
}

// sealPrefs encrypts the API key inside a copy of prefs.
func (s *ProjectService) sealPrefs(prefs *domain.LLMPrefs) (*domain.LLMPrefs, error) {
	if prefs == nil {
		return nil, nil
	}
	sealed := *prefs
	if sealed.APIKey != "" {
		if s.encryptor == nil {
			return nil, fmt.Errorf("credential encryption is not configured")
		}
		ciphertext, err := s.encryptor.EncryptString(sealed.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt API key: %w", err)
		}
		sealed.APIKey = ciphertext
	}
	return &sealed, nil
}

// redact blanks the stored (encrypted) API key before a project leaves the
// service layer.
func redact(p *domain.Project) *domain.Project {
	if p.LLM != nil && p.LLM.APIKey != "" {
		prefs := *p.LLM
		prefs.APIKey = ""
		p.LLM = &prefs
	}
	return p
}
