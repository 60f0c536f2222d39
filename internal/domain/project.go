package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Project groups sessions and carries per-project chat settings, including
// which completion provider to use and its (encrypted at rest) API key.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	LLM       *LLMPrefs `json:"llm,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LLMPrefs holds a project's provider override. APIKey is ciphertext in
// storage; the service decrypts it before handing it to the provider router.
type LLMPrefs struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// ProjectRepository defines the interface for project storage
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	Get(ctx context.Context, id uuid.UUID) (*Project, error)
	List(ctx context.Context, limit, offset int) ([]Project, error)
	Update(ctx context.Context, project *Project) error
	Delete(ctx context.Context, id uuid.UUID) error
}
