package domain

import (
	"context"
	"time"
)

// Material is a structured record from the materials-intelligence catalog,
// keyed by name. Attached to assistant answers as a side channel.
type Material struct {
	Name       string            `json:"name"`
	Formula    string            `json:"formula,omitempty"`
	Category   string            `json:"category,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
}

// Source is a citation backing part of an assistant answer.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// MaterialRepository defines the interface for the materials catalog
type MaterialRepository interface {
	Search(ctx context.Context, query string, limit int) ([]Material, error)
	GetByName(ctx context.Context, name string) (*Material, error)
}

// SourceRepository defines the interface for the news/research article index
type SourceRepository interface {
	Search(ctx context.Context, query string, limit int) ([]Source, error)
}
