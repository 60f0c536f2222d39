package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProjectRepository implements domain.ProjectRepository. LLM preferences
// are stored as JSONB with the API key already encrypted by the service.
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	llm, err := marshalPrefs(project.LLM)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO projects (id, name, llm, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query, project.ID, project.Name, llm, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	query := `
		SELECT id, name, llm, created_at, updated_at
		FROM projects
		WHERE id = $1
	`
	var p domain.Project
	var llm []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &llm, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if err := unmarshalPrefs(&p, llm); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]domain.Project, error) {
	query := `
		SELECT id, name, llm, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		var llm []byte
		if err := rows.Scan(&p.ID, &p.Name, &llm, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if err := unmarshalPrefs(&p, llm); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func (r *ProjectRepository) Update(ctx context.Context, project *domain.Project) error {
	llm, err := marshalPrefs(project.LLM)
	if err != nil {
		return err
	}

	query := `
		UPDATE projects
		SET name = $1, llm = $2, updated_at = $3
		WHERE id = $4
	`
	_, err = r.pool.Exec(ctx, query, project.Name, llm, project.UpdatedAt, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM projects WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func marshalPrefs(prefs *domain.LLMPrefs) ([]byte, error) {
	if prefs == nil {
		return nil, nil
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal llm prefs: %w", err)
	}
	return data, nil
}

func unmarshalPrefs(p *domain.Project, llm []byte) error {
	if len(llm) == 0 {
		return nil
	}
	if err := json.Unmarshal(llm, &p.LLM); err != nil {
		return fmt.Errorf("failed to unmarshal llm prefs: %w", err)
	}
	return nil
}
