package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaterialRepository implements domain.MaterialRepository over the curated
// materials catalog.
type MaterialRepository struct {
	pool *pgxpool.Pool
}

// NewMaterialRepository creates a new material repository
func NewMaterialRepository(pool *pgxpool.Pool) *MaterialRepository {
	return &MaterialRepository{pool: pool}
}

func (r *MaterialRepository) Search(ctx context.Context, query string, limit int) ([]domain.Material, error) {
	sql := `
		SELECT name, formula, category, summary, properties, updated_at
		FROM materials
		WHERE search_vector @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search materials: %w", err)
	}
	defer rows.Close()

	var materials []domain.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, *m)
	}
	return materials, nil
}

func (r *MaterialRepository) GetByName(ctx context.Context, name string) (*domain.Material, error) {
	sql := `
		SELECT name, formula, category, summary, properties, updated_at
		FROM materials
		WHERE lower(name) = lower($1)
	`
	row := r.pool.QueryRow(ctx, sql, name)
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMaterial(row pgx.Row) (*domain.Material, error) {
	var m domain.Material
	var properties []byte
	if err := row.Scan(
		&m.Name,
		&m.Formula,
		&m.Category,
		&m.Summary,
		&properties,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan material: %w", err)
	}
	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &m.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
		}
	}
	return &m, nil
}

// SourceRepository implements domain.SourceRepository over the indexed
// research-article corpus.
type SourceRepository struct {
	pool *pgxpool.Pool
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{pool: pool}
}

func (r *SourceRepository) Search(ctx context.Context, query string, limit int) ([]domain.Source, error) {
	sql := `
		SELECT title, url, snippet
		FROM articles
		WHERE search_vector @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, published_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search articles: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var s domain.Source
		if err := rows.Scan(&s.Title, &s.URL, &s.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, nil
}
