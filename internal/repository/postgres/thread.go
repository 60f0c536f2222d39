package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ThreadRepository implements domain.ThreadRepository. The structured side
// channels (sources, materials, suggestions) are stored as JSONB.
type ThreadRepository struct {
	pool *pgxpool.Pool
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(pool *pgxpool.Pool) *ThreadRepository {
	return &ThreadRepository{pool: pool}
}

func (r *ThreadRepository) Create(ctx context.Context, sessionID uuid.UUID, thread *domain.Thread) error {
	sources, materials, suggestions, err := marshalExtras(thread)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO threads (id, session_id, user_content, assistant_content, sources, materials, suggestions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		thread.ID,
		sessionID,
		thread.User.Content,
		thread.Assistant.Content,
		sources,
		materials,
		suggestions,
		thread.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

func (r *ThreadRepository) Update(ctx context.Context, sessionID uuid.UUID, thread *domain.Thread) error {
	sources, materials, suggestions, err := marshalExtras(thread)
	if err != nil {
		return err
	}

	query := `
		UPDATE threads
		SET assistant_content = $1, sources = $2, materials = $3, suggestions = $4
		WHERE id = $5 AND session_id = $6
	`
	_, err = r.pool.Exec(ctx, query,
		thread.Assistant.Content,
		sources,
		materials,
		suggestions,
		thread.ID,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	return nil
}

func (r *ThreadRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Thread, error) {
	query := `
		SELECT id, user_content, assistant_content, sources, materials, suggestions, created_at
		FROM threads
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	`
	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []domain.Thread
	for rows.Next() {
		var t domain.Thread
		var sources, materials, suggestions []byte
		if err := rows.Scan(
			&t.ID,
			&t.User.Content,
			&t.Assistant.Content,
			&sources,
			&materials,
			&suggestions,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		t.User.Role = domain.RoleUser
		t.Assistant.Role = domain.RoleAssistant
		if err := unmarshalExtras(&t, sources, materials, suggestions); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}

	// Reverse to return chronological order (oldest first)
	for i, j := 0, len(threads)-1; i < j; i, j = i+1, j-1 {
		threads[i], threads[j] = threads[j], threads[i]
	}

	return threads, nil
}

func marshalExtras(thread *domain.Thread) (sources, materials, suggestions []byte, err error) {
	if thread.Sources != nil {
		if sources, err = json.Marshal(thread.Sources); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal sources: %w", err)
		}
	}
	if thread.Materials != nil {
		if materials, err = json.Marshal(thread.Materials); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal materials: %w", err)
		}
	}
	if thread.Suggestions != nil {
		if suggestions, err = json.Marshal(thread.Suggestions); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal suggestions: %w", err)
		}
	}
	return sources, materials, suggestions, nil
}

func unmarshalExtras(t *domain.Thread, sources, materials, suggestions []byte) error {
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &t.Sources); err != nil {
			return fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	if len(materials) > 0 {
		if err := json.Unmarshal(materials, &t.Materials); err != nil {
			return fmt.Errorf("failed to unmarshal materials: %w", err)
		}
	}
	if len(suggestions) > 0 {
		if err := json.Unmarshal(suggestions, &t.Suggestions); err != nil {
			return fmt.Errorf("failed to unmarshal suggestions: %w", err)
		}
	}
	return nil
}
