package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store keeps a local transcript of finished exchanges so the terminal
// client has history across runs without talking to the server.
type Store struct {
	db *sql.DB
}

// Exchange is one locally recorded question/answer pair.
type Exchange struct {
	SessionID uuid.UUID
	Title     string
	Question  string
	Answer    string
	CreatedAt time.Time
}

// Open opens (and initializes) the transcript database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping transcript database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id, created_at);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize transcript schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveExchange appends one finished exchange to the transcript.
func (s *Store) SaveExchange(ctx context.Context, ex Exchange) error {
	query := `
		INSERT INTO exchanges (session_id, title, question, answer, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	createdAt := ex.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		ex.SessionID.String(),
		ex.Title,
		ex.Question,
		ex.Answer,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save exchange: %w", err)
	}
	return nil
}

// Recent returns the most recent exchanges, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT session_id, title, question, answer, created_at
		FROM exchanges
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		var sessionID, createdAt string
		if err := rows.Scan(&sessionID, &ex.Title, &ex.Question, &ex.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		if id, err := uuid.Parse(sessionID); err == nil {
			ex.SessionID = id
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			ex.CreatedAt = t
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// LastSession returns the session ID of the newest exchange, or uuid.Nil
// when the transcript is empty.
func (s *Store) LastSession(ctx context.Context) (uuid.UUID, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM exchanges ORDER BY id DESC LIMIT 1`).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load last session: %w", err)
	}
	return uuid.Parse(sessionID)
}
