package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/feishu-coze-relay/internal/storage"
)

// Store is a SQLite implementation of ExchangeStore
type Store struct {
	db *sql.DB
}

// Ensure Store implements ExchangeStore
var _ storage.ExchangeStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			sender_id TEXT,
			question TEXT NOT NULL,
			answer TEXT,
			conversation_id TEXT,
			debug_url TEXT,
			status TEXT NOT NULL,
			error_message TEXT,
			question_tokens INTEGER NOT NULL DEFAULT 0,
			answer_tokens INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_event ON exchanges(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_status ON exchanges(status)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveExchange(ctx context.Context, ex *storage.Exchange) error {
	ex.CreatedAt = time.Now()

	query := `INSERT INTO exchanges (id, request_id, event_id, event_type, sender_id,
	          question, answer, conversation_id, debug_url, status, error_message,
	          question_tokens, answer_tokens, duration_ms, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ex.ID, ex.RequestID, ex.EventID, ex.EventType, ex.SenderID,
		ex.Question, ex.Answer, ex.ConversationID, ex.DebugURL, ex.Status,
		ex.ErrorMessage, ex.QuestionTokens, ex.AnswerTokens, ex.DurationMs,
		ex.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save exchange: %w", err)
	}

	return nil
}

func (s *Store) GetExchange(ctx context.Context, id string) (*storage.Exchange, error) {
	query := `SELECT id, request_id, event_id, event_type, sender_id, question, answer,
	          conversation_id, debug_url, status, error_message, question_tokens,
	          answer_tokens, duration_ms, created_at
	          FROM exchanges WHERE id = ?`

	var ex storage.Exchange

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ex.ID, &ex.RequestID, &ex.EventID, &ex.EventType, &ex.SenderID,
		&ex.Question, &ex.Answer, &ex.ConversationID, &ex.DebugURL, &ex.Status,
		&ex.ErrorMessage, &ex.QuestionTokens, &ex.AnswerTokens, &ex.DurationMs,
		&ex.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("exchange %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}

	return &ex, nil
}

func (s *Store) ListExchanges(ctx context.Context, opts storage.ListOptions) ([]*storage.Exchange, error) {
	query := `SELECT id, request_id, event_id, event_type, sender_id, question, answer,
	          conversation_id, debug_url, status, error_message, question_tokens,
	          answer_tokens, duration_ms, created_at
	          FROM exchanges
	          ORDER BY created_at DESC
	          LIMIT ? OFFSET ?`

	limit := opts.Limit
	if limit == 0 {
		limit = 100 // default limit
	}

	rows, err := s.db.QueryContext(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*storage.Exchange
	for rows.Next() {
		var ex storage.Exchange

		if err := rows.Scan(
			&ex.ID, &ex.RequestID, &ex.EventID, &ex.EventType, &ex.SenderID,
			&ex.Question, &ex.Answer, &ex.ConversationID, &ex.DebugURL, &ex.Status,
			&ex.ErrorMessage, &ex.QuestionTokens, &ex.AnswerTokens, &ex.DurationMs,
			&ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}

		exchanges = append(exchanges, &ex)
	}

	return exchanges, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
