// Package storage defines the exchange log model and store interface.
package storage

import (
	"context"
	"time"
)

// Exchange statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Exchange is one relayed webhook exchange: the inbound message, the
// workflow outcome, and usage metadata. Records are written best-effort
// after the acknowledgement is built and are never read back on the
// request path.
type Exchange struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id,omitempty"`
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	SenderID       string    `json:"sender_id,omitempty"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	DebugURL       string    `json:"debug_url,omitempty"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	QuestionTokens int       `json:"question_tokens"`
	AnswerTokens   int       `json:"answer_tokens"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListOptions defines options for listing exchanges.
type ListOptions struct {
	Limit  int
	Offset int
}

// ExchangeStore defines the interface for exchange log storage.
type ExchangeStore interface {
	// SaveExchange persists one exchange record
	SaveExchange(ctx context.Context, ex *Exchange) error

	// GetExchange retrieves an exchange by ID
	GetExchange(ctx context.Context, id string) (*Exchange, error)

	// ListExchanges lists exchanges newest-first with pagination
	ListExchanges(ctx context.Context, opts ListOptions) ([]*Exchange, error)

	// Close closes the storage connection
	Close() error
}
