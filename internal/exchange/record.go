// Package exchange persists relayed webhook exchanges.
package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/feishu-coze-relay/internal/server"
	"github.com/tjfontaine/feishu-coze-relay/internal/storage"
	"github.com/tjfontaine/feishu-coze-relay/internal/tokens"
)

// Record stores one completed exchange in the store, filling in the record
// id, request id, and token estimates. It best-effort logs on failure
// without failing the request path.
func Record(ctx context.Context, store storage.ExchangeStore, counter *tokens.Counter, ex *storage.Exchange) string {
	if store == nil || ex == nil {
		return ""
	}

	logger := slog.Default()
	// Decouple persistence from the request lifecycle so a client
	// disconnect does not drop the record; still enforce a short timeout.
	persistCtx, cancel := buildPersistenceContext(ctx, 5*time.Second)
	defer cancel()

	if ex.ID == "" {
		ex.ID = "exch_" + uuid.New().String()
	}

	if reqID, ok := persistCtx.Value(server.RequestIDKey).(string); ok && reqID != "" {
		ex.RequestID = reqID
	}

	if counter != nil {
		ex.QuestionTokens = counter.Count(ex.Question)
		ex.AnswerTokens = counter.Count(ex.Answer)
	}

	if err := store.SaveExchange(persistCtx, ex); err != nil {
		logger.Error("failed to save exchange",
			slog.String("exchange_id", ex.ID),
			slog.String("event_id", ex.EventID),
			slog.String("error", err.Error()),
		)
	}

	return ex.ID
}

func buildPersistenceContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	base := context.Background()
	if reqID, ok := ctx.Value(server.RequestIDKey).(string); ok && reqID != "" {
		base = context.WithValue(base, server.RequestIDKey, reqID)
	}

	if timeout <= 0 {
		return context.WithCancel(base)
	}

	return context.WithTimeout(base, timeout)
}
