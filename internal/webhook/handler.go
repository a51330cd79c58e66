// Package webhook relays Feishu event callbacks to a Coze workflow.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/feishu-coze-relay/internal/coze"
	"github.com/tjfontaine/feishu-coze-relay/internal/exchange"
	"github.com/tjfontaine/feishu-coze-relay/internal/server"
	"github.com/tjfontaine/feishu-coze-relay/internal/storage"
	"github.com/tjfontaine/feishu-coze-relay/internal/tokens"
)

// ChatClient is the slice of the Coze client the relay needs.
type ChatClient interface {
	ChatWithWorkflow(ctx context.Context, userInput string, additional ...coze.Message) *coze.Answer
}

// Handler relays Feishu webhook events to a Coze workflow and acknowledges
// them with the assembled answer.
type Handler struct {
	client  ChatClient
	store   storage.ExchangeStore
	counter *tokens.Counter
}

// NewHandler creates a webhook handler. store may be nil to disable the
// exchange log.
func NewHandler(client ChatClient, store storage.ExchangeStore, counter *tokens.Counter) *Handler {
	return &Handler{
		client:  client,
		store:   store,
		counter: counter,
	}
}

// HandleFeishuEvent is the POST /webhook/feishu endpoint. It answers the
// URL-verification handshake directly and relays everything else through
// HandleEvent.
func (h *Handler) HandleFeishuEvent(w http.ResponseWriter, r *http.Request) {
	logger := slog.Default()
	requestID, _ := r.Context().Value(server.RequestIDKey).(string)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("failed to read webhook body",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: "unable to parse request body",
			Error:   "request_parsing_error",
		})
		return
	}

	if len(bytes.TrimSpace(body)) == 0 {
		server.AddLogField(r.Context(), "error", "empty request body")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: "empty request body",
			Error:   "invalid_request_body",
		})
		return
	}

	var probe challengeProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		logger.Warn("failed to decode webhook body",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: "invalid JSON body",
			Error:   "invalid_json",
		})
		return
	}

	// URL verification is answered before any event handling
	if probe.Challenge != nil && probe.Type == "url_verification" {
		logger.Info("webhook url verification", slog.String("request_id", requestID))
		server.AddLogField(r.Context(), "event_type", "url_verification")
		writeJSON(w, http.StatusOK, ChallengeResponse{Challenge: *probe.Challenge})
		return
	}

	var envelope EventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: "invalid JSON body",
			Error:   "invalid_json",
		})
		return
	}

	ack := h.HandleEvent(r.Context(), &envelope)

	server.AddLogField(r.Context(), "event_type", ack.EventType)
	server.AddLogField(r.Context(), "event_id", ack.EventID)
	if !ack.Success {
		server.AddLogField(r.Context(), "relay_error", ack.Error)
	}

	writeJSON(w, http.StatusOK, ack)
}

// HandleEvent relays one decoded event envelope and builds its ack.
// Message events drive a workflow exchange; every other event type is
// acknowledged without processing.
func (h *Handler) HandleEvent(ctx context.Context, envelope *EventEnvelope) *Ack {
	logger := slog.Default()

	eventType := envelope.Header.EventType
	if eventType == "" {
		eventType = "unknown"
	}
	eventID := envelope.Header.EventID
	if eventID == "" {
		eventID = "unknown"
	}

	ack := &Ack{
		EventType: eventType,
		EventID:   eventID,
	}

	if eventType != EventTypeMessageReceive {
		logger.Info("ignoring webhook event",
			slog.String("event_type", eventType),
			slog.String("event_id", eventID),
		)
		ack.Success = true
		ack.Message = "event received"
		return ack
	}

	text := extractText(envelope.Event.Message)
	senderID := senderIdentity(envelope.Event.Sender)

	if text == "" {
		logger.Warn("message event carried no extractable text",
			slog.String("event_id", eventID),
			slog.String("message_type", envelope.Event.Message.MessageType),
		)
		ack.Error = "unable to extract message content"
		h.record(ctx, ack, senderID, text, nil, 0)
		return ack
	}

	logger.Info("relaying message to workflow",
		slog.String("event_id", eventID),
		slog.String("sender_id", senderID),
	)

	start := time.Now()
	answer := h.client.ChatWithWorkflow(ctx, text)
	duration := time.Since(start)

	if answer.Succeeded {
		ack.Success = true
		ack.AIResponse = &AIResponse{
			Content:        answer.Content,
			ConversationID: answer.ConversationID,
		}
	} else {
		ack.Error = answer.ErrorMessage
	}

	h.record(ctx, ack, senderID, text, answer, duration)

	return ack
}

// record writes the exchange log entry for a message event, best-effort.
func (h *Handler) record(ctx context.Context, ack *Ack, senderID, question string, answer *coze.Answer, duration time.Duration) {
	if h.store == nil {
		return
	}

	ex := &storage.Exchange{
		EventID:      ack.EventID,
		EventType:    ack.EventType,
		SenderID:     senderID,
		Question:     question,
		Status:       storage.StatusFailed,
		ErrorMessage: ack.Error,
		DurationMs:   duration.Milliseconds(),
	}

	if ack.Success {
		ex.Status = storage.StatusSucceeded
	}

	if answer != nil {
		ex.Answer = answer.Content
		ex.ConversationID = answer.ConversationID
		ex.DebugURL = answer.DebugURL
	}

	exchange.Record(ctx, h.store, h.counter, ex)
}

// extractText pulls the user's text out of the message content. Content
// is a JSON-encoded string like {"text":"hi"}; when that decode fails the
// raw content string is used as-is.
func extractText(msg EventMessage) string {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return ""
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}

	return strings.TrimSpace(payload.Text)
}

// senderIdentity picks the most specific sender id available.
func senderIdentity(sender Sender) string {
	id := sender.SenderID.OpenID
	if id == "" {
		id = sender.SenderID.UserID
	}
	if id == "" {
		id = sender.SenderID.UnionID
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
