// Package coze provides the types and HTTP client for the Coze workflow chat
// API. The client drives one exchange at a time: create a conversation, post
// the workflow request, and decode the SSE-style event stream the endpoint
// answers with.
package coze

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Message is one conversation message sent with a workflow request.
type Message struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Role        string `json:"role"`
	Type        string `json:"type"`
}

// WorkflowRequest represents a workflow chat request.
type WorkflowRequest struct {
	WorkflowID         string         `json:"workflow_id"`
	AppID              string         `json:"app_id"`
	ConversationID     string         `json:"conversation_id,omitempty"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	AdditionalMessages []Message      `json:"additional_messages,omitempty"`
}

// ConversationResponse is the create-conversation response envelope.
type ConversationResponse struct {
	Code int              `json:"code"`
	Msg  string           `json:"msg"`
	Data ConversationData `json:"data"`
}

// ConversationData holds the created conversation.
type ConversationData struct {
	ID            string `json:"id"`
	CreatedAt     int64  `json:"created_at,omitempty"`
	LastSectionID string `json:"last_section_id,omitempty"`
}

// Answer is the terminal result of one workflow exchange. Failures are
// carried in ErrorMessage with Succeeded false; an answer may succeed with
// empty Content when the stream held frames but no content fragments.
type Answer struct {
	Succeeded      bool   `json:"success"`
	Content        string `json:"content,omitempty"`
	DebugURL       string `json:"debug_url,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

func failedAnswer(msg string) *Answer {
	return &Answer{ErrorMessage: msg}
}

// APIError is a structured error returned by the Coze API, either as an HTTP
// error body or embedded in the event stream.
type APIError struct {
	Code   int            `json:"code"`
	Msg    string         `json:"msg"`
	Detail map[string]any `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Msg)
}

// classifyPayload reports whether a decoded JSON object carries an in-band
// error: any object with both "code" and "msg" keys is one, regardless of the
// event name it arrived under. The HTTP error path, the frame inspection in
// Assemble, and the bare-line check in the Decoder all share this so the
// detection rule cannot drift between them.
func classifyPayload(payload map[string]any) *APIError {
	if payload == nil {
		return nil
	}
	code, hasCode := payload["code"]
	msg, hasMsg := payload["msg"]
	if !hasCode || !hasMsg {
		return nil
	}

	apiErr := &APIError{Msg: fmt.Sprint(msg)}
	switch n := code.(type) {
	case float64:
		apiErr.Code = int(n)
	case string:
		if v, err := strconv.Atoi(n); err == nil {
			apiErr.Code = v
		}
	}
	if detail, ok := payload["detail"].(map[string]any); ok {
		apiErr.Detail = detail
	}
	return apiErr
}

// ParseErrorResponse attempts to parse an error body from JSON. It returns
// nil when the body is not JSON or carries no code/msg pair.
func ParseErrorResponse(data []byte) *APIError {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return classifyPayload(payload)
}
