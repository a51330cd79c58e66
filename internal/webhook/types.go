package webhook

// EventTypeMessageReceive is the Feishu event type for a new inbound message.
const EventTypeMessageReceive = "im.message.receive_v1"

// EventEnvelope is the generic Feishu webhook event wrapper (schema 2.0).
// Only the fields the relay reads are modeled; missing paths decode to
// zero values.
type EventEnvelope struct {
	Schema string       `json:"schema,omitempty"`
	Header EventHeader  `json:"header"`
	Event  MessageEvent `json:"event"`
}

// EventHeader carries the event metadata Feishu attaches to every push.
type EventHeader struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time,omitempty"`
	Token      string `json:"token,omitempty"`
	AppID      string `json:"app_id,omitempty"`
	TenantKey  string `json:"tenant_key,omitempty"`
}

// MessageEvent is the payload of an im.message.receive_v1 event.
type MessageEvent struct {
	Sender  Sender       `json:"sender"`
	Message EventMessage `json:"message"`
}

type Sender struct {
	SenderID   SenderID `json:"sender_id"`
	SenderType string   `json:"sender_type,omitempty"`
}

type SenderID struct {
	UserID  string `json:"user_id"`
	OpenID  string `json:"open_id"`
	UnionID string `json:"union_id"`
}

// EventMessage is the inner message body. Content is a JSON-encoded
// string ({"text":"hi"} for text messages).
type EventMessage struct {
	MessageID   string `json:"message_id"`
	MessageType string `json:"message_type"`
	ChatID      string `json:"chat_id,omitempty"`
	Content     string `json:"content"`
}

// challengeProbe detects the URL-verification handshake. The pointer
// distinguishes an absent challenge from an empty one.
type challengeProbe struct {
	Challenge *string `json:"challenge"`
	Type      string  `json:"type"`
}

// ChallengeResponse echoes the verification challenge back to Feishu.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

// AIResponse is the workflow answer embedded in a successful ack.
type AIResponse struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Ack acknowledges one processed event.
type Ack struct {
	Success    bool        `json:"success"`
	EventType  string      `json:"event_type"`
	EventID    string      `json:"event_id"`
	Message    string      `json:"message,omitempty"`
	AIResponse *AIResponse `json:"ai_response,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ErrorResponse is the envelope for request-level failures.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
