package coze

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Assemble drains the decoder and folds its frames into a single Answer, in
// arrival order. An in-band error anywhere in the stream short-circuits the
// fold; a stream that held frames but produced no content fragments is a
// valid empty answer, while a stream with no frames at all is a failure.
func Assemble(d *Decoder, logger *slog.Logger) *Answer {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		parts          []string
		sawFrames      bool
		debugURL       string
		conversationID string
	)

	for {
		frame, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				logger.Error("coze api error",
					slog.Int("code", apiErr.Code),
					slog.String("msg", apiErr.Msg),
				)
				return failedAnswer(apiErr.Error())
			}
			return failedAnswer(fmt.Sprintf("failed to parse stream response: %v", err))
		}

		sawFrames = true

		if apiErr := frameError(frame); apiErr != nil {
			logger.Error("coze api error",
				slog.Int("code", apiErr.Code),
				slog.String("msg", apiErr.Msg),
			)
			return failedAnswer(apiErr.Error())
		}

		switch frame.Event {
		case EventMessageCompleted:
			if part, ok := contentFragment(frame.Data); ok {
				parts = append(parts, part)
			}
		case EventDone:
			if v, ok := frame.Data["debug_url"].(string); ok {
				debugURL = v
			}
			if v, ok := frame.Data["conversation_id"].(string); ok {
				conversationID = v
			}
		default:
			logger.Debug("workflow stream event", slog.String("event", frame.Event))
		}
	}

	if len(parts) == 0 && !sawFrames {
		return failedAnswer("no valid response received, check coze configuration")
	}

	return &Answer{
		Succeeded:      true,
		Content:        strings.Join(parts, ""),
		DebugURL:       debugURL,
		ConversationID: conversationID,
	}
}

// frameError classifies a frame as an in-band error. A payload with code and
// msg is an error whatever its event name; a frame named "error" without them
// still fails the exchange, carrying the raw payload.
func frameError(frame *StreamFrame) *APIError {
	if apiErr := classifyPayload(frame.Data); apiErr != nil {
		return apiErr
	}
	if frame.Event == EventError {
		raw, _ := json.Marshal(frame.Data)
		return &APIError{Code: -1, Msg: string(raw)}
	}
	return nil
}

// contentFragment extracts the text contribution of a message-completed
// frame. Content that is itself a JSON-encoded object is unwrapped to its
// "output" value when one exists; anything else is carried verbatim. Missing
// or empty content contributes nothing.
func contentFragment(payload map[string]any) (string, bool) {
	content, ok := payload["content"]
	if !ok || content == nil || content == "" {
		return "", false
	}

	s, isString := content.(string)
	if !isString {
		return fmt.Sprint(content), true
	}

	if strings.HasPrefix(s, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			if out, exists := obj["output"]; exists {
				return fmt.Sprint(out), true
			}
		}
	}
	return s, true
}
