package coze

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Event names the workflow stream is known to emit. Anything else is carried
// through untouched; EventUnknown marks frames seen before any event: line.
const (
	EventUnknown          = "unknown"
	EventMessageCompleted = "conversation.message.completed"
	EventDone             = "done"
	EventError            = "error"
)

const doneMarker = "[DONE]"

// StreamFrame is one decoded unit of the workflow event stream: the declared
// event name plus the JSON object payload of a data: line.
type StreamFrame struct {
	Event string
	Data  map[string]any
}

// Decoder reads the line-oriented event stream produced by the workflow chat
// endpoint. The stream is not strict SSE: every data: line is an independent
// frame, the event name set by the last event: line stays in effect until the
// next one, and error bodies sometimes arrive as bare JSON objects outside
// the event:/data: framing entirely.
//
// A Decoder makes a single forward pass and is used by both call modes: the
// streaming path hands it the live response body, the buffered path wraps the
// fully-read body in a bytes.Reader.
type Decoder struct {
	scanner      *bufio.Scanner
	logger       *slog.Logger
	currentEvent string
	done         bool
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for potentially large frames
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		scanner:      scanner,
		logger:       logger,
		currentEvent: EventUnknown,
	}
}

// Next returns the next frame in the stream. It returns io.EOF when the
// stream ends, either at a [DONE] marker or at end of input. A bare JSON
// error object terminates decoding with the *APIError itself: unlike a
// malformed data: line, which is skipped, a structured in-band error is
// final. After any terminal return, further calls return io.EOF.
func (d *Decoder) Next() (*StreamFrame, error) {
	if d.done {
		return nil, io.EOF
	}

	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			d.currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")

			if strings.TrimSpace(data) == doneMarker {
				d.done = true
				return nil, io.EOF
			}

			var payload map[string]any
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				d.logger.Warn("skipping unparsable stream line",
					slog.String("data", data),
					slog.String("error", err.Error()),
				)
				continue
			}

			return &StreamFrame{Event: d.currentEvent, Data: payload}, nil
		}

		// Error responses occasionally arrive as a bare JSON object outside
		// the SSE framing. A structured {code, msg} body is terminal.
		if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
			var payload map[string]any
			if err := json.Unmarshal([]byte(line), &payload); err != nil {
				continue
			}
			if apiErr := classifyPayload(payload); apiErr != nil {
				d.done = true
				return nil, apiErr
			}
		}
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}
	return nil, io.EOF
}
