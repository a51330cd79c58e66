package coze

import (
	"strings"
	"testing"
)

func assembleString(input string) *Answer {
	return Assemble(NewDecoder(strings.NewReader(input), testLogger()), testLogger())
}

func TestAssembleConcatenatesFragments(t *testing.T) {
	input := strings.Join([]string{
		"event: conversation.message.completed",
		`data: {"content":"{\"output\":\"Hel\"}"}`,
		`data: {"content":"lo"}`,
		"event: done",
		`data: {"debug_url":"http://x","conversation_id":"c1"}`,
		"data: [DONE]",
		"",
	}, "\n")

	answer := assembleString(input)
	if !answer.Succeeded {
		t.Fatalf("expected success, got error %q", answer.ErrorMessage)
	}
	if answer.Content != "Hello" {
		t.Errorf("expected content Hello, got %q", answer.Content)
	}
	if answer.DebugURL != "http://x" {
		t.Errorf("expected debug url http://x, got %q", answer.DebugURL)
	}
	if answer.ConversationID != "c1" {
		t.Errorf("expected conversation id c1, got %q", answer.ConversationID)
	}
	if answer.ErrorMessage != "" {
		t.Errorf("expected no error message on success, got %q", answer.ErrorMessage)
	}
}

func TestAssembleErrorPayloadShortCircuits(t *testing.T) {
	// The error payload arrives under a non-error event name and between two
	// content frames; it still fails the assembly and the trailing frame
	// must not affect the result.
	input := strings.Join([]string{
		"event: conversation.message.completed",
		`data: {"content":"partial"}`,
		`data: {"code":5000,"msg":"boom"}`,
		`data: {"content":"after"}`,
		"",
	}, "\n")

	answer := assembleString(input)
	if answer.Succeeded {
		t.Fatal("expected failure")
	}
	if !strings.Contains(answer.ErrorMessage, "5000") || !strings.Contains(answer.ErrorMessage, "boom") {
		t.Errorf("expected error message with code and msg, got %q", answer.ErrorMessage)
	}
	if answer.Content != "" {
		t.Errorf("expected no content on failure, got %q", answer.Content)
	}
}

func TestAssembleErrorEventName(t *testing.T) {
	input := strings.Join([]string{
		"event: error",
		`data: {"code":700,"msg":"workflow exploded"}`,
		"",
	}, "\n")

	answer := assembleString(input)
	if answer.Succeeded {
		t.Fatal("expected failure")
	}
	if !strings.Contains(answer.ErrorMessage, "700") {
		t.Errorf("expected error code in message, got %q", answer.ErrorMessage)
	}
}

func TestAssembleErrorEventWithoutCodeMsg(t *testing.T) {
	input := strings.Join([]string{
		"event: error",
		`data: {"reason":"upstream gone"}`,
		"",
	}, "\n")

	answer := assembleString(input)
	if answer.Succeeded {
		t.Fatal("expected failure for error-named frame")
	}
	if !strings.Contains(answer.ErrorMessage, "upstream gone") {
		t.Errorf("expected raw payload in message, got %q", answer.ErrorMessage)
	}
}

func TestAssembleEmptyStreamFails(t *testing.T) {
	answer := assembleString("")
	if answer.Succeeded {
		t.Fatal("expected failure for empty stream")
	}
	if !strings.Contains(answer.ErrorMessage, "no valid response") {
		t.Errorf("expected no-valid-response error, got %q", answer.ErrorMessage)
	}
}

func TestAssembleDoneOnlyIsEmptySuccess(t *testing.T) {
	input := strings.Join([]string{
		"event: done",
		`data: {"debug_url":"http://x","conversation_id":"c1"}`,
		"",
	}, "\n")

	answer := assembleString(input)
	if !answer.Succeeded {
		t.Fatalf("expected empty-answer success, got error %q", answer.ErrorMessage)
	}
	if answer.Content != "" {
		t.Errorf("expected absent content, got %q", answer.Content)
	}
	if answer.DebugURL != "http://x" || answer.ConversationID != "c1" {
		t.Errorf("expected done metadata, got %+v", answer)
	}
}

func TestAssembleBareErrorLine(t *testing.T) {
	answer := assembleString(`{"code":4000,"msg":"bad key"}` + "\n")
	if answer.Succeeded {
		t.Fatal("expected failure")
	}
	if !strings.Contains(answer.ErrorMessage, "4000") || !strings.Contains(answer.ErrorMessage, "bad key") {
		t.Errorf("unexpected error message %q", answer.ErrorMessage)
	}
}

func TestAssembleContentVariants(t *testing.T) {
	tests := []struct {
		name        string
		stream      string
		wantContent string
	}{
		{
			name:        "json object without output key stays raw",
			stream:      "event: conversation.message.completed\n" + `data: {"content":"{\"foo\":1}"}` + "\n",
			wantContent: `{"foo":1}`,
		},
		{
			name:        "json-looking but invalid stays raw",
			stream:      "event: conversation.message.completed\n" + `data: {"content":"{oops"}` + "\n",
			wantContent: "{oops",
		},
		{
			name:        "non-string content is stringified",
			stream:      "event: conversation.message.completed\n" + `data: {"content":42}` + "\n",
			wantContent: "42",
		},
		{
			name:        "missing content contributes nothing",
			stream:      "event: conversation.message.completed\n" + `data: {"x":1}` + "\n",
			wantContent: "",
		},
		{
			name:        "empty content contributes nothing",
			stream:      "event: conversation.message.completed\n" + `data: {"content":""}` + "\n",
			wantContent: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := assembleString(tt.stream)
			if !answer.Succeeded {
				t.Fatalf("expected success, got error %q", answer.ErrorMessage)
			}
			if answer.Content != tt.wantContent {
				t.Errorf("expected content %q, got %q", tt.wantContent, answer.Content)
			}
		})
	}
}

func TestAssembleRecordsUnknownEvents(t *testing.T) {
	// Frames with unrecognized names count as seen: the stream is not
	// empty, so this is an empty-answer success rather than a failure.
	input := strings.Join([]string{
		"event: conversation.chat.in_progress",
		`data: {"status":"in_progress"}`,
		"",
	}, "\n")

	answer := assembleString(input)
	if !answer.Succeeded {
		t.Fatalf("expected success, got error %q", answer.ErrorMessage)
	}
	if answer.Content != "" {
		t.Errorf("expected no content, got %q", answer.Content)
	}
}
