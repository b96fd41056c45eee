package adapter

import (
	"strings"
	"testing"
)

func sseStream(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestParseSSEStreamAnthropicFormat(t *testing.T) {
	r := sseStream(
		"event: content_block_start",
		`data: {"type":"content_block_start","index":0}`,
		"",
		"event: content_block_delta",
		`data: {"type":"content_block_delta","index":0}`,
		"",
		"event: message_stop",
		`data: {"type":"message_stop"}`,
		"",
	)
	events, err := ParseSSEStream(r)
	if err != nil {
		t.Fatalf("ParseSSEStream: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Event != "content_block_start" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
}

func TestParseSSEStreamOpenAIFormat(t *testing.T) {
	r := sseStream(
		`data: {"choices":[{"delta":{"content":"hi"}}]}`,
		"",
		"data: [DONE]",
		"",
	)
	events, err := ParseSSEStream(r)
	if err != nil {
		t.Fatalf("ParseSSEStream: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Data != "[DONE]" {
		t.Errorf("expected terminator [DONE], got %q", events[1].Data)
	}
}

func TestParseSSEStreamSkipsPing(t *testing.T) {
	r := sseStream(
		"event: ping",
		`data: {"type":"ping"}`,
		"",
		"event: message_stop",
		`data: {"type":"message_stop"}`,
		"",
	)
	events, err := ParseSSEStream(r)
	if err != nil {
		t.Fatalf("ParseSSEStream: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected ping to be skipped, got %d events", len(events))
	}
}

func TestParseSSEStreamNoTerminatorEndsAtEOF(t *testing.T) {
	// Gemini streams have no explicit terminator event.
	r := sseStream(
		`data: {"candidates":[{"content":{"parts":[{"text":"a"}]}}]}`,
		"",
		`data: {"candidates":[{"content":{"parts":[{"text":"b"}]},"finishReason":"STOP"}]}`,
		"",
	)
	events, err := ParseSSEStream(r)
	if err != nil {
		t.Fatalf("ParseSSEStream: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}
