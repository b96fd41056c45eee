package adapter

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// SSEEvent is one Server-Sent Event: an optional Anthropic-style "event:"
// line and its "data:" payload.
//
//	Anthropic: "event: <type>\ndata: <json>\n\n"
//	OpenAI:    "data: <json>\n\n", stream ends with "data: [DONE]"
//	Gemini:    "data: <json>\n\n", stream ends on the candidate carrying a
//	           non-empty finishReason
type SSEEvent struct {
	Event string `json:"event,omitempty"`
	Data  string `json:"data"`
}

// ParseSSEStream reads SSE events from reader until EOF or a recognized
// terminator ("event: message_stop" or "data: [DONE]"). Gemini has no
// explicit terminator event — its stream simply ends at EOF, which this
// function also handles by returning whatever was parsed up to that
// point.
//
// Grounded on the teacher's proxy.parseSSEStream, unchanged in algorithm:
// scan lines, accumulate event/data across a blank-line-delimited event,
// skip "ping" events (Anthropic keep-alives).
func ParseSSEStream(reader io.Reader) ([]SSEEvent, error) {
	var events []SSEEvent
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if currentData != "" {
				if currentEvent != "ping" {
					events = append(events, SSEEvent{Event: currentEvent, Data: currentData})
				}
				if currentEvent == "message_stop" || currentData == "[DONE]" {
					break
				}
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if currentData == "" {
				currentData = data
			} else {
				currentData += "\n" + data
			}
			continue
		}
		// Comment lines (":") and anything else are ignored.
	}

	if err := scanner.Err(); err != nil {
		return events, err
	}
	return events, nil
}

// unquoteJSONString extracts the Go string value of a raw JSON string
// token, returning "" for anything that isn't a valid JSON string.
func unquoteJSONString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
