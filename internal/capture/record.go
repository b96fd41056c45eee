// Package capture implements the append-only line-delimited JSON sink that
// the proxy writes to, and the reader the cook pipeline reads back from.
//
// A Record is only ever appended after the upstream exchange has fully
// terminated — normally or with an error. Partial records are never
// written, and once appended a record is never rewritten.
package capture

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Record is one captured client/upstream exchange.
//
// Schema:
//
//	{"id":"...","timestamp":"...","request":{...},"response":{...},
//	 "duration_ms":123,"error":"..."}
//
// "response" is omitted when no response arrived, and "error" when the
// exchange succeeded.
type Record struct {
	ID         string    `json:"id"`
	Timestamp  string    `json:"timestamp"` // RFC3339, UTC, fixed millisecond precision
	Request    Message   `json:"request"`
	Response   *Message  `json:"response,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Message is the request or response half of a captured exchange.
//
// Body holds decoded JSON when the content-type is application/json;
// otherwise it holds a Body64 envelope with the raw bytes base64-encoded.
// For streamed responses that were not reassembled at capture time, Body
// holds the raw ordered list of SSE events instead of a single logical
// JSON value — see internal/cook for how cook tells the two apart.
type Message struct {
	URL     string              `json:"url,omitempty"`
	Method  string              `json:"method,omitempty"`
	Status  int                 `json:"status,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    json.RawMessage     `json:"body,omitempty"`
}

// rawBody is the envelope used when a body is not JSON.
type rawBody struct {
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
}

// EncodeRawBody wraps non-JSON bytes for storage in a Message.Body field.
func EncodeRawBody(b []byte) json.RawMessage {
	data, err := json.Marshal(rawBody{
		Encoding: "base64",
		Data:     base64.StdEncoding.EncodeToString(b),
	})
	if err != nil {
		// json.Marshal on a struct of two strings cannot fail.
		panic(err)
	}
	return data
}

// DecodeRawBody reverses EncodeRawBody. ok is false if body isn't a
// base64 envelope (i.e. it's already-decoded JSON).
func DecodeRawBody(body json.RawMessage) (data []byte, ok bool) {
	var rb rawBody
	if err := json.Unmarshal(body, &rb); err != nil {
		return nil, false
	}
	if rb.Encoding != "base64" {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(rb.Data)
	if err != nil {
		return nil, false
	}
	return decoded, true
}

// IsJSONContentType reports whether a Content-Type header value denotes a
// JSON body, matching what the proxy uses to decide whether to decode-and-
// store a body as structured JSON or as a base64 envelope.
func IsJSONContentType(contentType string) bool {
	for i := 0; i < len(contentType); i++ {
		if contentType[i] == ';' {
			contentType = contentType[:i]
			break
		}
	}
	switch strings.TrimSpace(contentType) {
	case "application/json", "text/json":
		return true
	default:
		return false
	}
}
