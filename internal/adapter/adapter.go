// Package adapter translates between provider wire formats (OpenAI-
// compatible Chat Completions, Anthropic Messages, Gemini generateContent)
// and the provider-neutral types in internal/normalize.
//
// Each adapter implements the same small capability set — detect, extract
// request messages/tools, extract a non-streaming response, reassemble a
// streamed response — so internal/cook can treat all three uniformly via
// a Format-keyed registry rather than a type switch scattered across the
// pipeline. This mirrors the tagged-dispatch shape of the teacher's own
// extractor.Extract(body, apiType), generalized from "extract tool calls"
// to "extract normalized messages and tools".
package adapter

import (
	"fmt"
	"strings"

	"github.com/tracecook/tracecook/internal/normalize"
)

// Format identifies which provider wire format a request/response pair
// uses. Unlike the teacher's extractor.APIType, Gemini is a first-class
// member — spec.md names it as a required third adapter.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
	FormatGemini    Format = "gemini"
	FormatUnknown   Format = "unknown"
)

// Adapter is the capability set every provider format implements.
type Adapter interface {
	Format() Format

	// ExtractRequest parses a request body into the messages it sent,
	// the tools it offered, the model name, and whether it asked for a
	// streamed response.
	ExtractRequest(body []byte) (RequestInfo, error)

	// ExtractResponse parses a complete, non-streaming response body
	// into the messages it produced.
	ExtractResponse(body []byte) ([]normalize.Message, error)

	// ReassembleStream rebuilds the messages a streamed response
	// produced from its ordered SSE events.
	ReassembleStream(events []SSEEvent) ([]normalize.Message, error)
}

// RequestInfo is what ExtractRequest pulls out of a request body.
type RequestInfo struct {
	Model    string
	Stream   bool
	Messages []normalize.Message
	Tools    []normalize.Tool
}

var registry = map[Format]Adapter{
	FormatOpenAI:    openAIAdapter{},
	FormatAnthropic: anthropicAdapter{},
	FormatGemini:    geminiAdapter{},
}

// For looks up the Adapter for a Format. ok is false for FormatUnknown or
// any format without a registered adapter.
func For(f Format) (Adapter, bool) {
	a, ok := registry[f]
	return a, ok
}

// Detect sniffs the wire format of a captured exchange from its URL path
// and, failing that, the shape of its request body. Path-based detection
// is preferred — it is unambiguous — and is the same signal the teacher's
// router.detectAPIType used, generalized to also recognize Gemini's
// "{model}:generateContent"/"{model}:streamGenerateContent" path suffix.
func Detect(urlPath string, requestBody []byte) Format {
	switch {
	case strings.Contains(urlPath, "/v1/messages"):
		return FormatAnthropic
	case strings.Contains(urlPath, "/chat/completions"):
		return FormatOpenAI
	case strings.Contains(urlPath, ":generateContent"), strings.Contains(urlPath, ":streamGenerateContent"):
		return FormatGemini
	}

	// Fall back to body sniffing: each format has a telltale top-level
	// field shape even without a recognizable path (a capture record
	// replayed out of context, a reverse-proxied alias route, etc).
	if looksLikeAnthropicBody(requestBody) {
		return FormatAnthropic
	}
	if looksLikeGeminiBody(requestBody) {
		return FormatGemini
	}
	if looksLikeOpenAIBody(requestBody) {
		return FormatOpenAI
	}
	return FormatUnknown
}

// GeminiStreamFromPath reports whether a Gemini request path is the
// streaming variant. Unlike OpenAI and Anthropic, Gemini signals
// streaming in the URL ("...:streamGenerateContent") rather than a
// "stream" body field, so RequestInfo.Stream from geminiAdapter.
// ExtractRequest is always false — callers that know the format is
// Gemini should override it with this instead.
func GeminiStreamFromPath(urlPath string) bool {
	return strings.Contains(urlPath, ":streamGenerateContent")
}

func errUnsupportedBody(format Format, err error) error {
	return fmt.Errorf("adapter %s: %w", format, err)
}
