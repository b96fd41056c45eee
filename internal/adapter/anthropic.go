package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/tracecook/tracecook/internal/normalize"
)

// anthropicAdapter implements Adapter for the Anthropic Messages API.
// Grounded on extractor.extractAnthropic (non-streaming tool_use
// extraction) and proxy.reconstructAnthropic (SSE content-block
// accumulation), generalized from "extract tool calls only" to "extract
// every normalized message": text and thinking blocks, not just
// tool_use, become their own normalized Messages so a cooked trace can
// show what the model said, not only what it called.
type anthropicAdapter struct{}

func (anthropicAdapter) Format() Format { return FormatAnthropic }

type anthropicRequest struct {
	Model    string                  `json:"model"`
	Stream   bool                    `json:"stream"`
	System   json.RawMessage         `json:"system,omitempty"`
	Messages []anthropicReqMessage   `json:"messages"`
	Tools    []anthropicReqTool      `json:"tools,omitempty"`
}

type anthropicReqMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicReqTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	// tool_result fields, only present on user-role messages echoing a
	// tool's output back to the model.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

func (anthropicAdapter) ExtractRequest(body []byte) (RequestInfo, error) {
	var req anthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return RequestInfo{}, errUnsupportedBody(FormatAnthropic, err)
	}

	info := RequestInfo{Model: req.Model, Stream: req.Stream}

	if len(req.System) > 0 {
		if text := systemText(req.System); text != "" {
			info.Messages = append(info.Messages, normalize.Message{Role: normalize.RoleSystem, Content: text})
		}
	}

	for _, m := range req.Messages {
		msgs, err := anthropicMessagesFromContent(m.Role, m.Content)
		if err != nil {
			return RequestInfo{}, errUnsupportedBody(FormatAnthropic, err)
		}
		info.Messages = append(info.Messages, msgs...)
	}

	for _, t := range req.Tools {
		info.Tools = append(info.Tools, normalize.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	return info, nil
}

// systemText handles both the plain-string and content-block-array forms
// of Anthropic's "system" field.
func systemText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		text := ""
		for _, b := range blocks {
			text += b.Text
		}
		return text
	}
	return ""
}

// anthropicMessagesFromContent normalizes one request-message's content
// (a plain string or a content-block array) into one or more normalized
// Messages: a tool_result block becomes its own RoleToolResult message,
// thinking blocks become one RoleThinking message, and text plus any
// tool_use blocks collapse into a single message of the turn's role
// (RoleToolUse when it carries tool calls).
func anthropicMessagesFromContent(role string, raw json.RawMessage) ([]normalize.Message, error) {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return []normalize.Message{{Role: roleFromAnthropic(role), Content: plain}}, nil
	}

	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("anthropic message content: %w", err)
	}

	var out []normalize.Message
	var text, thinking string
	var toolCalls []normalize.ToolCall

	for _, b := range blocks {
		switch b.Type {
		case "tool_result":
			content := ""
			if s := extractToolResultText(b.Content); s != "" {
				content = s
			}
			out = append(out, normalize.Message{
				Role:      normalize.RoleToolResult,
				Content:   content,
				ToolUseID: b.ToolUseID,
				IsError:   b.IsError,
			})
		case "tool_use":
			var args map[string]any
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &args)
			}
			toolCalls = append(toolCalls, normalize.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		case "thinking":
			thinking += b.Thinking
		default: // "text" and anything unrecognized collapse into text.
			text += b.Text
		}
	}

	if thinking != "" {
		out = append(out, normalize.Message{Role: normalize.RoleThinking, Content: thinking})
	}
	if text != "" || len(toolCalls) > 0 {
		msgRole := roleFromAnthropic(role)
		if len(toolCalls) > 0 {
			msgRole = normalize.RoleToolUse
		}
		out = append(out, normalize.Message{Role: msgRole, Content: text, ToolCalls: toolCalls})
	}
	if len(out) == 0 {
		// An empty content array is legal but produces no message.
		return nil, nil
	}
	return out, nil
}

func extractToolResultText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		text := ""
		for _, b := range blocks {
			text += b.Text
		}
		return text
	}
	return ""
}

// looksLikeAnthropicBody is a best-effort fallback used only when the
// request path didn't already identify the format (Detect tries the path
// first). Anthropic's Messages API requires "max_tokens" at the top
// level and, unlike OpenAI, keeps any system prompt in a top-level
// "system" field rather than inside "messages".
func looksLikeAnthropicBody(body []byte) bool {
	var probe struct {
		MaxTokens *int            `json:"max_tokens"`
		System    json.RawMessage `json:"system"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.MaxTokens != nil || len(probe.System) > 0
}

func roleFromAnthropic(role string) normalize.Role {
	if role == "assistant" {
		return normalize.RoleAssistant
	}
	return normalize.RoleUser
}

func (a anthropicAdapter) ExtractResponse(body []byte) ([]normalize.Message, error) {
	var resp struct {
		Content []anthropicContentBlock `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errUnsupportedBody(FormatAnthropic, err)
	}
	return anthropicMessagesFromBlocks(resp.Content), nil
}

func anthropicMessagesFromBlocks(blocks []anthropicContentBlock) []normalize.Message {
	var out []normalize.Message
	var text, thinking string
	var toolCalls []normalize.ToolCall

	for _, b := range blocks {
		switch b.Type {
		case "tool_use":
			var args map[string]any
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &args)
			}
			toolCalls = append(toolCalls, normalize.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		case "thinking":
			thinking += b.Thinking
		default:
			text += b.Text
		}
	}

	if thinking != "" {
		out = append(out, normalize.Message{Role: normalize.RoleThinking, Content: thinking})
	}
	if text != "" || len(toolCalls) > 0 {
		role := normalize.RoleAssistant
		if len(toolCalls) > 0 {
			role = normalize.RoleToolUse
		}
		out = append(out, normalize.Message{Role: role, Content: text, ToolCalls: toolCalls})
	}
	return out
}

// ReassembleStream rebuilds the response message(s) from Anthropic SSE
// events, accumulating per-content-block deltas exactly as the teacher's
// reconstructAnthropic does, then running the same block-to-message
// collapse as ExtractResponse.
func (a anthropicAdapter) ReassembleStream(events []SSEEvent) ([]normalize.Message, error) {
	blocks := make(map[int]*anthropicContentBlock)
	var order []int

	for _, evt := range events {
		if evt.Data == "" {
			continue
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(evt.Data), &raw); err != nil {
			continue
		}
		switch unquoteJSONString(raw["type"]) {
		case "content_block_start":
			var start struct {
				Index        int                   `json:"index"`
				ContentBlock anthropicContentBlock `json:"content_block"`
			}
			if err := json.Unmarshal([]byte(evt.Data), &start); err != nil {
				continue
			}
			b := start.ContentBlock
			blocks[start.Index] = &b
			order = append(order, start.Index)

		case "content_block_delta":
			var delta struct {
				Index int `json:"index"`
				Delta struct {
					Type        string `json:"type"`
					Text        string `json:"text,omitempty"`
					Thinking    string `json:"thinking,omitempty"`
					Signature   string `json:"signature,omitempty"`
					PartialJSON string `json:"partial_json,omitempty"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(evt.Data), &delta); err != nil {
				continue
			}
			b, ok := blocks[delta.Index]
			if !ok {
				continue
			}
			switch delta.Delta.Type {
			case "text_delta":
				b.Text += delta.Delta.Text
			case "thinking_delta":
				b.Thinking += delta.Delta.Thinking
			case "signature_delta":
				b.Signature += delta.Delta.Signature
			case "input_json_delta":
				b.Input = append(b.Input, []byte(delta.Delta.PartialJSON)...)
			}
		}
	}

	ordered := make([]anthropicContentBlock, 0, len(order))
	for _, idx := range order {
		if b, ok := blocks[idx]; ok {
			ordered = append(ordered, *b)
		}
	}
	return anthropicMessagesFromBlocks(ordered), nil
}
