package adapter

import (
	"encoding/json"

	"github.com/tracecook/tracecook/internal/normalize"
)

// openAIAdapter implements Adapter for the OpenAI-compatible Chat
// Completions API (OpenAI itself, and the Moonshot/Qwen/MiniMax/Zhipu
// family of compatible providers). Grounded on extractor.extractOpenAI
// (non-streaming tool_calls extraction, including the
// string-vs-object arguments quirk) and proxy.reconstructOpenAI
// (per-index tool_call accumulation across delta chunks).
type openAIAdapter struct{}

func (openAIAdapter) Format() Format { return FormatOpenAI }

type openAIRequest struct {
	Model    string            `json:"model"`
	Stream   bool              `json:"stream"`
	Messages []openAIReqMessage `json:"messages"`
	Tools    []openAIReqTool   `json:"tools,omitempty"`
}

type openAIReqMessage struct {
	Role       string           `json:"role"`
	Content    json.RawMessage  `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIReqTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAIToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (openAIAdapter) ExtractRequest(body []byte) (RequestInfo, error) {
	var req openAIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return RequestInfo{}, errUnsupportedBody(FormatOpenAI, err)
	}

	info := RequestInfo{Model: req.Model, Stream: req.Stream}

	for _, m := range req.Messages {
		info.Messages = append(info.Messages, openAIMessageToNormalized(m))
	}
	for _, t := range req.Tools {
		info.Tools = append(info.Tools, normalize.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return info, nil
}

func openAIMessageToNormalized(m openAIReqMessage) normalize.Message {
	if m.Role == "tool" {
		return normalize.Message{
			Role:      normalize.RoleToolResult,
			Content:   contentText(m.Content),
			ToolUseID: m.ToolCallID,
		}
	}

	nm := normalize.Message{Role: openAIRole(m.Role), Content: contentText(m.Content)}
	for _, tc := range m.ToolCalls {
		_, args := parseToolArguments(tc.Function.Arguments)
		nm.ToolCalls = append(nm.ToolCalls, normalize.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	if len(nm.ToolCalls) > 0 {
		nm.Role = normalize.RoleToolUse
	}
	return nm
}

func openAIRole(role string) normalize.Role {
	switch role {
	case "system", "developer":
		return normalize.RoleSystem
	case "assistant":
		return normalize.RoleAssistant
	default:
		return normalize.RoleUser
	}
}

// contentText handles both the plain-string and the multimodal
// content-part-array forms of OpenAI's "content" field, concatenating
// any text parts of the latter.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		text := ""
		for _, p := range parts {
			if p.Type == "text" {
				text += p.Text
			}
		}
		return text
	}
	return ""
}

func (a openAIAdapter) ExtractResponse(body []byte) ([]normalize.Message, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content   json.RawMessage  `json:"content"`
				ToolCalls []openAIToolCall `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errUnsupportedBody(FormatOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	msg := resp.Choices[0].Message

	nm := normalize.Message{Role: normalize.RoleAssistant, Content: contentText(msg.Content)}
	for _, tc := range msg.ToolCalls {
		_, args := parseToolArguments(tc.Function.Arguments)
		nm.ToolCalls = append(nm.ToolCalls, normalize.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	if len(nm.ToolCalls) > 0 {
		nm.Role = normalize.RoleToolUse
	}
	if nm.Content == "" && len(nm.ToolCalls) == 0 {
		return nil, nil
	}
	return []normalize.Message{nm}, nil
}

// ReassembleStream accumulates tool_calls by index across delta chunks
// and concatenates content deltas, exactly as the teacher's
// reconstructOpenAI, generalized to also keep the assistant's text
// content (the teacher discarded it — it only needed tool calls for
// rule evaluation).
func (a openAIAdapter) ReassembleStream(events []SSEEvent) ([]normalize.Message, error) {
	type accum struct {
		id, name, args string
	}
	calls := make(map[int]*accum)
	var order []int
	var content string

	for _, evt := range events {
		if evt.Data == "" || evt.Data == "[DONE]" {
			continue
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content   *string `json:"content"`
					ToolCalls []struct {
						Index    int     `json:"index"`
						ID       string  `json:"id,omitempty"`
						Function *struct {
							Name      string `json:"name,omitempty"`
							Arguments string `json:"arguments,omitempty"`
						} `json:"function,omitempty"`
					} `json:"tool_calls,omitempty"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(evt.Data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != nil {
			content += *delta.Content
		}
		for _, tc := range delta.ToolCalls {
			a, ok := calls[tc.Index]
			if !ok {
				a = &accum{}
				calls[tc.Index] = a
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				a.id = tc.ID
			}
			if tc.Function != nil {
				if tc.Function.Name != "" {
					a.name = tc.Function.Name
				}
				a.args += tc.Function.Arguments
			}
		}
	}

	nm := normalize.Message{Role: normalize.RoleAssistant, Content: content}
	for _, idx := range order {
		a := calls[idx]
		_, args := parseToolArguments(json.RawMessage(a.args))
		nm.ToolCalls = append(nm.ToolCalls, normalize.ToolCall{ID: a.id, Name: a.name, Arguments: args})
	}
	if len(nm.ToolCalls) > 0 {
		nm.Role = normalize.RoleToolUse
	}
	if nm.Content == "" && len(nm.ToolCalls) == 0 {
		return nil, nil
	}
	return []normalize.Message{nm}, nil
}

// looksLikeOpenAIBody is the fallback catch-all: Detect already ruled out
// Anthropic (no top-level "max_tokens"/"system") and Gemini (no top-level
// "contents") shapes by the time this runs, so any body with a
// "messages" array is treated as OpenAI-compatible.
func looksLikeOpenAIBody(body []byte) bool {
	var probe struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Messages != nil
}
