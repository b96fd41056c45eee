package adapter

import (
	"encoding/json"

	"github.com/tracecook/tracecook/internal/normalize"
)

// geminiAdapter implements Adapter for Google's Gemini generateContent /
// streamGenerateContent API.
//
// The request/response skeleton (contents/parts, systemInstruction,
// role "model" for assistant turns) is grounded on
// Howard-nolan-llmrouter's provider.GoogleProvider — the teacher has no
// Gemini support at all. That example does not implement tool calling,
// so the functionCall/functionResponse part mapping below follows
// Gemini's documented wire shape directly, in the same structs-plus-
// explicit-translation style as toGeminiRequest.
type geminiAdapter struct{}

func (geminiAdapter) Format() Format { return FormatGemini }

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResult `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

func (geminiAdapter) ExtractRequest(body []byte) (RequestInfo, error) {
	var req geminiRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return RequestInfo{}, errUnsupportedBody(FormatGemini, err)
	}

	var info RequestInfo
	info.Stream = false // GeminiStreamFromPath derives this from the URL path (":streamGenerateContent"); callers set it.

	if req.SystemInstruction != nil {
		if text := partsText(req.SystemInstruction.Parts); text != "" {
			info.Messages = append(info.Messages, normalize.Message{Role: normalize.RoleSystem, Content: text})
		}
	}
	for _, c := range req.Contents {
		info.Messages = append(info.Messages, geminiContentToMessages(c)...)
	}
	for _, t := range req.Tools {
		for _, fn := range t.FunctionDeclarations {
			info.Tools = append(info.Tools, normalize.Tool{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			})
		}
	}
	// Provider-hosted tools (googleSearch) carry no function declaration;
	// each is recorded as a server-side tool named after its key.
	var hosted struct {
		Tools []struct {
			GoogleSearch json.RawMessage `json:"googleSearch"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(body, &hosted); err == nil {
		for _, t := range hosted.Tools {
			if len(t.GoogleSearch) > 0 {
				info.Tools = append(info.Tools, normalize.Tool{Name: "googleSearch", IsServerSide: true})
			}
		}
	}
	return info, nil
}

func partsText(parts []geminiPart) string {
	text := ""
	for _, p := range parts {
		text += p.Text
	}
	return text
}

// geminiContentToMessages maps one Gemini "contents" entry onto
// normalized messages: a functionCall part becomes a tool_use message, a
// functionResponse part becomes a tool_result message, and any plain
// text collapses into one message of the mapped role.
func geminiContentToMessages(c geminiContent) []normalize.Message {
	role := normalize.RoleUser
	if c.Role == "model" {
		role = normalize.RoleAssistant
	}

	var out []normalize.Message
	var text string
	var toolCalls []normalize.ToolCall

	for _, p := range c.Parts {
		switch {
		case p.FunctionCall != nil:
			toolCalls = append(toolCalls, normalize.ToolCall{Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Args})
		case p.FunctionResponse != nil:
			b, _ := json.Marshal(p.FunctionResponse.Response)
			out = append(out, normalize.Message{Role: normalize.RoleToolResult, Content: string(b)})
		default:
			text += p.Text
		}
	}

	if text != "" || len(toolCalls) > 0 {
		msgRole := role
		if len(toolCalls) > 0 {
			msgRole = normalize.RoleToolUse
		}
		out = append(out, normalize.Message{Role: msgRole, Content: text, ToolCalls: toolCalls})
	}
	return out
}

func (a geminiAdapter) ExtractResponse(body []byte) ([]normalize.Message, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errUnsupportedBody(FormatGemini, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, nil
	}
	return geminiContentToMessages(resp.Candidates[0].Content), nil
}

// ReassembleStream concatenates text parts and collects functionCall
// parts across Gemini's streamGenerateContent chunks. Unlike OpenAI and
// Anthropic, Gemini has no per-call index in streamed functionCall
// parts: every functionCall part in every chunk is appended as its own
// complete tool call, and parts are not merged across chunks.
func (a geminiAdapter) ReassembleStream(events []SSEEvent) ([]normalize.Message, error) {
	var text string
	var toolCalls []normalize.ToolCall

	for _, evt := range events {
		if evt.Data == "" {
			continue
		}
		var resp geminiResponse
		if err := json.Unmarshal([]byte(evt.Data), &resp); err != nil {
			continue
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		for _, p := range resp.Candidates[0].Content.Parts {
			switch {
			case p.FunctionCall != nil:
				toolCalls = append(toolCalls, normalize.ToolCall{Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Args})
			default:
				text += p.Text
			}
		}
	}

	role := normalize.RoleAssistant
	if len(toolCalls) > 0 {
		role = normalize.RoleToolUse
	}
	if text == "" && len(toolCalls) == 0 {
		return nil, nil
	}
	return []normalize.Message{{Role: role, Content: text, ToolCalls: toolCalls}}, nil
}

func looksLikeGeminiBody(body []byte) bool {
	var probe struct {
		Contents []json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Contents != nil
}
