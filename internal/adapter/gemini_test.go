package adapter

import "testing"

func TestGeminiExtractRequest(t *testing.T) {
	a := geminiAdapter{}
	body := []byte(`{
		"systemInstruction": {"parts":[{"text":"be helpful"}]},
		"contents": [{"role":"user","parts":[{"text":"hi"}]}],
		"tools": [{"functionDeclarations":[{"name":"search","parameters":{"type":"object"}}]}]
	}`)
	info, err := a.ExtractRequest(body)
	if err != nil {
		t.Fatalf("ExtractRequest: %v", err)
	}
	if len(info.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d: %+v", len(info.Messages), info.Messages)
	}
	if info.Messages[0].Role != "system" || info.Messages[0].Content != "be helpful" {
		t.Errorf("system instruction not extracted: %+v", info.Messages[0])
	}
	if len(info.Tools) != 1 || info.Tools[0].Name != "search" {
		t.Errorf("tool not extracted: %+v", info.Tools)
	}
}

func TestGeminiExtractResponseFunctionCall(t *testing.T) {
	a := geminiAdapter{}
	body := []byte(`{
		"candidates": [{
			"content": {"role":"model","parts":[{"functionCall":{"name":"exec","args":{"cmd":"ls"}}}]},
			"finishReason": "STOP"
		}]
	}`)
	msgs, err := a.ExtractResponse(body)
	if err != nil {
		t.Fatalf("ExtractResponse: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != "tool_use" {
		t.Fatalf("expected a tool_use message, got %+v", msgs)
	}
	if msgs[0].ToolCalls[0].Arguments["cmd"] != "ls" {
		t.Errorf("function call args not extracted: %+v", msgs[0].ToolCalls[0])
	}
}

func TestGeminiReassembleStream(t *testing.T) {
	a := geminiAdapter{}
	events := []SSEEvent{
		{Data: `{"candidates":[{"content":{"role":"model","parts":[{"text":"hel"}]}}]}`},
		{Data: `{"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP"}]}`},
	}
	msgs, err := a.ReassembleStream(events)
	if err != nil {
		t.Fatalf("ReassembleStream: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("expected accumulated text, got %+v", msgs)
	}
}

func TestGeminiStreamFromPath(t *testing.T) {
	if !GeminiStreamFromPath("/v1beta/models/gemini-pro:streamGenerateContent?alt=sse") {
		t.Error("expected streaming path to be detected")
	}
	if GeminiStreamFromPath("/v1beta/models/gemini-pro:generateContent") {
		t.Error("expected non-streaming path to not be detected as streaming")
	}
}
