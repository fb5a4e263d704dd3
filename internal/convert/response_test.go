package convert

import (
	"encoding/json"
	"testing"
)

func TestConvertResponseBasicText(t *testing.T) {
	resp := OAIResponse{
		ID: "chatcmpl-1",
		Choices: []OAIChoice{
			{Message: OAIRespMessage{Content: "hello"}, FinishReason: "stop"},
		},
		Usage: OAIUsage{PromptTokens: 10, CompletionTokens: 5},
	}
	out := ConvertResponse(resp, "claude-3-5-sonnet-20241022")

	if out.Model != "claude-3-5-sonnet-20241022" {
		t.Fatalf("model = %q", out.Model)
	}
	if len(out.Content) != 1 || out.Content[0].Type != "text" || out.Content[0].Text != "hello" {
		t.Fatalf("content = %+v", out.Content)
	}
	if out.StopReason != "end_turn" {
		t.Fatalf("stop_reason = %q", out.StopReason)
	}
	if out.Usage.InputTokens != 10 || out.Usage.OutputTokens != 5 {
		t.Fatalf("usage = %+v", out.Usage)
	}
}

func TestConvertResponseStopReasonMapping(t *testing.T) {
	cases := map[string]string{
		"":               "end_turn",
		"stop":           "end_turn",
		"length":         "max_tokens",
		"tool_calls":     "tool_use",
		"content_filter": "stop_sequence",
		"unknown_thing":  "end_turn",
	}
	for in, want := range cases {
		resp := OAIResponse{Choices: []OAIChoice{{FinishReason: in}}}
		out := ConvertResponse(resp, "m")
		if out.StopReason != want {
			t.Errorf("finish_reason %q -> %q, want %q", in, out.StopReason, want)
		}
	}
}

func TestConvertResponseToolCallParsesArguments(t *testing.T) {
	resp := OAIResponse{
		Choices: []OAIChoice{{
			Message: OAIRespMessage{
				ToolCalls: []OAIToolCall{{ID: "call_1", Function: OAIFunctionCall{Name: "f", Arguments: `{"x":1}`}}},
			},
			FinishReason: "tool_calls",
		}},
	}
	out := ConvertResponse(resp, "m")
	if len(out.Content) != 1 || out.Content[0].Type != "tool_use" {
		t.Fatalf("got %+v", out.Content)
	}
	var input map[string]any
	json.Unmarshal(out.Content[0].Input, &input)
	if input["x"].(float64) != 1 {
		t.Fatalf("input = %+v", input)
	}
}

func TestConvertResponseToolCallUnparsableArgumentsFallBackToText(t *testing.T) {
	resp := OAIResponse{
		Choices: []OAIChoice{{
			Message: OAIRespMessage{
				ToolCalls: []OAIToolCall{{ID: "call_1", Function: OAIFunctionCall{Name: "f", Arguments: "not json"}}},
			},
		}},
	}
	out := ConvertResponse(resp, "m")
	var input map[string]string
	json.Unmarshal(out.Content[0].Input, &input)
	if input["text"] != "not json" {
		t.Fatalf("input = %+v", input)
	}
}

func TestConvertResponseEmptyArgumentsBecomeEmptyObject(t *testing.T) {
	resp := OAIResponse{
		Choices: []OAIChoice{{
			Message: OAIRespMessage{
				ToolCalls: []OAIToolCall{{ID: "call_1", Function: OAIFunctionCall{Name: "f"}}},
			},
		}},
	}
	out := ConvertResponse(resp, "m")
	if string(out.Content[0].Input) != "{}" {
		t.Fatalf("input = %s", out.Content[0].Input)
	}
}

func TestConvertResponseWebSearchAnnotations(t *testing.T) {
	resp := OAIResponse{
		Choices: []OAIChoice{{
			Message: OAIRespMessage{
				Content: "found it",
				Annotations: []OAIAnnotation{
					{URLCitation: &OAIURLCitation{URL: "https://example.com", Title: "Example"}},
				},
			},
		}},
	}
	out := ConvertResponse(resp, "m")
	// text, server_tool_use, web_search_tool_result
	if len(out.Content) != 3 {
		t.Fatalf("got %d blocks: %+v", len(out.Content), out.Content)
	}
	if out.Content[1].Type != "server_tool_use" || out.Content[1].Name != "web_search" {
		t.Fatalf("got %+v", out.Content[1])
	}
	if out.Content[2].Type != "web_search_tool_result" || out.Content[2].ToolUseID != out.Content[1].ID {
		t.Fatalf("got %+v", out.Content[2])
	}
}

func TestConvertResponseThinkingFromMessage(t *testing.T) {
	resp := OAIResponse{
		Choices: []OAIChoice{{
			Message: OAIRespMessage{
				Content:  "answer",
				Thinking: &OAIThinking{Content: "reasoning steps", Signature: "sig1"},
			},
		}},
	}
	out := ConvertResponse(resp, "m")
	if out.Content[0].Type != "thinking" || out.Content[0].Signature != "sig1" {
		t.Fatalf("got %+v", out.Content[0])
	}
}

func TestConvertResponseThinkingFromToolCallExtra(t *testing.T) {
	resp := OAIResponse{
		Choices: []OAIChoice{{
			Message: OAIRespMessage{
				ToolCalls: []OAIToolCall{{
					ID: "call_1",
					Function: OAIFunctionCall{Name: "f"},
					Extra:    &OAIExtraContent{Google: &OAIGoogleExtra{ThoughtSignature: "sig2"}},
				}},
			},
		}},
	}
	out := ConvertResponse(resp, "m")
	if out.Content[0].Type != "thinking" || out.Content[0].Signature != "sig2" {
		t.Fatalf("got %+v", out.Content[0])
	}
}
