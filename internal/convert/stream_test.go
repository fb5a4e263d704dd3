package convert

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
)

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func TestStreamConverterTextBlock(t *testing.T) {
	c := NewStreamConverter("claude-3-5-sonnet")

	events := c.Feed(OAIStreamChunk{ID: "chatcmpl-1", Choices: []OAIStreamChoi{
		{Delta: OAIStreamDelta{Content: "hel"}},
	}})
	if got := eventNames(events); len(got) != 3 || got[0] != "message_start" || got[1] != "content_block_start" || got[2] != "content_block_delta" {
		t.Fatalf("got %v", got)
	}

	events = c.Feed(OAIStreamChunk{Choices: []OAIStreamChoi{
		{Delta: OAIStreamDelta{Content: "lo"}},
	}})
	if got := eventNames(events); len(got) != 1 || got[0] != "content_block_delta" {
		t.Fatalf("second feed got %v", got)
	}

	reason := "stop"
	events = c.Feed(OAIStreamChunk{Choices: []OAIStreamChoi{
		{FinishReason: &reason},
	}})
	if got := eventNames(events); len(got) != 3 || got[0] != "content_block_stop" || got[1] != "message_delta" || got[2] != "message_stop" {
		t.Fatalf("final feed got %v", got)
	}
}

func TestStreamConverterIndicesStrictlyIncreasing(t *testing.T) {
	c := NewStreamConverter("m")

	var starts []int
	record := func(events []Event) {
		for _, e := range events {
			if e.Name != "content_block_start" {
				continue
			}
			m := e.Data.(map[string]any)
			starts = append(starts, m["index"].(int))
		}
	}

	record(c.Feed(OAIStreamChunk{ID: "x", Choices: []OAIStreamChoi{{Delta: OAIStreamDelta{Content: "a"}}}}))
	record(c.Feed(OAIStreamChunk{Choices: []OAIStreamChoi{{Delta: OAIStreamDelta{
		ToolCalls: []OAIStreamToolCall{{Index: 0, ID: "call_1", Function: OAIFunctionCall{Name: "f"}}},
	}}}}))
	reason := "tool_calls"
	record(c.Feed(OAIStreamChunk{Choices: []OAIStreamChoi{{FinishReason: &reason}}}))

	if len(starts) != 2 || starts[0] != 0 || starts[1] != 1 {
		t.Fatalf("got indices %v, want [0 1]", starts)
	}
}

func TestStreamConverterToolCallArgumentAccumulation(t *testing.T) {
	c := NewStreamConverter("m")

	c.Feed(OAIStreamChunk{ID: "x", Choices: []OAIStreamChoi{{Delta: OAIStreamDelta{
		ToolCalls: []OAIStreamToolCall{{Index: 0, ID: "call_1", Function: OAIFunctionCall{Name: "get_weather"}}},
	}}}})
	events := c.Feed(OAIStreamChunk{Choices: []OAIStreamChoi{{Delta: OAIStreamDelta{
		ToolCalls: []OAIStreamToolCall{{Index: 0, Function: OAIFunctionCall{Arguments: `{"city":`}}},
	}}}})
	if len(events) != 1 || events[0].Name != "content_block_delta" {
		t.Fatalf("got %+v", events)
	}
	delta := events[0].Data.(map[string]any)["delta"].(map[string]string)
	if delta["type"] != "input_json_delta" || delta["partial_json"] != `{"city":` {
		t.Fatalf("got %+v", delta)
	}
}

func TestStreamConverterThinkingBlock(t *testing.T) {
	c := NewStreamConverter("m")

	events := c.Feed(OAIStreamChunk{ID: "x", Choices: []OAIStreamChoi{
		{Delta: OAIStreamDelta{ThinkingDelta: "let me "}},
	}})
	if got := eventNames(events); len(got) != 3 || got[1] != "content_block_start" || got[2] != "content_block_delta" {
		t.Fatalf("got %v", got)
	}
	block := events[1].Data.(map[string]any)["content_block"].(map[string]any)
	if block["type"] != "thinking" {
		t.Fatalf("got %+v", block)
	}

	events = c.Feed(OAIStreamChunk{Choices: []OAIStreamChoi{
		{Delta: OAIStreamDelta{ThinkingDelta: "think"}},
	}})
	if got := eventNames(events); len(got) != 1 || got[0] != "content_block_delta" {
		t.Fatalf("second feed got %v", got)
	}
	delta := events[0].Data.(map[string]any)["delta"].(map[string]string)
	if delta["type"] != "thinking_delta" || delta["thinking"] != "think" {
		t.Fatalf("got %+v", delta)
	}

	events = c.Feed(OAIStreamChunk{Choices: []OAIStreamChoi{
		{Delta: OAIStreamDelta{ThinkingSigDone: "sig123"}},
	}})
	if len(events) != 1 || events[0].Name != "content_block_delta" {
		t.Fatalf("signature feed got %+v", events)
	}
	sigDelta := events[0].Data.(map[string]any)["delta"].(map[string]string)
	if sigDelta["type"] != "signature_delta" || sigDelta["signature"] != "sig123" {
		t.Fatalf("got %+v", sigDelta)
	}

	// Transitioning to text content must close the thinking block first.
	events = c.Feed(OAIStreamChunk{Choices: []OAIStreamChoi{
		{Delta: OAIStreamDelta{Content: "answer"}},
	}})
	if got := eventNames(events); len(got) != 3 || got[0] != "content_block_stop" || got[1] != "content_block_start" || got[2] != "content_block_delta" {
		t.Fatalf("transition got %v", got)
	}
}

func TestStreamConverterFinishWithoutFinishReason(t *testing.T) {
	c := NewStreamConverter("m")
	c.Feed(OAIStreamChunk{ID: "x", Choices: []OAIStreamChoi{{Delta: OAIStreamDelta{Content: "partial"}}}})

	events := c.Finish()
	if got := eventNames(events); len(got) != 3 || got[0] != "content_block_stop" || got[2] != "message_stop" {
		t.Fatalf("got %v", got)
	}

	// Calling Finish again must be a no-op.
	if more := c.Finish(); len(more) != 0 {
		t.Fatalf("expected no further events, got %v", more)
	}
}

func TestScanOAISSEStopsAtDone(t *testing.T) {
	body := "data: {\"id\":\"1\",\"choices\":[{\"delta\":{\"content\":\"hi\"},\"finish_reason\":null}]}\n\n" +
		"data: [DONE]\n\n"
	scanner := bufio.NewScanner(strings.NewReader(body))

	var chunks []OAIStreamChunk
	err := ScanOAISSE(scanner, func(c OAIStreamChunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Choices[0].Delta.Content != "hi" {
		t.Fatalf("got %+v", chunks)
	}
}

func TestScanOAISSEAcceptsNoSpacePrefix(t *testing.T) {
	body := "data:{\"id\":\"1\",\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"
	scanner := bufio.NewScanner(strings.NewReader(body))

	var got int
	err := ScanOAISSE(scanner, func(c OAIStreamChunk) error { got++; return nil })
	if err != nil || got != 1 {
		t.Fatalf("got=%d err=%v", got, err)
	}
}

func TestEventEncode(t *testing.T) {
	ev := Event{Name: "message_stop", Data: map[string]any{"type": "message_stop"}}
	encoded := string(ev.Encode())
	if !strings.HasPrefix(encoded, "event: message_stop\ndata: ") || !strings.HasSuffix(encoded, "\n\n") {
		t.Fatalf("got %q", encoded)
	}
	var decoded map[string]any
	dataLine := strings.TrimSuffix(strings.TrimPrefix(encoded, "event: message_stop\ndata: "), "\n\n")
	if err := json.Unmarshal([]byte(dataLine), &decoded); err != nil {
		t.Fatal(err)
	}
}
