package convert

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// Event is one Anthropic SSE event: a named event with a JSON data payload.
type Event struct {
	Name string
	Data any
}

// Encode renders ev in Anthropic's SSE wire shape.
func (ev Event) Encode() []byte {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		data = []byte(`{}`)
	}
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(ev.Name)
	b.WriteString("\ndata: ")
	b.Write(data)
	b.WriteString("\n\n")
	return []byte(b.String())
}

type openBlock struct {
	anthropicIndex int
	kind           string // "text", "thinking", or "tool_use"
	oaiToolIndex   int    // only meaningful when kind == "tool_use"
}

// StreamConverter rewrites an OpenAI SSE stream into an Anthropic SSE
// stream, one chunk at a time. It is stateful for the duration of a
// single request/response exchange only — no state survives across
// requests, and no field here is derived from anything but the chunks fed
// to it plus the original model name supplied at construction.
type StreamConverter struct {
	originalModel string

	started  bool
	id       string
	open     *openBlock
	nextIdx  int
	toolIdx  map[int]int // OpenAI tool-call index -> Anthropic block index
	toolArgs map[int]*strings.Builder

	finishReason string
	usage        OAIUsage
	finished     bool
}

// NewStreamConverter creates a converter for one streamed response.
func NewStreamConverter(originalModel string) *StreamConverter {
	return &StreamConverter{
		originalModel: originalModel,
		toolIdx:       make(map[int]int),
		toolArgs:      make(map[int]*strings.Builder),
	}
}

// Feed processes one decoded OpenAI stream chunk and returns the
// Anthropic SSE events it produces, in order. The first call to Feed (or
// to Finish, if the stream ends with no data chunks) also emits the
// leading message_start event.
func (c *StreamConverter) Feed(chunk OAIStreamChunk) []Event {
	var events []Event
	if !c.started {
		c.id = chunk.ID
		events = append(events, c.startEvent())
		c.started = true
	}

	if chunk.Usage != nil {
		c.usage = *chunk.Usage
	}

	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.ThinkingDelta != "" {
		events = append(events, c.ensureThinkingOpen()...)
		events = append(events, Event{Name: "content_block_delta", Data: map[string]any{
			"type":  "content_block_delta",
			"index": c.open.anthropicIndex,
			"delta": map[string]string{"type": "thinking_delta", "thinking": delta.ThinkingDelta},
		}})
	}

	if delta.ThinkingSigDone != "" {
		events = append(events, c.ensureThinkingOpen()...)
		events = append(events, Event{Name: "content_block_delta", Data: map[string]any{
			"type":  "content_block_delta",
			"index": c.open.anthropicIndex,
			"delta": map[string]string{"type": "signature_delta", "signature": delta.ThinkingSigDone},
		}})
	}

	if delta.Content != "" {
		events = append(events, c.ensureTextOpen()...)
		events = append(events, Event{Name: "content_block_delta", Data: map[string]any{
			"type":  "content_block_delta",
			"index": c.open.anthropicIndex,
			"delta": map[string]string{"type": "text_delta", "text": delta.Content},
		}})
	}

	for _, tc := range delta.ToolCalls {
		events = append(events, c.feedToolCall(tc)...)
	}

	if choice.FinishReason != nil {
		c.finishReason = *choice.FinishReason
		events = append(events, c.closeOpen()...)
		events = append(events, c.endEvents()...)
		c.finished = true
	}

	return events
}

// Finish forces the stream closed if the upstream ended without ever
// sending a finish_reason (e.g. a dropped connection after partial
// content). Safe to call after a Feed call already closed the stream;
// it is then a no-op.
func (c *StreamConverter) Finish() []Event {
	if c.finished {
		return nil
	}
	var events []Event
	if !c.started {
		events = append(events, c.startEvent())
		c.started = true
	}
	events = append(events, c.closeOpen()...)
	events = append(events, c.endEvents()...)
	c.finished = true
	return events
}

func (c *StreamConverter) startEvent() Event {
	return Event{Name: "message_start", Data: map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            c.id,
			"type":          "message",
			"role":          "assistant",
			"content":       []any{},
			"model":         c.originalModel,
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]int{"input_tokens": 0, "output_tokens": 0},
		},
	}}
}

func (c *StreamConverter) ensureTextOpen() []Event {
	if c.open != nil && c.open.kind == "text" {
		return nil
	}
	var events []Event
	events = append(events, c.closeOpen()...)
	idx := c.nextIdx
	c.nextIdx++
	c.open = &openBlock{anthropicIndex: idx, kind: "text"}
	events = append(events, Event{Name: "content_block_start", Data: map[string]any{
		"type":  "content_block_start",
		"index": idx,
		"content_block": map[string]any{
			"type": "text",
			"text": "",
		},
	}})
	return events
}

func (c *StreamConverter) ensureThinkingOpen() []Event {
	if c.open != nil && c.open.kind == "thinking" {
		return nil
	}
	var events []Event
	events = append(events, c.closeOpen()...)
	idx := c.nextIdx
	c.nextIdx++
	c.open = &openBlock{anthropicIndex: idx, kind: "thinking"}
	events = append(events, Event{Name: "content_block_start", Data: map[string]any{
		"type":  "content_block_start",
		"index": idx,
		"content_block": map[string]any{
			"type":     "thinking",
			"thinking": "",
		},
	}})
	return events
}

func (c *StreamConverter) feedToolCall(tc OAIStreamToolCall) []Event {
	var events []Event

	anthropicIdx, known := c.toolIdx[tc.Index]
	reopen := !known || c.open == nil || c.open.kind != "tool_use" || c.open.oaiToolIndex != tc.Index

	if reopen {
		events = append(events, c.closeOpen()...)
		if !known {
			anthropicIdx = c.nextIdx
			c.nextIdx++
			c.toolIdx[tc.Index] = anthropicIdx
			c.toolArgs[tc.Index] = &strings.Builder{}
		}
		c.open = &openBlock{anthropicIndex: anthropicIdx, kind: "tool_use", oaiToolIndex: tc.Index}
		events = append(events, Event{Name: "content_block_start", Data: map[string]any{
			"type":  "content_block_start",
			"index": anthropicIdx,
			"content_block": map[string]any{
				"type":  "tool_use",
				"id":    tc.ID,
				"name":  tc.Function.Name,
				"input": map[string]any{},
			},
		}})
	}

	if tc.Function.Arguments != "" {
		c.toolArgs[tc.Index].WriteString(tc.Function.Arguments)
		events = append(events, Event{Name: "content_block_delta", Data: map[string]any{
			"type":  "content_block_delta",
			"index": anthropicIdx,
			"delta": map[string]string{"type": "input_json_delta", "partial_json": tc.Function.Arguments},
		}})
	}

	return events
}

// closeOpen emits content_block_stop for whatever block is currently
// open, if any, then clears the open-block state.
func (c *StreamConverter) closeOpen() []Event {
	if c.open == nil {
		return nil
	}
	idx := c.open.anthropicIndex
	c.open = nil
	return []Event{{Name: "content_block_stop", Data: map[string]any{
		"type":  "content_block_stop",
		"index": idx,
	}}}
}

// endEvents emits the message_delta/message_stop pair carrying the final
// stop reason and usage numbers, matching the Anthropic wire protocol
// (the mapped reason and usage travel on message_delta; message_stop
// carries no payload of its own).
func (c *StreamConverter) endEvents() []Event {
	cached := c.usage.PromptDetails.CachedTokens
	return []Event{
		{Name: "message_delta", Data: map[string]any{
			"type": "message_delta",
			"delta": map[string]any{
				"stop_reason":   mapStopReason(c.finishReason),
				"stop_sequence": nil,
			},
			"usage": map[string]int{
				"output_tokens":           c.usage.CompletionTokens,
				"input_tokens":            c.usage.PromptTokens - cached,
				"cache_read_input_tokens": cached,
			},
		}},
		{Name: "message_stop", Data: map[string]any{"type": "message_stop"}},
	}
}

// ScanOAISSE reads an OpenAI SSE response body and invokes onChunk for
// each decoded data chunk; it stops at a "[DONE]" sentinel or EOF.
// Accepts both "data: " and "data:" line prefixes, matching providers
// that omit the space.
func ScanOAISSE(scanner *bufio.Scanner, onChunk func(OAIStreamChunk) error) error {
	for scanner.Scan() {
		line := scanner.Text()

		var data string
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		default:
			continue
		}

		if data == "[DONE]" {
			return nil
		}

		var chunk OAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("%w: %s", errStreamDecode, err)
		}
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return scanner.Err()
}
