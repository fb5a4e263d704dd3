package convert

import (
	"encoding/json"
	"fmt"
)

// ConvertResponse translates a buffered OpenAI Chat Completions response
// into an Anthropic Messages response. originalModel is the model name
// the client requested, before any provider model-name mapping, so the
// outgoing model field round-trips what the client asked for.
func ConvertResponse(resp OAIResponse, originalModel string) Response {
	out := Response{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: originalModel,
		Usage: convertUsage(resp.Usage),
	}

	var choice OAIChoice
	if len(resp.Choices) > 0 {
		choice = resp.Choices[0]
	}
	out.Content = buildContentBlocks(choice.Message)
	out.StopReason = mapStopReason(choice.FinishReason)
	return out
}

func convertUsage(u OAIUsage) Usage {
	cached := u.PromptDetails.CachedTokens
	return Usage{
		InputTokens:          u.PromptTokens - cached,
		OutputTokens:         u.CompletionTokens,
		CacheReadInputTokens: cached,
	}
}

// mapStopReason maps an OpenAI finish_reason to an Anthropic stop_reason.
func mapStopReason(reason string) string {
	switch reason {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// buildContentBlocks assembles the ordered content block list: thinking,
// text, tool_use (one per tool call), then a synthetic
// server_tool_use/web_search_tool_result pair if annotations are present.
func buildContentBlocks(msg OAIRespMessage) []Block {
	var blocks []Block

	if tb, ok := thinkingBlock(msg); ok {
		blocks = append(blocks, tb)
	}

	if msg.Content != "" {
		blocks = append(blocks, Block{Type: "text", Text: msg.Content})
	}

	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, Block{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: toolUseInput(tc.Function.Arguments),
		})
	}

	if len(msg.Annotations) > 0 {
		blocks = append(blocks, webSearchBlocks(msg.Annotations)...)
	}

	return blocks
}

// thinkingBlock builds the thinking block, if any. A signature carried
// directly on message.thinking wins; otherwise the signature is pulled
// from the first tool call that carries one via its Gemini extra_content
// side channel.
func thinkingBlock(msg OAIRespMessage) (Block, bool) {
	if msg.Thinking != nil && msg.Thinking.Signature != "" {
		return Block{Type: "thinking", Thinking: msg.Thinking.Content, Signature: msg.Thinking.Signature}, true
	}
	for _, tc := range msg.ToolCalls {
		if tc.Extra != nil && tc.Extra.Google != nil && tc.Extra.Google.ThoughtSignature != "" {
			return Block{Type: "thinking", Thinking: "", Signature: tc.Extra.Google.ThoughtSignature}, true
		}
	}
	return Block{}, false
}

// toolUseInput parses a tool call's raw arguments string as JSON; if it
// does not parse, the receiver still gets a best-effort object carrying
// the raw text instead of failing the whole response.
func toolUseInput(arguments string) json.RawMessage {
	if arguments == "" {
		return json.RawMessage("{}")
	}
	var probe any
	if err := json.Unmarshal([]byte(arguments), &probe); err != nil {
		raw, _ := json.Marshal(map[string]string{"text": arguments})
		return raw
	}
	return json.RawMessage(arguments)
}

// webSearchBlocks synthesizes the server_tool_use/web_search_tool_result
// pair from a response message's citation annotations.
func webSearchBlocks(annotations []OAIAnnotation) []Block {
	id := fmt.Sprintf("srvtoolu_%x", annotationsSeed(annotations))
	results := make([]WebSearchResultEntry, 0, len(annotations))
	for _, a := range annotations {
		if a.URLCitation == nil {
			continue
		}
		results = append(results, WebSearchResultEntry{
			Type:  "web_search_result",
			URL:   a.URLCitation.URL,
			Title: a.URLCitation.Title,
		})
	}
	content, _ := json.Marshal(results)

	return []Block{
		{Type: "server_tool_use", ID: id, Name: "web_search", Input: json.RawMessage(`{"query":""}`)},
		{Type: "web_search_tool_result", ToolUseID: id, Content: content},
	}
}

// annotationsSeed derives a short, deterministic id suffix from an FNV-1a
// hash over the URLs of every citation annotation, avoiding a dependency
// on a random source for an id that only needs to be unique within one
// response.
func annotationsSeed(annotations []OAIAnnotation) uint32 {
	var h uint32 = 2166136261
	for _, a := range annotations {
		if a.URLCitation == nil {
			continue
		}
		for i := 0; i < len(a.URLCitation.URL); i++ {
			h ^= uint32(a.URLCitation.URL[i])
			h *= 16777619
		}
	}
	return h
}
