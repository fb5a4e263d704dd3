package convert

import (
	"encoding/json"
	"strings"
)

// ConvertRequest translates an Anthropic Messages request into an OpenAI
// Chat Completions request. originalPath is the inbound request path;
// newPath is "/chat/completions" when originalPath is exactly "/v1/messages"
// or "/messages", and originalPath unchanged otherwise. req.Model must
// already reflect any provider model-name mapping — this function is not
// responsible for routing.
func ConvertRequest(originalPath string, req Request) (newPath string, out OAIRequest) {
	newPath = originalPath
	if originalPath == "/v1/messages" || originalPath == "/messages" {
		newPath = "/chat/completions"
	}

	out = OAIRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
	if len(req.StopSeqs) > 0 {
		out.Stop = req.StopSeqs
	}

	if sys := convertSystem(req.System); sys != nil {
		out.Messages = append(out.Messages, *sys)
	}
	out.Messages = append(out.Messages, convertMessages(req.Messages, req.Model)...)

	if len(req.Tools) > 0 {
		out.Tools = make([]OAITool, len(req.Tools))
		for i, t := range req.Tools {
			out.Tools[i] = OAITool{
				Type: "function",
				Function: OAIFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			}
		}
	}

	if tc := convertToolChoice(req.ToolChoice); tc != nil {
		out.ToolChoice = tc
	}

	if req.Thinking != nil && req.Thinking.Type == "enabled" && !isGeminiModel(req.Model) {
		out.Reasoning = &OAIReasoning{Enabled: true, Effort: effortFor(req.Thinking.BudgetTokens)}
	}

	return newPath, out
}

// isGeminiModel reports whether model names a Gemini-family model.
func isGeminiModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini")
}

// effortFor maps a thinking budget to a reasoning effort tier.
func effortFor(budgetTokens int) string {
	switch {
	case budgetTokens == 0:
		return "medium"
	case budgetTokens <= 1024:
		return "low"
	case budgetTokens <= 8192:
		return "medium"
	default:
		return "high"
	}
}

// convertSystem builds the system message from the Anthropic request's
// System field, which may be absent, a plain string, or an array of
// text blocks carrying cache_control annotations.
func convertSystem(raw json.RawMessage) *OAIMessage {
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return nil
		}
		content, _ := json.Marshal(s)
		return &OAIMessage{Role: "system", Content: content}
	default:
		return &OAIMessage{Role: "system", Content: raw}
	}
}

// convertMessages walks the Anthropic message list, grouping consecutive
// tool_result blocks into their own "tool" messages and everything else
// into one user/assistant message per source message.
func convertMessages(msgs []Message, targetModel string) []OAIMessage {
	var out []OAIMessage
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, convertUserMessage(m)...)
		case "assistant":
			out = append(out, convertAssistantMessage(m, targetModel))
		}
	}
	return out
}

// convertUserMessage splits tool_result blocks into standalone "tool"
// messages, emitting any remaining blocks as a single user message.
func convertUserMessage(m Message) []OAIMessage {
	var out []OAIMessage
	var rest []Block

	for _, b := range m.Content {
		if b.Type != "tool_result" {
			rest = append(rest, b)
			continue
		}
		out = append(out, OAIMessage{
			Role:       "tool",
			ToolCallID: b.ToolUseID,
			Content:    toolResultContent(b.Content),
		})
	}

	if len(rest) == 0 {
		if len(m.Content) == 0 {
			empty, _ := json.Marshal("")
			out = append(out, OAIMessage{Role: "user", Content: empty})
		}
		return out
	}

	parts := userContentParts(rest)
	content, _ := json.Marshal(parts)
	out = append(out, OAIMessage{Role: "user", Content: content})
	return out
}

// toolResultContent serializes a tool_result block's content field:
// strings are used directly, objects/arrays are re-serialized as JSON text.
func toolResultContent(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		empty, _ := json.Marshal("")
		return empty
	}
	if raw[0] == '"' {
		return raw
	}
	s, _ := json.Marshal(string(raw))
	return s
}

// userContentParts renders non-tool-result blocks into OpenAI multi-part
// content: text blocks preserve cache_control, image blocks become
// image_url parts.
func userContentParts(blocks []Block) []any {
	parts := make([]any, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, OAITextPart{Type: "text", Text: b.Text, CacheControl: b.CacheControl})
		case "image":
			parts = append(parts, OAIImageURLPart{Type: "image_url", ImageURL: OAIImageURLV{URL: imageURL(b.Source)}})
		}
	}
	return parts
}

// imageURL renders an Anthropic image source as a data: URL (base64) or
// passes a URL source through literally.
func imageURL(src *ImageSource) string {
	if src == nil {
		return ""
	}
	if src.Type == "url" {
		return src.URL
	}
	return "data:" + src.MediaType + ";base64," + src.Data
}

// convertAssistantMessage joins text blocks with "\n" into Content and
// turns tool_use blocks into tool_calls, attaching a preceding thinking
// block's signature to the tool call when the target is a Gemini model.
func convertAssistantMessage(m Message, targetModel string) OAIMessage {
	var textParts []string
	var toolCalls []OAIToolCall
	var pendingSignature string

	for _, b := range m.Content {
		switch b.Type {
		case "text":
			if b.Text != "" {
				textParts = append(textParts, b.Text)
			}
		case "thinking":
			pendingSignature = b.Signature
		case "tool_use":
			args := "{}"
			if len(b.Input) > 0 {
				args = string(b.Input)
			}
			tc := OAIToolCall{
				ID:   b.ID,
				Type: "function",
				Function: OAIFunctionCall{
					Name:      b.Name,
					Arguments: args,
				},
			}
			if pendingSignature != "" && isGeminiModel(targetModel) {
				tc.Extra = &OAIExtraContent{Google: &OAIGoogleExtra{ThoughtSignature: pendingSignature}}
			}
			pendingSignature = ""
			toolCalls = append(toolCalls, tc)
		}
	}

	content, _ := json.Marshal(strings.Join(textParts, "\n"))
	return OAIMessage{Role: "assistant", Content: content, ToolCalls: toolCalls}
}

// convertToolChoice maps an Anthropic tool_choice value to its OpenAI
// equivalent. Returns nil for an absent or unrecognized value.
func convertToolChoice(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		switch s {
		case "auto", "any":
			out, _ := json.Marshal("auto")
			return out
		case "none":
			out, _ := json.Marshal("none")
			return out
		}
		return nil
	}

	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Type != "tool" {
		return nil
	}
	out, _ := json.Marshal(map[string]any{
		"type":     "function",
		"function": map[string]string{"name": obj.Name},
	})
	return out
}
