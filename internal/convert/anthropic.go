// Package convert implements the stateless bidirectional translation
// between the Anthropic Messages wire format and the OpenAI Chat
// Completions wire format: request conversion, unary response
// conversion, and SSE-to-SSE streaming conversion. Every exported
// function here is a pure function of its inputs — no I/O, no shared
// state across calls — grounded on the shape of the teacher's
// modules/provider/anthropic/convert.go and
// modules/provider/openai_compatible/stream.go, generalized from
// SDK-typed conversion to raw wire JSON since this proxy must support
// arbitrary OpenAI-compatible upstreams, not just the official APIs.
package convert

import "encoding/json"

// Request is the subset of the Anthropic Messages API request body this
// proxy understands. Unrecognized top-level fields are not preserved —
// the proxy only forwards what it models.
type Request struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	System      json.RawMessage `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	StopSeqs    []string        `json:"stop_sequences,omitempty"`
	Tools       []Tool          `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	Thinking    *Thinking       `json:"thinking,omitempty"`
}

// Thinking is the extended-thinking request toggle.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Message is one Anthropic conversation turn. Content may be a plain
// string (decoded into a single text Block by UnmarshalJSON) or an
// array of content blocks.
type Message struct {
	Role    string  `json:"role"`
	Content []Block `json:"content"`
}

// UnmarshalJSON accepts both the string and array content shapes the
// Anthropic API allows for a message's content field.
func (m *Message) UnmarshalJSON(data []byte) error {
	var shape struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	m.Role = shape.Role
	m.Content = nil
	if len(shape.Content) == 0 {
		return nil
	}
	switch shape.Content[0] {
	case '"':
		var s string
		if err := json.Unmarshal(shape.Content, &s); err != nil {
			return err
		}
		if s != "" {
			m.Content = []Block{{Type: "text", Text: s}}
		}
	default:
		return json.Unmarshal(shape.Content, &m.Content)
	}
	return nil
}

// Block is one Anthropic content block. Only the fields relevant to a
// block's Type are populated; the rest are left zero.
type Block struct {
	Type string `json:"type"`

	// text
	Text         string          `json:"text,omitempty"`
	CacheControl json.RawMessage `json:"cache_control,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// ImageSource is an Anthropic image content block's source.
type ImageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Tool is an Anthropic tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Response is the Anthropic Messages API response envelope.
type Response struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Role         string  `json:"role"`
	Content      []Block `json:"content"`
	Model        string  `json:"model"`
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
	Usage        Usage   `json:"usage"`
}

// Usage is the Anthropic token accounting shape.
type Usage struct {
	InputTokens           int `json:"input_tokens"`
	OutputTokens          int `json:"output_tokens"`
	CacheReadInputTokens  int `json:"cache_read_input_tokens,omitempty"`
	CacheCreateInputToken int `json:"cache_creation_input_tokens,omitempty"`
}

// WebSearchResultEntry is one entry in a web_search_tool_result block's content array.
type WebSearchResultEntry struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}
