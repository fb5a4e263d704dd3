package convert

import "encoding/json"

// OAIRequest is the OpenAI Chat Completions request body this proxy emits.
type OAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OAIMessage    `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Tools       []OAITool       `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	Reasoning   *OAIReasoning   `json:"reasoning,omitempty"`
}

// OAIReasoning carries the non-Gemini reasoning-effort mapping of Anthropic's thinking block.
type OAIReasoning struct {
	Enabled bool   `json:"enabled"`
	Effort  string `json:"effort"`
}

// OAIMessage is one OpenAI Chat Completions message.
type OAIMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []OAIToolCall   `json:"tool_calls,omitempty"`
}

// OAIToolCall is one assistant-emitted function call.
type OAIToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function OAIFunctionCall `json:"function"`
	Extra    *OAIExtraContent `json:"extra_content,omitempty"`
}

// OAIFunctionCall is the function-call payload of a tool call.
type OAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OAIExtraContent carries the Gemini thought-signature side channel.
type OAIExtraContent struct {
	Google *OAIGoogleExtra `json:"google,omitempty"`
}

// OAIGoogleExtra holds the Gemini thought signature attached to a tool call.
type OAIGoogleExtra struct {
	ThoughtSignature string `json:"thought_signature,omitempty"`
}

// OAITool is one OpenAI function-tool definition.
type OAITool struct {
	Type     string      `json:"type"`
	Function OAIFunction `json:"function"`
}

// OAIFunction is a tool's function schema.
type OAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// OAIImageURLPart is the image_url content part of a user message.
type OAIImageURLPart struct {
	Type     string       `json:"type"`
	ImageURL OAIImageURLV `json:"image_url"`
}

// OAIImageURLV is the nested url field of an image_url part.
type OAIImageURLV struct {
	URL string `json:"url"`
}

// OAITextPart is a plain text content part of a multi-part message.
type OAITextPart struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl json.RawMessage `json:"cache_control,omitempty"`
}

// OAIResponse is the unary OpenAI Chat Completions response envelope.
type OAIResponse struct {
	ID      string      `json:"id"`
	Choices []OAIChoice `json:"choices"`
	Usage   OAIUsage    `json:"usage"`
}

// OAIChoice is one completion choice; this proxy only ever looks at index 0.
type OAIChoice struct {
	Message      OAIRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// OAIRespMessage is an OpenAI response message, including the
// non-standard "thinking" and "annotations" extensions some
// OpenAI-compatible upstreams add.
type OAIRespMessage struct {
	Content     string          `json:"content"`
	ToolCalls   []OAIToolCall   `json:"tool_calls,omitempty"`
	Thinking    *OAIThinking    `json:"thinking,omitempty"`
	Annotations []OAIAnnotation `json:"annotations,omitempty"`
}

// OAIThinking is an upstream's reasoning/thinking content plus signature.
type OAIThinking struct {
	Content   string `json:"content"`
	Signature string `json:"signature"`
}

// OAIAnnotation is a web-citation annotation attached to a response message.
type OAIAnnotation struct {
	URLCitation *OAIURLCitation `json:"url_citation,omitempty"`
}

// OAIURLCitation is the url/title pair of a citation annotation.
type OAIURLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// OAIUsage is the OpenAI token accounting shape, including the
// prompt_tokens_details.cached_tokens extension.
type OAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	PromptDetails    struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

// OAIStreamChunk is one SSE data chunk of an OpenAI streaming response.
type OAIStreamChunk struct {
	ID      string          `json:"id"`
	Choices []OAIStreamChoi `json:"choices"`
	Usage   *OAIUsage       `json:"usage,omitempty"`
}

// OAIStreamChoi is one streaming choice delta.
type OAIStreamChoi struct {
	Delta        OAIStreamDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

// OAIStreamDelta is the incremental content of one streaming chunk.
type OAIStreamDelta struct {
	Content         string              `json:"content,omitempty"`
	ToolCalls       []OAIStreamToolCall `json:"tool_calls,omitempty"`
	ThinkingDelta   string              `json:"thinking_delta,omitempty"`
	ThinkingSigDone string              `json:"thinking_signature,omitempty"`
}

// OAIStreamToolCall is one incremental tool-call delta, keyed by Index.
type OAIStreamToolCall struct {
	Index    int             `json:"index"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function OAIFunctionCall `json:"function"`
	Extra    *OAIExtraContent `json:"extra_content,omitempty"`
}
