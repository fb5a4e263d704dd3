package gateway

import "encoding/json"

// anthropicPeek is the subset of an Anthropic Messages API request body
// the gateway needs before submission: the requested model name and
// whether any message carries an image content block, which selects the
// provider's vision model map instead of its text one.
type anthropicPeek struct {
	Model    string             `json:"model"`
	Messages []anthropicMsgPeek `json:"messages"`
}

type anthropicMsgPeek struct {
	Content json.RawMessage `json:"content"`
}

type contentBlockPeek struct {
	Type string `json:"type"`
}

// peekRequest extracts the requested model and image-presence flag from a
// raw Anthropic request body. A body that fails to parse this loosely
// yields a zero peek rather than an error — the executor's own decode
// still validates the body on the proxy path.
func peekRequest(body []byte) anthropicPeek {
	var peek anthropicPeek
	_ = json.Unmarshal(body, &peek)
	return peek
}

// hasImage reports whether any message's content carries an image block.
// Content is either a plain string (never an image) or an array of typed
// blocks.
func (p anthropicPeek) hasImage() bool {
	for _, msg := range p.Messages {
		var blocks []contentBlockPeek
		if err := json.Unmarshal(msg.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			if b.Type == "image" {
				return true
			}
		}
	}
	return false
}

// withModel returns a copy of body with its top-level "model" field
// replaced by mapped. Used after routing.Router.ResolveModel picks a
// provider-specific model name.
func withModel(body []byte, mapped string) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(mapped)
	if err != nil {
		return nil, err
	}
	raw["model"] = encoded
	return json.Marshal(raw)
}
