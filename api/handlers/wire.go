package handlers

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/types"
)

// DefaultAnthropicModel is echoed when a Messages or Complete request
// omits the model.
const DefaultAnthropicModel = "claude-3-sonnet-20240229"

// MessagesBody is the inbound Messages API body. Content and system may be
// a string or an array of content blocks.
type MessagesBody struct {
	Model         string            `json:"model"`
	MaxTokens     *int              `json:"max_tokens,omitempty"`
	Messages      []WireMessage     `json:"messages"`
	System        json.RawMessage   `json:"system,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	TopK          *int              `json:"top_k,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
	Tools         []json.RawMessage `json:"tools,omitempty"`
	ToolChoice    json.RawMessage   `json:"tool_choice,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

type WireMessage struct {
	Role    llm.Role        `json:"role"`
	Content json.RawMessage `json:"content"`
}

type wireBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToMessageRequest flattens block content into plain turns.
func (b *MessagesBody) ToMessageRequest() (*llm.MessageRequest, error) {
	system, err := flattenContent(b.System, "system")
	if err != nil {
		return nil, err
	}

	req := &llm.MessageRequest{
		Model:         b.Model,
		MaxTokens:     llm.DefaultMaxTokens,
		Messages:      make([]llm.Turn, 0, len(b.Messages)),
		System:        system,
		Temperature:   b.Temperature,
		TopP:          b.TopP,
		TopK:          b.TopK,
		StopSequences: b.StopSequences,
		Stream:        b.Stream,
		Tools:         b.Tools,
		ToolChoice:    b.ToolChoice,
		Metadata:      b.Metadata,
	}
	if req.Model == "" {
		req.Model = DefaultAnthropicModel
	}
	if b.MaxTokens != nil {
		req.MaxTokens = *b.MaxTokens
	}
	for _, m := range b.Messages {
		content, err := flattenContent(m.Content, "messages.content")
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, llm.Turn{Role: m.Role, Content: content})
	}
	return req, nil
}

// flattenContent accepts a string or a block array. Text blocks are joined
// with a space and images become a placeholder; tool blocks are rejected.
func flattenContent(raw json.RawMessage, field string) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", invalidField("content must be a string or an array of blocks", field, err)
		}
		return s, nil
	case '[':
		var blocks []wireBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return "", invalidField("content must be a string or an array of blocks", field, err)
		}
		parts := make([]string, 0, len(blocks))
		for _, blk := range blocks {
			switch blk.Type {
			case "text":
				parts = append(parts, blk.Text)
			case "image":
				parts = append(parts, llm.ImagePlaceholder)
			case "tool_use", "tool_result":
				return "", types.Errorf(types.ErrFormatConversion, "%s blocks cannot be expressed to a local CLI", blk.Type).
					WithDetail(types.DetailField, field)
			}
		}
		return strings.Join(parts, " "), nil
	default:
		return "", invalidField("content must be a string or an array of blocks", field, nil)
	}
}

func invalidField(msg, field string, cause error) error {
	e := types.NewError(types.ErrInvalidRequest, msg).WithDetail(types.DetailField, field)
	if cause != nil {
		e.WithCause(cause)
	}
	return e
}

// CompleteBody is the legacy Text Completions request.
type CompleteBody struct {
	Model             string `json:"model"`
	Prompt            string `json:"prompt"`
	MaxTokensToSample *int   `json:"max_tokens_to_sample,omitempty"`
	Stream            bool   `json:"stream,omitempty"`
}

// Validate applies the legacy endpoint's checks. maxTokens of zero disables
// the upper bound.
func (b *CompleteBody) Validate(maxTokens int) error {
	if b.Stream {
		return types.NewError(types.ErrFormatConversion, "streaming is not supported in local mode").
			WithDetail(types.DetailField, "stream")
	}
	if n := b.MaxTokensToSample; n != nil && (*n < 1 || (maxTokens > 0 && *n > maxTokens)) {
		return types.Errorf(types.ErrInvalidRequest, "max_tokens_to_sample must be between 1 and %d", maxTokens).
			WithDetail(types.DetailField, "max_tokens_to_sample")
	}
	return nil
}

// CompleteResponse is the legacy Text Completions response.
type CompleteResponse struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
	Model      string `json:"model"`
}
