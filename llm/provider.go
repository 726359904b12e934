package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles a transcript can carry.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn 是对话中的一轮，顺序有语义。
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultMaxTokens is used when an inbound body omits max_tokens.
const DefaultMaxTokens = 1024

// MessageRequest mirrors the vendor Messages request body.
// Sampling parameters are accepted so remote calls can forward them;
// the local path drops them (Stream/Tools/ToolChoice are rejected).
type MessageRequest struct {
	Model         string            `json:"model"`
	MaxTokens     int               `json:"max_tokens"`
	Messages      []Turn            `json:"messages"`
	System        string            `json:"system,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	TopK          *int              `json:"top_k,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
	Tools         []json.RawMessage `json:"tools,omitempty"`
	ToolChoice    json.RawMessage   `json:"tool_choice,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Usage counts tokens. Estimated is true on the local path, where counts are
// derived from word counts instead of a real tokenizer.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	Estimated    bool `json:"-"`
}

// Envelope is the Messages API response body shared by both routes.
type Envelope struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         Role           `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`

	// CLIModel is the alias passed to the local CLI, empty for remote calls.
	CLIModel string `json:"-"`
}

const (
	EnvelopeTypeMessage = "message"
	ContentTypeText     = "text"
	StopReasonEndTurn   = "end_turn"
)

// ImagePlaceholder stands in for image parts a text-only CLI cannot read.
const ImagePlaceholder = "[Image content not supported in local mode]"

// Text concatenates all text blocks.
func (e *Envelope) Text() string {
	if e == nil {
		return ""
	}
	var out string
	for _, b := range e.Content {
		if b.Type == ContentTypeText {
			out += b.Text
		}
	}
	return out
}

// Client is the capability set shared by the local and remote backends.
type Client interface {
	CreateMessage(ctx context.Context, req *MessageRequest) (*Envelope, error)
}

// Result carries the outcome of an asynchronous CreateMessage.
type Result struct {
	Envelope *Envelope
	Err      error
}

// AsyncClient adds a non-blocking CreateMessage backed by a bounded pool.
type AsyncClient interface {
	Client
	CreateMessageAsync(ctx context.Context, req *MessageRequest) (<-chan Result, error)
	Close()
}
