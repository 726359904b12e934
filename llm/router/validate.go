package router

import (
	"unicode/utf8"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/types"
)

// Limits bounds a local request. Zero fields disable the matching check.
type Limits struct {
	MaxMessages      int `yaml:"max_messages" toml:"max_messages" env:"MAX_MESSAGES"`
	MaxMessageLength int `yaml:"max_message_length" toml:"max_message_length" env:"MAX_MESSAGE_LENGTH"`
	MaxPromptLength  int `yaml:"max_prompt_length" toml:"max_prompt_length" env:"MAX_PROMPT_LENGTH"`
	MaxTokens        int `yaml:"max_tokens" toml:"max_tokens" env:"MAX_TOKENS"`
}

// DefaultLimits mirrors the limits the HTTP gateway enforces.
func DefaultLimits() Limits {
	return Limits{
		MaxMessages:      100,
		MaxMessageLength: 50000,
		MaxPromptLength:  100000,
		MaxTokens:        100000,
	}
}

// ValidateLocal checks req before it is flattened for a CLI. Features a CLI
// cannot express yield FORMAT_CONVERSION; malformed input yields
// INVALID_REQUEST. Sampling parameters are accepted and dropped.
func ValidateLocal(req *llm.MessageRequest, limits Limits) error {
	if req == nil {
		return invalid("request body is required", "")
	}

	switch {
	case req.Stream:
		return unsupported("streaming is not supported in local mode", "stream")
	case len(req.Tools) > 0:
		return unsupported("tool definitions cannot be expressed to a local CLI", "tools")
	case len(req.ToolChoice) > 0 && string(req.ToolChoice) != "null":
		return unsupported("tool_choice cannot be expressed to a local CLI", "tool_choice")
	}

	if len(req.Messages) == 0 {
		return invalid("messages array cannot be empty", "messages")
	}
	if limits.MaxMessages > 0 && len(req.Messages) > limits.MaxMessages {
		return types.Errorf(types.ErrInvalidRequest, "too many messages (max %d)", limits.MaxMessages).
			WithDetail(types.DetailField, "messages")
	}
	if req.MaxTokens < 1 {
		return invalid("max_tokens must be at least 1", "max_tokens")
	}
	if limits.MaxTokens > 0 && req.MaxTokens > limits.MaxTokens {
		return types.Errorf(types.ErrInvalidRequest, "max_tokens must be between 1 and %d", limits.MaxTokens).
			WithDetail(types.DetailField, "max_tokens")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return invalid("temperature must be between 0 and 2", "temperature")
	}
	if limits.MaxMessageLength > 0 && utf8.RuneCountInString(req.System) > limits.MaxMessageLength {
		return types.Errorf(types.ErrInvalidRequest, "system prompt too long (max %d characters)", limits.MaxMessageLength).
			WithDetail(types.DetailField, "system")
	}

	for i, turn := range req.Messages {
		if !turn.Role.Valid() {
			return types.Errorf(types.ErrInvalidRequest, "messages[%d]: invalid role %q", i, turn.Role).
				WithDetail(types.DetailField, "messages.role")
		}
		if limits.MaxMessageLength > 0 && utf8.RuneCountInString(turn.Content) > limits.MaxMessageLength {
			return types.Errorf(types.ErrInvalidRequest, "messages[%d]: content too long (max %d characters)", i, limits.MaxMessageLength).
				WithDetail(types.DetailField, "messages.content")
		}
	}
	return nil
}

func invalid(msg, field string) error {
	e := types.NewError(types.ErrInvalidRequest, msg)
	if field != "" {
		e.WithDetail(types.DetailField, field)
	}
	return e
}

func unsupported(msg, field string) error {
	return types.NewError(types.ErrFormatConversion, msg).WithDetail(types.DetailField, field)
}
