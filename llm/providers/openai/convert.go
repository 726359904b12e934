package openai

import (
	"encoding/json"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/types"
)

// ChatCompletionObject is the object tag of a non-streamed chat response.
const ChatCompletionObject = "chat.completion"

// ChatCompletionIDPrefix prefixes every chat completion id.
const ChatCompletionIDPrefix = "chatcmpl-"

// FromChatRequest converts an inbound Chat Completions body into a
// Messages-style request for the local path. System and developer messages
// stay in place as system turns; tool traffic cannot be expressed and yields
// FORMAT_CONVERSION.
func FromChatRequest(in openai.ChatCompletionRequest) (*llm.MessageRequest, error) {
	out := &llm.MessageRequest{
		Model:         in.Model,
		MaxTokens:     in.MaxTokens,
		Messages:      make([]llm.Turn, 0, len(in.Messages)),
		StopSequences: in.Stop,
		Stream:        in.Stream,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = in.MaxCompletionTokens
	}
	// go-openai 用 0 表示缺省
	if out.MaxTokens == 0 {
		out.MaxTokens = llm.DefaultMaxTokens
	}
	if in.Temperature != 0 {
		t := float64(in.Temperature)
		out.Temperature = &t
	}
	if in.TopP != 0 {
		p := float64(in.TopP)
		out.TopP = &p
	}

	for _, tool := range in.Tools {
		raw, err := json.Marshal(tool)
		if err != nil {
			return nil, types.NewError(types.ErrFormatConversion, "invalid tool definition").WithCause(err)
		}
		out.Tools = append(out.Tools, raw)
	}
	for _, fn := range in.Functions {
		raw, err := json.Marshal(fn)
		if err != nil {
			return nil, types.NewError(types.ErrFormatConversion, "invalid function definition").WithCause(err)
		}
		out.Tools = append(out.Tools, raw)
	}
	if in.ToolChoice != nil {
		raw, err := json.Marshal(in.ToolChoice)
		if err != nil {
			return nil, types.NewError(types.ErrFormatConversion, "invalid tool_choice").WithCause(err)
		}
		out.ToolChoice = raw
	}

	for i, m := range in.Messages {
		turn, err := fromChatMessage(i, m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, turn)
	}
	return out, nil
}

func fromChatMessage(i int, m openai.ChatCompletionMessage) (llm.Turn, error) {
	if len(m.ToolCalls) > 0 || m.FunctionCall != nil {
		return llm.Turn{}, types.Errorf(types.ErrFormatConversion, "messages[%d]: tool calls cannot be expressed to a local CLI", i).
			WithDetail(types.DetailField, "messages.tool_calls")
	}

	var role llm.Role
	switch m.Role {
	case openai.ChatMessageRoleSystem, openai.ChatMessageRoleDeveloper:
		role = llm.RoleSystem
	case openai.ChatMessageRoleUser:
		role = llm.RoleUser
	case openai.ChatMessageRoleAssistant:
		role = llm.RoleAssistant
	case openai.ChatMessageRoleTool, openai.ChatMessageRoleFunction:
		return llm.Turn{}, types.Errorf(types.ErrFormatConversion, "messages[%d]: %s messages cannot be expressed to a local CLI", i, m.Role).
			WithDetail(types.DetailField, "messages.role")
	default:
		// 未知角色交给 ValidateLocal 报错
		role = llm.Role(m.Role)
	}

	content := m.Content
	if len(m.MultiContent) > 0 {
		parts := make([]string, 0, len(m.MultiContent))
		for _, p := range m.MultiContent {
			switch p.Type {
			case openai.ChatMessagePartTypeText:
				parts = append(parts, p.Text)
			case openai.ChatMessagePartTypeImageURL:
				parts = append(parts, llm.ImagePlaceholder)
			default:
				return llm.Turn{}, types.Errorf(types.ErrFormatConversion, "messages[%d]: unsupported content part %q", i, p.Type).
					WithDetail(types.DetailField, "messages.content")
			}
		}
		content = strings.Join(parts, " ")
	}
	return llm.Turn{Role: role, Content: content}, nil
}

// ToChatResponse renders an envelope as a Chat Completions response.
func ToChatResponse(env *llm.Envelope) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      ChatCompletionID(env.ID),
		Object:  ChatCompletionObject,
		Created: time.Now().Unix(),
		Model:   env.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: env.Text(),
			},
			FinishReason: FinishFromStopReason(env.StopReason),
		}},
		Usage: openai.Usage{
			PromptTokens:     env.Usage.InputTokens,
			CompletionTokens: env.Usage.OutputTokens,
			TotalTokens:      env.Usage.InputTokens + env.Usage.OutputTokens,
		},
	}
}

// ChatCompletionID rewrites a message id ("msg_<hex>") as a chat completion
// id ("chatcmpl-<hex>"), keeping the random part so both can be correlated
// in logs. Ids already carrying the prefix pass through.
func ChatCompletionID(id string) string {
	if strings.HasPrefix(id, ChatCompletionIDPrefix) {
		return id
	}
	return ChatCompletionIDPrefix + strings.TrimPrefix(id, "msg_")
}
