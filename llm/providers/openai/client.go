package openai

import (
	"context"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/internal/tlsutil"
	"github.com/BaSui01/localroute/llm/providers"
)

// Client calls the OpenAI Chat Completions API through go-openai and
// presents the answer as an llm.Envelope. Errors from go-openai
// (*openai.APIError, *openai.RequestError) are returned unmodified.
type Client struct {
	cfg    providers.OpenAIConfig
	http   *http.Client
	logger *zap.Logger
}

// New creates a Client. Zero fields in cfg take the package defaults.
func New(cfg providers.OpenAIConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = providers.DefaultOpenAIBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = providers.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   tlsutil.UpstreamClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "openai_client")),
	}
}

func (c *Client) Name() string { return "openai" }

// sdk builds a go-openai client bound to apiKey. Cheap, so it is built per
// call to honour credential overrides.
func (c *Client) sdk(apiKey string) *openai.Client {
	conf := openai.DefaultConfig(apiKey)
	conf.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/") + "/v1"
	conf.OrgID = c.cfg.Organization
	conf.HTTPClient = c.http
	return openai.NewClientWithConfig(conf)
}

// CreateMessage sends req as a chat completion.
func (c *Client) CreateMessage(ctx context.Context, req *llm.MessageRequest) (*llm.Envelope, error) {
	apiKey := strings.TrimSpace(llm.CredentialFromContext(ctx, c.cfg.APIKey))

	resp, err := c.sdk(apiKey).CreateChatCompletion(ctx, ToChatRequest(req))
	if err != nil {
		c.logger.Debug("upstream error", zap.Error(err), zap.String("key", llm.MaskCredential(apiKey)))
		return nil, err
	}
	return FromChatResponse(resp), nil
}

// ToChatRequest converts a Messages-style request. The system prompt becomes
// a leading system message.
func ToChatRequest(req *llm.MessageRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, t := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}

	out := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
		Stop:      req.StopSequences,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	return out
}

// FromChatResponse maps the first choice onto an envelope.
func FromChatResponse(resp openai.ChatCompletionResponse) *llm.Envelope {
	env := &llm.Envelope{
		ID:         resp.ID,
		Type:       llm.EnvelopeTypeMessage,
		Role:       llm.RoleAssistant,
		Model:      resp.Model,
		Content:    []llm.ContentBlock{},
		StopReason: llm.StopReasonEndTurn,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		env.Content = append(env.Content, llm.ContentBlock{Type: llm.ContentTypeText, Text: choice.Message.Content})
		env.StopReason = StopReasonFromFinish(choice.FinishReason)
	}
	return env
}

// StopReasonFromFinish maps an OpenAI finish_reason to a Messages stop_reason.
func StopReasonFromFinish(fr openai.FinishReason) string {
	switch fr {
	case openai.FinishReasonLength:
		return "max_tokens"
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return "tool_use"
	default:
		return llm.StopReasonEndTurn
	}
}

// FinishFromStopReason is the inverse of StopReasonFromFinish.
func FinishFromStopReason(stop string) openai.FinishReason {
	switch stop {
	case "max_tokens":
		return openai.FinishReasonLength
	case "tool_use":
		return openai.FinishReasonToolCalls
	default:
		return openai.FinishReasonStop
	}
}
