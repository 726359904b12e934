package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/internal/tlsutil"
	"github.com/BaSui01/localroute/llm/providers"
)

const providerName = "anthropic"

// Client calls the Anthropic Messages API. The response body decodes
// straight into llm.Envelope, so callers see exactly what the API sent.
type Client struct {
	cfg    providers.AnthropicConfig
	client *http.Client
	logger *zap.Logger
}

// New creates a Client. Zero fields in cfg take the package defaults.
func New(cfg providers.AnthropicConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = providers.DefaultAnthropicBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = providers.DefaultAnthropicVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = providers.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: tlsutil.UpstreamClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "anthropic_client")),
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

func (c *Client) Name() string { return providerName }

func (c *Client) buildHeaders(req *http.Request, apiKey string) {
	// Anthropic 使用 x-api-key 认证
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", c.cfg.Version)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// CreateMessage POSTs req to /v1/messages. The context credential override
// wins over the configured key.
func (c *Client) CreateMessage(ctx context.Context, req *llm.MessageRequest) (*llm.Envelope, error) {
	apiKey := strings.TrimSpace(llm.CredentialFromContext(ctx, c.cfg.APIKey))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode messages request: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build messages request: %w", err)
	}
	c.buildHeaders(httpReq, apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, providerName)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, errType := providers.ReadErrorMessage(resp.Body)
		c.logger.Debug("upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("type", errType),
			zap.String("key", llm.MaskCredential(apiKey)),
		)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, errType, providerName)
	}

	var env llm.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, providers.TransportError(fmt.Errorf("decode messages response: %w", err), providerName)
	}
	return &env, nil
}
