package providers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/BaSui01/localroute/types"
)

// MapHTTPError 将上游 HTTP 状态码映射为 UPSTREAM 错误，保留原始状态码与错误类型。
// 重试策略由调用方决定，这里只标记 Retryable。
func MapHTTPError(status int, msg, errType, provider string) *types.Error {
	e := types.NewError(types.ErrUpstream, msg).
		WithHTTPStatus(status).
		WithProvider(provider)
	if errType != "" {
		e.WithDetail("type", errType)
	}
	switch {
	case status == http.StatusTooManyRequests, status == 529:
		e.WithRetryable(true)
	case status >= 500:
		e.WithRetryable(true)
	}
	return e
}

// TransportError wraps a network failure talking to the upstream API.
func TransportError(err error, provider string) *types.Error {
	return types.NewError(types.ErrUpstream, err.Error()).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider).
		WithCause(err)
}

// ReadErrorMessage 读取响应体中的错误消息
// 兼容 Anthropic（{"type":"error","error":{...}}）与 OpenAI（{"error":{...}}）两种格式，
// 失败则回退到原始文本
func ReadErrorMessage(body io.Reader) (msg, errType string) {
	data, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return "failed to read error response", ""
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message, errResp.Error.Type
	}
	if len(data) == 0 {
		return "upstream returned an empty error body", ""
	}
	return string(data), ""
}
