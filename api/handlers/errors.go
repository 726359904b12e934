package handlers

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/types"
)

// =============================================================================
// 🚨 厂商错误体
// =============================================================================

// Dialect selects the vendor error body a client expects.
type Dialect int

const (
	DialectAnthropic Dialect = iota
	DialectOpenAI
)

// DialectFor returns the error dialect spoken by family.
func DialectFor(f llm.Family) Dialect {
	if f == llm.FamilyOpenAI {
		return DialectOpenAI
	}
	return DialectAnthropic
}

// AnthropicError is the Messages API error body.
type AnthropicError struct {
	Type  string             `json:"type"`
	Error AnthropicErrorInfo `json:"error"`
}

type AnthropicErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorType maps a code to the vendor error type string.
func ErrorType(code types.ErrorCode) string {
	switch code {
	case types.ErrInvalidRequest, types.ErrFormatConversion, types.ErrMethodNotAllowed:
		return "invalid_request_error"
	case types.ErrAuthentication:
		return "authentication_error"
	case types.ErrForbidden:
		return "permission_error"
	case types.ErrNotFound, types.ErrExecutableNotFound:
		return "not_found_error"
	case types.ErrPayloadTooLarge:
		return "request_too_large"
	case types.ErrRateLimited:
		return "rate_limit_error"
	case types.ErrInvocationTimeout:
		return "timeout_error"
	case types.ErrServiceUnavailable:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

// WriteError 按 dialect 写入厂商格式的错误响应。
// 非 *types.Error 的错误不会向客户端暴露原始信息。
func WriteError(w http.ResponseWriter, d Dialect, err error, logger *zap.Logger) {
	apiErr := toAPIError(err)
	status := apiErr.HTTPStatus
	if status == 0 {
		status = types.DefaultHTTPStatus(apiErr.Code)
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(apiErr.Code)),
			zap.Int("status", status),
			zap.Error(err),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Debug("API error", fields...)
		}
	}

	if d == DialectOpenAI {
		WriteJSON(w, status, openai.ErrorResponse{Error: &openai.APIError{
			Code:    strings.ToLower(string(apiErr.Code)),
			Message: apiErr.Message,
			Type:    ErrorType(apiErr.Code),
		}})
		return
	}
	WriteJSON(w, status, AnthropicError{
		Type:  "error",
		Error: AnthropicErrorInfo{Type: ErrorType(apiErr.Code), Message: apiErr.Message},
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, d Dialect, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, d, types.NewError(code, message), logger)
}

func toAPIError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return types.Errorf(types.ErrPayloadTooLarge, "request body exceeds %d bytes", mbe.Limit)
	}
	return types.NewError(types.ErrInternalError, "Failed to process request").WithCause(err)
}
