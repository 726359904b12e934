package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/localroute/allowlist"
	"github.com/BaSui01/localroute/internal/ledger"
	"github.com/BaSui01/localroute/internal/metrics"
	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	"github.com/BaSui01/localroute/llm/router"
)

const (
	sentinelKey = "sk-ant-api03-999999999999"
	realKey     = "sk-ant-api03-realkey"
)

// fakeRunner answers every CLI call in memory.
type fakeRunner struct {
	mu       sync.Mutex
	missing  bool
	answer   string
	stderr   string
	exitCode int
	commands []cli.Command
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/opt/bin/" + name, nil
}

func (f *fakeRunner) Run(_ context.Context, cmd cli.Command) (*cli.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	answer := f.answer
	if answer == "" && f.exitCode == 0 {
		answer = "Hello from the CLI\n"
	}
	return &cli.Output{Stdout: answer, Stderr: f.stderr, ExitCode: f.exitCode, Duration: time.Millisecond}, nil
}

func (f *fakeRunner) calls() []cli.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cli.Command(nil), f.commands...)
}

// upstream is a stand-in vendor API.
type upstream struct {
	*httptest.Server
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	status   int
}

func newUpstream(t *testing.T, status int) *upstream {
	t.Helper()
	u := &upstream{status: status}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.requests = append(u.requests, r)
		u.bodies = append(u.bodies, string(body))
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Request-Id", "req_upstream")
		w.WriteHeader(u.status)
		_, _ = w.Write([]byte(`{"id":"msg_remote","type":"message"}`))
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) hits() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

type proxyFixture struct {
	handler *ProxyHandler
	runner  *fakeRunner
	up      *upstream
	openai  *upstream
	ledger  *ledger.Ledger
	reg     *prometheus.Registry
}

// newProxyFixture serves both families from one stand-in upstream.
func newProxyFixture(t *testing.T, runner *fakeRunner, upstreamStatus int) *proxyFixture {
	t.Helper()
	up := newUpstream(t, upstreamStatus)
	return newProxyFixtureWith(t, runner, up, up)
}

// newSplitProxyFixture gives each family its own upstream.
func newSplitProxyFixture(t *testing.T, runner *fakeRunner) *proxyFixture {
	t.Helper()
	return newProxyFixtureWith(t, runner, newUpstream(t, http.StatusOK), newUpstream(t, http.StatusOK))
}

func newProxyFixtureWith(t *testing.T, runner *fakeRunner, anthropicUp, openaiUp *upstream) *proxyFixture {
	t.Helper()

	routers := make(map[llm.Family]*router.Router)
	for _, p := range []string{"claude", "codex"} {
		rt, err := router.New(p, "", router.WithRunner(runner), router.WithLogger(zap.NewNop()))
		require.NoError(t, err)
		t.Cleanup(rt.Close)
		routers[rt.Provider().Family()] = rt
	}

	reg := prometheus.NewRegistry()
	col := metrics.NewCollectorWith("test", reg, zap.NewNop())
	l := ledger.New(ledger.NewMemoryStore(), col.RecordLedgerOp, zap.NewNop())

	h, err := NewProxyHandler(ProxyConfig{
		Routers:       routers,
		DefaultFamily: llm.FamilyAnthropic,
		Upstreams: map[llm.Family]string{
			llm.FamilyAnthropic: anthropicUp.URL,
			llm.FamilyOpenAI:    openaiUp.URL,
		},
		Allowlist:    allowlist.Default(),
		MaxBodyBytes: 2048,
		Ledger:       l,
		Metrics:      col,
	}, zap.NewNop())
	require.NoError(t, err)

	return &proxyFixture{handler: h, runner: runner, up: anthropicUp, openai: openaiUp, ledger: l, reg: reg}
}

func (f *proxyFixture) do(method, path, key, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		if strings.HasPrefix(path, "/v1/chat") || strings.HasPrefix(path, "/v1/embeddings") {
			r.Header.Set("Authorization", "Bearer "+key)
		} else {
			r.Header.Set("x-api-key", key)
		}
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func (f *proxyFixture) stats(t *testing.T) ledger.Stats {
	t.Helper()
	st, err := f.ledger.Snapshot(context.Background())
	require.NoError(t, err)
	return st
}

func decodeAnthropicError(t *testing.T, w *httptest.ResponseRecorder) AnthropicError {
	t.Helper()
	var e AnthropicError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

// =============================================================================
// 🧪 本地路径
// =============================================================================

func TestProxy_LocalMessages(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)

	w := f.do(http.MethodPost, "/v1/messages", sentinelKey, `{
		"model": "claude-3-opus-20240229",
		"max_tokens": 100,
		"system": [{"type": "text", "text": "Be brief"}],
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "Hi"},
			{"type": "image", "source": {"type": "base64", "media_type": "image/png", "data": "AAAA"}}
		]}]
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "estimated", w.Header().Get(HeaderUsage))
	assert.Equal(t, "local-anthropic", w.Header().Get(HeaderRoute))

	var env llm.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "message", env.Type)
	assert.Equal(t, llm.RoleAssistant, env.Role)
	assert.Equal(t, "claude-3-opus-20240229", env.Model)
	assert.Equal(t, "Hello from the CLI", env.Text())
	assert.True(t, strings.HasPrefix(env.ID, "msg_"))
	assert.Positive(t, env.Usage.InputTokens)

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/opt/bin/claude", calls[0].Path)
	assert.Equal(t, []string{"--print", "--model", "opus"}, calls[0].Args)
	assert.Equal(t, "System: Be brief\n\nHuman: Hi "+llm.ImagePlaceholder+"\n\nAssistant:", calls[0].Stdin)

	assert.Equal(t, ledger.Stats{TotalRequests: 1, LocalRouted: 1}, f.stats(t))
	assert.Zero(t, f.up.hits())
}

func TestProxy_LocalMessagesMaxTokens(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)

	w := f.do(http.MethodPost, "/v1/messages", sentinelKey,
		`{"max_tokens":0,"messages":[{"role":"user","content":"Hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeAnthropicError(t, w)
	assert.Equal(t, "invalid_request_error", e.Error.Type)
	assert.Contains(t, e.Error.Message, "max_tokens")
	assert.Empty(t, f.runner.calls())

	// 缺省时使用默认值
	w = f.do(http.MethodPost, "/v1/messages", sentinelKey, `{"messages":[{"role":"user","content":"Hi"}]}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, f.runner.calls(), 1)
}

func TestProxy_LocalChatCompletions(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{answer: "print('hi')\n"}, http.StatusOK)

	w := f.do(http.MethodPost, "/v1/chat/completions", "999999999999", `{
		"model": "code-davinci-002",
		"messages": [
			{"role": "system", "content": "You write Python"},
			{"role": "user", "content": "Say hi"}
		]
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "local-openai", w.Header().Get(HeaderRoute))

	var resp openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Regexp(t, `^chatcmpl-[0-9a-f]{24}$`, resp.ID)
	assert.Equal(t, "code-davinci-002", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "print('hi')", resp.Choices[0].Message.Content)
	assert.Equal(t, openai.FinishReasonStop, resp.Choices[0].FinishReason)

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/opt/bin/codex", calls[0].Path)
	assert.Equal(t, "System: You write Python\n\nHuman: Say hi\n\nAssistant:", calls[0].Stdin)
}

func TestProxy_LocalChatErrorsUseOpenAIShape(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)

	w := f.do(http.MethodPost, "/v1/chat/completions", "999999999999",
		`{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"Hi"}]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body openai.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "invalid_request_error", body.Error.Type)
	assert.Equal(t, "format_conversion", body.Error.Code)
	assert.Empty(t, f.runner.calls())
	assert.Equal(t, int64(1), f.stats(t).Errors)
}

func TestProxy_LocalComplete(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{answer: " Paris.\n"}, http.StatusOK)

	w := f.do(http.MethodPost, "/v1/complete", sentinelKey,
		`{"prompt":"\n\nHuman: Capital of France?","max_tokens_to_sample":50}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp CompleteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "completion", resp.Type)
	assert.Equal(t, " Paris.", resp.Completion)
	assert.Equal(t, "stop_sequence", resp.StopReason)
	assert.Equal(t, DefaultAnthropicModel, resp.Model)
	assert.True(t, strings.HasPrefix(resp.ID, "compl_"))

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Human: Capital of France?\n\nAssistant:", calls[0].Stdin)
}

func TestProxy_LocalCompleteValidation(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)

	w := f.do(http.MethodPost, "/v1/complete", sentinelKey, `{"prompt":"Hi","max_tokens_to_sample":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeAnthropicError(t, w).Error.Message, "max_tokens_to_sample")

	w = f.do(http.MethodPost, "/v1/complete", sentinelKey, `{"prompt":"Hi","stream":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.runner.calls())
}

func TestProxy_LocalModels(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)

	w := f.do(http.MethodGet, "/v1/models", sentinelKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list openai.ModelsList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, "claude-3-5-sonnet-20241022")

	w = f.do(http.MethodGet, "/v1/models/claude-3-5-sonnet-20241022", sentinelKey, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/v1/models/claude-unknown", sentinelKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found_error", decodeAnthropicError(t, w).Error.Type)
	assert.Empty(t, f.runner.calls())
}

func TestProxy_LocalUnsupportedEndpoint(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)

	w := f.do(http.MethodPost, "/v1/embeddings", "999999999999", `{"input":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body openai.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_found_error", body.Error.Type)
	assert.Contains(t, body.Error.Message, "not supported in local mode")

	st := f.stats(t)
	assert.Equal(t, int64(1), st.LocalRouted)
	assert.Equal(t, int64(1), st.Errors)
	assert.Zero(t, f.up.hits())
}

func TestProxy_LocalMethodNotAllowed(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)

	w := f.do(http.MethodGet, "/v1/messages", sentinelKey, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	assert.Equal(t, "invalid_request_error", decodeAnthropicError(t, w).Error.Type)

	w = f.do(http.MethodOptions, "/v1/messages", sentinelKey, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestProxy_LocalFailures(t *testing.T) {
	tests := []struct {
		name       string
		runner     *fakeRunner
		body       string
		wantStatus int
		wantType   string
		wantMsg    string
	}{
		{
			name:       "cli missing",
			runner:     &fakeRunner{missing: true},
			body:       `{"messages":[{"role":"user","content":"Hi"}]}`,
			wantStatus: http.StatusNotFound,
			wantType:   "not_found_error",
			wantMsg:    "claude",
		},
		{
			name:       "cli exits non-zero",
			runner:     &fakeRunner{exitCode: 1, stderr: "Error: not logged in"},
			body:       `{"messages":[{"role":"user","content":"Hi"}]}`,
			wantStatus: http.StatusInternalServerError,
			wantType:   "api_error",
			wantMsg:    "not logged in",
		},
		{
			name:       "tool_result block",
			runner:     &fakeRunner{},
			body:       `{"messages":[{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"42"}]}]}`,
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_request_error",
			wantMsg:    "tool_result",
		},
		{
			name:       "empty messages",
			runner:     &fakeRunner{},
			body:       `{"messages":[]}`,
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_request_error",
			wantMsg:    "messages",
		},
		{
			name:       "malformed body",
			runner:     &fakeRunner{},
			body:       `{"messages":`,
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_request_error",
			wantMsg:    "JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProxyFixture(t, tt.runner, http.StatusOK)

			w := f.do(http.MethodPost, "/v1/messages", sentinelKey, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			e := decodeAnthropicError(t, w)
			assert.Equal(t, tt.wantType, e.Error.Type)
			assert.Contains(t, e.Error.Message, tt.wantMsg)
			assert.Equal(t, int64(1), f.stats(t).Errors)
		})
	}
}

// =============================================================================
// 🧪 远程透传
// =============================================================================

func TestProxy_RemotePassthrough(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusCreated)

	body := `{"model":"claude-3-opus-20240229","max_tokens":5,"messages":[{"role":"user","content":"Hi"}],"stream":true}`
	r := httptest.NewRequest(http.MethodPost, "/v1/messages?beta=true", strings.NewReader(body))
	r.Header.Set("x-api-key", realKey)
	r.Header.Set("anthropic-version", "2023-06-01")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"msg_remote","type":"message"}`, w.Body.String())
	assert.Equal(t, "req_upstream", w.Header().Get("Request-Id"))
	assert.Empty(t, w.Header().Get(HeaderRoute))

	require.Equal(t, 1, f.up.hits())
	got := f.up.requests[0]
	assert.Equal(t, "/v1/messages", got.URL.Path)
	assert.Equal(t, "beta=true", got.URL.RawQuery)
	assert.Equal(t, realKey, got.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", got.Header.Get("anthropic-version"))
	assert.Equal(t, body, f.up.bodies[0])

	assert.Empty(t, f.runner.calls())
	assert.Equal(t, ledger.Stats{TotalRequests: 1, RemoteForwarded: 1}, f.stats(t))
}

func TestProxy_BearerOnlyGoesToOpenAIUpstream(t *testing.T) {
	f := newSplitProxyFixture(t, &fakeRunner{})

	const secret = "sk-proj-openaisecret"
	paths := []string{"/v1/models", "/v1/files", "/v1/audio/speech"}
	for _, path := range paths {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.Header.Set("Authorization", "Bearer "+secret)
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	assert.Zero(t, f.up.hits(), "an OpenAI key must never reach the Anthropic upstream")
	require.Equal(t, len(paths), f.openai.hits())
	for i, path := range paths {
		got := f.openai.requests[i]
		assert.Equal(t, path, got.URL.Path)
		assert.Equal(t, "Bearer "+secret, got.Header.Get("Authorization"))
	}
}

func TestProxy_BearerOnlyLocalUsesOpenAIFamily(t *testing.T) {
	f := newSplitProxyFixture(t, &fakeRunner{})

	r := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	r.Header.Set("Authorization", "Bearer sk-proj-999999")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local-openai", w.Header().Get(HeaderRoute))
	var list openai.ModelsList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, cli.KnownModels(llm.FamilyOpenAI), ids)

	// 错误体使用 OpenAI 格式
	r = httptest.NewRequest(http.MethodGet, "/v1/models/gpt-unknown", nil)
	r.Header.Set("Authorization", "Bearer sk-proj-999999")
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body openai.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "not_found_error", body.Error.Type)
	assert.Zero(t, f.up.hits()+f.openai.hits())
}

func TestFamilyFor(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    llm.Family
	}{
		{"messages path", "/v1/messages", map[string]string{"Authorization": "Bearer k"}, llm.FamilyAnthropic},
		{"chat path", "/v1/chat/completions", map[string]string{"x-api-key": "k"}, llm.FamilyOpenAI},
		{"x-api-key", "/v1/models", map[string]string{"x-api-key": "k"}, llm.FamilyAnthropic},
		{"anthropic-version", "/v1/files", map[string]string{"anthropic-version": "2023-06-01", "Authorization": "Bearer k"}, llm.FamilyAnthropic},
		{"bearer only", "/v1/files", map[string]string{"Authorization": "Bearer k"}, llm.FamilyOpenAI},
		{"no headers", "/v1/models", nil, llm.FamilyAnthropic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, FamilyFor(r, llm.FamilyAnthropic))
		})
	}
}

func TestProxy_RemoteWithoutKey(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusUnauthorized)

	w := f.do(http.MethodPost, "/v1/messages", "", `{"messages":[{"role":"user","content":"Hi"}]}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, f.up.hits())

	st := f.stats(t)
	assert.Equal(t, int64(1), st.RemoteForwarded)
	assert.Equal(t, int64(1), st.Errors)
}

func TestProxy_RemoteUpstreamDown(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)
	f.up.Close()

	w := f.do(http.MethodPost, "/v1/messages", realKey, `{}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "api_error", decodeAnthropicError(t, w).Error.Type)
}

// =============================================================================
// 🧪 请求闸门
// =============================================================================

func TestProxy_Gate(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantType   string
	}{
		{"method", http.MethodDelete, "/v1/messages", "", http.StatusMethodNotAllowed, "invalid_request_error"},
		{"path", http.MethodPost, "/admin/keys", `{}`, http.StatusNotFound, "not_found_error"},
		{"body size", http.MethodPost, "/v1/messages", `{"pad":"` + strings.Repeat("x", 4096) + `"}`, http.StatusRequestEntityTooLarge, "request_too_large"},
	}

	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, sentinelKey, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantType, decodeAnthropicError(t, w).Error.Type)
		})
	}

	assert.Empty(t, f.runner.calls())
	assert.Zero(t, f.up.hits())
	assert.Equal(t, ledger.Stats{TotalRequests: 3, BlockedRequests: 3}, f.stats(t))

	n, err := testutil.GatherAndCount(f.reg, "test_blocked_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestProxy_RecordsRouteMetrics(t *testing.T) {
	f := newProxyFixture(t, &fakeRunner{}, http.StatusOK)

	f.do(http.MethodPost, "/v1/messages", sentinelKey, `{"messages":[{"role":"user","content":"Hi"}]}`)
	f.do(http.MethodPost, "/v1/messages", realKey, `{}`)

	n, err := testutil.GatherAndCount(f.reg, "test_route_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(f.reg, "test_estimated_tokens_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// =============================================================================
// 🧪 辅助函数
// =============================================================================

func TestCredentialFrom(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"x-api-key", map[string]string{"x-api-key": "sk-ant-1"}, "sk-ant-1"},
		{"bearer", map[string]string{"Authorization": "Bearer sk-proj-2"}, "sk-proj-2"},
		{"bearer lowercase", map[string]string{"Authorization": "bearer 9999"}, "9999"},
		{"x-api-key wins", map[string]string{"x-api-key": "a", "Authorization": "Bearer b"}, "a"},
		{"basic auth ignored", map[string]string{"Authorization": "Basic dXNlcg=="}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, CredentialFrom(r))
		})
	}
}

func TestNewProxyHandler_Errors(t *testing.T) {
	_, err := NewProxyHandler(ProxyConfig{DefaultFamily: llm.FamilyAnthropic}, nil)
	assert.Error(t, err)

	rt, err := router.New("claude", "", router.WithRunner(&fakeRunner{}))
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	_, err = NewProxyHandler(ProxyConfig{
		Routers:       map[llm.Family]*router.Router{llm.FamilyAnthropic: rt},
		DefaultFamily: llm.FamilyAnthropic,
		Upstreams:     map[llm.Family]string{llm.FamilyAnthropic: "api.anthropic.com"},
	}, nil)
	assert.Error(t, err)
}
