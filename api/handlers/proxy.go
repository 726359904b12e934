package handlers

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/BaSui01/localroute/allowlist"
	"github.com/BaSui01/localroute/internal/ledger"
	"github.com/BaSui01/localroute/internal/metrics"
	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	oaiconv "github.com/BaSui01/localroute/llm/providers/openai"
	"github.com/BaSui01/localroute/llm/router"
	"github.com/BaSui01/localroute/llm/synth"
	"github.com/BaSui01/localroute/types"
)

// =============================================================================
// 🔀 代理 Handler
// =============================================================================

// Response headers set on locally answered requests.
const (
	HeaderUsage = "X-Localroute-Usage"
	HeaderRoute = "X-Localroute-Route"
)

// ProxyConfig wires a ProxyHandler.
type ProxyConfig struct {
	// Routers holds one router per family; DefaultFamily must be present.
	Routers       map[llm.Family]*router.Router
	DefaultFamily llm.Family
	// Upstreams maps a family to the vendor base URL used for passthrough.
	Upstreams    map[llm.Family]string
	Allowlist    *allowlist.List
	MaxBodyBytes int64
	Ledger       *ledger.Ledger
	Metrics      *metrics.Collector
	// Transport is used for passthrough; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// ProxyHandler 是代理入口：先过请求闸门，再按凭据把请求交给本地 CLI
// 或原样转发给厂商 API。
type ProxyHandler struct {
	routers  map[llm.Family]*router.Router
	family   llm.Family
	upstream map[llm.Family]*httputil.ReverseProxy
	allow    *allowlist.List
	maxBody  int64
	ledger   *ledger.Ledger
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewProxyHandler validates cfg and builds the passthrough proxies.
func NewProxyHandler(cfg ProxyConfig, logger *zap.Logger) (*ProxyHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, ok := cfg.Routers[cfg.DefaultFamily]; !ok {
		return nil, types.Errorf(types.ErrConfiguration, "no router for default family %q", cfg.DefaultFamily)
	}
	if cfg.Allowlist == nil {
		cfg.Allowlist = allowlist.Default()
	}

	h := &ProxyHandler{
		routers:  cfg.Routers,
		family:   cfg.DefaultFamily,
		upstream: make(map[llm.Family]*httputil.ReverseProxy, len(cfg.Upstreams)),
		allow:    cfg.Allowlist,
		maxBody:  cfg.MaxBodyBytes,
		ledger:   cfg.Ledger,
		metrics:  cfg.Metrics,
		logger:   logger.With(zap.String("component", "proxy")),
	}
	for family, base := range cfg.Upstreams {
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, types.Errorf(types.ErrConfiguration, "invalid upstream URL %q for %s", base, family).WithCause(err)
		}
		h.upstream[family] = h.newReverseProxy(family, u, cfg.Transport)
	}
	return h, nil
}

func (h *ProxyHandler) newReverseProxy(family llm.Family, target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	dialect := DialectFor(family)
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			WriteError(w, dialect, types.NewError(types.ErrUpstream, "upstream request failed").
				WithHTTPStatus(http.StatusBadGateway).
				WithProvider(string(family)).
				WithCause(err), h.logger)
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	family := h.familyFor(r)
	dialect := DialectFor(family)
	h.record(ctx, ledger.TotalRequests)

	// 闸门顺序：方法 → 路径白名单 → 请求体大小
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodOptions:
	default:
		h.block(w, r, dialect, "method", types.Errorf(types.ErrMethodNotAllowed, "Method %s not allowed", r.Method))
		return
	}
	if !h.allow.Allowed(r.URL.Path) {
		h.block(w, r, dialect, "path", types.Errorf(types.ErrNotFound, "Path %s is not allowed", r.URL.Path))
		return
	}
	if h.maxBody > 0 {
		if r.ContentLength > h.maxBody {
			h.block(w, r, dialect, "body_size", types.Errorf(types.ErrPayloadTooLarge, "request body exceeds %d bytes", h.maxBody))
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
		}
	}

	key := CredentialFrom(r)
	ctx = llm.WithCredentialOverride(ctx, llm.CredentialOverride{APIKey: key})
	rt := h.routerFor(family)
	target := rt.TargetFor(ctx)
	if h.metrics != nil {
		h.metrics.RecordRoute(string(target.Family), string(target.Route))
	}
	h.logger.Debug("request routed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("target", target.String()),
		zap.String("key", llm.MaskCredential(key)),
	)

	rw := NewResponseWriter(w)
	if target.Route == llm.RouteRemote {
		h.record(ctx, ledger.RemoteForwarded)
		h.forward(rw, r, family)
	} else {
		h.record(ctx, ledger.LocalRouted)
		rw.Header().Set(HeaderRoute, target.String())
		h.serveLocal(rw, r.WithContext(ctx), rt, dialect)
	}

	if rw.StatusCode >= http.StatusBadRequest {
		h.record(ctx, ledger.Errors)
	}
}

func (h *ProxyHandler) forward(w http.ResponseWriter, r *http.Request, family llm.Family) {
	rp, ok := h.upstream[family]
	if !ok {
		WriteError(w, DialectFor(family), types.Errorf(types.ErrConfiguration, "no upstream configured for %s", family), h.logger)
		return
	}
	rp.ServeHTTP(w, r)
}

func (h *ProxyHandler) block(w http.ResponseWriter, r *http.Request, d Dialect, reason string, err *types.Error) {
	h.record(r.Context(), ledger.BlockedRequests)
	if h.metrics != nil {
		h.metrics.RecordBlocked(reason)
	}
	h.logger.Info("request blocked",
		zap.String("reason", reason),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	WriteError(w, d, err, nil)
}

func (h *ProxyHandler) record(ctx context.Context, c ledger.Counter) {
	if h.ledger != nil {
		h.ledger.Record(ctx, c)
	}
}

func (h *ProxyHandler) routerFor(f llm.Family) *router.Router {
	if rt, ok := h.routers[f]; ok {
		return rt
	}
	return h.routers[h.family]
}

func (h *ProxyHandler) familyFor(r *http.Request) llm.Family {
	return FamilyFor(r, h.family)
}

// FamilyFor picks the vendor family a request speaks: by path first, then by
// the anthropic-version or x-api-key header, then a bare Authorization bearer
// (the OpenAI SDK shape), then fallback.
func FamilyFor(r *http.Request, fallback llm.Family) llm.Family {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/v1/messages", strings.HasPrefix(path, "/v1/messages/"), path == "/v1/complete":
		return llm.FamilyAnthropic
	case strings.HasPrefix(path, "/v1/chat/"), path == "/v1/completions", path == "/v1/embeddings":
		return llm.FamilyOpenAI
	}
	if r.Header.Get("anthropic-version") != "" || r.Header.Get("x-api-key") != "" {
		return llm.FamilyAnthropic
	}
	if bearerToken(r) != "" {
		return llm.FamilyOpenAI
	}
	return fallback
}

// CredentialFrom reads the caller's key from x-api-key, falling back to an
// Authorization bearer token.
func CredentialFrom(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("x-api-key")); k != "" {
		return k
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// =============================================================================
// 🖥️ 本地端点
// =============================================================================

func (h *ProxyHandler) serveLocal(w http.ResponseWriter, r *http.Request, rt *router.Router, d Dialect) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/v1/messages":
		h.local(w, r, d, http.MethodPost, func() (any, *llm.Envelope, error) { return h.messages(r, rt) })
	case path == "/v1/complete":
		h.local(w, r, d, http.MethodPost, func() (any, *llm.Envelope, error) { return h.complete(r, rt) })
	case path == "/v1/chat/completions":
		h.local(w, r, d, http.MethodPost, func() (any, *llm.Envelope, error) { return h.chat(r, rt) })
	case path == "/v1/models", strings.HasPrefix(path, "/v1/models/"):
		h.local(w, r, d, http.MethodGet, func() (any, *llm.Envelope, error) { return h.models(path, rt) })
	default:
		h.localError(w, d, types.Errorf(types.ErrNotFound, "Endpoint %s not supported in local mode", r.URL.Path))
	}
}

func (h *ProxyHandler) local(w http.ResponseWriter, r *http.Request, d Dialect, method string, fn func() (any, *llm.Envelope, error)) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", method+", "+http.MethodOptions)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != method {
		w.Header().Set("Allow", method)
		h.localError(w, d, types.Errorf(types.ErrMethodNotAllowed, "Method %s not allowed for %s", r.Method, r.URL.Path))
		return
	}

	body, env, err := fn()
	if err != nil {
		h.localError(w, d, err)
		return
	}
	if env != nil && env.Usage.Estimated {
		w.Header().Set(HeaderUsage, "estimated")
		if h.metrics != nil {
			h.metrics.RecordEstimatedTokens(env.Usage.InputTokens, env.Usage.OutputTokens)
		}
	}
	WriteJSON(w, http.StatusOK, body)
}

func (h *ProxyHandler) localError(w http.ResponseWriter, d Dialect, err error) {
	if h.metrics != nil {
		code := types.GetErrorCode(err)
		if code == "" {
			code = types.ErrInternalError
		}
		h.metrics.RecordError(string(code))
	}
	WriteError(w, d, err, h.logger)
}

// track marks a CLI call in flight for the gauge.
func (h *ProxyHandler) track() func() {
	if h.metrics == nil {
		return func() {}
	}
	return h.metrics.TrackCLI()
}

func (h *ProxyHandler) messages(r *http.Request, rt *router.Router) (any, *llm.Envelope, error) {
	var body MessagesBody
	if err := DecodeJSONBody(r, &body); err != nil {
		return nil, nil, err
	}
	req, err := body.ToMessageRequest()
	if err != nil {
		return nil, nil, err
	}
	done := h.track()
	env, err := rt.CreateMessageWait(r.Context(), req)
	done()
	if err != nil {
		return nil, nil, err
	}
	return env, env, nil
}

func (h *ProxyHandler) complete(r *http.Request, rt *router.Router) (any, *llm.Envelope, error) {
	var body CompleteBody
	if err := DecodeJSONBody(r, &body); err != nil {
		return nil, nil, err
	}
	if err := body.Validate(rt.Local().Limits().MaxTokens); err != nil {
		return nil, nil, err
	}
	if body.Model == "" {
		body.Model = DefaultAnthropicModel
	}

	done := h.track()
	env, err := rt.CompleteWait(r.Context(), body.Prompt, body.Model)
	done()
	if err != nil {
		return nil, nil, err
	}
	return CompleteResponse{
		Type:       "completion",
		ID:         synth.NewCompletionID(),
		Completion: env.Text(),
		StopReason: "stop_sequence",
		Model:      body.Model,
	}, env, nil
}

func (h *ProxyHandler) chat(r *http.Request, rt *router.Router) (any, *llm.Envelope, error) {
	var body openai.ChatCompletionRequest
	if err := DecodeJSONBody(r, &body); err != nil {
		return nil, nil, err
	}
	req, err := oaiconv.FromChatRequest(body)
	if err != nil {
		return nil, nil, err
	}
	done := h.track()
	env, err := rt.CreateMessageWait(r.Context(), req)
	done()
	if err != nil {
		return nil, nil, err
	}
	return oaiconv.ToChatResponse(env), env, nil
}

func (h *ProxyHandler) models(path string, rt *router.Router) (any, *llm.Envelope, error) {
	family := rt.Provider().Family()
	known := cli.KnownModels(family)

	list := openai.ModelsList{Models: make([]openai.Model, 0, len(known))}
	for _, id := range known {
		list.Models = append(list.Models, openai.Model{ID: id, Object: "model", OwnedBy: string(family)})
	}

	id := strings.TrimPrefix(path, "/v1/models")
	if id = strings.TrimPrefix(id, "/"); id == "" {
		return list, nil, nil
	}
	for _, m := range list.Models {
		if m.ID == id {
			return m, nil, nil
		}
	}
	return nil, nil, types.Errorf(types.ErrNotFound, "model %s not found", id)
}
