package router

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/localroute/internal/pool"
	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/providers/anthropic"
	"github.com/BaSui01/localroute/llm/providers/openai"
	"github.com/BaSui01/localroute/types"
)

var (
	_ llm.Client      = (*Router)(nil)
	_ llm.AsyncClient = (*Router)(nil)
)

// Router is the single entry point for Messages calls. Each call is routed
// by its credential: the sentinel key selects the local CLI, anything else
// goes to the vendor API unchanged.
//
// A Router holds immutable configuration after New and is safe for
// concurrent use.
type Router struct {
	provider   llm.Provider
	credential string
	local      *LocalClient
	remote     llm.Client
	pool       *pool.GoroutinePool
	inst       *instruments
	onRoute    func(llm.Target)
	logger     *zap.Logger
}

// New builds a Router for provider ("claude", "anthropic", "codex" or
// "openai"). credential is the construction-time API key; a per-call
// llm.CredentialOverride in the context takes precedence.
func New(provider, credential string, opts ...Option) (*Router, error) {
	p, err := llm.ParseProvider(provider)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Limits == (Limits{}) {
		o.Limits = DefaultLimits()
	}

	family := p.Family()
	logger := o.Logger.With(zap.String("component", "router"), zap.String("provider", string(p)))

	remote := o.Remote
	if remote == nil {
		remote = defaultRemote(family, credential, o, logger)
	}

	inst, err := newInstruments()
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "failed to create router instruments").WithCause(err)
	}

	r := &Router{
		provider:   p,
		credential: credential,
		local:      NewLocalClient(family, o),
		remote:     remote,
		pool:       pool.NewGoroutinePool(o.Pool),
		inst:       inst,
		onRoute:    o.RouteObserver,
		logger:     logger,
	}
	logger.Info("router created",
		zap.String("target", llm.TargetFor(p, credential).String()),
		zap.String("credential", llm.MaskCredential(credential)),
		zap.String("executable", r.local.Executable()),
	)
	return r, nil
}

func defaultRemote(family llm.Family, credential string, o *Options, logger *zap.Logger) llm.Client {
	switch family {
	case llm.FamilyOpenAI:
		cfg := o.OpenAIConfig
		if cfg.APIKey == "" {
			cfg.APIKey = credential
		}
		return openai.New(cfg, logger)
	default:
		cfg := o.AnthropicConfig
		if cfg.APIKey == "" {
			cfg.APIKey = credential
		}
		return anthropic.New(cfg, logger)
	}
}

// Provider returns the parsed provider token.
func (r *Router) Provider() llm.Provider { return r.provider }

// Target returns the routing decision for the construction credential.
func (r *Router) Target() llm.Target { return llm.TargetFor(r.provider, r.credential) }

// TargetFor returns the routing decision for ctx, honoring a credential
// override.
func (r *Router) TargetFor(ctx context.Context) llm.Target {
	return llm.TargetFor(r.provider, llm.CredentialFromContext(ctx, r.credential))
}

// Local exposes the local client, used by the legacy completions endpoint.
func (r *Router) Local() *LocalClient { return r.local }

// CreateMessage implements llm.Client. Remote results and errors are
// returned exactly as the remote client produced them.
func (r *Router) CreateMessage(ctx context.Context, req *llm.MessageRequest) (*llm.Envelope, error) {
	logState(ctx, r.logger, StateStart)
	target := r.TargetFor(ctx)
	logState(ctx, r.logger, StateClassified, zap.String("target", target.String()))
	if r.onRoute != nil {
		r.onRoute(target)
	}

	ctx, span := r.inst.tracer.Start(ctx, "router.create_message", trace.WithAttributes(
		attribute.String("route.target", target.String()),
		attribute.String("request.model", modelOf(req)),
	))
	defer span.End()

	start := time.Now()
	var (
		env *llm.Envelope
		err error
	)
	if target.Route == llm.RouteLocal {
		env, err = r.local.CreateMessage(ctx, req)
	} else {
		logState(ctx, r.logger, StateRemoteDispatched)
		env, err = r.remote.CreateMessage(ctx, req)
	}
	elapsed := time.Since(start)

	var in, out int
	if env != nil {
		in, out = env.Usage.InputTokens, env.Usage.OutputTokens
	}
	r.inst.record(ctx, target.String(), target.Route == llm.RouteLocal, in, out, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(types.GetErrorCode(err)))
		r.logger.Debug("call failed", zap.String("target", target.String()), zap.Error(err))
		return nil, err
	}
	logState(ctx, r.logger, StateDone, zap.Duration("elapsed", elapsed))
	return env, nil
}

// CreateMessageAsync runs CreateMessage on the router's worker pool so the
// caller never blocks on the CLI. The returned channel yields exactly one
// Result and is then closed.
func (r *Router) CreateMessageAsync(ctx context.Context, req *llm.MessageRequest) (<-chan llm.Result, error) {
	ch := make(chan llm.Result, 1)
	err := r.pool.Submit(ctx, func(ctx context.Context) (err error) {
		defer close(ch)
		defer func() {
			if rec := recover(); rec != nil {
				err = types.Errorf(types.ErrInternalError, "create message panicked: %v", rec)
				ch <- llm.Result{Err: err}
			}
		}()
		if err := ctx.Err(); err != nil {
			ch <- llm.Result{Err: err}
			return err
		}
		env, err := r.CreateMessage(ctx, req)
		ch <- llm.Result{Envelope: env, Err: err}
		return err
	})
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "router is at capacity or closed").
			WithRetryable(true).
			WithCause(err)
	}
	return ch, nil
}

// CreateMessageWait runs CreateMessage on the worker pool, blocking until a
// slot is free. The HTTP proxy calls it so that at most MaxWorkers CLIs run
// at once; results and errors are returned as CreateMessage produced them.
func (r *Router) CreateMessageWait(ctx context.Context, req *llm.MessageRequest) (*llm.Envelope, error) {
	return r.wait(ctx, func(ctx context.Context) (*llm.Envelope, error) {
		return r.CreateMessage(ctx, req)
	})
}

// CompleteWait is CreateMessageWait for a legacy completion prompt. It
// always runs the local CLI.
func (r *Router) CompleteWait(ctx context.Context, prompt, model string) (*llm.Envelope, error) {
	return r.wait(ctx, func(ctx context.Context) (*llm.Envelope, error) {
		return r.local.Complete(ctx, prompt, model)
	})
}

func (r *Router) wait(ctx context.Context, call func(ctx context.Context) (*llm.Envelope, error)) (*llm.Envelope, error) {
	res := make(chan llm.Result, 1)
	err := r.pool.SubmitWait(ctx, func(ctx context.Context) error {
		env, err := call(ctx)
		res <- llm.Result{Envelope: env, Err: err}
		return err
	})

	// 任务已执行：结果先于 SubmitWait 返回写入
	select {
	case out := <-res:
		return out.Envelope, out.Err
	default:
	}

	switch {
	case errors.Is(err, pool.ErrPoolClosed):
		return nil, types.NewError(types.ErrServiceUnavailable, "router is closed").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, types.NewError(types.ErrInvocationTimeout, "timed out waiting for a free CLI slot").WithCause(err)
	}
	return nil, err
}

// Stats returns the async pool statistics.
func (r *Router) Stats() pool.GoroutinePoolStats { return r.pool.Stats() }

// Close stops the async pool, waiting for in-flight calls.
func (r *Router) Close() {
	r.pool.Close()
}

func modelOf(req *llm.MessageRequest) string {
	if req == nil {
		return ""
	}
	return req.Model
}
