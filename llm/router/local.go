package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	"github.com/BaSui01/localroute/llm/synth"
	"github.com/BaSui01/localroute/llm/transcript"
)

// LocalClient answers Messages requests by running a vendor CLI:
// format → invoke → synthesize. It holds only immutable configuration.
type LocalClient struct {
	family   llm.Family
	template cli.Template
	timeout  time.Duration
	limits   Limits
	invoker  *cli.Invoker
	synth    *synth.Synthesizer
	logger   *zap.Logger
}

// NewLocalClient builds a LocalClient for family from o.
func NewLocalClient(family llm.Family, o *Options) *LocalClient {
	tpl := o.Template
	if tpl.Executable == "" {
		tpl = cli.DefaultTemplate(family)
	}
	var invOpts []cli.Option
	if o.CLIObserver != nil {
		invOpts = append(invOpts, cli.WithObserver(o.CLIObserver))
	}
	return &LocalClient{
		family:   family,
		template: tpl,
		timeout:  o.Timeout,
		limits:   o.Limits,
		invoker:  cli.NewInvoker(o.Runner, o.Logger, invOpts...),
		synth:    synth.New(o.Tokenizer),
		logger:   o.Logger.With(zap.String("component", "local_client"), zap.String("executable", tpl.Executable)),
	}
}

// Executable returns the CLI name this client runs.
func (c *LocalClient) Executable() string { return c.template.Executable }

// Limits returns the validation limits applied to local requests.
func (c *LocalClient) Limits() Limits { return c.limits }

// CreateMessage implements llm.Client.
func (c *LocalClient) CreateMessage(ctx context.Context, req *llm.MessageRequest) (*llm.Envelope, error) {
	if err := ValidateLocal(req, c.limits); err != nil {
		return nil, err
	}

	t := transcript.Format(req.Messages, req.System)
	if c.limits.MaxPromptLength > 0 && len([]rune(t)) > c.limits.MaxPromptLength {
		return nil, invalid("conversation too long for local mode", "messages")
	}
	logState(ctx, c.logger, StateLocalFormatted, zap.Int("transcript_bytes", len(t)))

	return c.run(ctx, t, req.Model)
}

// Complete runs an already-flattened prompt, as used by the legacy
// text-completions endpoint.
func (c *LocalClient) Complete(ctx context.Context, prompt, model string) (*llm.Envelope, error) {
	t := transcript.Prompt(prompt)
	if c.limits.MaxPromptLength > 0 && len([]rune(t)) > c.limits.MaxPromptLength {
		return nil, invalid("prompt too long", "prompt")
	}
	return c.run(ctx, t, model)
}

func (c *LocalClient) run(ctx context.Context, t transcript.Transcript, model string) (*llm.Envelope, error) {
	target := llm.Target{Family: c.family, Route: llm.RouteLocal}
	spec := cli.SpecFor(c.template, cli.ResolveModel(c.family, model), c.timeout)

	res, err := c.invoker.Invoke(ctx, spec, t)
	if err != nil {
		return nil, err
	}
	logState(ctx, c.logger, StateLocalInvoked, zap.Duration("elapsed", res.Duration), zap.Int("stderr_bytes", len(res.Stderr)))

	env := c.synth.Synthesize(res, t, model, target)
	logState(ctx, c.logger, StateLocalSynthesized, zap.String("id", env.ID))
	return env, nil
}
