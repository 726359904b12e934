package router

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/localroute/internal/pool"
	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	"github.com/BaSui01/localroute/llm/providers"
	"github.com/BaSui01/localroute/llm/tokenizer"
)

// Options is the immutable construction-time configuration of a Router.
type Options struct {
	// Template overrides the family's default CLI command.
	Template cli.Template
	// Timeout bounds each CLI run; zero means cli.DefaultTimeout.
	Timeout time.Duration
	Limits  Limits

	// Remote is the passthrough collaborator. Nil builds the default
	// client for the provider's family from AnthropicConfig/OpenAIConfig.
	Remote          llm.Client
	AnthropicConfig providers.AnthropicConfig
	OpenAIConfig    providers.OpenAIConfig

	Runner    cli.Runner
	Tokenizer tokenizer.Tokenizer
	Pool      pool.GoroutinePoolConfig

	CLIObserver   cli.Observer
	RouteObserver func(target llm.Target)

	Logger *zap.Logger
}

// Option configures a Router.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Timeout: cli.DefaultTimeout,
		Pool:    pool.DefaultGoroutinePoolConfig(),
		Logger:  zap.NewNop(),
	}
}

// WithRemote injects the remote API client.
func WithRemote(c llm.Client) Option {
	return func(o *Options) { o.Remote = c }
}

// WithTemplate overrides the CLI command.
func WithTemplate(t cli.Template) Option {
	return func(o *Options) { o.Template = t }
}

// WithTimeout sets the per-call CLI timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithLimits sets request limits for the local route.
func WithLimits(l Limits) Option {
	return func(o *Options) { o.Limits = l }
}

// WithRunner swaps the process runner, typically for a fake in tests.
func WithRunner(r cli.Runner) Option {
	return func(o *Options) { o.Runner = r }
}

// WithTokenizer selects the usage estimator.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *Options) { o.Tokenizer = t }
}

// WithMaxConcurrent bounds how many calls the worker pool runs at once.
func WithMaxConcurrent(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Pool.MaxWorkers = n
		}
	}
}

// WithPoolConfig replaces the async pool configuration.
func WithPoolConfig(c pool.GoroutinePoolConfig) Option {
	return func(o *Options) { o.Pool = c }
}

// WithAnthropicConfig configures the default Anthropic remote client.
func WithAnthropicConfig(c providers.AnthropicConfig) Option {
	return func(o *Options) { o.AnthropicConfig = c }
}

// WithOpenAIConfig configures the default OpenAI remote client.
func WithOpenAIConfig(c providers.OpenAIConfig) Option {
	return func(o *Options) { o.OpenAIConfig = c }
}

// WithCLIObserver registers a hook called after every CLI run.
func WithCLIObserver(obs cli.Observer) Option {
	return func(o *Options) { o.CLIObserver = obs }
}

// WithRouteObserver registers a hook called with each routing decision.
func WithRouteObserver(fn func(llm.Target)) Option {
	return func(o *Options) { o.RouteObserver = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
