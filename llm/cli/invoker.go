package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/localroute/llm/transcript"
	"github.com/BaSui01/localroute/types"
)

// DefaultTimeout bounds a CLI run when Spec.Timeout is unset.
const DefaultTimeout = 120 * time.Second

// Outcome labels reported to an Observer.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeTimeout  = "timeout"
	OutcomeExitCode = "exit_error"
	OutcomeFailed   = "failed"
)

// Spec describes one CLI invocation. Immutable per call.
type Spec struct {
	Executable string
	Args       []string
	ModelFlag  string
	ModelAlias string
	Timeout    time.Duration
}

// SpecFor builds a Spec from a family template.
func SpecFor(t Template, modelAlias string, timeout time.Duration) Spec {
	return Spec{
		Executable: t.Executable,
		Args:       t.Args,
		ModelFlag:  t.ModelFlag,
		ModelAlias: modelAlias,
		Timeout:    timeout,
	}
}

// Argv returns the argument list passed after the executable.
func (s Spec) Argv() []string {
	args := make([]string, 0, len(s.Args)+2)
	args = append(args, s.Args...)
	if s.ModelFlag != "" && s.ModelAlias != "" {
		args = append(args, s.ModelFlag, s.ModelAlias)
	}
	return args
}

func (s Spec) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

// Result is a successful CLI run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Observer receives one callback per Invoke.
type Observer func(executable, outcome string, elapsed time.Duration)

// Invoker runs a CLI with a transcript on stdin.
type Invoker struct {
	runner   Runner
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithObserver registers a metrics hook.
func WithObserver(o Observer) Option {
	return func(i *Invoker) { i.observer = o }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(i *Invoker) { i.tracer = t }
}

// NewInvoker creates an Invoker. A nil runner selects ExecRunner.
func NewInvoker(runner Runner, logger *zap.Logger, opts ...Option) *Invoker {
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	inv := &Invoker{
		runner: runner,
		logger: logger.With(zap.String("component", "cli_invoker")),
		tracer: otel.Tracer("localroute/cli"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke resolves spec.Executable, writes t to its stdin and waits for it,
// bounded by spec.Timeout. Errors are *types.Error with code
// EXECUTABLE_NOT_FOUND, INVOCATION_TIMEOUT or CLI_PROCESS; a cancelled
// parent context is returned as ctx.Err().
func (i *Invoker) Invoke(ctx context.Context, spec Spec, t transcript.Transcript) (*Result, error) {
	ctx, span := i.tracer.Start(ctx, "cli.invoke", trace.WithAttributes(
		attribute.String("cli.executable", spec.Executable),
		attribute.String("cli.model", spec.ModelAlias),
	))
	defer span.End()

	res, outcome, elapsed, err := i.invoke(ctx, spec, t)
	if i.observer != nil {
		i.observer(spec.Executable, outcome, elapsed)
	}
	span.SetAttributes(attribute.String("cli.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return res, nil
}

func (i *Invoker) invoke(ctx context.Context, spec Spec, t transcript.Transcript) (*Result, string, time.Duration, error) {
	path, err := i.runner.LookPath(spec.Executable)
	if err != nil {
		i.logger.Warn("executable not found", zap.String("executable", spec.Executable), zap.Error(err))
		return nil, OutcomeNotFound, 0, types.Errorf(types.ErrExecutableNotFound,
			"%s CLI not found on PATH, install it and make sure it is on the search path", spec.Executable).
			WithDetail(types.DetailExecutable, spec.Executable).
			WithCause(err)
	}

	timeout := spec.timeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := spec.Argv()
	i.logger.Debug("running CLI",
		zap.String("path", path),
		zap.Strings("args", args),
		zap.Int("stdin_bytes", len(t)),
		zap.Duration("timeout", timeout),
	)

	out, err := i.runner.Run(runCtx, Command{Path: path, Args: args, Stdin: string(t)})
	var elapsed time.Duration
	if out != nil {
		elapsed = out.Duration
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		i.logger.Warn("CLI timed out, process group killed",
			zap.String("executable", spec.Executable),
			zap.Duration("timeout", timeout),
		)
		return nil, OutcomeTimeout, elapsed, types.Errorf(types.ErrInvocationTimeout,
			"%s did not finish within %s", spec.Executable, timeout).
			WithDetail(types.DetailExecutable, spec.Executable).
			WithDetail(types.DetailTimeout, timeout.String()).
			WithRetryable(true)
	case errors.Is(err, context.Canceled):
		return nil, OutcomeFailed, elapsed, err
	case err != nil:
		return nil, OutcomeFailed, elapsed, types.Errorf(types.ErrCLIProcess,
			"failed to run %s", spec.Executable).
			WithDetail(types.DetailExecutable, spec.Executable).
			WithCause(err)
	}

	if out.ExitCode != 0 {
		stderr := strings.TrimSpace(out.Stderr)
		i.logger.Warn("CLI exited with error",
			zap.String("executable", spec.Executable),
			zap.Int("exit_code", out.ExitCode),
			zap.String("stderr", stderr),
		)
		return nil, OutcomeExitCode, elapsed, types.NewError(types.ErrCLIProcess,
			fmt.Sprintf("%s exited with status %d: %s", spec.Executable, out.ExitCode, stderrOrPlaceholder(stderr))).
			WithDetail(types.DetailExecutable, spec.Executable).
			WithDetail(types.DetailExitCode, out.ExitCode).
			WithDetail(types.DetailStderr, stderr)
	}

	return &Result{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: 0,
		Duration: out.Duration,
	}, OutcomeSuccess, elapsed, nil
}

func stderrOrPlaceholder(s string) string {
	if s == "" {
		return "(no stderr output)"
	}
	return s
}
