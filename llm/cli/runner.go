package cli

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Command is one subprocess run: resolved path, argv tail, stdin text.
type Command struct {
	Path  string
	Args  []string
	Stdin string
}

// Output is what a Runner observed. ExitCode is -1 when the process never
// reported one (killed, failed to start).
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner 是子进程执行的窄接口，测试中可替换为假实现。
type Runner interface {
	// LookPath resolves name against the search path.
	LookPath(name string) (string, error)

	// Run starts cmd and waits for it. When ctx ends first the process group
	// is killed and ctx.Err() is returned alongside whatever was captured.
	// A non-zero exit is reported through Output.ExitCode with a nil error.
	Run(ctx context.Context, cmd Command) (*Output, error)
}

// ExecRunner runs real processes via os/exec.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for pipes to close after the
	// process group was killed.
	WaitDelay time.Duration
}

// NewExecRunner creates a runner with a 2s wait delay.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 2 * time.Second}
}

func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (*Output, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = r.WaitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Stdin = strings.NewReader(c.Stdin)

	start := time.Now()
	err := cmd.Run()

	out := &Output{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err
	}
	return out, nil
}
