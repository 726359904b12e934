package cli

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/transcript"
	"github.com/BaSui01/localroute/types"
)

// fakeRunner is an in-memory Runner.
type fakeRunner struct {
	mu       sync.Mutex
	paths    map[string]string
	run      func(ctx context.Context, cmd Command) (*Output, error)
	commands []Command
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if p, ok := f.paths[name]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (*Output, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	return f.run(ctx, cmd)
}

func echoRun(_ context.Context, cmd Command) (*Output, error) {
	return &Output{Stdout: cmd.Stdin, ExitCode: 0, Duration: time.Millisecond}, nil
}

func TestInvoker_Success(t *testing.T) {
	runner := &fakeRunner{paths: map[string]string{"claude": "/usr/bin/claude"}, run: echoRun}
	var outcomes []string
	inv := NewInvoker(runner, zap.NewNop(), WithObserver(func(exe, outcome string, _ time.Duration) {
		outcomes = append(outcomes, exe+":"+outcome)
	}))

	tr := transcript.Format([]llm.Turn{{Role: llm.RoleUser, Content: "Hello"}}, "")
	spec := SpecFor(DefaultTemplate(llm.FamilyAnthropic), "sonnet", time.Second)

	res, err := inv.Invoke(context.Background(), spec, tr)
	require.NoError(t, err)
	assert.Equal(t, tr.String(), res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"claude:success"}, outcomes)

	require.Len(t, runner.commands, 1)
	assert.Equal(t, "/usr/bin/claude", runner.commands[0].Path)
	assert.Equal(t, []string{"--print", "--model", "sonnet"}, runner.commands[0].Args)
}

func TestInvoker_NotFound(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, Command) (*Output, error) {
		t.Fatal("Run must not be called when LookPath fails")
		return nil, nil
	}}
	inv := NewInvoker(runner, nil)

	_, err := inv.Invoke(context.Background(), Spec{Executable: "codex"}, "Assistant:")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrExecutableNotFound))
	assert.Contains(t, err.Error(), "codex")

	e, _ := types.AsError(err)
	exe, _ := e.Detail(types.DetailExecutable)
	assert.Equal(t, "codex", exe)
}

func TestInvoker_Timeout(t *testing.T) {
	runner := &fakeRunner{
		paths: map[string]string{"claude": "/bin/claude"},
		run: func(ctx context.Context, _ Command) (*Output, error) {
			<-ctx.Done()
			return &Output{Stdout: "partial", ExitCode: -1}, ctx.Err()
		},
	}
	inv := NewInvoker(runner, nil)

	res, err := inv.Invoke(context.Background(), Spec{Executable: "claude", Timeout: 20 * time.Millisecond}, "Assistant:")
	require.Error(t, err)
	assert.Nil(t, res, "no partial stdout on timeout")
	assert.True(t, types.IsCode(err, types.ErrInvocationTimeout))
	assert.Contains(t, err.Error(), "20ms")
}

func TestInvoker_ParentCancelled(t *testing.T) {
	runner := &fakeRunner{
		paths: map[string]string{"claude": "/bin/claude"},
		run: func(ctx context.Context, _ Command) (*Output, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	inv := NewInvoker(runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, Spec{Executable: "claude", Timeout: time.Minute}, "Assistant:")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvoker_NonZeroExit(t *testing.T) {
	runner := &fakeRunner{
		paths: map[string]string{"claude": "/bin/claude"},
		run: func(context.Context, Command) (*Output, error) {
			return &Output{Stdout: "ignored", Stderr: "Error: not logged in\n", ExitCode: 1}, nil
		},
	}
	inv := NewInvoker(runner, nil)

	_, err := inv.Invoke(context.Background(), Spec{Executable: "claude"}, "Assistant:")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCLIProcess))
	assert.Contains(t, err.Error(), "not logged in")

	e, _ := types.AsError(err)
	stderr, _ := e.Detail(types.DetailStderr)
	code, _ := e.Detail(types.DetailExitCode)
	assert.Equal(t, "Error: not logged in", stderr)
	assert.Equal(t, 1, code)
}

func TestInvoker_StartFailure(t *testing.T) {
	runner := &fakeRunner{
		paths: map[string]string{"claude": "/bin/claude"},
		run: func(context.Context, Command) (*Output, error) {
			return nil, errors.New("exec format error")
		},
	}
	inv := NewInvoker(runner, nil)

	_, err := inv.Invoke(context.Background(), Spec{Executable: "claude"}, "Assistant:")
	assert.True(t, types.IsCode(err, types.ErrCLIProcess))
	assert.Contains(t, err.Error(), "exec format error")
}

func TestSpec_Argv(t *testing.T) {
	s := Spec{Args: []string{"--print"}, ModelFlag: "--model"}
	assert.Equal(t, []string{"--print"}, s.Argv(), "no alias, no flag")

	s.ModelAlias = "haiku"
	assert.Equal(t, []string{"--print", "--model", "haiku"}, s.Argv())

	s.ModelFlag = ""
	assert.Equal(t, []string{"--print"}, s.Argv(), "no flag configured")

	assert.Equal(t, DefaultTimeout, Spec{}.timeout())
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		family llm.Family
		model  string
		want   string
	}{
		{llm.FamilyAnthropic, "claude-3-opus-20240229", "opus"},
		{llm.FamilyAnthropic, "claude-3-5-haiku-20241022", "haiku"},
		{llm.FamilyAnthropic, "claude-sonnet-4-20250514", "sonnet"},
		{llm.FamilyAnthropic, "Claude-Opus-Next", "opus"},
		{llm.FamilyAnthropic, "my-custom-model", "my-custom-model"},
		{llm.FamilyAnthropic, "", ""},
		{llm.FamilyOpenAI, "code-davinci-002", "davinci"},
		{llm.FamilyOpenAI, "text-davinci-003", "davinci"},
		{llm.FamilyOpenAI, "Code-Cushman-002", "cushman"},
		{llm.FamilyOpenAI, "opus", "opus"},
		{llm.FamilyOpenAI, "gpt-4o", "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(string(tt.family)+"/"+tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveModel(tt.family, tt.model))
		})
	}
}

func TestKnownModels(t *testing.T) {
	assert.Contains(t, KnownModels(llm.FamilyAnthropic), "claude-3-5-sonnet-20241022")
	assert.Equal(t, []string{"code-cushman-001", "code-davinci-002"}, KnownModels(llm.FamilyOpenAI))
}
