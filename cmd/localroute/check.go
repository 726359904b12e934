package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/BaSui01/localroute/llm/cli"
)

// checkTimeout bounds CLI probing.
const checkTimeout = 10 * time.Second

// cliDisplayName maps an executable to the product name users install.
var cliDisplayName = map[string]string{
	"claude": "Claude Code CLI",
	"codex":  "Codex CLI",
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	return check(args, stdout, stderr, cli.NewExecRunner())
}

// check 查找两个 CLI 并逐个报告；任一缺失时返回 1
func check(args []string, stdout, stderr io.Writer, runner cli.Runner) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML or TOML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	fmt.Fprintln(stdout, "🔍 Checking local CLIs...")
	missing := 0
	for _, res := range lookupExecutables(ctx, runner, cfg.Local) {
		name := cliDisplayName[res.Executable]
		if name == "" {
			name = res.Executable
		}
		if res.Err != nil {
			missing++
			fmt.Fprintf(stdout, "  ❌ %s not found (%s)\n", name, res.Executable)
			fmt.Fprintf(stdout, "⚠️  Warning: %s not found; local routing for %s will fail.\n", name, res.Family)
			continue
		}
		fmt.Fprintf(stdout, "  ✅ %s found at %s\n", name, res.Path)
	}

	if missing > 0 {
		return 1
	}
	return 0
}
