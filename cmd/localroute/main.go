// =============================================================================
// localroute 主入口
// =============================================================================
// 本地路由代理入口，包含 HTTP 代理、CLI 探测、健康检查、Prometheus 指标
//
// 使用方法:
//
//	localroute serve                          # 启动代理
//	localroute serve --config localroute.yaml # 指定配置文件
//	localroute serve --allowed-path '^/v1/batches$'
//	localroute check                          # 检查本地 CLI
//	localroute classify sk-ant-999999999999   # 查看凭据路由
//	localroute version                        # 显示版本信息
//	localroute health                         # 健康检查
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/localroute/allowlist"
	"github.com/BaSui01/localroute/config"
	"github.com/BaSui01/localroute/llm"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	os.Exit(run(os.Args[1], os.Args[2:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(cmd string, args []string, stdout, stderr io.Writer) int {
	switch cmd {
	case "serve":
		return runServe(args, stderr)
	case "check":
		return runCheck(args, stdout, stderr)
	case "classify":
		return runClassify(args, stdout, stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "health":
		return runHealthCheck(args, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

// stringList 是可重复的 flag
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// serveFlags 是 serve 子命令的命令行参数
type serveFlags struct {
	configPath   string
	host         string
	port         int
	allowedPaths string
	allowedPath  stringList
	verbose      bool
}

func parseServeFlags(args []string, stderr io.Writer) (*serveFlags, error) {
	f := &serveFlags{}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "Path to config file (YAML or TOML)")
	fs.StringVar(&f.host, "host", "", "Listen host (overrides server.host)")
	fs.IntVar(&f.port, "port", 0, "Listen port (overrides server.port)")
	fs.StringVar(&f.allowedPaths, "allowed-paths", "", "Comma-separated regex patterns replacing the default allow-list")
	fs.Var(&f.allowedPath, "allowed-path", "Additional regex pattern to allow (repeatable)")
	fs.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&f.verbose, "v", false, "Shorthand for --verbose")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply 将命令行参数覆盖到配置上，优先级高于文件与环境变量
func (f *serveFlags) apply(cfg *config.Config) {
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.allowedPaths != "" {
		cfg.Allowlist.Patterns = allowlist.SplitPatterns(f.allowedPaths)
	}
	cfg.Allowlist.Extra = append(cfg.Allowlist.Extra, f.allowedPath...)
	if f.verbose {
		cfg.Log.Level = "debug"
	}
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func runServe(args []string, stderr io.Writer) int {
	flags, err := parseServeFlags(args, stderr)
	if err != nil {
		return 2
	}

	// 加载配置
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	flags.apply(cfg)

	// 验证配置
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return 1
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting localroute",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to build server", zap.Error(err))
		return 1
	}
	srv.WarnMissingExecutables(ctx)

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return 1
	}

	logger.Info("localroute stopped")
	return 0
}

// =============================================================================
// 🔑 classify 命令
// =============================================================================

func runClassify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	provider := fs.String("provider", string(llm.ProviderClaude), "Provider token: claude, anthropic, codex, openai")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: localroute classify [--provider <token>] <key>")
		return 2
	}

	p, err := llm.ParseProvider(*provider)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid provider: %v\n", err)
		return 2
	}

	key := fs.Arg(0)
	fmt.Fprintf(stdout, "%s\t%s\t%s\n", llm.MaskCredential(key), llm.Classify(key), llm.TargetFor(p, key))
	return 0
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(stdout, "OK")
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "localroute %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `localroute - route LLM API calls to local CLIs

Usage:
  localroute <command> [options]

Commands:
  serve     Start the routing proxy
  check     Look up the claude and codex CLIs on PATH
  classify  Show how a credential would be routed
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>          Path to configuration file (YAML or TOML)
  --host <host>            Listen host (overrides server.host)
  --port <port>            Listen port (overrides server.port)
  --allowed-paths <list>   Comma-separated regex patterns replacing the defaults
  --allowed-path <regex>   Additional allowed path pattern (repeatable)
  -v, --verbose            Enable debug logging

Examples:
  localroute serve --port 8080
  localroute serve --allowed-paths '^/v1/messages$,^/v1/complete$'
  localroute classify sk-ant-999999999999
  localroute health --addr http://localhost:8080
  localroute version

Any API key whose last "-" segment is all 9s (for example 999999999999)
is answered by the local CLI; every other key goes to the vendor API.`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
