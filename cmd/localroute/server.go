package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/localroute/allowlist"
	"github.com/BaSui01/localroute/api/handlers"
	"github.com/BaSui01/localroute/config"
	"github.com/BaSui01/localroute/internal/ledger"
	"github.com/BaSui01/localroute/internal/metrics"
	"github.com/BaSui01/localroute/internal/pool"
	"github.com/BaSui01/localroute/internal/server"
	"github.com/BaSui01/localroute/internal/telemetry"
	"github.com/BaSui01/localroute/internal/tlsutil"
	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	"github.com/BaSui01/localroute/llm/providers"
	"github.com/BaSui01/localroute/llm/router"
	"github.com/BaSui01/localroute/llm/tokenizer"
)

// families are served side by side; each gets its own router and CLI.
var families = []llm.Family{llm.FamilyAnthropic, llm.FamilyOpenAI}

// familyProvider is the provider token each family's router is built with.
var familyProvider = map[llm.Family]llm.Provider{
	llm.FamilyAnthropic: llm.ProviderClaude,
	llm.FamilyOpenAI:    llm.ProviderCodex,
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 localroute 的主服务器：代理端口 + 可选的 Metrics 端口
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	runner     cli.Runner

	collector *metrics.Collector
	otel      *telemetry.Providers
	ledger    *ledger.Ledger
	routers   map[llm.Family]*router.Router
	allow     *allowlist.List
	family    llm.Family

	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 清理 goroutine 的生命周期
	limiterCancel context.CancelFunc
}

// serverOption 用于测试替换依赖
type serverOption func(*Server)

// withRegistry 使用独立的 Prometheus registry
func withRegistry(reg *prometheus.Registry) serverOption {
	return func(s *Server) {
		s.registerer = reg
		s.gatherer = reg
	}
}

// withRunner 替换子进程执行器
func withRunner(r cli.Runner) serverOption {
	return func(s *Server) { s.runner = r }
}

// NewServer 根据配置组装所有组件，不监听端口
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...serverOption) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		runner:     cli.NewExecRunner(),
		routers:    make(map[llm.Family]*router.Router, len(families)),
	}
	for _, opt := range opts {
		opt(s)
	}

	p, err := llm.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	s.family = p.Family()

	if s.allow, err = cfg.Allowlist.Build(); err != nil {
		return nil, err
	}

	// 1. 指标与遥测
	s.collector = metrics.NewCollectorWith("localroute", s.registerer, logger)
	if s.otel, err = telemetry.Init(cfg.Telemetry, Version, logger); err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		s.otel = nil
	}

	// 2. 统计存储
	store, err := ledger.Open(cfg.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	s.ledger = ledger.New(store, s.collector.RecordLedgerOp, logger)

	// 3. 每个厂商一个 router
	if err := s.initRouters(); err != nil {
		s.close()
		return nil, err
	}

	// 4. HTTP handler
	handler, err := s.initHandler()
	if err != nil {
		s.close()
		return nil, err
	}

	s.httpManager = server.NewManager("proxy", handler, server.Config{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		s.metricsManager = server.NewManager("metrics", mux, server.Config{
			Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.ReadTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, logger)
	}

	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initRouters() error {
	tok, err := tokenizer.New(s.cfg.Local.UsageEstimator)
	if err != nil {
		return err
	}

	poolCfg := pool.DefaultGoroutinePoolConfig()
	poolCfg.MaxWorkers = s.cfg.Local.MaxConcurrent
	if s.cfg.Local.QueueSize > 0 {
		poolCfg.QueueSize = s.cfg.Local.QueueSize
	}

	up := s.cfg.Upstream
	for _, f := range families {
		// 构造时不带凭据：每个请求的 key 通过 CredentialOverride 传入
		rt, err := router.New(string(familyProvider[f]), "",
			router.WithTemplate(s.cfg.Local.Template(f)),
			router.WithTimeout(s.cfg.Local.Timeout),
			router.WithLimits(s.cfg.Limits),
			router.WithRunner(s.runner),
			router.WithTokenizer(tok),
			router.WithPoolConfig(poolCfg),
			router.WithAnthropicConfig(providers.AnthropicConfig{
				BaseURL: up.AnthropicBaseURL,
				Version: up.AnthropicVersion,
				Timeout: up.Timeout,
			}),
			router.WithOpenAIConfig(providers.OpenAIConfig{
				BaseURL: up.OpenAIBaseURL,
				Timeout: up.Timeout,
			}),
			router.WithCLIObserver(s.collector.RecordCLIInvocation),
			router.WithLogger(s.logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s router: %w", f, err)
		}
		s.routers[f] = rt
	}
	return nil
}

func (s *Server) initHandler() (http.Handler, error) {
	upstreams := make(map[llm.Family]string, len(families))
	for _, f := range families {
		upstreams[f] = s.cfg.Upstream.BaseURL(f)
	}

	proxy, err := handlers.NewProxyHandler(handlers.ProxyConfig{
		Routers:       s.routers,
		DefaultFamily: s.family,
		Upstreams:     upstreams,
		Allowlist:     s.allow,
		MaxBodyBytes:  s.cfg.Server.MaxBodyBytes,
		Ledger:        s.ledger,
		Metrics:       s.collector,
		Transport:     tlsutil.UpstreamTransport(s.cfg.Upstream.Timeout),
	}, s.logger)
	if err != nil {
		return nil, err
	}

	// 健康检查：两个 CLI + 统计存储
	health := handlers.NewHealthHandler(s.logger)
	pools := make(map[string]handlers.PoolStatser, len(families))
	for _, f := range families {
		health.RegisterCheck(handlers.NewExecutableCheck(f, s.cfg.Local.Template(f), s.runner))
		pools[string(f)] = s.routers[f]
	}
	health.RegisterCheck(handlers.NewFuncCheck("ledger", func(ctx context.Context) error {
		_, err := s.ledger.Snapshot(ctx)
		return err
	}))

	limiterCtx, cancel := context.WithCancel(context.Background())
	s.limiterCancel = cancel

	// 构建中间件链
	return handlers.NewRouter(handlers.RouterDeps{
		Proxy:   proxy,
		Health:  health,
		Version: handlers.VersionInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit},
		Ledger:  s.ledger,
		Pools:   pools,
	},
		Recovery(s.family, s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector, s.allow),
		CORS(s.cfg.Server.CORSOrigins),
		RateLimiter(limiterCtx, s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst, s.family, s.logger),
	), nil
}

// =============================================================================
// 🔍 CLI 探测
// =============================================================================

// lookupResult 是一次 CLI 查找的结果
type lookupResult struct {
	Family     llm.Family
	Executable string
	Path       string
	Err        error
}

// lookupExecutables 并发查找每个家族的 CLI，结果顺序与 families 一致
func lookupExecutables(ctx context.Context, runner cli.Runner, local config.LocalConfig) []lookupResult {
	results := make([]lookupResult, len(families))
	g, _ := errgroup.WithContext(ctx)
	for i, f := range families {
		g.Go(func() error {
			exe := local.Template(f).Executable
			path, err := runner.LookPath(exe)
			results[i] = lookupResult{Family: f, Executable: exe, Path: path, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// WarnMissingExecutables 启动前提示缺失的 CLI，代理仍会启动
func (s *Server) WarnMissingExecutables(ctx context.Context) {
	for _, res := range lookupExecutables(ctx, s.runner, s.cfg.Local) {
		if res.Err != nil {
			s.logger.Warn(fmt.Sprintf("%s CLI not found; local routing will fail", res.Executable),
				zap.String("family", string(res.Family)))
			continue
		}
		s.logger.Debug("CLI found", zap.String("executable", res.Executable), zap.String("path", res.Path))
	}
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动代理与 Metrics 服务器并阻塞，直到 ctx 结束或任一服务器出错
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}

	s.logger.Info("localroute listening",
		zap.String("addr", s.cfg.Server.Addr()),
		zap.String("default_family", string(s.family)),
		zap.Int("allowed_patterns", s.allow.Len()),
		zap.Bool("metrics_enabled", s.metricsManager != nil),
		zap.Bool("telemetry_enabled", s.otel.Enabled()),
	)

	err := g.Wait()
	s.Shutdown()
	return err
}

// Shutdown 释放 router、统计存储与遥测；HTTP 服务器已由 Run 关闭
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.ledger != nil {
		s.ledger.LogSummary(ctx)
	}
	s.close()

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

func (s *Server) close() {
	if s.limiterCancel != nil {
		s.limiterCancel()
	}
	for _, rt := range s.routers {
		rt.Close()
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Error("ledger close error", zap.Error(err))
		}
	}
}

// ProxyAddr 返回代理实际监听地址，未启动时为空
func (s *Server) ProxyAddr() string {
	return s.httpManager.ListenAddr()
}
