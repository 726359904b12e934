package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/localroute/internal/ledger"
	"github.com/BaSui01/localroute/internal/pool"
	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	"github.com/BaSui01/localroute/types"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// VersionInfo is served on /version.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger: logger.With(zap.String("component", "health")),
		checks: make([]HealthCheck, 0),
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// HandleHealth 处理 /health 请求（存活检查）
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 请求：逐个运行已注册的检查
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version 请求
func (h *HealthHandler) HandleVersion(info VersionInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, info)
	}
}

// =============================================================================
// 📊 统计
// =============================================================================

// StatsResponse is served on /stats.
type StatsResponse struct {
	Requests ledger.Stats                      `json:"requests"`
	Driver   string                            `json:"driver"`
	Pools    map[string]pool.GoroutinePoolStats `json:"pools,omitempty"`
}

// PoolStatser is satisfied by *router.Router.
type PoolStatser interface {
	Stats() pool.GoroutinePoolStats
}

// HandleStats 返回请求计数与异步池状态
func (h *HealthHandler) HandleStats(l *ledger.Ledger, pools map[string]PoolStatser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if l == nil {
			WriteError(w, DialectAnthropic, types.NewError(types.ErrServiceUnavailable, "statistics are not enabled"), h.logger)
			return
		}
		st, err := l.Snapshot(r.Context())
		if err != nil {
			WriteError(w, DialectAnthropic, types.NewError(types.ErrServiceUnavailable, "failed to read statistics").
				WithCause(err), h.logger)
			return
		}

		resp := StatsResponse{Requests: st, Driver: l.Driver()}
		if len(pools) > 0 {
			resp.Pools = make(map[string]pool.GoroutinePoolStats, len(pools))
			for name, p := range pools {
				resp.Pools[name] = p.Stats()
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// ExecutableCheck reports whether a vendor CLI resolves on PATH.
type ExecutableCheck struct {
	family   llm.Family
	template cli.Template
	runner   cli.Runner
}

// NewExecutableCheck 创建 CLI 可用性检查
func NewExecutableCheck(family llm.Family, tpl cli.Template, runner cli.Runner) *ExecutableCheck {
	if runner == nil {
		runner = cli.NewExecRunner()
	}
	return &ExecutableCheck{family: family, template: tpl, runner: runner}
}

func (c *ExecutableCheck) Name() string {
	return "cli." + string(c.family)
}

func (c *ExecutableCheck) Check(ctx context.Context) error {
	if _, err := c.runner.LookPath(c.template.Executable); err != nil {
		return types.Errorf(types.ErrExecutableNotFound, "%s CLI not found", c.template.Executable).WithCause(err)
	}
	return ctx.Err()
}

// FuncCheck adapts a ping function, e.g. a ledger store ping.
type FuncCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewFuncCheck 创建基于函数的健康检查
func NewFuncCheck(name string, ping func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, ping: ping}
}

func (c *FuncCheck) Name() string { return c.name }

func (c *FuncCheck) Check(ctx context.Context) error { return c.ping(ctx) }
