package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BaSui01/localroute/internal/ledger"
)

// RouterDeps collects what NewRouter mounts.
type RouterDeps struct {
	Proxy   http.Handler
	Health  *HealthHandler
	Version VersionInfo
	Ledger  *ledger.Ledger
	Pools   map[string]PoolStatser
}

// NewRouter mounts the admin endpoints and sends every other path through
// the proxy. Admin endpoints bypass the path allow-list.
func NewRouter(d RouterDeps, middlewares ...func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middlewares...)

	health := d.Health
	if health == nil {
		health = NewHealthHandler(nil)
	}

	// ===== 管理端点（不经过白名单）=====
	r.Get("/health", health.HandleHealth)
	r.Get("/ready", health.HandleReady)
	r.Get("/version", health.HandleVersion(d.Version))
	r.Get("/stats", health.HandleStats(d.Ledger, d.Pools))

	// ===== 代理 =====
	r.Handle("/*", d.Proxy)
	return r
}
