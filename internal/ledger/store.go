// Package ledger keeps the proxy's request counters. Counters are
// best-effort: a failing store is logged and never fails a request.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/localroute/config"
)

// Counter names one statistic.
type Counter string

const (
	TotalRequests   Counter = "total_requests"
	LocalRouted     Counter = "local_routed"
	RemoteForwarded Counter = "remote_forwarded"
	Errors          Counter = "errors"
	BlockedRequests Counter = "blocked_requests"
)

// Counters lists every counter in report order.
var Counters = []Counter{TotalRequests, LocalRouted, RemoteForwarded, Errors, BlockedRequests}

// Stats is a point-in-time view of all counters.
type Stats struct {
	TotalRequests   int64 `json:"total_requests"`
	LocalRouted     int64 `json:"local_routed"`
	RemoteForwarded int64 `json:"remote_forwarded"`
	Errors          int64 `json:"errors"`
	BlockedRequests int64 `json:"blocked_requests"`
}

// set assigns a counter value by name; unknown names are ignored.
func (s *Stats) set(c Counter, v int64) {
	switch c {
	case TotalRequests:
		s.TotalRequests = v
	case LocalRouted:
		s.LocalRouted = v
	case RemoteForwarded:
		s.RemoteForwarded = v
	case Errors:
		s.Errors = v
	case BlockedRequests:
		s.BlockedRequests = v
	}
}

// Store persists counters.
type Store interface {
	Incr(ctx context.Context, c Counter) error
	Snapshot(ctx context.Context) (Stats, error)
	Driver() string
	Close() error
}

// Open builds the Store selected by cfg.Driver.
func Open(cfg config.LedgerConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres", "mysql":
		return OpenSQL(cfg.Driver, cfg.DSN, logger)
	case "redis":
		return OpenRedis(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}

// =============================================================================
// 内存实现
// =============================================================================

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[Counter]*atomic.Int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{counters: make(map[Counter]*atomic.Int64, len(Counters))}
	for _, c := range Counters {
		m.counters[c] = new(atomic.Int64)
	}
	return m
}

func (m *MemoryStore) Incr(_ context.Context, c Counter) error {
	m.mu.RLock()
	v, ok := m.counters[c]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if v, ok = m.counters[c]; !ok {
			v = new(atomic.Int64)
			m.counters[c] = v
		}
		m.mu.Unlock()
	}
	v.Add(1)
	return nil
}

func (m *MemoryStore) Snapshot(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	for c, v := range m.counters {
		s.set(c, v.Load())
	}
	return s, nil
}

func (m *MemoryStore) Driver() string { return "memory" }

func (m *MemoryStore) Close() error { return nil }
