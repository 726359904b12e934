package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observer receives the duration of every store operation.
type Observer func(driver, operation string, elapsed time.Duration)

// Ledger records request outcomes into a Store.
type Ledger struct {
	store   Store
	observe Observer
	logger  *zap.Logger
}

// New wraps store. observe may be nil.
func New(store Store, observe Observer, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		observe: observe,
		logger:  logger.With(zap.String("component", "ledger"), zap.String("driver", store.Driver())),
	}
}

// Record increments each counter. Store failures are logged, not returned.
func (l *Ledger) Record(ctx context.Context, counters ...Counter) {
	for _, c := range counters {
		start := time.Now()
		err := l.store.Incr(ctx, c)
		l.observed("incr", start)
		if err != nil {
			l.logger.Warn("failed to record counter", zap.String("counter", string(c)), zap.Error(err))
		}
	}
}

// Snapshot returns the current counters.
func (l *Ledger) Snapshot(ctx context.Context) (Stats, error) {
	start := time.Now()
	st, err := l.store.Snapshot(ctx)
	l.observed("snapshot", start)
	return st, err
}

// LogSummary writes the counters at info level, as done on shutdown.
func (l *Ledger) LogSummary(ctx context.Context) {
	st, err := l.Snapshot(ctx)
	if err != nil {
		l.logger.Warn("failed to read stats", zap.Error(err))
		return
	}
	l.logger.Info("request statistics",
		zap.Int64("total_requests", st.TotalRequests),
		zap.Int64("local_routed", st.LocalRouted),
		zap.Int64("remote_forwarded", st.RemoteForwarded),
		zap.Int64("errors", st.Errors),
		zap.Int64("blocked_requests", st.BlockedRequests),
	)
}

// Driver names the backing store.
func (l *Ledger) Driver() string { return l.store.Driver() }

// Close closes the store.
func (l *Ledger) Close() error { return l.store.Close() }

func (l *Ledger) observed(op string, start time.Time) {
	if l.observe != nil {
		l.observe(l.store.Driver(), op, time.Since(start))
	}
}
