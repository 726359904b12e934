package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/localroute/config"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Incr(ctx, TotalRequests))
	}
	require.NoError(t, s.Incr(ctx, LocalRouted))
	require.NoError(t, s.Incr(ctx, LocalRouted))
	require.NoError(t, s.Incr(ctx, RemoteForwarded))
	require.NoError(t, s.Incr(ctx, BlockedRequests))

	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalRequests: 3, LocalRouted: 2, RemoteForwarded: 1, BlockedRequests: 1}, st)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Incr(context.Background(), Errors)
		}()
	}
	wg.Wait()
	st, _ := s.Snapshot(context.Background())
	assert.Equal(t, int64(50), st.Errors)
}

func TestSQLStore_SQLite(t *testing.T) {
	s, err := OpenSQL("sqlite", "", zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "sqlite", s.Driver())
	exerciseStore(t, s)
}

// =============================================================================
// sqlmock：postgres 方言
// =============================================================================

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *SQLStore) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)
	return mock, NewSQLStore(gormDB, "postgres", nil)
}

func TestSQLStore_SnapshotPostgres(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "localroute_stats"`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("total_requests", 7).
			AddRow("errors", 2).
			AddRow("retired_counter", 99))

	st, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalRequests: 7, Errors: 2}, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SnapshotError(t *testing.T) {
	mock, s := setupMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "localroute_stats"`).WillReturnError(errors.New("connection reset"))

	_, err := s.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	_, err := OpenSQL("oracle", "", nil)
	assert.Error(t, err)
}

// =============================================================================
// miniredis
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := OpenRedis(config.LedgerConfig{Driver: "redis", RedisAddr: mr.Addr(), KeyPrefix: "lr:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func TestRedisStore(t *testing.T) {
	mr, s := setupTestRedis(t)
	exerciseStore(t, s)
	assert.Equal(t, "3", mr.HGet("lr:stats", "total_requests"))
}

func TestRedisStore_IgnoresMalformedValues(t *testing.T) {
	mr, s := setupTestRedis(t)
	mr.HSet("lr:stats", "errors", "lots")
	mr.HSet("lr:stats", "local_routed", "4")

	st, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{LocalRouted: 4}, st)
}

func TestRedisStore_SharedBetweenInstances(t *testing.T) {
	mr, a := setupTestRedis(t)
	b := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "lr:", nil)
	defer b.Close()

	require.NoError(t, a.Incr(context.Background(), TotalRequests))
	require.NoError(t, b.Incr(context.Background(), TotalRequests))

	st, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalRequests)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(config.LedgerConfig{RedisAddr: addr}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

// =============================================================================
// Open / Ledger
// =============================================================================

func TestOpen(t *testing.T) {
	s, err := Open(config.LedgerConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Driver())

	s, err = Open(config.LedgerConfig{Driver: "sqlite"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Driver())
	require.NoError(t, s.Close())

	_, err = Open(config.LedgerConfig{Driver: "mongo"}, nil)
	assert.Error(t, err)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Incr(context.Context, Counter) error { return errors.New("disk full") }
func (failingStore) Driver() string                      { return "failing" }

func TestLedger_RecordAndObserve(t *testing.T) {
	var mu sync.Mutex
	ops := map[string]int{}
	l := New(NewMemoryStore(), func(driver, op string, _ time.Duration) {
		mu.Lock()
		ops[driver+"/"+op]++
		mu.Unlock()
	}, nil)

	ctx := context.Background()
	l.Record(ctx, TotalRequests, LocalRouted)
	l.Record(ctx, TotalRequests, Errors)

	st, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalRequests: 2, LocalRouted: 1, Errors: 1}, st)
	assert.Equal(t, map[string]int{"memory/incr": 4, "memory/snapshot": 1}, ops)
	assert.NoError(t, l.Close())
}

func TestLedger_RecordFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := New(&failingStore{MemoryStore: NewMemoryStore()}, nil, zap.New(core))

	assert.NotPanics(t, func() { l.Record(context.Background(), TotalRequests) })
	require.Equal(t, 1, logs.FilterMessage("failed to record counter").Len())
}

func TestLedger_LogSummary(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := New(NewMemoryStore(), nil, zap.New(core))
	l.Record(context.Background(), TotalRequests, RemoteForwarded)
	l.LogSummary(context.Background())

	entries := logs.FilterMessage("request statistics").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["remote_forwarded"])
}
