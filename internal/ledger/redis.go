package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/localroute/config"
)

// RedisStore keeps counters in one redis hash, so several proxies can
// share totals.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// OpenRedis connects to cfg.RedisAddr and pings it.
func OpenRedis(cfg config.LedgerConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStore wraps client; counters live under prefix+"stats".
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		key:    prefix + "stats",
		logger: logger.With(zap.String("component", "ledger"), zap.String("driver", "redis")),
	}
}

func (r *RedisStore) Incr(ctx context.Context, c Counter) error {
	if err := r.client.HIncrBy(ctx, r.key, string(c), 1).Err(); err != nil {
		return fmt.Errorf("failed to increment %s: %w", c, err)
	}
	return nil
}

func (r *RedisStore) Snapshot(ctx context.Context) (Stats, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read %s: %w", r.key, err)
	}
	var st Stats
	for name, raw := range fields {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			r.logger.Warn("ignoring malformed counter", zap.String("counter", name), zap.String("value", raw))
			continue
		}
		st.set(Counter(name), v)
	}
	return st, nil
}

func (r *RedisStore) Driver() string { return "redis" }

func (r *RedisStore) Close() error { return r.client.Close() }
