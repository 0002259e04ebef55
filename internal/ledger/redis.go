package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// hashClient is the subset of the redis client used by RedisLedger.
type hashClient interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLedger keeps counters in a redis hash so that several processes
// serving the same scope share one atomic count per tool (HINCRBY).
type RedisLedger struct {
	client      hashClient
	countKey    string
	durationKey string
	logger      *slog.Logger
	timeout     time.Duration
}

// recordTimeout bounds the writes of one Record call.
const recordTimeout = 2 * time.Second

// NewRedis returns a ledger stored under "<prefix>:<scope>:calls" and
// "<prefix>:<scope>:duration_us".
func NewRedis(client redis.UniversalClient, prefix, scope string) (*RedisLedger, error) {
	if client == nil {
		return nil, errors.New("ledger: redis client is required")
	}
	return newRedis(client, prefix, scope), nil
}

func newRedis(client hashClient, prefix, scope string) *RedisLedger {
	if prefix == "" {
		prefix = "toolwarden"
	}
	if scope == "" {
		scope = "process"
	}
	base := prefix + ":" + scope
	return &RedisLedger{
		client:      client,
		countKey:    base + ":calls",
		durationKey: base + ":duration_us",
		logger:      slog.Default().With("component", "ledger.redis"),
		timeout:     recordTimeout,
	}
}

// Record increments the shared counter. Redis failures are logged, never
// returned: accounting must not change the outcome of the call.
//
// The call has already completed, so the writes run detached from the
// caller's cancellation and bounded by their own timeout.
func (l *RedisLedger) Record(ctx context.Context, obs Observation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.client.HIncrBy(ctx, l.countKey, obs.Tool, 1).Err(); err != nil {
		l.logger.ErrorContext(ctx, "record tool call", "tool", obs.Tool, "error", err)
		return
	}
	if err := l.client.HIncrBy(ctx, l.durationKey, obs.Tool, obs.Duration.Microseconds()).Err(); err != nil {
		l.logger.WarnContext(ctx, "record tool duration", "tool", obs.Tool, "error", err)
	}
}

// Snapshot reads all counters.
func (l *RedisLedger) Snapshot(ctx context.Context) (Usage, error) {
	raw, err := l.client.HGetAll(ctx, l.countKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", l.countKey, err)
	}
	u := make(Usage, len(raw))
	for tool, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ledger: counter %s=%q: %w", tool, v, err)
		}
		u[tool] = n
	}
	return u, nil
}

// Reset deletes the scope's counters.
func (l *RedisLedger) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.countKey, l.durationKey).Err()
}
