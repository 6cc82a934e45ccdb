package ledger

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"x402-gateway/clock"
)

const defaultRedisTimeout = 3 * time.Second

// Redis is the shared-store Ledger. SET NX with a millisecond TTL is the
// native expiring atomic insert, so the at-most-once guarantee holds
// across gateway instances and no sweep is needed.
type Redis struct {
	client  *redis.Client
	clk     clock.Clock
	prefix  string
	timeout time.Duration
}

// NewRedis wraps an existing redis client. prefix defaults to
// "x402:intent:" and every round trip is bounded by timeout.
func NewRedis(client *redis.Client, clk clock.Clock, prefix string, timeout time.Duration) *Redis {
	if prefix == "" {
		prefix = "x402:intent:"
	}
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &Redis{client: client, clk: clk, prefix: prefix, timeout: timeout}
}

// DialRedis connects and pings a redis server.
func DialRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// Reserve performs SET key NX PX ttl. Exactly one racing caller sees true,
// redis-side, regardless of which instance it arrived on.
func (r *Redis) Reserve(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(r.clk.Now())
	if ttl <= 0 {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.SetNX(ctx, r.prefix+id, "1", ttl).Result()
}

// IsReserved checks key existence; redis expiry makes dead entries vanish.
func (r *Redis) IsReserved(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.client.Exists(ctx, r.prefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
