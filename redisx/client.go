// Package redisx provides the module's single point of contact with
// Redis: a go-redis/v9 client used for script execution and pub/sub on
// the hot path, a redigo-based dial-with-backoff readiness probe run
// once at startup, and a SETNX+TTL lease the Housekeeper uses to avoid
// duplicate sweeps across front-ends.
package redisx

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Options configures the primary client. Field names mirror
// config.Config's redis_* keys.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PoolTimeout  time.Duration
}

// Client wraps *redis.Client. Kept thin on purpose: script execution
// lives in the scripts package's RedisExecutor, pub/sub in the client
// package's publish/Subscribe, and the lease primitive in Lease — Client
// only owns the connection.
type Client struct {
	raw *redis.Client
}

// New opens a client and confirms connectivity with a single PING.
// Unlike the readiness Probe (meant for slow, flaky boot sequences),
// this is a one-shot check: if Redis isn't reachable yet the caller is
// expected to have run Probe first.
func New(ctx context.Context, opts Options) (*Client, error) {
	raw := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		PoolTimeout:  opts.PoolTimeout,
	})

	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redisx: connect")
	}
	return &Client{raw: raw}, nil
}

// Raw exposes the underlying go-redis client for packages (scripts,
// housekeeper) that need EvalSha/Eval/Publish/Subscribe directly.
func (c *Client) Raw() *redis.Client {
	return c.raw
}

func (c *Client) Close() error {
	return c.raw.Close()
}
