package redisx

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/gomodule/redigo/redis"
)

// ProbeOptions configures the startup readiness probe.
type ProbeOptions struct {
	Addr           string
	Password       string
	DialTimeout    time.Duration
	MaxElapsedTime time.Duration
}

// Probe dials Redis with jittered exponential backoff until it accepts
// a connection and answers PING, or MaxElapsedTime is exhausted. This
// runs once at boot, before the go-redis client is constructed — a
// front-end started alongside a still-warming Redis (common on a cold
// cluster restart) would otherwise fail its first admission request
// instead of waiting.
//
// Modeled on the teacher's redigo dial pools (redis_stream package),
// which retry dials the same way for long-lived read/write pools; this
// probe only ever dials once and discards the connection.
func Probe(ctx context.Context, opts ProbeOptions) error {
	op := func() error {
		dialOpts := []redis.DialOption{
			redis.DialConnectTimeout(opts.DialTimeout),
			redis.DialReadTimeout(opts.DialTimeout),
		}
		if opts.Password != "" {
			dialOpts = append(dialOpts, redis.DialPassword(opts.Password))
		}

		conn, err := redis.Dial("tcp", opts.Addr, dialOpts...)
		if err != nil {
			return err
		}
		defer conn.Close()

		_, err = conn.Do("PING")
		return err
	}

	bo := backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(opts.MaxElapsedTime)),
		ctx,
	)

	if err := backoff.Retry(op, bo); err != nil {
		return errors.Wrap(err, "redisx: redis not reachable")
	}
	return nil
}
