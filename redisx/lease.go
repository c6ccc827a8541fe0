package redisx

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var ErrLeaseNotOwned = errors.New("redisx: lease not owned")

// releaseScript atomically checks ownership before deleting, so a
// front-end can never release a lease another front-end has since
// acquired (e.g. after this one's TTL already expired it out).
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// Lease is a SETNX+TTL advisory lock. The Housekeeper uses one per
// prefix so only a single front-end runs a given sweep cycle at a
// time; any front-end that loses the race simply skips the cycle.
//
// Generalizes the teacher's DistributedLock (redis/distributed.go):
// same fencing-token acquire/release shape, but the key and TTL are
// supplied by the caller instead of hardcoded, since a deployment may
// run the Housekeeper against several bouncer prefixes at once.
type Lease struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLease builds a lease for the given key. Acquire must be called
// before the lease is considered held.
func NewLease(client *Client, key string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    key,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lease, returning false (not an error)
// if another holder already has it.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.raw.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redisx: lease acquire")
	}
	return ok, nil
}

// Renew extends the TTL of a lease this holder still owns, returning
// ErrLeaseNotOwned if the key has lapsed or another holder now owns it.
func (l *Lease) Renew(ctx context.Context) error {
	const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end
`
	result, err := l.client.raw.Eval(ctx, renewScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Result()
	if err != nil {
		return errors.Wrap(err, "redisx: lease renew")
	}
	if n, _ := result.(int64); n == 0 {
		return ErrLeaseNotOwned
	}
	return nil
}

// Release drops the lease, but only if this holder's token is still
// the one stored — otherwise another holder has already acquired it
// since this one's TTL lapsed, and deleting unconditionally would
// release a lock out from under it.
func (l *Lease) Release(ctx context.Context) error {
	result, err := l.client.raw.Eval(ctx, releaseScript, []string{l.key}, l.token).Result()
	if err != nil {
		return errors.Wrap(err, "redisx: lease release")
	}
	if n, _ := result.(int64); n == 0 {
		return ErrLeaseNotOwned
	}
	return nil
}
