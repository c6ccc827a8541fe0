package scripts

import (
	"context"

	"github.com/cockroachdb/errors"
)

// name identifies one of the ten scripts independent of its Lua
// source, so an Executor implementation (redis-backed or in-memory)
// can dispatch on it without string-matching Lua text.
type name string

const (
	nameIDAdd         name = "id_add"
	nameIDPosition    name = "id_position"
	nameIDRemove      name = "id_remove"
	nameIDPromote     name = "id_promote"
	nameStorePromote  name = "store_promote"
	nameStorePromoteN name = "store_promote_n"
	nameQueueTimeout  name = "queue_timeout"
	nameStoreTimeout  name = "store_timeout"
	nameHasIDs        name = "has_ids"
	nameCheckSync     name = "check_sync_keys"
)

var sourceByName = map[name]string{
	nameIDAdd:         idAddSource,
	nameIDPosition:    idPositionSource,
	nameIDRemove:      idRemoveSource,
	nameIDPromote:     idPromoteSource,
	nameStorePromote:  storePromoteSource,
	nameStorePromoteN: storePromoteNSource,
	nameQueueTimeout:  queueTimeoutSource,
	nameStoreTimeout:  storeTimeoutSource,
	nameHasIDs:        hasIdsSource,
	nameCheckSync:     checkSyncKeysSource,
}

// Executor runs a named script against prefix with the given keys and
// argument list, returning its raw reply. RedisExecutor runs the real
// Lua text against a Redis server; MemoryExecutor reimplements the
// same semantics directly in Go for tests and local development.
type Executor interface {
	Run(ctx context.Context, n name, prefix string, argv ...any) (any, error)
}

// Registry exposes one typed Go method per spec.md §4.1 script,
// translating between idiomatic Go argument/return types and the
// Executor's raw call-and-reply shape.
type Registry struct {
	exec   Executor
	prefix string
}

// NewRegistry builds a Registry bound to a single key prefix. A
// process that serves multiple bouncer instances constructs one
// Registry per prefix.
func NewRegistry(exec Executor, prefix string) *Registry {
	return &Registry{exec: exec, prefix: prefix}
}

// IDAdd adds id if absent, returning its position (0 = store).
func (r *Registry) IDAdd(ctx context.Context, id string, now, validatedExpiry, quarantineExpiry int64) (int64, error) {
	reply, err := r.exec.Run(ctx, nameIDAdd, r.prefix, id, now, validatedExpiry, quarantineExpiry)
	if err != nil {
		return 0, err
	}
	return toInt64(reply)
}

// IDPosition is the hot-path touch: returns (added, position).
func (r *Registry) IDPosition(ctx context.Context, id string, now, validatedExpiry, quarantineExpiry int64) (added bool, position int64, err error) {
	reply, err := r.exec.Run(ctx, nameIDPosition, r.prefix, id, now, validatedExpiry, quarantineExpiry)
	if err != nil {
		return false, 0, err
	}
	pair, ok := reply.([]any)
	if !ok || len(pair) != 2 {
		return false, 0, errors.Newf("scripts: id_position: unexpected reply %#v", reply)
	}
	addedN, err := toInt64(pair[0])
	if err != nil {
		return false, 0, err
	}
	pos, err := toInt64(pair[1])
	if err != nil {
		return false, 0, err
	}
	return addedN == 1, pos, nil
}

// IDRemove removes id from queue (deferred to next sweep) or store
// (eager).
func (r *Registry) IDRemove(ctx context.Context, id string, now int64) error {
	_, err := r.exec.Run(ctx, nameIDRemove, r.prefix, id, now)
	return err
}

// IDPromote unconditionally moves id into the store.
func (r *Registry) IDPromote(ctx context.Context, id string, now, validatedExpiry int64) error {
	_, err := r.exec.Run(ctx, nameIDPromote, r.prefix, id, now, validatedExpiry)
	return err
}

// StorePromote fills free store capacity from the queue front,
// returning the count moved.
func (r *Registry) StorePromote(ctx context.Context) (int64, error) {
	reply, err := r.exec.Run(ctx, nameStorePromote, r.prefix)
	if err != nil {
		return 0, err
	}
	return toInt64(reply)
}

// StorePromoteN unconditionally moves up to n IDs from queue to
// store.
func (r *Registry) StorePromoteN(ctx context.Context, n int64) (int64, error) {
	reply, err := r.exec.Run(ctx, nameStorePromoteN, r.prefix, n)
	if err != nil {
		return 0, err
	}
	return toInt64(reply)
}

// QueueTimeout sweeps expired queue entries, returning the count
// removed. O(queue) — must not run on the request-handling hot path.
func (r *Registry) QueueTimeout(ctx context.Context, now int64) (int64, error) {
	reply, err := r.exec.Run(ctx, nameQueueTimeout, r.prefix, now)
	if err != nil {
		return 0, err
	}
	return toInt64(reply)
}

// StoreTimeout sweeps expired store entries, returning the count
// removed.
func (r *Registry) StoreTimeout(ctx context.Context, now int64) (int64, error) {
	reply, err := r.exec.Run(ctx, nameStoreTimeout, r.prefix, now)
	if err != nil {
		return 0, err
	}
	return toInt64(reply)
}

// HasIDs reports whether queue or store holds any member. A prefix
// whose sync markers don't exist yet reports true (1) as a
// conservative re-init signal.
func (r *Registry) HasIDs(ctx context.Context) (bool, error) {
	reply, err := r.exec.Run(ctx, nameHasIDs, r.prefix)
	if err != nil {
		return false, err
	}
	n, err := toInt64(reply)
	return n == 1, err
}

// CheckSyncKeys reports whether the prefix's configuration markers
// (queue_enabled, store_capacity, queue_sync_timestamp) are all
// present. Used to detect a flushed backing store.
func (r *Registry) CheckSyncKeys(ctx context.Context) (bool, error) {
	reply, err := r.exec.Run(ctx, nameCheckSync, r.prefix)
	if err != nil {
		return false, err
	}
	n, err := toInt64(reply)
	return n == 1, err
}

func toInt64(reply any) (int64, error) {
	switch v := reply.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, errors.Newf("scripts: expected integer reply, got %#v", reply)
	}
}
