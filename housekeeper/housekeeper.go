// Package housekeeper implements the periodic sweep loop spec.md §4.3
// describes: queue_timeout -> store_timeout -> store_promote -> stamp
// sync timestamp, gated behind a SETNX+TTL lease so only one front-end
// runs a given cycle. Loop shape (single worker goroutine, one cycle
// per ticker tick after an optional startup jitter) is grounded on the teacher's
// redis_stream.ReplicatedTicketCache.IncomingReplicationQueue; the
// lease itself generalizes redis/distributed.go's DistributedLock,
// already adapted once in redisx.Lease.
package housekeeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bouncer/backoffx"
	"bouncer/client"
	"bouncer/randx"
	"bouncer/redisx"
)

// Snapshot is the sync snapshot the Housekeeper emits once per cycle
// (supplemented feature, not present in spec.md §4.3 itself): a
// point-in-time status tuple an optional audit sink can persist.
type Snapshot struct {
	Timestamp     time.Time
	QueueEnabled  bool
	StoreCapacity int64
	QueueSize     int64
	StoreSize     int64
	RemovedQueue  int64
	RemovedStore  int64
	Moved         int64
	Duration      time.Duration
}

// Sink receives one Snapshot per completed cycle. Implementations must
// not block the sweep loop for long; the audit package's MySQL sink
// runs its insert synchronously under the cycle's context, with no
// timeout of its own.
type Sink interface {
	RecordCycle(ctx context.Context, snap Snapshot) error
}

// Config controls cycle timing and lease ownership.
type Config struct {
	// Interval between sweep cycles.
	Interval time.Duration
	// LeaseTTL is how long this front-end owns the cycle lease before
	// another front-end may take over. tick releases the lease when its
	// cycle finishes, so the TTL only bounds how long a holder that dies
	// or stalls mid-cycle keeps others out. Zero means 3 × Interval.
	LeaseTTL time.Duration
	// LeaseKey is the Redis key backing the cycle-ownership lease,
	// typically "<prefix>:housekeeper_lease".
	LeaseKey string
	// StartupJitterMillis staggers the first cycle across front-ends
	// started at the same instant, so their lease acquisitions don't
	// collide in lockstep.
	StartupJitterMillis int
	// RequireLease gates cycles behind the SETNX+TTL lease (spec.md
	// §4.3's SHOULD). A single-front-end deployment may set this false
	// to skip the lease round trip entirely; every cycle then runs
	// unconditionally.
	RequireLease bool
}

// Housekeeper runs the sweep loop against a single Admission Client.
type Housekeeper struct {
	client *client.Client
	lease  *redisx.Lease
	cfg    Config
	log    *logrus.Entry
	sink   Sink
}

// New builds a Housekeeper. sink may be nil to disable snapshot
// persistence.
func New(c *client.Client, redisClient *redisx.Client, cfg Config, log *logrus.Entry, sink Sink) *Housekeeper {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval * 3
	}
	return &Housekeeper{
		client: c,
		lease:  redisx.NewLease(redisClient, cfg.LeaseKey, cfg.LeaseTTL),
		cfg:    cfg,
		log:    log,
		sink:   sink,
	}
}

// Run blocks until ctx is cancelled, running one sweep cycle per
// Interval (skipping cycles this front-end doesn't hold the lease
// for). Intended to run in its own goroutine for the lifetime of the
// process.
func (h *Housekeeper) Run(ctx context.Context) {
	if jitter := h.cfg.StartupJitterMillis; jitter > 0 {
		select {
		case <-time.After(time.Duration(randx.JitterMillis(jitter)) * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

// tick attempts to acquire the cycle lease and, if successful, runs
// exactly one sweep. A front-end that loses the lease race simply
// waits for the next tick.
func (h *Housekeeper) tick(ctx context.Context) {
	if !h.cfg.RequireLease {
		h.runCycle(ctx)
		return
	}

	held, err := h.acquireWithRetry(ctx)
	if err != nil {
		h.log.WithError(err).Warn("housekeeper: lease acquisition failed")
		return
	}
	if !held {
		h.log.Debug("housekeeper: lease held by another front-end, skipping cycle")
		return
	}
	defer func() {
		if err := h.lease.Release(ctx); err != nil && err != redisx.ErrLeaseNotOwned {
			h.log.WithError(err).Warn("housekeeper: lease release failed")
		}
	}()

	h.runCycle(ctx)
}

// acquireWithRetry retries a transient acquire failure (e.g. a dial
// blip) a few times before giving up for this tick; losing the race
// to another holder is not retried, since that's the expected steady
// state in a multi-front-end deployment.
func (h *Housekeeper) acquireWithRetry(ctx context.Context) (bool, error) {
	retrier := backoffx.New(ctx, 50*time.Millisecond, 0.5, 2.0, 3)
	result, err := retrier.Do(func() (any, error) {
		ok, err := h.lease.Acquire(ctx)
		if err != nil {
			return false, err
		}
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	return ok, nil
}

// runCycle executes queue_timeout -> store_timeout -> store_promote,
// stamps the sync timestamp, and emits a Snapshot. Event publication
// for each step is already gated on nonzero counts inside the client
// methods themselves. EnsureInitialized runs first since a mutating
// script silently tolerates a missing store_capacity (treating it as
// unbounded) rather than erroring, so nothing on the hot path would
// otherwise ever notice a flushed backing store and trigger reseed.
func (h *Housekeeper) runCycle(ctx context.Context) {
	start := time.Now()
	now := start

	if err := h.client.EnsureInitialized(ctx, now); err != nil {
		h.log.WithError(err).Warn("housekeeper: ensure_initialized failed")
	}

	removedQueue, err := h.client.QueueTimeout(ctx, now)
	if err != nil {
		h.log.WithError(err).Warn("housekeeper: queue_timeout failed")
	}

	removedStore, err := h.client.StoreTimeout(ctx, now)
	if err != nil {
		h.log.WithError(err).Warn("housekeeper: store_timeout failed")
	}

	moved, err := h.client.StorePromote(ctx, now)
	if err != nil {
		h.log.WithError(err).Warn("housekeeper: store_promote failed")
	}

	if err := h.client.StampSyncTimestamp(ctx, now); err != nil {
		h.log.WithError(err).Warn("housekeeper: stamp sync timestamp failed")
	}

	status, err := h.client.Status(ctx)
	if err != nil {
		h.log.WithError(err).Warn("housekeeper: status failed")
	}

	duration := time.Since(start)
	entry := h.log.WithFields(logrus.Fields{
		"removed_queue": removedQueue,
		"removed_store": removedStore,
		"moved":         moved,
		"duration_ms":   duration.Milliseconds(),
	})
	if removedQueue > 0 || removedStore > 0 || moved > 0 {
		entry.Info("housekeeper: cycle completed nontrivial work")
	} else {
		entry.Debug("housekeeper: cycle completed")
	}

	if h.sink == nil {
		return
	}
	snap := Snapshot{
		Timestamp:     now,
		QueueEnabled:  status.QueueEnabled,
		StoreCapacity: status.StoreCapacity,
		QueueSize:     status.QueueSize,
		StoreSize:     status.StoreSize,
		RemovedQueue:  removedQueue,
		RemovedStore:  removedStore,
		Moved:         moved,
		Duration:      duration,
	}
	if err := h.sink.RecordCycle(ctx, snap); err != nil {
		h.log.WithError(err).Warn("housekeeper: audit sink failed")
	}
}
