// Package client implements the Admission Client façade (spec.md §4.2):
// the process-wide, thread-safe entry point the reverse proxy and
// status UI call into. It owns script registration/retry, explicit
// time injection, throttled event publication, and config accessors —
// no local truth besides the script-digest cache the scripts package
// already holds and a small publish-throttle timestamp map.
//
// Generalizes the teacher's redis.RedisClient (connection/options) and
// redis.PubSubService (publish/subscribe) into this single façade.
package client

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"bouncer/scripts"
	"bouncer/token"
	"bouncer/waitpage"
)

// configStore is the narrow slice of *redis.Client this package needs
// for config accessors and event publication — everything else goes
// through scripts.Registry. Narrowed to an interface so tests can
// substitute an in-memory fake instead of a live server.
type configStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

const (
	keyQueueEnabled  = "queue_enabled"
	keyStoreCapacity = "store_capacity"
	keySyncTimestamp = "queue_sync_timestamp"
	keyWaitingPage   = "queue_waiting_page"
	eventsSuffix     = "events"
)

// Status is the read-only snapshot spec.md §6 defines for the status
// UI and reverse proxy.
type Status struct {
	QueueEnabled  bool
	StoreCapacity int64
	QueueSize     int64
	StoreSize     int64
}

// Event is a short notification delivered over the `prefix:events`
// channel. Payload mirrors spec.md §4.2's examples: "queue:add",
// "store:promote:<count>", "settings:capacity".
type Event struct {
	Channel string
	Payload string
}

// Defaults is what a Client reseeds the backing store with after
// detecting an Uninitialized state (spec.md §7).
type Defaults struct {
	QueueEnabled     bool
	StoreCapacity    int64
	ValidatedExpiry  time.Duration
	QuarantineExpiry time.Duration
}

// Client is the Admission Client. Safe for concurrent use.
type Client struct {
	registry *scripts.Registry
	kv       configStore
	prefix   string
	log      *logrus.Entry
	defaults Defaults

	throttle time.Duration
	mu       sync.Mutex
	lastSent map[string]time.Time

	signer   *token.Signer
	waitpage waitpage.Strategy

	events     eventSource
	subs       subscribers
	listenOnce struct {
		mu      sync.Mutex
		started bool
	}
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithPublishThrottle suppresses event bursts finer than d (spec.md
// §6's publish_throttle, resolved here per §9's Open Question: the
// throttle lives in the Admission Client, not inside any script).
func WithPublishThrottle(d time.Duration) Option {
	return func(c *Client) { c.throttle = d }
}

// WithPositionTokenSigner enables Mint/VerifyToken for callers that
// want a signed cookie payload instead of re-querying position on
// every poll.
func WithPositionTokenSigner(s *token.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithWaitingPageCompression enables compression of the stored waiting
// page blob.
func WithWaitingPageCompression(s waitpage.Strategy) Option {
	return func(c *Client) { c.waitpage = s }
}

func New(registry *scripts.Registry, kv configStore, prefix string, defaults Defaults, log *logrus.Entry, opts ...Option) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Client{
		registry: registry,
		kv:       kv,
		prefix:   prefix,
		log:      log,
		defaults: defaults,
		lastSent: make(map[string]time.Time),
	}
	c.subs.entries = make(map[uint64]subscription)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) key(suffix string) string {
	return c.prefix + ":" + suffix
}

// EnsureInitialized is the exported form of ensureInitialized, for
// callers (the Housekeeper's sweep cycle) that need to check and, if
// necessary, reseed the sync markers proactively rather than only in
// reaction to a failed mutation. Per-script calls can't be relied on
// to surface Uninitialized on their own: a mutating script treats a
// missing store_capacity as unbounded rather than erroring, so a
// flushed backing store would otherwise never trip the reseed path.
func (c *Client) EnsureInitialized(ctx context.Context, now time.Time) error {
	return c.ensureInitialized(ctx, now)
}

// ensureInitialized reseeds queue_enabled/store_capacity/
// queue_sync_timestamp from c.defaults if check_sync_keys reports the
// prefix has never been (or is no longer) initialized — the client's
// half of spec.md §7's Uninitialized recovery (the other half, script
// reload on NOSCRIPT, lives in scripts.RedisExecutor).
func (c *Client) ensureInitialized(ctx context.Context, now time.Time) error {
	ok, err := c.registry.CheckSyncKeys(ctx)
	if err != nil {
		return transportErrorf(err, "client: check_sync_keys")
	}
	if ok {
		return nil
	}
	return c.reseed(ctx, now)
}

func (c *Client) reseed(ctx context.Context, now time.Time) error {
	if err := c.SetQueueEnabled(ctx, c.defaults.QueueEnabled); err != nil {
		return err
	}
	if err := c.SetStoreCapacity(ctx, c.defaults.StoreCapacity); err != nil {
		return err
	}
	if err := c.stampSyncTimestamp(ctx, now); err != nil {
		return err
	}
	c.log.WithField("prefix", c.prefix).Warn("reseeded uninitialized bouncer state")
	return nil
}

// withUninitializedRetry runs op once; on any failure, runs
// ensureInitialized (which reseeds only if the prefix turns out to be
// uninitialized) and, if that succeeds, retries op exactly once more,
// matching spec.md §8 example 6 (ScriptMissing -> reload ->
// Uninitialized -> reseed -> succeeds).
func withUninitializedRetry[T any](ctx context.Context, c *Client, now time.Time, op func() (T, error)) (T, error) {
	result, err := op()
	if err == nil {
		return result, nil
	}

	if initErr := c.ensureInitialized(ctx, now); initErr != nil {
		var zero T
		return zero, transportErrorf(err, "client: operation failed and reseed also failed")
	}

	result, err = op()
	if err != nil {
		var zero T
		return zero, transportErrorf(err, "client: operation failed after reseed retry")
	}
	return result, nil
}

// PositionOrAdd is the hot-path touch: position_or_add(id, now,
// validated, quarantine) -> (added, position).
func (c *Client) PositionOrAdd(ctx context.Context, id string, now time.Time, validated, quarantine time.Duration) (bool, int64, error) {
	type result struct {
		added    bool
		position int64
	}
	r, err := withUninitializedRetry(ctx, c, now, func() (result, error) {
		added, pos, err := c.registry.IDPosition(ctx, id, now.Unix(), int64(validated.Seconds()), int64(quarantine.Seconds()))
		return result{added, pos}, err
	})
	if err != nil {
		return false, 0, err
	}
	if r.added {
		if r.position == 0 {
			c.publishAt(ctx, "store:add", now)
		} else {
			c.publishAt(ctx, "queue:add", now)
		}
	}
	return r.added, r.position, nil
}

// Remove implements remove(id, now).
func (c *Client) Remove(ctx context.Context, id string, now time.Time) error {
	_, err := withUninitializedRetry(ctx, c, now, func() (struct{}, error) {
		return struct{}{}, c.registry.IDRemove(ctx, id, now.Unix())
	})
	if err != nil {
		return err
	}
	c.publishAt(ctx, "queue:remove", now)
	return nil
}

// Promote implements promote(id, now, validated).
func (c *Client) Promote(ctx context.Context, id string, now time.Time, validated time.Duration) error {
	_, err := withUninitializedRetry(ctx, c, now, func() (struct{}, error) {
		return struct{}{}, c.registry.IDPromote(ctx, id, now.Unix(), int64(validated.Seconds()))
	})
	if err != nil {
		return err
	}
	c.publishAt(ctx, "store:promote:1", now)
	return nil
}

// PromoteN implements promote_n(n).
func (c *Client) PromoteN(ctx context.Context, now time.Time, n int64) (int64, error) {
	moved, err := withUninitializedRetry(ctx, c, now, func() (int64, error) {
		return c.registry.StorePromoteN(ctx, n)
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		c.publishAt(ctx, "store:promote:"+strconv.FormatInt(moved, 10), now)
	}
	return moved, nil
}

// QueueTimeout sweeps expired queue entries. Called by the Housekeeper,
// never on the request-handling hot path (spec.md §4.3).
func (c *Client) QueueTimeout(ctx context.Context, now time.Time) (int64, error) {
	removed, err := withUninitializedRetry(ctx, c, now, func() (int64, error) {
		return c.registry.QueueTimeout(ctx, now.Unix())
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.publishAt(ctx, "queue:timeout:"+strconv.FormatInt(removed, 10), now)
	}
	return removed, nil
}

// StoreTimeout sweeps expired store entries. Housekeeper-only, like
// QueueTimeout.
func (c *Client) StoreTimeout(ctx context.Context, now time.Time) (int64, error) {
	removed, err := withUninitializedRetry(ctx, c, now, func() (int64, error) {
		return c.registry.StoreTimeout(ctx, now.Unix())
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.publishAt(ctx, "store:timeout:"+strconv.FormatInt(removed, 10), now)
	}
	return removed, nil
}

// StorePromote fills free store capacity from the queue front.
// Housekeeper-only; PromoteN is the caller-driven equivalent for an
// explicit n.
func (c *Client) StorePromote(ctx context.Context, now time.Time) (int64, error) {
	moved, err := withUninitializedRetry(ctx, c, now, func() (int64, error) {
		return c.registry.StorePromote(ctx)
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		c.publishAt(ctx, "store:promote:"+strconv.FormatInt(moved, 10), now)
	}
	return moved, nil
}

// Status implements status().
func (c *Client) Status(ctx context.Context) (Status, error) {
	enabled, err := c.QueueEnabled(ctx)
	if err != nil {
		return Status{}, err
	}
	capacity, err := c.StoreCapacity(ctx)
	if err != nil {
		return Status{}, err
	}

	queueSize, storeSize, err := c.sizes(ctx)
	if err != nil {
		return Status{}, err
	}

	return Status{
		QueueEnabled:  enabled,
		StoreCapacity: capacity,
		QueueSize:     queueSize,
		StoreSize:     storeSize,
	}, nil
}

// sizes is a best-effort debugging aid, not a hot-path operation: it
// isn't one of the ten atomic scripts (spec.md §4.1 has no
// "queue_size"/"store_size" script), so it reads the collections
// directly rather than through the Registry.
func (c *Client) sizes(ctx context.Context) (queueSize, storeSize int64, err error) {
	raw, ok := c.kv.(interface {
		LLen(ctx context.Context, key string) *redis.IntCmd
		SCard(ctx context.Context, key string) *redis.IntCmd
	})
	if !ok {
		return 0, 0, nil
	}
	queueSize, err = raw.LLen(ctx, c.key("queue_ids")).Result()
	if err != nil {
		return 0, 0, transportErrorf(err, "client: queue size")
	}
	storeSize, err = raw.SCard(ctx, c.key("store_ids")).Result()
	if err != nil {
		return 0, 0, transportErrorf(err, "client: store size")
	}
	return queueSize, storeSize, nil
}

// QueueEnabled reads the queue_enabled config accessor.
func (c *Client) QueueEnabled(ctx context.Context) (bool, error) {
	raw, err := c.kv.Get(ctx, c.key(keyQueueEnabled)).Result()
	if errors.Is(err, redis.Nil) {
		return c.defaults.QueueEnabled, nil
	}
	if err != nil {
		return false, transportErrorf(err, "client: get queue_enabled")
	}
	return raw == "1" || raw == "true", nil
}

func (c *Client) SetQueueEnabled(ctx context.Context, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	if err := c.kv.Set(ctx, c.key(keyQueueEnabled), v, 0).Err(); err != nil {
		return transportErrorf(err, "client: set queue_enabled")
	}
	c.publish(ctx, "settings:queue_enabled")
	return nil
}

// StoreCapacity reads store_capacity; missing/unparseable is -1
// (unbounded), matching the scripts package's own fallback.
func (c *Client) StoreCapacity(ctx context.Context) (int64, error) {
	raw, err := c.kv.Get(ctx, c.key(keyStoreCapacity)).Result()
	if errors.Is(err, redis.Nil) {
		return -1, nil
	}
	if err != nil {
		return 0, transportErrorf(err, "client: get store_capacity")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return -1, nil
	}
	return n, nil
}

func (c *Client) SetStoreCapacity(ctx context.Context, capacity int64) error {
	if err := c.kv.Set(ctx, c.key(keyStoreCapacity), strconv.FormatInt(capacity, 10), 0).Err(); err != nil {
		return transportErrorf(err, "client: set store_capacity")
	}
	c.publish(ctx, "settings:capacity")
	return nil
}

func (c *Client) stampSyncTimestamp(ctx context.Context, now time.Time) error {
	if err := c.kv.Set(ctx, c.key(keySyncTimestamp), strconv.FormatInt(now.Unix(), 10), 0).Err(); err != nil {
		return transportErrorf(err, "client: set queue_sync_timestamp")
	}
	return nil
}

// StampSyncTimestamp is the exported form of stampSyncTimestamp: the
// final step of every housekeeping cycle (spec.md §4.3 step 5), marking
// that the backing store was swept as of now.
func (c *Client) StampSyncTimestamp(ctx context.Context, now time.Time) error {
	return c.stampSyncTimestamp(ctx, now)
}

// WaitingPage reads and decompresses the stored waiting-page blob. If
// no compression strategy was configured, the blob is returned as-is
// (still self-describing, via waitpage's own envelope tag).
func (c *Client) WaitingPage(ctx context.Context) ([]byte, error) {
	raw, err := c.kv.Get(ctx, c.key(keyWaitingPage)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, transportErrorf(err, "client: get queue_waiting_page")
	}
	strategy := c.waitpage
	if strategy == nil {
		strategy = waitpage.NoneStrategy{}
	}
	return waitpage.Decode(strategy, raw)
}

// SetWaitingPage compresses (if configured) and stores the waiting
// page blob.
func (c *Client) SetWaitingPage(ctx context.Context, page []byte) error {
	strategy := c.waitpage
	if strategy == nil {
		strategy = waitpage.NoneStrategy{}
	}
	blob, err := waitpage.Encode(strategy, page)
	if err != nil {
		return errors.Wrap(err, "client: encode waiting page")
	}
	if err := c.kv.Set(ctx, c.key(keyWaitingPage), blob, 0).Err(); err != nil {
		return transportErrorf(err, "client: set queue_waiting_page")
	}
	c.publish(ctx, "settings:waiting_page")
	return nil
}

// MintToken signs a position token for id, when a signer was
// configured via WithPositionTokenSigner.
func (c *Client) MintToken(id string, position int32, expiry time.Time) ([]byte, error) {
	if c.signer == nil {
		return nil, errors.New("client: no position-token signer configured")
	}
	return c.signer.Mint(token.Position{ID: id, Pos: position, Expiry: expiry.Unix()})
}

// VerifyToken reverses MintToken.
func (c *Client) VerifyToken(tok []byte) (token.Position, error) {
	if c.signer == nil {
		return token.Position{}, errors.New("client: no position-token signer configured")
	}
	return c.signer.Verify(tok)
}

// publish sends a short event string on prefix:events, coalescing
// bursts of the same event within c.throttle (spec.md §9's Open
// Question, resolved in the Admission Client rather than in any
// script). Publish failures are logged, not returned — event
// notification is a best-effort side channel per spec.md §4.2, never
// load-bearing for correctness.
func (c *Client) publish(ctx context.Context, eventKey string) {
	c.publishAt(ctx, eventKey, time.Now())
}

// publishAt is publish with an explicit instant, so call sites that
// already have `now` in hand (PositionOrAdd, Remove, ...) can avoid an
// extra internal clock read; publish (wall-clock) remains for the
// config accessors, which aren't part of the timed hot path.
func (c *Client) publishAt(ctx context.Context, eventKey string, now time.Time) {
	if c.throttle > 0 {
		c.mu.Lock()
		last, seen := c.lastSent[eventKey]
		if seen && now.Sub(last) < c.throttle {
			c.mu.Unlock()
			return
		}
		c.lastSent[eventKey] = now
		c.mu.Unlock()
	}

	channel := c.key(eventsSuffix)
	if err := c.kv.Publish(ctx, channel, eventKey).Err(); err != nil {
		c.log.WithError(err).WithField("event", eventKey).Warn("failed to publish bouncer event")
	}
}
