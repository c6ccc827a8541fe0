package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bouncer/scripts"
)

// fakeKV is a minimal in-memory stand-in for *redis.Client's config
// accessor surface, so client tests don't need a live Redis.
type fakeKV struct {
	mu        sync.Mutex
	values    map[string]string
	published []string
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeKV) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case string:
		f.values[key] = v
	case []byte:
		f.values[key] = string(v)
	default:
		f.values[key] = ""
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeKV) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := message.(string); ok {
		f.published = append(f.published, s)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func newTestClient(t *testing.T, capacity int64) (*Client, *scripts.MemoryExecutor, *fakeKV) {
	t.Helper()
	exec := scripts.NewMemoryExecutor()
	exec.SeedSyncKeys("bouncer", capacity)
	registry := scripts.NewRegistry(exec, "bouncer")
	kv := newFakeKV()
	defaults := Defaults{QueueEnabled: true, StoreCapacity: capacity, ValidatedExpiry: 600 * time.Second, QuarantineExpiry: 45 * time.Second}
	c := New(registry, kv, "bouncer", defaults, nil)
	return c, exec, kv
}

func TestPositionOrAdd_AdmitsAndPublishesStoreAdd(t *testing.T) {
	c, _, kv := newTestClient(t, -1)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	added, pos, err := c.PositionOrAdd(ctx, "A", now, 600*time.Second, 45*time.Second)
	require.NoError(t, err)
	assert.True(t, added)
	assert.EqualValues(t, 0, pos)
	assert.Contains(t, kv.published, "store:add")
}

func TestPositionOrAdd_QueuesAndPublishesQueueAdd(t *testing.T) {
	c, _, kv := newTestClient(t, 0)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	added, pos, err := c.PositionOrAdd(ctx, "A", now, 600*time.Second, 45*time.Second)
	require.NoError(t, err)
	assert.True(t, added)
	assert.EqualValues(t, 1, pos)
	assert.Contains(t, kv.published, "queue:add")
}

func TestPositionOrAdd_SecondTouchIsNotAdded(t *testing.T) {
	c, _, _ := newTestClient(t, -1)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	_, _, err := c.PositionOrAdd(ctx, "A", now, 600*time.Second, 45*time.Second)
	require.NoError(t, err)

	added, pos, err := c.PositionOrAdd(ctx, "A", now.Add(time.Minute), 600*time.Second, 45*time.Second)
	require.NoError(t, err)
	assert.False(t, added)
	assert.EqualValues(t, 0, pos)
}

func TestEnsureInitialized_ReseedsAfterFlush(t *testing.T) {
	c, exec, kv := newTestClient(t, 5)
	ctx := context.Background()
	now := time.Unix(2000, 0)

	exec.Flush("bouncer")

	ok, err := c.registry.CheckSyncKeys(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.ensureInitialized(ctx, now))

	// Reseed writes through the config store (the fake kv here), which is
	// a separate store from the MemoryExecutor in this fixture, so the
	// three markers are checked where reseed writes them.
	assert.Contains(t, kv.values, "bouncer:queue_enabled")
	assert.Contains(t, kv.values, "bouncer:store_capacity")
	assert.Contains(t, kv.values, "bouncer:queue_sync_timestamp")
}

func TestWithUninitializedRetry_FlushedPrefixAdmitsAsUnbounded(t *testing.T) {
	c, exec, _ := newTestClient(t, -1)
	ctx := context.Background()
	now := time.Unix(3000, 0)

	exec.Flush("bouncer")

	// Even with sync markers flushed, IDPosition on the memory
	// executor still succeeds (there's no NOSCRIPT-equivalent failure
	// mode to simulate without a real Redis), so withUninitializedRetry
	// neither reseeds nor retries: the missing store_capacity is read as
	// unbounded and the ID is admitted straight to the store.
	added, pos, err := c.PositionOrAdd(ctx, "A", now, 600*time.Second, 45*time.Second)
	require.NoError(t, err)
	assert.True(t, added)
	assert.EqualValues(t, 0, pos)
}

func TestQueueEnabled_DefaultsWhenMissing(t *testing.T) {
	c, _, _ := newTestClient(t, -1)
	ctx := context.Background()

	enabled, err := c.QueueEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestSetQueueEnabled_RoundTrips(t *testing.T) {
	c, _, kv := newTestClient(t, -1)
	ctx := context.Background()

	require.NoError(t, c.SetQueueEnabled(ctx, false))
	enabled, err := c.QueueEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Contains(t, kv.published, "settings:queue_enabled")
}

func TestStoreCapacity_UnparseableTreatedAsUnbounded(t *testing.T) {
	c, _, kv := newTestClient(t, -1)
	ctx := context.Background()
	kv.values["bouncer:store_capacity"] = "not-a-number"

	capacity, err := c.StoreCapacity(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, -1, capacity)
}

func TestPublishThrottle_SuppressesBurstsWithinWindow(t *testing.T) {
	c, _, kv := newTestClient(t, -1)
	c.throttle = time.Minute
	ctx := context.Background()
	now := time.Unix(1000, 0)

	c.publishAt(ctx, "store:add", now)
	c.publishAt(ctx, "store:add", now.Add(time.Second))
	c.publishAt(ctx, "store:add", now.Add(2*time.Minute))

	count := 0
	for _, e := range kv.published {
		if e == "store:add" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestWaitingPage_RoundTripsThroughEncodeDecode(t *testing.T) {
	c, _, _ := newTestClient(t, -1)
	ctx := context.Background()
	page := []byte("<html>you are in line</html>")

	require.NoError(t, c.SetWaitingPage(ctx, page))
	got, err := c.WaitingPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, page, got)
}
