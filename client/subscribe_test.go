package client

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bouncer/scripts"
)

// liveRedis builds a *redis.Client against a local server for the
// Subscribe test, which needs a real pub/sub connection that
// fakeKV can't provide (*redis.PubSub has no public constructor).
// Skips rather than fails when nothing is listening, matching
// redisx's test style.
func liveRedis(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{Addr: "localhost:6379", DialTimeout: time.Second})
	if err := c.Ping(context.Background()).Err(); err != nil {
		t.Skipf("no local redis available: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSubscribe_InvokesCallbackOnMatchingEvent(t *testing.T) {
	rdb := liveRedis(t)
	exec := scripts.NewMemoryExecutor()
	exec.SeedSyncKeys("bouncer_sub_test", -1)
	registry := scripts.NewRegistry(exec, "bouncer_sub_test")
	c := New(registry, rdb, "bouncer_sub_test", Defaults{QueueEnabled: true, StoreCapacity: -1}, nil, WithEventSource(rdb))

	received := make(chan Event, 1)
	cancel, err := c.Subscribe(context.Background(), `^store:`, func(ev Event) {
		received <- ev
	})
	require.NoError(t, err)
	defer cancel()

	time.Sleep(50 * time.Millisecond) // let the subscription settle
	c.publish(context.Background(), "store:add")

	select {
	case ev := <-received:
		assert.Equal(t, "store:add", ev.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}

func TestSubscribe_IgnoresNonMatchingEvent(t *testing.T) {
	rdb := liveRedis(t)
	exec := scripts.NewMemoryExecutor()
	exec.SeedSyncKeys("bouncer_sub_test2", -1)
	registry := scripts.NewRegistry(exec, "bouncer_sub_test2")
	c := New(registry, rdb, "bouncer_sub_test2", Defaults{QueueEnabled: true, StoreCapacity: -1}, nil, WithEventSource(rdb))

	received := make(chan Event, 1)
	cancel, err := c.Subscribe(context.Background(), `^queue:`, func(ev Event) {
		received <- ev
	})
	require.NoError(t, err)
	defer cancel()

	time.Sleep(50 * time.Millisecond)
	c.publish(context.Background(), "store:add")

	select {
	case ev := <-received:
		t.Fatalf("unexpected event delivered: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
