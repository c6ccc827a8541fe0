package scripts

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisRunner stubs the two go-redis calls RedisExecutor makes, so
// its SHA-caching and NOSCRIPT-reload behavior can be verified without
// a live server.
type fakeRedisRunner struct {
	loadCount    int
	evalShaCalls int
}

func (f *fakeRedisRunner) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	f.loadCount++
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("deadbeef")
	return cmd
}

func (f *fakeRedisRunner) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	f.evalShaCalls++
	cmd := redis.NewCmd(ctx)
	cmd.SetVal(int64(0))
	return cmd
}

func TestRedisExecutor_CachesScriptDigestAcrossCalls(t *testing.T) {
	fake := &fakeRedisRunner{}
	e := &RedisExecutor{client: fake, shas: make(map[name]string)}

	_, err := e.Run(context.Background(), nameIDAdd, "p", "id1", int64(0), int64(600), int64(45))
	require.NoError(t, err)
	_, err = e.Run(context.Background(), nameIDAdd, "p", "id2", int64(0), int64(600), int64(45))
	require.NoError(t, err)

	assert.Equal(t, 1, fake.loadCount, "script should be loaded once and cached thereafter")
	assert.Equal(t, 2, fake.evalShaCalls)
}

// noScriptOnceRunner fails the first EvalSha with a NOSCRIPT error
// (simulating a Redis restart that dropped the cached digest), then
// succeeds — verifying RedisExecutor reloads and retries exactly once.
type noScriptOnceRunner struct {
	loadCount    int
	evalShaCalls int
}

func (f *noScriptOnceRunner) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	f.loadCount++
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("freshsha")
	return cmd
}

func (f *noScriptOnceRunner) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	f.evalShaCalls++
	cmd := redis.NewCmd(ctx)
	if f.evalShaCalls == 1 {
		cmd.SetErr(noScriptError{})
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script. Please use EVAL." }

// concurrentRunner is a fakeRedisRunner with its own locking, so a test
// driving RedisExecutor from multiple goroutines doesn't trip `go test
// -race` on the fake's own counters (separate from whatever race, if
// any, RedisExecutor itself has on e.shas).
type concurrentRunner struct {
	mu           sync.Mutex
	loadCount    int
	evalShaCalls int
}

func (f *concurrentRunner) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	f.mu.Lock()
	f.loadCount++
	f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("deadbeef")
	return cmd
}

func (f *concurrentRunner) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	f.evalShaCalls++
	f.mu.Unlock()
	cmd := redis.NewCmd(ctx)
	cmd.SetVal(int64(0))
	return cmd
}

// TestRedisExecutor_ConcurrentFirstUseDoesNotRaceOnSHACache exercises
// the shas map guard directly: many goroutines hitting the same
// not-yet-cached script concurrently must not trip Go's concurrent
// map read/write panic (run this test with -race).
func TestRedisExecutor_ConcurrentFirstUseDoesNotRaceOnSHACache(t *testing.T) {
	fake := &concurrentRunner{}
	e := NewRedisExecutor(nil)
	e.client = fake

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := e.Run(context.Background(), nameIDAdd, "p", "id", int64(0), int64(600), int64(45))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestRedisExecutor_ReloadsOnceOnNoScript(t *testing.T) {
	fake := &noScriptOnceRunner{}
	e := &RedisExecutor{client: fake, shas: map[name]string{nameIDAdd: "stale-sha"}}

	_, err := e.Run(context.Background(), nameIDAdd, "p", "id1", int64(0), int64(600), int64(45))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.loadCount)
	assert.Equal(t, 2, fake.evalShaCalls)
}
