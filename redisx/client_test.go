package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient connects to a local Redis instance the same way the
// teacher's redis_test.go does. Unlike the teacher, this skips (rather
// than fails) when nothing is listening, since the unit tests for script
// semantics live in scripts/ against an in-memory fake — this package's
// tests only cover the connection and lease plumbing that genuinely
// needs a real server.
func testClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, Options{
		Addr:         "localhost:6379",
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     5,
		PoolTimeout:  time.Second,
	})
	if err != nil {
		t.Skipf("no local redis available: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_ConnectsAndPings(t *testing.T) {
	c := testClient(t)
	require.NotNil(t, c.Raw())
	assert.NoError(t, c.Raw().Ping(context.Background()).Err())
}
