package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLease_AcquireReleaseRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	key := "redisx_test:lease"
	_ = c.Raw().Del(ctx, key).Err()

	l := NewLease(c, key, time.Minute)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx))
}

func TestLease_SecondAcquireFailsWhileHeld(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	key := "redisx_test:lease_contention"
	_ = c.Raw().Del(ctx, key).Err()

	first := NewLease(c, key, time.Minute)
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	defer first.Release(ctx)

	second := NewLease(c, key, time.Minute)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLease_ReleaseFailsForNonOwner(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	key := "redisx_test:lease_foreign_release"
	_ = c.Raw().Del(ctx, key).Err()

	owner := NewLease(c, key, time.Minute)
	_, err := owner.Acquire(ctx)
	require.NoError(t, err)
	defer owner.Release(ctx)

	impostor := NewLease(c, key, time.Minute)
	err = impostor.Release(ctx)
	assert.ErrorIs(t, err, ErrLeaseNotOwned)
}
