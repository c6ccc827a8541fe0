package backoffx

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrier_SucceedsAfterTransientErrors(t *testing.T) {
	ctx := context.Background()
	var counter int32

	op := func() (any, error) {
		if atomic.AddInt32(&counter, 1) < 3 {
			return nil, assert.AnError
		}
		return "ok", nil
	}

	r := New(ctx, time.Millisecond, 0, 1, 5)

	var notified int32
	r.OnRetry(func(err error, d time.Duration) {
		atomic.AddInt32(&notified, 1)
	})

	result, err := r.Do(op)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.EqualValues(t, 3, counter)
	assert.EqualValues(t, 2, notified)
}

func TestRetrier_ReturnsErrorAfterExhaustingRetries(t *testing.T) {
	ctx := context.Background()
	var counter int32

	op := func() (any, error) {
		atomic.AddInt32(&counter, 1)
		return nil, assert.AnError
	}

	r := New(ctx, time.Millisecond, 0, 1, 3)

	_, err := r.Do(op)
	assert.Error(t, err)
	assert.EqualValues(t, 3, counter)
}
