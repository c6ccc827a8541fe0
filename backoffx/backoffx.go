// Package backoffx wraps cenkalti/backoff/v5 with the operation/notify
// shape the rest of this module is built around, returning the final
// error to the caller instead of only logging it — the Housekeeper needs
// to know whether its lease acquisition ultimately succeeded so it can
// decide whether to run this cycle at all.
package backoffx

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retrier runs a single operation under exponential backoff with jitter.
type Retrier struct {
	ctx     context.Context
	options []backoff.RetryOption
	notify  backoff.Notify
}

// New builds a Retrier. initialInterval/randomizationFactor/multiplier
// configure the exponential backoff curve; maxTries bounds the attempt
// count (v5 semantics: the operation runs up to maxTries-1 additional
// times after the first failure).
func New(ctx context.Context, initialInterval time.Duration, randomizationFactor, multiplier float64, maxTries uint) *Retrier {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initialInterval
	eb.RandomizationFactor = randomizationFactor
	eb.Multiplier = multiplier

	return &Retrier{
		ctx:     ctx,
		options: []backoff.RetryOption{backoff.WithBackOff(eb), backoff.WithMaxTries(maxTries)},
	}
}

// OnRetry registers a callback invoked before each retry sleep.
func (r *Retrier) OnRetry(notify backoff.Notify) {
	r.notify = notify
	r.options = append(r.options, backoff.WithNotify(notify))
}

// Do runs op, retrying per the configured curve, and returns op's final
// result and error (unlike a fire-and-forget Exec, the caller always
// learns whether the operation ultimately succeeded).
func (r *Retrier) Do(op backoff.Operation[any]) (any, error) {
	return backoff.Retry(r.ctx, op, r.options...)
}
