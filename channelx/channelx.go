// Package channelx provides the fan-in/fan-out plumbing the Admission
// Client's event subscription path is built on. Event delivery is
// best-effort (spec.md §4.2): a slow subscriber must never block another
// subscriber or the underlying pub/sub read loop, which these helpers
// enforce structurally rather than by convention.
package channelx

import "context"

// Or merges multiple done-signal channels into one that closes as soon as
// any input closes. Not called elsewhere in this module.
func Or(channels ...<-chan struct{}) <-chan struct{} {
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	}

	orDone := make(chan struct{})
	go func() {
		defer close(orDone)

		switch len(channels) {
		case 2:
			select {
			case <-channels[0]:
			case <-channels[1]:
			}
		default:
			select {
			case <-channels[0]:
			case <-channels[1]:
			case <-channels[2]:
			case <-Or(append(channels[3:], orDone)...):
			}
		}
	}()

	return orDone
}

// OrDone relays values from c until either c closes or ctx is cancelled.
// Every event-subscriber goroutine ranges over an OrDone-wrapped channel so
// that cancelling a subscription can never leak the goroutine.
func OrDone[T any](ctx context.Context, c <-chan T) <-chan T {
	valStream := make(chan T)
	go func() {
		defer close(valStream)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-c:
				if !ok {
					return
				}
				select {
				case valStream <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return valStream
}

// TrySend delivers v to ch without blocking. If ch's buffer is already
// full (a slow reader hasn't drained the previous value), the stale
// value is dropped in favor of v rather than applying backpressure to
// the sender — the event bus's "delivery is best-effort" contract
// applies per-subscriber, so one slow subscriber never stalls the
// dispatch loop serving every other subscriber.
func TrySend[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// FanOut duplicates every value read from in to n independently-paced
// output channels, honoring ctx cancellation. Generalizes a fixed two-way
// Tee into an N-way broadcast. Each output has a one-value buffer filled
// via TrySend, so a slow reader never blocks its siblings; instead, an
// unread value on its own output is replaced by the newer one.
func FanOut[T any](ctx context.Context, in <-chan T, n int) []<-chan T {
	outs := make([]chan T, n)
	ro := make([]<-chan T, n)
	for i := range outs {
		outs[i] = make(chan T, 1)
		ro[i] = outs[i]
	}

	go func() {
		defer func() {
			for _, o := range outs {
				close(o)
			}
		}()

		for {
			var v T
			var ok bool

			select {
			case <-ctx.Done():
				return
			case v, ok = <-in:
				if !ok {
					return
				}
			}

			for _, o := range outs {
				TrySend(o, v)
			}
		}
	}()

	return ro
}

// Bridge flattens a stream of channels into a single channel, in order:
// each inner channel is drained to completion before the next is read,
// so the consumer sees one continuous stream. Not called elsewhere in
// this module (the Admission Client's dispatch loop reads a single
// redis.PubSub channel directly).
func Bridge[T any](ctx context.Context, chanStream <-chan <-chan T) <-chan T {
	valStream := make(chan T)

	go func() {
		defer close(valStream)
		for {
			var stream <-chan T
			select {
			case maybeStream, ok := <-chanStream:
				if !ok {
					return
				}
				stream = maybeStream
			case <-ctx.Done():
				return
			}
			for val := range OrDone(ctx, stream) {
				select {
				case valStream <- val:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return valStream
}
