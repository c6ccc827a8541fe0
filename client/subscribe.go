package client

import (
	"context"
	"regexp"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"bouncer/channelx"
)

// eventSource is the narrow slice of *redis.Client Subscribe needs.
// Separate from configStore since a deployment may run the Admission
// Client with publish-only access (reverse proxy) and never construct
// an eventSource at all.
type eventSource interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// WithEventSource enables Subscribe.
func WithEventSource(es eventSource) Option {
	return func(c *Client) { c.events = es }
}

type subscription struct {
	pattern *regexp.Regexp
	ch      chan Event
}

// subscribers holds the live fan-out set for the single shared
// `prefix:events` pub/sub connection. Lazily started on the first
// Subscribe call — generalizes the teacher's PubSubService
// (redis/pubsub.go), which read one channel for one caller, into
// many independent callers sharing one underlying redis.PubSub
// connection via channelx.TrySend's best-effort per-subscriber
// delivery (no subscriber can block another or the read loop).
type subscribers struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]subscription
}

// Subscribe matches event payloads against pattern (e.g.
// `^(settings|queue|store):`) and invokes cb for each match, until the
// returned cancel is called or ctx is done. Delivery is best-effort:
// a slow cb may miss events published while it's still processing an
// earlier one.
func (c *Client) Subscribe(ctx context.Context, pattern string, cb func(Event)) (cancel func(), err error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "client: invalid subscribe pattern")
	}
	if c.events == nil {
		return nil, errors.New("client: no event source configured")
	}

	if err := c.ensureListening(ctx); err != nil {
		return nil, err
	}

	sub := subscription{pattern: re, ch: make(chan Event, 1)}

	c.subs.mu.Lock()
	id := c.subs.next
	c.subs.next++
	c.subs.entries[id] = sub
	c.subs.mu.Unlock()

	subCtx, subCancel := context.WithCancel(ctx)
	go func() {
		for ev := range channelx.OrDone(subCtx, sub.ch) {
			cb(ev)
		}
	}()

	return func() {
		subCancel()
		c.subs.mu.Lock()
		delete(c.subs.entries, id)
		c.subs.mu.Unlock()
	}, nil
}

// ensureListening starts the single background reader for
// `prefix:events` on first use. Safe to call repeatedly/concurrently.
func (c *Client) ensureListening(ctx context.Context) error {
	c.listenOnce.mu.Lock()
	defer c.listenOnce.mu.Unlock()
	if c.listenOnce.started {
		return nil
	}

	pubsub := c.events.Subscribe(ctx, c.key(eventsSuffix))
	if _, err := pubsub.Receive(ctx); err != nil {
		return transportErrorf(err, "client: subscribe to events channel")
	}

	c.listenOnce.started = true
	go c.dispatchLoop(pubsub)
	return nil
}

func (c *Client) dispatchLoop(pubsub *redis.PubSub) {
	defer pubsub.Close()
	for msg := range pubsub.Channel() {
		ev := Event{Channel: msg.Channel, Payload: msg.Payload}

		c.subs.mu.Lock()
		matches := make([]subscription, 0, len(c.subs.entries))
		for _, sub := range c.subs.entries {
			if sub.pattern.MatchString(ev.Payload) {
				matches = append(matches, sub)
			}
		}
		c.subs.mu.Unlock()

		for _, sub := range matches {
			channelx.TrySend(sub.ch, ev)
		}
	}
}
