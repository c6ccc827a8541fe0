package client

import "github.com/cockroachdb/errors"

// Error taxonomy (spec.md §7). Callers match these with errors.Is
// to decide whether to fail open, serve a cached waiting page, or
// surface a programmer error.
var (
	// ErrTransport wraps a backing-store connection or timeout
	// failure. Not retried inside the client beyond the bounded
	// reload/reseed attempt PositionOrAdd and friends already make.
	ErrTransport = errors.New("client: transport error")

	// ErrInvalidArgument means a mutation argument (most often a
	// capacity value) wasn't parseable as the client expected.
	ErrInvalidArgument = errors.New("client: invalid argument")
)

func transportErrorf(cause error, format string, args ...any) error {
	return errors.Wrapf(errors.Mark(cause, ErrTransport), format, args...)
}
