// Package waitpage stores and serves the `:queue_waiting_page` blob
// (spec.md §3). The page is opaque HTML fetched by every queued client's
// poll loop, so compressing it at rest (and decompressing once per fetch,
// not per request, since the proxy layer is expected to cache the
// decompressed bytes) pays for itself once the page is more than a few
// kilobytes.
package waitpage

import "github.com/cockroachdb/errors"

// Strategy compresses/decompresses the waiting-page blob before it is
// written to / after it is read from the backing store.
type Strategy interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

var (
	ErrIncompressible = errors.New("waitpage: compression failed")
	ErrNotShrunk       = errors.New("waitpage: compressed size not reduced")
)

// NewStrategy resolves a Strategy by name. Unknown names are a
// configuration error, not a silent fallback, since picking the wrong
// codec for stored data produces garbage on read.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", "none":
		return NoneStrategy{}, nil
	case "lz4":
		return LZ4Strategy{}, nil
	case "zstd":
		return ZstdStrategy{}, nil
	case "zstd-cgo":
		return ZstdCgoStrategy{}, nil
	default:
		return nil, errors.Newf("waitpage: unknown compression strategy %q", name)
	}
}

// Envelope tags for Encode/Decode. A strategy may decline to shrink a
// payload (ErrNotShrunk) or a caller may configure NoneStrategy; either
// way the blob on the wire must say which it is, since a strategy's
// Decompress cannot tell raw bytes from its own ciphertext apart.
const (
	tagRaw        byte = 0
	tagCompressed byte = 1
)

// Encode compresses src with s, falling back to storing it raw (tagged
// accordingly) if s declines to shrink it or isn't configured at all.
func Encode(s Strategy, src []byte) ([]byte, error) {
	if _, ok := s.(NoneStrategy); ok {
		return append([]byte{tagRaw}, src...), nil
	}

	compressed, err := s.Compress(src)
	if errors.Is(err, ErrNotShrunk) {
		return append([]byte{tagRaw}, src...), nil
	}
	if err != nil {
		return nil, err
	}
	return append([]byte{tagCompressed}, compressed...), nil
}

// Decode reverses Encode, using s only when the blob says it needs to.
func Decode(s Strategy, blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, errors.New("waitpage: empty blob")
	}

	tag, payload := blob[0], blob[1:]
	switch tag {
	case tagRaw:
		return payload, nil
	case tagCompressed:
		return s.Decompress(payload)
	default:
		return nil, errors.Newf("waitpage: unknown envelope tag %d", tag)
	}
}
