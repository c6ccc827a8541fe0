package waitpage

import (
	ddzstd "github.com/DataDog/zstd"
	"github.com/klauspost/compress/zstd"
)

// ZstdStrategy uses the pure-Go klauspost/compress implementation. This is
// the preferred zstd codec: no cgo, predictable cross-compilation.
type ZstdStrategy struct{}

func (ZstdStrategy) Compress(src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, ErrIncompressible
	}
	defer enc.Close()

	compressed := enc.EncodeAll(src, nil)
	if len(compressed) >= len(src) {
		return nil, ErrNotShrunk
	}
	return compressed, nil
}

func (ZstdStrategy) Decompress(src []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return dec.DecodeAll(src, nil)
}

// ZstdCgoStrategy wraps the cgo-backed DataDog/zstd binding. Kept as a
// selectable alternative for deployments that already build with cgo
// enabled and want the reference zstd implementation's compression ratio;
// ZstdStrategy is the default.
type ZstdCgoStrategy struct{}

func (ZstdCgoStrategy) Compress(src []byte) ([]byte, error) {
	compressed, err := ddzstd.Compress(nil, src)
	if err != nil {
		return nil, ErrIncompressible
	}
	if len(compressed) >= len(src) {
		return nil, ErrNotShrunk
	}
	return compressed, nil
}

func (ZstdCgoStrategy) Decompress(src []byte) ([]byte, error) {
	return ddzstd.Decompress(nil, src)
}
