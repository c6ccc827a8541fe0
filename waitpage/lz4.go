package waitpage

import (
	"bytes"

	"github.com/pierrec/lz4"
)

// LZ4Strategy favors speed over ratio; a reasonable default for a
// frequently-re-rendered template.
type LZ4Strategy struct{}

// Compress writes src as an lz4 frame, the format Decompress's
// lz4.Reader expects.
func (LZ4Strategy) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, ErrIncompressible
	}
	if err := w.Close(); err != nil {
		return nil, ErrIncompressible
	}
	if buf.Len() >= len(src) {
		// Let Encode fall back to the raw envelope rather than storing
		// a "compressed" payload larger than the input.
		return nil, ErrNotShrunk
	}

	return buf.Bytes(), nil
}

func (LZ4Strategy) Decompress(src []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
