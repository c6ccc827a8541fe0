package waitpage

// NoneStrategy stores the waiting page as-is. Default, so behavior matches
// spec.md's framing of the blob as opaque bytes when compression isn't
// configured.
type NoneStrategy struct{}

func (NoneStrategy) Compress(src []byte) ([]byte, error) {
	return src, nil
}

func (NoneStrategy) Decompress(src []byte) ([]byte, error) {
	return src, nil
}
