package waitpage

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWaitingPage() []byte {
	return []byte(strings.Repeat("<html><body>You are in line. Position: {{.Position}}</body></html>", 200))
}

func TestNewStrategy_ResolvesKnownNames(t *testing.T) {
	for _, name := range []string{"", "none", "lz4", "zstd", "zstd-cgo"} {
		s, err := NewStrategy(name)
		require.NoError(t, err, name)
		require.NotNil(t, s, name)
	}
}

func TestNewStrategy_RejectsUnknownName(t *testing.T) {
	_, err := NewStrategy("brotli")
	assert.Error(t, err)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	page := sampleWaitingPage()

	for _, name := range []string{"none", "lz4", "zstd"} {
		t.Run(name, func(t *testing.T) {
			s, err := NewStrategy(name)
			require.NoError(t, err)

			blob, err := Encode(s, page)
			require.NoError(t, err)

			got, err := Decode(s, blob)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(page, got))
		})
	}
}

func TestEncode_CompressesRepetitiveContent(t *testing.T) {
	page := sampleWaitingPage()

	s, err := NewStrategy("zstd")
	require.NoError(t, err)

	blob, err := Encode(s, page)
	require.NoError(t, err)
	assert.Less(t, len(blob), len(page))
}

func TestEncode_FallsBackToRawWhenNotShrunk(t *testing.T) {
	// Small, high-entropy input that won't compress smaller than itself.
	tiny := []byte{0x01}

	s, err := NewStrategy("zstd")
	require.NoError(t, err)

	blob, err := Encode(s, tiny)
	require.NoError(t, err)
	require.Equal(t, byte(tagRaw), blob[0])

	got, err := Decode(s, blob)
	require.NoError(t, err)
	assert.Equal(t, tiny, got)
}

func TestEncode_FallsBackToRawWhenLZ4NotShrunk(t *testing.T) {
	// Small, high-entropy input that won't compress smaller than itself.
	tiny := []byte{0x01}

	s, err := NewStrategy("lz4")
	require.NoError(t, err)

	blob, err := Encode(s, tiny)
	require.NoError(t, err)
	require.Equal(t, byte(tagRaw), blob[0])

	got, err := Decode(s, blob)
	require.NoError(t, err)
	assert.Equal(t, tiny, got)
}

func TestDecode_RejectsEmptyBlob(t *testing.T) {
	s := NoneStrategy{}
	_, err := Decode(s, nil)
	assert.Error(t, err)
}

func TestDecode_RejectsUnknownTag(t *testing.T) {
	s := NoneStrategy{}
	_, err := Decode(s, []byte{0x7F, 'x'})
	assert.Error(t, err)
}
