package migration

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/types"
)

func TestCompressDecompressGzipRoundTrip(t *testing.T) {
	original := []byte(`{"hello":"world"}`)

	compressed, err := compressBytes(original, types.CompressionGzip)
	require.NoError(t, err)
	assert.NotEqual(t, original, compressed)

	decompressed, err := decompressBytes(compressed, types.CompressionGzip, DefaultDecompressLimits())
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestCompressNonePassesThrough(t *testing.T) {
	original := []byte("raw bytes")
	compressed, err := compressBytes(original, types.CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, original, compressed)
}

func TestCompressBzip2Unsupported(t *testing.T) {
	_, err := compressBytes([]byte("data"), types.CompressionBzip2)
	assert.ErrorIs(t, err, ErrBzip2WriteUnsupported)
}

func TestDecompressBombDetected(t *testing.T) {
	// A gzip stream whose decompressed size vastly exceeds its compressed
	// size should trip the ratio guard rather than fully inflating.
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	payload := bytes.Repeat([]byte{0}, 10*1024*1024) // highly compressible
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	limits := DecompressLimits{MaxRatio: 10, MaxBytes: 0}
	_, err = decompressBytes(buf.Bytes(), types.CompressionGzip, limits)
	assert.ErrorIs(t, err, ErrDecompressionBomb)
}
