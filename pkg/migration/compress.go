package migration

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/sbdlabs/clustercore/pkg/types"
)

// DecompressLimits bounds streaming decompression to guard against
// decompression bombs.
type DecompressLimits struct {
	MaxRatio int64 // decompressed bytes must not exceed compressed bytes * MaxRatio
	MaxBytes int64 // absolute cap regardless of ratio, 0 disables
}

// DefaultDecompressLimits matches the 100x ratio / 10GB cap.
func DefaultDecompressLimits() DecompressLimits {
	return DecompressLimits{MaxRatio: 100, MaxBytes: 10 * 1024 * 1024 * 1024}
}

func compressBytes(data []byte, c types.Compression) ([]byte, error) {
	switch c {
	case types.CompressionNone, "":
		return data, nil
	case types.CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip compressing package: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing gzip writer: %w", err)
		}
		return buf.Bytes(), nil
	case types.CompressionBzip2:
		return nil, ErrBzip2WriteUnsupported
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// limitWriter aborts with ErrDecompressionBomb as soon as more than limit
// bytes would be buffered, so decompression stops as soon as a bomb is
// detected rather than after inflating the whole stream.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int64
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if int64(w.buf.Len()+len(p)) > w.limit {
		return 0, ErrDecompressionBomb
	}
	return w.buf.Write(p)
}

func decompressBytes(data []byte, c types.Compression, limits DecompressLimits) ([]byte, error) {
	if c == types.CompressionNone || c == "" {
		return data, nil
	}

	var reader io.Reader
	switch c {
	case types.CompressionGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gr.Close()
		reader = gr
	case types.CompressionBzip2:
		reader = bzip2.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}

	compressedLen := int64(len(data))
	limit := compressedLen * limits.MaxRatio
	if limits.MaxBytes > 0 && limits.MaxBytes < limit {
		limit = limits.MaxBytes
	}

	var buf bytes.Buffer
	lw := &limitWriter{buf: &buf, limit: limit}
	if _, err := io.Copy(lw, reader); err != nil {
		if err == ErrDecompressionBomb {
			return nil, ErrDecompressionBomb
		}
		return nil, fmt.Errorf("decompressing package: %w", err)
	}
	return buf.Bytes(), nil
}
