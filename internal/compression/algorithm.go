// Package compression implements the chunked compression frame layer used
// by the Cassandra "nb" Data component: each chunk is compressed
// independently with a per-chunk CRC32 trailer, and a CompressionInfo
// sidecar records each chunk's physical offset and compressed length.
package compression

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies one of the compressor classes Cassandra recognizes
// in a CompressionInfo sidecar's class name.
type Algorithm uint8

const (
	// None stores chunks uncompressed. The Data stream is still chunked
	// with CRC trailers and a CompressionInfo component is still written,
	// so callers route through the same Compress/Decompress entry points
	// uniformly.
	None Algorithm = iota
	LZ4
	Snappy
	Deflate
	Zstd
)

// ClassName returns the Cassandra compressor class name as it appears in
// CompressionInfo, e.g. "org.apache.cassandra.io.compress.LZ4Compressor".
func (a Algorithm) ClassName() string {
	switch a {
	case LZ4:
		return "org.apache.cassandra.io.compress.LZ4Compressor"
	case Snappy:
		return "org.apache.cassandra.io.compress.SnappyCompressor"
	case Deflate:
		return "org.apache.cassandra.io.compress.DeflateCompressor"
	case Zstd:
		return "org.apache.cassandra.io.compress.ZstdCompressor"
	default:
		return ""
	}
}

// AlgorithmFromClassName maps a CompressionInfo class name back to an
// Algorithm. Unrecognized class names return (0, false); the caller
// should surface this as an Unsupported error rather than guessing.
func AlgorithmFromClassName(class string) (Algorithm, bool) {
	switch class {
	case "org.apache.cassandra.io.compress.LZ4Compressor":
		return LZ4, true
	case "org.apache.cassandra.io.compress.SnappyCompressor":
		return Snappy, true
	case "org.apache.cassandra.io.compress.DeflateCompressor":
		return Deflate, true
	case "org.apache.cassandra.io.compress.ZstdCompressor":
		return Zstd, true
	default:
		return 0, false
	}
}

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Snappy:
		return "snappy"
	case Deflate:
		return "deflate"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// Compress compresses one logical chunk. The returned bytes are the
// physical payload written to the Data component, before the trailing
// CRC32 (internal/xcrc) is appended.
func Compress(a Algorithm, data []byte) ([]byte, error) {
	switch a {
	case None:
		return data, nil
	case LZ4:
		return compressLZ4(data)
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Deflate:
		return compressDeflate(data)
	case Zstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("compression: unsupported algorithm %s", a)
	}
}

// Decompress reverses Compress. expectedSize must be the exact logical
// (uncompressed) chunk length, which the caller derives from the
// CompressionInfo chunk length and the position of the final chunk within
// the logical stream (last-chunk truncation rule).
func Decompress(a Algorithm, data []byte, expectedSize int) ([]byte, error) {
	switch a {
	case None:
		return data, nil
	case LZ4:
		return decompressLZ4(data, expectedSize)
	case Snappy:
		return snappy.Decode(nil, data)
	case Deflate:
		return decompressDeflate(data)
	case Zstd:
		return decompressZstd(data)
	default:
		return nil, fmt.Errorf("compression: unsupported algorithm %s", a)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(data, dst, ht[:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress block: %w", err)
	}
	if n == 0 {
		// Incompressible input: LZ4 block compression signals this by
		// writing nothing. Store the literal chunk so the physical size
		// is still well-defined for the CompressionInfo offset table.
		return append([]byte(nil), data...), nil
	}
	return dst[:n], nil
}

func decompressLZ4(data []byte, expectedSize int) ([]byte, error) {
	if len(data) == expectedSize {
		// A chunk compressLZ4 stored literally because it was
		// incompressible; LZ4_decompress_safe would reject this as
		// corrupt input, so detect it by the size match instead.
		if _, err := lz4.UncompressBlock(data, make([]byte, expectedSize)); err != nil {
			return append([]byte(nil), data...), nil
		}
	}
	dst := make([]byte, expectedSize)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 uncompress block: %w", err)
	}
	return dst[:n], nil
}

func compressDeflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("deflate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("deflate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressDeflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
