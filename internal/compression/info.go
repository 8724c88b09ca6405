package compression

import (
	"fmt"

	"github.com/casstable/casstable/internal/codec"
)

// Params describes a table's CompressionInfo header: the
// algorithm, the fixed logical chunk size every chunk but the last is
// exactly, and algorithm-specific options (currently unused by any
// supported algorithm but preserved positionally for forward
// compatibility with Cassandra's compression_options map).
type Params struct {
	Algorithm   Algorithm
	ChunkLength int
	// MinCompressRatio, when non-zero, mirrors Cassandra's
	// min_compress_ratio option: a chunk is stored uncompressed if
	// compression does not shrink it by at least this ratio.
	MinCompressRatio float64
}

// ChunkOffset is one entry of the CompressionInfo offset table: the byte
// offset within the physical Data file where a compressed chunk begins.
type ChunkOffset int64

// Info is the fully parsed CompressionInfo sidecar: the compression
// parameters plus the physical offset of every chunk and the logical
// (uncompressed) length of the whole Data stream.
type Info struct {
	Params     Params
	Offsets    []ChunkOffset
	DataLength int64 // logical length of the uncompressed stream
}

// ChunkCount returns the number of chunks the logical stream is divided
// into.
func (info *Info) ChunkCount() int { return len(info.Offsets) }

// ChunkLogicalRange returns the logical [start, end) byte range covered by
// chunk index i. The final chunk is truncated to DataLength.
func (info *Info) ChunkLogicalRange(i int) (start, end int64) {
	start = int64(i) * int64(info.Params.ChunkLength)
	end = start + int64(info.Params.ChunkLength)
	if end > info.DataLength {
		end = info.DataLength
	}
	return start, end
}

// ChunkForLogicalOffset returns the index of the chunk containing logical
// offset pos.
func (info *Info) ChunkForLogicalOffset(pos int64) int {
	return int(pos / int64(info.Params.ChunkLength))
}

// Encode serializes Info into the CompressionInfo.db payload that follows
// the class name (EncodeFile prepends that): a reserved options count
// (always zero in this engine — no supported algorithm takes options),
// the chunk length, the logical data length, and the offset table.
func (info *Info) Encode() []byte {
	var out []byte
	out = codec.AppendUint16(out, 0) // options count; kept for forward compat
	out = codec.AppendUint32(out, uint32(info.Params.ChunkLength))
	out = codec.AppendUint64(out, uint64(info.DataLength))
	out = codec.AppendUint32(out, uint32(len(info.Offsets)))
	for _, off := range info.Offsets {
		out = codec.AppendUint64(out, uint64(off))
	}
	return out
}

// EncodeFile renders the full CompressionInfo.db file body: the
// compressor class name as a short string, followed by Encode's payload.
// This is what a writer stages to disk; Encode alone is the part
// Decode's class-name-supplied-externally contract expects.
func (info *Info) EncodeFile() []byte {
	out := codec.AppendShortBytes(nil, []byte(info.Params.Algorithm.ClassName()))
	return append(out, info.Encode()...)
}

// DecodeInfo parses a full CompressionInfo.db file body written by
// EncodeFile, reading the class name prefix itself rather than requiring
// the caller to already know the algorithm.
func DecodeInfo(raw []byte) (*Info, error) {
	cur := codec.NewCursor(raw)
	class, err := cur.ReadShortBytes()
	if err != nil {
		return nil, fmt.Errorf("compression: read compressor class name: %w", err)
	}
	algo, ok := AlgorithmFromClassName(string(class))
	if !ok {
		return nil, fmt.Errorf("compression: unsupported compressor class %q", class)
	}
	return Decode(algo, cur.Bytes())
}

// Decode parses a CompressionInfo.db payload given the compressor class
// name already read from the component's own class-name prefix: the
// component stores the class name as a short string ahead of this
// payload, and DecodeInfo reads that prefix and passes the algorithm in.
func Decode(algorithm Algorithm, raw []byte) (*Info, error) {
	c := codec.NewCursor(raw)
	optionCount, err := c.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("compression: read option count: %w", err)
	}
	for i := uint16(0); i < optionCount; i++ {
		// No supported algorithm defines options; skip a
		// [short key][short value] pair defensively so future
		// option-bearing compressors don't desync the cursor.
		if _, err := c.ReadShortBytes(); err != nil {
			return nil, fmt.Errorf("compression: read option key: %w", err)
		}
		if _, err := c.ReadShortBytes(); err != nil {
			return nil, fmt.Errorf("compression: read option value: %w", err)
		}
	}
	chunkLength, err := c.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("compression: read chunk length: %w", err)
	}
	dataLength, err := c.ReadUint64()
	if err != nil {
		return nil, fmt.Errorf("compression: read data length: %w", err)
	}
	count, err := c.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("compression: read chunk count: %w", err)
	}
	offsets := make([]ChunkOffset, count)
	for i := range offsets {
		off, err := c.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("compression: read chunk offset %d: %w", i, err)
		}
		offsets[i] = ChunkOffset(off)
	}
	return &Info{
		Params:     Params{Algorithm: algorithm, ChunkLength: int(chunkLength)},
		Offsets:    offsets,
		DataLength: int64(dataLength),
	}, nil
}
