package compression

import (
	"github.com/casstable/casstable/internal/xcrc"
)

// Writer buffers logical bytes and flushes fixed-size chunks to an
// underlying physical sink, building the CompressionInfo offset table as
// it goes (the writer produces Data.db and
// CompressionInfo.db together).
type Writer struct {
	params Params
	sink   func(physical []byte) error

	pending    []byte
	physOffset int64
	offsets    []ChunkOffset
	dataLength int64
}

// NewWriter creates a Writer that calls sink with each chunk's physical
// bytes (compressed payload plus CRC trailer) as it is produced. sink is
// responsible for appending to the Data component and must not retain the
// slice past the call.
func NewWriter(params Params, sink func(physical []byte) error) *Writer {
	return &Writer{params: params, sink: sink}
}

// Write appends logical bytes, flushing complete chunks as they fill.
func (w *Writer) Write(p []byte) (int, error) {
	total := len(p)
	w.pending = append(w.pending, p...)
	for len(w.pending) >= w.params.ChunkLength {
		if err := w.flushChunk(w.pending[:w.params.ChunkLength]); err != nil {
			return 0, err
		}
		w.pending = w.pending[w.params.ChunkLength:]
	}
	return total, nil
}

// Close flushes any remaining partial chunk (the final chunk of a table
// is commonly shorter than ChunkLength) and returns the finished Info.
func (w *Writer) Close() (*Info, error) {
	if len(w.pending) > 0 {
		if err := w.flushChunk(w.pending); err != nil {
			return nil, err
		}
		w.pending = nil
	}
	return &Info{Params: w.params, Offsets: w.offsets, DataLength: w.dataLength}, nil
}

func (w *Writer) flushChunk(logical []byte) error {
	compressed, err := Compress(w.params.Algorithm, logical)
	if err != nil {
		return err
	}
	payload := compressed
	if w.params.MinCompressRatio > 0 && float64(len(logical))/float64(len(compressed)) < w.params.MinCompressRatio {
		// Compression didn't earn its keep: store the chunk literally so
		// a reader (which always knows the logical length) can fall back
		// to a size-equality check, mirroring decompressLZ4's literal
		// detection.
		payload = logical
	}
	physical := xcrc.AppendChunkChecksum(append([]byte(nil), payload...), payload)
	w.offsets = append(w.offsets, ChunkOffset(w.physOffset))
	w.physOffset += int64(len(physical))
	w.dataLength += int64(len(logical))
	return w.sink(physical)
}
