// Package bigindex implements the BIG SSTable format's partition and row
// index: Index.db, a sorted sequence of (partition-key, data-position,
// optional row-index) entries, and Summary.db, a sparse in-memory sample
// of Index.db used to narrow a lookup to a short byte range before a
// linear scan.
package bigindex

import (
	"bytes"
	"fmt"

	"github.com/casstable/casstable/internal/codec"
	"github.com/casstable/casstable/internal/unfiltered"
)

// RowIndexEntry is one entry of a large partition's row index: the
// clustering prefix at which this block starts, the byte offset of the
// block relative to the partition's row data, and the block's width in
// bytes.
type RowIndexEntry struct {
	Clustering  unfiltered.Clustering
	DeltaOffset int64
	Width       int64
}

// Entry is one Index.db record: a partition key already encoded
// byte-comparably, the logical offset in Data where the partition
// begins, and (for partitions above the row-index threshold) the sorted
// row index for seeking within it.
type Entry struct {
	PartitionKey []byte
	DataPosition int64
	RowIndex     []RowIndexEntry
}

func encodeEntry(dst []byte, e Entry) []byte {
	dst = codec.AppendUnsignedVInt(dst, uint64(len(e.PartitionKey)))
	dst = append(dst, e.PartitionKey...)
	dst = codec.AppendSignedVInt(dst, e.DataPosition)
	dst = codec.AppendUnsignedVInt(dst, uint64(len(e.RowIndex)))
	for _, ri := range e.RowIndex {
		dst = unfiltered.EncodeClustering(dst, ri.Clustering)
		dst = codec.AppendSignedVInt(dst, ri.DeltaOffset)
		dst = codec.AppendSignedVInt(dst, ri.Width)
	}
	return dst
}

func decodeEntry(cur *codec.Cursor) (Entry, error) {
	var e Entry
	n, err := cur.ReadUnsignedVInt()
	if err != nil {
		return e, fmt.Errorf("bigindex: partition key length: %w", err)
	}
	key, err := cur.ReadBytes(int(n))
	if err != nil {
		return e, fmt.Errorf("bigindex: partition key: %w", err)
	}
	e.PartitionKey = append([]byte(nil), key...)
	if e.DataPosition, err = cur.ReadSignedVInt(); err != nil {
		return e, fmt.Errorf("bigindex: data position: %w", err)
	}
	count, err := cur.ReadUnsignedVInt()
	if err != nil {
		return e, fmt.Errorf("bigindex: row index count: %w", err)
	}
	e.RowIndex = make([]RowIndexEntry, count)
	for i := range e.RowIndex {
		cl, err := unfiltered.DecodeClustering(cur)
		if err != nil {
			return e, fmt.Errorf("bigindex: row index %d clustering: %w", i, err)
		}
		off, err := cur.ReadSignedVInt()
		if err != nil {
			return e, fmt.Errorf("bigindex: row index %d offset: %w", i, err)
		}
		width, err := cur.ReadSignedVInt()
		if err != nil {
			return e, fmt.Errorf("bigindex: row index %d width: %w", i, err)
		}
		e.RowIndex[i] = RowIndexEntry{Clustering: cl, DeltaOffset: off, Width: width}
	}
	return e, nil
}

// Writer accumulates Index.db entries in ascending partition-key order,
// sampling every Nth key into a Summary as it goes.
type Writer struct {
	sampleInterval int
	buf            []byte
	samples        []Sample
	firstKey       []byte
	lastKey        []byte
	count          int
}

// NewWriter creates a Writer that samples one Summary entry per
// sampleInterval Index.db entries (Cassandra's index_interval, default
// 128).
func NewWriter(sampleInterval int) *Writer {
	if sampleInterval <= 0 {
		sampleInterval = 128
	}
	return &Writer{sampleInterval: sampleInterval}
}

// Add appends one partition's index entry. Entries must be added in
// ascending PartitionKey order.
func (w *Writer) Add(e Entry) {
	offset := int64(len(w.buf))
	if w.count == 0 {
		w.firstKey = append([]byte(nil), e.PartitionKey...)
	}
	w.lastKey = append([]byte(nil), e.PartitionKey...)
	if w.count%w.sampleInterval == 0 {
		w.samples = append(w.samples, Sample{Key: append([]byte(nil), e.PartitionKey...), IndexOffset: offset})
	}
	w.buf = encodeEntry(w.buf, e)
	w.count++
}

// IndexBytes returns the finished Index.db payload.
func (w *Writer) IndexBytes() []byte { return w.buf }

// Summary returns the Summary.db content sampled while writing.
func (w *Writer) Summary() *Summary {
	return &Summary{
		SampleInterval: w.sampleInterval,
		Samples:        w.samples,
		FirstKey:       w.firstKey,
		LastKey:        w.lastKey,
	}
}

// Count returns the number of entries written so far.
func (w *Writer) Count() int { return w.count }

// DecodeIndex parses the full Index.db payload into its entries, in file
// order. Used by tests and by full-scan code paths; point lookups should
// prefer Lookup, which uses the Summary to avoid parsing every entry.
func DecodeIndex(raw []byte) ([]Entry, error) {
	cur := codec.NewCursor(raw)
	var entries []Entry
	for cur.Remaining() > 0 {
		e, err := decodeEntry(cur)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Lookup finds the Index.db entry for key (already byte-comparably
// encoded), using summary to narrow the search to the byte range
// covered by one sample interval before linearly scanning Index.db
// (ascending order lets the scan stop as soon as it passes key).
func Lookup(indexBytes []byte, summary *Summary, key []byte) (*Entry, bool, error) {
	start, end, ok := summary.Locate(key)
	if !ok {
		return nil, false, nil
	}
	if end < 0 || end > int64(len(indexBytes)) {
		end = int64(len(indexBytes))
	}
	cur := codec.NewCursor(indexBytes[start:end])
	for cur.Remaining() > 0 {
		e, err := decodeEntry(cur)
		if err != nil {
			return nil, false, err
		}
		c := bytes.Compare(e.PartitionKey, key)
		if c == 0 {
			e := e
			return &e, true, nil
		}
		if c > 0 {
			return nil, false, nil
		}
	}
	return nil, false, nil
}

// SeekRowIndex returns the DeltaOffset of the latest row-index block
// whose clustering is <= target, the offset a row reader should resume
// scanning from to reach target (or the start of the partition's row
// area, found=false, if target precedes every block). descending gives
// the schema's per-clustering-column sort direction.
func SeekRowIndex(entries []RowIndexEntry, target unfiltered.Clustering, descending []bool) (offset int64, found bool) {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if unfiltered.Compare(entries[mid].Clustering, target, descending) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0, false
	}
	return entries[lo-1].DeltaOffset, true
}
