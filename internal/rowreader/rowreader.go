// Package rowreader implements the single-generation partition reader:
// bloom filter test, summary/trie lookup, index exact match, partition
// header fetch, unfiltered record streaming, and within-generation
// tombstone/TTL resolution.
package rowreader

import (
	"fmt"

	"github.com/casstable/casstable/internal/bigindex"
	"github.com/casstable/casstable/internal/bloomfilter"
	"github.com/casstable/casstable/internal/bti"
	"github.com/casstable/casstable/internal/codec"
	"github.com/casstable/casstable/internal/compression"
	"github.com/casstable/casstable/internal/schema"
	"github.com/casstable/casstable/internal/sstable"
	"github.com/casstable/casstable/internal/unfiltered"
)

// Reader reads partitions out of one generation's Data component,
// locating them through either the BIG (Summary+Index) or BTI
// (Partitions trie) variant.
type Reader struct {
	Table  *schema.Table
	Format sstable.Format
	Bloom  *bloomfilter.Filter
	Data   *compression.Reader
	Stats  *sstable.Statistics

	// BIG-only.
	IndexBytes []byte
	Summary    *bigindex.Summary

	// BTI-only.
	PartitionsTrie *bti.Trie
}

// Item is one element of a partition's body: either a resolved row or a
// range tombstone marker, in clustering order.
type Item struct {
	Row    *unfiltered.Row
	Marker *unfiltered.RangeTombstoneMarker
}

// ResolvedRange is one open/close range tombstone marker pair, resolved
// into a single bound-to-bound interval plus the deletion it carries.
// Exposed on Partition so a cross-generation merge can re-check rows
// from other generations against a range tombstone this generation
// alone recorded.
type ResolvedRange struct {
	Start    unfiltered.RangeTombstoneMarker
	End      unfiltered.RangeTombstoneMarker
	Deletion unfiltered.DeletionTime
}

// Covers reports whether clustering c falls within rr's bounds under the
// given per-component descending order.
func (rr ResolvedRange) Covers(c unfiltered.Clustering, descending []bool) bool {
	lowCmp := unfiltered.Compare(c, rr.Start.Bound, descending)
	if rr.Start.Kind == unfiltered.BoundExclusiveStart {
		if lowCmp <= 0 {
			return false
		}
	} else if lowCmp < 0 {
		return false
	}
	highCmp := unfiltered.Compare(c, rr.End.Bound, descending)
	if rr.End.Kind == unfiltered.BoundExclusiveEnd {
		if highCmp >= 0 {
			return false
		}
	} else if highCmp > 0 {
		return false
	}
	return true
}

// Partition is one generation's raw (pre-cross-generation-merge) view of
// a partition: its own deletion, static row, and ordered items, already
// resolved against its own partition/range/row tombstones and TTLs
// (step 6 of the row-reading algorithm) but not yet merged with any
// other generation.
type Partition struct {
	Key      []byte
	Deletion *unfiltered.DeletionTime
	Static   map[string]unfiltered.Cell
	Items    []Item
	Ranges   []ResolvedRange
}

// ErrNotFound is returned by GetPartition when the bloom filter or index
// conclusively shows the key is absent from this generation.
var ErrNotFound = fmt.Errorf("rowreader: partition not found")

// GetPartition looks up a partition by its byte-comparable-encoded key
// and returns its fully resolved (within this generation) content.
func (r *Reader) GetPartition(key []byte, now int64) (*Partition, error) {
	if r.Bloom != nil && !r.Bloom.MayContain(key) {
		return nil, ErrNotFound
	}

	var dataOffset int64
	var rowIndex []bigindex.RowIndexEntry
	switch r.Format {
	case sstable.FormatBig:
		entry, ok, err := bigindex.Lookup(r.IndexBytes, r.Summary, key)
		if err != nil {
			return nil, fmt.Errorf("rowreader: index lookup: %w", err)
		}
		if !ok {
			return nil, ErrNotFound
		}
		dataOffset = entry.DataPosition
		rowIndex = entry.RowIndex
	case sstable.FormatBTI:
		if r.PartitionsTrie == nil {
			return nil, fmt.Errorf("rowreader: BTI generation missing partitions trie")
		}
		payload, ok, err := r.PartitionsTrie.Lookup(key)
		if err != nil {
			return nil, fmt.Errorf("rowreader: trie lookup: %w", err)
		}
		if !ok {
			return nil, ErrNotFound
		}
		cur := codec.NewCursor(payload)
		off, err := cur.ReadSignedVInt()
		if err != nil {
			return nil, fmt.Errorf("rowreader: trie payload data offset: %w", err)
		}
		dataOffset = off
	default:
		return nil, fmt.Errorf("rowreader: unknown format %q", r.Format)
	}

	blob, err := r.readTail(dataOffset)
	if err != nil {
		return nil, fmt.Errorf("rowreader: read partition at offset %d: %w", dataOffset, err)
	}

	return r.decodePartition(key, blob, rowIndex, now)
}

// readTail reads from dataOffset to the end of the (logical) Data
// stream. Reading the full remainder rather than an exact
// partition-length slice keeps the reader simple — the decode loop below
// stops at end-of-partition without consuming the trailing bytes of
// later partitions — at the cost of an oversized read for partitions
// near the front of a large generation.
func (r *Reader) readTail(offset int64) ([]byte, error) {
	total := r.Data.DataLength()
	if offset < 0 || offset >= total {
		return nil, fmt.Errorf("offset %d outside data length %d", offset, total)
	}
	buf := make([]byte, total-offset)
	n, err := r.Data.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

func (r *Reader) decodePartition(key []byte, blob []byte, rowIndex []bigindex.RowIndexEntry, now int64) (*Partition, error) {
	_ = rowIndex // reserved for a future seek-to-clustering fast path; full scan is correct without it
	cur := codec.NewCursor(blob)
	baseline := unfiltered.Baseline{
		MinTimestamp:         r.Stats.MinTimestampMicros,
		MinLocalDeletionTime: r.Stats.MinLocalDeletionTime,
		MinTTL:               r.Stats.MinTTL,
	}
	header, err := unfiltered.DecodePartitionHeader(cur, r.Table, baseline)
	if err != nil {
		return nil, fmt.Errorf("partition header: %w", err)
	}

	p := &Partition{Key: key, Deletion: header.Deletion, Static: header.StaticRow}

	var openMarker *unfiltered.RangeTombstoneMarker
	var items []Item
	for {
		row, marker, end, err := unfiltered.Decode(cur, r.Table, baseline)
		if err != nil {
			return nil, fmt.Errorf("unfiltered record: %w", err)
		}
		if end {
			break
		}
		if marker != nil {
			if marker.Kind.IsStart() {
				openMarker = marker
			} else if openMarker != nil {
				p.Ranges = append(p.Ranges, ResolvedRange{
					Start:    *openMarker,
					End:      *marker,
					Deletion: openMarker.Deletion,
				})
				openMarker = nil
			}
			items = append(items, Item{Marker: marker})
			continue
		}
		items = append(items, Item{Row: row})
	}

	descending := r.Table.ClusteringDescending
	for _, item := range items {
		if item.Row == nil {
			continue
		}
		applyTombstones(item.Row, p.Deletion, p.Ranges, descending, now)
	}
	p.Items = items
	return p, nil
}

// applyTombstones shadows row's cells in place per the row reader's
// tombstone-application step: a partition deletion shadows any cell with
// timestamp <= its own, a range tombstone shadows any cell it covers
// with timestamp <= its own, a row-level deletion shadows analogously,
// and a cell past its TTL is converted into a tombstone rather than
// dropped, so downstream merging can still use it to shadow older
// generations' writes.
func applyTombstones(row *unfiltered.Row, partitionDeletion *unfiltered.DeletionTime, ranges []ResolvedRange, descending []bool, now int64) {
	shadowTS := int64(-1) << 63
	hasShadow := false
	shadowLDT := unfiltered.NoDeletionTime
	if partitionDeletion != nil {
		shadowTS = partitionDeletion.Timestamp
		shadowLDT = partitionDeletion.LocalDeletionTime
		hasShadow = true
	}
	if row.Deletion != nil && (!hasShadow || row.Deletion.Timestamp > shadowTS) {
		shadowTS = row.Deletion.Timestamp
		shadowLDT = row.Deletion.LocalDeletionTime
		hasShadow = true
	}
	var coveringRangeTS int64
	hasRange := false
	for _, rr := range ranges {
		if rr.Covers(row.Clustering, descending) {
			if !hasRange || rr.Deletion.Timestamp > coveringRangeTS {
				coveringRangeTS = rr.Deletion.Timestamp
				hasRange = true
			}
		}
	}

	for name, cell := range row.Cells {
		if !cell.Present || cell.Deleted {
			continue
		}
		if hasShadow && cell.Timestamp <= shadowTS {
			cell.Deleted = true
			cell.Value = nil
			cell.LocalDeletionTime = shadowLDT
			row.Cells[name] = cell
			continue
		}
		if hasRange && cell.Timestamp <= coveringRangeTS {
			cell.Deleted = true
			cell.Value = nil
			row.Cells[name] = cell
			continue
		}
		if cell.TTL != 0 && cell.LocalDeletionTime != unfiltered.NoDeletionTime && int64(cell.LocalDeletionTime) <= now {
			cell.Deleted = true
			cell.Value = nil
			row.Cells[name] = cell
		}
	}
}
