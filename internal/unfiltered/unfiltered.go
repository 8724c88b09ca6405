// Package unfiltered defines the wire record shared by the row reader and
// the writer for the content of a partition in the Data stream: rows,
// range tombstone markers, and the end-of-partition terminator, all
// framed behind one flags byte.
//
// Every row- and cell-level timestamp, TTL, and local deletion time is
// stored as a delta from the generation's Baseline (the minimums recorded
// in Statistics), keeping the common case of partitions written in one
// burst down to a one-byte VInt per field.
package unfiltered

import (
	"bytes"
	"fmt"

	"github.com/casstable/casstable/internal/codec"
	"github.com/casstable/casstable/internal/schema"
)

// Flags is the 1-byte field that opens every unfiltered record.
type Flags uint8

const (
	FlagIsRangeTombstoneMarker Flags = 1 << 0
	FlagHasTimestamp           Flags = 1 << 1
	FlagHasTTL                 Flags = 1 << 2
	FlagHasDeletion            Flags = 1 << 3
	FlagHasAllColumns          Flags = 1 << 4
	FlagHasComplexDeletion     Flags = 1 << 5
	FlagHasExtendedFlags       Flags = 1 << 6
	FlagEndOfPartition         Flags = 1 << 7
)

// NoDeletionTime marks a DeletionTime as "not deleted": Cassandra reserves
// Integer.MAX_VALUE for this purpose so a live cell's ldt field can be
// compared the same way as a deleted one's.
const NoDeletionTime int32 = 0x7FFFFFFF

// DeletionTime is a timestamped deletion marker: a row, cell, range, or
// partition tombstone, or TTL-driven expiration (ldt alone, no ts bound
// applies). Live() reports the "no deletion" sentinel.
type DeletionTime struct {
	Timestamp         int64
	LocalDeletionTime int32
}

// Live reports whether d represents the absence of a deletion.
func (d DeletionTime) Live() bool { return d.LocalDeletionTime == NoDeletionTime }

// LiveDeletionTime is the zero-value-equivalent "no deletion" marker.
var LiveDeletionTime = DeletionTime{LocalDeletionTime: NoDeletionTime}

// Baseline holds a generation's minimum timestamp, local deletion time,
// and TTL (taken over all its partitions), against which every row/cell
// encodes its own values as a signed delta.
type Baseline struct {
	MinTimestamp         int64
	MinLocalDeletionTime int32
	MinTTL               int32
}

// Clustering is a clustering key or a prefix/bound of one: one entry per
// clustering column in schema order, already transformed into
// byte-comparable encoding (internal/cql.ByteComparable). A nil entry
// marks that trailing component as absent, which range tombstone bounds
// and partial seeks use.
type Clustering struct {
	Values [][]byte
}

// Len returns the number of present leading components.
func (c Clustering) Len() int {
	n := 0
	for _, v := range c.Values {
		if v == nil {
			break
		}
		n++
	}
	return n
}

// Compare orders two clusterings (or prefixes) component-wise using
// byte-comparable encoding, honoring descending as the schema's
// per-column clustering order (index i of descending applies to
// component i). A shorter present-component prefix sorts before a
// longer one that extends it, matching the convention that an
// exclusive/inclusive-start bound with fewer components is a lower
// bound for everything it prefixes.
func Compare(a, b Clustering, descending []bool) int {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	for i := 0; i < n; i++ {
		c := bytes.Compare(a.Values[i], b.Values[i])
		if i < len(descending) && descending[i] {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return a.Len() - b.Len()
}

// EncodeClustering serializes a Clustering as a VInt component count, a
// presence bitmap, then each present component as a VInt-length-prefixed
// byte string.
func EncodeClustering(dst []byte, c Clustering) []byte {
	dst = codec.AppendUnsignedVInt(dst, uint64(len(c.Values)))
	bitmapLen := (len(c.Values) + 7) / 8
	bitmap := make([]byte, bitmapLen)
	for i, v := range c.Values {
		if v != nil {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}
	dst = append(dst, bitmap...)
	for _, v := range c.Values {
		if v == nil {
			continue
		}
		dst = codec.AppendUnsignedVInt(dst, uint64(len(v)))
		dst = append(dst, v...)
	}
	return dst
}

// DecodeClustering reads back a Clustering written by EncodeClustering.
func DecodeClustering(cur *codec.Cursor) (Clustering, error) {
	n, err := cur.ReadUnsignedVInt()
	if err != nil {
		return Clustering{}, fmt.Errorf("unfiltered: clustering component count: %w", err)
	}
	bitmapLen := (int(n) + 7) / 8
	bitmap, err := cur.ReadBytes(bitmapLen)
	if err != nil {
		return Clustering{}, fmt.Errorf("unfiltered: clustering presence bitmap: %w", err)
	}
	values := make([][]byte, n)
	for i := range values {
		if bitmap[i/8]&(1<<uint(i%8)) == 0 {
			continue
		}
		ln, err := cur.ReadUnsignedVInt()
		if err != nil {
			return Clustering{}, fmt.Errorf("unfiltered: clustering component %d length: %w", i, err)
		}
		b, err := cur.ReadBytes(int(ln))
		if err != nil {
			return Clustering{}, fmt.Errorf("unfiltered: clustering component %d: %w", i, err)
		}
		values[i] = append([]byte(nil), b...)
	}
	return Clustering{Values: values}, nil
}

// Cell is one column's value (or deletion) within a row.
type Cell struct {
	Present           bool
	Deleted           bool
	Value             []byte
	Timestamp         int64
	TTL               int32
	LocalDeletionTime int32
}

// Row is one clustering position's worth of content: its own optional
// deletion/liveness timestamp and the cells of every regular column
// present.
type Row struct {
	Clustering      Clustering
	Deletion        *DeletionTime
	HasTimestamp    bool
	Timestamp       int64
	Cells           map[string]Cell
}

// BoundKind classifies a range tombstone marker's clustering bound.
type BoundKind uint8

const (
	BoundInclusiveStart BoundKind = iota
	BoundExclusiveStart
	BoundInclusiveEnd
	BoundExclusiveEnd
)

func (k BoundKind) IsStart() bool {
	return k == BoundInclusiveStart || k == BoundExclusiveStart
}

func (k BoundKind) Inclusive() bool {
	return k == BoundInclusiveStart || k == BoundInclusiveEnd
}

// RangeTombstoneMarker is one open or close bound of a range deletion.
type RangeTombstoneMarker struct {
	Bound     Clustering
	Kind      BoundKind
	Deletion  DeletionTime
}

// EncodeRow serializes row against baseline and the table's regular
// column list (in schema order): flags, clustering, optional
// timestamp and deletion deltas, a columns-present bitmap (omitted when
// every regular column is present, FlagHasAllColumns), then per present
// column a tombstone-or-value.
func EncodeRow(table *schema.Table, baseline Baseline, row *Row) []byte {
	regular := table.Columns // filtered below to Regular kind in declared order
	var flags Flags
	if row.HasTimestamp {
		flags |= FlagHasTimestamp
	}
	if row.Deletion != nil {
		flags |= FlagHasDeletion
	}
	allPresent := true
	for _, col := range regular {
		if col.Kind != schema.Regular {
			continue
		}
		if c, ok := row.Cells[col.Name]; !ok || !c.Present {
			allPresent = false
			break
		}
	}
	if allPresent {
		flags |= FlagHasAllColumns
	}

	var out []byte
	out = append(out, byte(flags))
	out = EncodeClustering(out, row.Clustering)
	if row.HasTimestamp {
		out = codec.AppendSignedVInt(out, row.Timestamp-baseline.MinTimestamp)
	}
	if row.Deletion != nil {
		out = codec.AppendSignedVInt(out, row.Deletion.Timestamp-baseline.MinTimestamp)
		out = codec.AppendSignedVInt(out, int64(row.Deletion.LocalDeletionTime)-int64(baseline.MinLocalDeletionTime))
	}

	var regularCols []schema.Column
	for _, col := range regular {
		if col.Kind == schema.Regular {
			regularCols = append(regularCols, col)
		}
	}
	if !allPresent {
		bitmapLen := (len(regularCols) + 7) / 8
		bitmap := make([]byte, bitmapLen)
		for i, col := range regularCols {
			if c, ok := row.Cells[col.Name]; ok && c.Present {
				bitmap[i/8] |= 1 << uint(i%8)
			}
		}
		out = append(out, bitmap...)
	}
	for _, col := range regularCols {
		c, ok := row.Cells[col.Name]
		if !ok || !c.Present {
			continue
		}
		out = encodeCell(out, baseline, c)
	}
	return out
}

func encodeCell(dst []byte, baseline Baseline, c Cell) []byte {
	var cflags byte
	if c.Deleted {
		cflags |= 1
	}
	if c.TTL != 0 {
		cflags |= 2
	}
	dst = append(dst, cflags)
	dst = codec.AppendSignedVInt(dst, c.Timestamp-baseline.MinTimestamp)
	if c.Deleted || c.TTL != 0 {
		dst = codec.AppendSignedVInt(dst, int64(c.LocalDeletionTime)-int64(baseline.MinLocalDeletionTime))
	}
	if c.TTL != 0 {
		dst = codec.AppendSignedVInt(dst, int64(c.TTL)-int64(baseline.MinTTL))
	}
	if !c.Deleted {
		dst = codec.AppendUnsignedVInt(dst, uint64(len(c.Value)))
		dst = append(dst, c.Value...)
	}
	return dst
}

func decodeCell(cur *codec.Cursor, baseline Baseline) (Cell, error) {
	cflagsB, err := cur.ReadByte()
	if err != nil {
		return Cell{}, fmt.Errorf("unfiltered: cell flags: %w", err)
	}
	c := Cell{Present: true, Deleted: cflagsB&1 != 0}
	hasTTL := cflagsB&2 != 0
	tsDelta, err := cur.ReadSignedVInt()
	if err != nil {
		return Cell{}, fmt.Errorf("unfiltered: cell timestamp: %w", err)
	}
	c.Timestamp = baseline.MinTimestamp + tsDelta
	if c.Deleted || hasTTL {
		ldtDelta, err := cur.ReadSignedVInt()
		if err != nil {
			return Cell{}, fmt.Errorf("unfiltered: cell ldt: %w", err)
		}
		c.LocalDeletionTime = int32(int64(baseline.MinLocalDeletionTime) + ldtDelta)
	} else {
		c.LocalDeletionTime = NoDeletionTime
	}
	if hasTTL {
		ttlDelta, err := cur.ReadSignedVInt()
		if err != nil {
			return Cell{}, fmt.Errorf("unfiltered: cell ttl: %w", err)
		}
		c.TTL = int32(int64(baseline.MinTTL) + ttlDelta)
	}
	if !c.Deleted {
		n, err := cur.ReadUnsignedVInt()
		if err != nil {
			return Cell{}, fmt.Errorf("unfiltered: cell value length: %w", err)
		}
		b, err := cur.ReadBytes(int(n))
		if err != nil {
			return Cell{}, fmt.Errorf("unfiltered: cell value: %w", err)
		}
		c.Value = append([]byte(nil), b...)
	}
	return c, nil
}

// EncodeRangeTombstoneMarker serializes m against baseline.
func EncodeRangeTombstoneMarker(baseline Baseline, m *RangeTombstoneMarker) []byte {
	flags := FlagIsRangeTombstoneMarker | FlagHasTimestamp | FlagHasDeletion
	out := []byte{byte(flags), byte(m.Kind)}
	out = EncodeClustering(out, m.Bound)
	out = codec.AppendSignedVInt(out, m.Deletion.Timestamp-baseline.MinTimestamp)
	out = codec.AppendSignedVInt(out, int64(m.Deletion.LocalDeletionTime)-int64(baseline.MinLocalDeletionTime))
	return out
}

// EncodeEndOfPartition returns the 1-byte terminator record.
func EncodeEndOfPartition() []byte { return []byte{byte(FlagEndOfPartition)} }

// Decode reads one unfiltered record from cur. Exactly one of row/marker
// is non-nil unless end is true (end-of-partition), in which case both
// are nil.
func Decode(cur *codec.Cursor, table *schema.Table, baseline Baseline) (row *Row, marker *RangeTombstoneMarker, end bool, err error) {
	flagByte, err := cur.ReadByte()
	if err != nil {
		return nil, nil, false, fmt.Errorf("unfiltered: flags: %w", err)
	}
	flags := Flags(flagByte)
	if flags&FlagEndOfPartition != 0 {
		return nil, nil, true, nil
	}
	if flags&FlagIsRangeTombstoneMarker != 0 {
		kindB, err := cur.ReadByte()
		if err != nil {
			return nil, nil, false, fmt.Errorf("unfiltered: marker kind: %w", err)
		}
		bound, err := DecodeClustering(cur)
		if err != nil {
			return nil, nil, false, err
		}
		tsDelta, err := cur.ReadSignedVInt()
		if err != nil {
			return nil, nil, false, fmt.Errorf("unfiltered: marker timestamp: %w", err)
		}
		ldtDelta, err := cur.ReadSignedVInt()
		if err != nil {
			return nil, nil, false, fmt.Errorf("unfiltered: marker ldt: %w", err)
		}
		m := &RangeTombstoneMarker{
			Bound: bound,
			Kind:  BoundKind(kindB),
			Deletion: DeletionTime{
				Timestamp:         baseline.MinTimestamp + tsDelta,
				LocalDeletionTime: int32(int64(baseline.MinLocalDeletionTime) + ldtDelta),
			},
		}
		return nil, m, false, nil
	}

	clustering, err := DecodeClustering(cur)
	if err != nil {
		return nil, nil, false, err
	}
	r := &Row{Clustering: clustering, Cells: make(map[string]Cell)}
	if flags&FlagHasTimestamp != 0 {
		delta, err := cur.ReadSignedVInt()
		if err != nil {
			return nil, nil, false, fmt.Errorf("unfiltered: row timestamp: %w", err)
		}
		r.HasTimestamp = true
		r.Timestamp = baseline.MinTimestamp + delta
	}
	if flags&FlagHasDeletion != 0 {
		tsDelta, err := cur.ReadSignedVInt()
		if err != nil {
			return nil, nil, false, fmt.Errorf("unfiltered: row deletion timestamp: %w", err)
		}
		ldtDelta, err := cur.ReadSignedVInt()
		if err != nil {
			return nil, nil, false, fmt.Errorf("unfiltered: row deletion ldt: %w", err)
		}
		r.Deletion = &DeletionTime{
			Timestamp:         baseline.MinTimestamp + tsDelta,
			LocalDeletionTime: int32(int64(baseline.MinLocalDeletionTime) + ldtDelta),
		}
	}

	var regularCols []schema.Column
	for _, col := range table.Columns {
		if col.Kind == schema.Regular {
			regularCols = append(regularCols, col)
		}
	}
	var present []bool
	if flags&FlagHasAllColumns != 0 {
		present = make([]bool, len(regularCols))
		for i := range present {
			present[i] = true
		}
	} else {
		bitmapLen := (len(regularCols) + 7) / 8
		bitmap, err := cur.ReadBytes(bitmapLen)
		if err != nil {
			return nil, nil, false, fmt.Errorf("unfiltered: row column bitmap: %w", err)
		}
		present = make([]bool, len(regularCols))
		for i := range present {
			present[i] = bitmap[i/8]&(1<<uint(i%8)) != 0
		}
	}
	for i, col := range regularCols {
		if !present[i] {
			continue
		}
		c, err := decodeCell(cur, baseline)
		if err != nil {
			return nil, nil, false, fmt.Errorf("unfiltered: column %q: %w", col.Name, err)
		}
		r.Cells[col.Name] = c
	}
	return r, nil, false, nil
}
