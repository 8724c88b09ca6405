package unfiltered

import (
	"fmt"

	"github.com/casstable/casstable/internal/codec"
	"github.com/casstable/casstable/internal/schema"
)

// PartitionHeader is the fixed prefix of a partition's content in the
// Data stream: its optional partition-level deletion and its optional
// static row, both read before the first row/range-tombstone-marker
// unfiltered record.
type PartitionHeader struct {
	Deletion  *DeletionTime
	StaticRow map[string]Cell // keyed by static column name; nil if no static row
}

// encodeStaticColumns serializes the static columns of a partition (if any
// are present) the same way EncodeRow serializes regular columns: a
// presence bitmap over the table's static columns in schema order,
// then a cell per present column.
func encodeStaticColumns(table *schema.Table, baseline Baseline, cells map[string]Cell) []byte {
	var staticCols []schema.Column
	for _, col := range table.Columns {
		if col.Kind == schema.Static {
			staticCols = append(staticCols, col)
		}
	}
	bitmapLen := (len(staticCols) + 7) / 8
	bitmap := make([]byte, bitmapLen)
	for i, col := range staticCols {
		if c, ok := cells[col.Name]; ok && c.Present {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}
	out := append([]byte(nil), bitmap...)
	for _, col := range staticCols {
		c, ok := cells[col.Name]
		if !ok || !c.Present {
			continue
		}
		out = encodeCell(out, baseline, c)
	}
	return out
}

func decodeStaticColumns(cur *codec.Cursor, table *schema.Table, baseline Baseline) (map[string]Cell, error) {
	var staticCols []schema.Column
	for _, col := range table.Columns {
		if col.Kind == schema.Static {
			staticCols = append(staticCols, col)
		}
	}
	bitmapLen := (len(staticCols) + 7) / 8
	bitmap, err := cur.ReadBytes(bitmapLen)
	if err != nil {
		return nil, fmt.Errorf("unfiltered: static column bitmap: %w", err)
	}
	cells := make(map[string]Cell)
	for i, col := range staticCols {
		if bitmap[i/8]&(1<<uint(i%8)) == 0 {
			continue
		}
		c, err := decodeCell(cur, baseline)
		if err != nil {
			return nil, fmt.Errorf("unfiltered: static column %q: %w", col.Name, err)
		}
		cells[col.Name] = c
	}
	return cells, nil
}

// EncodePartitionHeader serializes h: one flags byte (bit 0: partition
// deletion present, bit 1: static row present), followed by each
// present payload in that order.
func EncodePartitionHeader(table *schema.Table, baseline Baseline, h PartitionHeader) []byte {
	var flags byte
	if h.Deletion != nil {
		flags |= 1
	}
	if h.StaticRow != nil {
		flags |= 2
	}
	out := []byte{flags}
	if h.Deletion != nil {
		out = codec.AppendSignedVInt(out, h.Deletion.Timestamp-baseline.MinTimestamp)
		out = codec.AppendSignedVInt(out, int64(h.Deletion.LocalDeletionTime)-int64(baseline.MinLocalDeletionTime))
	}
	if h.StaticRow != nil {
		out = append(out, encodeStaticColumns(table, baseline, h.StaticRow)...)
	}
	return out
}

// DecodePartitionHeader reads back a header written by
// EncodePartitionHeader.
func DecodePartitionHeader(cur *codec.Cursor, table *schema.Table, baseline Baseline) (PartitionHeader, error) {
	flags, err := cur.ReadByte()
	if err != nil {
		return PartitionHeader{}, fmt.Errorf("unfiltered: partition header flags: %w", err)
	}
	var h PartitionHeader
	if flags&1 != 0 {
		tsDelta, err := cur.ReadSignedVInt()
		if err != nil {
			return PartitionHeader{}, fmt.Errorf("unfiltered: partition deletion timestamp: %w", err)
		}
		ldtDelta, err := cur.ReadSignedVInt()
		if err != nil {
			return PartitionHeader{}, fmt.Errorf("unfiltered: partition deletion ldt: %w", err)
		}
		h.Deletion = &DeletionTime{
			Timestamp:         baseline.MinTimestamp + tsDelta,
			LocalDeletionTime: int32(int64(baseline.MinLocalDeletionTime) + ldtDelta),
		}
	}
	if flags&2 != 0 {
		cells, err := decodeStaticColumns(cur, table, baseline)
		if err != nil {
			return PartitionHeader{}, err
		}
		h.StaticRow = cells
	}
	return h, nil
}
