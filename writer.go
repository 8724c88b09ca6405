package casstable

import (
	"github.com/casstable/casstable/internal/schema"
	"github.com/casstable/casstable/internal/sstable"
	"github.com/casstable/casstable/internal/sstwriter"
	"github.com/casstable/casstable/internal/unfiltered"
)

// RowInput is one clustering position a caller appends to a new
// generation: its own deletion (if any) plus the regular columns it
// carries.
type RowInput struct {
	Clustering unfiltered.Clustering
	Deletion   *unfiltered.DeletionTime
	Cells      map[string]unfiltered.Cell
}

// RangeTombstoneInput is one range deletion a caller appends to a new
// generation, as an open/close clustering bound pair.
type RangeTombstoneInput struct {
	Start          unfiltered.Clustering
	StartInclusive bool
	End            unfiltered.Clustering
	EndInclusive   bool
	Deletion       unfiltered.DeletionTime
}

// PartitionInput is one partition's complete, already tombstone-resolved
// content to append to a new generation. AppendPartition does not merge
// or dedup: it writes exactly the rows and ranges given, in the clustering
// order computed at Finalize time.
type PartitionInput struct {
	Key      []byte
	Deletion *unfiltered.DeletionTime
	Static   map[string]unfiltered.Cell
	Rows     []RowInput
	Ranges   []RangeTombstoneInput
}

// WriterHandle accumulates partitions for one new generation and
// publishes them atomically on Finalize.
type WriterHandle struct {
	w    *sstwriter.Writer
	opts Options
}

// OpenWriter creates a WriterHandle that will write generation gen of
// table under directory in the given index format (BIG or BTI) once
// Finalize is called.
func OpenWriter(table *schema.Table, directory string, gen int64, format sstable.Format, opts Options) (*WriterHandle, error) {
	opts.setDefaults()
	w := sstwriter.NewWriter(sstwriter.Options{
		Directory:      directory,
		Version:        opts.Version,
		Generation:     gen,
		Format:         format,
		Table:          table,
		Compression:    opts.Compression,
		SampleInterval: opts.SampleInterval,
		FilterFPP:      opts.FilterFPP,
		Logger:         opts.Logger,
	})
	return &WriterHandle{w: w, opts: opts}, nil
}

// AppendPartition buffers one partition's content. Partitions must be
// appended in ascending byte-comparable key order; a caller supplying
// partitions out of order gets an Unsupported error rather than a
// silently corrupt index.
func (h *WriterHandle) AppendPartition(p PartitionInput) error {
	rows := make([]*unfiltered.Row, len(p.Rows))
	for i, r := range p.Rows {
		rows[i] = &unfiltered.Row{Clustering: r.Clustering, Deletion: r.Deletion, Cells: r.Cells}
	}
	ranges := make([]sstwriter.RangeTombstone, len(p.Ranges))
	for i, rt := range p.Ranges {
		startKind := unfiltered.BoundInclusiveStart
		if !rt.StartInclusive {
			startKind = unfiltered.BoundExclusiveStart
		}
		endKind := unfiltered.BoundInclusiveEnd
		if !rt.EndInclusive {
			endKind = unfiltered.BoundExclusiveEnd
		}
		ranges[i] = sstwriter.RangeTombstone{
			Start: rt.Start, StartKind: startKind,
			End: rt.End, EndKind: endKind,
			Deletion: rt.Deletion,
		}
	}

	if err := h.w.AppendPartition(sstwriter.PendingPartition{
		Key: p.Key, Deletion: p.Deletion, Static: p.Static, Rows: rows, Ranges: ranges,
	}); err != nil {
		return wrapErr(KindUnsupported, "writer", err)
	}
	return nil
}

// Finalize encodes and atomically publishes every buffered partition as
// one new generation. Once Finalize returns successfully a concurrent
// TableView.Refresh will observe the generation; an already-open
// TableView does not see it until it is refreshed.
func (h *WriterHandle) Finalize() error {
	if err := h.w.Finalize(h.opts.FS); err != nil {
		return wrapErr(KindIo, "writer", err)
	}
	return nil
}
