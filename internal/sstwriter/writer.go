// Package sstwriter builds a new generation of a table on disk: it
// buffers partitions in ascending key order, computes the generation's
// encoding baseline and Statistics up front (mirroring how a real
// Cassandra flush derives EncodingStats across a whole memtable before
// serializing a single row), then builds the BIG (Index.db + Summary.db)
// or BTI (Partitions.db) index plus a Bloom filter over the same key
// set, compresses the row bytes through internal/compression, and
// finalizes every component with an atomic-rename-as-visibility-barrier
// pattern: every file is staged under a ".tmp" name and renamed
// into place, with TOC.txt renamed last so a reader never observes a
// partially-written generation.
package sstwriter

import (
	"fmt"
	"sort"

	"github.com/casstable/casstable/internal/bigindex"
	"github.com/casstable/casstable/internal/bloomfilter"
	"github.com/casstable/casstable/internal/bti"
	"github.com/casstable/casstable/internal/codec"
	"github.com/casstable/casstable/internal/compression"
	"github.com/casstable/casstable/internal/logging"
	"github.com/casstable/casstable/internal/schema"
	"github.com/casstable/casstable/internal/sstable"
	"github.com/casstable/casstable/internal/unfiltered"
	"github.com/casstable/casstable/internal/vfs"
	"github.com/casstable/casstable/internal/xcrc"
)

// Options configures a Writer.
type Options struct {
	Directory      string
	Version        string // e.g. "nb"
	Generation     int64
	Format         sstable.Format
	Table          *schema.Table
	Compression    compression.Params // Algorithm == compression.None stores chunks uncompressed but still chunk-framed
	SampleInterval int                // BIG summary sampling interval; 0 uses the package default
	FilterFPP      float64            // Bloom filter target false-positive probability; 0 uses 0.01
	Logger         logging.Logger
}

// PendingPartition is one partition's fully-formed content, already
// sorted and tombstone-resolved by the caller (this package does not
// merge or dedup rows: it writes exactly what it is given).
type PendingPartition struct {
	Key      []byte
	Deletion *unfiltered.DeletionTime
	Static   map[string]unfiltered.Cell
	Rows     []*unfiltered.Row
	// Ranges holds range tombstones as open/close bound pairs, in
	// ascending clustering order and non-overlapping, matching how
	// internal/rowreader.Partition.Ranges resolves them after reading.
	Ranges []RangeTombstone
}

// RangeTombstone is one range deletion to be written as an open/close
// marker pair around the clustering rows it covers.
type RangeTombstone struct {
	Start    unfiltered.Clustering
	StartKind unfiltered.BoundKind
	End      unfiltered.Clustering
	EndKind  unfiltered.BoundKind
	Deletion unfiltered.DeletionTime
}

// Writer accumulates partitions and finalizes them into one generation.
// Partitions must be appended in ascending byte-comparable key order,
// matching how the on-disk index and Bloom filter are built. Encoding is
// deferred to Finalize: the baseline every row/cell delta is encoded
// against is only known once every partition's timestamps, local
// deletion times, and TTLs have been seen.
type Writer struct {
	opts   Options
	logger logging.Logger

	pending    []PendingPartition
	lastKey    []byte
	hasLastKey bool
}

// NewWriter creates a Writer for one new generation.
func NewWriter(opts Options) *Writer {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 128
	}
	if opts.FilterFPP <= 0 {
		opts.FilterFPP = 0.01
	}
	return &Writer{opts: opts, logger: logging.OrDefault(opts.Logger)}
}

// AppendPartition records one partition to be written once Finalize is
// called.
func (w *Writer) AppendPartition(p PendingPartition) error {
	if w.hasLastKey && string(p.Key) <= string(w.lastKey) {
		return fmt.Errorf("sstwriter: partitions must be appended in ascending key order, got %x after %x", p.Key, w.lastKey)
	}
	w.lastKey, w.hasLastKey = p.Key, true
	w.pending = append(w.pending, p)
	return nil
}

// computeBaseline scans every buffered partition once to derive the
// minimum timestamp, local deletion time, and TTL the encoded deltas
// will be taken against, plus the rest of Statistics.db's summary
// fields.
func computeBaseline(pending []PendingPartition) (unfiltered.Baseline, sstable.Statistics) {
	stats := sstable.Statistics{MinLocalDeletionTime: unfiltered.NoDeletionTime}
	haveTimestamp, haveLDT, haveTTL := false, false, false

	visitCell := func(c unfiltered.Cell) {
		if !c.Present {
			return
		}
		if !haveTimestamp || c.Timestamp < stats.MinTimestampMicros {
			stats.MinTimestampMicros = c.Timestamp
			haveTimestamp = true
		}
		if c.Timestamp > stats.MaxTimestampMicros {
			stats.MaxTimestampMicros = c.Timestamp
		}
		if c.Deleted || c.TTL != 0 {
			if !haveLDT || c.LocalDeletionTime < stats.MinLocalDeletionTime {
				stats.MinLocalDeletionTime = c.LocalDeletionTime
				haveLDT = true
			}
			if c.LocalDeletionTime > stats.MaxLocalDeletionTime {
				stats.MaxLocalDeletionTime = c.LocalDeletionTime
			}
			if stats.TombstoneDropTime == 0 || c.LocalDeletionTime > stats.TombstoneDropTime {
				stats.TombstoneDropTime = c.LocalDeletionTime
			}
		}
		if c.TTL != 0 {
			if !haveTTL || c.TTL < stats.MinTTL {
				stats.MinTTL = c.TTL
				haveTTL = true
			}
			if c.TTL > stats.MaxTTL {
				stats.MaxTTL = c.TTL
			}
		}
		if c.Deleted {
			stats.TombstoneCount++
		}
	}

	// visitDeletion folds in a partition, row, or range-tombstone
	// deletion: unlike cells, a DeletionTime's timestamp and local
	// deletion time are always encoded (never gated by a flag), so both
	// must be tracked unconditionally.
	visitDeletion := func(d unfiltered.DeletionTime) {
		if !haveTimestamp || d.Timestamp < stats.MinTimestampMicros {
			stats.MinTimestampMicros = d.Timestamp
			haveTimestamp = true
		}
		if d.Timestamp > stats.MaxTimestampMicros {
			stats.MaxTimestampMicros = d.Timestamp
		}
		if !haveLDT || d.LocalDeletionTime < stats.MinLocalDeletionTime {
			stats.MinLocalDeletionTime = d.LocalDeletionTime
			haveLDT = true
		}
		if d.LocalDeletionTime > stats.MaxLocalDeletionTime {
			stats.MaxLocalDeletionTime = d.LocalDeletionTime
		}
		if stats.TombstoneDropTime == 0 || d.LocalDeletionTime > stats.TombstoneDropTime {
			stats.TombstoneDropTime = d.LocalDeletionTime
		}
	}

	for _, p := range pending {
		stats.PartitionCount++
		if p.Deletion != nil {
			stats.TombstoneCount++
			visitDeletion(*p.Deletion)
		}
		for _, c := range p.Static {
			visitCell(c)
		}
		for _, row := range p.Rows {
			stats.RowCount++
			if row.Deletion != nil {
				stats.TombstoneCount++
				visitDeletion(*row.Deletion)
			}
			for _, c := range row.Cells {
				visitCell(c)
			}
		}
		for _, rt := range p.Ranges {
			stats.TombstoneCount++
			visitDeletion(rt.Deletion)
		}
		if len(p.Rows) > 0 {
			if stats.MinClustering == nil {
				stats.MinClustering = unfiltered.EncodeClustering(nil, p.Rows[0].Clustering)
			}
			stats.MaxClustering = unfiltered.EncodeClustering(nil, p.Rows[len(p.Rows)-1].Clustering)
		}
	}
	if !haveLDT {
		stats.MinLocalDeletionTime = unfiltered.NoDeletionTime
	}

	baseline := unfiltered.Baseline{
		MinTimestamp:         stats.MinTimestampMicros,
		MinLocalDeletionTime: stats.MinLocalDeletionTime,
		MinTTL:               stats.MinTTL,
	}
	if baseline.MinLocalDeletionTime == unfiltered.NoDeletionTime {
		baseline.MinLocalDeletionTime = 0
	}
	return baseline, stats
}

// bodyEvent is one row or range-tombstone-bound to be encoded, ordered
// by its clustering key so rows and range markers interleave correctly
// in the Data stream (a range tombstone's start/end bounds must bracket
// the rows they cover).
type bodyEvent struct {
	clustering unfiltered.Clustering
	row        *unfiltered.Row
	marker     *unfiltered.RangeTombstoneMarker
}

// encodePartitionBody orders p's rows and range tombstone bounds by
// clustering key and encodes them as one unfiltered record stream.
func encodePartitionBody(table *schema.Table, baseline unfiltered.Baseline, p PendingPartition, descending []bool) []byte {
	events := make([]bodyEvent, 0, len(p.Rows)+2*len(p.Ranges))
	for _, row := range p.Rows {
		events = append(events, bodyEvent{clustering: row.Clustering, row: row})
	}
	for i := range p.Ranges {
		rt := p.Ranges[i]
		events = append(events, bodyEvent{clustering: rt.Start, marker: &unfiltered.RangeTombstoneMarker{Bound: rt.Start, Kind: rt.StartKind, Deletion: rt.Deletion}})
		events = append(events, bodyEvent{clustering: rt.End, marker: &unfiltered.RangeTombstoneMarker{Bound: rt.End, Kind: rt.EndKind, Deletion: rt.Deletion}})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return unfiltered.Compare(events[i].clustering, events[j].clustering, descending) < 0
	})

	var out []byte
	for _, ev := range events {
		if ev.row != nil {
			out = append(out, unfiltered.EncodeRow(table, baseline, ev.row)...)
		} else {
			out = append(out, unfiltered.EncodeRangeTombstoneMarker(baseline, ev.marker)...)
		}
	}
	return out
}

// Finalize computes the generation's baseline and Statistics, encodes
// and compresses every buffered partition, builds the index and Bloom
// filter components, and atomically publishes every component of the
// generation, TOC.txt last.
func (w *Writer) Finalize(fs vfs.FS) error {
	baseline, stats := computeBaseline(w.pending)

	var rawSink []byte
	cw := compression.NewWriter(w.opts.Compression, func(physical []byte) error {
		rawSink = append(rawSink, physical...)
		return nil
	})

	bigIndex := bigindex.NewWriter(w.opts.SampleInterval)
	var btiKeys [][2][]byte
	filter := bloomfilter.NewBuilder(w.opts.FilterFPP)

	var dataOffset int64
	for _, p := range w.pending {
		var buf []byte
		buf = append(buf, unfiltered.EncodePartitionHeader(w.opts.Table, baseline, unfiltered.PartitionHeader{
			Deletion:  p.Deletion,
			StaticRow: p.Static,
		})...)
		buf = append(buf, encodePartitionBody(w.opts.Table, baseline, p, w.opts.Table.ClusteringDescending)...)
		buf = append(buf, unfiltered.EncodeEndOfPartition()...)

		if _, err := cw.Write(buf); err != nil {
			return fmt.Errorf("sstwriter: compress partition: %w", err)
		}

		filter.Add(p.Key)
		switch w.opts.Format {
		case sstable.FormatBig:
			bigIndex.Add(bigindex.Entry{PartitionKey: p.Key, DataPosition: dataOffset})
		case sstable.FormatBTI:
			payload := codec.AppendSignedVInt(nil, dataOffset)
			btiKeys = append(btiKeys, [2][]byte{p.Key, payload})
		default:
			return fmt.Errorf("sstwriter: unknown format %q", w.opts.Format)
		}
		dataOffset += int64(len(buf))
	}

	info, err := cw.Close()
	if err != nil {
		return fmt.Errorf("sstwriter: close compression writer: %w", err)
	}

	desc := sstable.Descriptor{Directory: w.opts.Directory, Version: w.opts.Version, Generation: w.opts.Generation, Format: w.opts.Format}

	if err := fs.MkdirAll(w.opts.Directory, 0o755); err != nil {
		return fmt.Errorf("sstwriter: mkdir %s: %w", w.opts.Directory, err)
	}

	if err := w.writeTemp(fs, desc, sstable.ComponentData, rawSink); err != nil {
		return err
	}

	switch w.opts.Format {
	case sstable.FormatBig:
		if err := w.writeTemp(fs, desc, sstable.ComponentIndex, bigIndex.IndexBytes()); err != nil {
			return err
		}
		if err := w.writeTemp(fs, desc, sstable.ComponentSummary, bigIndex.Summary().Encode()); err != nil {
			return err
		}
	case sstable.FormatBTI:
		sort.Slice(btiKeys, func(i, j int) bool { return string(btiKeys[i][0]) < string(btiKeys[j][0]) })
		tb := bti.NewBuilder()
		for _, kv := range btiKeys {
			tb.Add(kv[0], kv[1])
		}
		if err := w.writeTemp(fs, desc, sstable.ComponentPartitions, tb.Build()); err != nil {
			return err
		}
	}

	if err := w.writeTemp(fs, desc, sstable.ComponentFilter, filter.Build().Encode()); err != nil {
		return err
	}
	stats.SchemaDigest = w.opts.Table.Digest()
	if err := w.writeTemp(fs, desc, sstable.ComponentStatistics, stats.Encode()); err != nil {
		return err
	}
	// CompressionInfo.db is written even when the algorithm is None: the
	// Data stream is still divided into fixed-length chunks each carrying
	// its own CRC32 trailer, and a reader needs the chunk offset table to
	// find those chunk boundaries regardless of whether their payload is
	// actually compressed.
	if err := w.writeTemp(fs, desc, sstable.ComponentCompressionInfo, info.EncodeFile()); err != nil {
		return err
	}
	digest := xcrc.Checksum(rawSink)
	if err := w.writeTemp(fs, desc, sstable.ComponentDigest, []byte(xcrc.DigestHex(digest))); err != nil {
		return err
	}

	comps := sstable.ComponentsForFormat(w.opts.Format, true)
	tocBody := sstable.EncodeTOC(desc, comps)
	if err := w.writeTemp(fs, desc, sstable.ComponentTOC, tocBody); err != nil {
		return err
	}

	for _, c := range comps {
		if err := fs.Rename(desc.Directory+"/"+desc.TempFileName(c), desc.Path(c)); err != nil {
			return fmt.Errorf("sstwriter: publish %s: %w", c, err)
		}
	}

	w.logger.Infof(logging.NSWriter+"finalized generation %d (%d partitions, %d rows)", desc.Generation, stats.PartitionCount, stats.RowCount)
	return nil
}

// writeTemp stages one component's bytes under its ".tmp" name; the
// caller renames every staged file into place only after all of them
// have been written successfully, so a crash mid-Finalize leaves no
// generation that TOC.txt could claim is complete.
func (w *Writer) writeTemp(fs vfs.FS, desc sstable.Descriptor, c sstable.Component, data []byte) error {
	path := desc.Directory + "/" + desc.TempFileName(c)
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("sstwriter: create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("sstwriter: write %s: %w", path, err)
	}
	return f.Close()
}
