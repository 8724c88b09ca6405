package casstable

import (
	"sort"
	"sync"

	"github.com/casstable/casstable/internal/bigindex"
	"github.com/casstable/casstable/internal/directory"
	"github.com/casstable/casstable/internal/merge"
	"github.com/casstable/casstable/internal/rowreader"
	"github.com/casstable/casstable/internal/schema"
	"github.com/casstable/casstable/internal/sstable"
	"github.com/casstable/casstable/internal/unfiltered"
)

// TableView is a table's live set of generations: the root handle a
// caller opens once and reads through concurrently. Internally it wraps
// an internal/directory.Manager, whose atomically-swapped snapshot gives
// every Get/Range call a consistent view of the generation set even while
// a concurrent Refresh is discovering a newly finalized generation.
type TableView struct {
	table *schema.Table
	opts  Options
	mgr   *directory.Manager

	mu       sync.Mutex
	poisoned map[int64]*Error
}

// OpenTable discovers table's generations under directory and returns a
// TableView ready for concurrent reads. The caller owns the returned
// view's lifetime; there is no Close beyond letting it be garbage
// collected, since every open handle belongs to a GenerationHandle the
// directory manager owns.
func OpenTable(table *schema.Table, dir string, opts Options) (*TableView, error) {
	opts.setDefaults()
	mgr, err := directory.NewManager(opts.FS, dir, opts.Version, table, opts.SchemaOverride, opts.BlockCache, opts.Logger)
	if err != nil {
		return nil, wrapErr(KindIo, "directory", err)
	}
	return &TableView{table: table, opts: opts, mgr: mgr, poisoned: make(map[int64]*Error)}, nil
}

// Refresh re-scans the table's directory, picking up generations a
// concurrent writer finalized since OpenTable or the last Refresh.
// Already-open PartitionViews are unaffected: they were built from a
// snapshot taken before the refresh.
func (v *TableView) Refresh() error {
	if err := v.mgr.Refresh(); err != nil {
		return wrapErr(KindIo, "directory", err)
	}
	return nil
}

func (v *TableView) poisonedError(gen int64) (*Error, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.poisoned[gen]
	return e, ok
}

func (v *TableView) poison(gen int64, err *Error) {
	v.mu.Lock()
	v.poisoned[gen] = err
	v.mu.Unlock()
}

func (v *TableView) readerFor(gen *directory.GenerationHandle) *rowreader.Reader {
	return &rowreader.Reader{
		Table:          v.table,
		Format:         gen.Descriptor.Format,
		Bloom:          gen.Bloom,
		Data:           gen.Data,
		Stats:          gen.Stats,
		IndexBytes:     gen.IndexBytes,
		Summary:        gen.Summary,
		PartitionsTrie: gen.PartitionsTrie,
	}
}

// Get returns key's partition merged across every live, non-poisoned
// generation, or ErrNotFound if no generation holds it. A generation that
// fails mid-decode is excluded from this and every subsequent call and
// reported through Options.Logger; it does not fail the lookup as long as
// another generation still answers it (§7 recovery policy).
func (v *TableView) Get(key []byte) (*PartitionView, error) {
	live := v.mgr.View()
	now := v.opts.Clock.NowSeconds()

	var parts []merge.GenerationPartition
	for _, gen := range live.Generations {
		if _, bad := v.poisonedError(gen.Descriptor.Generation); bad {
			continue
		}
		gen.Acquire()
		p, err := v.readerFor(gen).GetPartition(key, now)
		gen.Release()
		if err == rowreader.ErrNotFound {
			continue
		}
		if err != nil {
			wrapped := wrapErr(KindCorrupt, string(gen.Descriptor.Format), err)
			v.poison(gen.Descriptor.Generation, wrapped)
			v.opts.Logger.Errorf("[casstable] generation %d poisoned and excluded: %v", gen.Descriptor.Generation, err)
			continue
		}
		parts = append(parts, merge.GenerationPartition{Index: int(gen.Descriptor.Generation), Partition: p})
	}
	if len(parts) == 0 {
		return nil, ErrNotFound
	}

	merged := merge.Merge(key, parts, v.table.ClusteringDescending, v.opts.Logger)
	return &PartitionView{table: v.table, merged: merged}, nil
}

// Range returns a PartitionStream over every partition key in
// [lower, upper) (either bound nil means unbounded on that side) across
// every live generation, walking each generation's own index (BIG
// Index.db or BTI Partitions.db) to discover candidate keys before
// merging each one the same way Get does.
func (v *TableView) Range(lower, upper []byte) (*PartitionStream, error) {
	live := v.mgr.View()
	seen := make(map[string]bool)
	var keys [][]byte
	for _, gen := range live.Generations {
		if _, bad := v.poisonedError(gen.Descriptor.Generation); bad {
			continue
		}
		genKeys, err := keysInRange(gen, lower, upper)
		if err != nil {
			v.opts.Logger.Warnf("[casstable] generation %d range scan failed: %v", gen.Descriptor.Generation, err)
			continue
		}
		for _, k := range genKeys {
			s := string(k)
			if !seen[s] {
				seen[s] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) < string(keys[j]) })

	stream := &PartitionStream{pos: -1}
	for _, k := range keys {
		p, err := v.Get(k)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		stream.partitions = append(stream.partitions, p)
	}
	return stream, nil
}

func keysInRange(gen *directory.GenerationHandle, lower, upper []byte) ([][]byte, error) {
	inRange := func(k []byte) bool {
		if lower != nil && string(k) < string(lower) {
			return false
		}
		if upper != nil && string(k) >= string(upper) {
			return false
		}
		return true
	}

	var out [][]byte
	switch gen.Descriptor.Format {
	case sstable.FormatBig:
		entries, err := bigindex.DecodeIndex(gen.IndexBytes)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if inRange(e.PartitionKey) {
				out = append(out, e.PartitionKey)
			}
		}
	case sstable.FormatBTI:
		err := gen.PartitionsTrie.RangeScan(lower, upper, func(key, _ []byte) bool {
			if inRange(key) {
				out = append(out, append([]byte(nil), key...))
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PartitionView is one partition's content after cross-generation merge:
// its deletion (if any), static row, and clustering-ordered rows.
type PartitionView struct {
	table  *schema.Table
	merged *merge.MergedPartition
}

// Key returns the partition's byte-comparable-encoded key.
func (p *PartitionView) Key() []byte { return p.merged.Key }

// Deletion returns the partition-level deletion, or nil if the partition
// was never deleted wholesale.
func (p *PartitionView) Deletion() *unfiltered.DeletionTime { return p.merged.Deletion }

// StaticColumn returns the named static column's merged value.
func (p *PartitionView) StaticColumn(name string) (merge.MergedCell, bool) {
	c, ok := p.merged.Static[name]
	return c, ok
}

// GetRow returns the row at clustering, or ErrNotFound if no live or
// tombstoned row exists at that position.
func (p *PartitionView) GetRow(clustering unfiltered.Clustering) (*RowView, error) {
	for i := range p.merged.Rows {
		if unfiltered.Compare(p.merged.Rows[i].Clustering, clustering, p.table.ClusteringDescending) == 0 {
			return &RowView{row: &p.merged.Rows[i]}, nil
		}
	}
	return nil, ErrNotFound
}

// Bound is one side of a clustering range passed to Scan; a nil *Bound
// leaves that side unbounded.
type Bound struct {
	Clustering unfiltered.Clustering
	Inclusive  bool
}

// Scan returns a RowStream over every row between lower and upper
// (either may be nil for unbounded), in the table's clustering order.
func (p *PartitionView) Scan(lower, upper *Bound) *RowStream {
	descending := p.table.ClusteringDescending
	stream := &RowStream{pos: -1}
	for i := range p.merged.Rows {
		row := &p.merged.Rows[i]
		if lower != nil {
			cmp := unfiltered.Compare(row.Clustering, lower.Clustering, descending)
			if cmp < 0 || (cmp == 0 && !lower.Inclusive) {
				continue
			}
		}
		if upper != nil {
			cmp := unfiltered.Compare(row.Clustering, upper.Clustering, descending)
			if cmp > 0 || (cmp == 0 && !upper.Inclusive) {
				continue
			}
		}
		stream.rows = append(stream.rows, row)
	}
	return stream
}

// RowView is one clustering position's fully cross-generation-resolved
// content.
type RowView struct {
	row *merge.MergedRow
}

// Clustering returns the row's clustering key.
func (r *RowView) Clustering() unfiltered.Clustering { return r.row.Clustering }

// Column returns the named column's merged value.
func (r *RowView) Column(name string) (merge.MergedCell, bool) {
	c, ok := r.row.Cells[name]
	return c, ok
}

// RowStream is a pull iterator over a partition's rows, yielding
// *RowView instead of raw key/value bytes.
type RowStream struct {
	rows []*merge.MergedRow
	pos  int
}

// Next advances the stream and reports whether a row is now available.
func (s *RowStream) Next() bool {
	s.pos++
	return s.pos < len(s.rows)
}

// Row returns the current row. Valid only after Next returns true.
func (s *RowStream) Row() *RowView { return &RowView{row: s.rows[s.pos]} }

// Err always returns nil: a materialized RowStream cannot fail after
// construction.
func (s *RowStream) Err() error { return nil }

// PartitionStream is a pull iterator over a Range call's partitions.
type PartitionStream struct {
	partitions []*PartitionView
	pos        int
}

// Next advances the stream and reports whether a partition is now
// available.
func (s *PartitionStream) Next() bool {
	s.pos++
	return s.pos < len(s.partitions)
}

// Partition returns the current partition. Valid only after Next returns
// true.
func (s *PartitionStream) Partition() *PartitionView { return s.partitions[s.pos] }

// Err always returns nil: a materialized PartitionStream cannot fail
// after construction.
func (s *PartitionStream) Err() error { return nil }
