// Package merge resolves a partition's final content across every
// generation that holds a piece of it. Each generation has already
// applied its own tombstones and TTL expirations (internal/rowreader);
// this package's job is the cross-generation conflict resolution:
// highest timestamp wins per cell, a tombstone from any generation
// shadows an older cell in any other generation, and range tombstones
// recorded in one generation apply to rows stored in another.
//
// Uses a container/heap k-way merge over each generation's row slice,
// adapted from a byte-key/byte-value cursor merge to a
// clustering-key/cell merge over already-materialized partitions: since
// internal/rowreader reads a whole partition into memory per generation,
// there is no streaming cursor to merge lazily, only a handful of small
// per-generation row slices to fold together.
package merge

import (
	"container/heap"

	"github.com/casstable/casstable/internal/logging"
	"github.com/casstable/casstable/internal/rowreader"
	"github.com/casstable/casstable/internal/unfiltered"
)

// GenerationPartition pairs one generation's already within-generation
// resolved Partition view with that generation's rank: higher Index
// means a newer (later-written) generation, used only to break an exact
// timestamp tie between two generations' cells.
type GenerationPartition struct {
	Index     int
	Partition *rowreader.Partition
}

// MergedCell is one column's final value after cross-generation
// resolution: either a live value or a tombstone.
type MergedCell struct {
	Present   bool
	Deleted   bool
	Value     []byte
	Timestamp int64
}

// MergedRow is one clustering position's fully resolved content.
type MergedRow struct {
	Clustering unfiltered.Clustering
	Cells      map[string]MergedCell
}

// MergedPartition is a partition's content after folding every
// generation that contributed to it into one logical view.
type MergedPartition struct {
	Key      []byte
	Deletion *unfiltered.DeletionTime
	Static   map[string]MergedCell
	Rows     []MergedRow
}

// Merge folds parts (one entry per generation holding this partition,
// any order) into a single MergedPartition. descending gives the
// table's per-clustering-column sort order.
func Merge(key []byte, parts []GenerationPartition, descending []bool, logger logging.Logger) *MergedPartition {
	logger = logging.OrDefault(logger)
	out := &MergedPartition{Key: key}

	out.Deletion = maxDeletion(nil, partitionDeletions(parts))

	var allRanges []rangeWithGen
	for _, gp := range parts {
		for _, rr := range gp.Partition.Ranges {
			allRanges = append(allRanges, rangeWithGen{ResolvedRange: rr, gen: gp.Index})
		}
	}

	out.Static = mergeCellMaps(staticMaps(parts))

	rows := mergeRows(parts, allRanges, descending, out.Deletion)
	out.Rows = rows
	logger.Debugf(logging.NSMerge+"merged partition across %d generations into %d rows", len(parts), len(rows))
	return out
}

type rangeWithGen struct {
	rowreader.ResolvedRange
	gen int
}

func partitionDeletions(parts []GenerationPartition) []*unfiltered.DeletionTime {
	var out []*unfiltered.DeletionTime
	for _, gp := range parts {
		out = append(out, gp.Partition.Deletion)
	}
	return out
}

func staticMaps(parts []GenerationPartition) []genCellMap {
	var out []genCellMap
	for _, gp := range parts {
		out = append(out, genCellMap{gen: gp.Index, cells: gp.Partition.Static})
	}
	return out
}

// maxDeletion returns the latest (highest-timestamp) non-nil deletion
// among base and extra, or nil if none are set.
func maxDeletion(base *unfiltered.DeletionTime, extra []*unfiltered.DeletionTime) *unfiltered.DeletionTime {
	best := base
	for _, d := range extra {
		if d == nil {
			continue
		}
		if best == nil || d.Timestamp > best.Timestamp {
			best = d
		}
	}
	return best
}

type genCellMap struct {
	gen   int
	cells map[string]unfiltered.Cell
}

// mergeCellMaps resolves one set of named cells (static columns, or one
// row's regular columns) contributed by multiple generations into their
// final values: highest timestamp wins, the generation index only breaks
// an exact tie, and a lexicographically greater value breaks any
// remaining tie so the result is deterministic regardless of input order.
func mergeCellMaps(maps []genCellMap) map[string]MergedCell {
	type candidate struct {
		cell unfiltered.Cell
		gen  int
	}
	best := make(map[string]candidate)
	for _, gm := range maps {
		for name, cell := range gm.cells {
			if !cell.Present {
				continue
			}
			cur, ok := best[name]
			if !ok || cellWins(cell, gm.gen, cur.cell, cur.gen) {
				best[name] = candidate{cell: cell, gen: gm.gen}
			}
		}
	}
	if len(best) == 0 {
		return nil
	}
	out := make(map[string]MergedCell, len(best))
	for name, c := range best {
		out[name] = MergedCell{Present: true, Deleted: c.cell.Deleted, Value: c.cell.Value, Timestamp: c.cell.Timestamp}
	}
	return out
}

// cellWins reports whether candidate a (from generation genA) should
// replace the currently-chosen cell b (from generation genB).
func cellWins(a unfiltered.Cell, genA int, b unfiltered.Cell, genB int) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	if genA != genB {
		return genA > genB
	}
	return string(a.Value) > string(b.Value)
}

// mergeRows performs the k-way merge of every generation's row list by
// clustering key, using a heap of per-generation cursors the same way a
// sorted-children merge of byte keys works, except the ordering key is a
// Clustering (via unfiltered.Compare) and each heap pop can yield several
// same-clustering contributions at once that must be folded together
// before appending one MergedRow to the output.
func mergeRows(parts []GenerationPartition, ranges []rangeWithGen, descending []bool, partitionDeletion *unfiltered.DeletionTime) []MergedRow {
	h := &rowHeap{descending: descending}
	cursors := make([]*genCursor, 0, len(parts))
	for _, gp := range parts {
		rows := rowsOf(gp.Partition)
		if len(rows) == 0 {
			continue
		}
		c := &genCursor{gen: gp.Index, rows: rows}
		cursors = append(cursors, c)
		heap.Push(h, heapEntry{cursor: c, clustering: rows[0].Clustering})
	}
	heap.Init(h)

	var out []MergedRow
	for h.Len() > 0 {
		top := h.entries[0].clustering
		var group []genCellMap
		var rowDeletion []*unfiltered.DeletionTime
		for h.Len() > 0 && unfiltered.Compare(h.entries[0].clustering, top, descending) == 0 {
			entry := heap.Pop(h).(heapEntry)
			row := entry.cursor.rows[entry.cursor.pos]
			group = append(group, genCellMap{gen: entry.cursor.gen, cells: row.Cells})
			rowDeletion = append(rowDeletion, row.Deletion)
			entry.cursor.pos++
			if entry.cursor.pos < len(entry.cursor.rows) {
				heap.Push(h, heapEntry{cursor: entry.cursor, clustering: entry.cursor.rows[entry.cursor.pos].Clustering})
			}
		}

		effectiveDeletion := maxDeletion(partitionDeletion, rowDeletion)
		var coveringTS int64
		hasCover := false
		for _, rg := range ranges {
			if rg.Covers(top, descending) {
				if !hasCover || rg.Deletion.Timestamp > coveringTS {
					coveringTS = rg.Deletion.Timestamp
					hasCover = true
				}
			}
		}

		cells := mergeCellMaps(group)
		for name, c := range cells {
			if effectiveDeletion != nil && c.Timestamp <= effectiveDeletion.Timestamp {
				c.Deleted = true
				c.Value = nil
				cells[name] = c
				continue
			}
			if hasCover && c.Timestamp <= coveringTS {
				c.Deleted = true
				c.Value = nil
				cells[name] = c
			}
		}
		out = append(out, MergedRow{Clustering: top, Cells: cells})
	}
	return out
}

func rowsOf(p *rowreader.Partition) []*unfiltered.Row {
	var rows []*unfiltered.Row
	for _, item := range p.Items {
		if item.Row != nil {
			rows = append(rows, item.Row)
		}
	}
	return rows
}

type genCursor struct {
	gen  int
	rows []*unfiltered.Row
	pos  int
}

type heapEntry struct {
	cursor     *genCursor
	clustering unfiltered.Clustering
}

// rowHeap is a container/heap.Interface min-heap ordering heapEntry by
// clustering key, keyed on a Clustering comparison instead of raw bytes.
type rowHeap struct {
	entries    []heapEntry
	descending []bool
}

func (h *rowHeap) Len() int { return len(h.entries) }
func (h *rowHeap) Less(i, j int) bool {
	return unfiltered.Compare(h.entries[i].clustering, h.entries[j].clustering, h.descending) < 0
}
func (h *rowHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *rowHeap) Push(x any)    { h.entries = append(h.entries, x.(heapEntry)) }
func (h *rowHeap) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries = h.entries[:n-1]
	return e
}
