package merge

import (
	"testing"

	"github.com/casstable/casstable/internal/cql"
	"github.com/casstable/casstable/internal/rowreader"
	"github.com/casstable/casstable/internal/unfiltered"
)

func clusteringOf(v int32) unfiltered.Clustering {
	b, _ := cql.Encode(cql.Simple(cql.KindInt), v)
	return unfiltered.Clustering{Values: [][]byte{cql.ByteComparable(cql.Simple(cql.KindInt), b)}}
}

func cellOf(value string, ts int64) unfiltered.Cell {
	return unfiltered.Cell{Present: true, Value: []byte(value), Timestamp: ts, LocalDeletionTime: unfiltered.NoDeletionTime}
}

func TestMergeNewestTimestampWins(t *testing.T) {
	older := &rowreader.Partition{
		Items: []rowreader.Item{{Row: &unfiltered.Row{
			Clustering: clusteringOf(1),
			Cells:      map[string]unfiltered.Cell{"name": cellOf("old", 100)},
		}}},
	}
	newer := &rowreader.Partition{
		Items: []rowreader.Item{{Row: &unfiltered.Row{
			Clustering: clusteringOf(1),
			Cells:      map[string]unfiltered.Cell{"name": cellOf("new", 200)},
		}}},
	}

	merged := Merge([]byte("k"), []GenerationPartition{
		{Index: 0, Partition: older},
		{Index: 1, Partition: newer},
	}, nil, nil)

	if len(merged.Rows) != 1 {
		t.Fatalf("expected 1 merged row, got %d", len(merged.Rows))
	}
	cell := merged.Rows[0].Cells["name"]
	if string(cell.Value) != "new" {
		t.Fatalf("expected newest timestamp to win, got %q", cell.Value)
	}
}

func TestMergeTieBrokenByGeneration(t *testing.T) {
	gen0 := &rowreader.Partition{
		Items: []rowreader.Item{{Row: &unfiltered.Row{
			Clustering: clusteringOf(1),
			Cells:      map[string]unfiltered.Cell{"name": cellOf("from-gen0", 100)},
		}}},
	}
	gen1 := &rowreader.Partition{
		Items: []rowreader.Item{{Row: &unfiltered.Row{
			Clustering: clusteringOf(1),
			Cells:      map[string]unfiltered.Cell{"name": cellOf("from-gen1", 100)},
		}}},
	}

	merged := Merge([]byte("k"), []GenerationPartition{
		{Index: 0, Partition: gen0},
		{Index: 1, Partition: gen1},
	}, nil, nil)

	cell := merged.Rows[0].Cells["name"]
	if string(cell.Value) != "from-gen1" {
		t.Fatalf("expected the newer generation to win an exact timestamp tie, got %q", cell.Value)
	}
}

func TestMergePartitionDeletionShadowsOlderGenerationCell(t *testing.T) {
	gen0 := &rowreader.Partition{
		Items: []rowreader.Item{{Row: &unfiltered.Row{
			Clustering: clusteringOf(1),
			Cells:      map[string]unfiltered.Cell{"name": cellOf("stale", 100)},
		}}},
	}
	gen1 := &rowreader.Partition{
		Deletion: &unfiltered.DeletionTime{Timestamp: 500, LocalDeletionTime: 1000},
	}

	merged := Merge([]byte("k"), []GenerationPartition{
		{Index: 0, Partition: gen0},
		{Index: 1, Partition: gen1},
	}, nil, nil)

	if merged.Deletion == nil || merged.Deletion.Timestamp != 500 {
		t.Fatalf("expected merged partition deletion from generation 1, got %+v", merged.Deletion)
	}
	cell := merged.Rows[0].Cells["name"]
	if !cell.Deleted {
		t.Fatalf("expected a later generation's partition deletion to shadow an older generation's cell, got %+v", cell)
	}
}

func TestMergeRangeTombstoneShadowsOtherGenerationRow(t *testing.T) {
	rangeGen := &rowreader.Partition{
		Ranges: []rowreader.ResolvedRange{{
			Start:    unfiltered.RangeTombstoneMarker{Bound: clusteringOf(0), Kind: unfiltered.BoundInclusiveStart},
			End:      unfiltered.RangeTombstoneMarker{Bound: clusteringOf(10), Kind: unfiltered.BoundInclusiveEnd},
			Deletion: unfiltered.DeletionTime{Timestamp: 300},
		}},
	}
	rowGen := &rowreader.Partition{
		Items: []rowreader.Item{{Row: &unfiltered.Row{
			Clustering: clusteringOf(5),
			Cells:      map[string]unfiltered.Cell{"name": cellOf("covered", 200)},
		}}},
	}

	merged := Merge([]byte("k"), []GenerationPartition{
		{Index: 0, Partition: rangeGen},
		{Index: 1, Partition: rowGen},
	}, nil, nil)

	if len(merged.Rows) != 1 {
		t.Fatalf("expected 1 merged row, got %d", len(merged.Rows))
	}
	cell := merged.Rows[0].Cells["name"]
	if !cell.Deleted {
		t.Fatalf("expected a range tombstone recorded in one generation to shadow a row stored in another, got %+v", cell)
	}
}

func TestMergeDistinctClusteringsBothSurvive(t *testing.T) {
	gen0 := &rowreader.Partition{
		Items: []rowreader.Item{{Row: &unfiltered.Row{
			Clustering: clusteringOf(1),
			Cells:      map[string]unfiltered.Cell{"name": cellOf("a", 100)},
		}}},
	}
	gen1 := &rowreader.Partition{
		Items: []rowreader.Item{{Row: &unfiltered.Row{
			Clustering: clusteringOf(2),
			Cells:      map[string]unfiltered.Cell{"name": cellOf("b", 100)},
		}}},
	}

	merged := Merge([]byte("k"), []GenerationPartition{
		{Index: 0, Partition: gen0},
		{Index: 1, Partition: gen1},
	}, nil, nil)

	if len(merged.Rows) != 2 {
		t.Fatalf("expected 2 distinct merged rows, got %d", len(merged.Rows))
	}
}
