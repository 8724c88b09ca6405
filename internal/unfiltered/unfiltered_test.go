package unfiltered

import (
	"testing"

	"github.com/casstable/casstable/internal/codec"
	"github.com/casstable/casstable/internal/cql"
	"github.com/casstable/casstable/internal/schema"
)

func testTable() *schema.Table {
	return &schema.Table{
		Keyspace: "ks",
		Name:     "t",
		Columns: []schema.Column{
			{Name: "id", Type: cql.Simple(cql.KindInt), Kind: schema.PartitionKey},
			{Name: "ck", Type: cql.Simple(cql.KindInt), Kind: schema.ClusteringKey},
			{Name: "grp", Type: cql.Simple(cql.KindText), Kind: schema.Static},
			{Name: "name", Type: cql.Simple(cql.KindText), Kind: schema.Regular},
			{Name: "age", Type: cql.Simple(cql.KindInt), Kind: schema.Regular},
		},
	}
}

func clusteringOf(v int32) Clustering {
	b, _ := cql.Encode(cql.Simple(cql.KindInt), v)
	return Clustering{Values: [][]byte{cql.ByteComparable(cql.Simple(cql.KindInt), b)}}
}

func TestRowRoundTrip(t *testing.T) {
	table := testTable()
	baseline := Baseline{MinTimestamp: 100, MinLocalDeletionTime: NoDeletionTime, MinTTL: 0}
	nameBytes, _ := cql.Encode(cql.Simple(cql.KindText), "alpha")
	row := &Row{
		Clustering:   clusteringOf(7),
		HasTimestamp: true,
		Timestamp:    150,
		Cells: map[string]Cell{
			"name": {Present: true, Value: nameBytes, Timestamp: 150, LocalDeletionTime: NoDeletionTime},
		},
	}
	wire := EncodeRow(table, baseline, row)
	cur := codec.NewCursor(wire)
	got, marker, end, err := Decode(cur, table, baseline)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if marker != nil || end {
		t.Fatalf("expected a row record")
	}
	if got.Timestamp != 150 {
		t.Fatalf("timestamp = %d, want 150", got.Timestamp)
	}
	nameCell, ok := got.Cells["name"]
	if !ok || !nameCell.Present || string(nameCell.Value) != string(nameBytes) {
		t.Fatalf("name cell mismatch: %+v", nameCell)
	}
	if _, ok := got.Cells["age"]; ok {
		t.Fatalf("age cell should be absent")
	}
}

func TestRowWithDeletion(t *testing.T) {
	table := testTable()
	baseline := Baseline{MinTimestamp: 0, MinLocalDeletionTime: 0}
	row := &Row{
		Clustering: clusteringOf(1),
		Deletion:   &DeletionTime{Timestamp: 500, LocalDeletionTime: 1000},
		Cells:      map[string]Cell{},
	}
	wire := EncodeRow(table, baseline, row)
	cur := codec.NewCursor(wire)
	got, _, _, err := Decode(cur, table, baseline)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Deletion == nil || got.Deletion.Timestamp != 500 || got.Deletion.LocalDeletionTime != 1000 {
		t.Fatalf("deletion mismatch: %+v", got.Deletion)
	}
}

func TestRangeTombstoneMarkerRoundTrip(t *testing.T) {
	baseline := Baseline{MinTimestamp: 50}
	m := &RangeTombstoneMarker{
		Bound:    clusteringOf(3),
		Kind:     BoundInclusiveStart,
		Deletion: DeletionTime{Timestamp: 200, LocalDeletionTime: 999},
	}
	wire := EncodeRangeTombstoneMarker(baseline, m)
	cur := codec.NewCursor(wire)
	_, got, end, err := Decode(cur, testTable(), baseline)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if end || got == nil {
		t.Fatalf("expected marker record")
	}
	if got.Kind != BoundInclusiveStart || got.Deletion.Timestamp != 200 {
		t.Fatalf("marker mismatch: %+v", got)
	}
}

func TestEndOfPartition(t *testing.T) {
	wire := EncodeEndOfPartition()
	cur := codec.NewCursor(wire)
	row, marker, end, err := Decode(cur, testTable(), Baseline{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !end || row != nil || marker != nil {
		t.Fatalf("expected end-of-partition")
	}
}

func TestPartitionHeaderRoundTrip(t *testing.T) {
	table := testTable()
	baseline := Baseline{MinTimestamp: 10, MinLocalDeletionTime: 0}
	grpBytes, _ := cql.Encode(cql.Simple(cql.KindText), "g1")
	h := PartitionHeader{
		Deletion:  &DeletionTime{Timestamp: 20, LocalDeletionTime: 30},
		StaticRow: map[string]Cell{"grp": {Present: true, Value: grpBytes, Timestamp: 10, LocalDeletionTime: NoDeletionTime}},
	}
	wire := EncodePartitionHeader(table, baseline, h)
	cur := codec.NewCursor(wire)
	got, err := DecodePartitionHeader(cur, table, baseline)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Deletion == nil || got.Deletion.Timestamp != 20 {
		t.Fatalf("deletion mismatch: %+v", got.Deletion)
	}
	if c, ok := got.StaticRow["grp"]; !ok || string(c.Value) != string(grpBytes) {
		t.Fatalf("static row mismatch: %+v", got.StaticRow)
	}
}

func TestClusteringCompareDescending(t *testing.T) {
	a := clusteringOf(1)
	b := clusteringOf(2)
	if Compare(a, b, []bool{false}) >= 0 {
		t.Fatalf("ascending: expected a < b")
	}
	if Compare(a, b, []bool{true}) <= 0 {
		t.Fatalf("descending: expected a > b")
	}
}
