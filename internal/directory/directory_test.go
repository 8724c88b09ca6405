package directory

import (
	"testing"

	"github.com/casstable/casstable/internal/bigindex"
	"github.com/casstable/casstable/internal/bloomfilter"
	"github.com/casstable/casstable/internal/cql"
	"github.com/casstable/casstable/internal/schema"
	"github.com/casstable/casstable/internal/sstable"
	"github.com/casstable/casstable/internal/vfs"
)

func testTable() *schema.Table {
	return &schema.Table{
		Keyspace: "ks",
		Name:     "t",
		Columns: []schema.Column{
			{Name: "id", Type: cql.Simple(cql.KindInt), Kind: schema.PartitionKey, Position: 0},
			{Name: "name", Type: cql.Simple(cql.KindText), Kind: schema.Regular, Position: 0},
		},
	}
}

// writeGeneration writes a minimal, valid BIG-format generation directly
// to fs, bypassing internal/sstwriter so directory tests can
// exercise discovery in isolation.
func writeGeneration(t *testing.T, fs vfs.FS, dir string, gen int64, table *schema.Table) {
	t.Helper()
	desc := sstable.Descriptor{Directory: dir, Version: "nb", Generation: gen, Format: sstable.FormatBig}

	data := []byte("partition-body-bytes")
	writeFile(t, fs, desc.Path(sstable.ComponentData), data)

	w := bigindex.NewWriter(128)
	w.Add(bigindex.Entry{PartitionKey: []byte{0, 0, 0, 1}, DataPosition: 0})
	writeFile(t, fs, desc.Path(sstable.ComponentIndex), w.IndexBytes())
	writeFile(t, fs, desc.Path(sstable.ComponentSummary), w.Summary().Encode())

	fb := bloomfilter.NewBuilder(0.01)
	fb.Add([]byte{0, 0, 0, 1})
	writeFile(t, fs, desc.Path(sstable.ComponentFilter), fb.Build().Encode())

	stats := &sstable.Statistics{PartitionCount: 1, RowCount: 1, SchemaDigest: table.Digest()}
	writeFile(t, fs, desc.Path(sstable.ComponentStatistics), stats.Encode())

	comps := []sstable.Component{
		sstable.ComponentData, sstable.ComponentIndex, sstable.ComponentSummary,
		sstable.ComponentFilter, sstable.ComponentStatistics, sstable.ComponentTOC,
	}
	writeFile(t, fs, desc.Path(sstable.ComponentTOC), sstable.EncodeTOC(desc, comps))
}

func writeFile(t *testing.T, fs vfs.FS, path string, data []byte) {
	t.Helper()
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func TestManagerDiscoversGenerationsInOrder(t *testing.T) {
	fs := vfs.NewMemFS()
	table := testTable()
	writeGeneration(t, fs, "/ks/t", 2, table)
	writeGeneration(t, fs, "/ks/t", 1, table)

	m, err := NewManager(fs, "/ks/t", "nb", table, false, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	view := m.View()
	if len(view.Generations) != 2 {
		t.Fatalf("expected 2 generations, got %d", len(view.Generations))
	}
	if view.Generations[0].Descriptor.Generation != 1 || view.Generations[1].Descriptor.Generation != 2 {
		t.Fatalf("generations not ordered ascending: %+v", view.Generations)
	}
}

func TestManagerSkipsGenerationMissingTOC(t *testing.T) {
	fs := vfs.NewMemFS()
	table := testTable()
	writeGeneration(t, fs, "/ks/t", 1, table)
	// Generation 2 has a Data.db but no TOC.txt: incomplete, should be skipped.
	writeFile(t, fs, "/ks/t/nb-2-big-Data.db", []byte("orphan"))

	m, err := NewManager(fs, "/ks/t", "nb", table, false, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	view := m.View()
	if len(view.Generations) != 1 {
		t.Fatalf("expected 1 generation, got %d", len(view.Generations))
	}
}

func TestManagerRejectsSchemaMismatchWithoutOverride(t *testing.T) {
	fs := vfs.NewMemFS()
	table := testTable()
	writeGeneration(t, fs, "/ks/t", 1, table)

	otherTable := testTable()
	otherTable.Columns = append(otherTable.Columns, schema.Column{Name: "extra", Type: cql.Simple(cql.KindInt), Kind: schema.Regular, Position: 1})

	m, err := NewManager(fs, "/ks/t", "nb", otherTable, false, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	// The mismatched generation should be skipped (logged, not fatal to open).
	view := m.View()
	if len(view.Generations) != 0 {
		t.Fatalf("expected schema-mismatched generation to be skipped, got %d", len(view.Generations))
	}
}

func TestManagerSchemaOverrideAllowsMismatch(t *testing.T) {
	fs := vfs.NewMemFS()
	table := testTable()
	writeGeneration(t, fs, "/ks/t", 1, table)

	otherTable := testTable()
	otherTable.Columns = append(otherTable.Columns, schema.Column{Name: "extra", Type: cql.Simple(cql.KindInt), Kind: schema.Regular, Position: 1})

	m, err := NewManager(fs, "/ks/t", "nb", otherTable, true, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if len(m.View().Generations) != 1 {
		t.Fatalf("expected schema_override to admit the mismatched generation")
	}
}
