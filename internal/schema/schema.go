// Package schema describes the table and UDT metadata a caller supplies
// out-of-band (the SchemaProvider collaborator): Cassandra SSTables carry
// no embedded CQL schema, so every read/write path in this module needs
// the column layout handed to it explicitly.
package schema

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/casstable/casstable/internal/cql"
)

// Column is one column of a table: its name, CQL type, and role in the
// primary key (if any).
type Column struct {
	Name string
	Type *cql.Type
	Kind ColumnKind
	// Position is this column's 0-based index within its Kind's group
	// (e.g. the second clustering column has Position 1), used to order
	// partition-key and clustering-key components in the composite key
	// encoding.
	Position int
}

// ColumnKind classifies a column's role.
type ColumnKind uint8

const (
	PartitionKey ColumnKind = iota
	ClusteringKey
	Regular
	Static
)

// Table describes one table's full column layout and clustering order.
type Table struct {
	Keyspace string
	Name     string
	Columns  []Column

	// ClusteringDescending marks, per clustering column (by Position),
	// whether that column sorts in reverse ("CLUSTERING ORDER BY ... DESC").
	ClusteringDescending []bool
}

// PartitionKeyColumns returns the partition key columns in declared
// order.
func (t *Table) PartitionKeyColumns() []Column {
	return t.columnsOfKind(PartitionKey)
}

// ClusteringColumns returns the clustering columns in declared order.
func (t *Table) ClusteringColumns() []Column {
	return t.columnsOfKind(ClusteringKey)
}

func (t *Table) columnsOfKind(k ColumnKind) []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// ColumnByName looks up a column by name, returning (col, true) if found.
func (t *Table) ColumnByName(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsClusteringDescending reports whether clustering column at position i
// sorts descending.
func (t *Table) IsClusteringDescending(i int) bool {
	if i < 0 || i >= len(t.ClusteringDescending) {
		return false
	}
	return t.ClusteringDescending[i]
}

// Digest returns a stable fingerprint of t's column layout, recorded in
// Statistics.db when a generation is written and compared against the
// schema a reader supplies at open time to catch a stale or substituted
// SchemaProvider before it silently misdecodes column bytes.
func (t *Table) Digest() []byte {
	cols := append([]Column(nil), t.Columns...)
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Kind != cols[j].Kind {
			return cols[i].Kind < cols[j].Kind
		}
		if cols[i].Position != cols[j].Position {
			return cols[i].Position < cols[j].Position
		}
		return cols[i].Name < cols[j].Name
	})
	h := sha256.New()
	fmt.Fprintf(h, "%s.%s\n", t.Keyspace, t.Name)
	for _, c := range cols {
		fmt.Fprintf(h, "%d:%d:%s:%s\n", c.Kind, c.Position, c.Name, typeSignature(c.Type))
	}
	for i, desc := range t.ClusteringDescending {
		fmt.Fprintf(h, "desc:%d:%v\n", i, desc)
	}
	return h.Sum(nil)
}

// typeSignature renders a CQL type as a stable, uniquely-parenthesized
// string covering every nested shape Digest needs to distinguish.
func typeSignature(t *cql.Type) string {
	if t == nil {
		return "nil"
	}
	switch t.Kind {
	case cql.KindList:
		return fmt.Sprintf("list<%s>", typeSignature(t.Elem))
	case cql.KindSet:
		return fmt.Sprintf("set<%s>", typeSignature(t.Elem))
	case cql.KindMap:
		return fmt.Sprintf("map<%s,%s>", typeSignature(t.Key), typeSignature(t.Value))
	case cql.KindTuple:
		out := "tuple<"
		for i, f := range t.Fields {
			if i > 0 {
				out += ","
			}
			out += typeSignature(f)
		}
		return out + ">"
	case cql.KindFrozen:
		return fmt.Sprintf("frozen<%s>", typeSignature(t.Elem))
	case cql.KindUdt:
		if t.Udt == nil {
			return "udt<?>"
		}
		return fmt.Sprintf("udt<%s.%s>", t.Udt.Keyspace, t.Udt.Name)
	default:
		return fmt.Sprintf("k%d", t.Kind)
	}
}

// Provider resolves table and UDT definitions by name, the schema
// collaborator every OpenTable/OpenWriter call requires: the
// on-disk format carries no schema of its own.
type Provider interface {
	// TableSchema returns the schema for (keyspace, table).
	TableSchema(keyspace, table string) (*Table, error)

	// UserType resolves a user-defined type by (keyspace, name), used
	// when decoding Udt-kind columns.
	UserType(keyspace, name string) (*cql.UdtDefinition, error)
}

// StaticProvider is a Provider backed by an in-memory map, sufficient for
// embedding callers that already know their schema at open time and for
// tests.
type StaticProvider struct {
	Tables map[string]*Table
	UDTs   map[string]*cql.UdtDefinition
}

func tableKey(keyspace, table string) string { return keyspace + "." + table }

// NewStaticProvider creates an empty StaticProvider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{Tables: make(map[string]*Table), UDTs: make(map[string]*cql.UdtDefinition)}
}

// AddTable registers a table definition.
func (p *StaticProvider) AddTable(t *Table) {
	p.Tables[tableKey(t.Keyspace, t.Name)] = t
}

// AddUDT registers a user-defined type.
func (p *StaticProvider) AddUDT(d *cql.UdtDefinition) {
	p.UDTs[tableKey(d.Keyspace, d.Name)] = d
}

func (p *StaticProvider) TableSchema(keyspace, table string) (*Table, error) {
	t, ok := p.Tables[tableKey(keyspace, table)]
	if !ok {
		return nil, &NotFoundError{Keyspace: keyspace, Name: table}
	}
	return t, nil
}

func (p *StaticProvider) UserType(keyspace, name string) (*cql.UdtDefinition, error) {
	d, ok := p.UDTs[tableKey(keyspace, name)]
	if !ok {
		return nil, &NotFoundError{Keyspace: keyspace, Name: name}
	}
	return d, nil
}

// NotFoundError reports that a table or UDT was not registered with the
// schema provider.
type NotFoundError struct {
	Keyspace string
	Name     string
}

func (e *NotFoundError) Error() string {
	return "schema: " + e.Keyspace + "." + e.Name + " not found"
}
