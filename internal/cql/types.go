// Package cql implements the CQL value type system used by Cassandra
// SSTables: the tagged type sum, its per-type binary encoding, and the
// byte-comparable encoding used by the BTI trie.
//
// The design favors a small closed enum plus free functions operating on
// it over runtime reflection: unknown UDT fields are rejected at decode
// time, never silently skipped.
package cql

import "fmt"

// Kind identifies one variant of the CQL type sum.
type Kind uint8

const (
	KindBoolean Kind = iota
	KindTinyInt
	KindSmallInt
	KindInt
	KindBigInt
	KindVarInt
	KindFloat
	KindDouble
	KindDecimal
	KindAscii
	KindText
	KindBlob
	KindUuid
	KindTimeUuid
	KindTimestamp
	KindDate
	KindTime
	KindDuration
	KindInet
	KindCounter
	KindList
	KindSet
	KindMap
	KindTuple
	KindUdt
	KindFrozen
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindTinyInt:
		return "tinyint"
	case KindSmallInt:
		return "smallint"
	case KindInt:
		return "int"
	case KindBigInt:
		return "bigint"
	case KindVarInt:
		return "varint"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindDecimal:
		return "decimal"
	case KindAscii:
		return "ascii"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	case KindUuid:
		return "uuid"
	case KindTimeUuid:
		return "timeuuid"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindDuration:
		return "duration"
	case KindInet:
		return "inet"
	case KindCounter:
		return "counter"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindTuple:
		return "tuple"
	case KindUdt:
		return "udt"
	case KindFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsFixedWidth reports whether values of this kind always have the same
// encoded length (used by Statistics/row-delta encoding to skip length
// checks).
func (k Kind) IsFixedWidth() bool {
	switch k {
	case KindBoolean, KindTinyInt, KindSmallInt, KindInt, KindBigInt,
		KindFloat, KindDouble, KindUuid, KindTimeUuid, KindTimestamp,
		KindDate, KindTime, KindCounter:
		return true
	default:
		return false
	}
}

// FixedWidth returns the encoded byte length for fixed-width kinds, or 0.
func (k Kind) FixedWidth() int {
	switch k {
	case KindBoolean, KindTinyInt:
		return 1
	case KindSmallInt:
		return 2
	case KindInt, KindFloat, KindDate:
		return 4
	case KindBigInt, KindDouble, KindTimestamp, KindTime, KindCounter:
		return 8
	case KindUuid, KindTimeUuid:
		return 16
	default:
		return 0
	}
}

// UdtField is one named, typed field of a UDT, in declaration order.
type UdtField struct {
	Name string
	Type *Type
}

// UdtDefinition describes a user-defined type, keyed by (keyspace, name)
// and resolved through the schema provider collaborator.
type UdtDefinition struct {
	Keyspace string
	Name     string
	Fields   []UdtField
}

// FieldIndex returns the declaration index of a field name, or -1.
func (d *UdtDefinition) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Type is a CQL type: a Kind tag plus whatever nested structure that kind
// requires (element/key/value types for collections, field list for
// tuples, the UDT definition for Udt, and the wrapped inner type for
// Frozen).
type Type struct {
	Kind Kind

	// Elem is the element type for List/Set, and the wrapped type for
	// Frozen.
	Elem *Type

	// Key/Value are the key and value types for Map.
	Key   *Type
	Value *Type

	// Fields holds the element types of a Tuple, in order.
	Fields []*Type

	// Udt holds the field definitions of a Udt.
	Udt *UdtDefinition
}

// Frozen returns a new Type wrapping t as frozen. Frozen affects
// mutability/comparison semantics only, never wire encoding.
func Frozen(t *Type) *Type { return &Type{Kind: KindFrozen, Elem: t} }

// IsFrozen reports whether t is the Frozen wrapper.
func (t *Type) IsFrozen() bool { return t.Kind == KindFrozen }

// Unwrap returns the inner type if t is Frozen, else t itself.
func (t *Type) Unwrap() *Type {
	if t.Kind == KindFrozen {
		return t.Elem
	}
	return t
}

// Simple constructs a Type for a non-parameterized Kind.
func Simple(k Kind) *Type { return &Type{Kind: k} }

// ListOf constructs a List(elem) type.
func ListOf(elem *Type) *Type { return &Type{Kind: KindList, Elem: elem} }

// SetOf constructs a Set(elem) type.
func SetOf(elem *Type) *Type { return &Type{Kind: KindSet, Elem: elem} }

// MapOf constructs a Map(key, value) type.
func MapOf(key, value *Type) *Type { return &Type{Kind: KindMap, Key: key, Value: value} }

// TupleOf constructs a Tuple(fields...) type.
func TupleOf(fields ...*Type) *Type { return &Type{Kind: KindTuple, Fields: fields} }

// UdtType constructs a Udt type from a resolved definition.
func UdtType(def *UdtDefinition) *Type { return &Type{Kind: KindUdt, Udt: def} }

// IsMultiCell reports whether a non-frozen value of this type is stored as
// independent per-element cells that merge element-wise, as opposed to
// Frozen collections/UDTs which are one opaque cell.
func (t *Type) IsMultiCell() bool {
	switch t.Kind {
	case KindList, KindSet, KindMap, KindUdt:
		return true
	default:
		return false
	}
}
