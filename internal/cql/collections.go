package cql

import (
	"fmt"

	"github.com/casstable/casstable/internal/codec"
)

// EncodeCollection produces the raw wire bytes of a frozen List/Set/Map
// cell value, per Cassandra's collection serialization: an unsigned VInt
// element count, followed by each element framed as a signed VInt length
// (never -1/-2 inside a frozen collection — elements cannot be null) plus
// its raw bytes. Map elements alternate key, value, and a Map's count is
// its number of key/value pairs.
//
// There is no multi-cell (non-frozen) collection storage in this module:
// internal/unfiltered stores one value per column and has no per-element
// cell path, so a collection column's value is always this single blob.
func EncodeCollection(t *Type, elements [][]byte) ([]byte, error) {
	switch t.Unwrap().Kind {
	case KindList, KindSet:
		return encodeElementSeq(len(elements), elements), nil
	case KindMap:
		if len(elements)%2 != 0 {
			return nil, fmt.Errorf("cql: map collection requires an even number of key/value elements")
		}
		return encodeElementSeq(len(elements)/2, elements), nil
	default:
		return nil, fmt.Errorf("cql: EncodeCollection called on non-collection kind %s", t.Kind)
	}
}

func encodeElementSeq(count int, elements [][]byte) []byte {
	var out []byte
	out = codec.AppendUnsignedVInt(out, uint64(count))
	for _, e := range elements {
		out = codec.AppendSignedVInt(out, int64(len(e)))
		out = append(out, e...)
	}
	return out
}

// DecodeCollection parses a frozen List/Set/Map cell back into its raw
// element byte slices (Map: alternating key, value), leaving per-element
// type decoding to the caller via Decode(t.Elem/Key/Value, ...).
func DecodeCollection(t *Type, raw []byte) ([][]byte, error) {
	switch t.Unwrap().Kind {
	case KindList, KindSet, KindMap:
	default:
		return nil, fmt.Errorf("cql: DecodeCollection called on non-collection kind %s", t.Kind)
	}
	c := codec.NewCursor(raw)
	count, err := c.ReadUnsignedVInt()
	if err != nil {
		return nil, err
	}
	n := count
	if t.Unwrap().Kind == KindMap {
		n *= 2
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		length, err := c.ReadSignedVInt()
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, fmt.Errorf("cql: collection element may not be null/unset")
		}
		b, err := c.ReadBytes(int(length))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// EncodeTuple produces the raw wire bytes of a Tuple or Udt cell: each
// field's value concatenated, framed as [4-byte signed length, -1 for
// null][bytes]. Unlike List/Set/Map there is no element count — arity is
// fixed by the type and trailing fields may be entirely omitted (treated
// as null), matching Cassandra's TupleType/UserType wire format.
func EncodeTuple(fields [][]byte, present []bool) []byte {
	var out []byte
	for i, f := range fields {
		if !present[i] {
			out = codec.AppendUint32(out, 0xFFFFFFFF)
			continue
		}
		out = codec.AppendUint32(out, uint32(int32(len(f))))
		out = append(out, f...)
	}
	return out
}

// DecodeTuple splits a Tuple/Udt cell into up to arity field slices. A
// field is nil with present[i]==false when absent (either because the
// writer omitted trailing fields or encoded an explicit -1 length).
func DecodeTuple(raw []byte, arity int) (fields [][]byte, present []bool, err error) {
	c := codec.NewCursor(raw)
	fields = make([][]byte, arity)
	present = make([]bool, arity)
	for i := 0; i < arity; i++ {
		if c.Remaining() == 0 {
			break // trailing fields omitted entirely: treated as null.
		}
		raw32, err := c.ReadUint32()
		if err != nil {
			return nil, nil, err
		}
		length := int32(raw32)
		if length < 0 {
			continue
		}
		b, err := c.ReadBytes(int(length))
		if err != nil {
			return nil, nil, err
		}
		fields[i] = b
		present[i] = true
	}
	return fields, present, nil
}
