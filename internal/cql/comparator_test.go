package cql

import (
	"bytes"
	"math/big"
	"sort"
	"testing"
)

func TestByteComparableSignedIntOrder(t *testing.T) {
	values := []int32{-100, -1, 0, 1, 100}
	var encoded [][]byte
	for _, v := range values {
		raw, err := Encode(Simple(KindInt), v)
		if err != nil {
			t.Fatal(err)
		}
		encoded = append(encoded, ByteComparable(Simple(KindInt), raw))
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("byte order violated between %d and %d", values[i-1], values[i])
		}
	}
}

func TestByteComparableFloatOrder(t *testing.T) {
	values := []float64{-100.5, -0.001, 0, 0.001, 100.5}
	var encoded [][]byte
	for _, v := range values {
		raw, err := Encode(Simple(KindDouble), v)
		if err != nil {
			t.Fatal(err)
		}
		encoded = append(encoded, ByteComparable(Simple(KindDouble), raw))
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("byte order violated between %v and %v", values[i-1], values[i])
		}
	}
}

func TestByteComparableVarintOrder(t *testing.T) {
	lits := []string{"-999999999999", "-128", "-1", "0", "1", "127", "999999999999"}
	var encoded [][]byte
	for _, s := range lits {
		v, _ := new(big.Int).SetString(s, 10)
		raw, err := Encode(Simple(KindVarInt), v)
		if err != nil {
			t.Fatal(err)
		}
		encoded = append(encoded, ByteComparable(Simple(KindVarInt), raw))
	}
	sorted := append([][]byte(nil), encoded...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	for i := range sorted {
		if !bytes.Equal(sorted[i], encoded[i]) {
			t.Fatalf("varint byte order mismatch at index %d (%s)", i, lits[i])
		}
	}
}

func TestCompositeRoundTrip(t *testing.T) {
	comps := [][]byte{[]byte("part1"), []byte("part2"), []byte("part3")}
	wire := EncodeComposite(comps, TerminatorEquals)
	got, term, err := DecodeComposite(wire)
	if err != nil {
		t.Fatal(err)
	}
	if term != TerminatorEquals {
		t.Fatalf("got terminator %#x want %#x", term, TerminatorEquals)
	}
	if len(got) != len(comps) {
		t.Fatalf("got %d components want %d", len(got), len(comps))
	}
	for i := range comps {
		if !bytes.Equal(got[i], comps[i]) {
			t.Fatalf("component %d mismatch: got %q want %q", i, got[i], comps[i])
		}
	}
}

func TestCompositeOrderingRespectsComponentOrder(t *testing.T) {
	a := EncodeComposite([][]byte{[]byte("a"), []byte("z")}, TerminatorEquals)
	b := EncodeComposite([][]byte{[]byte("b"), []byte("a")}, TerminatorEquals)
	if bytes.Compare(a, b) >= 0 {
		t.Fatal("expected a < b since first component a < b")
	}
}
