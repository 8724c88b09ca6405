package cql

import (
	"math"
	"math/big"
	"testing"
)

func TestScalarRoundTrip(t *testing.T) {
	cases := []struct {
		kind   Kind
		native any
	}{
		{KindBoolean, true},
		{KindBoolean, false},
		{KindTinyInt, int8(-12)},
		{KindSmallInt, int16(-1234)},
		{KindInt, int32(-123456)},
		{KindBigInt, int64(-123456789012)},
		{KindFloat, float32(3.5)},
		{KindDouble, float64(-2.25)},
		{KindAscii, "hello"},
		{KindText, "héllo wörld"},
		{KindBlob, []byte{0x01, 0x02, 0x03}},
		{KindUuid, [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}},
		{KindInet, []byte{127, 0, 0, 1}},
	}
	for _, c := range cases {
		ty := Simple(c.kind)
		raw, err := Encode(ty, c.native)
		if err != nil {
			t.Fatalf("%s: encode: %v", c.kind, err)
		}
		got, err := Decode(ty, raw)
		if err != nil {
			t.Fatalf("%s: decode: %v", c.kind, err)
		}
		switch want := c.native.(type) {
		case []byte:
			gb := got.([]byte)
			if string(gb) != string(want) {
				t.Fatalf("%s: got %v want %v", c.kind, gb, want)
			}
		default:
			if got != c.native {
				t.Fatalf("%s: got %v want %v", c.kind, got, c.native)
			}
		}
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []string{"0", "1", "-1", "127", "128", "-128", "-129", "123456789012345678901234567890", "-123456789012345678901234567890"}
	ty := Simple(KindVarInt)
	for _, s := range values {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			t.Fatalf("bad literal %q", s)
		}
		raw, err := Encode(ty, v)
		if err != nil {
			t.Fatalf("%s: encode: %v", s, err)
		}
		got, err := Decode(ty, raw)
		if err != nil {
			t.Fatalf("%s: decode: %v", s, err)
		}
		if got.(*big.Int).Cmp(v) != 0 {
			t.Fatalf("got %s want %s", got.(*big.Int).String(), s)
		}
	}
}

func TestDurationRoundTrip(t *testing.T) {
	ty := Simple(KindDuration)
	d := Duration{Months: -3, Days: 10, Nanoseconds: -123456789}
	raw, err := Encode(ty, d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(ty, raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.(Duration) != d {
		t.Fatalf("got %+v want %+v", got, d)
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	ty := Simple(KindDecimal)
	unscaled, _ := new(big.Int).SetString("31415926535", 10)
	d := Decimal{Scale: 10, Unscaled: unscaled}
	raw, err := Encode(ty, d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(ty, raw)
	if err != nil {
		t.Fatal(err)
	}
	gd := got.(Decimal)
	if gd.Scale != d.Scale || gd.Unscaled.Cmp(d.Unscaled) != 0 {
		t.Fatalf("got %+v want %+v", gd, d)
	}
}

func TestFloatWireWidth(t *testing.T) {
	ty := Simple(KindFloat)
	raw, err := Encode(ty, float32(math.Pi))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 4 {
		t.Fatalf("float must encode to 4 bytes, got %d", len(raw))
	}
}
