package cql

import (
	"fmt"
	"math"
	"math/big"

	"github.com/casstable/casstable/internal/codec"
)

// Encode produces the raw wire bytes for a fully-materialized Go value,
// using the fixed per-type encoding for t's Kind. It does not include any
// outer length prefix; callers frame the result with a VInt length
// (cells and collection elements) or a 4-byte length (tuple/UDT fields)
// as appropriate for the surrounding context.
func Encode(t *Type, native any) ([]byte, error) {
	switch t.Unwrap().Kind {
	case KindBoolean:
		v, ok := native.(bool)
		if !ok {
			return nil, typeErr(t, native)
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindTinyInt:
		v, ok := native.(int8)
		if !ok {
			return nil, typeErr(t, native)
		}
		return []byte{byte(v)}, nil
	case KindSmallInt:
		v, ok := native.(int16)
		if !ok {
			return nil, typeErr(t, native)
		}
		return codec.AppendUint16(nil, uint16(v)), nil
	case KindInt, KindDate:
		v, ok := native.(int32)
		if !ok {
			return nil, typeErr(t, native)
		}
		return codec.AppendUint32(nil, uint32(v)), nil
	case KindBigInt, KindTimestamp, KindTime, KindCounter:
		v, ok := native.(int64)
		if !ok {
			return nil, typeErr(t, native)
		}
		return codec.AppendUint64(nil, uint64(v)), nil
	case KindVarInt:
		v, ok := native.(*big.Int)
		if !ok {
			return nil, typeErr(t, native)
		}
		return encodeVarint(v), nil
	case KindFloat:
		v, ok := native.(float32)
		if !ok {
			return nil, typeErr(t, native)
		}
		return codec.AppendUint32(nil, math.Float32bits(v)), nil
	case KindDouble:
		v, ok := native.(float64)
		if !ok {
			return nil, typeErr(t, native)
		}
		return codec.AppendUint64(nil, math.Float64bits(v)), nil
	case KindDecimal:
		v, ok := native.(Decimal)
		if !ok {
			return nil, typeErr(t, native)
		}
		out := codec.AppendUint32(nil, uint32(v.Scale))
		return append(out, encodeVarint(v.Unscaled)...), nil
	case KindAscii, KindText:
		v, ok := native.(string)
		if !ok {
			return nil, typeErr(t, native)
		}
		return []byte(v), nil
	case KindBlob:
		v, ok := native.([]byte)
		if !ok {
			return nil, typeErr(t, native)
		}
		return v, nil
	case KindUuid, KindTimeUuid:
		v, ok := native.([16]byte)
		if !ok {
			return nil, typeErr(t, native)
		}
		return v[:], nil
	case KindDuration:
		v, ok := native.(Duration)
		if !ok {
			return nil, typeErr(t, native)
		}
		var out []byte
		out = codec.AppendSignedVInt(out, int64(v.Months))
		out = codec.AppendSignedVInt(out, int64(v.Days))
		out = codec.AppendSignedVInt(out, v.Nanoseconds)
		return out, nil
	case KindInet:
		v, ok := native.([]byte)
		if !ok || (len(v) != 4 && len(v) != 16) {
			return nil, typeErr(t, native)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("cql: Encode unsupported for kind %s (use collection codec)", t.Kind)
	}
}

// Decimal is an arbitrary-precision fixed-point value: unscaled * 10^-scale.
type Decimal struct {
	Scale    int32
	Unscaled *big.Int
}

// Duration is a Cassandra "duration": months and days as signed counts,
// nanoseconds as a signed fine-grained remainder, stored as three
// independent signed VInts.
type Duration struct {
	Months      int32
	Days        int32
	Nanoseconds int64
}

func encodeVarint(v *big.Int) []byte {
	if v.Sign() == 0 {
		return []byte{0}
	}
	// two's complement minimal-length big-endian encoding.
	abs := new(big.Int).Abs(v)
	nbytes := (abs.BitLen() + 8) / 8
	if nbytes == 0 {
		nbytes = 1
	}
	if v.Sign() > 0 {
		b := abs.Bytes()
		out := make([]byte, nbytes)
		copy(out[nbytes-len(b):], b)
		// Ensure top bit is 0 for a positive value (sign byte already
		// accounted for by the +8 rounding above when BitLen is a
		// multiple of 8).
		if out[0]&0x80 != 0 {
			out = append([]byte{0}, out...)
		}
		return out
	}
	// Negative: two's complement of |v| at nbytes (or nbytes+1 if needed).
	mod := new(big.Int).Lsh(big.NewInt(1), uint(nbytes*8))
	tc := new(big.Int).Add(mod, v) // v is negative
	b := tc.Bytes()
	out := make([]byte, nbytes)
	copy(out[nbytes-len(b):], b)
	if out[0]&0x80 == 0 {
		ext := make([]byte, nbytes+1)
		ext[0] = 0xFF
		copy(ext[1:], out)
		out = ext
	}
	// Drop a leading 0xFF that only repeats the sign bit of the next byte
	// (e.g. -128 is 0x80, not 0xFF 0x80).
	for len(out) > 1 && out[0] == 0xFF && out[1]&0x80 != 0 {
		out = out[1:]
	}
	return out
}

func decodeVarint(raw []byte) *big.Int {
	if len(raw) == 0 {
		return big.NewInt(0)
	}
	if raw[0]&0x80 == 0 {
		return new(big.Int).SetBytes(raw)
	}
	// Negative: invert and add one over the two's complement width.
	mod := new(big.Int).Lsh(big.NewInt(1), uint(len(raw)*8))
	v := new(big.Int).SetBytes(raw)
	return new(big.Int).Sub(v, mod)
}

func typeErr(t *Type, native any) error {
	return fmt.Errorf("cql: value %T does not match type %s", native, t.Kind)
}

// Decode parses raw wire bytes for t back into a native Go value. The
// concrete Go type returned matches what Encode accepts for the same Kind.
func Decode(t *Type, raw []byte) (any, error) {
	switch t.Unwrap().Kind {
	case KindBoolean:
		if len(raw) != 1 {
			return nil, fmt.Errorf("cql: boolean must be 1 byte, got %d", len(raw))
		}
		return raw[0] != 0, nil
	case KindTinyInt:
		if len(raw) != 1 {
			return nil, fmt.Errorf("cql: tinyint must be 1 byte, got %d", len(raw))
		}
		return int8(raw[0]), nil
	case KindSmallInt:
		if len(raw) != 2 {
			return nil, fmt.Errorf("cql: smallint must be 2 bytes, got %d", len(raw))
		}
		return int16(codec.Uint16(raw)), nil
	case KindInt, KindDate:
		if len(raw) != 4 {
			return nil, fmt.Errorf("cql: %s must be 4 bytes, got %d", t.Kind, len(raw))
		}
		return int32(codec.Uint32(raw)), nil
	case KindBigInt, KindTimestamp, KindTime, KindCounter:
		if len(raw) != 8 {
			return nil, fmt.Errorf("cql: %s must be 8 bytes, got %d", t.Kind, len(raw))
		}
		return int64(codec.Uint64(raw)), nil
	case KindVarInt:
		return decodeVarint(raw), nil
	case KindFloat:
		if len(raw) != 4 {
			return nil, fmt.Errorf("cql: float must be 4 bytes, got %d", len(raw))
		}
		return math.Float32frombits(codec.Uint32(raw)), nil
	case KindDouble:
		if len(raw) != 8 {
			return nil, fmt.Errorf("cql: double must be 8 bytes, got %d", len(raw))
		}
		return math.Float64frombits(codec.Uint64(raw)), nil
	case KindDecimal:
		if len(raw) < 4 {
			return nil, fmt.Errorf("cql: decimal truncated")
		}
		scale := int32(codec.Uint32(raw[:4]))
		return Decimal{Scale: scale, Unscaled: decodeVarint(raw[4:])}, nil
	case KindAscii, KindText:
		return string(raw), nil
	case KindBlob:
		return raw, nil
	case KindUuid, KindTimeUuid:
		if len(raw) != 16 {
			return nil, fmt.Errorf("cql: %s must be 16 bytes, got %d", t.Kind, len(raw))
		}
		var u [16]byte
		copy(u[:], raw)
		return u, nil
	case KindDuration:
		c := codec.NewCursor(raw)
		months, err := c.ReadSignedVInt()
		if err != nil {
			return nil, err
		}
		days, err := c.ReadSignedVInt()
		if err != nil {
			return nil, err
		}
		nanos, err := c.ReadSignedVInt()
		if err != nil {
			return nil, err
		}
		return Duration{Months: int32(months), Days: int32(days), Nanoseconds: nanos}, nil
	case KindInet:
		if len(raw) != 4 && len(raw) != 16 {
			return nil, fmt.Errorf("cql: inet must be 4 or 16 bytes, got %d", len(raw))
		}
		return append([]byte(nil), raw...), nil
	default:
		return nil, fmt.Errorf("cql: Decode unsupported for kind %s (use collection codec)", t.Kind)
	}
}
