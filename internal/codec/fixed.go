package codec

import "encoding/binary"

// Fixed-width big-endian primitives. All multi-byte integers in the
// Cassandra "nb" format outside of VInt fields are big-endian two's
// complement.

// PutUint16 writes a big-endian uint16 into dst[0:2].
func PutUint16(dst []byte, v uint16) { binary.BigEndian.PutUint16(dst, v) }

// Uint16 reads a big-endian uint16 from src[0:2].
func Uint16(src []byte) uint16 { return binary.BigEndian.Uint16(src) }

// PutUint32 writes a big-endian uint32 into dst[0:4].
func PutUint32(dst []byte, v uint32) { binary.BigEndian.PutUint32(dst, v) }

// Uint32 reads a big-endian uint32 from src[0:4].
func Uint32(src []byte) uint32 { return binary.BigEndian.Uint32(src) }

// PutUint64 writes a big-endian uint64 into dst[0:8].
func PutUint64(dst []byte, v uint64) { binary.BigEndian.PutUint64(dst, v) }

// Uint64 reads a big-endian uint64 from src[0:8].
func Uint64(src []byte) uint64 { return binary.BigEndian.Uint64(src) }

// AppendUint16 appends a big-endian uint16 to dst.
func AppendUint16(dst []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(dst, v) }

// AppendUint32 appends a big-endian uint32 to dst.
func AppendUint32(dst []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(dst, v) }

// AppendUint64 appends a big-endian uint64 to dst.
func AppendUint64(dst []byte, v uint64) []byte { return binary.BigEndian.AppendUint64(dst, v) }

// AppendShortBytes appends a "short" (2-byte big-endian length prefix)
// byte string, the encoding Cassandra uses for component names and small
// identifiers outside of the CQL value wire format.
func AppendShortBytes(dst []byte, b []byte) []byte {
	dst = AppendUint16(dst, uint16(len(b)))
	return append(dst, b...)
}

// DecodeShortBytes decodes a "short" length-prefixed byte string from the
// front of src.
func DecodeShortBytes(src []byte) (value []byte, consumed int, err error) {
	if len(src) < 2 {
		return nil, 0, ErrTruncated
	}
	n := int(Uint16(src))
	if len(src) < 2+n {
		return nil, 0, ErrTruncated
	}
	return src[2 : 2+n], 2 + n, nil
}
