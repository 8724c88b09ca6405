// Package xcrc implements the CRC32 checksum used by the Cassandra "nb"
// on-disk format: one CRC32 per compression chunk and one
// CRC32 over the whole Data stream for Digest.crc32.
//
// Unlike RocksDB's masked CRC32C (Castagnoli), Cassandra uses the plain
// IEEE CRC32 polynomial with no masking.
package xcrc

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var ieeeTable = crc32.MakeTable(crc32.IEEE)

// Checksum computes the IEEE CRC32 of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, ieeeTable)
}

// Update extends an existing CRC32 with more data (useful for streaming
// the Digest computation over the Data stream without buffering it whole).
func Update(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, ieeeTable, data)
}

// ChunkChecksum computes the checksum stored alongside a compressed chunk
// on disk: "[compressed payload][4-byte CRC of compressed payload]".
func ChunkChecksum(compressed []byte) uint32 {
	return Checksum(compressed)
}

// AppendChunkChecksum appends the 4-byte big-endian CRC32 trailer for a
// compressed chunk.
func AppendChunkChecksum(dst []byte, compressed []byte) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], ChunkChecksum(compressed))
	return append(dst, buf[:]...)
}

// VerifyChunkChecksum reports whether want (the chunk's 4-byte CRC
// trailer) matches the CRC32 of the compressed payload.
func VerifyChunkChecksum(payload []byte, want uint32) bool {
	return ChunkChecksum(payload) == want
}

// DigestHex formats a Data-stream CRC32 as the lowercase hex ASCII content
// of a Digest.crc32 sidecar file.
func DigestHex(crc uint32) string {
	return fmt.Sprintf("%08x", crc)
}

// ParseDigestHex parses the hex ASCII content of a Digest.crc32 file.
func ParseDigestHex(s string) (uint32, error) {
	var v uint32
	_, err := fmt.Sscanf(s, "%x", &v)
	if err != nil {
		return 0, err
	}
	return v, nil
}
