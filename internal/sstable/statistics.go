package sstable

import (
	"fmt"

	"github.com/casstable/casstable/internal/codec"
)

// Statistics is the parsed content of a generation's Statistics.db
// component: summary metadata a reader can consult without scanning the
// Data component, and the accessor a caller reaches through
// GenerationHandle (; this module's TableStatistics
// supplement).
type Statistics struct {
	MinTimestampMicros   int64
	MaxTimestampMicros   int64
	MinLocalDeletionTime int32
	MaxLocalDeletionTime int32
	MinTTL               int32
	MaxTTL               int32
	PartitionCount       int64
	RowCount             int64
	TombstoneCount       int64
	// TombstoneDropTime is the local deletion time below which every
	// tombstone in this generation is eligible for compaction-time
	// purge, the same bookkeeping Cassandra keeps to decide when a
	// generation's tombstones can stop being carried forward.
	TombstoneDropTime int32
	// SchemaDigest is an opaque fingerprint of the table schema this
	// generation was written against, letting a reader detect a schema
	// mismatch before trusting column decoding.
	SchemaDigest     []byte
	MaxPartitionSize int64
	// MinClustering and MaxClustering are the byte-comparable-encoded
	// clustering key of the first and last row this generation holds,
	// letting a reader skip a whole generation for a bounded scan
	// without opening its index.
	MinClustering []byte
	MaxClustering []byte
}

// Encode serializes Statistics into the Statistics.db wire format: a
// fixed sequence of VInt/fixed-width fields, no internal component
// count (this engine's Statistics.db is a single logical record, not
// Cassandra's historical multi-section metadata blob).
func (s *Statistics) Encode() []byte {
	var out []byte
	out = codec.AppendSignedVInt(out, s.MinTimestampMicros)
	out = codec.AppendSignedVInt(out, s.MaxTimestampMicros)
	out = codec.AppendSignedVInt(out, int64(s.MinLocalDeletionTime))
	out = codec.AppendSignedVInt(out, int64(s.MaxLocalDeletionTime))
	out = codec.AppendSignedVInt(out, int64(s.MinTTL))
	out = codec.AppendSignedVInt(out, int64(s.MaxTTL))
	out = codec.AppendSignedVInt(out, s.PartitionCount)
	out = codec.AppendSignedVInt(out, s.RowCount)
	out = codec.AppendSignedVInt(out, s.TombstoneCount)
	out = codec.AppendSignedVInt(out, int64(s.TombstoneDropTime))
	out = codec.AppendSignedVInt(out, s.MaxPartitionSize)
	out = codec.AppendUnsignedVInt(out, uint64(len(s.SchemaDigest)))
	out = append(out, s.SchemaDigest...)
	out = codec.AppendUnsignedVInt(out, uint64(len(s.MinClustering)))
	out = append(out, s.MinClustering...)
	out = codec.AppendUnsignedVInt(out, uint64(len(s.MaxClustering)))
	out = append(out, s.MaxClustering...)
	return out
}

// DecodeStatistics parses a Statistics.db payload produced by Encode.
func DecodeStatistics(raw []byte) (*Statistics, error) {
	c := codec.NewCursor(raw)
	s := &Statistics{}
	var err error
	if s.MinTimestampMicros, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics min timestamp: %w", err)
	}
	if s.MaxTimestampMicros, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics max timestamp: %w", err)
	}
	var v int64
	if v, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics min local deletion time: %w", err)
	}
	s.MinLocalDeletionTime = int32(v)
	if v, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics max local deletion time: %w", err)
	}
	s.MaxLocalDeletionTime = int32(v)
	if v, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics min ttl: %w", err)
	}
	s.MinTTL = int32(v)
	if v, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics max ttl: %w", err)
	}
	s.MaxTTL = int32(v)
	if s.PartitionCount, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics partition count: %w", err)
	}
	if s.RowCount, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics row count: %w", err)
	}
	if s.TombstoneCount, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics tombstone count: %w", err)
	}
	if v, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics tombstone drop time: %w", err)
	}
	s.TombstoneDropTime = int32(v)
	if s.MaxPartitionSize, err = c.ReadSignedVInt(); err != nil {
		return nil, fmt.Errorf("sstable: statistics max partition size: %w", err)
	}
	digestLen, err := c.ReadUnsignedVInt()
	if err != nil {
		return nil, fmt.Errorf("sstable: statistics digest length: %w", err)
	}
	digest, err := c.ReadBytes(int(digestLen))
	if err != nil {
		return nil, fmt.Errorf("sstable: statistics digest: %w", err)
	}
	s.SchemaDigest = append([]byte(nil), digest...)
	minLen, err := c.ReadUnsignedVInt()
	if err != nil {
		return nil, fmt.Errorf("sstable: statistics min clustering length: %w", err)
	}
	minClustering, err := c.ReadBytes(int(minLen))
	if err != nil {
		return nil, fmt.Errorf("sstable: statistics min clustering: %w", err)
	}
	s.MinClustering = append([]byte(nil), minClustering...)
	maxLen, err := c.ReadUnsignedVInt()
	if err != nil {
		return nil, fmt.Errorf("sstable: statistics max clustering length: %w", err)
	}
	maxClustering, err := c.ReadBytes(int(maxLen))
	if err != nil {
		return nil, fmt.Errorf("sstable: statistics max clustering: %w", err)
	}
	s.MaxClustering = append([]byte(nil), maxClustering...)
	return s, nil
}
