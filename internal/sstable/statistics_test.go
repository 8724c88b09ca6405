package sstable

import (
	"bytes"
	"testing"
)

func sampleStatistics() *Statistics {
	return &Statistics{
		MinTimestampMicros:   1000,
		MaxTimestampMicros:   9999999,
		MinLocalDeletionTime: -1,
		MaxLocalDeletionTime: 123456,
		PartitionCount:       42,
		RowCount:             1024,
		TombstoneCount:       7,
		SchemaDigest:         []byte{1, 2, 3, 4},
		MaxPartitionSize:     65536,
	}
}

func TestStatisticsRoundTrip(t *testing.T) {
	s := sampleStatistics()
	wire := s.Encode()
	got, err := DecodeStatistics(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PartitionCount != s.PartitionCount || got.RowCount != s.RowCount {
		t.Fatalf("got %+v want %+v", got, s)
	}
	if !bytes.Equal(got.SchemaDigest, s.SchemaDigest) {
		t.Fatalf("digest mismatch: got %v want %v", got.SchemaDigest, s.SchemaDigest)
	}
}

func TestStatisticsNegativeFields(t *testing.T) {
	s := &Statistics{
		MinTimestampMicros:   -500,
		MaxLocalDeletionTime: -1,
		SchemaDigest:         nil,
	}
	wire := s.Encode()
	got, err := DecodeStatistics(wire)
	if err != nil {
		t.Fatal(err)
	}
	if got.MinTimestampMicros != -500 || got.MaxLocalDeletionTime != -1 {
		t.Fatalf("got %+v", got)
	}
	if len(got.SchemaDigest) != 0 {
		t.Fatalf("expected empty digest, got %v", got.SchemaDigest)
	}
}
