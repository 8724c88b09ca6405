package bigindex

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/casstable/casstable/internal/codec"
)

// Sample is one sparsely-recorded Index.db entry kept fully in memory: a
// partition key and the byte offset in Index.db where its full entry
// begins.
type Sample struct {
	Key         []byte
	IndexOffset int64
}

// Summary is the fully-parsed content of Summary.db: the sampling
// interval, the sampled entries, and the first/last keys of the
// generation (kept in full even when not sampled, so range queries can
// cheaply reject a generation entirely).
type Summary struct {
	SampleInterval int
	Samples        []Sample
	FirstKey       []byte
	LastKey        []byte
}

// Encode serializes s into the Summary.db wire format.
func (s *Summary) Encode() []byte {
	var out []byte
	out = codec.AppendUnsignedVInt(out, uint64(s.SampleInterval))
	out = codec.AppendUnsignedVInt(out, uint64(len(s.FirstKey)))
	out = append(out, s.FirstKey...)
	out = codec.AppendUnsignedVInt(out, uint64(len(s.LastKey)))
	out = append(out, s.LastKey...)
	out = codec.AppendUnsignedVInt(out, uint64(len(s.Samples)))
	for _, sm := range s.Samples {
		out = codec.AppendUnsignedVInt(out, uint64(len(sm.Key)))
		out = append(out, sm.Key...)
		out = codec.AppendSignedVInt(out, sm.IndexOffset)
	}
	return out
}

// DecodeSummary parses a Summary.db payload produced by Encode.
func DecodeSummary(raw []byte) (*Summary, error) {
	cur := codec.NewCursor(raw)
	interval, err := cur.ReadUnsignedVInt()
	if err != nil {
		return nil, fmt.Errorf("bigindex: summary sample interval: %w", err)
	}
	firstLen, err := cur.ReadUnsignedVInt()
	if err != nil {
		return nil, fmt.Errorf("bigindex: summary first key length: %w", err)
	}
	firstKey, err := cur.ReadBytes(int(firstLen))
	if err != nil {
		return nil, fmt.Errorf("bigindex: summary first key: %w", err)
	}
	lastLen, err := cur.ReadUnsignedVInt()
	if err != nil {
		return nil, fmt.Errorf("bigindex: summary last key length: %w", err)
	}
	lastKey, err := cur.ReadBytes(int(lastLen))
	if err != nil {
		return nil, fmt.Errorf("bigindex: summary last key: %w", err)
	}
	count, err := cur.ReadUnsignedVInt()
	if err != nil {
		return nil, fmt.Errorf("bigindex: summary sample count: %w", err)
	}
	samples := make([]Sample, count)
	for i := range samples {
		klen, err := cur.ReadUnsignedVInt()
		if err != nil {
			return nil, fmt.Errorf("bigindex: summary sample %d key length: %w", i, err)
		}
		key, err := cur.ReadBytes(int(klen))
		if err != nil {
			return nil, fmt.Errorf("bigindex: summary sample %d key: %w", i, err)
		}
		off, err := cur.ReadSignedVInt()
		if err != nil {
			return nil, fmt.Errorf("bigindex: summary sample %d offset: %w", i, err)
		}
		samples[i] = Sample{Key: append([]byte(nil), key...), IndexOffset: off}
	}
	return &Summary{
		SampleInterval: int(interval),
		Samples:        samples,
		FirstKey:       append([]byte(nil), firstKey...),
		LastKey:        append([]byte(nil), lastKey...),
	}, nil
}

// Locate returns the [start, end) byte range within Index.db a lookup
// for key should scan: end is -1 when the range extends to EOF (the
// final sample). ok is false when key falls outside [FirstKey, LastKey]
// and the generation can be skipped entirely.
func (s *Summary) Locate(key []byte) (start, end int64, ok bool) {
	if len(s.Samples) == 0 {
		return 0, 0, false
	}
	if bytes.Compare(key, s.FirstKey) < 0 || bytes.Compare(key, s.LastKey) > 0 {
		return 0, 0, false
	}
	i := sort.Search(len(s.Samples), func(i int) bool {
		return bytes.Compare(s.Samples[i].Key, key) > 0
	}) - 1
	if i < 0 {
		i = 0
	}
	start = s.Samples[i].IndexOffset
	end = -1
	if i+1 < len(s.Samples) {
		end = s.Samples[i+1].IndexOffset
	}
	return start, end, true
}
