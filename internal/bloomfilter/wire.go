package bloomfilter

import (
	"fmt"

	"github.com/casstable/casstable/internal/codec"
)

// Encode serializes the filter into the Filter.db wire format: a 4-byte
// big-endian hash count, a 4-byte big-endian word count, then that many
// 8-byte big-endian words of the bitset.
func (f *Filter) Encode() []byte {
	out := codec.AppendUint32(nil, uint32(f.hashCount))
	out = codec.AppendUint32(out, uint32(len(f.bits)))
	for _, w := range f.bits {
		out = codec.AppendUint64(out, w)
	}
	return out
}

// Decode parses a Filter.db payload produced by Encode.
func Decode(raw []byte) (*Filter, error) {
	c := codec.NewCursor(raw)
	hashCount, err := c.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("bloomfilter: read hash count: %w", err)
	}
	wordCount, err := c.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("bloomfilter: read word count: %w", err)
	}
	words := make([]uint64, wordCount)
	for i := range words {
		w, err := c.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("bloomfilter: read word %d: %w", i, err)
		}
		words[i] = w
	}
	return &Filter{
		bits:      words,
		numBits:   uint64(wordCount) * 64,
		hashCount: int(hashCount),
	}, nil
}
