// Package bloomfilter implements Cassandra's on-disk Bloom filter
// (Filter component): a Murmur3-128 double-hashed bitset
// that lets a reader skip a generation entirely when a partition key is
// provably absent.
package bloomfilter

import "math"

// Filter is a fixed-size Bloom filter bitset plus the hash count needed to
// probe it, matching Cassandra's on-disk representation.
type Filter struct {
	bits      []uint64 // little-endian-within-word bitset, word i covers bits [64i, 64i+64)
	numBits   uint64
	hashCount int
}

// Builder accumulates keys and produces a Filter sized for a target false
// positive probability.
type Builder struct {
	fpp  float64
	keys [][]byte
}

// NewBuilder creates a Builder targeting the given false positive
// probability (e.g. 0.01 for Cassandra's default bloom_filter_fp_chance).
func NewBuilder(fpp float64) *Builder {
	if fpp <= 0 || fpp >= 1 {
		fpp = 0.01
	}
	return &Builder{fpp: fpp}
}

// Add records a key to be present in the eventual filter.
func (b *Builder) Add(key []byte) {
	b.keys = append(b.keys, append([]byte(nil), key...))
}

// NumKeys returns the number of keys added so far.
func (b *Builder) NumKeys() int { return len(b.keys) }

// Build constructs the Filter sized for b's target FPP and the number of
// keys added.
func (b *Builder) Build() *Filter {
	n := len(b.keys)
	numBits, hashCount := sizeFor(n, b.fpp)
	f := &Filter{
		bits:      make([]uint64, (numBits+63)/64),
		numBits:   numBits,
		hashCount: hashCount,
	}
	for _, k := range b.keys {
		f.add(k)
	}
	return f
}

// sizeFor computes the bitset size and hash count per the standard Bloom
// filter formulas Cassandra's BloomCalculations table approximates:
//
//	m = -(n * ln(p)) / (ln(2)^2)
//	k = (m / n) * ln(2)
func sizeFor(n int, fpp float64) (numBits uint64, hashCount int) {
	if n == 0 {
		return 64, 1
	}
	m := -(float64(n) * math.Log(fpp)) / (math.Ln2 * math.Ln2)
	numBits = uint64(math.Ceil(m))
	if numBits < 64 {
		numBits = 64
	}
	// Filter.db records only the word count, so the bitset is sized in
	// whole 64-bit words for a decoded filter to probe the same bits.
	numBits = (numBits + 63) / 64 * 64
	k := int(math.Round((float64(numBits) / float64(n)) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return numBits, k
}

// add sets the hashCount bits derived from key via Kirsch-Mitzenmacher
// double hashing: bit_i = (h1 + i*h2) mod numBits, the same scheme
// Cassandra's BloomFilter.java uses over its Murmur3 hash pair.
func (f *Filter) add(key []byte) {
	h1, h2 := hash3X64128(key, 0)
	for i := 0; i < f.hashCount; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		f.bits[bit/64] |= 1 << (bit % 64)
	}
}

// MayContain reports whether key might be present. false is a definite
// answer; true may be a false positive.
func (f *Filter) MayContain(key []byte) bool {
	if f == nil || f.numBits == 0 {
		return true
	}
	h1, h2 := hash3X64128(key, 0)
	for i := 0; i < f.hashCount; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// HashCount returns the number of hash probes per key.
func (f *Filter) HashCount() int { return f.hashCount }

// NumBits returns the bitset size in bits.
func (f *Filter) NumBits() uint64 { return f.numBits }
