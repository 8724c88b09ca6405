package casstable

import (
	"github.com/casstable/casstable/internal/cache"
	"github.com/casstable/casstable/internal/compression"
	"github.com/casstable/casstable/internal/logging"
	"github.com/casstable/casstable/internal/vfs"
)

// Options carries every collaborator and tunable §6 names as consumed
// from the outside: the filesystem and clock providers, the compression
// and index-sampling defaults a new writer uses, and the shared block
// cache a table view's generations read through. A schema provider is
// supplied separately to OpenTable/OpenWriter as the table definition
// itself, since every call site already has a concrete table in hand.
type Options struct {
	// Version is the SSTable format version directory entries must carry,
	// e.g. "nb" for Cassandra 5.0. Defaults to "nb".
	Version string

	// FS abstracts the filesystem a table's directory lives on. Defaults
	// to vfs.Default(), which prefers mmap and falls back to buffered I/O.
	FS vfs.FS

	// Clock yields the wall time TTL expiration is evaluated against.
	// Defaults to SystemClock.
	Clock Clock

	// Compression configures a new generation's Data.db framing. Only
	// consulted by OpenWriter; readers take compression parameters from
	// the generation's own CompressionInfo.db. Defaults to LZ4 at a 64KiB
	// chunk length, matching Cassandra's own default compressor.
	Compression compression.Params

	// SampleInterval is the BIG format's Summary.db sampling interval.
	// Zero defaults to 128, matching Cassandra's default
	// index_interval.
	SampleInterval int

	// FilterFPP is the Bloom filter's target false-positive probability.
	// Zero defaults to 0.01.
	FilterFPP float64

	// SchemaOverride downgrades a Statistics.db schema digest mismatch
	// from a rejected generation to a logged warning, for callers that
	// know their supplied schema is a deliberate evolution of the one a
	// generation was written against.
	SchemaOverride bool

	// BlockCache is the shared decompressed-chunk cache every generation
	// opened under this Options reads through. Nil disables caching.
	BlockCache *cache.ShardedLRUCache

	// Logger receives structured diagnostics. Defaults to a DefaultLogger
	// at warn level writing to stderr.
	Logger logging.Logger
}

func (o *Options) setDefaults() {
	if o.Version == "" {
		o.Version = "nb"
	}
	if o.FS == nil {
		o.FS = vfs.Default()
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Compression.Algorithm == compression.None && o.Compression.ChunkLength == 0 {
		o.Compression = compression.Params{Algorithm: compression.LZ4, ChunkLength: 64 * 1024, MinCompressRatio: 1.0}
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = 128
	}
	if o.FilterFPP <= 0 {
		o.FilterFPP = 0.01
	}
	o.Logger = logging.OrDefault(o.Logger)
}
