package compression

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/casstable/casstable/internal/cache"
	"github.com/casstable/casstable/internal/vfs"
	"github.com/casstable/casstable/internal/xcrc"
)

// Reader serves logical byte ranges of a compressed Data component,
// decompressing whole chunks on demand and caching the result so repeated
// reads of the same region (e.g. re-scanning a hot partition) don't pay
// the decompression cost twice. Concurrent reads of the same chunk from
// different goroutines collapse into a single decompression via
// singleflight.
type Reader struct {
	info *Info
	file vfs.RandomAccessFile
	key  uint64 // identifies this table's generation for cache keys

	cache *cache.ShardedLRUCache
	group singleflight.Group
}

// DataLength returns the logical (uncompressed) length of the Data
// stream this Reader serves, letting callers size a tail read without
// holding their own copy of Info.
func (r *Reader) DataLength() int64 { return r.info.DataLength }

// NewReader creates a Reader over file using info's chunk layout. key
// should uniquely identify the (generation, component) pair within the
// shared cache so chunks from different tables never collide.
func NewReader(info *Info, file vfs.RandomAccessFile, key uint64, blockCache *cache.ShardedLRUCache) *Reader {
	return &Reader{info: info, file: file, key: key, cache: blockCache}
}

// ReadAt fills p with the logical bytes of the Data stream starting at
// logical offset off, spanning as many chunks as necessary.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for len(p) > 0 {
		if off >= r.info.DataLength {
			return total, fmt.Errorf("compression: read past end of data stream")
		}
		chunkIdx := r.info.ChunkForLogicalOffset(off)
		chunk, err := r.chunk(chunkIdx)
		if err != nil {
			return total, err
		}
		start, end := r.info.ChunkLogicalRange(chunkIdx)
		withinChunk := int(off - start)
		n := copy(p, chunk[withinChunk:end-start])
		p = p[n:]
		off += int64(n)
		total += n
	}
	return total, nil
}

// chunk returns the decompressed bytes of chunk i, populating the cache
// on a miss.
func (r *Reader) chunk(i int) ([]byte, error) {
	ck := cache.CacheKey{FileNumber: r.key, BlockOffset: uint64(i)}
	if r.cache != nil {
		if h := r.cache.Lookup(ck); h != nil {
			defer r.cache.Release(h)
			return h.Value(), nil
		}
	}

	groupKey := fmt.Sprintf("%d:%d", r.key, i)
	v, err, _ := r.group.Do(groupKey, func() (any, error) {
		data, err := r.decodeChunk(i)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Insert(ck, data, uint64(len(data)))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *Reader) decodeChunk(i int) ([]byte, error) {
	if i < 0 || i >= r.info.ChunkCount() {
		return nil, fmt.Errorf("compression: chunk index %d out of range", i)
	}
	start, end := r.info.ChunkLogicalRange(i)
	logicalLen := int(end - start)

	physStart := int64(r.info.Offsets[i])
	var physEnd int64
	if i+1 < len(r.info.Offsets) {
		physEnd = int64(r.info.Offsets[i+1])
	} else {
		physEnd = r.file.Size()
	}
	physLen := int(physEnd - physStart)
	if physLen < 4 {
		return nil, fmt.Errorf("compression: chunk %d too short for CRC trailer", i)
	}

	buf := make([]byte, physLen)
	if _, err := r.file.ReadAt(buf, physStart); err != nil {
		return nil, fmt.Errorf("compression: read chunk %d: %w", i, err)
	}
	payload, wantCRC := buf[:physLen-4], buf[physLen-4:]
	gotCRC := xcrc.Checksum(payload)
	if fourByteBE(wantCRC) != gotCRC {
		return nil, fmt.Errorf("compression: chunk %d failed CRC check", i)
	}

	if len(payload) == logicalLen {
		// Either genuinely uncompressed (algorithm None), or the writer
		// stored this chunk literally because compressing it wasn't
		// worthwhile (MinCompressRatio) or it was incompressible (LZ4's
		// zero-length-output case). Only None is trusted on the length
		// match alone; every other algorithm still tries the real
		// decompressor first and falls back to the literal if it fails.
		if r.info.Params.Algorithm == None {
			return payload, nil
		}
	}

	decompressed, err := Decompress(r.info.Params.Algorithm, payload, logicalLen)
	if err != nil {
		if len(payload) == logicalLen {
			return payload, nil
		}
		return nil, fmt.Errorf("compression: decompress chunk %d: %w", i, err)
	}
	return decompressed, nil
}

func fourByteBE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
