package compression

import (
	"bytes"
	"sync"
	"testing"

	"github.com/casstable/casstable/internal/cache"
	"github.com/casstable/casstable/internal/vfs"
)

func writeLogicalStream(t *testing.T, params Params, logical []byte) (*Info, []byte) {
	t.Helper()
	var physical bytes.Buffer
	w := NewWriter(params, func(chunk []byte) error {
		_, err := physical.Write(chunk)
		return err
	})
	if _, err := w.Write(logical); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := w.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	return info, physical.Bytes()
}

func TestChunkedRoundTripAllAlgorithms(t *testing.T) {
	logical := bytes.Repeat([]byte("row data payload "), 1000) // several chunks worth
	for _, algo := range []Algorithm{None, LZ4, Snappy, Deflate, Zstd} {
		t.Run(algo.String(), func(t *testing.T) {
			params := Params{Algorithm: algo, ChunkLength: 4096}
			info, physical := writeLogicalStream(t, params, logical)
			if info.DataLength != int64(len(logical)) {
				t.Fatalf("data length = %d, want %d", info.DataLength, len(logical))
			}

			fsys := vfs.NewMemFS()
			wf, _ := fsys.Create("Data.db")
			wf.Write(physical)
			wf.Close()
			raf, err := fsys.OpenRandomAccess("Data.db")
			if err != nil {
				t.Fatal(err)
			}

			blockCache := cache.NewShardedLRUCache(1<<20, 4)
			r := NewReader(info, raf, 1, blockCache)

			got := make([]byte, len(logical))
			if _, err := r.ReadAt(got, 0); err != nil {
				t.Fatalf("ReadAt: %v", err)
			}
			if !bytes.Equal(got, logical) {
				t.Fatal("round trip mismatch")
			}

			// Partial read spanning a chunk boundary.
			mid := make([]byte, 100)
			off := int64(params.ChunkLength) - 50
			if _, err := r.ReadAt(mid, off); err != nil {
				t.Fatalf("partial ReadAt: %v", err)
			}
			if !bytes.Equal(mid, logical[off:off+100]) {
				t.Fatal("partial read mismatch")
			}
		})
	}
}

func TestCompressionInfoEncodeDecodeRoundTrip(t *testing.T) {
	info := &Info{
		Params:     Params{Algorithm: LZ4, ChunkLength: 65536},
		Offsets:    []ChunkOffset{0, 120, 300},
		DataLength: 150000,
	}
	wire := info.Encode()
	got, err := Decode(LZ4, wire)
	if err != nil {
		t.Fatal(err)
	}
	if got.DataLength != info.DataLength || got.Params.ChunkLength != info.Params.ChunkLength {
		t.Fatalf("got %+v want %+v", got, info)
	}
	if len(got.Offsets) != len(info.Offsets) {
		t.Fatalf("offset count mismatch: got %d want %d", len(got.Offsets), len(info.Offsets))
	}
	for i := range info.Offsets {
		if got.Offsets[i] != info.Offsets[i] {
			t.Fatalf("offset %d mismatch: got %d want %d", i, got.Offsets[i], info.Offsets[i])
		}
	}
}

func TestCorruptChunkCRCDetected(t *testing.T) {
	logical := bytes.Repeat([]byte("x"), 5000)
	params := Params{Algorithm: None, ChunkLength: 4096}
	info, physical := writeLogicalStream(t, params, logical)

	// Flip a byte inside the first chunk's payload.
	physical[10] ^= 0xFF

	fsys := vfs.NewMemFS()
	wf, _ := fsys.Create("Data.db")
	wf.Write(physical)
	wf.Close()
	raf, _ := fsys.OpenRandomAccess("Data.db")

	r := NewReader(info, raf, 2, nil)
	got := make([]byte, len(logical))
	if _, err := r.ReadAt(got, 0); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
}

func TestConcurrentChunkReadsCollapseViaSingleflight(t *testing.T) {
	logical := bytes.Repeat([]byte("concurrent-read-payload "), 2000)
	params := Params{Algorithm: Zstd, ChunkLength: 8192}
	info, physical := writeLogicalStream(t, params, logical)

	fsys := vfs.NewMemFS()
	wf, _ := fsys.Create("Data.db")
	wf.Write(physical)
	wf.Close()
	raf, _ := fsys.OpenRandomAccess("Data.db")

	blockCache := cache.NewShardedLRUCache(1<<20, 4)
	r := NewReader(info, raf, 3, blockCache)

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			buf := make([]byte, len(logical))
			if _, err := r.ReadAt(buf, 0); err != nil {
				t.Errorf("ReadAt: %v", err)
				return
			}
			results[idx] = buf
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if !bytes.Equal(got, logical) {
			t.Fatalf("goroutine %d got mismatched data", i)
		}
	}
}
