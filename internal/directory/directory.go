// Package directory discovers a table's generations on disk, opens each
// generation's component set into a GenerationHandle, and maintains the
// atomically-swapped TableView a reader sees: the ordered, immutable list
// of live generations at a point in time.
package directory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/casstable/casstable/internal/bigindex"
	"github.com/casstable/casstable/internal/bloomfilter"
	"github.com/casstable/casstable/internal/bti"
	"github.com/casstable/casstable/internal/cache"
	"github.com/casstable/casstable/internal/compression"
	"github.com/casstable/casstable/internal/logging"
	"github.com/casstable/casstable/internal/schema"
	"github.com/casstable/casstable/internal/sstable"
	"github.com/casstable/casstable/internal/vfs"
)

// GenerationHandle is one open generation: its descriptor, parsed
// Statistics, Bloom filter, and the component bytes/handles a rowreader.Reader
// needs to serve lookups against it.
type GenerationHandle struct {
	Descriptor sstable.Descriptor
	Stats      *sstable.Statistics
	Bloom      *bloomfilter.Filter
	Data       *compression.Reader
	dataFile   vfs.RandomAccessFile

	// BIG-only.
	IndexBytes []byte
	Summary    *bigindex.Summary

	// BTI-only.
	PartitionsTrie *bti.Trie

	// refs counts outstanding holders of this handle: the TableView
	// snapshot it currently belongs to (1, released by retire) plus one
	// per in-flight reader that has called Acquire. dataFile is only
	// actually closed once refs reaches zero, so a reader part way
	// through a ReadAt when Refresh drops the generation from the live
	// set keeps a valid file/mmap until it calls Release.
	refs atomic.Int32
}

// Acquire marks the handle as in use by one more reader. Every Acquire
// must be matched by a Release.
func (g *GenerationHandle) Acquire() { g.refs.Add(1) }

// Release drops one reference. The underlying file is closed once the
// last reference (the owning snapshot's, or the last reader's) is
// released.
func (g *GenerationHandle) Release() {
	if g.refs.Add(-1) == 0 {
		g.closeNow()
	}
}

// retire drops the reference the owning TableView snapshot held,
// without forcing a close if a reader is still in flight.
func (g *GenerationHandle) retire() {
	g.Release()
}

func (g *GenerationHandle) closeNow() {
	if g.dataFile != nil {
		_ = g.dataFile.Close()
	}
}

// TableView is an immutable, point-in-time snapshot of a table's live
// generations, ordered by generation number ascending. Readers hold a
// TableView for the duration of a single read operation so a concurrent
// directory mutation (a new generation appearing, an old one being
// removed) never changes the set of generations one logical read sees.
type TableView struct {
	Generations []*GenerationHandle
}

// Manager discovers and tracks a table's generations, publishing
// successive TableView snapshots as directory contents change.
type Manager struct {
	fs             vfs.FS
	directory      string
	version        string
	table          *schema.Table
	schemaOverride bool
	logger         logging.Logger
	cache          *cache.ShardedLRUCache

	current atomic.Pointer[TableView]
}

// NewManager scans directory once, opens every complete generation it
// finds, skips orphaned .tmp files and incomplete generations (those
// missing a TOC.txt or any file TOC.txt names) without deleting them from
// disk, and publishes the initial
// TableView. schemaOverride, when true, downgrades a schema digest
// mismatch from a skipped generation to a logged warning, for callers
// that know their supplied schema is a deliberate evolution of the one a
// generation was written against.
func NewManager(fs vfs.FS, directory, version string, table *schema.Table, schemaOverride bool, blockCache *cache.ShardedLRUCache, logger logging.Logger) (*Manager, error) {
	logger = logging.OrDefault(logger)
	m := &Manager{fs: fs, directory: directory, version: version, table: table, schemaOverride: schemaOverride, logger: logger, cache: blockCache}
	view, err := m.scan(nil)
	if err != nil {
		return nil, err
	}
	m.current.Store(view)
	return m, nil
}

// View returns the current TableView. Safe for concurrent use; the
// returned snapshot never mutates underneath the caller.
func (m *Manager) View() *TableView {
	return m.current.Load()
}

// Refresh re-scans the directory and publishes a new TableView if the
// generation set has changed. A generation already open in the previous
// view is carried forward rather than reopened; a generation the new
// scan no longer finds has the previous view's reference to it retired,
// which only actually closes its files once every in-flight reader
// holding it (via GenerationHandle.Acquire) has released it too. Call
// after a writer finalizes a new generation or after compaction removes
// one.
func (m *Manager) Refresh() error {
	old := m.current.Load()
	view, err := m.scan(old)
	if err != nil {
		return err
	}
	m.current.Store(view)
	if old != nil {
		for _, g := range old.Generations {
			g.retire()
		}
	}
	return nil
}

// discovered is one {version, generation, format} triple found on disk,
// before its TOC.txt has been validated.
type discovered struct {
	descriptor sstable.Descriptor
	components map[sstable.Component]bool
}

// scan discovers the table's generations on disk. prev, if non-nil, is
// the currently published view: a generation found in both is carried
// forward as the same *GenerationHandle (with an extra reference taken
// for the new view) rather than reopened, so an unchanged generation's
// files are opened exactly once no matter how many times Refresh is
// called.
func (m *Manager) scan(prev *TableView) (*TableView, error) {
	var prevByGen map[int64]*GenerationHandle
	if prev != nil {
		prevByGen = make(map[int64]*GenerationHandle, len(prev.Generations))
		for _, g := range prev.Generations {
			prevByGen[g.Descriptor.Generation] = g
		}
	}

	names, err := m.fs.ListDir(m.directory)
	if err != nil {
		return nil, fmt.Errorf("directory: list %s: %w", m.directory, err)
	}

	byGen := make(map[int64]*discovered)
	for _, name := range names {
		if strings.HasSuffix(name, ".tmp") {
			m.logger.Debugf(logging.NSDirectory+"skipping orphaned temp file %s", name)
			continue
		}
		desc, comp, err := sstable.ParseFileName(m.directory, name)
		if err != nil {
			continue // not a component file this engine recognizes
		}
		if desc.Version != m.version {
			continue
		}
		d, ok := byGen[desc.Generation]
		if !ok {
			d = &discovered{descriptor: desc, components: make(map[sstable.Component]bool)}
			byGen[desc.Generation] = d
		}
		d.components[comp] = true
	}

	var gens []int64
	for gen := range byGen {
		gens = append(gens, gen)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })

	view := &TableView{}
	for _, gen := range gens {
		d := byGen[gen]
		if !d.components[sstable.ComponentTOC] {
			m.logger.Warnf(logging.NSDirectory+"generation %d missing TOC.txt, skipping", gen)
			continue
		}
		if existing, ok := prevByGen[gen]; ok {
			existing.Acquire()
			view.Generations = append(view.Generations, existing)
			continue
		}
		handle, err := m.openGeneration(d.descriptor)
		if err != nil {
			m.logger.Errorf(logging.NSDirectory+"generation %d failed to open: %v", gen, err)
			continue
		}
		view.Generations = append(view.Generations, handle)
	}
	return view, nil
}

func (m *Manager) openGeneration(desc sstable.Descriptor) (*GenerationHandle, error) {
	tocFile, err := m.fs.Open(desc.Path(sstable.ComponentTOC))
	if err != nil {
		return nil, fmt.Errorf("open TOC.txt: %w", err)
	}
	tocRaw, err := readAllSeq(tocFile)
	_ = tocFile.Close()
	if err != nil {
		return nil, fmt.Errorf("read TOC.txt: %w", err)
	}
	tocNames, err := sstable.ParseTOC(tocRaw)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(tocNames))
	for _, n := range tocNames {
		present[n] = m.fs.Exists(desc.Directory + "/" + n)
	}
	if err := sstable.VerifyTOC(tocNames, present); err != nil {
		return nil, err
	}

	statsFile, err := m.fs.Open(desc.Path(sstable.ComponentStatistics))
	if err != nil {
		return nil, fmt.Errorf("open Statistics.db: %w", err)
	}
	statsRaw, err := readAllSeq(statsFile)
	_ = statsFile.Close()
	if err != nil {
		return nil, fmt.Errorf("read Statistics.db: %w", err)
	}
	stats, err := sstable.DecodeStatistics(statsRaw)
	if err != nil {
		return nil, fmt.Errorf("decode Statistics.db: %w", err)
	}
	if want := m.table.Digest(); len(stats.SchemaDigest) > 0 && !bytes.Equal(stats.SchemaDigest, want) {
		if !m.schemaOverride {
			return nil, fmt.Errorf("schema mismatch: generation %d was written against a different schema", desc.Generation)
		}
		m.logger.Warnf(logging.NSDirectory+"generation %d schema digest mismatch overridden by schema_override", desc.Generation)
	}

	var bloom *bloomfilter.Filter
	if m.fs.Exists(desc.Path(sstable.ComponentFilter)) {
		bloom, err = readBloomFilter(m.fs, desc.Path(sstable.ComponentFilter))
		if err != nil {
			return nil, fmt.Errorf("read Filter.db: %w", err)
		}
	}

	compressed := m.fs.Exists(desc.Path(sstable.ComponentCompressionInfo))
	var info *compression.Info
	if compressed {
		ciFile, err := m.fs.Open(desc.Path(sstable.ComponentCompressionInfo))
		if err != nil {
			return nil, fmt.Errorf("open CompressionInfo.db: %w", err)
		}
		ciRaw, err := readAllSeq(ciFile)
		_ = ciFile.Close()
		if err != nil {
			return nil, fmt.Errorf("read CompressionInfo.db: %w", err)
		}
		info, err = compression.DecodeInfo(ciRaw)
		if err != nil {
			return nil, fmt.Errorf("decode CompressionInfo.db: %w", err)
		}
	}

	dataFile, err := m.fs.OpenRandomAccess(desc.Path(sstable.ComponentData))
	if err != nil {
		return nil, fmt.Errorf("open Data.db: %w", err)
	}
	if info == nil {
		info = &compression.Info{DataLength: dataFile.Size()}
	}
	cacheKey := uint64(desc.Generation)
	dataReader := compression.NewReader(info, dataFile, cacheKey, m.cache)

	handle := &GenerationHandle{
		Descriptor: desc,
		Stats:      stats,
		Bloom:      bloom,
		Data:       dataReader,
		dataFile:   dataFile,
	}
	handle.refs.Store(1)

	switch desc.Format {
	case sstable.FormatBig:
		idxFile, err := m.fs.Open(desc.Path(sstable.ComponentIndex))
		if err != nil {
			return nil, fmt.Errorf("open Index.db: %w", err)
		}
		idxRaw, err := readAllSeq(idxFile)
		_ = idxFile.Close()
		if err != nil {
			return nil, fmt.Errorf("read Index.db: %w", err)
		}
		handle.IndexBytes = idxRaw

		sumFile, err := m.fs.Open(desc.Path(sstable.ComponentSummary))
		if err != nil {
			return nil, fmt.Errorf("open Summary.db: %w", err)
		}
		sumRaw, err := readAllSeq(sumFile)
		_ = sumFile.Close()
		if err != nil {
			return nil, fmt.Errorf("read Summary.db: %w", err)
		}
		summary, err := bigindex.DecodeSummary(sumRaw)
		if err != nil {
			return nil, fmt.Errorf("decode Summary.db: %w", err)
		}
		handle.Summary = summary
	case sstable.FormatBTI:
		partFile, err := m.fs.Open(desc.Path(sstable.ComponentPartitions))
		if err != nil {
			return nil, fmt.Errorf("open Partitions.db: %w", err)
		}
		partRaw, err := readAllSeq(partFile)
		_ = partFile.Close()
		if err != nil {
			return nil, fmt.Errorf("read Partitions.db: %w", err)
		}
		trie, err := bti.Open(partRaw)
		if err != nil {
			return nil, fmt.Errorf("open Partitions.db trie: %w", err)
		}
		handle.PartitionsTrie = trie
	default:
		return nil, fmt.Errorf("unknown format %q", desc.Format)
	}

	return handle, nil
}

func readAllSeq(f vfs.SequentialFile) ([]byte, error) {
	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
	}
}

func readBloomFilter(fs vfs.FS, path string) (*bloomfilter.Filter, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	raw, err := readAllSeq(f)
	if err != nil {
		return nil, err
	}
	return bloomfilter.Decode(raw)
}
