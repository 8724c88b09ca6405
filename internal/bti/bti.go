// Package bti implements the trie-indexed ("BTI") variant of the
// partition and row index: a byte-comparable trie over encoded keys,
// serialized post-order (children before parents) so every pointer is a
// backward offset, with the root written last.
//
// Four node kinds keep the common cases compact: PAYLOAD_ONLY leaves,
// SINGLE nodes for unbranching chains, SPARSE nodes for a handful of
// transitions searched linearly/by binary search, and DENSE nodes for a
// tight contiguous byte range indexed directly.
package bti

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/casstable/casstable/internal/codec"
)

// NodeKind identifies one of the four on-disk node shapes.
type NodeKind uint8

const (
	KindPayloadOnly NodeKind = iota
	KindSingle
	KindSparse
	KindDense
)

// denseThreshold is the transition count above which a node is encoded
// DENSE instead of SPARSE (SPARSE covers "≤ 8 transitions").
const denseThreshold = 8

// trieNode is the in-memory form built by Builder before serialization.
type trieNode struct {
	children map[byte]*trieNode
	payload  []byte
}

// Builder accumulates (key, payload) pairs and serializes them into a
// byte-comparable trie. Keys must be prefix-free, which byte-comparable
// composite encoding guarantees via its per-component terminator bytes.
type Builder struct {
	root *trieNode
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{root: &trieNode{}}
}

// Add inserts one key/payload pair. Keys may be added in any order;
// Build walks children in ascending byte order regardless of insertion
// order.
func (b *Builder) Add(key, payload []byte) {
	n := b.root
	for _, c := range key {
		if n.children == nil {
			n.children = make(map[byte]*trieNode)
		}
		child, ok := n.children[c]
		if !ok {
			child = &trieNode{}
			n.children[c] = child
		}
		n = child
	}
	n.payload = append([]byte(nil), payload...)
}

// Build serializes the trie post-order and appends an 8-byte trailer
// holding the root node's absolute file offset, per the "root is at the
// end of the file" convention.
func (b *Builder) Build() []byte {
	var buf []byte
	rootOffset := serializeNode(&buf, b.root)
	buf = codec.AppendUint64(buf, uint64(rootOffset))
	return buf
}

func serializeNode(buf *[]byte, n *trieNode) int64 {
	type transition struct {
		b      byte
		offset int64
	}
	var transitions []transition
	if len(n.children) > 0 {
		bs := make([]byte, 0, len(n.children))
		for b := range n.children {
			bs = append(bs, b)
		}
		sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
		for _, b := range bs {
			off := serializeNode(buf, n.children[b])
			transitions = append(transitions, transition{b, off})
		}
	}

	nodeStart := int64(len(*buf))
	switch {
	case len(transitions) == 0:
		*buf = append(*buf, byte(KindPayloadOnly))
		*buf = codec.AppendUnsignedVInt(*buf, uint64(len(n.payload)))
		*buf = append(*buf, n.payload...)
	case len(transitions) == 1:
		*buf = append(*buf, byte(KindSingle))
		*buf = append(*buf, transitions[0].b)
		*buf = codec.AppendUnsignedVInt(*buf, uint64(nodeStart-transitions[0].offset))
	case len(transitions) <= denseThreshold:
		*buf = append(*buf, byte(KindSparse))
		*buf = codec.AppendUnsignedVInt(*buf, uint64(len(transitions)))
		for _, t := range transitions {
			*buf = append(*buf, t.b)
		}
		for _, t := range transitions {
			*buf = codec.AppendUnsignedVInt(*buf, uint64(nodeStart-t.offset))
		}
	default:
		lo, hi := transitions[0].b, transitions[len(transitions)-1].b
		*buf = append(*buf, byte(KindDense))
		*buf = append(*buf, lo, hi)
		byOffset := make(map[byte]int64, len(transitions))
		for _, t := range transitions {
			byOffset[t.b] = t.offset
		}
		for c := int(lo); c <= int(hi); c++ {
			if off, ok := byOffset[byte(c)]; ok {
				*buf = codec.AppendUnsignedVInt(*buf, uint64(nodeStart-off)+1)
			} else {
				*buf = codec.AppendUnsignedVInt(*buf, 0)
			}
		}
	}
	return nodeStart
}

// Trie is a read-only view over a serialized trie's bytes.
type Trie struct {
	data       []byte
	rootOffset int64
}

// Open parses the trailer of a serialized trie and returns a Trie ready
// for Lookup/RangeScan.
func Open(data []byte) (*Trie, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("bti: trie data too short for root trailer")
	}
	rootOffset := int64(codec.Uint64(data[len(data)-8:]))
	if rootOffset < 0 || rootOffset >= int64(len(data))-8 {
		return nil, fmt.Errorf("bti: root offset %d out of range", rootOffset)
	}
	return &Trie{data: data, rootOffset: rootOffset}, nil
}

type node struct {
	kind   NodeKind
	start  int64
	single struct {
		b      byte
		offset int64
	}
	sparseBytes   []byte
	sparseOffsets []int64
	lo, hi        byte
	denseOffsets  []int64 // parallel to [lo,hi], -1 for absent
	payload       []byte
}

func (t *Trie) readNode(offset int64) (node, error) {
	if offset < 0 || offset >= int64(len(t.data)) {
		return node{}, fmt.Errorf("bti: node offset %d out of range", offset)
	}
	cur := codec.NewCursor(t.data[offset:])
	kindByte, err := cur.ReadByte()
	if err != nil {
		return node{}, err
	}
	n := node{kind: NodeKind(kindByte), start: offset}
	switch n.kind {
	case KindPayloadOnly:
		ln, err := cur.ReadUnsignedVInt()
		if err != nil {
			return node{}, err
		}
		b, err := cur.ReadBytes(int(ln))
		if err != nil {
			return node{}, err
		}
		n.payload = append([]byte(nil), b...)
	case KindSingle:
		b, err := cur.ReadByte()
		if err != nil {
			return node{}, err
		}
		dist, err := cur.ReadUnsignedVInt()
		if err != nil {
			return node{}, err
		}
		n.single.b = b
		n.single.offset = offset - int64(dist)
	case KindSparse:
		count, err := cur.ReadUnsignedVInt()
		if err != nil {
			return node{}, err
		}
		bs, err := cur.ReadBytes(int(count))
		if err != nil {
			return node{}, err
		}
		n.sparseBytes = append([]byte(nil), bs...)
		n.sparseOffsets = make([]int64, count)
		for i := range n.sparseOffsets {
			dist, err := cur.ReadUnsignedVInt()
			if err != nil {
				return node{}, err
			}
			n.sparseOffsets[i] = offset - int64(dist)
		}
	case KindDense:
		lo, err := cur.ReadByte()
		if err != nil {
			return node{}, err
		}
		hi, err := cur.ReadByte()
		if err != nil {
			return node{}, err
		}
		n.lo, n.hi = lo, hi
		n.denseOffsets = make([]int64, int(hi)-int(lo)+1)
		for i := range n.denseOffsets {
			dist, err := cur.ReadUnsignedVInt()
			if err != nil {
				return node{}, err
			}
			if dist == 0 {
				n.denseOffsets[i] = -1
			} else {
				n.denseOffsets[i] = offset - int64(dist-1)
			}
		}
	default:
		return node{}, fmt.Errorf("bti: unknown node kind %d", kindByte)
	}
	return n, nil
}

// transition returns the child offset for byte c, if any.
func (n node) transition(c byte) (int64, bool) {
	switch n.kind {
	case KindSingle:
		if n.single.b == c {
			return n.single.offset, true
		}
	case KindSparse:
		i := sort.Search(len(n.sparseBytes), func(i int) bool { return n.sparseBytes[i] >= c })
		if i < len(n.sparseBytes) && n.sparseBytes[i] == c {
			return n.sparseOffsets[i], true
		}
	case KindDense:
		if c >= n.lo && c <= n.hi {
			off := n.denseOffsets[int(c)-int(n.lo)]
			if off >= 0 {
				return off, true
			}
		}
	}
	return 0, false
}

// transitions returns every (byte, childOffset) pair in ascending byte
// order, used by RangeScan's traversal.
func (n node) transitions() []struct {
	b   byte
	off int64
} {
	var out []struct {
		b   byte
		off int64
	}
	switch n.kind {
	case KindSingle:
		out = append(out, struct {
			b   byte
			off int64
		}{n.single.b, n.single.offset})
	case KindSparse:
		for i, b := range n.sparseBytes {
			out = append(out, struct {
				b   byte
				off int64
			}{b, n.sparseOffsets[i]})
		}
	case KindDense:
		for c := int(n.lo); c <= int(n.hi); c++ {
			if off := n.denseOffsets[c-int(n.lo)]; off >= 0 {
				out = append(out, struct {
					b   byte
					off int64
				}{byte(c), off})
			}
		}
	}
	return out
}

// Lookup walks the trie consuming key byte by byte; an exact match at a
// PAYLOAD_ONLY node returns its payload.
func (t *Trie) Lookup(key []byte) ([]byte, bool, error) {
	offset := t.rootOffset
	for _, c := range key {
		n, err := t.readNode(offset)
		if err != nil {
			return nil, false, err
		}
		next, ok := n.transition(c)
		if !ok {
			return nil, false, nil
		}
		offset = next
	}
	n, err := t.readNode(offset)
	if err != nil {
		return nil, false, err
	}
	if n.kind != KindPayloadOnly {
		return nil, false, nil
	}
	return n.payload, true, nil
}

// RangeScan yields every (key, payload) pair whose key lies in
// [lower, upper] (nil bound = unbounded on that side), in ascending key
// order.
func (t *Trie) RangeScan(lower, upper []byte, visit func(key, payload []byte) bool) error {
	err := t.walk(t.rootOffset, nil, lower, upper, visit)
	if err == errStopWalk {
		return nil
	}
	return err
}

func (t *Trie) walk(offset int64, prefix []byte, lower, upper []byte, visit func(key, payload []byte) bool) error {
	n, err := t.readNode(offset)
	if err != nil {
		return err
	}
	if n.kind == KindPayloadOnly {
		if (lower == nil || bytes.Compare(prefix, lower) >= 0) && (upper == nil || bytes.Compare(prefix, upper) <= 0) {
			if !visit(append([]byte(nil), prefix...), n.payload) {
				return errStopWalk
			}
		}
		return nil
	}
	for _, tr := range n.transitions() {
		if err := t.walk(tr.off, append(prefix, tr.b), lower, upper, visit); err != nil {
			if err == errStopWalk {
				return err
			}
			return err
		}
	}
	return nil
}

var errStopWalk = fmt.Errorf("bti: walk stopped")
