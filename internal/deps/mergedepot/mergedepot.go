// Package mergedepot allocates and memoizes virtual merge nodes.
//
// A merge node stands for "the value assembled from these bytes, written by
// these instructions". It is created when a move-like instruction loads a
// register from memory whose bytes have more than one distinct last writer.
// The node depends on every (address, writer) pair it merges, and the loaded
// register's last writer becomes the node.
//
// Design (deduplicating depot):
//   - Keyed by the exact (address, writer) set, normalized by sorting
//   - FNV-1a hash buckets with exact comparison on hit
//   - Ids count down from instr.MergeTop; exhausting the range into the
//     syscall band is an invariant violation
//
// Usage:
//
//	d := mergedepot.New(rec)
//	id := d.Merge([]instr.MemDep{{Addr: 0x1000, Writer: 0xA}, {Addr: 0x1001, Writer: 0xB}})
//	same := d.Merge(...) // same set, same id
package mergedepot

import (
	"cmp"
	"encoding/binary"
	"hash/fnv"
	"slices"
	"sync"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// LabelImage is the image name reported for merge nodes.
const LabelImage = "virtual-instructions"

// Sink receives the dependencies of a newly allocated merge node.
// recorder.Recorder implements it.
type Sink interface {
	AddMemoryDeps(reader instr.ID, deps []instr.MemDep) int
}

// node is one allocated merge node.
type node struct {
	id    instr.ID
	seq   int64
	pairs []instr.MemDep
}

// Depot is the merge node store for one analysis run.
type Depot struct {
	mu      sync.Mutex
	sink    Sink
	floor   instr.ID
	next    instr.ID
	buckets map[uint64][]*node
	byID    map[instr.ID]*node
	reused  uint64
}

// Stats summarizes depot activity.
type Stats struct {
	Nodes  int    // Unique merge nodes allocated.
	Reused uint64 // Merge requests answered by an existing node.
}

// New creates an empty depot that reports node dependencies to sink.
func New(sink Sink) *Depot {
	return &Depot{
		sink:    sink,
		floor:   instr.MergeFloor,
		next:    instr.MergeTop,
		buckets: make(map[uint64][]*node),
		byID:    make(map[instr.ID]*node),
	}
}

// Merge returns the merge node for the given set of (address, writer) pairs,
// allocating it on first use.
//
// The pair order does not matter. On allocation the node's own memory
// dependencies are set to the pairs, through the sink. Reused nodes are not
// re-registered; their dependencies are already recorded.
//
// Callers only merge when the pairs carry at least two distinct writers; a
// single writer is copied directly and no node is needed.
//
// Panics with *instr.InvariantError if the merge id range is exhausted.
//
// Thread Safety: Safe for concurrent calls. Allocate-or-reuse is atomic, so
// two threads merging the same set receive the same id.
func (d *Depot) Merge(pairs []instr.MemDep) instr.ID {
	key := slices.Clone(pairs)
	slices.SortFunc(key, func(a, b instr.MemDep) int {
		return cmp.Or(cmp.Compare(a.Addr, b.Addr), cmp.Compare(a.Writer, b.Writer))
	})
	key = slices.Compact(key)
	h := hashPairs(key)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, n := range d.buckets[h] {
		if slices.Equal(n.pairs, key) {
			d.reused++
			return n.id
		}
	}

	if d.next < d.floor {
		instr.Violation("merge", 0, d.next,
			"Split the trace; the merge id range is shared with syscall ids",
			"merge node id range exhausted after %d nodes", len(d.byID))
	}

	n := &node{id: d.next, seq: int64(len(d.byID)), pairs: key}
	d.next--
	d.buckets[h] = append(d.buckets[h], n)
	d.byID[n.id] = n

	if d.sink != nil {
		d.sink.AddMemoryDeps(n.id, key)
	}
	return n.id
}

// Pairs returns the (address, writer) set a merge node was created for.
func (d *Depot) Pairs(id instr.ID) ([]instr.MemDep, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(n.pairs), true
}

// Label returns the report label of a merge node: the "virtual-instructions"
// image at an offset equal to the node's allocation order.
func (d *Depot) Label(id instr.ID) (instr.Label, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.byID[id]
	if !ok {
		return instr.Label{}, false
	}
	return instr.Label{Image: LabelImage, Offset: n.seq}, true
}

// Stats returns a snapshot of depot statistics.
func (d *Depot) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Nodes: len(d.byID), Reused: d.reused}
}

// hashPairs computes the FNV-1a hash of a normalized pair set.
func hashPairs(pairs []instr.MemDep) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	for _, p := range pairs {
		binary.LittleEndian.PutUint64(buf[:8], p.Addr)
		binary.LittleEndian.PutUint64(buf[8:], uint64(p.Writer))
		_, _ = h.Write(buf[:]) // Write never returns error for hash.Hash.
	}
	return h.Sum64()
}
