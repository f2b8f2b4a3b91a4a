package syscalls

import (
	"cmp"
	"slices"
	"sync"

	"github.com/kolkov/datadeps/internal/deps/instr"
	"github.com/kolkov/datadeps/internal/deps/shadowmem"
)

// Record describes one tracked syscall occurrence.
type Record struct {
	Index     uint64         // Occurrence index that matched the allow-list
	Thread    instr.ThreadID // Thread that made the call
	SyscallID uint64         // Sequence number of the call within its thread
	IP        instr.ID       // Address of the syscall instruction
	ID        instr.ID       // Synthetic writer attributed to the buffer
	Number    uint64
	Addr      uint64
	Bytes     uint32
}

type key struct{ nr, index uint64 }

// Injector matches syscall occurrences against the allow-list and feeds
// matching buffers into shadow memory.
type Injector struct {
	mem *shadowmem.Memory

	mu        sync.Mutex
	entries   map[key]Entry
	counters  map[uint64]uint64
	perThread map[instr.ThreadID]uint64
	next      instr.ID
	records   []Record
}

// NewInjector validates entries and returns an injector writing into mem.
func NewInjector(entries []Entry, mem *shadowmem.Memory) (*Injector, error) {
	if err := Validate(entries); err != nil {
		return nil, err
	}
	in := &Injector{
		mem:       mem,
		entries:   make(map[key]Entry, len(entries)),
		counters:  make(map[uint64]uint64),
		perThread: make(map[instr.ThreadID]uint64),
		next:      instr.SyscallBase,
	}
	for _, e := range entries {
		in.entries[key{e.Number, e.Index}] = e
	}
	return in, nil
}

// OnSyscall accounts one syscall made by thread tid at ip.
//
// Every call advances the per-number and per-thread counters. If the
// occurrence is on the allow-list, a new syscall id becomes the writer of the
// configured bytes at args[BufArg] and the record is returned.
//
// Panics with *instr.InvariantError if syscall ids run into the merge range.
//
// Thread Safety: Safe for concurrent calls. The counter lock is released
// before shadow memory is written.
func (in *Injector) OnSyscall(tid instr.ThreadID, ip instr.ID, number uint64, args [maxArgs]uint64) (Record, bool) {
	in.mu.Lock()
	sysID := in.perThread[tid]
	in.perThread[tid]++

	index := in.counters[number]
	in.counters[number]++

	e, ok := in.entries[key{number, index}]
	if !ok {
		in.mu.Unlock()
		return Record{}, false
	}
	if in.next >= instr.MergeFloor {
		in.mu.Unlock()
		instr.Violation("syscall", tid, ip, "", "syscall id range exhausted")
	}
	rec := Record{
		Index:     e.Index,
		Thread:    tid,
		SyscallID: sysID,
		IP:        ip,
		ID:        in.next,
		Number:    number,
		Addr:      args[e.BufArg],
		Bytes:     e.Bytes,
	}
	in.next++
	in.records = append(in.records, rec)
	in.mu.Unlock()

	in.mem.RecordRange(rec.Addr, rec.Bytes, rec.ID)
	return rec, true
}

// Records returns the tracked occurrences sorted by index, thread and
// syscall id.
func (in *Injector) Records() []Record {
	in.mu.Lock()
	out := slices.Clone(in.records)
	in.mu.Unlock()

	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(
			cmp.Compare(a.Index, b.Index),
			cmp.Compare(a.Thread, b.Thread),
			cmp.Compare(a.SyscallID, b.SyscallID),
		)
	})
	return out
}

// Lookup returns the record of a synthetic syscall id.
func (in *Injector) Lookup(id instr.ID) (Record, bool) {
	if id.Kind() != instr.KindSyscall {
		return Record{}, false
	}
	i := uint64(id - instr.SyscallBase)

	in.mu.Lock()
	defer in.mu.Unlock()
	if i >= uint64(len(in.records)) {
		return Record{}, false
	}
	return in.records[i], true
}

// Count returns how often syscall number was observed.
func (in *Injector) Count(number uint64) uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.counters[number]
}
