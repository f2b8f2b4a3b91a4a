// Package recorder accumulates read-after-write dependency edges.
//
// Edges are stored per reader as two adjacency sets: register dependencies
// (register, writer) and memory dependencies (byte address, writer). Adding
// an edge that already exists is a no-op, so a loop that re-executes the same
// instruction many times contributes each distinct edge once.
//
// Register and memory sets are guarded by separate mutexes. In the engine's
// lock order the recorder comes last.
package recorder

import (
	"cmp"
	"slices"
	"sync"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// RegEdge is a register dependency edge: Reader read Reg, last written by Writer.
type RegEdge struct {
	Reader instr.ID
	Reg    instr.Reg
	Writer instr.ID
}

// MemEdge is a memory dependency edge: Reader read the byte at Addr, last
// written by Writer.
type MemEdge struct {
	Reader instr.ID
	Addr   uint64
	Writer instr.ID
}

// Snapshot is a sorted copy of all recorded edges.
type Snapshot struct {
	Registers []RegEdge
	Memory    []MemEdge
}

// Recorder is the dependency store for one analysis run.
type Recorder struct {
	regMu sync.Mutex
	regs  map[instr.ID]map[instr.RegDep]struct{}
	nRegs int

	memMu sync.Mutex
	mem   map[instr.ID]map[instr.MemDep]struct{}
	nMem  int
}

// New creates an empty recorder.
func New() *Recorder {
	return &Recorder{
		regs: make(map[instr.ID]map[instr.RegDep]struct{}),
		mem:  make(map[instr.ID]map[instr.MemDep]struct{}),
	}
}

// AddRegisterDep records that reader read reg last written by writer.
// It reports whether the edge is new.
func (r *Recorder) AddRegisterDep(reader instr.ID, reg instr.Reg, writer instr.ID) bool {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	set, ok := r.regs[reader]
	if !ok {
		set = make(map[instr.RegDep]struct{})
		r.regs[reader] = set
	}
	d := instr.RegDep{Reg: reg, Writer: writer}
	if _, dup := set[d]; dup {
		return false
	}
	set[d] = struct{}{}
	r.nRegs++
	return true
}

// AddMemoryDeps records one memory edge per pair in deps and returns how many
// were new.
func (r *Recorder) AddMemoryDeps(reader instr.ID, deps []instr.MemDep) int {
	if len(deps) == 0 {
		return 0
	}

	r.memMu.Lock()
	defer r.memMu.Unlock()

	set, ok := r.mem[reader]
	if !ok {
		set = make(map[instr.MemDep]struct{}, len(deps))
		r.mem[reader] = set
	}
	added := 0
	for _, d := range deps {
		if _, dup := set[d]; dup {
			continue
		}
		set[d] = struct{}{}
		added++
	}
	r.nMem += added
	return added
}

// RegisterDeps returns the register dependencies of reader, sorted by
// register then writer.
func (r *Recorder) RegisterDeps(reader instr.ID) []instr.RegDep {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	set := r.regs[reader]
	if len(set) == 0 {
		return nil
	}
	out := make([]instr.RegDep, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b instr.RegDep) int {
		return cmp.Or(cmp.Compare(a.Reg, b.Reg), cmp.Compare(a.Writer, b.Writer))
	})
	return out
}

// MemoryDeps returns the memory dependencies of reader, sorted by address
// then writer.
func (r *Recorder) MemoryDeps(reader instr.ID) []instr.MemDep {
	r.memMu.Lock()
	defer r.memMu.Unlock()

	set := r.mem[reader]
	if len(set) == 0 {
		return nil
	}
	out := make([]instr.MemDep, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	slices.SortFunc(out, compareMemDep)
	return out
}

// Counts returns the number of distinct register and memory edges.
func (r *Recorder) Counts() (regEdges, memEdges int) {
	r.regMu.Lock()
	regEdges = r.nRegs
	r.regMu.Unlock()

	r.memMu.Lock()
	memEdges = r.nMem
	r.memMu.Unlock()
	return regEdges, memEdges
}

// Snapshot returns every recorded edge, sorted by reader, then location, then
// writer.
//
// The snapshot is a copy; recording may continue while it is used.
func (r *Recorder) Snapshot() Snapshot {
	var s Snapshot

	r.regMu.Lock()
	s.Registers = make([]RegEdge, 0, r.nRegs)
	for reader, set := range r.regs {
		for d := range set {
			s.Registers = append(s.Registers, RegEdge{Reader: reader, Reg: d.Reg, Writer: d.Writer})
		}
	}
	r.regMu.Unlock()

	r.memMu.Lock()
	s.Memory = make([]MemEdge, 0, r.nMem)
	for reader, set := range r.mem {
		for d := range set {
			s.Memory = append(s.Memory, MemEdge{Reader: reader, Addr: d.Addr, Writer: d.Writer})
		}
	}
	r.memMu.Unlock()

	slices.SortFunc(s.Registers, func(a, b RegEdge) int {
		return cmp.Or(
			cmp.Compare(a.Reader, b.Reader),
			cmp.Compare(a.Reg, b.Reg),
			cmp.Compare(a.Writer, b.Writer),
		)
	})
	slices.SortFunc(s.Memory, func(a, b MemEdge) int {
		return cmp.Or(
			cmp.Compare(a.Reader, b.Reader),
			cmp.Compare(a.Addr, b.Addr),
			cmp.Compare(a.Writer, b.Writer),
		)
	})
	return s
}

// Reset drops all edges.
func (r *Recorder) Reset() {
	r.regMu.Lock()
	r.regs = make(map[instr.ID]map[instr.RegDep]struct{})
	r.nRegs = 0
	r.regMu.Unlock()

	r.memMu.Lock()
	r.mem = make(map[instr.ID]map[instr.MemDep]struct{})
	r.nMem = 0
	r.memMu.Unlock()
}

func compareMemDep(a, b instr.MemDep) int {
	return cmp.Or(cmp.Compare(a.Addr, b.Addr), cmp.Compare(a.Writer, b.Writer))
}
