package engine

import "sync/atomic"

// Stats summarizes one analysis run.
//
// These counters help judge a trace and the effect of options:
//   - Filtered and ZeroSkipped show how many reads the ignore rules removed
//   - Forwarded shows how many writes were elided by shortcuts
//   - MergeNodes and MergeReused show how often loads saw several writers
type Stats struct {
	Instructions    uint64 // Static instructions registered.
	Executions      uint64 // Dynamic instructions begun inside the window.
	RegisterReads   uint64 // Register reads looked up.
	MemoryReads     uint64 // Memory reads looked up.
	RegisterWrites  uint64 // Register writes recorded or forwarded.
	MemoryWrites    uint64 // Memory writes recorded or forwarded.
	Forwarded       uint64 // Writes resolved through shortcuts.
	ZeroSkipped     uint64 // Reads skipped by zeroing idioms.
	Filtered        uint64 // Accesses dropped by ignore rules.
	NopsSkipped     uint64 // Accesses dropped because the instruction is a NOP.
	Syscalls        uint64 // Syscalls observed.
	TrackedSyscalls uint64 // Syscalls matching the allow-list.

	RegisterEdges int // Distinct register dependency edges.
	MemoryEdges   int // Distinct memory dependency edges.
	MergeNodes    int // Merge nodes allocated.
	MergeReused   uint64
	Threads       int // Threads seen.
	ShadowBytes   int // Memory bytes with a recorded writer.
}

type counters struct {
	instructions    atomic.Uint64
	executions      atomic.Uint64
	registerReads   atomic.Uint64
	memoryReads     atomic.Uint64
	registerWrites  atomic.Uint64
	memoryWrites    atomic.Uint64
	forwarded       atomic.Uint64
	zeroSkipped     atomic.Uint64
	filtered        atomic.Uint64
	nopsSkipped     atomic.Uint64
	syscalls        atomic.Uint64
	trackedSyscalls atomic.Uint64
}

// Stats returns a snapshot of run statistics.
//
// Thread Safety: Safe for concurrent calls; counters are read individually,
// so a snapshot taken during event delivery may be slightly inconsistent.
func (e *Engine) Stats() Stats {
	regEdges, memEdges := e.rec.Counts()
	depot := e.depot.Stats()
	return Stats{
		Instructions:    e.stats.instructions.Load(),
		Executions:      e.stats.executions.Load(),
		RegisterReads:   e.stats.registerReads.Load(),
		MemoryReads:     e.stats.memoryReads.Load(),
		RegisterWrites:  e.stats.registerWrites.Load(),
		MemoryWrites:    e.stats.memoryWrites.Load(),
		Forwarded:       e.stats.forwarded.Load(),
		ZeroSkipped:     e.stats.zeroSkipped.Load(),
		Filtered:        e.stats.filtered.Load(),
		NopsSkipped:     e.stats.nopsSkipped.Load(),
		Syscalls:        e.stats.syscalls.Load(),
		TrackedSyscalls: e.stats.trackedSyscalls.Load(),
		RegisterEdges:   regEdges,
		MemoryEdges:     memEdges,
		MergeNodes:      depot.Nodes,
		MergeReused:     depot.Reused,
		Threads:         e.threads.Len(),
		ShadowBytes:     e.mem.Len(),
	}
}
