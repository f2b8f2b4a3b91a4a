package shadowmem

import (
	"sync"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// Memory is the per-byte last-writer map for one analysis run.
//
// The map stores entries as map[uint64]instr.ID, where:
//   - Key: application memory address of one byte
//   - Value: the instruction (or syscall, or merge node) that last wrote it
type Memory struct {
	mu    sync.Mutex
	cells map[uint64]instr.ID
}

// NewMemory creates a new empty shadow memory.
func NewMemory() *Memory {
	return &Memory{cells: make(map[uint64]instr.ID)}
}

// RecordWrite sets the writer of the byte at addr.
//
// Thread Safety: Safe for concurrent calls.
func (m *Memory) RecordWrite(addr uint64, id instr.ID) {
	m.mu.Lock()
	m.cells[addr] = id
	m.mu.Unlock()
}

// RecordRange sets the writer of size bytes starting at addr.
//
// Parameters:
//   - addr: first byte written
//   - size: number of bytes written (0 is a no-op)
//   - id: writer recorded for every byte
//
// Thread Safety: Safe for concurrent calls. The whole range is updated under
// one lock acquisition, so concurrent readers see either none or all of it.
func (m *Memory) RecordRange(addr uint64, size uint32, id instr.ID) {
	m.mu.Lock()
	recordRange(m.cells, addr, size, id)
	m.mu.Unlock()
}

// Lookup returns the writer of the byte at addr.
func (m *Memory) Lookup(addr uint64) (instr.ID, bool) {
	m.mu.Lock()
	id, ok := m.cells[addr]
	m.mu.Unlock()
	return id, ok
}

// LookupRange returns (address, writer) pairs for the bytes in
// [addr, addr+size) that have a recorded writer, in ascending address order.
//
// Returns:
//   - nil if no byte in the range was ever written
//
// Thread Safety: Safe for concurrent calls.
func (m *Memory) LookupRange(addr uint64, size uint32) []instr.MemDep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lookupRange(m.cells, addr, size)
}

// Do runs fn with the memory locked.
func (m *Memory) Do(fn func(tx *Tx)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&Tx{m: m})
}

// Len returns the number of bytes with a recorded writer.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cells)
}

// Reset clears all shadow cells.
//
// WARNING: Not safe while events are being processed. Intended for tests and
// for reusing an engine between runs.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.cells = make(map[uint64]instr.ID)
	m.mu.Unlock()
}

// Tx is a view of locked Memory, valid only inside Do.
type Tx struct {
	m *Memory
}

// RecordWrite is Memory.RecordWrite without locking.
func (tx *Tx) RecordWrite(addr uint64, id instr.ID) { tx.m.cells[addr] = id }

// RecordRange is Memory.RecordRange without locking.
func (tx *Tx) RecordRange(addr uint64, size uint32, id instr.ID) {
	recordRange(tx.m.cells, addr, size, id)
}

// Lookup is Memory.Lookup without locking.
func (tx *Tx) Lookup(addr uint64) (instr.ID, bool) {
	id, ok := tx.m.cells[addr]
	return id, ok
}

// LookupRange is Memory.LookupRange without locking.
func (tx *Tx) LookupRange(addr uint64, size uint32) []instr.MemDep {
	return lookupRange(tx.m.cells, addr, size)
}

// span returns the number of bytes of [addr, addr+size) that lie below the
// top of the address space. Bytes past math.MaxUint64 are dropped, never
// wrapped to address 0.
func span(addr uint64, size uint32) uint64 {
	n := uint64(size)
	if n > 0 && addr+n-1 < addr {
		return -addr
	}
	return n
}

func recordRange(cells map[uint64]instr.ID, addr uint64, size uint32, id instr.ID) {
	for i, n := uint64(0), span(addr, size); i < n; i++ {
		cells[addr+i] = id
	}
}

func lookupRange(cells map[uint64]instr.ID, addr uint64, size uint32) []instr.MemDep {
	var out []instr.MemDep
	for i, n := uint64(0), span(addr, size); i < n; i++ {
		if w, ok := cells[addr+i]; ok {
			out = append(out, instr.MemDep{Addr: addr + i, Writer: w})
		}
	}
	return out
}
