// Package regtable tracks, per thread, the last instruction that wrote each
// canonical register.
//
// Registers are keyed by their full-width container: a write to a sub-register
// (al, ax, eax) is recorded against the containing register (rax), and a later
// read of any overlapping sub-register finds that writer. The mapping from
// register to container is supplied by the architecture frontend.
//
// # Thread Safety
//
// A single mutex guards the table. Do runs a closure with the lock held so that
// callers combining several lookups and writes observe one consistent state.
// The engine's global lock order places this table first, before shadow
// memory, the merge depot and the recorder.
package regtable

import (
	"sync"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// Canonicalizer maps a register to its full-width container.
type Canonicalizer func(instr.Reg) instr.Reg

// identity is used when no canonicalizer is supplied.
func identity(r instr.Reg) instr.Reg { return r }

type key struct {
	tid instr.ThreadID
	reg instr.Reg
}

// Table is the register write table for one analysis run.
type Table struct {
	mu    sync.Mutex
	canon Canonicalizer
	last  map[key]instr.ID
}

// New creates an empty table. A nil canonicalizer keeps registers as given.
//
// Example:
//
//	t := regtable.New(amd64.Canonical)
//	t.RecordWrite(1, amd64.EAX, 0x401000)
//	w, ok := t.Lookup(1, amd64.AL) // 0x401000, true
func New(canon Canonicalizer) *Table {
	if canon == nil {
		canon = identity
	}
	return &Table{
		canon: canon,
		last:  make(map[key]instr.ID),
	}
}

// Canonical returns the container register of reg.
func (t *Table) Canonical(reg instr.Reg) instr.Reg {
	return t.canon(reg)
}

// RecordWrite sets the last writer of reg in thread tid to id, replacing any
// previous writer.
func (t *Table) RecordWrite(tid instr.ThreadID, reg instr.Reg, id instr.ID) {
	t.mu.Lock()
	t.last[key{tid, t.canon(reg)}] = id
	t.mu.Unlock()
}

// Lookup returns the last writer of reg in thread tid.
// ok is false if the register was never written in that thread.
func (t *Table) Lookup(tid instr.ThreadID, reg instr.Reg) (id instr.ID, ok bool) {
	t.mu.Lock()
	id, ok = t.last[key{tid, t.canon(reg)}]
	t.mu.Unlock()
	return id, ok
}

// Do runs fn with the table locked. fn must not call methods on t itself;
// it uses the Tx instead.
func (t *Table) Do(fn func(tx *Tx)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&Tx{t: t})
}

// Len returns the number of (thread, register) entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}

// Reset clears all entries. Not safe while events are being processed.
func (t *Table) Reset() {
	t.mu.Lock()
	t.last = make(map[key]instr.ID)
	t.mu.Unlock()
}

// Tx is a view of a locked Table, valid only inside Do.
type Tx struct {
	t *Table
}

// RecordWrite is Table.RecordWrite without locking.
func (tx *Tx) RecordWrite(tid instr.ThreadID, reg instr.Reg, id instr.ID) {
	tx.t.last[key{tid, tx.t.canon(reg)}] = id
}

// Lookup is Table.Lookup without locking.
func (tx *Tx) Lookup(tid instr.ThreadID, reg instr.Reg) (instr.ID, bool) {
	id, ok := tx.t.last[key{tid, tx.t.canon(reg)}]
	return id, ok
}
