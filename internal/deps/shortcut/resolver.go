package shortcut

import (
	"github.com/kolkov/datadeps/internal/deps/instr"
	"github.com/kolkov/datadeps/internal/deps/mergedepot"
	"github.com/kolkov/datadeps/internal/deps/regtable"
	"github.com/kolkov/datadeps/internal/deps/shadowmem"
)

// Resolver propagates last writers for move-like instructions.
//
// It takes locks in the engine's global order: register table, then shadow
// memory, then the merge depot.
type Resolver struct {
	regs  *regtable.Table
	mem   *shadowmem.Memory
	depot *mergedepot.Depot
}

// NewResolver creates a resolver over the run's tables.
func NewResolver(regs *regtable.Table, mem *shadowmem.Memory, depot *mergedepot.Depot) *Resolver {
	return &Resolver{regs: regs, mem: mem, depot: depot}
}

// RegFromReg forwards src's writer to dst in thread tid.
// It reports whether a writer was forwarded.
func (r *Resolver) RegFromReg(tid instr.ThreadID, dst, src instr.Reg) (forwarded bool) {
	r.regs.Do(func(tx *regtable.Tx) {
		if w, ok := tx.Lookup(tid, src); ok {
			tx.RecordWrite(tid, dst, w)
			forwarded = true
		}
	})
	return forwarded
}

// RegFromMem forwards the writer of [addr, addr+size) to dst in thread tid.
//
// Returns:
//   - the writer now recorded for dst, which is a merge node when the span
//     has more than one distinct writer
//   - false if no byte of the span had a writer; dst is left unchanged
func (r *Resolver) RegFromMem(tid instr.ThreadID, dst instr.Reg, addr uint64, size uint32) (writer instr.ID, forwarded bool) {
	r.regs.Do(func(rtx *regtable.Tx) {
		deps := r.mem.LookupRange(addr, size)
		switch writers := instr.Writers(deps); len(writers) {
		case 0:
			return
		case 1:
			writer = writers[0]
		default:
			writer = r.depot.Merge(deps)
		}
		rtx.RecordWrite(tid, dst, writer)
		forwarded = true
	})
	return writer, forwarded
}

// MemFromReg writes src's writer into every byte of [addr, addr+size).
// Nothing changes when src has no writer.
func (r *Resolver) MemFromReg(tid instr.ThreadID, addr uint64, size uint32, src instr.Reg) (forwarded bool) {
	r.regs.Do(func(rtx *regtable.Tx) {
		w, ok := rtx.Lookup(tid, src)
		if !ok {
			return
		}
		r.mem.RecordRange(addr, size, w)
		forwarded = true
	})
	return forwarded
}

// MemFromMem copies writers byte by byte from [src, src+size) to
// [dst, dst+size) and returns the number of bytes copied.
//
// The source span is read completely before any destination byte changes, so
// overlapping spans copy the pre-instruction state.
func (r *Resolver) MemFromMem(dst, src uint64, size uint32) (copied int) {
	r.mem.Do(func(tx *shadowmem.Tx) {
		for _, d := range tx.LookupRange(src, size) {
			tx.RecordWrite(dst+(d.Addr-src), d.Writer)
			copied++
		}
	})
	return copied
}
