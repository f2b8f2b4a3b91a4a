package engine

import (
	"github.com/kolkov/datadeps/internal/deps/filter"
	"github.com/kolkov/datadeps/internal/deps/instr"
	"github.com/kolkov/datadeps/internal/deps/thread"
)

// ReadContext is the dynamic context of a register read.
type ReadContext struct {
	// EA is the effective address of the memory operand the register helps
	// address, valid when HasEA is set.
	EA    uint64
	HasEA bool
	// SP is the stack pointer before the instruction, 0 if unknown.
	SP uint64
}

// BeginInstruction starts a dynamic execution of ip in thread tid.
//
// Panics with *InvariantError if ip was not registered.
func (e *Engine) BeginInstruction(tid instr.ThreadID, ip instr.ID) {
	e.mustStatic("begin", tid, ip)
	e.threads.Get(tid).Begin(ip)
	if e.active.Load() {
		e.stats.executions.Add(1)
	}
}

// readable validates a read event and reports whether it must be processed.
func (e *Engine) readable(op string, tid instr.ThreadID, ip instr.ID) (*Static, *thread.Context, bool) {
	st := e.mustStatic(op, tid, ip)
	ctx := e.threads.Get(tid)
	if ok, msg := ctx.Read(ip); !ok {
		instr.Violation(op, tid, ip, "Deliver BeginInstruction, then all reads, then all writes", "%s", msg)
	}
	if !e.active.Load() {
		return st, ctx, false
	}
	if e.opts.IgnoreNops && st.Nop {
		e.stats.nopsSkipped.Add(1)
		return st, ctx, false
	}
	return st, ctx, true
}

// writable validates a write event and reports whether it must be processed.
func (e *Engine) writable(op string, tid instr.ThreadID, ip instr.ID) (*Static, bool) {
	st := e.mustStatic(op, tid, ip)
	if ok, msg := e.threads.Get(tid).Write(ip); !ok {
		instr.Violation(op, tid, ip, "Deliver BeginInstruction before the writes of an instruction", "%s", msg)
	}
	if !e.active.Load() {
		return st, false
	}
	if e.opts.IgnoreNops && st.Nop {
		e.stats.nopsSkipped.Add(1)
		return st, false
	}
	return st, true
}

// OnRegisterRead records the dependency of ip on the last writer of reg in
// thread tid. Reads of a zeroed register and filtered registers create no
// edge; neither does a register that was never written.
func (e *Engine) OnRegisterRead(tid instr.ThreadID, ip instr.ID, reg instr.Reg, rc ReadContext) {
	st, ctx, ok := e.readable("register-read", tid, ip)
	if !ok {
		return
	}
	if rc.SP != 0 {
		ctx.ObserveSP(rc.SP)
	}

	c := e.regs.Canonical(reg)
	if st.ZeroIdiom && c == e.regs.Canonical(st.ZeroReg) {
		e.stats.zeroSkipped.Add(1)
		return
	}
	fr := filter.Frame{EA: rc.EA, HasEA: rc.HasEA, SP: rc.SP, InitialSP: ctx.InitialSP}
	if e.filter.SkipRead(c, fr) {
		e.stats.filtered.Add(1)
		return
	}

	e.stats.registerReads.Add(1)
	if w, found := e.regs.Lookup(tid, c); found {
		e.rec.AddRegisterDep(ip, c, w)
	}
}

// OnMemoryRead records one dependency per byte of [addr, addr+size) that has
// a recorded writer.
func (e *Engine) OnMemoryRead(tid instr.ThreadID, ip instr.ID, addr uint64, size uint32) {
	if _, _, ok := e.readable("memory-read", tid, ip); !ok {
		return
	}
	e.stats.memoryReads.Add(1)
	e.rec.AddMemoryDeps(ip, e.mem.LookupRange(addr, size))
}

// OnRegisterWrite makes ip the last writer of reg in thread tid.
//
// When shortcuts are enabled, ip is move-like and src names a register or
// memory source, the source's last writer is forwarded instead.
func (e *Engine) OnRegisterWrite(tid instr.ThreadID, ip instr.ID, reg instr.Reg, src instr.Source) {
	st, ok := e.writable("register-write", tid, ip)
	if !ok {
		return
	}
	c := e.regs.Canonical(reg)
	if e.filter.SkipWrite(c) {
		e.stats.filtered.Add(1)
		return
	}
	e.stats.registerWrites.Add(1)

	if e.forwarding(st, src) {
		e.stats.forwarded.Add(1)
		switch src.Kind {
		case instr.SourceRegister:
			e.resolver.RegFromReg(tid, c, e.regs.Canonical(src.Reg))
		case instr.SourceMemory:
			e.resolver.RegFromMem(tid, c, src.Addr, src.Size)
		}
		return
	}
	e.regs.RecordWrite(tid, c, ip)
}

// OnMemoryWrite makes ip the last writer of [addr, addr+size).
//
// When shortcuts apply, writers are forwarded from src instead. A memory
// source must have the same size as the destination.
func (e *Engine) OnMemoryWrite(tid instr.ThreadID, ip instr.ID, addr uint64, size uint32, src instr.Source) {
	st, ok := e.writable("memory-write", tid, ip)
	if !ok {
		return
	}
	e.stats.memoryWrites.Add(1)

	if e.forwarding(st, src) {
		e.stats.forwarded.Add(1)
		switch src.Kind {
		case instr.SourceRegister:
			e.resolver.MemFromReg(tid, addr, size, e.regs.Canonical(src.Reg))
		case instr.SourceMemory:
			if src.Size != size {
				instr.Violation("memory-write", tid, ip, "",
					"memory-to-memory move of %d bytes from a %d byte source", size, src.Size)
			}
			e.resolver.MemFromMem(addr, src.Addr, size)
		}
		return
	}
	e.mem.RecordRange(addr, size, ip)
}

func (e *Engine) forwarding(st *Static, src instr.Source) bool {
	return e.opts.Shortcuts && st.MoveLike && src.Kind != instr.SourceNone
}
