package engine

import "github.com/kolkov/datadeps/internal/deps/instr"

// Exec is the dynamic part of one instruction execution.
type Exec struct {
	// EA holds the effective address of each memory operand, indexed by
	// instr.Operand.Mem.
	EA []uint64
	// SP is the stack pointer before the instruction, 0 if unknown.
	SP uint64
	// Skipped marks a predicated instruction whose predicate was false. Its
	// memory accesses are not performed; register accesses still are.
	Skipped bool
}

func (x Exec) ea(op instr.Operand) (uint64, bool) {
	if op.Mem < 0 || op.Mem >= len(x.EA) {
		return 0, false
	}
	return x.EA[op.Mem], true
}

// Step delivers one execution of ip from its registered operand list, in the
// engine's event order: register reads (including address registers),
// memory reads, register writes, memory writes.
//
// Panics with *InvariantError if ip is unregistered or a memory access lacks
// its effective address.
func (e *Engine) Step(tid instr.ThreadID, ip instr.ID, x Exec) {
	st := e.mustStatic("step", tid, ip)
	e.BeginInstruction(tid, ip)
	ops := st.Operands

	for _, op := range ops {
		switch op.Kind {
		case instr.OperandReg:
			if op.Access.Reads() {
				e.OnRegisterRead(tid, ip, op.Reg, ReadContext{SP: x.SP})
			}
		case instr.OperandMem:
			ea, ok := x.ea(op)
			for _, r := range [...]instr.Reg{op.Base, op.Index} {
				if r != instr.RegNone {
					e.OnRegisterRead(tid, ip, r, ReadContext{EA: ea, HasEA: ok, SP: x.SP})
				}
			}
		}
	}

	if !x.Skipped {
		for _, op := range ops {
			if op.Kind == instr.OperandMem && op.Access.Reads() {
				e.OnMemoryRead(tid, ip, e.mustEA(tid, ip, x, op), op.Size)
			}
		}
	}

	for i, op := range ops {
		if op.Kind == instr.OperandReg && op.Access.Writes() {
			e.OnRegisterWrite(tid, ip, op.Reg, e.source(st, i, x))
		}
	}

	if !x.Skipped {
		for i, op := range ops {
			if op.Kind == instr.OperandMem && op.Access.Writes() {
				e.OnMemoryWrite(tid, ip, e.mustEA(tid, ip, x, op), op.Size, e.source(st, i, x))
			}
		}
	}
}

func (e *Engine) mustEA(tid instr.ThreadID, ip instr.ID, x Exec, op instr.Operand) uint64 {
	ea, ok := x.ea(op)
	if !ok {
		instr.Violation("step", tid, ip, "Supply one effective address per memory operand",
			"missing effective address for memory operand %d", op.Mem)
	}
	return ea
}

// source returns the forwarded origin of written operand i, or the zero
// Source when none applies.
func (e *Engine) source(st *Static, i int, x Exec) instr.Source {
	if !e.opts.Shortcuts || !st.MoveLike {
		return instr.Source{}
	}
	ov, ok := st.Overrides[i]
	if !ok {
		return instr.Source{}
	}
	from := st.Operands[ov.Read]
	switch from.Kind {
	case instr.OperandReg:
		return instr.FromRegister(from.Reg)
	case instr.OperandMem:
		if ea, ok := x.ea(from); ok {
			return instr.FromMemory(ea, from.Size)
		}
	}
	return instr.Source{}
}
