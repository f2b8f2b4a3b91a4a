// Package filter implements the optional ignore rules applied before a
// register access reaches the dependency tables.
//
// Three rules exist:
//
//   - Stack pointer: reads and writes of the stack pointer are dropped. Nearly
//     every instruction touching the stack reads it, which ties unrelated
//     code together through push and pop.
//   - Instruction pointer: reads and writes of the instruction pointer are
//     dropped (rip-relative addressing).
//   - Frame-pointer stack memory: a read of the frame pointer is dropped when
//     it only serves to address the current stack frame, i.e. the effective
//     address of the memory operand it forms lies between the red zone below
//     the stack pointer and the thread's initial stack pointer.
package filter

import "github.com/kolkov/datadeps/internal/deps/instr"

// RedZone is the number of bytes below the stack pointer that a leaf function
// may use without moving it.
const RedZone = 128

// Options selects the active rules.
type Options struct {
	IgnoreStackPointer       bool
	IgnoreInstructionPointer bool
	IgnoreFramePointerStack  bool
}

// Registers names the canonical special registers of the architecture.
type Registers struct {
	StackPointer       instr.Reg
	InstructionPointer instr.Reg
	FramePointer       instr.Reg
}

// Frame is the dynamic context of a register read.
type Frame struct {
	EA        uint64 // Effective address of the memory operand the register forms
	HasEA     bool   // Whether the register is used to address a memory operand
	SP        uint64 // Stack pointer value before the instruction
	InitialSP uint64 // Stack pointer of the thread at start, 0 if unknown
}

// Filter applies Options to canonical registers.
type Filter struct {
	opts Options
	regs Registers
}

// New creates a filter.
func New(opts Options, regs Registers) *Filter {
	return &Filter{opts: opts, regs: regs}
}

// SkipWrite reports whether a write of reg is dropped.
func (f *Filter) SkipWrite(reg instr.Reg) bool {
	return f.special(reg)
}

// SkipRead reports whether a read of reg, in the given frame, is dropped.
func (f *Filter) SkipRead(reg instr.Reg, fr Frame) bool {
	if f.special(reg) {
		return true
	}
	if f.opts.IgnoreFramePointerStack && reg == f.regs.FramePointer && fr.HasEA {
		return InFrame(fr.EA, fr.SP, fr.InitialSP)
	}
	return false
}

func (f *Filter) special(reg instr.Reg) bool {
	if f.opts.IgnoreStackPointer && reg == f.regs.StackPointer {
		return true
	}
	if f.opts.IgnoreInstructionPointer && reg == f.regs.InstructionPointer {
		return true
	}
	return false
}

// InFrame reports whether ea lies in [sp-RedZone, initialSP].
func InFrame(ea, sp, initialSP uint64) bool {
	low := uint64(0)
	if sp >= RedZone {
		low = sp - RedZone
	}
	return ea <= initialSP && low <= ea
}
