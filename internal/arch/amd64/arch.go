// Package amd64 is the x86-64 frontend of the dependency engine.
//
// It knows the register file (names, sub-register aliasing), decodes raw
// instruction bytes with golang.org/x/arch/x86/x86asm into a class name and
// an operand list, and carries the default shortcut table for the classes
// that only move data.
//
// # Operand Conventions
//
// Explicit operands follow the decoder's argument order (destination first).
// Instructions with implicit operands list them in the order instrumentation
// frameworks report them, which is the order the shortcut table refers to:
//
//	MOVSB  m0/w  rdi/rw  m1/r  rsi/rw
//	STOSB  m0/w  rdi/rw  al/r
//	LODSB  al/w  m0/r    rsi/rw
//	PUSH   src/r rsp/rw  m/w
//	POP    dst/w rsp/rw  m/r
//
// Flags and segment bases follow the listed operands.
package amd64

import "github.com/kolkov/datadeps/internal/deps/instr"

// Arch implements engine.Arch for x86-64.
type Arch struct{}

// Name returns "amd64".
func (Arch) Name() string { return "amd64" }

// Canonical maps sub-registers to their containing register.
func (Arch) Canonical(r instr.Reg) instr.Reg { return Canonical(r) }

// RegisterName returns the lowercase register name.
func (Arch) RegisterName(r instr.Reg) string { return RegisterName(r) }

func (Arch) StackPointer() instr.Reg       { return RSP }
func (Arch) InstructionPointer() instr.Reg { return RIP }
func (Arch) FramePointer() instr.Reg       { return RBP }
