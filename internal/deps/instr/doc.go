// Package instr defines the identities and locations shared by every stage of
// the dependency engine.
//
// # Identity Spaces
//
// An instruction identity is a 64-bit value drawn from one of three disjoint
// ranges:
//
//	[0, 1<<63)                      real instruction addresses
//	[1<<63, 0xC000000000000000)     syscall pseudo-instructions, allocated upward
//	[0xC000000000000000, MaxUint64] virtual merge nodes, allocated downward
//
// The range an identity belongs to is a static property, so reports can tell a
// merge node from a syscall without consulting any table.
//
// # Locations
//
// A location is either a (thread, canonical register) pair or a single memory
// byte. Registers are plain numbers here; their names and canonical forms are
// owned by the architecture frontend.
//
// # Operands
//
// Operand describes how an instruction touches a register or memory location.
// The position of an operand in an instruction's operand list is what the
// shortcut table refers to.
package instr
