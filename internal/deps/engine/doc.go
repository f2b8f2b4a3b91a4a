// Package engine reconstructs read-after-write data dependencies from a
// stream of instruction execution events.
//
// The Engine owns every table of one analysis run: the per-thread register
// write table, byte-granular shadow memory, the merge node depot, the
// dependency recorder and the syscall injector. Nothing is global; two
// engines never share state.
//
// # Event Order
//
// Each static instruction is registered once with RegisterInstruction. Each
// dynamic execution then delivers, for one thread:
//
//  1. BeginInstruction
//  2. register reads (OnRegisterRead)
//  3. memory reads (OnMemoryRead)
//  4. register writes (OnRegisterWrite)
//  5. memory writes (OnMemoryWrite)
//
// All reads are resolved against the state before the instruction, so an
// in-place increment of a memory location depends on the previous writer of
// that location, not on itself. A read delivered after a write of the same
// instruction is an invariant violation. Step performs the whole sequence
// from the static operand list.
//
// # Shortcuts
//
// With Options.Shortcuts, writes of move-like instructions carry a Source and
// forward the source's last writer instead of recording the move. See
// package shortcut.
//
// # Errors
//
// Invariant violations (unregistered instructions, identity space collisions,
// events out of order) panic with *InvariantError. They indicate a defect in
// whatever feeds the engine and end the run. Recover converts the panic into
// an error at a boundary.
//
// # Thread Safety
//
// Events of different threads may be delivered concurrently. Events of one
// thread must be delivered sequentially. Locks are taken in the order
// register table, shadow memory, merge depot, recorder.
package engine
