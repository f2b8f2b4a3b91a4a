// Package shortcut elides pure data-movement instructions from dependency
// chains.
//
// With shortcuts enabled, a move does not become the writer of its
// destination. The destination inherits the last writer of the source
// instead, so a value loaded, spilled and reloaded still points back at the
// instruction that computed it.
//
// # Static Table
//
// Table maps an instruction class (the mnemonic as named by the architecture
// frontend, e.g. "MOV" or "REP_MOVSB") to (write, read) operand index pairs:
// the written operand at Write copies the read operand at Read. At setup time
// Resolve turns the pairs into Overrides against a concrete operand list,
// choosing one of four combinations because registers and memory are tracked
// in separate tables:
//
//	RegFromReg  mov rax, rbx
//	RegFromMem  mov rax, [rbx]
//	MemFromReg  mov [rbx], rax
//	MemFromMem  movsb
//
// Immediate sources have no writer to forward and are skipped; the
// instruction is then recorded as an ordinary writer.
//
// # Runtime
//
// Resolver applies one combination per written location:
//
//   - RegFromReg copies the source register's writer when it has one.
//   - RegFromMem copies the single distinct writer of the source span, or
//     merges several into a virtual merge node. With no writer the
//     destination is left as it was.
//   - MemFromReg writes the source register's writer into every destination
//     byte.
//   - MemFromMem copies writers byte by byte; bytes whose source has no
//     writer are not touched.
package shortcut
