// Package shadowmem implements byte-granular shadow memory recording the last
// instruction that wrote each application memory byte.
//
// Shadow memory is the memory half of the dependency engine. Registers live in
// per-thread tables; memory is shared by all threads, so a byte written by one
// thread and read by another produces a cross-thread dependency.
//
// # Granularity
//
// Every byte is tracked on its own. A 4-byte store at 0x1000 sets the writer of
// 0x1000, 0x1001, 0x1002 and 0x1003; a later 1-byte store at 0x1002 replaces
// the writer of that byte only. Reading 4 bytes at 0x1000 afterwards yields two
// distinct writers.
//
// # Usage
//
//	sm := shadowmem.NewMemory()
//	sm.RecordRange(0x1000, 4, 0x401000)
//	sm.RecordWrite(0x1002, 0x401010)
//	deps := sm.LookupRange(0x1000, 4)
//	// [{0x1000 0x401000} {0x1001 0x401000} {0x1002 0x401010} {0x1003 0x401000}]
//
// Bytes that were never written are absent from LookupRange results. Absence
// is not an error: it means the value came from outside the observed
// execution (initial memory or an untracked syscall).
//
// # Thread Safety
//
// All methods are safe for concurrent use. A single mutex guards the byte map;
// Do runs several operations under one acquisition.
//
// # Memory
//
// The MVP keeps a Go map from address to writer, about 40 bytes per written
// byte. Traces touching gigabytes of distinct memory need a paged layout.
package shadowmem
