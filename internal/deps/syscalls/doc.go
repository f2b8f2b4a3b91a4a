// Package syscalls attributes bytes delivered by selected system calls to
// synthetic syscall writers.
//
// Data read from a file descriptor has no writing instruction inside the
// traced process. Without help, every later read of that buffer would show no
// dependency at all. An allow-list of (syscall, occurrence index, byte count)
// entries names the occurrences of interest; when one is observed, a fresh
// syscall id becomes the last writer of byte count bytes at the syscall's
// output buffer.
//
// # Allow-list Format
//
// The legacy line format is "name,index,bytes", one entry per line:
//
//	read,0,16
//	read,2,4096
//
// Index counts occurrences of the same syscall number across all threads,
// starting at 0. Names resolve to numbers through golang.org/x/sys/unix on
// Linux hosts; a number may be given instead of a name.
//
// # Counters
//
// Every observed syscall advances two monotone counters: the occurrence count
// of its number, and the syscall sequence number of its thread. Matching
// occurrences are kept as records for the syscall report.
package syscalls
