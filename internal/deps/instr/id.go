package instr

import (
	"math"
	"strconv"
)

// ID identifies a dependency graph node: a real instruction, a syscall
// pseudo-instruction or a virtual merge node.
type ID uint64

const (
	// SyscallBase is the first syscall pseudo-instruction id.
	// Real instruction addresses must be strictly below it.
	SyscallBase ID = 1 << 63

	// MergeFloor is the lowest id a merge node may take.
	// Syscall ids must stay strictly below it.
	MergeFloor ID = 0xC000_0000_0000_0000

	// MergeTop is the first merge node id. Merge ids count down from here.
	MergeTop ID = math.MaxUint64
)

// Kind classifies an ID by the range it falls in.
type Kind uint8

const (
	KindReal Kind = iota
	KindSyscall
	KindMerge
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindReal:
		return "real"
	case KindSyscall:
		return "syscall"
	case KindMerge:
		return "merge"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Kind reports which identity space id belongs to.
//
//go:nosplit
func (id ID) Kind() Kind {
	switch {
	case id < SyscallBase:
		return KindReal
	case id < MergeFloor:
		return KindSyscall
	default:
		return KindMerge
	}
}

// IsReal reports whether id can be a real instruction address.
func (id ID) IsReal() bool { return id < SyscallBase }

// String formats id as a hexadecimal address.
func (id ID) String() string {
	return "0x" + strconv.FormatUint(uint64(id), 16)
}

// ThreadID identifies an application thread as numbered by the tracer.
type ThreadID uint32

// Reg is an architecture register number. Zero means "no register".
type Reg uint16

// RegNone is the zero register, used for absent base/index registers.
const RegNone Reg = 0

// RegDep is one register dependency of a reader: Reg was last written by Writer.
type RegDep struct {
	Reg    Reg
	Writer ID
}

// MemDep is one memory dependency of a reader: the byte at Addr was last
// written by Writer.
type MemDep struct {
	Addr   uint64
	Writer ID
}

// Writers returns the distinct writers of deps in first-seen order.
func Writers(deps []MemDep) []ID {
	if len(deps) == 0 {
		return nil
	}
	out := make([]ID, 0, 1)
	for _, d := range deps {
		seen := false
		for _, w := range out {
			if w == d.Writer {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, d.Writer)
		}
	}
	return out
}
