package instr

import (
	"path/filepath"
	"strconv"
)

// OperandKind is the kind of an instruction operand.
type OperandKind uint8

const (
	OperandReg OperandKind = iota + 1
	OperandMem
	OperandImm
)

// String returns "reg", "mem" or "imm".
func (k OperandKind) String() string {
	switch k {
	case OperandReg:
		return "reg"
	case OperandMem:
		return "mem"
	case OperandImm:
		return "imm"
	default:
		return "operand(" + strconv.Itoa(int(k)) + ")"
	}
}

// Access is a read/write bit set.
type Access uint8

const (
	Read Access = 1 << iota
	Write

	ReadWrite = Read | Write
)

// Reads reports whether the access includes a read.
func (a Access) Reads() bool { return a&Read != 0 }

// Writes reports whether the access includes a write.
func (a Access) Writes() bool { return a&Write != 0 }

// String returns "r", "w" or "rw".
func (a Access) String() string {
	switch a {
	case Read:
		return "r"
	case Write:
		return "w"
	case ReadWrite:
		return "rw"
	default:
		return "-"
	}
}

// Operand describes one operand of a static instruction.
//
// For memory operands, Mem is the index of the memory operand among the
// instruction's memory operands (the effective address of each execution is
// supplied under that index), Size is the access width in bytes, and Base and
// Index name the address registers, if any.
type Operand struct {
	Kind   OperandKind
	Access Access
	Reg    Reg
	Mem    int
	Size   uint32
	Base   Reg
	Index  Reg
}

// Label is the human-readable location of an instruction: the image it was
// loaded from and its offset inside that image.
type Label struct {
	Image   string
	Section string
	Routine string
	Offset  int64 // -1 when unknown
}

// UnknownLabel is used for instructions whose image could not be resolved.
var UnknownLabel = Label{Offset: -1}

// ImageBase returns the base name of the image path.
func (l Label) ImageBase() string {
	if l.Image == "" {
		return ""
	}
	return filepath.Base(l.Image)
}

// String formats the label as "image+0xoff".
func (l Label) String() string {
	if l.Offset < 0 {
		return l.ImageBase() + "+?"
	}
	return l.ImageBase() + "+0x" + strconv.FormatInt(l.Offset, 16)
}

// SourceKind tells where a move-like write takes its value from.
type SourceKind uint8

const (
	SourceNone SourceKind = iota
	SourceRegister
	SourceMemory
)

// Source names the origin of a written value for shortcut propagation.
// The zero Source means the write has no forwarded origin.
type Source struct {
	Kind SourceKind
	Reg  Reg
	Addr uint64
	Size uint32
}

// FromRegister returns a register source.
func FromRegister(r Reg) Source { return Source{Kind: SourceRegister, Reg: r} }

// FromMemory returns a memory source of size bytes at addr.
func FromMemory(addr uint64, size uint32) Source {
	return Source{Kind: SourceMemory, Addr: addr, Size: size}
}
