// Package report serializes a dependency graph.
//
// A graph is flattened into three tables, one row per edge or tracked
// syscall, and written as CSV files that keep the column layout of the
// Pin ddl tool:
//
//	<prefix>.register_dependencies.csv   Write_img,Write_off,Register,Read_img,Read_off
//	<prefix>.memory_dependencies.csv     Write_img,Write_off,Memory,Read_img,Read_off
//	<prefix>.syscall_instructions.csv    image_name,image_offset,index,thread_id,syscall_id
//
// Image names are base names and always quoted. Offsets and memory
// addresses are decimal, -1 marks an unknown offset. The same tables can
// be read back and rendered for humans with Printer.
package report

import (
	"github.com/kolkov/datadeps/internal/deps/engine"
	"github.com/kolkov/datadeps/internal/deps/instr"
)

// File name suffixes appended to the report prefix.
const (
	RegisterSuffix = ".register_dependencies.csv"
	MemorySuffix   = ".memory_dependencies.csv"
	SyscallSuffix  = ".syscall_instructions.csv"
)

// Location is an instruction position as printed in reports.
type Location struct {
	Image  string // base name
	Offset int64  // -1 when unknown
}

// String formats the location as "image+0xoff", or "image+?" when the
// offset is unknown.
func (l Location) String() string {
	return instr.Label{Image: l.Image, Offset: l.Offset}.String()
}

func locationOf(l instr.Label) Location {
	return Location{Image: l.ImageBase(), Offset: l.Offset}
}

// RegisterRow is one register dependency: Reader read Register last written
// by Writer.
type RegisterRow struct {
	Writer   Location
	Register string
	Reader   Location
}

// MemoryRow is one memory dependency at a single byte address.
type MemoryRow struct {
	Writer Location
	Addr   uint64
	Reader Location
}

// SyscallRow is one tracked syscall occurrence.
type SyscallRow struct {
	Instruction Location
	Index       uint64 // occurrence index from the allow-list
	Thread      uint64
	SyscallID   uint64 // sequence number of the call within its thread
}

// Tables is a flattened dependency graph.
type Tables struct {
	Registers []RegisterRow
	Memory    []MemoryRow
	Syscalls  []SyscallRow
}

// FromGraph flattens g. Rows keep the graph order: by reader, then
// location, then writer.
func FromGraph(g *engine.Graph) *Tables {
	t := &Tables{
		Registers: make([]RegisterRow, 0, len(g.Registers)),
		Memory:    make([]MemoryRow, 0, len(g.Memory)),
		Syscalls:  make([]SyscallRow, 0, len(g.Syscalls)),
	}
	for _, e := range g.Registers {
		t.Registers = append(t.Registers, RegisterRow{
			Writer:   locationOf(g.Label(e.Writer)),
			Register: g.RegisterName(e.Reg),
			Reader:   locationOf(g.Label(e.Reader)),
		})
	}
	for _, e := range g.Memory {
		t.Memory = append(t.Memory, MemoryRow{
			Writer: locationOf(g.Label(e.Writer)),
			Addr:   e.Addr,
			Reader: locationOf(g.Label(e.Reader)),
		})
	}
	for _, r := range g.Syscalls {
		t.Syscalls = append(t.Syscalls, SyscallRow{
			Instruction: locationOf(g.Label(r.IP)),
			Index:       r.Index,
			Thread:      uint64(r.Thread),
			SyscallID:   r.SyscallID,
		})
	}
	return t
}
