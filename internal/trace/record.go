package trace

import "github.com/kolkov/datadeps/internal/deps/instr"

// Record is one parsed trace line.
type Record interface {
	// Line returns the 1-based line number of the record.
	Line() int
}

// Ins is a static instruction description.
type Ins struct {
	LineNo int
	IP     instr.ID
	Label  instr.Label
	Class  string
	Bytes  []byte
	// Ops is set when the record carries an explicit operand list.
	Ops    []instr.Operand
	HasOps bool
}

// Thread announces a thread and its initial stack pointer.
type Thread struct {
	LineNo int
	TID    instr.ThreadID
	SP     uint64
}

// Exec is one dynamic execution of a registered instruction.
type Exec struct {
	LineNo  int
	TID     instr.ThreadID
	IP      instr.ID
	EA      []uint64
	SP      uint64
	Skipped bool
}

// Syscall is one system call made by a thread.
type Syscall struct {
	LineNo int
	TID    instr.ThreadID
	IP     instr.ID
	Number uint64
	Args   [6]uint64
}

// Window opens (Start) or closes the analysis window.
type Window struct {
	LineNo int
	Start  bool
}

func (r *Ins) Line() int     { return r.LineNo }
func (r *Thread) Line() int  { return r.LineNo }
func (r *Exec) Line() int    { return r.LineNo }
func (r *Syscall) Line() int { return r.LineNo }
func (r *Window) Line() int  { return r.LineNo }
