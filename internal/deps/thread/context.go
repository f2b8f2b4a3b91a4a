// Package thread keeps the per-thread state the engine needs besides the
// register table: the stack pointer the thread started with, and the cursor
// used to enforce the read-then-write order of each instruction.
package thread

import (
	"sync"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// Phase is the position of a thread inside its current instruction.
type Phase uint8

const (
	// Idle means no instruction has begun yet.
	Idle Phase = iota
	// Reading accepts register and memory reads.
	Reading
	// Writing accepts register and memory writes; further reads are a
	// violation.
	Writing
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	default:
		return "unknown"
	}
}

// Context is the state of one application thread.
//
// A Context is only touched by the thread it describes, so its fields are not
// guarded. Events of one thread must be delivered sequentially.
type Context struct {
	TID       instr.ThreadID
	InitialSP uint64 // 0 until known

	spFixed bool
	ip      instr.ID
	phase   Phase
	seq     uint64 // dynamic instructions begun
}

// Alloc creates a context for tid.
func Alloc(tid instr.ThreadID) *Context {
	return &Context{TID: tid}
}

// SetInitialSP records the stack pointer the thread started with.
func (c *Context) SetInitialSP(sp uint64) {
	c.InitialSP = sp
	c.spFixed = true
}

// ObserveSP raises InitialSP to sp for threads whose start was not observed.
// The highest stack pointer seen so far stands in for the stack base.
func (c *Context) ObserveSP(sp uint64) {
	if !c.spFixed && sp > c.InitialSP {
		c.InitialSP = sp
	}
}

// Begin starts a new dynamic instance of ip.
func (c *Context) Begin(ip instr.ID) {
	c.ip = ip
	c.phase = Reading
	c.seq++
}

// Current returns the instruction in progress and the phase.
func (c *Context) Current() (instr.ID, Phase) { return c.ip, c.phase }

// Executed returns the number of dynamic instructions begun by the thread.
func (c *Context) Executed() uint64 { return c.seq }

// Read checks that a read of ip is allowed and reports the violation message
// otherwise.
func (c *Context) Read(ip instr.ID) (ok bool, msg string) {
	switch {
	case c.phase == Idle || c.ip != ip:
		return false, "read of an instruction that was not begun"
	case c.phase == Writing:
		return false, "read after a write of the same instruction"
	}
	return true, ""
}

// Write moves the context to the write phase of ip.
func (c *Context) Write(ip instr.ID) (ok bool, msg string) {
	if c.phase == Idle || c.ip != ip {
		return false, "write of an instruction that was not begun"
	}
	c.phase = Writing
	return true, ""
}

// Registry maps thread ids to contexts.
type Registry struct {
	contexts sync.Map // instr.ThreadID → *Context
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Get returns the context of tid, creating it on first use.
func (r *Registry) Get(tid instr.ThreadID) *Context {
	if v, ok := r.contexts.Load(tid); ok {
		return v.(*Context)
	}
	v, _ := r.contexts.LoadOrStore(tid, Alloc(tid))
	return v.(*Context)
}

// Lookup returns the context of tid if it exists.
func (r *Registry) Lookup(tid instr.ThreadID) (*Context, bool) {
	v, ok := r.contexts.Load(tid)
	if !ok {
		return nil, false
	}
	return v.(*Context), true
}

// Len returns the number of known threads.
func (r *Registry) Len() int {
	n := 0
	r.contexts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
