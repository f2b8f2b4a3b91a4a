package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/kolkov/datadeps/internal/deps/filter"
	"github.com/kolkov/datadeps/internal/deps/instr"
	"github.com/kolkov/datadeps/internal/deps/mergedepot"
	"github.com/kolkov/datadeps/internal/deps/recorder"
	"github.com/kolkov/datadeps/internal/deps/regtable"
	"github.com/kolkov/datadeps/internal/deps/shadowmem"
	"github.com/kolkov/datadeps/internal/deps/shortcut"
	"github.com/kolkov/datadeps/internal/deps/syscalls"
	"github.com/kolkov/datadeps/internal/deps/thread"
)

// Arch describes the register file of the traced architecture.
type Arch interface {
	// Name returns the architecture name, e.g. "amd64".
	Name() string
	// Canonical maps a register to its full-width container.
	Canonical(instr.Reg) instr.Reg
	// RegisterName returns the lowercase name of a register.
	RegisterName(instr.Reg) string
	StackPointer() instr.Reg
	InstructionPointer() instr.Reg
	FramePointer() instr.Reg
}

// Options configures an analysis run.
type Options struct {
	// Shortcuts forwards last writers through move-like instructions.
	Shortcuts bool
	// IgnoreNops drops all accesses of instructions flagged as NOPs.
	IgnoreNops bool
	// Filters selects the register ignore rules.
	Filters filter.Options
	// Syscalls is the allow-list of syscall occurrences with known effects.
	Syscalls []syscalls.Entry
	// WaitForStart discards events until Start is called.
	WaitForStart bool
	// Logger receives engine diagnostics. Defaults to log.Root().
	Logger log.Logger
}

// DefaultOptions returns the defaults of the command line tool: NOPs
// ignored, everything else off.
func DefaultOptions() Options {
	return Options{IgnoreNops: true}
}

// Static is the static description of one instruction.
type Static struct {
	Label instr.Label
	Class string
	// Nop marks instructions that neither read nor write data.
	Nop bool
	// ZeroIdiom marks instructions like "xor eax, eax" whose result does not
	// depend on ZeroReg; reads of ZeroReg are not recorded.
	ZeroIdiom bool
	ZeroReg   instr.Reg
	// MoveLike marks pure data movement eligible for shortcuts.
	MoveLike bool
	// Operands is the operand list used by Step and by Overrides.
	Operands []instr.Operand
	// Overrides maps written operands to the operand they copy.
	Overrides shortcut.Overrides
}

// Engine is the dependency engine for one analysis run.
type Engine struct {
	arch Arch
	opts Options
	log  log.Logger

	regs     *regtable.Table
	mem      *shadowmem.Memory
	depot    *mergedepot.Depot
	rec      *recorder.Recorder
	resolver *shortcut.Resolver
	sys      *syscalls.Injector
	filter   *filter.Filter
	threads  *thread.Registry

	staticMu sync.RWMutex
	statics  map[instr.ID]*Static

	active atomic.Bool
	stats  counters
}

// New creates an engine for arch.
//
// Returns an error if the syscall allow-list is invalid; the configuration is
// rejected as a whole.
//
// Example:
//
//	e, err := engine.New(amd64.Arch{}, engine.DefaultOptions())
//	e.RegisterInstruction(0x401000, engine.Static{Label: lbl})
//	e.BeginInstruction(1, 0x401000)
//	e.OnRegisterWrite(1, 0x401000, amd64.RAX, instr.Source{})
func New(arch Arch, opts Options) (*Engine, error) {
	if arch == nil {
		return nil, fmt.Errorf("engine: nil architecture")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}

	e := &Engine{
		arch:    arch,
		opts:    opts,
		log:     logger.New("arch", arch.Name()),
		regs:    regtable.New(arch.Canonical),
		mem:     shadowmem.NewMemory(),
		rec:     recorder.New(),
		threads: thread.NewRegistry(),
		statics: make(map[instr.ID]*Static),
	}
	e.depot = mergedepot.New(e.rec)
	e.resolver = shortcut.NewResolver(e.regs, e.mem, e.depot)
	e.filter = filter.New(opts.Filters, filter.Registers{
		StackPointer:       arch.Canonical(arch.StackPointer()),
		InstructionPointer: arch.Canonical(arch.InstructionPointer()),
		FramePointer:       arch.Canonical(arch.FramePointer()),
	})

	sys, err := syscalls.NewInjector(opts.Syscalls, e.mem)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.sys = sys

	e.active.Store(!opts.WaitForStart)
	e.log.Debug("Engine created", "shortcuts", opts.Shortcuts, "ignoreNops", opts.IgnoreNops,
		"syscalls", len(opts.Syscalls), "waitForStart", opts.WaitForStart)
	return e, nil
}

// Arch returns the engine's architecture.
func (e *Engine) Arch() Arch { return e.arch }

// RegisterInstruction records the static description of the instruction at
// ip. Registering an address again replaces its description.
//
// Panics with *InvariantError if ip lies outside the real instruction space,
// where it would collide with syscall or merge node ids.
func (e *Engine) RegisterInstruction(ip instr.ID, st Static) {
	if !ip.IsReal() {
		instr.Violation("register", 0, ip,
			"Real instruction addresses must stay below 1<<63",
			"address collides with the %s id space", ip.Kind())
	}
	s := st
	e.staticMu.Lock()
	if _, dup := e.statics[ip]; !dup {
		e.stats.instructions.Add(1)
	}
	e.statics[ip] = &s
	e.staticMu.Unlock()
}

// Static returns the registered description of ip.
func (e *Engine) Static(ip instr.ID) (*Static, bool) {
	e.staticMu.RLock()
	st, ok := e.statics[ip]
	e.staticMu.RUnlock()
	return st, ok
}

// mustStatic returns the description of ip or panics.
func (e *Engine) mustStatic(op string, tid instr.ThreadID, ip instr.ID) *Static {
	st, ok := e.Static(ip)
	if !ok {
		instr.Violation(op, tid, ip,
			"Call RegisterInstruction before delivering events for an address",
			"instruction was not registered")
	}
	return st
}

// Start opens the analysis window. Events outside the window are discarded.
func (e *Engine) Start() {
	if !e.active.Swap(true) {
		e.log.Info("Analysis window opened")
	}
}

// Stop closes the analysis window.
func (e *Engine) Stop() {
	if e.active.Swap(false) {
		e.log.Info("Analysis window closed")
	}
}

// Active reports whether events are currently processed.
func (e *Engine) Active() bool { return e.active.Load() }

// OnThreadStart records the stack pointer a thread started with. It feeds
// the frame-pointer stack memory filter.
func (e *Engine) OnThreadStart(tid instr.ThreadID, sp uint64) {
	e.threads.Get(tid).SetInitialSP(sp)
	e.log.Debug("Thread started", "tid", tid, "sp", fmt.Sprintf("%#x", sp))
}

// OnSyscall accounts one syscall occurrence. Tracked occurrences mark their
// output buffer with a synthetic syscall writer.
//
// Syscalls are counted outside the analysis window too, so that occurrence
// indices refer to the whole execution.
func (e *Engine) OnSyscall(tid instr.ThreadID, ip instr.ID, number uint64, args [6]uint64) {
	e.stats.syscalls.Add(1)
	rec, ok := e.sys.OnSyscall(tid, ip, number, args)
	if !ok {
		return
	}
	e.stats.trackedSyscalls.Add(1)
	e.log.Debug("Tracked syscall", "tid", tid, "number", number, "index", rec.Index,
		"addr", fmt.Sprintf("%#x", rec.Addr), "bytes", rec.Bytes, "id", rec.ID)
}
