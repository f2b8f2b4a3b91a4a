package engine

import (
	"github.com/kolkov/datadeps/internal/deps/instr"
	"github.com/kolkov/datadeps/internal/deps/recorder"
	"github.com/kolkov/datadeps/internal/deps/syscalls"
)

// Graph is the accumulated dependency graph of a run, ready for
// serialization.
type Graph struct {
	Arch      string
	Registers []recorder.RegEdge
	Memory    []recorder.MemEdge
	Syscalls  []syscalls.Record

	labels   map[instr.ID]instr.Label
	regNames map[instr.Reg]string
}

// Label returns the report label of id. Ids without a label (instructions
// that were never registered) get instr.UnknownLabel.
func (g *Graph) Label(id instr.ID) instr.Label {
	if l, ok := g.labels[id]; ok {
		return l
	}
	return instr.UnknownLabel
}

// RegisterName returns the name of a canonical register.
func (g *Graph) RegisterName(r instr.Reg) string {
	return g.regNames[r]
}

// Snapshot returns the graph accumulated so far.
//
// Merge nodes are labelled "virtual-instructions+n". Syscall writers carry the
// label of the syscall instruction that produced them.
func (e *Engine) Snapshot() *Graph {
	s := e.rec.Snapshot()
	g := &Graph{
		Arch:      e.arch.Name(),
		Registers: s.Registers,
		Memory:    s.Memory,
		Syscalls:  e.sys.Records(),
		labels:    make(map[instr.ID]instr.Label),
		regNames:  make(map[instr.Reg]string),
	}

	for _, edge := range g.Registers {
		g.addLabel(e, edge.Reader)
		g.addLabel(e, edge.Writer)
		if _, ok := g.regNames[edge.Reg]; !ok {
			g.regNames[edge.Reg] = e.arch.RegisterName(edge.Reg)
		}
	}
	for _, edge := range g.Memory {
		g.addLabel(e, edge.Reader)
		g.addLabel(e, edge.Writer)
	}
	for _, r := range g.Syscalls {
		g.addLabel(e, r.IP)
	}
	return g
}

func (g *Graph) addLabel(e *Engine, id instr.ID) {
	if _, ok := g.labels[id]; ok {
		return
	}
	if l, ok := e.Label(id); ok {
		g.labels[id] = l
	}
}

// Label resolves the report label of any graph node.
func (e *Engine) Label(id instr.ID) (instr.Label, bool) {
	switch id.Kind() {
	case instr.KindMerge:
		return e.depot.Label(id)
	case instr.KindSyscall:
		rec, ok := e.sys.Lookup(id)
		if !ok {
			return instr.Label{}, false
		}
		id = rec.IP
	}
	st, ok := e.Static(id)
	if !ok {
		return instr.Label{}, false
	}
	return st.Label, true
}
