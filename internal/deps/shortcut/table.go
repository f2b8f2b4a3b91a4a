package shortcut

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// Pair says that the operand at index Write receives the value of the operand
// at index Read.
type Pair struct {
	Write int `yaml:"write"`
	Read  int `yaml:"read"`
}

// Table maps an instruction class to its override pairs.
type Table map[string][]Pair

// ErrBadPair is returned for operand indices that cannot describe a move.
var ErrBadPair = errors.New("invalid shortcut pair")

// Lookup returns the pairs registered for class.
func (t Table) Lookup(class string) ([]Pair, bool) {
	p, ok := t[class]
	return p, ok
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = slices.Clone(v)
	}
	return out
}

// With returns a copy of t extended (or overridden, per class) by extra.
func (t Table) With(extra Table) Table {
	out := t.Clone()
	for k, v := range extra {
		out[k] = slices.Clone(v)
	}
	return out
}

// Classes returns the sorted class names of t.
func (t Table) Classes() []string {
	return slices.Sorted(maps.Keys(t))
}

// Validate checks every pair for negative or self-referencing indices.
func (t Table) Validate() error {
	for _, class := range t.Classes() {
		for _, p := range t[class] {
			if p.Write < 0 || p.Read < 0 {
				return fmt.Errorf("%w: %s (%d,%d): negative operand index", ErrBadPair, class, p.Write, p.Read)
			}
			if p.Write == p.Read {
				return fmt.Errorf("%w: %s (%d,%d): operand copies itself", ErrBadPair, class, p.Write, p.Read)
			}
		}
	}
	return nil
}

// Combination is the storage kinds of a resolved override.
type Combination uint8

const (
	RegFromReg Combination = iota + 1
	RegFromMem
	MemFromReg
	MemFromMem
)

// String returns the combination name.
func (c Combination) String() string {
	switch c {
	case RegFromReg:
		return "reg<-reg"
	case RegFromMem:
		return "reg<-mem"
	case MemFromReg:
		return "mem<-reg"
	case MemFromMem:
		return "mem<-mem"
	default:
		return fmt.Sprintf("combination(%d)", uint8(c))
	}
}

// Override is one resolved pair: the written operand takes its value from
// operand Read.
type Override struct {
	Combination Combination
	Read        int
}

// Overrides maps written operand indices to their override.
type Overrides map[int]Override

// Resolve turns the pairs of a class into overrides for a concrete operand
// list.
//
// Pairs whose write or read operand is an immediate are skipped. A pair whose
// write operand is not written, or whose read operand is not read, is an
// error, as is an index past the operand list.
//
// Returns:
//   - nil Overrides (and nil error) if no pair applies
func Resolve(pairs []Pair, ops []instr.Operand) (Overrides, error) {
	var out Overrides
	for _, p := range pairs {
		if p.Write < 0 || p.Write >= len(ops) || p.Read < 0 || p.Read >= len(ops) {
			return nil, fmt.Errorf("%w: (%d,%d) with %d operands", ErrBadPair, p.Write, p.Read, len(ops))
		}
		w, r := ops[p.Write], ops[p.Read]
		if w.Kind == instr.OperandImm || r.Kind == instr.OperandImm {
			continue
		}
		if !w.Access.Writes() {
			return nil, fmt.Errorf("%w: operand %d is not written", ErrBadPair, p.Write)
		}
		if !r.Access.Reads() {
			return nil, fmt.Errorf("%w: operand %d is not read", ErrBadPair, p.Read)
		}

		var c Combination
		switch {
		case w.Kind == instr.OperandReg && r.Kind == instr.OperandReg:
			c = RegFromReg
		case w.Kind == instr.OperandReg && r.Kind == instr.OperandMem:
			c = RegFromMem
		case w.Kind == instr.OperandMem && r.Kind == instr.OperandReg:
			c = MemFromReg
		default:
			c = MemFromMem
		}
		if out == nil {
			out = make(Overrides, len(pairs))
		}
		out[p.Write] = Override{Combination: c, Read: p.Read}
	}
	return out, nil
}
