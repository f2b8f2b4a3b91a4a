package amd64

import (
	"errors"

	"golang.org/x/arch/x86/x86asm"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// ErrImplicitOperands is returned together with the explicit operands of an
// instruction whose implicit operands are not modelled. The operand list is
// usable but incomplete.
var ErrImplicitOperands = errors.New("implicit operands not modelled")

// operandList accumulates operands, numbering memory operands in order.
type operandList struct {
	ops  []instr.Operand
	mems int
}

func (l *operandList) reg(r instr.Reg, a instr.Access) {
	l.ops = append(l.ops, instr.Operand{Kind: instr.OperandReg, Access: a, Reg: r, Mem: -1})
}

func (l *operandList) mem(base, index instr.Reg, size uint32, a instr.Access) {
	l.ops = append(l.ops, instr.Operand{
		Kind: instr.OperandMem, Access: a, Mem: l.mems, Size: size, Base: base, Index: index,
	})
	l.mems++
}

func (l *operandList) imm() {
	l.ops = append(l.ops, instr.Operand{Kind: instr.OperandImm, Mem: -1})
}

func (l *operandList) arg(arg x86asm.Arg, a instr.Access, memBytes int) {
	switch v := arg.(type) {
	case x86asm.Reg:
		l.reg(FromX86(v), a)
	case x86asm.Mem:
		size := uint32(memBytes)
		if size == 0 {
			size = 8
		}
		l.mem(FromX86(v.Base), FromX86(v.Index), size, a)
	case x86asm.Imm, x86asm.Rel:
		l.imm()
	}
}

// Operands derives the operand list of d.
//
// Explicit operands come first in decoder order, followed by flags and
// segment bases. Instructions with implicit operands use the conventions
// documented in the package comment. For instructions whose implicit effects
// are unknown the explicit operands are returned with ErrImplicitOperands.
func (d Decoded) Operands() ([]instr.Operand, error) {
	if d.Class == "ENDBR64" || d.Class == "ENDBR32" {
		return nil, nil
	}
	inst := d.Inst
	l := &operandList{}

	if isString(inst.Op) {
		l.stringOps(inst.Op, d.Rep)
		return l.ops, nil
	}

	switch inst.Op {
	case x86asm.PUSH:
		l.arg(inst.Args[0], instr.Read, inst.MemBytes)
		l.reg(RSP, instr.ReadWrite)
		l.mem(RSP, instr.RegNone, stackSize(inst), instr.Write)
		return l.ops, nil
	case x86asm.POP:
		l.arg(inst.Args[0], instr.Write, inst.MemBytes)
		l.reg(RSP, instr.ReadWrite)
		l.mem(RSP, instr.RegNone, stackSize(inst), instr.Read)
		return l.ops, nil
	case x86asm.PUSHF, x86asm.PUSHFQ:
		l.reg(RFLAGS, instr.Read)
		l.reg(RSP, instr.ReadWrite)
		l.mem(RSP, instr.RegNone, stackSize(inst), instr.Write)
		return l.ops, nil
	case x86asm.POPF, x86asm.POPFQ:
		l.reg(RFLAGS, instr.Write)
		l.reg(RSP, instr.ReadWrite)
		l.mem(RSP, instr.RegNone, stackSize(inst), instr.Read)
		return l.ops, nil
	case x86asm.CALL:
		l.arg(inst.Args[0], instr.Read, inst.MemBytes)
		l.reg(RSP, instr.ReadWrite)
		l.mem(RSP, instr.RegNone, 8, instr.Write)
		return l.ops, nil
	case x86asm.RET:
		l.reg(RSP, instr.ReadWrite)
		l.mem(RSP, instr.RegNone, 8, instr.Read)
		return l.ops, nil
	case x86asm.LEAVE:
		l.reg(RSP, instr.Write)
		l.reg(RBP, instr.ReadWrite)
		l.mem(RBP, instr.RegNone, 8, instr.Read)
		return l.ops, nil
	case x86asm.CBW, x86asm.CWDE, x86asm.CDQE:
		l.reg(RAX, instr.ReadWrite)
		return l.ops, nil
	case x86asm.CWD, x86asm.CDQ, x86asm.CQO:
		l.reg(RDX, instr.Write)
		l.reg(RAX, instr.Read)
		return l.ops, nil
	case x86asm.MUL, x86asm.DIV, x86asm.IDIV:
		l.multiply(inst)
		return l.ops, nil
	case x86asm.IMUL:
		if inst.Args[1] == nil {
			l.multiply(inst)
			return l.ops, nil
		}
	case x86asm.SYSCALL:
		for _, r := range []instr.Reg{RAX, RDI, RSI, RDX, R10, R8, R9} {
			l.reg(r, instr.Read)
		}
		for _, r := range []instr.Reg{RAX, RCX, R11} {
			l.reg(r, instr.Write)
		}
		return l.ops, nil
	case x86asm.CPUID:
		l.reg(RAX, instr.ReadWrite)
		l.reg(RCX, instr.ReadWrite)
		l.reg(RBX, instr.Write)
		l.reg(RDX, instr.Write)
		return l.ops, nil
	case x86asm.RDTSC:
		l.reg(RAX, instr.Write)
		l.reg(RDX, instr.Write)
		return l.ops, nil
	case x86asm.LAHF:
		l.reg(AH, instr.Write)
		l.reg(RFLAGS, instr.Read)
		return l.ops, nil
	case x86asm.SAHF:
		l.reg(RFLAGS, instr.Write)
		l.reg(AH, instr.Read)
		return l.ops, nil
	case x86asm.CMPXCHG:
		l.arg(inst.Args[0], instr.ReadWrite, inst.MemBytes)
		l.arg(inst.Args[1], instr.Read, inst.MemBytes)
		l.reg(RAX, instr.ReadWrite)
		l.reg(RFLAGS, instr.Write)
		l.segments(inst)
		return l.ops, nil
	}

	l.explicit(inst)
	if unmodelled[inst.Op] {
		return l.ops, ErrImplicitOperands
	}
	return l.ops, nil
}

func (l *operandList) stringOps(op x86asm.Op, rep bool) {
	size := stringSize(op)
	switch op {
	case x86asm.MOVSB, x86asm.MOVSW, x86asm.MOVSD, x86asm.MOVSQ:
		l.mem(RDI, instr.RegNone, size, instr.Write)
		l.reg(RDI, instr.ReadWrite)
		l.mem(RSI, instr.RegNone, size, instr.Read)
		l.reg(RSI, instr.ReadWrite)
	case x86asm.STOSB, x86asm.STOSW, x86asm.STOSD, x86asm.STOSQ:
		l.mem(RDI, instr.RegNone, size, instr.Write)
		l.reg(RDI, instr.ReadWrite)
		l.reg(accumulator(size), instr.Read)
	case x86asm.LODSB, x86asm.LODSW, x86asm.LODSD, x86asm.LODSQ:
		l.reg(accumulator(size), instr.Write)
		l.mem(RSI, instr.RegNone, size, instr.Read)
		l.reg(RSI, instr.ReadWrite)
	case x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD, x86asm.CMPSQ:
		l.mem(RSI, instr.RegNone, size, instr.Read)
		l.reg(RSI, instr.ReadWrite)
		l.mem(RDI, instr.RegNone, size, instr.Read)
		l.reg(RDI, instr.ReadWrite)
		l.reg(RFLAGS, instr.Write)
	case x86asm.SCASB, x86asm.SCASW, x86asm.SCASD, x86asm.SCASQ:
		l.reg(accumulator(size), instr.Read)
		l.mem(RDI, instr.RegNone, size, instr.Read)
		l.reg(RDI, instr.ReadWrite)
		l.reg(RFLAGS, instr.Write)
	}
	// The direction flag selects increment or decrement.
	l.reg(RFLAGS, instr.Read)
	if rep {
		l.reg(RCX, instr.ReadWrite)
	}
}

func (l *operandList) multiply(inst x86asm.Inst) {
	l.arg(inst.Args[0], instr.Read, inst.MemBytes)
	l.reg(RAX, instr.ReadWrite)
	if operandBytes(inst) > 1 {
		l.reg(RDX, instr.ReadWrite)
	}
	l.reg(RFLAGS, instr.Write)
	l.segments(inst)
}

func (l *operandList) explicit(inst x86asm.Inst) {
	noAccess := inst.Op == x86asm.LEA || inst.Op == x86asm.NOP || isPrefetch(inst.Op)
	for i, arg := range inst.Args {
		if arg == nil {
			break
		}
		a := instr.Read
		switch {
		case noAccess && isMem(arg):
			a = 0
		case inst.Op == x86asm.XCHG || inst.Op == x86asm.XADD:
			a = instr.ReadWrite
		case i == 0:
			a = destAccess(inst)
		}
		l.arg(arg, a, inst.MemBytes)
	}
	switch {
	case readsFlags(inst.Op) && writesFlags(inst.Op):
		l.reg(RFLAGS, instr.ReadWrite)
	case readsFlags(inst.Op):
		l.reg(RFLAGS, instr.Read)
	case writesFlags(inst.Op):
		l.reg(RFLAGS, instr.Write)
	}
	l.segments(inst)
}

// segments adds reads of the FS and GS base registers used by memory
// arguments with those segment overrides.
func (l *operandList) segments(inst x86asm.Inst) {
	for _, arg := range inst.Args {
		m, ok := arg.(x86asm.Mem)
		if !ok {
			continue
		}
		switch m.Segment {
		case x86asm.FS:
			l.reg(FSBASE, instr.Read)
		case x86asm.GS:
			l.reg(GSBASE, instr.Read)
		}
	}
}

func destAccess(inst x86asm.Inst) instr.Access {
	switch inst.Op {
	case x86asm.MOV, x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD, x86asm.LEA,
		x86asm.MOVAPS, x86asm.MOVAPD, x86asm.MOVUPS, x86asm.MOVUPD,
		x86asm.MOVD, x86asm.MOVQ, x86asm.MOVDQA, x86asm.MOVDQU, x86asm.MOVNTI,
		x86asm.VMOVDQA, x86asm.VMOVDQU, x86asm.MOVBE,
		x86asm.POPCNT, x86asm.LZCNT, x86asm.TZCNT, x86asm.BSF, x86asm.BSR,
		x86asm.CVTSI2SD:
		return instr.Write
	case x86asm.MOVSS, x86asm.MOVSD_XMM:
		// Register to register forms merge into the destination.
		if _, ok := inst.Args[1].(x86asm.Mem); ok {
			return instr.Write
		}
		return instr.ReadWrite
	case x86asm.IMUL:
		if inst.Args[2] != nil {
			return instr.Write
		}
	case x86asm.CMP, x86asm.TEST, x86asm.BT, x86asm.COMISS, x86asm.COMISD,
		x86asm.UCOMISS, x86asm.UCOMISD, x86asm.PTEST, x86asm.JMP:
		return instr.Read
	}
	if isSetcc(inst.Op) {
		return instr.Write
	}
	return instr.ReadWrite
}

var unmodelled = map[x86asm.Op]bool{
	x86asm.ENTER:      true,
	x86asm.XLATB:      true,
	x86asm.LOOP:       true,
	x86asm.LOOPE:      true,
	x86asm.LOOPNE:     true,
	x86asm.CMPXCHG8B:  true,
	x86asm.CMPXCHG16B: true,
	x86asm.INSB:       true,
	x86asm.INSW:       true,
	x86asm.INSD:       true,
	x86asm.OUTSB:      true,
	x86asm.OUTSW:      true,
	x86asm.OUTSD:      true,
}

var (
	setcc = []x86asm.Op{
		x86asm.SETA, x86asm.SETAE, x86asm.SETB, x86asm.SETBE, x86asm.SETE, x86asm.SETG,
		x86asm.SETGE, x86asm.SETL, x86asm.SETLE, x86asm.SETNE, x86asm.SETNO, x86asm.SETNP,
		x86asm.SETNS, x86asm.SETO, x86asm.SETP, x86asm.SETS,
	}
	cmovcc = []x86asm.Op{
		x86asm.CMOVA, x86asm.CMOVAE, x86asm.CMOVB, x86asm.CMOVBE, x86asm.CMOVE, x86asm.CMOVG,
		x86asm.CMOVGE, x86asm.CMOVL, x86asm.CMOVLE, x86asm.CMOVNE, x86asm.CMOVNO, x86asm.CMOVNP,
		x86asm.CMOVNS, x86asm.CMOVO, x86asm.CMOVP, x86asm.CMOVS,
	}
	jcc = []x86asm.Op{
		x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JG,
		x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP,
		x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS,
	}

	flagReaders = opSet(append(append(append([]x86asm.Op{
		x86asm.ADC, x86asm.SBB, x86asm.RCL, x86asm.RCR,
	}, setcc...), cmovcc...), jcc...)...)

	flagWriters = opSet(
		x86asm.ADD, x86asm.ADC, x86asm.SUB, x86asm.SBB, x86asm.AND, x86asm.OR, x86asm.XOR,
		x86asm.CMP, x86asm.TEST, x86asm.INC, x86asm.DEC, x86asm.NEG,
		x86asm.SHL, x86asm.SHR, x86asm.SAR, x86asm.ROL, x86asm.ROR, x86asm.RCL, x86asm.RCR,
		x86asm.SHLD, x86asm.SHRD, x86asm.IMUL, x86asm.BT, x86asm.BTC, x86asm.BTR, x86asm.BTS,
		x86asm.BSF, x86asm.BSR, x86asm.POPCNT, x86asm.LZCNT, x86asm.TZCNT,
		x86asm.COMISS, x86asm.COMISD, x86asm.UCOMISS, x86asm.UCOMISD, x86asm.PTEST, x86asm.XADD,
	)

	setccOps = opSet(setcc...)
)

func opSet(ops ...x86asm.Op) map[x86asm.Op]bool {
	m := make(map[x86asm.Op]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

func readsFlags(op x86asm.Op) bool  { return flagReaders[op] }
func writesFlags(op x86asm.Op) bool { return flagWriters[op] }
func isSetcc(op x86asm.Op) bool     { return setccOps[op] }

func isPrefetch(op x86asm.Op) bool {
	switch op {
	case x86asm.PREFETCHT0, x86asm.PREFETCHT1, x86asm.PREFETCHT2,
		x86asm.PREFETCHNTA, x86asm.PREFETCHW:
		return true
	}
	return false
}

func isMem(arg x86asm.Arg) bool {
	_, ok := arg.(x86asm.Mem)
	return ok
}

func stringSize(op x86asm.Op) uint32 {
	switch op {
	case x86asm.MOVSB, x86asm.STOSB, x86asm.LODSB, x86asm.CMPSB, x86asm.SCASB:
		return 1
	case x86asm.MOVSW, x86asm.STOSW, x86asm.LODSW, x86asm.CMPSW, x86asm.SCASW:
		return 2
	case x86asm.MOVSD, x86asm.STOSD, x86asm.LODSD, x86asm.CMPSD, x86asm.SCASD:
		return 4
	}
	return 8
}

func accumulator(size uint32) instr.Reg {
	switch size {
	case 1:
		return AL
	case 2:
		return AX
	case 4:
		return EAX
	}
	return RAX
}

// stackSize is the width of a push or pop, 8 unless a 16-bit operand size
// is in effect.
func stackSize(inst x86asm.Inst) uint32 {
	if inst.DataSize == 16 {
		return 2
	}
	return 8
}

// operandBytes is the width of the first argument.
func operandBytes(inst x86asm.Inst) int {
	switch v := inst.Args[0].(type) {
	case x86asm.Reg:
		switch {
		case v >= x86asm.AL && v <= x86asm.R15B:
			return 1
		case v >= x86asm.AX && v <= x86asm.R15W:
			return 2
		case v >= x86asm.EAX && v <= x86asm.R15L:
			return 4
		}
		return 8
	case x86asm.Mem:
		return inst.MemBytes
	}
	return inst.DataSize / 8
}
