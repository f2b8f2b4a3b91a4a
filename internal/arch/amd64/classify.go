package amd64

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// ErrDecode is returned for byte sequences x86asm cannot decode.
var ErrDecode = errors.New("cannot decode instruction")

var (
	endbr64 = []byte{0xF3, 0x0F, 0x1E, 0xFA}
	endbr32 = []byte{0xF3, 0x0F, 0x1E, 0xFB}
)

// Decoded is the static view of one decoded instruction.
type Decoded struct {
	Inst x86asm.Inst
	// Class is the opcode name used to look up shortcuts, e.g. "MOV" or
	// "REP_STOSB".
	Class string
	Nop   bool
	// ZeroIdiom is set for "xor r, r" style instructions; ZeroReg is r.
	ZeroIdiom bool
	ZeroReg   instr.Reg
	// Rep is set for string instructions with an effective REP prefix.
	Rep bool
}

// Decode decodes the 64-bit mode instruction at the start of code.
//
// Returns ErrDecode (wrapped) if the bytes are not a valid instruction.
//
// Example:
//
//	d, err := amd64.Decode([]byte{0x48, 0x89, 0xd8}) // mov rax, rbx
//	// d.Class == "MOV"
func Decode(code []byte) (Decoded, error) {
	for _, e := range [][]byte{endbr64, endbr32} {
		if bytes.HasPrefix(code, e) {
			name := "ENDBR64"
			if e[3] == 0xFB {
				name = "ENDBR32"
			}
			return Decoded{Inst: x86asm.Inst{Op: x86asm.NOP, Mode: 64, Len: len(e)}, Class: name, Nop: true}, nil
		}
	}

	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: % x: %v", ErrDecode, code, err)
	}
	if inst.Op == 0 {
		return Decoded{}, fmt.Errorf("%w: % x: invalid opcode", ErrDecode, code)
	}
	d := Decoded{Inst: inst, Rep: hasRep(inst)}
	d.Class = className(inst.Op, d.Rep, repPrefix(inst))
	d.Nop = inst.Op == x86asm.NOP || inst.Op == x86asm.PAUSE
	d.ZeroIdiom, d.ZeroReg = zeroIdiom(inst)
	return d, nil
}

// DecodeHex decodes an instruction given as hex text such as "4889d8" or
// "48 89 d8".
func DecodeHex(s string) (Decoded, error) {
	code, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %q: %v", ErrDecode, s, err)
	}
	return Decode(code)
}

// String renders the decoded instruction in Intel syntax.
func (d Decoded) String() string {
	if d.Class == "ENDBR64" || d.Class == "ENDBR32" {
		return strings.ToLower(d.Class)
	}
	return x86asm.IntelSyntax(d.Inst, 0, nil)
}

func repPrefix(inst x86asm.Inst) x86asm.Prefix {
	for _, p := range inst.Prefix {
		if p == 0 {
			break
		}
		if p&x86asm.PrefixIgnored != 0 {
			continue
		}
		switch p &^ x86asm.PrefixImplicit {
		case x86asm.PrefixREP, x86asm.PrefixREPN:
			return p &^ x86asm.PrefixImplicit
		}
	}
	return 0
}

func hasRep(inst x86asm.Inst) bool {
	return isString(inst.Op) && repPrefix(inst) != 0
}

func className(op x86asm.Op, rep bool, prefix x86asm.Prefix) string {
	name := op.String()
	if !rep {
		return name
	}
	switch op {
	case x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD, x86asm.CMPSQ,
		x86asm.SCASB, x86asm.SCASW, x86asm.SCASD, x86asm.SCASQ:
		if prefix == x86asm.PrefixREPN {
			return "REPNE_" + name
		}
		return "REPE_" + name
	}
	return "REP_" + name
}

// zeroClasses are the classes whose result is zero, independent of the
// input, when both operands name the same register.
var zeroClasses = map[string]bool{
	"XOR": true, "SUB": true, "PXOR": true, "XORPS": true, "XORPD": true,
	"PSUBB": true, "PSUBW": true, "PSUBD": true, "PSUBQ": true,
}

func zeroIdiom(inst x86asm.Inst) (bool, instr.Reg) {
	if !zeroClasses[inst.Op.String()] {
		return false, instr.RegNone
	}
	a, ok := inst.Args[0].(x86asm.Reg)
	if !ok {
		return false, instr.RegNone
	}
	b, ok := inst.Args[1].(x86asm.Reg)
	if !ok || a != b || inst.Args[2] != nil {
		return false, instr.RegNone
	}
	return true, FromX86(a)
}

// ZeroIdiomOperands detects a zeroing idiom from a class name and an explicit
// operand list, for instructions described without their bytes. It matches
// exactly two register operands naming the same register.
func ZeroIdiomOperands(class string, ops []instr.Operand) (bool, instr.Reg) {
	if !zeroClasses[strings.ToUpper(class)] || len(ops) != 2 {
		return false, instr.RegNone
	}
	a, b := ops[0], ops[1]
	if a.Kind != instr.OperandReg || b.Kind != instr.OperandReg || a.Reg != b.Reg {
		return false, instr.RegNone
	}
	return true, a.Reg
}

func isString(op x86asm.Op) bool {
	switch op {
	case x86asm.MOVSB, x86asm.MOVSW, x86asm.MOVSD, x86asm.MOVSQ,
		x86asm.STOSB, x86asm.STOSW, x86asm.STOSD, x86asm.STOSQ,
		x86asm.LODSB, x86asm.LODSW, x86asm.LODSD, x86asm.LODSQ,
		x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD, x86asm.CMPSQ,
		x86asm.SCASB, x86asm.SCASW, x86asm.SCASD, x86asm.SCASQ:
		return true
	}
	return false
}
