package amd64

import (
	"errors"
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"github.com/kolkov/datadeps/internal/deps/instr"
	"github.com/kolkov/datadeps/internal/deps/shortcut"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   instr.Reg
		want instr.Reg
	}{
		{"al", AL, RAX},
		{"ah", AH, RAX},
		{"ax", AX, RAX},
		{"eax", EAX, RAX},
		{"rax", RAX, RAX},
		{"spl", FromX86(x86asm.SPB), RSP},
		{"r8b", FromX86(x86asm.R8B), R8},
		{"r15w", FromX86(x86asm.R15W), R15},
		{"r9d", FromX86(x86asm.R9L), R9},
		{"eip", FromX86(x86asm.EIP), RIP},
		{"xmm5", X0 + 5, X0 + 5},
		{"ymm3", YMM0 + 3, X0 + 3},
		{"zmm7", ZMM0 + 7, X0 + 7},
		{"zmm20", ZMM0 + 20, XMM16 + 4},
		{"rflags", RFLAGS, RFLAGS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonical(tt.in); got != tt.want {
				t.Errorf("Canonical(%s) = %s, want %s", RegisterName(tt.in), RegisterName(got), RegisterName(tt.want))
			}
		})
	}
}

func TestRegisterNames(t *testing.T) {
	names := map[instr.Reg]string{
		AL:                     "al",
		AH:                     "ah",
		FromX86(x86asm.R8L):    "r8d",
		FromX86(x86asm.R12W):   "r12w",
		RSP:                    "rsp",
		RIP:                    "rip",
		X0 + 15:                "xmm15",
		XMM16 + 1:              "xmm17",
		YMM0:                   "ymm0",
		ZMM0 + 31:              "zmm31",
		RFLAGS:                 "rflags",
		FSBASE:                 "fs_base",
		FromX86(x86asm.F0):     "st0",
		FromX86(x86asm.M0 + 2): "mm2",
	}
	for r, want := range names {
		if got := RegisterName(r); got != want {
			t.Errorf("RegisterName(%d) = %q, want %q", r, got, want)
		}
		back, ok := ParseRegister(want)
		if !ok || back != r {
			t.Errorf("ParseRegister(%q) = %d, %v; want %d", want, back, ok, r)
		}
	}

	aliases := map[string]instr.Reg{
		"RAX":    RAX,
		"R8L":    FromX86(x86asm.R8L),
		"X3":     X0 + 3,
		"eflags": RFLAGS,
		"FsBase": FSBASE,
	}
	for name, want := range aliases {
		if got, ok := ParseRegister(name); !ok || got != want {
			t.Errorf("ParseRegister(%q) = %d, %v; want %d", name, got, ok, want)
		}
	}
	if _, ok := ParseRegister("r16"); ok {
		t.Error("ParseRegister(r16) succeeded")
	}
	if got := RegisterName(9999); got != "reg9999" {
		t.Errorf("RegisterName(9999) = %q", got)
	}
}

func TestDecodeClass(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		class string
		nop   bool
		rep   bool
	}{
		{"mov", "4889d8", "MOV", false, false},
		{"nop", "90", "NOP", true, false},
		{"long nop", "0f1f4000", "NOP", true, false},
		{"endbr64", "f30f1efa", "ENDBR64", true, false},
		{"movsb", "a4", "MOVSB", false, false},
		{"rep movsq", "f348a5", "REP_MOVSQ", false, true},
		{"rep stosb", "f3aa", "REP_STOSB", false, true},
		{"repe cmpsb", "f3a6", "REPE_CMPSB", false, true},
		{"repne scasb", "f2ae", "REPNE_SCASB", false, true},
		{"push", "55", "PUSH", false, false},
		{"pop", "5d", "POP", false, false},
		{"cmove", "480f44c3", "CMOVE", false, false},
		{"movzx", "0fb6c3", "MOVZX", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DecodeHex(tt.code)
			if err != nil {
				t.Fatalf("DecodeHex(%s): %v", tt.code, err)
			}
			if d.Class != tt.class || d.Nop != tt.nop || d.Rep != tt.rep {
				t.Errorf("DecodeHex(%s) = class %s nop %v rep %v, want %s %v %v",
					tt.code, d.Class, d.Nop, d.Rep, tt.class, tt.nop, tt.rep)
			}
			t.Logf("%s: %s", tt.code, d)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrDecode) {
		t.Errorf("Decode(nil) error = %v, want ErrDecode", err)
	}
	if _, err := DecodeHex("zz"); !errors.Is(err, ErrDecode) {
		t.Errorf("DecodeHex(zz) error = %v, want ErrDecode", err)
	}
	for _, h := range []string{"ff", "0f", "c4"} {
		if d, err := DecodeHex(h); !errors.Is(err, ErrDecode) {
			t.Errorf("DecodeHex(%s) = %q, %v, want ErrDecode", h, d.Class, err)
		}
	}
}

func TestZeroIdiom(t *testing.T) {
	tests := []struct {
		name string
		code string
		zero bool
		reg  instr.Reg
	}{
		{"xor eax eax", "31c0", true, EAX},
		{"xor rax rax", "4831c0", true, RAX},
		{"sub eax eax", "29c0", true, EAX},
		{"pxor xmm0 xmm0", "660fefc0", true, X0},
		{"xorps xmm1 xmm1", "0f57c9", true, X0 + 1},
		{"xor rax rbx", "4831d8", false, instr.RegNone},
		{"xor mem", "483100", false, instr.RegNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DecodeHex(tt.code)
			if err != nil {
				t.Fatal(err)
			}
			if d.ZeroIdiom != tt.zero || d.ZeroReg != tt.reg {
				t.Errorf("%s: zero idiom %v %s, want %v %s", d, d.ZeroIdiom,
					RegisterName(d.ZeroReg), tt.zero, RegisterName(tt.reg))
			}
		})
	}
}

func TestZeroIdiomOperands(t *testing.T) {
	reg := func(r instr.Reg, a instr.Access) instr.Operand {
		return instr.Operand{Kind: instr.OperandReg, Access: a, Reg: r}
	}
	tests := []struct {
		name  string
		class string
		ops   []instr.Operand
		zero  bool
		reg   instr.Reg
	}{
		{"xor eax eax", "XOR", []instr.Operand{reg(EAX, instr.ReadWrite), reg(EAX, instr.Read)}, true, EAX},
		{"lower case class", "pxor", []instr.Operand{reg(X0, instr.ReadWrite), reg(X0, instr.Read)}, true, X0},
		{"different registers", "XOR", []instr.Operand{reg(RAX, instr.ReadWrite), reg(RBX, instr.Read)}, false, instr.RegNone},
		{"memory source", "SUB", []instr.Operand{reg(RAX, instr.ReadWrite), {Kind: instr.OperandMem, Access: instr.Read, Size: 8}}, false, instr.RegNone},
		{"not a zeroing class", "AND", []instr.Operand{reg(RAX, instr.ReadWrite), reg(RAX, instr.Read)}, false, instr.RegNone},
		{"three operands", "XOR", []instr.Operand{reg(RAX, instr.ReadWrite), reg(RAX, instr.Read), reg(RAX, instr.Read)}, false, instr.RegNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zero, r := ZeroIdiomOperands(tt.class, tt.ops)
			if zero != tt.zero || r != tt.reg {
				t.Errorf("ZeroIdiomOperands(%s) = %v %s, want %v %s", tt.class, zero,
					RegisterName(r), tt.zero, RegisterName(tt.reg))
			}
		})
	}
}

type opWant struct {
	kind   instr.OperandKind
	access instr.Access
	reg    instr.Reg
	mem    int
	size   uint32
	base   instr.Reg
}

func checkOperands(t *testing.T, code string, want []opWant) {
	t.Helper()
	d, err := DecodeHex(code)
	if err != nil {
		t.Fatal(err)
	}
	ops, err := d.Operands()
	if err != nil {
		t.Fatalf("%s: Operands: %v", d, err)
	}
	if len(ops) != len(want) {
		t.Fatalf("%s: %d operands %+v, want %d", d, len(ops), ops, len(want))
	}
	for i, w := range want {
		op := ops[i]
		if op.Kind != w.kind || op.Access != w.access {
			t.Errorf("%s: operand %d = %s/%s, want %s/%s", d, i, op.Kind, op.Access, w.kind, w.access)
			continue
		}
		switch w.kind {
		case instr.OperandReg:
			if op.Reg != w.reg {
				t.Errorf("%s: operand %d reg %s, want %s", d, i, RegisterName(op.Reg), RegisterName(w.reg))
			}
		case instr.OperandMem:
			if op.Mem != w.mem || op.Size != w.size || op.Base != w.base {
				t.Errorf("%s: operand %d mem %d size %d base %s, want %d %d %s",
					d, i, op.Mem, op.Size, RegisterName(op.Base), w.mem, w.size, RegisterName(w.base))
			}
		}
	}
}

func reg(r instr.Reg, a instr.Access) opWant { return opWant{kind: instr.OperandReg, access: a, reg: r} }

func mem(k int, size uint32, base instr.Reg, a instr.Access) opWant {
	return opWant{kind: instr.OperandMem, access: a, mem: k, size: size, base: base}
}

func TestOperands(t *testing.T) {
	t.Run("mov reg reg", func(t *testing.T) {
		checkOperands(t, "4889d8", []opWant{reg(RAX, instr.Write), reg(RBX, instr.Read)})
	})
	t.Run("mov load", func(t *testing.T) {
		checkOperands(t, "488b0424", []opWant{reg(RAX, instr.Write), mem(0, 8, RSP, instr.Read)})
	})
	t.Run("mov store", func(t *testing.T) {
		checkOperands(t, "48891e", []opWant{mem(0, 8, RSI, instr.Write), reg(RBX, instr.Read)})
	})
	t.Run("lea", func(t *testing.T) {
		checkOperands(t, "488d0424", []opWant{reg(RAX, instr.Write), mem(0, 8, RSP, 0)})
	})
	t.Run("add sets flags", func(t *testing.T) {
		checkOperands(t, "4801d8", []opWant{
			reg(RAX, instr.ReadWrite), reg(RBX, instr.Read), reg(RFLAGS, instr.Write),
		})
	})
	t.Run("cmov reads flags", func(t *testing.T) {
		checkOperands(t, "480f44c3", []opWant{
			reg(RAX, instr.ReadWrite), reg(RBX, instr.Read), reg(RFLAGS, instr.Read),
		})
	})
	t.Run("cmp", func(t *testing.T) {
		checkOperands(t, "4839d8", []opWant{
			reg(RAX, instr.Read), reg(RBX, instr.Read), reg(RFLAGS, instr.Write),
		})
	})
	t.Run("fs load", func(t *testing.T) {
		checkOperands(t, "64488b042528000000", []opWant{
			reg(RAX, instr.Write), mem(0, 8, instr.RegNone, instr.Read), reg(FSBASE, instr.Read),
		})
	})
	t.Run("push", func(t *testing.T) {
		checkOperands(t, "55", []opWant{
			reg(RBP, instr.Read), reg(RSP, instr.ReadWrite), mem(0, 8, RSP, instr.Write),
		})
	})
	t.Run("push mem", func(t *testing.T) {
		checkOperands(t, "ff30", []opWant{
			mem(0, 8, RAX, instr.Read), reg(RSP, instr.ReadWrite), mem(1, 8, RSP, instr.Write),
		})
	})
	t.Run("pop", func(t *testing.T) {
		checkOperands(t, "5d", []opWant{
			reg(RBP, instr.Write), reg(RSP, instr.ReadWrite), mem(0, 8, RSP, instr.Read),
		})
	})
	t.Run("movsb", func(t *testing.T) {
		checkOperands(t, "a4", []opWant{
			mem(0, 1, RDI, instr.Write), reg(RDI, instr.ReadWrite),
			mem(1, 1, RSI, instr.Read), reg(RSI, instr.ReadWrite),
			reg(RFLAGS, instr.Read),
		})
	})
	t.Run("rep stosq", func(t *testing.T) {
		checkOperands(t, "f348ab", []opWant{
			mem(0, 8, RDI, instr.Write), reg(RDI, instr.ReadWrite), reg(RAX, instr.Read),
			reg(RFLAGS, instr.Read), reg(RCX, instr.ReadWrite),
		})
	})
	t.Run("lodsw", func(t *testing.T) {
		checkOperands(t, "66ad", []opWant{
			reg(AX, instr.Write), mem(0, 2, RSI, instr.Read), reg(RSI, instr.ReadWrite),
			reg(RFLAGS, instr.Read),
		})
	})
	t.Run("syscall", func(t *testing.T) {
		checkOperands(t, "0f05", []opWant{
			reg(RAX, instr.Read), reg(RDI, instr.Read), reg(RSI, instr.Read), reg(RDX, instr.Read),
			reg(R10, instr.Read), reg(R8, instr.Read), reg(R9, instr.Read),
			reg(RAX, instr.Write), reg(RCX, instr.Write), reg(R11, instr.Write),
		})
	})
	t.Run("endbr64", func(t *testing.T) {
		checkOperands(t, "f30f1efa", nil)
	})
}

func TestOperandsUnmodelled(t *testing.T) {
	d, err := DecodeHex("d7") // xlatb
	if err != nil {
		t.Fatal(err)
	}
	ops, err := d.Operands()
	if !errors.Is(err, ErrImplicitOperands) {
		t.Fatalf("Operands(%s) error = %v, want ErrImplicitOperands", d, err)
	}
	t.Logf("%s: %d explicit operands", d, len(ops))
}

func TestDefaultShortcuts(t *testing.T) {
	table := DefaultShortcuts()
	if err := table.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := map[string]shortcut.Pair{
		"MOV":       {Write: 0, Read: 1},
		"CMOVNE":    {Write: 0, Read: 1},
		"LODSQ":     {Write: 0, Read: 1},
		"REP_MOVSB": {Write: 0, Read: 2},
		"STOSD":     {Write: 0, Read: 2},
		"POP":       {Write: 0, Read: 2},
		"PUSH":      {Write: 2, Read: 0},
		"VMOVDQU64": {Write: 0, Read: 1},
	}
	for class, p := range want {
		pairs, ok := table.Lookup(class)
		if !ok || len(pairs) != 1 || pairs[0] != p {
			t.Errorf("Lookup(%s) = %v, %v; want [%v]", class, pairs, ok, p)
		}
	}
	if _, ok := table.Lookup("MOVSXD"); ok {
		t.Error("MOVSXD has a shortcut")
	}
	if _, ok := table.Lookup("ADD"); ok {
		t.Error("ADD has a shortcut")
	}

	// Mutating the returned table must not leak into later calls.
	table["MOV"] = nil
	if p, _ := DefaultShortcuts().Lookup("MOV"); len(p) != 1 {
		t.Error("DefaultShortcuts shares state between calls")
	}
}

func TestShortcutsResolveDecoded(t *testing.T) {
	tests := []struct {
		code  string
		write int
		comb  shortcut.Combination
		read  int
	}{
		{"4889d8", 0, shortcut.RegFromReg, 1},
		{"488b0424", 0, shortcut.RegFromMem, 1},
		{"48891e", 0, shortcut.MemFromReg, 1},
		{"f3a4", 0, shortcut.MemFromMem, 2},
		{"55", 2, shortcut.MemFromReg, 0},
		{"5d", 0, shortcut.RegFromMem, 2},
		{"ac", 0, shortcut.RegFromMem, 1},
	}
	table := DefaultShortcuts()
	for _, tt := range tests {
		d, err := DecodeHex(tt.code)
		if err != nil {
			t.Fatal(err)
		}
		ops, err := d.Operands()
		if err != nil {
			t.Fatal(err)
		}
		pairs, ok := table.Lookup(d.Class)
		if !ok {
			t.Fatalf("%s: class %s not in table", d, d.Class)
		}
		ov, err := shortcut.Resolve(pairs, ops)
		if err != nil {
			t.Fatalf("%s: Resolve: %v", d, err)
		}
		got, ok := ov[tt.write]
		if !ok || got.Combination != tt.comb || got.Read != tt.read {
			t.Errorf("%s: override %v, want %s from %d", d, ov, tt.comb, tt.read)
		}
	}
}

func TestArch(t *testing.T) {
	var a Arch
	if a.Name() != "amd64" {
		t.Errorf("Name() = %q", a.Name())
	}
	if a.StackPointer() != RSP || a.InstructionPointer() != RIP || a.FramePointer() != RBP {
		t.Error("unexpected special registers")
	}
	if a.Canonical(EAX) != RAX || a.RegisterName(RAX) != "rax" {
		t.Error("Arch does not delegate to the register tables")
	}
}

func BenchmarkDecode(b *testing.B) {
	code := []byte{0x48, 0x8b, 0x04, 0x24}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d, err := Decode(code)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := d.Operands(); err != nil {
			b.Fatal(err)
		}
	}
}
