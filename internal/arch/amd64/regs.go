package amd64

import (
	"strconv"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// Registers decoded by x86asm keep their x86asm numbering; registers the
// decoder does not model are numbered from 256 upwards.
const (
	RAX = instr.Reg(x86asm.RAX)
	RCX = instr.Reg(x86asm.RCX)
	RDX = instr.Reg(x86asm.RDX)
	RBX = instr.Reg(x86asm.RBX)
	RSP = instr.Reg(x86asm.RSP)
	RBP = instr.Reg(x86asm.RBP)
	RSI = instr.Reg(x86asm.RSI)
	RDI = instr.Reg(x86asm.RDI)
	R8  = instr.Reg(x86asm.R8)
	R9  = instr.Reg(x86asm.R9)
	R10 = instr.Reg(x86asm.R10)
	R11 = instr.Reg(x86asm.R11)
	R12 = instr.Reg(x86asm.R12)
	R13 = instr.Reg(x86asm.R13)
	R14 = instr.Reg(x86asm.R14)
	R15 = instr.Reg(x86asm.R15)
	RIP = instr.Reg(x86asm.RIP)

	EAX = instr.Reg(x86asm.EAX)
	AX  = instr.Reg(x86asm.AX)
	AL  = instr.Reg(x86asm.AL)
	AH  = instr.Reg(x86asm.AH)

	X0 = instr.Reg(x86asm.X0)

	FS = instr.Reg(x86asm.FS)
	GS = instr.Reg(x86asm.GS)
)

const (
	RFLAGS instr.Reg = 256 + iota
	MXCSR
	FSBASE
	GSBASE
	// XMM16 is the first of the EVEX-only vector registers xmm16..xmm31.
	XMM16
)

const (
	// YMM0 starts ymm0..ymm15, aliases of xmm0..xmm15.
	YMM0 = XMM16 + 16 + iota*16
	// ZMM0 starts zmm0..zmm31, aliases of xmm0..xmm31.
	ZMM0
)

// Canonical maps a register to the full-width register containing it:
// al, ah, ax and eax all become rax; ymm3 and zmm3 become xmm3.
func Canonical(r instr.Reg) instr.Reg {
	if r < 256 {
		return instr.Reg(canonical8(x86asm.Reg(r)))
	}
	switch {
	case r >= YMM0 && r < YMM0+16:
		return X0 + (r - YMM0)
	case r >= ZMM0 && r < ZMM0+16:
		return X0 + (r - ZMM0)
	case r >= ZMM0+16 && r < ZMM0+32:
		return XMM16 + (r - ZMM0 - 16)
	}
	return r
}

func canonical8(r x86asm.Reg) x86asm.Reg {
	switch {
	case r >= x86asm.AL && r <= x86asm.BL:
		return x86asm.RAX + (r - x86asm.AL)
	case r >= x86asm.AH && r <= x86asm.BH:
		return x86asm.RAX + (r - x86asm.AH)
	case r >= x86asm.SPB && r <= x86asm.DIB:
		return x86asm.RSP + (r - x86asm.SPB)
	case r >= x86asm.R8B && r <= x86asm.R15B:
		return x86asm.R8 + (r - x86asm.R8B)
	case r >= x86asm.AX && r <= x86asm.R15W:
		return x86asm.RAX + (r - x86asm.AX)
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return x86asm.RAX + (r - x86asm.EAX)
	case r == x86asm.IP || r == x86asm.EIP:
		return x86asm.RIP
	}
	return r
}

var (
	names  = buildNames()
	byName = buildIndex()
)

func buildNames() map[instr.Reg]string {
	m := make(map[instr.Reg]string)
	set := func(first x86asm.Reg, list ...string) {
		for i, n := range list {
			m[instr.Reg(first)+instr.Reg(i)] = n
		}
	}
	set(x86asm.AL, "al", "cl", "dl", "bl", "ah", "ch", "dh", "bh", "spl", "bpl", "sil", "dil",
		"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b")
	set(x86asm.AX, "ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
		"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w")
	set(x86asm.EAX, "eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
		"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d")
	set(x86asm.RAX, "rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15")
	set(x86asm.IP, "ip", "eip", "rip")
	set(x86asm.ES, "es", "cs", "ss", "ds", "fs", "gs")
	numbered := func(first instr.Reg, prefix string, n int) {
		for i := range n {
			m[first+instr.Reg(i)] = prefix + strconv.Itoa(i)
		}
	}
	numbered(instr.Reg(x86asm.F0), "st", 8)
	numbered(instr.Reg(x86asm.M0), "mm", 8)
	numbered(X0, "xmm", 16)
	numbered(instr.Reg(x86asm.CR0), "cr", 16)
	numbered(instr.Reg(x86asm.DR0), "dr", 16)
	numbered(instr.Reg(x86asm.TR0), "tr", 8)
	m[RFLAGS] = "rflags"
	m[MXCSR] = "mxcsr"
	m[FSBASE] = "fs_base"
	m[GSBASE] = "gs_base"
	for i := range 16 {
		m[XMM16+instr.Reg(i)] = "xmm" + strconv.Itoa(16+i)
	}
	numbered(YMM0, "ymm", 16)
	numbered(ZMM0, "zmm", 32)
	return m
}

func buildIndex() map[string]instr.Reg {
	m := make(map[string]instr.Reg, len(names)+8)
	for r, n := range names {
		m[n] = r
	}
	// Spellings used by other tools.
	m["eflags"] = RFLAGS
	m["flags"] = RFLAGS
	m["fsbase"] = FSBASE
	m["gsbase"] = GSBASE
	for r := x86asm.AL; r <= x86asm.TR7; r++ {
		if s := strings.ToLower(r.String()); s != "" {
			if _, taken := m[s]; !taken {
				m[s] = instr.Reg(r)
			}
		}
	}
	return m
}

// RegisterName returns the lowercase name of r, e.g. "rax" or "xmm3".
func RegisterName(r instr.Reg) string {
	if n, ok := names[r]; ok {
		return n
	}
	return "reg" + strconv.Itoa(int(r))
}

// ParseRegister resolves a register name. Lookup is case-insensitive and
// accepts both the names RegisterName returns and x86asm spellings such as
// "R8L" or "X3".
func ParseRegister(name string) (instr.Reg, bool) {
	r, ok := byName[strings.ToLower(name)]
	return r, ok
}

// FromX86 converts an x86asm register.
func FromX86(r x86asm.Reg) instr.Reg { return instr.Reg(r) }
