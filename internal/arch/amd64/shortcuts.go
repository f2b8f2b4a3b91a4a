package amd64

import "github.com/kolkov/datadeps/internal/deps/shortcut"

var (
	destFromSrc   = []shortcut.Pair{{Write: 0, Read: 1}}
	destFromThird = []shortcut.Pair{{Write: 0, Read: 2}}
	stackFromSrc  = []shortcut.Pair{{Write: 2, Read: 0}}
)

// DefaultShortcuts returns the built-in table of data movement classes.
//
// Indices refer to the operand order documented in the package comment;
// class names are x86asm opcode names, with a REP_ prefix for repeated
// string instructions. The EVEX element-size variants of VMOVDQA and VMOVDQU
// are not produced by the decoder but may appear in traces with explicit
// operand lists.
func DefaultShortcuts() shortcut.Table {
	t := shortcut.Table{
		"MOV":    destFromSrc,
		"MOVAPS": destFromSrc,
		"MOVD":   destFromSrc,
		"MOVDQA": destFromSrc,
		"MOVDQU": destFromSrc,
		"MOVQ":   destFromSrc,
		"MOVSX":  destFromSrc,
		"MOVZX":  destFromSrc,
		"POP":    destFromThird,
		"PUSH":   stackFromSrc,
	}
	for _, cc := range []string{"A", "AE", "B", "BE", "E", "G", "GE", "L", "LE", "NE", "NO", "NP", "NS", "O", "P", "S"} {
		t["CMOV"+cc] = destFromSrc
	}
	for _, w := range []string{"B", "W", "D", "Q"} {
		t["LODS"+w] = destFromSrc
		t["REP_LODS"+w] = destFromSrc
		t["MOVS"+w] = destFromThird
		t["REP_MOVS"+w] = destFromThird
		t["STOS"+w] = destFromThird
		t["REP_STOS"+w] = destFromThird
	}
	for _, v := range []string{"VMOVDQA", "VMOVDQA32", "VMOVDQA64", "VMOVDQU", "VMOVDQU8", "VMOVDQU16", "VMOVDQU32", "VMOVDQU64"} {
		t[v] = destFromSrc
	}
	return t.Clone()
}
