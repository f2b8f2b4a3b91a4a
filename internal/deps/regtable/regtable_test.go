package regtable

import (
	"sync"
	"testing"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// Test registers: 1..4 are sub-registers of 10, 20 is independent.
const (
	al  instr.Reg = 1
	ah  instr.Reg = 2
	ax  instr.Reg = 3
	eax instr.Reg = 4
	rax instr.Reg = 10
	rbx instr.Reg = 20
)

func canon(r instr.Reg) instr.Reg {
	if r >= al && r <= eax {
		return rax
	}
	return r
}

// TestLookup_NeverWritten verifies that unknown registers have no writer.
func TestLookup_NeverWritten(t *testing.T) {
	tbl := New(canon)

	if _, ok := tbl.Lookup(1, rax); ok {
		t.Error("Lookup() on empty table returned a writer")
	}
}

// TestRecordWrite_Canonicalization verifies that partial writes and partial
// reads meet at the container register.
func TestRecordWrite_Canonicalization(t *testing.T) {
	tests := []struct {
		name  string
		write instr.Reg
		read  instr.Reg
	}{
		{"eax write, al read", eax, al},
		{"al write, rax read", al, rax},
		{"ah write, ax read", ah, ax},
		{"rax write, eax read", rax, eax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := New(canon)
			tbl.RecordWrite(1, tt.write, 0x401000)

			got, ok := tbl.Lookup(1, tt.read)
			if !ok || got != 0x401000 {
				t.Errorf("Lookup(%d) = %v, %v; want 0x401000, true", tt.read, got, ok)
			}
		})
	}
}

// TestRecordWrite_Overwrite verifies that the latest writer wins.
func TestRecordWrite_Overwrite(t *testing.T) {
	tbl := New(canon)
	tbl.RecordWrite(1, rax, 0x10)
	tbl.RecordWrite(1, al, 0x20)

	if got, _ := tbl.Lookup(1, rax); got != 0x20 {
		t.Errorf("Lookup() = %v, want 0x20", got)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

// TestRecordWrite_ThreadIsolation verifies that threads never observe each
// other's register writes.
func TestRecordWrite_ThreadIsolation(t *testing.T) {
	tbl := New(canon)
	tbl.RecordWrite(1, rax, 0x10)

	if _, ok := tbl.Lookup(2, rax); ok {
		t.Error("thread 2 observed thread 1's write")
	}

	tbl.RecordWrite(2, rax, 0x20)
	if got, _ := tbl.Lookup(1, rax); got != 0x10 {
		t.Errorf("thread 1 writer = %v, want 0x10", got)
	}
}

// TestNew_NilCanonicalizer verifies the identity fallback.
func TestNew_NilCanonicalizer(t *testing.T) {
	tbl := New(nil)
	tbl.RecordWrite(1, al, 0x10)

	if _, ok := tbl.Lookup(1, rax); ok {
		t.Error("identity canonicalizer merged al into rax")
	}
	if tbl.Canonical(al) != al {
		t.Errorf("Canonical(al) = %d, want %d", tbl.Canonical(al), al)
	}
}

// TestDo verifies that Tx operations see one consistent state.
func TestDo(t *testing.T) {
	tbl := New(canon)
	tbl.RecordWrite(1, rbx, 0x30)

	tbl.Do(func(tx *Tx) {
		w, ok := tx.Lookup(1, rbx)
		if !ok {
			t.Fatal("Tx.Lookup() missed rbx")
		}
		tx.RecordWrite(1, eax, w)
	})

	if got, _ := tbl.Lookup(1, rax); got != 0x30 {
		t.Errorf("rax writer = %v, want 0x30", got)
	}

	tbl.Reset()
	if tbl.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", tbl.Len())
	}
}

// TestConcurrentThreads verifies that concurrent writers on distinct threads
// do not interfere.
func TestConcurrentThreads(t *testing.T) {
	tbl := New(canon)
	const threads = 16
	const writes = 1000

	var wg sync.WaitGroup
	for tid := 0; tid < threads; tid++ {
		wg.Add(1)
		go func(tid instr.ThreadID) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				tbl.RecordWrite(tid, eax, instr.ID(uint64(tid)<<32|uint64(i)))
			}
		}(instr.ThreadID(tid))
	}
	wg.Wait()

	for tid := instr.ThreadID(0); tid < threads; tid++ {
		want := instr.ID(uint64(tid)<<32 | (writes - 1))
		if got, _ := tbl.Lookup(tid, rax); got != want {
			t.Errorf("thread %d writer = %v, want %v", tid, got, want)
		}
	}
}

func BenchmarkRecordWrite(b *testing.B) {
	tbl := New(canon)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tbl.RecordWrite(1, eax, instr.ID(i))
	}
}

func BenchmarkLookup(b *testing.B) {
	tbl := New(canon)
	tbl.RecordWrite(1, rax, 0x10)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tbl.Lookup(1, al)
	}
}
