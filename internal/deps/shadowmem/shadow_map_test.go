package shadowmem

import (
	"math"
	"sync"
	"testing"

	"github.com/kolkov/datadeps/internal/deps/instr"
)

// TestNewMemory verifies that NewMemory creates an empty instance.
func TestNewMemory(t *testing.T) {
	sm := NewMemory()

	if sm == nil {
		t.Fatal("NewMemory() returned nil")
	}
	if sm.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sm.Len())
	}
}

// TestLookupRange_NeverWritten verifies that unwritten bytes are absent.
func TestLookupRange_NeverWritten(t *testing.T) {
	sm := NewMemory()

	if deps := sm.LookupRange(0x1000, 8); deps != nil {
		t.Errorf("LookupRange() = %v, want nil", deps)
	}
	if _, ok := sm.Lookup(0x1000); ok {
		t.Error("Lookup() found a writer in empty memory")
	}
}

// TestRecordRange_ByteGranularity verifies that a narrow store replaces only
// the bytes it covers.
func TestRecordRange_ByteGranularity(t *testing.T) {
	sm := NewMemory()
	sm.RecordRange(0x1000, 4, 0xA)
	sm.RecordWrite(0x1002, 0xB)

	got := sm.LookupRange(0x1000, 4)
	want := []instr.MemDep{
		{Addr: 0x1000, Writer: 0xA},
		{Addr: 0x1001, Writer: 0xA},
		{Addr: 0x1002, Writer: 0xB},
		{Addr: 0x1003, Writer: 0xA},
	}
	if len(got) != len(want) {
		t.Fatalf("LookupRange() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LookupRange()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	t.Logf("LookupRange(0x1000, 4) = %v", got)
}

// TestLookupRange_PartialCoverage verifies that only written bytes are
// reported and order is ascending.
func TestLookupRange_PartialCoverage(t *testing.T) {
	sm := NewMemory()
	sm.RecordWrite(0x2003, 0x1)
	sm.RecordWrite(0x2001, 0x2)

	got := sm.LookupRange(0x2000, 4)
	if len(got) != 2 {
		t.Fatalf("LookupRange() returned %d pairs, want 2: %v", len(got), got)
	}
	if got[0].Addr != 0x2001 || got[1].Addr != 0x2003 {
		t.Errorf("LookupRange() order = %v, want ascending addresses", got)
	}
}

// TestRecordRange_ZeroSize verifies that a zero-sized range is a no-op.
func TestRecordRange_ZeroSize(t *testing.T) {
	sm := NewMemory()
	sm.RecordRange(0x3000, 0, 0x1)

	if sm.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sm.Len())
	}
}

// TestRecordRange_TopOfAddressSpace verifies that a span crossing
// math.MaxUint64 is clamped instead of wrapping to address 0.
func TestRecordRange_TopOfAddressSpace(t *testing.T) {
	sm := NewMemory()
	sm.RecordRange(math.MaxUint64-1, 8, 0xA)

	if sm.Len() != 2 {
		t.Errorf("Len() = %d, want 2", sm.Len())
	}
	if _, ok := sm.Lookup(0); ok {
		t.Error("RecordRange() wrapped to address 0")
	}

	sm.RecordWrite(0, 0xB)
	got := sm.LookupRange(math.MaxUint64, 4)
	if len(got) != 1 || got[0] != (instr.MemDep{Addr: math.MaxUint64, Writer: 0xA}) {
		t.Errorf("LookupRange(MaxUint64, 4) = %v, want only the top byte", got)
	}
	t.Logf("LookupRange(MaxUint64, 4) = %v", got)
}

// TestDo verifies atomic lookup-then-write through Tx.
func TestDo(t *testing.T) {
	sm := NewMemory()
	sm.RecordRange(0x4000, 2, 0x7)

	sm.Do(func(tx *Tx) {
		for _, d := range tx.LookupRange(0x4000, 2) {
			tx.RecordWrite(d.Addr+0x100, d.Writer)
		}
		tx.RecordRange(0x5000, 1, 0x8)
	})

	if w, ok := sm.Lookup(0x4101); !ok || w != 0x7 {
		t.Errorf("Lookup(0x4101) = %v, %v; want 0x7, true", w, ok)
	}
	if w, _ := sm.Lookup(0x5000); w != 0x8 {
		t.Errorf("Lookup(0x5000) = %v, want 0x8", w)
	}

	sm.Reset()
	if sm.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", sm.Len())
	}
}

// TestConcurrentRanges verifies that concurrent range writes to disjoint
// regions are all visible.
func TestConcurrentRanges(t *testing.T) {
	sm := NewMemory()
	const workers = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w uint64) {
			defer wg.Done()
			sm.RecordRange(0x10000+w*0x100, 64, instr.ID(w+1))
		}(uint64(w))
	}
	wg.Wait()

	if sm.Len() != workers*64 {
		t.Errorf("Len() = %d, want %d", sm.Len(), workers*64)
	}
}

func BenchmarkRecordRange8(b *testing.B) {
	sm := NewMemory()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sm.RecordRange(uint64(i&0xFFF)*8, 8, instr.ID(i))
	}
}

func BenchmarkLookupRange8(b *testing.B) {
	sm := NewMemory()
	sm.RecordRange(0x1000, 8, 0x1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = sm.LookupRange(0x1000, 8)
	}
}
