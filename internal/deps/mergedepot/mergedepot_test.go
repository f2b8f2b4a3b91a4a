package mergedepot

import (
	"errors"
	"sync"
	"testing"

	"github.com/kolkov/datadeps/internal/deps/instr"
	"github.com/kolkov/datadeps/internal/deps/recorder"
)

func pairs(writers ...instr.ID) []instr.MemDep {
	out := make([]instr.MemDep, len(writers))
	for i, w := range writers {
		out[i] = instr.MemDep{Addr: 0x1000 + uint64(i), Writer: w}
	}
	return out
}

// TestMerge_FirstNode verifies the first id and its dependencies.
func TestMerge_FirstNode(t *testing.T) {
	rec := recorder.New()
	d := New(rec)

	id := d.Merge(pairs(0xA, 0xB))

	if id != instr.MergeTop {
		t.Errorf("first Merge() = %v, want %v", id, instr.MergeTop)
	}
	if id.Kind() != instr.KindMerge {
		t.Errorf("Merge() id kind = %v, want merge", id.Kind())
	}

	deps := rec.MemoryDeps(id)
	if len(deps) != 2 || deps[0].Writer != 0xA || deps[1].Writer != 0xB {
		t.Errorf("node deps = %v, want both pairs", deps)
	}

	label, ok := d.Label(id)
	if !ok || label.Image != LabelImage || label.Offset != 0 {
		t.Errorf("Label() = %+v, %v", label, ok)
	}
	t.Logf("first merge node %v labelled %v", id, label)
}

// TestMerge_Memoized verifies that the same set always yields the same node,
// regardless of pair order.
func TestMerge_Memoized(t *testing.T) {
	d := New(recorder.New())
	p := pairs(0xA, 0xB, 0xA)

	first := d.Merge(p)
	reversed := []instr.MemDep{p[2], p[1], p[0]}
	second := d.Merge(reversed)

	if first != second {
		t.Errorf("Merge() = %v then %v, want the same node", first, second)
	}
	s := d.Stats()
	if s.Nodes != 1 || s.Reused != 1 {
		t.Errorf("Stats() = %+v, want 1 node, 1 reuse", s)
	}
}

// TestMerge_DistinctSets verifies that different sets count down.
func TestMerge_DistinctSets(t *testing.T) {
	d := New(recorder.New())

	a := d.Merge(pairs(0xA, 0xB))
	b := d.Merge(pairs(0xA, 0xC))
	c := d.Merge([]instr.MemDep{{Addr: 0x2000, Writer: 0xA}, {Addr: 0x2001, Writer: 0xB}})

	if a != instr.MergeTop || b != instr.MergeTop-1 || c != instr.MergeTop-2 {
		t.Errorf("Merge() ids = %v, %v, %v; want consecutive from MergeTop", a, b, c)
	}

	lc, _ := d.Label(c)
	if lc.Offset != 2 {
		t.Errorf("third node offset = %d, want 2", lc.Offset)
	}

	got, ok := d.Pairs(b)
	if !ok || got[1].Writer != 0xC {
		t.Errorf("Pairs(%v) = %v, %v", b, got, ok)
	}
	if _, ok := d.Pairs(0x401000); ok {
		t.Error("Pairs() of a real id should fail")
	}
}

// TestMerge_Exhaustion verifies the collision guard with the syscall band.
func TestMerge_Exhaustion(t *testing.T) {
	d := New(recorder.New())
	d.setFloor(instr.MergeTop - 1)

	d.Merge(pairs(1, 2))
	d.Merge(pairs(1, 3))

	defer func() {
		r := recover()
		var ie *instr.InvariantError
		if err, ok := r.(error); !ok || !errors.As(err, &ie) {
			t.Fatalf("recover() = %v, want *instr.InvariantError", r)
		}
		t.Logf("exhaustion: %v", r)
	}()
	d.Merge(pairs(1, 4))
	t.Error("Merge() past the floor did not panic")
}

// TestMerge_Concurrent verifies that racing merges of one set agree on the id.
func TestMerge_Concurrent(t *testing.T) {
	d := New(recorder.New())
	p := pairs(0xA, 0xB, 0xC)

	const workers = 16
	ids := make([]instr.ID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = d.Merge(p)
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got %v, worker 0 got %v", i, ids[i], ids[0])
		}
	}
	if d.Stats().Nodes != 1 {
		t.Errorf("Stats().Nodes = %d, want 1", d.Stats().Nodes)
	}
}

func BenchmarkMerge_Hit(b *testing.B) {
	d := New(nil)
	p := pairs(1, 2, 3, 4, 5, 6, 7, 8)
	d.Merge(p)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Merge(p)
	}
}
