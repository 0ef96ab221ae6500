package buffer

import (
	"testing"

	"github.com/emer/beamcam/tensor"
)

func block(m, n, b int, fill func(mi, ni, bi int) float32) *tensor.Dense[float32] {
	t, err := tensor.New[float32](m, n, b)
	if err != nil {
		panic(err)
	}
	for mi := 0; mi < m; mi++ {
		for ni := 0; ni < n; ni++ {
			for bi := 0; bi < b; bi++ {
				t.Set(fill(mi, ni, bi), mi, ni, bi)
			}
		}
	}
	return t
}

func TestRecordAudioRejectsWrongShape(t *testing.T) {
	d, err := New(2, 2, 8)
	if err != nil {
		t.Fatal(err)
	}
	bad, _ := tensor.New[float32](2, 2, 4)
	if err := d.RecordAudio(bad); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestDoubleBufferLogicalIndexing(t *testing.T) {
	d, err := New(1, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	first := block(1, 1, 4, func(_, _, bi int) float32 { return float32(bi) }) // 0,1,2,3
	if err := d.RecordAudio(first); err != nil {
		t.Fatal(err)
	}
	// previous is still zero-valued at this point.
	if got := d.At(0, 0, 0); got != 0 {
		t.Fatalf("current[0] = %v, want 0", got)
	}
	if got := d.At(0, 0, -1); got != 0 {
		t.Fatalf("previous reach before any real previous block should be 0, got %v", got)
	}

	second := block(1, 1, 4, func(_, _, bi int) float32 { return float32(10 + bi) }) // 10,11,12,13
	if err := d.RecordAudio(second); err != nil {
		t.Fatal(err)
	}
	// current is now second: 10,11,12,13
	for bi := 0; bi < 4; bi++ {
		if got := d.At(0, 0, bi); got != float32(10+bi) {
			t.Fatalf("current[%d] = %v, want %v", bi, got, 10+bi)
		}
	}
	// previous is first (0,1,2,3); b=-1 should reach first[3]=3, b=-4 should reach first[0]=0.
	if got := d.At(0, 0, -1); got != 3 {
		t.Fatalf("previous reach b=-1 = %v, want 3", got)
	}
	if got := d.At(0, 0, -4); got != 0 {
		t.Fatalf("previous reach b=-4 = %v, want 0", got)
	}
}

func TestAtPanicsOutOfRange(t *testing.T) {
	d, _ := New(1, 1, 4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range logical index")
		}
	}()
	d.At(0, 0, 4)
}
