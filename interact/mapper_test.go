package interact

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-soundprint/band"
)

func TestNormalizeFlipsY(t *testing.T) {
	tests := []struct {
		px, py, w, h float64
		x, y         float64
	}{
		{0, 0, 100, 50, 0, 1},
		{100, 50, 100, 50, 1, 0},
		{50, 25, 100, 50, 0.5, 0.5},
		{-10, 80, 100, 50, 0, 0},
		{10, 10, 0, 50, 0, 0},
	}
	for _, tt := range tests {
		x, y := Normalize(tt.px, tt.py, tt.w, tt.h)
		if math.Abs(x-tt.x) > 1e-12 || math.Abs(y-tt.y) > 1e-12 {
			t.Fatalf("Normalize(%v,%v,%v,%v) = (%v,%v), want (%v,%v)", tt.px, tt.py, tt.w, tt.h, x, y, tt.x, tt.y)
		}
	}
}

func TestDownLocksAndDeduplicates(t *testing.T) {
	m := NewMapper(NewPerformanceState())
	m.Push(Event{Kind: Down, X: 0.5, Y: 0.9})
	m.Push(Event{Kind: Move, X: 0.501, Y: 0.901})
	s := m.Sample(true)
	if !s.Down {
		t.Fatalf("sample should report pointer down")
	}
	if len(s.Changes) != 1 || s.Changes[0] != (band.Cell{Band: 18, Row: 32}) {
		t.Fatalf("changes = %+v, want one change to {18 32}", s.Changes)
	}

	m.Push(Event{Kind: Move, X: 0.5, Y: 0.9})
	if s := m.Sample(true); len(s.Changes) != 0 {
		t.Fatalf("same row should not re-emit, got %+v", s.Changes)
	}
	if got := m.State().Row(18); got != 32 {
		t.Fatalf("activeRow[18] = %d, want 32", got)
	}
}

func TestHoverDoesNotLock(t *testing.T) {
	m := NewMapper(NewPerformanceState())
	m.Push(Event{Kind: Move, X: 0.2, Y: 0.2})
	s := m.Sample(true)
	if len(s.Changes) != 0 || s.Down {
		t.Fatalf("hover should not lock: %+v", s)
	}
	if s.Pointer != (Vec2{0.2, 0.2}) {
		t.Fatalf("pointer = %+v", s.Pointer)
	}
	m.Push(Event{Kind: Move, X: 0.3, Y: 0.3, Touch: true})
	if s := m.Sample(true); len(s.Changes) != 1 {
		t.Fatalf("touch moves should be forwarded, got %+v", s.Changes)
	}
}

func TestInactiveTracksPointerOnly(t *testing.T) {
	m := NewMapper(NewPerformanceState())
	m.Pointer(0.7, 0.1, true)
	s := m.Sample(false)
	if len(s.Changes) != 0 || m.State().Touched() != 0 {
		t.Fatalf("inactive mapper locked rows")
	}
	if !s.Down || s.Pointer.X != 0.7 {
		t.Fatalf("inactive mapper should still track the pointer: %+v", s)
	}
}

func TestSweepLocksEveryBand(t *testing.T) {
	m := NewMapper(NewPerformanceState())
	m.Pointer(0, 0.5, true)
	for i := 1; i <= 100; i++ {
		m.Pointer(float64(i)/100, 0.5, true)
	}
	m.Pointer(1, 0.5, false)
	s := m.Sample(true)
	if len(s.Changes) != band.Count {
		t.Fatalf("sweep emitted %d changes, want %d", len(s.Changes), band.Count)
	}
	rows := m.State().ActiveRows()
	for b, r := range rows {
		if r != 18 {
			t.Fatalf("band %d row = %d, want 18", b, r)
		}
	}
	if s.Down {
		t.Fatalf("pointer should be up after release")
	}
}

func TestVelocityAndReset(t *testing.T) {
	m := NewMapper(NewPerformanceState())
	m.Pointer(0.1, 0.1, true)
	if s := m.Sample(true); s.Velocity != (Vec2{}) {
		t.Fatalf("first sample velocity = %+v", s.Velocity)
	}
	m.Pointer(0.3, 0.2, true)
	s := m.Sample(true)
	if math.Abs(s.Velocity.X-0.2) > 1e-12 || math.Abs(s.Velocity.Y-0.1) > 1e-12 {
		t.Fatalf("velocity = %+v", s.Velocity)
	}
	if s := m.Sample(true); s.Velocity != (Vec2{}) {
		t.Fatalf("idle frame velocity = %+v", s.Velocity)
	}

	m.Reset()
	if m.State().Touched() != 0 {
		t.Fatalf("Reset should clear locked rows")
	}
	for _, r := range m.State().ActiveRows() {
		if r != band.Untouched {
			t.Fatalf("row %d after reset", r)
		}
	}
	m.Pointer(0.5, 0.5, true)
	if s := m.Sample(true); len(s.Changes) != 1 {
		t.Fatalf("press after reset should be a fresh down")
	}
}

func TestOffGridRowLookup(t *testing.T) {
	s := NewPerformanceState()
	if s.Row(-1) != band.Untouched || s.Row(band.Count) != band.Untouched {
		t.Fatalf("off-grid Row should report untouched")
	}
}
