// Package interact maps pointer input onto the band grid and owns the
// per-band locked rows of a performance.
package interact

import "github.com/cwbudde/algo-soundprint/band"

// PerformanceState holds the last row locked per band. Only a Mapper
// writes it; everyone else reads copies.
type PerformanceState struct {
	activeRow [band.Count]int
}

// NewPerformanceState returns a state with every band untouched.
func NewPerformanceState() *PerformanceState {
	s := &PerformanceState{}
	s.reset()
	return s
}

// ActiveRows returns a copy of the locked rows; band.Untouched marks a band
// never visited.
func (s *PerformanceState) ActiveRows() [band.Count]int {
	return s.activeRow
}

// Row returns the locked row of band b, band.Untouched if none or b is off
// the grid.
func (s *PerformanceState) Row(b int) int {
	if b < 0 || b >= band.Count {
		return band.Untouched
	}
	return s.activeRow[b]
}

// Touched counts the bands with a locked row.
func (s *PerformanceState) Touched() int {
	n := 0
	for _, r := range s.activeRow {
		if r != band.Untouched {
			n++
		}
	}
	return n
}

func (s *PerformanceState) reset() {
	for i := range s.activeRow {
		s.activeRow[i] = band.Untouched
	}
}

// lock records row for b and reports whether it changed.
func (s *PerformanceState) lock(c band.Cell) bool {
	if s.activeRow[c.Band] == c.Row {
		return false
	}
	s.activeRow[c.Band] = c.Row
	return true
}
