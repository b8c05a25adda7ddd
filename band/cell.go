package band

import "math"

// Material is the visual class selected by a row.
type Material int

const (
	Water Material = iota
	Smoke
	Fire
)

func (m Material) String() string {
	switch m {
	case Water:
		return "water"
	case Smoke:
		return "smoke"
	case Fire:
		return "fire"
	default:
		return "unknown"
	}
}

// MaterialOfRow splits the rows into thirds: water, smoke, fire.
func MaterialOfRow(row int) Material {
	row = ClampIndex(row, Rows)
	switch {
	case row < Rows/3:
		return Water
	case row < 2*Rows/3:
		return Smoke
	default:
		return Fire
	}
}

// Cell is one (band, row) coordinate.
type Cell struct {
	Band int
	Row  int
}

// Resolve converts a unit-square position into a cell. Inputs outside
// [0,1] (including NaN) are clamped; the result is always on the grid.
func Resolve(x01, y01 float64) Cell {
	return Cell{
		Band: resolveAxis(x01, Count),
		Row:  resolveAxis(y01, Rows),
	}
}

func resolveAxis(v float64, n int) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return n - 1
	}
	return ClampIndex(int(math.Floor(v*float64(n))), n)
}
