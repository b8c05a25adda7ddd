// Package band holds the fixed 36×36 performance grid: per-band palette and
// filter centers, row → gain mapping and the row → material split.
package band

import "math"

const (
	// Count is the number of frequency columns.
	Count = 36
	// Rows is the number of gain levels per band.
	Rows = 36
	// RangeDB is the full gain span covered by the rows (−RangeDB/2..+RangeDB/2).
	RangeDB = 36.0
	// Untouched marks a band the performer never locked.
	Untouched = -1

	baseFreqHz     = 20.0
	bandsPerOctave = 3.0
)

// RGB is an 8-bit palette color.
type RGB struct {
	R, G, B uint8
}

// Float returns the color scaled to [0,1].
func (c RGB) Float() (r, g, b float64) {
	return float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255
}

// Info describes one column of the grid.
type Info struct {
	Index    int
	Color    RGB
	CenterHz float64
}

var palette = [Count]RGB{
	// verdant pulse
	{161, 205, 18}, {136, 194, 18}, {111, 183, 18}, {86, 172, 18}, {61, 161, 18}, {36, 150, 18},
	// ember rise
	{150, 18, 27}, {157, 35, 24}, {164, 52, 21}, {171, 69, 18}, {178, 86, 15}, {185, 103, 12},
	{192, 120, 9}, {196, 133, 9}, {200, 146, 12}, {204, 159, 12}, {208, 172, 15}, {212, 185, 15},
	// abyssal spectrum
	{36, 131, 126}, {30, 112, 144}, {24, 93, 162}, {18, 74, 180}, {12, 55, 198}, {6, 36, 216},
	{27, 33, 189}, {48, 33, 162}, {69, 30, 144}, {81, 27, 117}, {102, 27, 90}, {123, 24, 63},
	// solar crest
	{216, 201, 18}, {210, 204, 18}, {204, 207, 18}, {198, 210, 18}, {192, 213, 18}, {186, 216, 18},
}

var infos = func() [Count]Info {
	var out [Count]Info
	for i := range out {
		out[i] = Info{
			Index:    i,
			Color:    palette[i],
			CenterHz: baseFreqHz * math.Pow(2, float64(i)/bandsPerOctave),
		}
	}
	return out
}()

// All returns a copy of the band table.
func All() [Count]Info {
	return infos
}

// At returns the info for band i.
func At(i int) (Info, bool) {
	if i < 0 || i >= Count {
		return Info{}, false
	}
	return infos[i], true
}

// Color returns the palette color of band i, clamping i into range.
func Color(i int) RGB {
	return palette[ClampIndex(i, Count)]
}

// CenterFrequency returns the filter center of band i, kept below
// maxFraction of the sample rate so high bands stay realizable.
func CenterFrequency(i int, sampleRate float64) float64 {
	f := infos[ClampIndex(i, Count)].CenterHz
	if sampleRate > 0 {
		limit := sampleRate * 0.45
		if f > limit {
			f = limit
		}
	}
	return f
}

// GainDB maps a row to its equalizer gain.
func GainDB(row int) float64 {
	return float64(row)/float64(Rows-1)*RangeDB - RangeDB/2
}

// ValidCell reports whether (b, r) addresses the grid.
func ValidCell(b, r int) bool {
	return b >= 0 && b < Count && r >= 0 && r < Rows
}

// ClampIndex constrains i to [0, n-1].
func ClampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
