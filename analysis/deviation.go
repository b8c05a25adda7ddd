package analysis

import (
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-soundprint/band"
)

// Deviation describes how far a performance moved the processed output away
// from the source track.
type Deviation struct {
	SampleRate int `json:"sample_rate"`
	Frames     int `json:"frames"`

	// BandDB is the processed minus source level per grid band.
	BandDB     [band.Count]float64 `json:"band_db"`
	SpectralDB float64             `json:"spectral_rmse_db"`
	TimeRMSE   float64             `json:"time_rmse"`
}

// Compare measures processed against source. Both are mono and aligned at
// the first sample; the shorter length is used.
func Compare(source, processed []float64, sampleRate int) Deviation {
	d := Deviation{SampleRate: sampleRate}
	n := min(len(source), len(processed))
	if n == 0 || sampleRate <= 0 {
		return d
	}
	d.Frames = n
	d.TimeRMSE = rmse(source[:n], processed[:n])

	const fftSize = 4096
	if n < fftSize {
		return d
	}
	plan, err := algofft.NewPlanReal64(fftSize)
	if err != nil {
		return d
	}

	hann := make([]float64, fftSize)
	for i := range hann {
		hann[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
	}
	spec := make([]complex128, fftSize/2+1)
	buf := make([]float64, fftSize)
	bins := fftSize / 2
	avgSrc := make([]float64, bins)
	avgProc := make([]float64, bins)

	hop := fftSize / 2
	frames := 0
	for pos := 0; pos+fftSize <= n; pos += hop {
		for i := range buf {
			buf[i] = source[pos+i] * hann[i]
		}
		plan.Forward(spec, buf)
		for k := 1; k < bins; k++ {
			avgSrc[k] += cmplx.Abs(spec[k])
		}
		for i := range buf {
			buf[i] = processed[pos+i] * hann[i]
		}
		plan.Forward(spec, buf)
		for k := 1; k < bins; k++ {
			avgProc[k] += cmplx.Abs(spec[k])
		}
		frames++
	}

	var sum float64
	for k := 1; k < bins; k++ {
		diff := linToDB(avgProc[k]/float64(frames)) - linToDB(avgSrc[k]/float64(frames))
		sum += diff * diff
	}
	d.SpectralDB = math.Sqrt(sum / float64(bins-1))

	// Band levels use the filter centers so BandDB lines up with the grid.
	binHz := float64(sampleRate) / fftSize
	for b := 0; b < band.Count; b++ {
		center := band.CenterFrequency(b, float64(sampleRate))
		lo := max(1, int(center/math.Cbrt(2)/binHz))
		hi := min(bins-1, max(lo, int(center*math.Cbrt(2)/binHz)))
		var es, ep float64
		for k := lo; k <= hi; k++ {
			es += avgSrc[k] * avgSrc[k]
			ep += avgProc[k] * avgProc[k]
		}
		d.BandDB[b] = 10*math.Log10(math.Max(ep, 1e-24)) - 10*math.Log10(math.Max(es, 1e-24))
	}
	return d
}

func rmse(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}
