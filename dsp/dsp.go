package dsp

import (
	"math"

	"github.com/cwbudde/algo-approx"
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// Coefficients are normalized biquad coefficients (a0 == 1).
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Biquad implements a second-order IIR filter (no heap allocations in Process)
type Biquad struct {
	c Coefficients

	// State (previous samples)
	x1, x2 float64 // input history
	y1, y2 float64 // output history
}

// NewBiquad creates a new biquad filter with the given coefficients
func NewBiquad(c Coefficients) *Biquad {
	return &Biquad{c: c}
}

// SetCoefficients swaps the transfer function but keeps the filter history,
// so a gain change does not restart the filter.
func (b *Biquad) SetCoefficients(c Coefficients) {
	b.c = c
}

// Coefficients returns the active coefficients.
func (b *Biquad) Coefficients() Coefficients {
	return b.c
}

// Process processes one sample through the biquad filter
func (b *Biquad) Process(input float64) float64 {
	// Direct Form I implementation
	output := b.c.B0*input + b.c.B1*b.x1 + b.c.B2*b.x2 - b.c.A1*b.y1 - b.c.A2*b.y2
	output = dspcore.FlushDenormals(output)

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output

	return output
}

// Reset clears the filter state
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// PeakingCoefficients designs an RBJ peaking-EQ section. Centers at or
// above Nyquist are pulled just below it so the band stays audible.
func PeakingCoefficients(centerHz, gainDB, q, sampleRate float64) Coefficients {
	if q <= 0 {
		q = 1 / math.Sqrt2
	}
	nyquist := sampleRate / 2
	if centerHz >= nyquist {
		centerHz = nyquist * 0.99
	}
	if centerHz <= 0 {
		centerHz = 1
	}
	return fromSection(design.Peak(centerHz, gainDB, q, sampleRate))
}

func fromSection(c biquad.Coefficients) Coefficients {
	return Coefficients{B0: c.B0, B1: c.B1, B2: c.B2, A1: c.A1, A2: c.A2}
}

// NewPeaking creates a peaking biquad at the given center and gain.
func NewPeaking(centerHz, gainDB, q, sampleRate float64) *Biquad {
	return NewBiquad(PeakingCoefficients(centerHz, gainDB, q, sampleRate))
}

// MagnitudeDB evaluates |H(e^jw)| in dB at freq.
func (c Coefficients) MagnitudeDB(freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	cos1, sin1 := math.Cos(w), math.Sin(w)
	cos2, sin2 := math.Cos(2*w), math.Sin(2*w)
	numRe := c.B0 + c.B1*cos1 + c.B2*cos2
	numIm := -(c.B1*sin1 + c.B2*sin2)
	denRe := 1 + c.A1*cos1 + c.A2*cos2
	denIm := -(c.A1*sin1 + c.A2*sin2)
	num := math.Hypot(numRe, numIm)
	den := math.Hypot(denRe, denIm)
	if den == 0 {
		return math.Inf(1)
	}
	return 20 * math.Log10(math.Max(1e-12, num/den))
}

// Smoother performs a first-order exponential approach toward a target,
// evaluated every step samples (Web Audio setTargetAtTime semantics).
type Smoother struct {
	current float64
	target  float64
	coeff   float64
}

// NewSmoother builds a smoother with time constant tau seconds, advanced in
// blocks of step samples.
func NewSmoother(tau float64, step int, sampleRate float64) *Smoother {
	s := &Smoother{}
	s.SetTimeConstant(tau, step, sampleRate)
	return s
}

// SetTimeConstant recomputes the per-step approach coefficient.
func (s *Smoother) SetTimeConstant(tau float64, step int, sampleRate float64) {
	if tau <= 0 || sampleRate <= 0 || step <= 0 {
		s.coeff = 1
		return
	}
	s.coeff = 1 - float64(approx.FastExp(float32(-float64(step)/(tau*sampleRate))))
}

// SetTarget sets the value to approach.
func (s *Smoother) SetTarget(v float64) {
	s.target = v
}

// Jump sets both current and target.
func (s *Smoother) Jump(v float64) {
	s.current = v
	s.target = v
}

// Next advances one step and returns the new value.
func (s *Smoother) Next() float64 {
	d := s.target - s.current
	if math.Abs(d) < 1e-4 {
		s.current = s.target
		return s.current
	}
	s.current += d * s.coeff
	return s.current
}

// Value returns the current value without advancing.
func (s *Smoother) Value() float64 {
	return s.current
}

// Settled reports whether current has reached target.
func (s *Smoother) Settled() bool {
	return s.current == s.target
}

// DBToGain converts decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	const ln10over20 = 0.11512925464970229
	return float64(approx.FastExp(float32(db * ln10over20)))
}

// FlushDenormals converts denormal numbers to zero to avoid performance issues
func FlushDenormals(x float64) float64 {
	return dspcore.FlushDenormals(x)
}
