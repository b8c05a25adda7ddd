// Package analysis measures the processed output: a 36-band level meter for
// the sound print and a spectral deviation against the source track.
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-soundprint/band"
)

// MeterConfig controls the analyser.
type MeterConfig struct {
	FFTSize   int
	Hop       int
	Smoothing float64 // per-bin magnitude smoothing in [0,1)
	MinDB     float64
	MaxDB     float64
}

// DefaultMeterConfig mirrors a browser analyser node: 2048-point FFT,
// 0.82 smoothing and a −100..−30 dB display range.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		FFTSize:   2048,
		Hop:       1024,
		Smoothing: 0.82,
		MinDB:     -100,
		MaxDB:     -30,
	}
}

// Meter accumulates band levels from interleaved stereo blocks. Push may be
// called from the audio goroutine while readers poll Levels.
type Meter struct {
	cfg     MeterConfig
	forward func(dst []complex128, src []float64)
	window  []float64

	mu      sync.Mutex
	ring    []float64
	fill    int
	pending int
	frame   []float64
	spec    []complex128
	smooth  []float64
	levels  [band.Count]float64
	sum     [band.Count]float64
	frames  int
	edges   [band.Count][2]int
}

// NewMeter builds a meter. FFTSize must be a power of two.
func NewMeter(cfg MeterConfig) (*Meter, error) {
	if cfg.FFTSize < 64 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, fmt.Errorf("analysis: fft size %d is not a power of two >= 64", cfg.FFTSize)
	}
	if cfg.Hop <= 0 || cfg.Hop > cfg.FFTSize {
		cfg.Hop = cfg.FFTSize / 2
	}
	if cfg.MaxDB <= cfg.MinDB {
		return nil, fmt.Errorf("analysis: max dB must exceed min dB")
	}
	plan, err := algofft.NewPlanReal64(cfg.FFTSize)
	if err != nil {
		return nil, fmt.Errorf("analysis: fft plan: %w", err)
	}

	n := cfg.FFTSize
	m := &Meter{
		cfg:     cfg,
		forward: func(dst []complex128, src []float64) { plan.Forward(dst, src) },
		window:  make([]float64, n),
		ring:    make([]float64, n),
		frame:   make([]float64, n),
		spec:    make([]complex128, n/2+1),
		smooth:  make([]float64, n/2),
	}
	for i := range m.window {
		m.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	m.edges = BandBins(n / 2)
	return m, nil
}

// BandBins maps the 36 bands onto bins with squared spacing so low bands
// stay narrow. Each entry is an inclusive [lo, hi] range.
func BandBins(bins int) [band.Count][2]int {
	var out [band.Count][2]int
	for i := 0; i < band.Count; i++ {
		lo := float64(i) / band.Count
		hi := float64(i+1) / band.Count
		out[i][0] = int(math.Floor(lo * lo * float64(bins)))
		out[i][1] = min(int(math.Floor(hi*hi*float64(bins))), bins-1)
	}
	return out
}

// Push feeds interleaved stereo samples.
func (m *Meter) Push(stereo []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.ring)
	for i := 0; i+1 < len(stereo); i += 2 {
		m.ring[m.fill%n] = 0.5 * (float64(stereo[i]) + float64(stereo[i+1]))
		m.fill++
		m.pending++
		if m.pending >= m.cfg.Hop && m.fill >= n {
			m.pending = 0
			m.analyzeLocked()
		}
	}
}

func (m *Meter) analyzeLocked() {
	n := len(m.ring)
	start := m.fill % n
	for i := 0; i < n; i++ {
		m.frame[i] = m.ring[(start+i)%n] * m.window[i]
	}
	m.forward(m.spec, m.frame)

	tau := m.cfg.Smoothing
	span := m.cfg.MaxDB - m.cfg.MinDB
	for k := range m.smooth {
		mag := cmplx.Abs(m.spec[k]) / float64(n)
		m.smooth[k] = tau*m.smooth[k] + (1-tau)*mag
	}
	for b, e := range m.edges {
		var sum float64
		for k := e[0]; k <= e[1]; k++ {
			db := linToDB(m.smooth[k])
			sum += clamp01((db - m.cfg.MinDB) / span)
		}
		lvl := sum / float64(e[1]-e[0]+1)
		m.levels[b] = lvl
		m.sum[b] += lvl
	}
	m.frames++
}

// Levels returns the latest band levels in [0,1].
func (m *Meter) Levels() [band.Count]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels
}

// Mean returns the band levels averaged over every analysed frame.
func (m *Meter) Mean() [band.Count]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [band.Count]float64
	if m.frames == 0 {
		return out
	}
	for i := range out {
		out[i] = m.sum[i] / float64(m.frames)
	}
	return out
}

// Frames returns the number of analysed frames.
func (m *Meter) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Reset clears history for a new run.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.ring)
	clear(m.smooth)
	m.fill, m.pending, m.frames = 0, 0, 0
	m.levels = [band.Count]float64{}
	m.sum = [band.Count]float64{}
}

func linToDB(x float64) float64 {
	if x < 1e-12 {
		x = 1e-12
	}
	return 20.0 * math.Log10(x)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
