// Package audiograph plays a decoded track through a cascade of per-band
// peaking filters and taps the processed signal for capture.
package audiograph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/go-audio/audio"

	"github.com/cwbudde/algo-soundprint/band"
	"github.com/cwbudde/algo-soundprint/capture"
	"github.com/cwbudde/algo-soundprint/dsp"
)

// Channels is the number of output channels rendered by Process.
const Channels = 2

var (
	// ErrNoAudio is returned by StartPlayback for an empty buffer.
	ErrNoAudio = errors.New("audiograph: no audio")
	// ErrSampleRate is returned when the buffer does not match the context rate.
	ErrSampleRate = errors.New("audiograph: sample rate mismatch")
)

// Config holds the graph parameters.
type Config struct {
	SampleRate   int
	Q            float64
	SmoothingTau float64 // seconds
	ControlStep  int     // frames between gain updates
	TapDepth     int     // buffered capture blocks
	OutputGainDB float64
	Logger       *slog.Logger
}

// DefaultConfig returns the graph defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:   48000,
		Q:            1.4,
		SmoothingTau: 0.1,
		ControlStep:  32,
		TapDepth:     256,
	}
}

// Graph is the band equalizer and playback transport. Process is called
// from the audio device goroutine; all other methods from the host loop.
type Graph struct {
	cfg Config
	log *slog.Logger
	rec *capture.Recorder

	mu       sync.Mutex
	ctx      *outputContext
	filters  [Channels][band.Count]*dsp.Biquad
	smooth   [band.Count]*dsp.Smoother
	centers  [band.Count]float64
	outGain  float64
	control  int
	buf      *audio.Float32Buffer
	channels int
	frames   int
	playing  bool
	pending  *join
	tap      chan capture.Block
	scratch  []float32
	monitor  func([]float32)

	pos     atomic.Int64
	dropped atomic.Int64
}

// New builds a graph. rec may be nil, in which case runs complete without
// a recording.
func New(cfg Config, rec *capture.Recorder) *Graph {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.ControlStep <= 0 {
		cfg.ControlStep = 32
	}
	if cfg.TapDepth <= 0 {
		cfg.TapDepth = 256
	}
	if cfg.Q <= 0 {
		cfg.Q = 1.4
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	g := &Graph{cfg: cfg, log: log, rec: rec, outGain: dsp.DBToGain(cfg.OutputGainDB)}
	sr := float64(cfg.SampleRate)
	for b := 0; b < band.Count; b++ {
		g.centers[b] = band.CenterFrequency(b, sr)
		g.smooth[b] = dsp.NewSmoother(cfg.SmoothingTau, cfg.ControlStep, sr)
		for ch := 0; ch < Channels; ch++ {
			g.filters[ch][b] = dsp.NewPeaking(g.centers[b], 0, cfg.Q, sr)
		}
	}
	return g
}

// SetMonitor installs fn to observe every rendered block on the audio
// goroutine. fn must not retain the slice.
func (g *Graph) SetMonitor(fn func([]float32)) {
	g.mu.Lock()
	g.monitor = fn
	g.mu.Unlock()
}

// SampleRate returns the context rate.
func (g *Graph) SampleRate() int {
	return g.cfg.SampleRate
}

// ContextState reports the output context lifecycle.
func (g *Graph) ContextState() ContextState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx == nil {
		return ContextClosed
	}
	return g.ctx.state
}

// Suspend marks the context suspended, as a device does when it stops
// pulling. The next Process of an active run resumes it.
func (g *Graph) Suspend() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx != nil {
		g.ctx.state = ContextSuspended
	}
}

// ensureContextLocked creates the context if missing and resumes it.
func (g *Graph) ensureContextLocked() {
	if g.ctx == nil {
		g.ctx = newOutputContext(g.cfg.SampleRate)
	}
	if g.ctx.state != ContextRunning {
		g.ctx.state = ContextRunning
		g.log.Debug("audio context resumed", "sample_rate", g.cfg.SampleRate)
	}
}

// SetBandGain schedules band b toward the gain of row. Out-of-range
// coordinates are ignored.
func (g *Graph) SetBandGain(b, row int) {
	if !band.ValidCell(b, row) {
		return
	}
	g.mu.Lock()
	g.smooth[b].SetTarget(band.GainDB(row))
	g.mu.Unlock()
}

// Gains returns the current smoothed gain of every band in dB.
func (g *Graph) Gains() [band.Count]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out [band.Count]float64
	for b := range out {
		out[b] = g.smooth[b].Value()
	}
	return out
}

// StartPlayback plays buf from the first frame. video may be nil for an
// audio-only recording. onComplete runs once, after playback ended and the
// recorder flushed; it receives nil when capture was unavailable. It is
// called from a goroutine other than the caller's.
func (g *Graph) StartPlayback(buf *audio.Float32Buffer, video capture.VideoSource, onComplete func(*capture.Artifact)) error {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 || len(buf.Data) < buf.Format.NumChannels {
		return ErrNoAudio
	}
	if buf.Format.SampleRate != g.cfg.SampleRate {
		return fmt.Errorf("%w: buffer %d Hz, context %d Hz", ErrSampleRate, buf.Format.SampleRate, g.cfg.SampleRate)
	}

	g.Abort()

	g.mu.Lock()
	g.ensureContextLocked()
	for b := 0; b < band.Count; b++ {
		g.smooth[b].Jump(0)
		for ch := 0; ch < Channels; ch++ {
			g.filters[ch][b].SetCoefficients(dsp.PeakingCoefficients(g.centers[b], 0, g.cfg.Q, float64(g.cfg.SampleRate)))
			g.filters[ch][b].Reset()
		}
	}
	g.buf = buf
	g.channels = buf.Format.NumChannels
	g.frames = len(buf.Data) / g.channels
	g.control = 0
	g.pos.Store(0)
	g.dropped.Store(0)

	j := newJoin(onComplete)
	g.pending = j
	tap := make(chan capture.Block, g.cfg.TapDepth)
	g.tap = tap
	g.playing = true
	g.mu.Unlock()

	if g.rec == nil {
		j.captureDone(nil)
		return nil
	}
	var frames <-chan capture.Frame
	if video != nil {
		frames = video.Frames()
	}
	if err := g.rec.Begin(tap, frames); err != nil {
		g.log.Warn("capture unavailable", "err", err)
		j.captureDone(nil)
	}
	return nil
}

// Stop ends playback now and flushes the recording; the completion callback
// still fires once. Safe when idle and idempotent.
func (g *Graph) Stop() {
	g.mu.Lock()
	if !g.playing {
		g.mu.Unlock()
		return
	}
	j := g.endLocked()
	g.mu.Unlock()
	g.finish(j)
}

// Abort stops playback and abandons the pending completion.
func (g *Graph) Abort() {
	g.mu.Lock()
	j := g.pending
	g.pending = nil
	if g.playing {
		g.playing = false
		close(g.tap)
	}
	g.tap = nil
	g.mu.Unlock()

	if j != nil {
		j.cancel()
		if g.rec != nil {
			g.rec.Abort()
		}
	}
}

// Playing reports whether a track is being rendered.
func (g *Graph) Playing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playing
}

// Position returns the number of frames played in the current run.
func (g *Graph) Position() int64 {
	return g.pos.Load()
}

// Elapsed returns Position as time.
func (g *Graph) Elapsed() time.Duration {
	return time.Duration(g.pos.Load()) * time.Second / time.Duration(g.cfg.SampleRate)
}

// Duration returns the natural length of the loaded track.
func (g *Graph) Duration() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Duration(g.frames) * time.Second / time.Duration(g.cfg.SampleRate)
}

// TapDropped returns the number of capture blocks dropped in this run.
func (g *Graph) TapDropped() int64 {
	return g.dropped.Load()
}

// Process renders interleaved stereo frames into dst and returns how many
// frames came from the track. The remainder is silence.
func (g *Graph) Process(dst []float32) int {
	for i := range dst {
		dst[i] = 0
	}
	n := len(dst) / Channels

	g.mu.Lock()
	if !g.playing {
		g.mu.Unlock()
		return 0
	}
	g.ensureContextLocked()

	start := g.pos.Load()
	pos := int(start)
	rendered := 0
	data := g.buf.Data
	for i := 0; i < n && pos < g.frames; i++ {
		if g.control == 0 {
			g.updateControlLocked()
		}
		g.control = (g.control + 1) % g.cfg.ControlStep

		base := pos * g.channels
		l := float64(data[base])
		r := l
		if g.channels > 1 {
			r = float64(data[base+1])
		}
		for b := 0; b < band.Count; b++ {
			l = g.filters[0][b].Process(l)
			r = g.filters[1][b].Process(r)
		}
		dst[2*i] = float32(l * g.outGain)
		dst[2*i+1] = float32(r * g.outGain)
		pos++
		rendered++
	}
	g.pos.Store(int64(pos))

	if rendered > 0 {
		block := make([]float32, rendered*Channels)
		copy(block, dst[:rendered*Channels])
		select {
		case g.tap <- capture.Block{Pos: start, Samples: block}:
		default:
			g.dropped.Add(1)
		}
	}

	var j *join
	if pos >= g.frames {
		j = g.endLocked()
	}
	monitor := g.monitor
	g.mu.Unlock()

	if monitor != nil && rendered > 0 {
		monitor(dst[:rendered*Channels])
	}
	if j != nil {
		g.finish(j)
	}
	return rendered
}

// Read renders 16-bit little-endian stereo for audio device players. It
// always fills p so the device keeps pulling after the track ends.
func (g *Graph) Read(p []byte) (int, error) {
	frames := len(p) / (2 * Channels)
	need := frames * Channels
	if cap(g.scratch) < need {
		g.scratch = make([]float32, need)
	}
	buf := g.scratch[:need]
	g.Process(buf)
	for i, v := range buf {
		x := math.Max(-1, math.Min(1, float64(v)))
		binary.LittleEndian.PutUint16(p[2*i:], uint16(int16(x*32767)))
	}
	for i := need * 2; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

// ResponseDB evaluates the cascade magnitude at freqs using the current
// smoothed gains.
func (g *Graph) ResponseDB(freqs []float64) []float64 {
	gains := g.Gains()
	sr := float64(g.cfg.SampleRate)
	sections := make([]*biquad.Section, 0, band.Count)
	for b := 0; b < band.Count; b++ {
		if gains[b] == 0 {
			continue
		}
		sections = append(sections, biquad.NewSection(design.Peak(g.centers[b], gains[b], g.cfg.Q, sr)))
	}
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		h := complex(1, 0)
		for _, s := range sections {
			h *= s.Response(f, sr)
		}
		out[i] = 20*math.Log10(math.Max(cmplx.Abs(h), 1e-12)) + 20*math.Log10(g.outGain)
	}
	return out
}

func (g *Graph) updateControlLocked() {
	sr := float64(g.cfg.SampleRate)
	for b := 0; b < band.Count; b++ {
		s := g.smooth[b]
		if s.Settled() {
			continue
		}
		c := dsp.PeakingCoefficients(g.centers[b], s.Next(), g.cfg.Q, sr)
		g.filters[0][b].SetCoefficients(c)
		g.filters[1][b].SetCoefficients(c)
	}
}

// endLocked stops the transport and closes the capture tap. The caller
// must run finish on the returned join after releasing g.mu.
func (g *Graph) endLocked() *join {
	g.playing = false
	close(g.tap)
	g.tap = nil
	j := g.pending
	g.pending = nil
	if d := g.dropped.Load(); d > 0 {
		g.log.Warn("capture tap dropped blocks", "blocks", d)
	}
	return j
}

func (g *Graph) finish(j *join) {
	if j == nil {
		return
	}
	j.playbackEnded()
	if g.rec == nil {
		return
	}
	done := g.rec.End()
	go func() {
		j.captureDone(<-done)
	}()
}
