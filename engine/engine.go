// Package engine ties the signal graph, the interaction mapper, the ink
// field, the recorder and the timeline into one performance loop driven by
// the host at display rate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/go-audio/audio"

	"github.com/cwbudde/algo-soundprint/analysis"
	"github.com/cwbudde/algo-soundprint/audiograph"
	"github.com/cwbudde/algo-soundprint/band"
	"github.com/cwbudde/algo-soundprint/capture"
	"github.com/cwbudde/algo-soundprint/decode"
	"github.com/cwbudde/algo-soundprint/interact"
	"github.com/cwbudde/algo-soundprint/sim"
	"github.com/cwbudde/algo-soundprint/timeline"
)

var (
	// ErrNoAudio is returned by Initialize for a missing or empty buffer.
	ErrNoAudio = errors.New("engine: no audio")
	// ErrNotReady is returned by Start without a loaded track or while a
	// run is in progress.
	ErrNotReady = errors.New("engine: not ready")
)

// Decoder turns an encoded file into PCM.
type Decoder func(ctx context.Context, raw []byte) (*audio.Float32Buffer, error)

// CompleteFunc receives the result of a run: the snapshot, the recording
// (nil when capture was unavailable) and the PNG still.
type CompleteFunc func(snap Snapshot, a *capture.Artifact, still []byte)

type pendingRun struct {
	run   uint64
	snap  Snapshot
	still []byte
}

// Engine is one explicitly owned performance instance. Every method except
// Process, Read and OnPointerEvent belongs to the host loop.
type Engine struct {
	cfg Config
	log *slog.Logger

	// OnComplete is called once per run from Frame.
	OnComplete CompleteFunc
	// Decode is used by LoadAsync.
	Decode Decoder

	graph    *audiograph.Graph
	rec      *capture.Recorder
	meter    *analysis.Meter
	state    *interact.PerformanceState
	mapper   *interact.Mapper
	field    *sim.Field
	timeline *timeline.Timeline

	surface *image.RGBA
	frames  *capture.FrameQueue
	buf     *audio.Float32Buffer
	simTime float64
	pending *pendingRun

	mbMu    sync.Mutex
	mailbox []func()

	loadGen  uint64
	degraded int
}

// New builds an engine from cfg.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	c := *cfg
	c.Graph.SampleRate = c.SampleRate
	c.Capture.SampleRate = c.SampleRate
	c.Capture.Channels = audiograph.Channels
	c.Capture.Width, c.Capture.Height = c.Width, c.Height
	if err := c.Validate(); err != nil {
		return nil, err
	}
	log := c.logger()
	if c.Graph.Logger == nil {
		c.Graph.Logger = log
	}
	if c.Capture.Logger == nil {
		c.Capture.Logger = log
	}

	meter, err := analysis.NewMeter(c.Meter)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:      c,
		log:      log,
		Decode:   decode.Decode,
		meter:    meter,
		state:    interact.NewPerformanceState(),
		timeline: timeline.New(),
	}
	if c.CaptureEnabled {
		e.rec = capture.NewRecorder(c.Capture)
	}
	e.graph = audiograph.New(c.Graph, e.rec)
	e.graph.SetMonitor(meter.Push)
	e.mapper = interact.NewMapper(e.state)
	e.surface = image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	e.field = sim.NewField(c.simSize(c.Width, c.Height))
	return e, nil
}

// Initialize loads buf as the track of the next run. It is conformed to the
// engine rate; an in-flight run is abandoned.
func (e *Engine) Initialize(buf *audio.Float32Buffer) error {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return ErrNoAudio
	}
	buf, err := decode.Conform(buf, e.cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoAudio, err)
	}
	if e.timeline.State() != timeline.Idle {
		e.Reset()
	}
	e.buf = buf
	frames := len(buf.Data) / buf.Format.NumChannels
	e.timeline.SetDuration(time.Duration(frames) * time.Second / time.Duration(e.cfg.SampleRate))
	e.log.Info("track loaded", "duration", e.timeline.Duration(), "channels", buf.Format.NumChannels)
	return nil
}

// LoadAsync decodes raw off the host loop and initializes the engine with
// the result at the start of a later Frame. done, if set, runs on the host
// loop with the outcome. A newer LoadAsync supersedes an older one.
func (e *Engine) LoadAsync(ctx context.Context, raw []byte, done func(error)) {
	e.loadGen++
	gen := e.loadGen
	dec := e.Decode
	go func() {
		buf, err := dec(ctx, raw)
		e.post(func() {
			if gen != e.loadGen {
				return
			}
			if err == nil {
				err = e.Initialize(buf)
			}
			if err != nil {
				e.log.Warn("track load failed", "err", err)
			}
			if done != nil {
				done(err)
			}
		})
	}()
}

// OnPointerEvent reports the pointer in unit-square coordinates (y up).
// Safe from any goroutine; applied at the next Frame.
func (e *Engine) OnPointerEvent(x01, y01 float64, pressed bool) {
	e.mapper.Pointer(x01, y01, pressed)
}

// Start begins a run over the loaded track.
func (e *Engine) Start() error {
	if e.buf == nil {
		return ErrNotReady
	}
	run, err := e.timeline.Start()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	e.mapper.Reset()
	e.field.Reset()
	e.meter.Reset()
	e.simTime = 0
	e.pending = nil

	var video capture.VideoSource
	e.frames = nil
	if e.rec != nil && e.cfg.CaptureVideo {
		e.frames = capture.NewFrameQueue(e.cfg.FrameQueue)
		e.rec.SetFrameSize(e.surface.Rect.Dx(), e.surface.Rect.Dy())
		video = e.frames
	}
	err = e.graph.StartPlayback(e.buf, video, func(a *capture.Artifact) {
		e.post(func() { e.playbackDone(run, a) })
	})
	if err != nil {
		e.timeline.Reset()
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	e.log.Info("run started", "run", run, "duration", e.timeline.Duration())
	if e.cfg.Observer != nil {
		e.cfg.Observer.RunStarted(run, e.timeline.Duration())
	}
	return nil
}

// Stop ends the run early. The recording is flushed and OnComplete still
// fires once. Safe at any time.
func (e *Engine) Stop() {
	if e.complete(true) {
		e.graph.Stop()
	}
}

// Reset abandons any run and clears the performance and the field. The
// loaded track is kept.
func (e *Engine) Reset() {
	e.graph.Abort()
	e.timeline.Reset()
	e.mapper.Reset()
	e.field.Reset()
	e.meter.Reset()
	e.simTime = 0
	e.pending = nil
	e.frames = nil
}

// Resize sets the surface size and recreates the field, cleared.
func (e *Engine) Resize(w, h int) {
	w, h = max(1, w), max(1, h)
	if w != e.surface.Rect.Dx() || h != e.surface.Rect.Dy() {
		e.surface = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	e.field.Resize(e.cfg.simSize(w, h))
	e.field.Reset()
}

// Frame advances the performance by dt seconds and returns the rendered
// surface. The image is reused by the next Frame.
func (e *Engine) Frame(dt float64) *image.RGBA {
	e.drain()

	running := e.timeline.State() == timeline.Running
	if running {
		e.timeline.Advance(e.graph.Position(), e.cfg.SampleRate)
		if !e.graph.Playing() {
			e.complete(false)
			running = false
		}
	}

	s := e.mapper.Sample(running)
	for _, c := range s.Changes {
		e.graph.SetBandGain(c.Band, c.Row)
	}

	if dt > 0 {
		e.simTime += dt
	}
	w, h := e.surface.Rect.Dx(), e.surface.Rect.Dy()
	sim.Step(e.field.Front(), sim.Input{
		Time:     e.simTime,
		Aspect:   float64(w) / float64(h),
		PointerX: s.Pointer.X,
		PointerY: s.Pointer.Y,
		VelX:     s.Velocity.X,
		VelY:     s.Velocity.Y,
		Down:     s.Down,
		Active:   running,
	}, e.cfg.Sim, e.field.Back())
	sim.Render(e.field.Back(), e.renderInput(s.Pointer, s.Down, e.timeline.Progress()), e.cfg.Sim, e.surface)
	e.field.Swap()

	if running && e.frames != nil {
		e.frames.Offer(e.surface, e.timeline.Elapsed())
	}
	return e.surface
}

// Process renders interleaved stereo into dst from the audio goroutine.
func (e *Engine) Process(dst []float32) int {
	return e.graph.Process(dst)
}

// Read renders 16-bit stereo PCM for an audio player.
func (e *Engine) Read(p []byte) (int, error) {
	return e.graph.Read(p)
}

// State returns the timeline phase.
func (e *Engine) State() timeline.State { return e.timeline.State() }

// Progress returns the run progress in [0,1].
func (e *Engine) Progress() float64 { return e.timeline.Progress() }

// Remaining returns the audio time left in the run.
func (e *Engine) Remaining() time.Duration { return e.timeline.Remaining() }

// Duration returns the length of the loaded track.
func (e *Engine) Duration() time.Duration { return e.timeline.Duration() }

// ActiveRows returns a copy of the locked rows.
func (e *Engine) ActiveRows() [band.Count]int { return e.state.ActiveRows() }

// Levels returns the live band levels of the output.
func (e *Engine) Levels() [band.Count]float64 { return e.meter.Levels() }

// Gains returns the current equalizer gains in dB.
func (e *Engine) Gains() [band.Count]float64 { return e.graph.Gains() }

// Surface returns the render target.
func (e *Engine) Surface() *image.RGBA { return e.surface }

// DegradedCaptures counts runs that completed without a recording while
// capture was enabled.
func (e *Engine) DegradedCaptures() int { return e.degraded }

// SampleRate returns the output rate.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

func (e *Engine) renderInput(pointer interact.Vec2, down bool, progress float64) sim.RenderInput {
	return sim.RenderInput{
		Time:       e.simTime,
		PointerX:   pointer.X,
		PointerY:   pointer.Y,
		Down:       down,
		Progress:   progress,
		ActiveRows: e.state.ActiveRows(),
	}
}

// post queues fn for the host loop. Safe from any goroutine.
func (e *Engine) post(fn func()) {
	e.mbMu.Lock()
	e.mailbox = append(e.mailbox, fn)
	e.mbMu.Unlock()
}

func (e *Engine) drain() {
	e.mbMu.Lock()
	fns := e.mailbox
	e.mailbox = nil
	e.mbMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// complete latches the run into Completing, freezing the snapshot and the
// still. It reports whether this call took the latch.
func (e *Engine) complete(stopped bool) bool {
	if e.timeline.State() != timeline.Running {
		return false
	}
	e.timeline.Advance(e.graph.Position(), e.cfg.SampleRate)
	if !e.timeline.Complete() {
		return false
	}
	run := e.timeline.Run()
	snap := Snapshot{
		Run:        run,
		ActiveRows: e.state.ActiveRows(),
		Touched:    e.state.Touched(),
		Duration:   e.timeline.Duration(),
		Elapsed:    e.timeline.Elapsed(),
		Stopped:    stopped,
		BandLevels: e.meter.Mean(),
	}
	e.pending = &pendingRun{run: run, snap: snap, still: e.renderStill()}
	e.log.Debug("run completing", "run", run, "stopped", stopped, "elapsed", snap.Elapsed)
	return true
}

func (e *Engine) renderStill() []byte {
	img := image.NewRGBA(e.surface.Rect)
	in := e.renderInput(interact.Vec2{X: 0.5, Y: 0.5}, false, 1)
	sim.Render(e.field.Front(), in, e.cfg.Sim, img)
	still, err := capture.EncodeStill(img)
	if err != nil {
		e.log.Error("still encode failed", "err", err)
		return nil
	}
	return still
}

// playbackDone runs on the host loop once playback ended and the recorder
// flushed.
func (e *Engine) playbackDone(run uint64, a *capture.Artifact) {
	if run != e.timeline.Run() {
		e.log.Debug("stale completion dropped", "run", run)
		return
	}
	e.complete(false)
	p := e.pending
	if p == nil || p.run != run {
		return
	}
	e.pending = nil
	e.frames = nil

	if a == nil && e.rec != nil {
		e.degraded++
		e.log.Warn("run completed without a recording", "run", run, "degraded", e.degraded)
	}
	if a != nil {
		a.Still = p.still
	}
	e.timeline.Finish()
	e.log.Info("run completed", "run", run, "elapsed", p.snap.Elapsed, "touched", p.snap.Touched)

	if e.OnComplete != nil {
		e.OnComplete(p.snap, a, p.still)
	}
	if obs := e.cfg.Observer; obs != nil {
		obs.RunCompleted(run, p.snap.Elapsed, p.snap)
		if a != nil {
			obs.ArtifactProduced(run, len(a.Blob), a.MIMEType)
		}
	}
}
