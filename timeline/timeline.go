// Package timeline tracks one performance run: Idle → Running → Completing
// → Idle, keyed to the audio clock.
package timeline

import (
	"errors"
	"sync/atomic"
	"time"
)

// State is the run phase.
type State int32

const (
	Idle State = iota
	Running
	Completing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completing:
		return "completing"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady is returned by Start before a track is loaded.
	ErrNotReady = errors.New("timeline: audio not ready")
	// ErrNotIdle is returned by Start while a run is in flight.
	ErrNotIdle = errors.New("timeline: run in progress")
)

// Timeline owns elapsed time and progress of the current run. The state
// is atomic so the completion latch can be raced from any goroutine; the
// clock fields belong to the host loop.
type Timeline struct {
	state atomic.Int32
	run   atomic.Uint64

	duration time.Duration
	elapsed  time.Duration
	progress float64
}

// New returns an idle timeline without a track.
func New() *Timeline {
	return &Timeline{}
}

// SetDuration records the loaded track length. A positive duration marks
// audio as ready.
func (t *Timeline) SetDuration(d time.Duration) {
	t.duration = d
}

// Duration returns the track length.
func (t *Timeline) Duration() time.Duration {
	return t.duration
}

// Ready reports whether a run can start.
func (t *Timeline) Ready() bool {
	return t.duration > 0 && t.State() == Idle
}

// Start enters Running and resets the clock. It returns the new run id.
func (t *Timeline) Start() (uint64, error) {
	if t.duration <= 0 {
		return 0, ErrNotReady
	}
	if !t.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return 0, ErrNotIdle
	}
	t.elapsed = 0
	t.progress = 0
	return t.run.Add(1), nil
}

// Advance sets the clock from the number of audio frames played. Time
// never runs backwards within a run; outside Running it is ignored.
func (t *Timeline) Advance(frames int64, sampleRate int) {
	if t.State() != Running || sampleRate <= 0 {
		return
	}
	e := time.Duration(frames) * time.Second / time.Duration(sampleRate)
	if e < t.elapsed {
		return
	}
	t.elapsed = e
	if t.duration > 0 {
		p := float64(e) / float64(t.duration)
		t.progress = min(1, max(t.progress, p))
	}
}

// Complete is the completion latch: it moves Running → Completing and
// reports true for exactly one caller per run.
func (t *Timeline) Complete() bool {
	return t.state.CompareAndSwap(int32(Running), int32(Completing))
}

// Finish returns to Idle after the hand-off.
func (t *Timeline) Finish() {
	t.state.CompareAndSwap(int32(Completing), int32(Idle))
}

// Reset abandons the current run. Pending completions for the old run id
// are stale from now on.
func (t *Timeline) Reset() {
	t.state.Store(int32(Idle))
	t.run.Add(1)
	t.elapsed = 0
	t.progress = 0
}

// State returns the current phase.
func (t *Timeline) State() State {
	return State(t.state.Load())
}

// Run returns the id of the current run.
func (t *Timeline) Run() uint64 {
	return t.run.Load()
}

// Elapsed returns audio time played in this run.
func (t *Timeline) Elapsed() time.Duration {
	return t.elapsed
}

// Progress returns elapsed/duration clamped to [0,1].
func (t *Timeline) Progress() float64 {
	return t.progress
}

// Remaining returns the time left in the run.
func (t *Timeline) Remaining() time.Duration {
	return max(0, t.duration-t.elapsed)
}
