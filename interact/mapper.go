package interact

import (
	"math"
	"sync"

	"github.com/cwbudde/algo-soundprint/band"
)

// EventKind classifies a pointer event.
type EventKind int

const (
	Move EventKind = iota
	Down
	Up
)

// Event is one pointer report in unit-square coordinates (y up).
type Event struct {
	Kind  EventKind
	X, Y  float64
	Touch bool
}

// Vec2 is a point or offset in the unit square.
type Vec2 struct {
	X, Y float64
}

// Sample is the pointer state consumed by one frame.
type Sample struct {
	Pointer  Vec2
	Down     bool
	Velocity Vec2
	Changes  []band.Cell
}

// Normalize converts a pixel position in a w×h viewport into unit-square
// coordinates with y pointing up. A degenerate viewport maps to the origin.
func Normalize(px, py, w, h float64) (x01, y01 float64) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	return clamp01(px / w), clamp01(1 - py/h)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Mapper queues pointer events and resolves them into grid cells once per
// frame. It is the only writer of its PerformanceState.
type Mapper struct {
	state *PerformanceState

	mu      sync.Mutex
	queue   []Event
	pressed bool

	pos     Vec2
	prev    Vec2
	hasPrev bool
	down    bool
}

// NewMapper returns a mapper writing into state.
func NewMapper(state *PerformanceState) *Mapper {
	return &Mapper{state: state}
}

// State returns the performance state the mapper writes.
func (m *Mapper) State() *PerformanceState {
	return m.state
}

// Push queues an event for the next Sample. Safe from any goroutine.
func (m *Mapper) Push(e Event) {
	m.mu.Lock()
	m.queue = append(m.queue, e)
	m.mu.Unlock()
}

// Pointer queues a level-triggered report, deriving Down/Up from the
// pressed edge.
func (m *Mapper) Pointer(x01, y01 float64, pressed bool) {
	m.mu.Lock()
	kind := Move
	switch {
	case pressed && !m.pressed:
		kind = Down
	case !pressed && m.pressed:
		kind = Up
	}
	m.pressed = pressed
	m.queue = append(m.queue, Event{Kind: kind, X: x01, Y: y01})
	m.mu.Unlock()
}

// Sample drains the queue. While active, forwarded events lock rows into
// the performance state and are reported as Changes; while inactive only
// the pointer position is tracked.
func (m *Mapper) Sample(active bool) Sample {
	m.mu.Lock()
	events := m.queue
	m.queue = nil
	m.mu.Unlock()

	var changes []band.Cell
	for _, e := range events {
		x, y := clamp01(e.X), clamp01(e.Y)
		m.pos = Vec2{x, y}

		forward := false
		switch e.Kind {
		case Down:
			m.down = true
			forward = true
		case Up:
			m.down = false
		case Move:
			forward = m.down || e.Touch
		}
		if !forward || !active {
			continue
		}
		c := band.Resolve(x, y)
		if m.state.lock(c) {
			changes = append(changes, c)
		}
	}

	s := Sample{Pointer: m.pos, Down: m.down, Changes: changes}
	if m.hasPrev {
		s.Velocity = Vec2{m.pos.X - m.prev.X, m.pos.Y - m.prev.Y}
	}
	m.prev = m.pos
	m.hasPrev = true
	return s
}

// Reset clears queued input and every locked row.
func (m *Mapper) Reset() {
	m.mu.Lock()
	m.queue = nil
	m.pressed = false
	m.mu.Unlock()
	m.down = false
	m.hasPrev = false
	m.state.reset()
}
