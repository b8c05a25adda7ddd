package audiograph

// ContextState is the lifecycle of the output context.
type ContextState int

const (
	ContextClosed ContextState = iota
	ContextSuspended
	ContextRunning
)

func (s ContextState) String() string {
	switch s {
	case ContextClosed:
		return "closed"
	case ContextSuspended:
		return "suspended"
	case ContextRunning:
		return "running"
	default:
		return "unknown"
	}
}

// outputContext models the device-facing clock. It starts suspended and is
// resumed on first use; while suspended the graph renders silence.
type outputContext struct {
	sampleRate int
	state      ContextState
}

func newOutputContext(sampleRate int) *outputContext {
	return &outputContext{sampleRate: sampleRate, state: ContextSuspended}
}
