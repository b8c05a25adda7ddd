package audiograph

import (
	"sync"

	"github.com/cwbudde/algo-soundprint/capture"
)

// join fires fn once both arms arrived: playback ended and the recorder
// delivered its artifact. A cancelled join never fires.
type join struct {
	mu        sync.Mutex
	ended     bool
	flushed   bool
	fired     bool
	cancelled bool
	artifact  *capture.Artifact
	fn        func(*capture.Artifact)
}

func newJoin(fn func(*capture.Artifact)) *join {
	return &join{fn: fn}
}

func (j *join) playbackEnded() {
	j.mu.Lock()
	j.ended = true
	j.fireLocked()
}

func (j *join) captureDone(a *capture.Artifact) {
	j.mu.Lock()
	if !j.flushed {
		j.flushed = true
		j.artifact = a
	}
	j.fireLocked()
}

func (j *join) cancel() {
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
}

// fireLocked releases j.mu before invoking the callback.
func (j *join) fireLocked() {
	if j.fired || j.cancelled || !j.ended || !j.flushed || j.fn == nil {
		j.mu.Unlock()
		return
	}
	j.fired = true
	fn, a := j.fn, j.artifact
	j.mu.Unlock()
	fn(a)
}
