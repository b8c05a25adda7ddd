// Package capture records the processed audio and the rendered frames of a
// performance into one Matroska blob and produces the still sound print.
package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Frame is one rendered surface image at a media timestamp.
type Frame struct {
	Image *image.RGBA
	At    time.Duration
}

// Block is a run of interleaved processed samples. Pos is the track frame
// of the first sample; a gap between blocks is recorded as silence.
type Block struct {
	Pos     int64
	Samples []float32
}

// VideoSource supplies rendered frames for the video track.
type VideoSource interface {
	Frames() <-chan Frame
}

// Artifact is the result of one completed recording. It is immutable and
// owned by the receiver once handed off.
type Artifact struct {
	Blob     []byte
	MIMEType string
	Still    []byte
	Chunks   int
	Duration time.Duration
}

// Recorder muxes an audio tap and an optional frame source on its own
// goroutine. At most one recording is in flight.
type Recorder struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	sess *session
	last *Artifact
}

// NewRecorder returns a recorder using cfg. An invalid cfg is reported by
// Begin rather than here.
func NewRecorder(cfg Config) *Recorder {
	return &Recorder{cfg: cfg, log: cfg.logger()}
}

// Config returns the recorder settings.
func (r *Recorder) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// SetFrameSize sets the video track size used by the next Begin.
func (r *Recorder) SetFrameSize(w, h int) {
	r.mu.Lock()
	r.cfg.Width, r.cfg.Height = w, h
	r.mu.Unlock()
}

// Begin starts recording. video may be nil for an audio-only capture.
func (r *Recorder) Begin(audio <-chan Block, video <-chan Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess != nil {
		return ErrBusy
	}
	r.last = nil
	if audio == nil {
		return ErrNoAudio
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	m, mime, err := openMuxer(r.cfg, video != nil)
	if err != nil {
		return err
	}

	s := &session{
		cfg:         r.cfg,
		log:         r.log,
		mux:         m,
		mime:        mime,
		audio:       audio,
		video:       video,
		endReq:      make(chan struct{}),
		abortReq:    make(chan struct{}),
		result:      make(chan *Artifact, 1),
		sliceFrames: int(r.cfg.TimeSlice.Seconds() * float64(r.cfg.SampleRate)),
		frameGap:    time.Second / time.Duration(r.cfg.FrameRate),
		nextFrameAt: 0,
		owner:       r,
	}
	if s.sliceFrames < 1 {
		s.sliceFrames = 1
	}
	r.sess = s
	r.log.Debug("capture started", "mime", mime, "slice", r.cfg.TimeSlice, "video", video != nil)
	go s.run()
	return nil
}

// End requests a final flush. The returned channel yields the artifact once
// the last chunk is delivered, or nil if nothing was recording or the muxer
// failed. It never blocks the caller.
func (r *Recorder) End() <-chan *Artifact {
	r.mu.Lock()
	s := r.sess
	r.mu.Unlock()

	if s == nil {
		ch := make(chan *Artifact, 1)
		ch <- nil
		close(ch)
		return ch
	}
	s.endOnce.Do(func() { close(s.endReq) })
	return s.result
}

// Abort abandons an in-flight recording. No artifact is produced.
func (r *Recorder) Abort() {
	r.mu.Lock()
	s := r.sess
	r.sess = nil
	r.last = nil
	r.mu.Unlock()

	if s != nil {
		s.abortOnce.Do(func() { close(s.abortReq) })
	}
}

// Recording reports whether a session is in flight.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess != nil
}

// LastArtifact returns the artifact of the last completed recording, nil
// if none completed since the last Begin.
func (r *Recorder) LastArtifact() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Recorder) finished(s *session, a *Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != s {
		return
	}
	r.sess = nil
	r.last = a
}

type pendingFrame struct {
	at   time.Duration
	jpeg []byte
}

type session struct {
	cfg   Config
	log   *slog.Logger
	mux   *muxer
	mime  string
	owner *Recorder

	audio <-chan Block
	video <-chan Frame

	endReq    chan struct{}
	endOnce   sync.Once
	abortReq  chan struct{}
	abortOnce sync.Once
	result    chan *Artifact

	sliceFrames int
	pcm         []float32
	written     int64 // audio frames already muxed
	gapFrames   int64
	chunks      int
	lastAudioTS int64
	lastVideoTS int64

	frames      []pendingFrame
	frameGap    time.Duration
	nextFrameAt time.Duration
	skipped     atomic.Int64
	failed      error
}

func (s *session) run() {
	defer close(s.result)
	for {
		select {
		case block, ok := <-s.audio:
			if !ok {
				s.audio = nil
				continue
			}
			s.addBlock(block)
			s.flush(false)
		case f, ok := <-s.video:
			if !ok {
				s.video = nil
				continue
			}
			s.addFrame(f)
		case <-s.endReq:
			s.drain()
			a := s.finish()
			s.owner.finished(s, a)
			s.result <- a
			return
		case <-s.abortReq:
			_ = s.mux.close()
			s.log.Debug("capture aborted", "chunks", s.chunks)
			return
		}
	}
}

// drain consumes whatever the producers already queued.
func (s *session) drain() {
	for {
		select {
		case block, ok := <-s.audio:
			if !ok {
				s.audio = nil
				continue
			}
			s.addBlock(block)
		case f, ok := <-s.video:
			if !ok {
				s.video = nil
				continue
			}
			s.addFrame(f)
		default:
			return
		}
	}
}

// addBlock appends b at its track position, padding a gap left by a
// dropped block with silence and trimming any overlap.
func (s *session) addBlock(b Block) {
	ch := int64(s.cfg.Channels)
	next := s.written + int64(len(s.pcm))/ch
	samples := b.Samples
	switch {
	case b.Pos > next:
		gap := b.Pos - next
		s.pcm = append(s.pcm, make([]float32, gap*ch)...)
		s.gapFrames += gap
	case b.Pos < next:
		skip := (next - b.Pos) * ch
		if skip >= int64(len(samples)) {
			return
		}
		samples = samples[skip:]
	}
	s.pcm = append(s.pcm, samples...)
}

func (s *session) addFrame(f Frame) {
	if s.failed != nil || s.mux.video == nil || f.Image == nil {
		return
	}
	if f.At < s.nextFrameAt {
		s.skipped.Add(1)
		return
	}
	s.nextFrameAt = f.At + s.frameGap
	img := fitFrame(f.Image, s.cfg.Width, s.cfg.Height)
	data, err := encodeJPEG(img, s.cfg.JPEGQuality)
	if err != nil {
		s.log.Warn("capture frame encode failed", "at", f.At, "err", err)
		return
	}
	s.frames = append(s.frames, pendingFrame{at: f.At, jpeg: data})
}

// flush writes complete time slices. With final set the partial tail and
// every pending frame are written too. Frames stamped before a slice go
// ahead of it so each track stays in media order.
func (s *session) flush(final bool) {
	ch := s.cfg.Channels
	for s.failed == nil {
		n := len(s.pcm) / ch
		if n == 0 || (!final && n < s.sliceFrames) {
			break
		}
		if n > s.sliceFrames {
			n = s.sliceFrames
		}
		start := s.written
		end := start + int64(n)
		s.writeFramesBefore(s.framesToMs(start))

		ts := monotonic(&s.lastAudioTS, s.framesToMs(start))
		if err := s.mux.writeAudio(ts, s.pcm[:n*ch]); err != nil {
			s.fail(err)
			break
		}
		s.pcm = s.pcm[n*ch:]
		s.written = end
		s.chunks++
	}
	if final {
		s.writeFramesBefore(1 << 62)
	}
}

func (s *session) writeFramesBefore(limitMs int64) {
	i := 0
	for ; i < len(s.frames) && s.failed == nil; i++ {
		f := s.frames[i]
		ms := f.at.Milliseconds()
		if ms >= limitMs {
			break
		}
		if err := s.mux.writeVideo(monotonic(&s.lastVideoTS, ms), f.jpeg); err != nil {
			s.fail(err)
		}
	}
	s.frames = s.frames[i:]
}

// monotonic keeps one track's timestamps non-decreasing.
func monotonic(last *int64, ms int64) int64 {
	if ms < *last {
		ms = *last
	}
	*last = ms
	return ms
}

func (s *session) framesToMs(frames int64) int64 {
	return frames * 1000 / int64(s.cfg.SampleRate)
}

func (s *session) fail(err error) {
	s.failed = err
	s.log.Warn("capture write failed", "chunks", s.chunks, "err", err)
}

func (s *session) finish() *Artifact {
	s.flush(true)
	if err := s.mux.close(); err != nil && s.failed == nil {
		s.fail(err)
	}

	timeout := s.cfg.FlushTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-s.mux.sink.done:
	case <-time.After(timeout):
		s.fail(fmt.Errorf("capture: muxer did not drain within %s", timeout))
	}

	if skipped := s.skipped.Load(); skipped > 0 {
		s.log.Debug("capture frames skipped", "count", skipped)
	}
	if s.gapFrames > 0 {
		s.log.Warn("capture audio gap filled with silence", "frames", s.gapFrames)
	}
	if s.failed != nil {
		return nil
	}
	a := &Artifact{
		Blob:     s.mux.sink.bytes(),
		MIMEType: s.mime,
		Chunks:   s.chunks,
		Duration: time.Duration(s.written) * time.Second / time.Duration(s.cfg.SampleRate),
	}
	s.log.Info("capture finished", "bytes", len(a.Blob), "chunks", a.Chunks, "duration", a.Duration)
	return a
}
