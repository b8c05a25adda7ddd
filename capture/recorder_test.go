package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 8000
	cfg.Width = 16
	cfg.Height = 16
	cfg.FrameRate = 10
	return cfg
}

func sineBlocks(sr, frames, block int) []Block {
	var out []Block
	for start := 0; start < frames; start += block {
		n := min(block, frames-start)
		b := make([]float32, n*2)
		for i := 0; i < n; i++ {
			v := float32(0.5 * math.Sin(2*math.Pi*440*float64(start+i)/float64(sr)))
			b[2*i] = v
			b[2*i+1] = v
		}
		out = append(out, Block{Pos: int64(start), Samples: b})
	}
	return out
}

type demuxedBlock struct {
	ms   int64
	data []byte
}

// demux reads every track of a recording back, keyed by track number.
func demux(t *testing.T, blob []byte) map[uint64][]demuxedBlock {
	t.Helper()
	readers, err := mkvcore.NewSimpleBlockReader(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("NewSimpleBlockReader: %v", err)
	}
	out := make(map[uint64][]demuxedBlock)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, r := range readers {
		wg.Add(1)
		go func(r mkvcore.BlockReadCloserWithTrackEntry) {
			defer wg.Done()
			var got []demuxedBlock
			for {
				b, _, ts, err := r.Read()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Errorf("track %d: %v", r.TrackEntry().TrackNumber, err)
					return
				}
				got = append(got, demuxedBlock{ms: ts, data: b})
			}
			mu.Lock()
			out[r.TrackEntry().TrackNumber] = got
			mu.Unlock()
		}(r)
	}
	wg.Wait()
	return out
}

func stamps(blocks []demuxedBlock) []int64 {
	out := make([]int64, len(blocks))
	for i, b := range blocks {
		out[i] = b.ms
	}
	return out
}

func payloadBytes(blocks []demuxedBlock) int {
	n := 0
	for _, b := range blocks {
		n += len(b.data)
	}
	return n
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func await(t *testing.T, ch <-chan *Artifact) *Artifact {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for artifact")
		return nil
	}
}

func TestRecorderMuxesAudioAndVideo(t *testing.T) {
	cfg := testConfig()
	r := NewRecorder(cfg)

	blocks := sineBlocks(cfg.SampleRate, cfg.SampleRate, 256)
	audio := make(chan Block, len(blocks))
	video := make(chan Frame, 32)
	if err := r.Begin(audio, video); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !r.Recording() {
		t.Fatalf("recorder should be recording after Begin")
	}
	for _, b := range blocks {
		audio <- b
	}
	for i := 0; i < 10; i++ {
		// Frames larger than the track are scaled down.
		video <- Frame{Image: solid(32, 32, color.RGBA{uint8(i * 20), 40, 200, 255}), At: time.Duration(i) * 100 * time.Millisecond}
	}

	a := await(t, r.End())
	if a == nil {
		t.Fatalf("expected an artifact")
	}
	if a.MIMEType != "video/x-matroska" {
		t.Fatalf("MIME = %q", a.MIMEType)
	}
	if a.Chunks != 4 {
		t.Fatalf("chunks = %d, want 4 slices of 250ms", a.Chunks)
	}
	if a.Duration != time.Second {
		t.Fatalf("duration = %v, want 1s", a.Duration)
	}
	if !bytes.HasPrefix(a.Blob, []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		t.Fatalf("blob does not start with an EBML header")
	}
	for _, codec := range []string{"V_MJPEG", "A_PCM/INT/LIT", "matroska"} {
		if !bytes.Contains(a.Blob, []byte(codec)) {
			t.Fatalf("blob missing %q", codec)
		}
	}
	if r.LastArtifact() != a {
		t.Fatalf("LastArtifact should return the finished artifact")
	}
	if r.Recording() {
		t.Fatalf("recorder should be idle after End")
	}
}

func TestRecordingTracksStayInSync(t *testing.T) {
	cfg := testConfig()
	r := NewRecorder(cfg)

	blocks := sineBlocks(cfg.SampleRate, cfg.SampleRate, 256)
	audio := make(chan Block, len(blocks))
	video := make(chan Frame, 32)
	if err := r.Begin(audio, video); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	var wantVideo []int64
	for i, b := range blocks {
		audio <- b
		// Interleave frames with the audio the way a live run does.
		if i%3 == 0 && len(wantVideo) < 10 {
			at := time.Duration(len(wantVideo)) * 100 * time.Millisecond
			video <- Frame{Image: solid(16, 16, color.RGBA{0, 0, 255, 255}), At: at}
			wantVideo = append(wantVideo, at.Milliseconds())
		}
	}
	a := await(t, r.End())
	if a == nil {
		t.Fatalf("expected an artifact")
	}

	tracks := demux(t, a.Blob)
	if got, want := stamps(tracks[audioTrack]), []int64{0, 250, 500, 750}; !slices.Equal(got, want) {
		t.Fatalf("audio timestamps = %v, want %v", got, want)
	}
	if got := stamps(tracks[videoTrack]); !slices.Equal(got, wantVideo) {
		t.Fatalf("video timestamps = %v, want %v", got, wantVideo)
	}
	if got, want := payloadBytes(tracks[audioTrack]), cfg.SampleRate*cfg.Channels*2; got != want {
		t.Fatalf("audio payload = %d bytes, want %d", got, want)
	}
	for i, b := range tracks[videoTrack] {
		if !bytes.HasPrefix(b.data, []byte{0xFF, 0xD8}) {
			t.Fatalf("video block %d is not a JPEG", i)
		}
	}
}

func TestDroppedBlockBecomesSilence(t *testing.T) {
	cfg := testConfig()
	r := NewRecorder(cfg)
	audio := make(chan Block, 64)
	if err := r.Begin(audio, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	// The block at 2000..2999 never reaches the recorder.
	for _, b := range sineBlocks(cfg.SampleRate, 4000, 1000) {
		if b.Pos == 2000 {
			continue
		}
		audio <- b
	}
	a := await(t, r.End())
	if a == nil {
		t.Fatalf("expected an artifact")
	}
	if a.Duration != 500*time.Millisecond {
		t.Fatalf("duration = %v, want 500ms", a.Duration)
	}
	tracks := demux(t, a.Blob)
	got := tracks[audioTrack]
	if want := []int64{0, 250}; !slices.Equal(stamps(got), want) {
		t.Fatalf("audio timestamps = %v, want %v", stamps(got), want)
	}
	if payloadBytes(got) != 4000*cfg.Channels*2 {
		t.Fatalf("audio payload = %d bytes", payloadBytes(got))
	}
	// The second slice opens with the silent gap.
	gap := got[1].data[:1000*cfg.Channels*2]
	for i, v := range gap {
		if v != 0 {
			t.Fatalf("gap byte %d = %d, want silence", i, v)
		}
	}
}

func TestAddBlockTrimsOverlap(t *testing.T) {
	s := &session{cfg: testConfig()}
	s.addBlock(Block{Pos: 0, Samples: []float32{1, 1, 2, 2}})
	s.addBlock(Block{Pos: 1, Samples: []float32{2, 2, 3, 3}})
	s.addBlock(Block{Pos: 0, Samples: []float32{9, 9}})
	if want := []float32{1, 1, 2, 2, 3, 3}; !slices.Equal(s.pcm, want) {
		t.Fatalf("pcm = %v, want %v", s.pcm, want)
	}
	if s.gapFrames != 0 {
		t.Fatalf("gapFrames = %d, want 0", s.gapFrames)
	}
}

func TestRecorderAudioOnly(t *testing.T) {
	cfg := testConfig()
	r := NewRecorder(cfg)
	audio := make(chan Block, 64)
	if err := r.Begin(audio, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, b := range sineBlocks(cfg.SampleRate, 3000, 500) {
		audio <- b
	}
	a := await(t, r.End())
	if a == nil {
		t.Fatalf("expected an audio-only artifact")
	}
	if a.MIMEType != "audio/x-matroska" {
		t.Fatalf("MIME = %q", a.MIMEType)
	}
	// One full slice plus the partial tail.
	if a.Chunks != 2 {
		t.Fatalf("chunks = %d, want 2", a.Chunks)
	}
	if bytes.Contains(a.Blob, []byte("V_MJPEG")) {
		t.Fatalf("audio-only capture should not declare a video track")
	}
}

func TestRecorderBeginFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Container = "webm-vp9"
	r := NewRecorder(cfg)
	err := r.Begin(make(chan Block), nil)
	if !errors.Is(err, ErrUnsupportedContainer) {
		t.Fatalf("Begin error = %v, want ErrUnsupportedContainer", err)
	}
	if r.Recording() {
		t.Fatalf("failed Begin must not leave a session")
	}

	r = NewRecorder(testConfig())
	if err := r.Begin(nil, nil); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Begin(nil) error = %v, want ErrNoAudio", err)
	}

	if err := r.Begin(make(chan Block), nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.Begin(make(chan Block), nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Begin error = %v, want ErrBusy", err)
	}
	r.Abort()
}

func TestRecorderAbortProducesNothing(t *testing.T) {
	r := NewRecorder(testConfig())
	audio := make(chan Block, 4)
	if err := r.Begin(audio, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	audio <- Block{Samples: make([]float32, 512)}
	r.Abort()
	if a := await(t, r.End()); a != nil {
		t.Fatalf("End after Abort should yield nil")
	}
	if r.LastArtifact() != nil {
		t.Fatalf("Abort must clear LastArtifact")
	}
}

func TestEndWithoutSessionYieldsNil(t *testing.T) {
	r := NewRecorder(testConfig())
	if a := await(t, r.End()); a != nil {
		t.Fatalf("End without Begin should yield nil")
	}
}

func TestFrameRateLimit(t *testing.T) {
	cfg := testConfig()
	m, _, err := openMuxer(cfg, true)
	if err != nil {
		t.Fatalf("openMuxer: %v", err)
	}
	defer m.close()
	s := &session{cfg: cfg, log: cfg.logger(), mux: m, frameGap: 100 * time.Millisecond}
	for _, at := range []time.Duration{0, 50 * time.Millisecond, 100 * time.Millisecond, 120 * time.Millisecond, 250 * time.Millisecond} {
		s.addFrame(Frame{Image: solid(16, 16, color.RGBA{255, 0, 0, 255}), At: at})
	}
	if len(s.frames) != 3 {
		t.Fatalf("kept %d frames, want 3", len(s.frames))
	}
	if s.skipped.Load() != 2 {
		t.Fatalf("skipped %d frames, want 2", s.skipped.Load())
	}
}

func TestFitFrame(t *testing.T) {
	src := solid(8, 4, color.RGBA{10, 20, 30, 255})
	if got := fitFrame(src, 8, 4); got != src {
		t.Fatalf("matching size should return the input")
	}
	out := fitFrame(src, 3, 5)
	if out.Bounds().Dx() != 3 || out.Bounds().Dy() != 5 {
		t.Fatalf("fitted size = %v", out.Bounds())
	}
	if c := out.RGBAAt(2, 4); c != (color.RGBA{10, 20, 30, 255}) {
		t.Fatalf("fitted pixel = %v", c)
	}
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{2, 32767},
		{-3, -32767},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		if got := floatToPCM16(tt.in); got != tt.want {
			t.Fatalf("floatToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeStillAndFrameQueue(t *testing.T) {
	img := solid(4, 4, color.RGBA{1, 2, 3, 255})
	data, err := EncodeStill(img)
	if err != nil {
		t.Fatalf("EncodeStill: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("still bounds = %v", decoded.Bounds())
	}
	if _, err := EncodeStill(nil); err == nil {
		t.Fatalf("EncodeStill(nil) should fail")
	}

	q := NewFrameQueue(1)
	if !q.Offer(img, 0) {
		t.Fatalf("first Offer should fit")
	}
	img.Pix[0] = 99
	if q.Offer(img, time.Millisecond) {
		t.Fatalf("second Offer should be dropped")
	}
	if q.Dropped() != 1 {
		t.Fatalf("Dropped = %d", q.Dropped())
	}
	f := <-q.Frames()
	if f.Image.Pix[0] != 1 {
		t.Fatalf("queued frame should be a copy")
	}
}
