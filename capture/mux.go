package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"sync"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
)

const (
	videoTrack uint64 = 1
	audioTrack uint64 = 2

	trackTypeVideo = 1
	trackTypeAudio = 2

	pcmBitDepth = 16
)

type trackEntry struct {
	Name            string      `ebml:"Name,omitempty"`
	TrackNumber     uint64      `ebml:"TrackNumber"`
	TrackUID        uint64      `ebml:"TrackUID"`
	CodecID         string      `ebml:"CodecID"`
	TrackType       uint64      `ebml:"TrackType"`
	DefaultDuration uint64      `ebml:"DefaultDuration,omitempty"`
	Video           *videoEntry `ebml:"Video,omitempty"`
	Audio           *audioEntry `ebml:"Audio,omitempty"`
}

type videoEntry struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

type audioEntry struct {
	SamplingFrequency float64 `ebml:"SamplingFrequency"`
	Channels          uint64  `ebml:"Channels"`
	BitDepth          uint64  `ebml:"BitDepth"`
}

// sink collects muxer output. The muxer closes it once every track writer
// is closed and the last cluster is on the wire.
type sink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	done   chan struct{}
	once   sync.Once
}

func newSink() *sink {
	return &sink{done: make(chan struct{})}
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return s.buf.Write(p)
}

func (s *sink) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *sink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out
}

// muxer wraps the Matroska block writers for one recording.
type muxer struct {
	video mkvcore.BlockWriteCloser
	audio mkvcore.BlockWriteCloser
	sink  *sink
}

func openMuxer(cfg Config, withVideo bool) (*muxer, string, error) {
	if cfg.Container != ContainerMatroska {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedContainer, cfg.Container)
	}

	var tracks []mkvcore.TrackDescription
	if withVideo {
		tracks = append(tracks, mkvcore.TrackDescription{
			TrackNumber: videoTrack,
			TrackEntry: trackEntry{
				Name:            "Sound print",
				TrackNumber:     videoTrack,
				TrackUID:        0x5350_0001,
				CodecID:         "V_MJPEG",
				TrackType:       trackTypeVideo,
				DefaultDuration: uint64(1e9 / float64(cfg.FrameRate)),
				Video: &videoEntry{
					PixelWidth:  uint64(cfg.Width),
					PixelHeight: uint64(cfg.Height),
				},
			},
		})
	}
	tracks = append(tracks, mkvcore.TrackDescription{
		TrackNumber: audioTrack,
		TrackEntry: trackEntry{
			Name:        "Performance",
			TrackNumber: audioTrack,
			TrackUID:    0x5350_0002,
			CodecID:     "A_PCM/INT/LIT",
			TrackType:   trackTypeAudio,
			Audio: &audioEntry{
				SamplingFrequency: float64(cfg.SampleRate),
				Channels:          uint64(cfg.Channels),
				BitDepth:          pcmBitDepth,
			},
		},
	})

	header := *webm.DefaultEBMLHeader
	header.DocType = "matroska"
	header.DocTypeVersion = 4
	header.DocTypeReadVersion = 2

	s := newSink()
	writers, err := mkvcore.NewSimpleBlockWriter(s, tracks,
		mkvcore.WithEBMLHeader(&header),
		mkvcore.WithSegmentInfo(&webm.Info{
			TimecodeScale: 1000000, // block timestamps in ms
			MuxingApp:     "algo-soundprint",
			WritingApp:    "algo-soundprint",
		}),
	)
	if err != nil {
		return nil, "", fmt.Errorf("capture: open matroska writer: %w", err)
	}

	m := &muxer{sink: s}
	mime := "audio/x-matroska"
	if withVideo {
		m.video = writers[0]
		m.audio = writers[1]
		mime = "video/x-matroska"
	} else {
		m.audio = writers[0]
	}
	return m, mime, nil
}

func (m *muxer) writeAudio(timestampMs int64, interleaved []float32) error {
	payload := make([]byte, len(interleaved)*2)
	for i, v := range interleaved {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(floatToPCM16(v)))
	}
	_, err := m.audio.Write(true, timestampMs, payload)
	return err
}

func (m *muxer) writeVideo(timestampMs int64, jpegFrame []byte) error {
	if m.video == nil {
		return nil
	}
	_, err := m.video.Write(true, timestampMs, jpegFrame)
	return err
}

// close releases the track writers; the sink signals once the muxer drained.
func (m *muxer) close() error {
	var first error
	if m.video != nil {
		if err := m.video.Close(); err != nil {
			first = err
		}
	}
	if err := m.audio.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func floatToPCM16(v float32) int16 {
	x := float64(v)
	if math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(math.Round(x * 32767))
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fitFrame returns img at w×h using nearest-neighbor sampling; frames that
// already match are returned unchanged.
func fitFrame(img *image.RGBA, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if b.Dx() == 0 || b.Dy() == 0 {
		return out
	}
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			si := img.PixOffset(sx, sy)
			di := out.PixOffset(x, y)
			copy(out.Pix[di:di+4], img.Pix[si:si+4])
		}
	}
	return out
}
