package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ContainerMatroska muxes MJPEG video and 16-bit PCM audio into Matroska.
const ContainerMatroska = "matroska"

var (
	// ErrUnsupportedContainer is returned by Begin for an unknown container.
	ErrUnsupportedContainer = errors.New("capture: unsupported container")
	// ErrBusy is returned by Begin while a recording is in flight.
	ErrBusy = errors.New("capture: recording already in progress")
	// ErrNoAudio is returned by Begin without an audio source.
	ErrNoAudio = errors.New("capture: no audio source")
)

// Config controls the recorder.
type Config struct {
	Container    string
	TimeSlice    time.Duration
	FrameRate    int
	JPEGQuality  int
	SampleRate   int
	Channels     int
	Width        int
	Height       int
	FlushTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns the settings used by the performance engine.
func DefaultConfig() Config {
	return Config{
		Container:    ContainerMatroska,
		TimeSlice:    250 * time.Millisecond,
		FrameRate:    30,
		JPEGQuality:  85,
		SampleRate:   48000,
		Channels:     2,
		Width:        256,
		Height:       256,
		FlushTimeout: 5 * time.Second,
	}
}

// Validate checks the numeric ranges. The container is checked at Begin so
// an unsupported choice degrades a run instead of failing construction.
func (c Config) Validate() error {
	if c.TimeSlice <= 0 {
		return fmt.Errorf("capture: time slice must be > 0")
	}
	if c.FrameRate <= 0 || c.FrameRate > 120 {
		return fmt.Errorf("capture: frame rate must be in 1..120")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("capture: jpeg quality must be in 1..100")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("capture: sample rate must be > 0")
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("capture: channels must be 1 or 2")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("capture: video size must be > 0")
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
