package engine

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-soundprint/analysis"
	"github.com/cwbudde/algo-soundprint/audiograph"
	"github.com/cwbudde/algo-soundprint/capture"
	"github.com/cwbudde/algo-soundprint/sim"
)

// Config holds everything needed to build an Engine.
type Config struct {
	SampleRate int

	// Width and Height are the render surface size in pixels.
	Width  int
	Height int
	// SimScale sets the field resolution relative to the surface.
	SimScale float64

	Graph   audiograph.Config
	Sim     sim.Params
	Meter   analysis.MeterConfig
	Capture capture.Config
	// CaptureEnabled turns the recorder on. Without it every run completes
	// with a nil artifact.
	CaptureEnabled bool
	// CaptureVideo adds the rendered frames to the recording.
	CaptureVideo bool
	// FrameQueue is the number of rendered frames buffered for the recorder.
	FrameQueue int

	Logger   *slog.Logger
	Observer Observer
}

// NewDefaultConfig returns the engine defaults.
func NewDefaultConfig() *Config {
	return &Config{
		SampleRate:     48000,
		Width:          512,
		Height:         512,
		SimScale:       0.5,
		Graph:          audiograph.DefaultConfig(),
		Sim:            sim.NewDefaultParams(),
		Meter:          analysis.DefaultMeterConfig(),
		Capture:        capture.DefaultConfig(),
		CaptureEnabled: true,
		CaptureVideo:   true,
		FrameQueue:     8,
	}
}

// Validate checks the settings New depends on.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("engine: sample rate must be > 0")
	}
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("engine: surface size %dx%d", c.Width, c.Height)
	}
	if c.SimScale <= 0 || c.SimScale > 1 {
		return fmt.Errorf("engine: sim scale must be in (0,1]")
	}
	if err := c.Sim.Validate(); err != nil {
		return err
	}
	if c.CaptureEnabled {
		if err := c.Capture.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) simSize(w, h int) (int, int) {
	sw := max(1, int(float64(w)*c.SimScale+0.5))
	sh := max(1, int(float64(h)*c.SimScale+0.5))
	return sw, sh
}
