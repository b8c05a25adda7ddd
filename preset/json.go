package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cwbudde/algo-soundprint/engine"
	"github.com/cwbudde/algo-soundprint/sim"
)

// File is the JSON schema for engine presets. Absent fields keep their
// defaults.
type File struct {
	SampleRate   *int               `json:"sample_rate"`
	Width        *int               `json:"width"`
	Height       *int               `json:"height"`
	SimScale     *float64           `json:"sim_scale"`
	Q            *float64           `json:"q"`
	SmoothingMS  *float64           `json:"smoothing_ms"`
	OutputGainDB *float64           `json:"output_gain_db"`
	Capture      *CaptureSetting    `json:"capture"`
	Sim          map[string]float64 `json:"sim"`
}

// CaptureSetting is the recorder part of a preset file.
type CaptureSetting struct {
	Enabled     *bool  `json:"enabled"`
	Video       *bool  `json:"video"`
	Container   string `json:"container"`
	TimeSliceMS *int   `json:"time_slice_ms"`
	FrameRate   *int   `json:"frame_rate"`
	JPEGQuality *int   `json:"jpeg_quality"`
}

// LoadJSON loads a preset JSON file and applies it on top of the default
// engine config.
func LoadJSON(path string) (*engine.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	cfg := engine.NewDefaultConfig()
	if err := ApplyFile(cfg, &f); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFile applies a parsed preset file onto an existing config.
func ApplyFile(dst *engine.Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}

	if f.SampleRate != nil {
		if *f.SampleRate < 8000 || *f.SampleRate > 192000 {
			return fmt.Errorf("sample_rate must be in 8000..192000")
		}
		dst.SampleRate = *f.SampleRate
	}
	if f.Width != nil {
		if *f.Width < 1 {
			return fmt.Errorf("width must be > 0")
		}
		dst.Width = *f.Width
	}
	if f.Height != nil {
		if *f.Height < 1 {
			return fmt.Errorf("height must be > 0")
		}
		dst.Height = *f.Height
	}
	if f.SimScale != nil {
		if *f.SimScale <= 0 || *f.SimScale > 1 {
			return fmt.Errorf("sim_scale must be in (0,1]")
		}
		dst.SimScale = *f.SimScale
	}
	if f.Q != nil {
		if *f.Q <= 0 {
			return fmt.Errorf("q must be > 0")
		}
		dst.Graph.Q = *f.Q
	}
	if f.SmoothingMS != nil {
		if *f.SmoothingMS < 0 {
			return fmt.Errorf("smoothing_ms must be >= 0")
		}
		dst.Graph.SmoothingTau = *f.SmoothingMS / 1000
	}
	if f.OutputGainDB != nil {
		if *f.OutputGainDB > 24 {
			return fmt.Errorf("output_gain_db must be <= 24")
		}
		dst.Graph.OutputGainDB = *f.OutputGainDB
	}
	if err := applyCapture(dst, f.Capture); err != nil {
		return err
	}

	if len(f.Sim) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f.Sim))
	for k := range f.Sim {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p := dst.Sim
	for _, k := range keys {
		field := simField(&p, k)
		if field == nil {
			return fmt.Errorf("unknown sim key %q", k)
		}
		*field = f.Sim[k]
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	dst.Sim = p
	return nil
}

func applyCapture(dst *engine.Config, c *CaptureSetting) error {
	if c == nil {
		return nil
	}
	if c.Enabled != nil {
		dst.CaptureEnabled = *c.Enabled
	}
	if c.Video != nil {
		dst.CaptureVideo = *c.Video
	}
	if c.Container != "" {
		dst.Capture.Container = strings.TrimSpace(c.Container)
	}
	if c.TimeSliceMS != nil {
		if *c.TimeSliceMS <= 0 {
			return fmt.Errorf("capture.time_slice_ms must be > 0")
		}
		dst.Capture.TimeSlice = time.Duration(*c.TimeSliceMS) * time.Millisecond
	}
	if c.FrameRate != nil {
		if *c.FrameRate < 1 || *c.FrameRate > 120 {
			return fmt.Errorf("capture.frame_rate must be in 1..120")
		}
		dst.Capture.FrameRate = *c.FrameRate
	}
	if c.JPEGQuality != nil {
		if *c.JPEGQuality < 1 || *c.JPEGQuality > 100 {
			return fmt.Errorf("capture.jpeg_quality must be in 1..100")
		}
		dst.Capture.JPEGQuality = *c.JPEGQuality
	}
	return nil
}

func simField(p *sim.Params, key string) *float64 {
	switch key {
	case "noise_scale":
		return &p.NoiseScale
	case "time_scale":
		return &p.TimeScale
	case "curl_epsilon":
		return &p.CurlEpsilon
	case "activity_low":
		return &p.ActivityLow
	case "activity_high":
		return &p.ActivityHigh
	case "activity_edge0":
		return &p.ActivityEdge0
	case "activity_edge1":
		return &p.ActivityEdge1
	case "drift":
		return &p.Drift
	case "advect_strength":
		return &p.AdvectStrength
	case "blur_center":
		return &p.BlurCenter
	case "blur_amount":
		return &p.BlurAmount
	case "decay_faint":
		return &p.DecayFaint
	case "decay_dense":
		return &p.DecayDense
	case "decay_edge0":
		return &p.DecayEdge0
	case "decay_edge1":
		return &p.DecayEdge1
	case "epsilon":
		return &p.Epsilon
	case "fuse_offset":
		return &p.FuseOffset
	case "fuse_min_speed":
		return &p.FuseMinSpeed
	case "core_radius":
		return &p.CoreRadius
	case "aura_radius":
		return &p.AuraRadius
	case "core_weight":
		return &p.CoreWeight
	case "aura_weight":
		return &p.AuraWeight
	case "inject_min":
		return &p.InjectMin
	case "material_rate":
		return &p.MaterialRate
	case "color_rate":
		return &p.ColorRate
	case "seed_rate":
		return &p.SeedRate
	case "spark_radius":
		return &p.SparkRadius
	case "spark_idle":
		return &p.SparkIdle
	case "spark_down":
		return &p.SparkDown
	case "reveal_start":
		return &p.RevealStart
	case "reveal_lift":
		return &p.RevealLift
	case "reveal_line":
		return &p.RevealLine
	case "reveal_line_width":
		return &p.RevealLineWidth
	case "glow_edge0":
		return &p.GlowEdge0
	case "glow_weight":
		return &p.GlowWeight
	case "fire_boost":
		return &p.FireBoost
	case "fire_exp":
		return &p.FireExp
	}
	return nil
}
