package sim

import "fmt"

// Params holds every tunable of the step and render passes.
type Params struct {
	// Advection
	NoiseScale     float64
	TimeScale      float64
	CurlEpsilon    float64
	ActivityLow    float64
	ActivityHigh   float64
	ActivityEdge0  float64
	ActivityEdge1  float64
	Drift          float64
	AdvectStrength float64

	// Diffusion
	BlurCenter float64
	BlurAmount float64

	// Decay
	DecayFaint float64
	DecayDense float64
	DecayEdge0 float64
	DecayEdge1 float64
	Epsilon    float64

	// Injection
	FuseOffset   float64
	FuseMinSpeed float64
	CoreRadius   float64
	AuraRadius   float64
	CoreWeight   float64
	AuraWeight   float64
	InjectMin    float64
	MaterialRate float64
	ColorRate    float64
	SeedRate     float64

	// Render
	SparkRadius     float64
	SparkIdle       float64
	SparkDown       float64
	RevealStart     float64
	RevealLift      float64
	RevealLine      float64
	RevealLineWidth float64
	// GlowEdge0 is where the core glow starts; it is full at intensity 1.
	GlowEdge0  float64
	GlowWeight float64
	// Fire brightness is multiplied by 1+FireBoost*intensity^FireExp.
	FireBoost float64
	FireExp   float64

	// Workers splits Step by rows; 0 uses runtime.NumCPU.
	Workers int
}

// NewDefaultParams returns the tuned defaults.
func NewDefaultParams() Params {
	return Params{
		NoiseScale:     1.65,
		TimeScale:      0.05,
		CurlEpsilon:    0.0025,
		ActivityLow:    0.25,
		ActivityHigh:   1.0,
		ActivityEdge0:  0.2,
		ActivityEdge1:  0.9,
		Drift:          0.06,
		AdvectStrength: 0.010,

		BlurCenter: 0.60,
		BlurAmount: 0.10,

		DecayFaint: 0.985,
		DecayDense: 0.995,
		DecayEdge0: 0.2,
		DecayEdge1: 1.0,
		Epsilon:    0.0015,

		FuseOffset:   0.08,
		FuseMinSpeed: 0.0005,
		CoreRadius:   0.008,
		AuraRadius:   0.025,
		CoreWeight:   0.65,
		AuraWeight:   0.12,
		InjectMin:    0.0005,
		MaterialRate: 0.25,
		ColorRate:    0.35,
		SeedRate:     0.35,

		SparkRadius:     0.012,
		SparkIdle:       0.03,
		SparkDown:       0.10,
		RevealStart:     0.75,
		RevealLift:      0.18,
		RevealLine:      0.35,
		RevealLineWidth: 0.004,
		GlowEdge0:       0.6,
		GlowWeight:      0.45,
		FireBoost:       1.2,
		FireExp:         2.0,
	}
}

// Validate rejects parameters that break the field invariants: decay must
// stay below one and blend rates inside [0,1].
func (p Params) Validate() error {
	for _, d := range []struct {
		name string
		v    float64
	}{{"decay_faint", p.DecayFaint}, {"decay_dense", p.DecayDense}} {
		if d.v <= 0 || d.v >= 1 {
			return fmt.Errorf("%s must be in (0,1), got %g", d.name, d.v)
		}
	}
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"blur_center", p.BlurCenter},
		{"blur_amount", p.BlurAmount},
		{"material_rate", p.MaterialRate},
		{"color_rate", p.ColorRate},
		{"seed_rate", p.SeedRate},
		{"reveal_start", p.RevealStart},
		{"glow_edge0", p.GlowEdge0},
	} {
		if r.v < 0 || r.v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %g", r.name, r.v)
		}
	}
	if p.DecayEdge1 <= p.DecayEdge0 {
		return fmt.Errorf("decay_edge1 must exceed decay_edge0")
	}
	if p.ActivityEdge1 <= p.ActivityEdge0 {
		return fmt.Errorf("activity_edge1 must exceed activity_edge0")
	}
	if p.CoreRadius <= 0 || p.AuraRadius <= p.CoreRadius {
		return fmt.Errorf("need 0 < core_radius < aura_radius")
	}
	if p.Epsilon < 0 || p.AdvectStrength < 0 || p.SparkRadius <= 0 {
		return fmt.Errorf("epsilon, advect_strength and spark_radius must be non-negative")
	}
	if p.GlowWeight < 0 || p.FireBoost < 0 {
		return fmt.Errorf("glow_weight and fire_boost must be non-negative")
	}
	if p.FireExp < 1 {
		return fmt.Errorf("fire_exp must be >= 1, got %g", p.FireExp)
	}
	if p.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	return nil
}
