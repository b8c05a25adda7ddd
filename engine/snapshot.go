package engine

import (
	"time"

	"github.com/cwbudde/algo-soundprint/band"
)

// Snapshot is the performance frozen at completion.
type Snapshot struct {
	Run        uint64              `json:"run"`
	ActiveRows [band.Count]int     `json:"active_rows"`
	Touched    int                 `json:"touched"`
	Duration   time.Duration       `json:"duration"`
	Elapsed    time.Duration       `json:"elapsed"`
	Stopped    bool                `json:"stopped"`
	BandLevels [band.Count]float64 `json:"band_levels"`
}

// GainsDB returns the equalizer setting each locked row stands for;
// untouched bands report 0 dB.
func (s Snapshot) GainsDB() [band.Count]float64 {
	var out [band.Count]float64
	for b, row := range s.ActiveRows {
		if row != band.Untouched {
			out[b] = band.GainDB(row)
		}
	}
	return out
}

// Observer receives facts about finished work. It is called on the host
// loop and must not call back into the engine.
type Observer interface {
	RunStarted(run uint64, duration time.Duration)
	RunCompleted(run uint64, elapsed time.Duration, snap Snapshot)
	ArtifactProduced(run uint64, bytes int, mime string)
}
