// Package timing measures the comedic pacing of an episode from its beat timeline.
package timing

import (
	"math"
	"sort"
	"strconv"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
)

// Category buckets an episode by its average spacing between jokes.
type Category string

const (
	RapidFire  Category = "rapid_fire"
	WellSpaced Category = "well_spaced"
	SlowBurn   Category = "slow_burn"
)

// Config holds the pacing thresholds. The defaults were tuned by hand.
type Config struct {
	IdealGap          float64 // seconds between jokes that scores a perfect 1.0
	RapidFireBelow    float64
	SlowBurnAbove     float64
	ClusterGap        float64 // gaps strictly below this cluster
	DeadZoneGap       float64 // gaps strictly above this are dead zones
	ClusterPenalty    float64
	ClusterPenaltyCap float64
	DeadZonePenalty   float64
	DeadZoneCap       float64
}

// DefaultConfig returns the standard pacing thresholds.
func DefaultConfig() Config {
	return Config{
		IdealGap:          45,
		RapidFireBelow:    30,
		SlowBurnAbove:     90,
		ClusterGap:        20,
		DeadZoneGap:       120,
		ClusterPenalty:    0.1,
		ClusterPenaltyCap: 0.4,
		DeadZonePenalty:   0.15,
		DeadZoneCap:       0.5,
	}
}

// Window is a span of the timeline flagged as a cluster or a dead zone.
type Window struct {
	ID     string  `json:"id"`
	Start  float64 `json:"start_seconds"`
	End    float64 `json:"end_seconds"`
	Scenes []int   `json:"scenes"`
}

// Analysis is the derived pacing picture of one script. It is recomputed on every pass.
type Analysis struct {
	JokeCount      int      `json:"joke_count"`
	AverageGap     float64  `json:"average_gap_seconds"`
	Category       Category `json:"timing_category"`
	Clusters       []Window `json:"clusters"`
	DeadZones      []Window `json:"dead_zones"`
	PacingScore    float64  `json:"pacing_score"`
	Duration       float64  `json:"duration_seconds"`
	JokesPerMinute float64  `json:"jokes_per_minute"`
}

// Analyzer computes pacing with a fixed set of thresholds.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer returns an analyzer using cfg.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze runs the default analyzer.
func Analyze(beats []episode.JokeRecord, duration float64) Analysis {
	return NewAnalyzer(DefaultConfig()).Analyze(beats, duration)
}

// Analyze computes spacing statistics, windows and the pacing score. The input is not modified.
func (a *Analyzer) Analyze(beats []episode.JokeRecord, duration float64) Analysis {
	sorted := make([]episode.JokeRecord, len(beats))
	copy(sorted, beats)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	res := Analysis{
		JokeCount: len(sorted),
		Duration:  duration,
		Clusters:  []Window{},
		DeadZones: []Window{},
	}
	if duration > 0 {
		res.JokesPerMinute = float64(len(sorted)) / (duration / 60)
	}
	if len(sorted) > 1 {
		res.AverageGap = (sorted[len(sorted)-1].Timestamp - sorted[0].Timestamp) / float64(len(sorted)-1)
	}
	res.Category = a.categorize(res.AverageGap)

	var open *Window
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		gap := cur.Timestamp - prev.Timestamp

		if gap < a.cfg.ClusterGap {
			if open == nil {
				open = &Window{Start: prev.Timestamp, Scenes: []int{prev.SceneNumber}}
			}
			open.End = cur.Timestamp
			open.Scenes = appendScene(open.Scenes, cur.SceneNumber)
		} else if open != nil {
			res.Clusters = append(res.Clusters, *open)
			open = nil
		}

		if gap > a.cfg.DeadZoneGap {
			res.DeadZones = append(res.DeadZones, Window{
				Start:  prev.Timestamp,
				End:    cur.Timestamp,
				Scenes: appendScene([]int{prev.SceneNumber}, cur.SceneNumber),
			})
		}
	}
	if open != nil {
		res.Clusters = append(res.Clusters, *open)
	}
	for i := range res.Clusters {
		res.Clusters[i].ID = windowID("cluster", i)
	}
	for i := range res.DeadZones {
		res.DeadZones[i].ID = windowID("dead-zone", i)
	}

	res.PacingScore = a.pacing(res.AverageGap, len(res.Clusters), len(res.DeadZones))
	return res
}

func (a *Analyzer) categorize(avg float64) Category {
	switch {
	case avg < a.cfg.RapidFireBelow:
		return RapidFire
	case avg > a.cfg.SlowBurnAbove:
		return SlowBurn
	default:
		return WellSpaced
	}
}

// BaseScore is the spacing component of the pacing score, before window penalties.
func (a *Analyzer) BaseScore(avg float64) float64 {
	if a.cfg.IdealGap <= 0 {
		return 0
	}
	return 1.0 - math.Min(math.Abs(avg-a.cfg.IdealGap)/a.cfg.IdealGap, 1.0)
}

func (a *Analyzer) pacing(avg float64, clusters, deadZones int) float64 {
	score := a.BaseScore(avg)
	score -= math.Min(a.cfg.ClusterPenalty*float64(clusters), a.cfg.ClusterPenaltyCap)
	score -= math.Min(a.cfg.DeadZonePenalty*float64(deadZones), a.cfg.DeadZoneCap)
	if score < 0 {
		return 0
	}
	return score
}

func appendScene(scenes []int, n int) []int {
	for _, s := range scenes {
		if s == n {
			return scenes
		}
	}
	return append(scenes, n)
}

func windowID(kind string, i int) string {
	return kind + "-" + strconv.Itoa(i+1)
}
