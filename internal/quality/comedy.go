package quality

import (
	"fmt"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/timing"
)

func (s *Scorer) scoreComedy(script episode.Script, analysis timing.Analysis, outline []episode.SceneOutline) (float64, int, []Issue) {
	var issues []Issue
	beats := episode.Beats(script.Scenes)

	weak := 0
	var weakScenes []int
	sum := map[int]float64{}
	count := map[int]int{}
	for _, b := range beats {
		if b.Effectiveness < s.cfg.WeakBeatThreshold {
			weak++
			if n := len(weakScenes); n == 0 || weakScenes[n-1] != b.SceneNumber {
				weakScenes = append(weakScenes, b.SceneNumber)
			}
		}
		sum[b.SceneNumber] += b.Effectiveness
		count[b.SceneNumber]++
	}

	planned := map[int]int{}
	for _, o := range outline {
		planned[o.SceneNumber] = len(o.ComedicBeats)
	}

	for _, sc := range script.Scenes {
		n := count[sc.SceneNumber]
		if n == 0 {
			if planned[sc.SceneNumber] > 0 {
				issues = append(issues, Issue{
					Severity:    SeverityWarning,
					Category:    CategoryComedy,
					SceneNumber: sc.SceneNumber,
					Message:     fmt.Sprintf("no comedic beats landed (%d planned)", planned[sc.SceneNumber]),
				})
			}
			continue
		}
		if mean := sum[sc.SceneNumber] / float64(n); mean < s.cfg.WeakBeatThreshold {
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Category:    CategoryComedy,
				SceneNumber: sc.SceneNumber,
				Message:     fmt.Sprintf("weak beats: mean effectiveness %.2f", mean),
			})
		}
	}

	var weakFraction float64
	if len(beats) > 0 {
		weakFraction = float64(weak) / float64(len(beats))
	} else {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Category: CategoryComedy,
			Message:  "script contains no comedic beats",
		})
	}
	if weakFraction > s.cfg.WeakFractionLimit {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Category: CategoryComedy,
			Message:  fmt.Sprintf("%.0f%% of beats are weak (limit %.0f%%)", weakFraction*100, s.cfg.WeakFractionLimit*100),
			Scenes:   weakScenes,
		})
	}

	for _, w := range analysis.Clusters {
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Category:    CategoryComedy,
			SceneNumber: w.Scenes[len(w.Scenes)-1],
			Message:     fmt.Sprintf("jokes cluster between %.0fs and %.0fs", w.Start, w.End),
		})
	}
	for _, w := range analysis.DeadZones {
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Category:    CategoryComedy,
			SceneNumber: w.Scenes[0],
			Message:     fmt.Sprintf("dead zone of %.0fs with no jokes", w.End-w.Start),
		})
	}

	return clamp(analysis.PacingScore * (1 - weakFraction/2)), weak, issues
}
