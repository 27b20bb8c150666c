// Package quality scores an assembled script against four independent rubrics and
// decides whether it clears the quality gate.
package quality

import (
	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/timing"
)

// Input is everything a scoring pass looks at.
type Input struct {
	Script  episode.Script
	Voices  map[string]episode.VoiceProfile // may omit characters
	Timing  timing.Analysis
	Meta    episode.Meta
	Outline []episode.SceneOutline
}

// Scorer evaluates scripts. It holds no state between calls.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Threshold is the overall score a script needs to pass.
func (s *Scorer) Threshold() float64 {
	return s.cfg.PassThreshold
}

// Score runs all four rubrics. It never fails: problems are reported as issues.
func (s *Scorer) Score(in Input) *Report {
	voice, voiceIssues := s.scoreVoice(in.Script, in.Voices)
	comedy, weak, comedyIssues := s.scoreComedy(in.Script, in.Timing, in.Outline)
	production, tier, locations, productionIssues := s.scoreProduction(in.Script)
	plot, plotIssues := s.scorePlot(in.Script, in.Outline)

	w := s.cfg.Weights
	rep := &Report{
		ScriptID: in.Script.ID,
		Scores: SubScores{
			VoiceConsistency:     voice,
			ComedicDistribution:  comedy,
			ProductionComplexity: production,
			PlotCoherence:        plot,
		},
		Overall:          clamp(w.Voice*voice + w.Comedy*comedy + w.Production*production + w.Plot*plot),
		BudgetTier:       tier,
		DistinctLocation: locations,
		WeakBeats:        weak,
	}

	rep.Issues = make([]Issue, 0, len(voiceIssues)+len(comedyIssues)+len(productionIssues)+len(plotIssues))
	rep.Issues = append(rep.Issues, voiceIssues...)
	rep.Issues = append(rep.Issues, comedyIssues...)
	rep.Issues = append(rep.Issues, productionIssues...)
	rep.Issues = append(rep.Issues, plotIssues...)

	rank(rep.Issues, map[Category]float64{
		CategoryVoice:      w.Voice * (1 - voice),
		CategoryComedy:     w.Comedy * (1 - comedy),
		CategoryProduction: w.Production * (1 - production),
		CategoryPlot:       w.Plot * (1 - plot),
		CategoryGeneration: w.Plot * (1 - plot),
	})
	rep.Recommendations = recommendations(rep.Issues)
	rep.Passed = Passes(rep.Overall, rep.Issues, s.cfg.PassThreshold)
	return rep
}

// Passes is the quality gate: the overall score clears the threshold and no issue is
// blocking, so a passing report always has an empty CriticalIssues list.
func Passes(overall float64, issues []Issue, threshold float64) bool {
	if overall < threshold {
		return false
	}
	for _, is := range issues {
		if is.Severity.Blocking() {
			return false
		}
	}
	return true
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
