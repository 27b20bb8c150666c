package quality

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
)

func (s *Scorer) scoreProduction(script episode.Script) (float64, BudgetTier, int, []Issue) {
	var issues []Issue

	locations := map[string]bool{}
	complex := 0
	for _, sc := range script.Scenes {
		if loc := normalizeLocation(sc.Location); loc != "" {
			locations[loc] = true
		}
		if kw := s.complexKeyword(sc); kw != "" {
			complex++
			issues = append(issues, Issue{
				Severity:    SeverityInfo,
				Category:    CategoryProduction,
				SceneNumber: sc.SceneNumber,
				Message:     fmt.Sprintf("technically demanding setting (%s)", kw),
			})
		}
	}

	n := len(locations)
	if n > s.cfg.MaxLocations {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Category: CategoryProduction,
			Message:  fmt.Sprintf("%d distinct locations exceeds the limit of %d", n, s.cfg.MaxLocations),
		})
	}

	tier := BudgetLow
	switch points := n + 2*complex; {
	case points > 8:
		tier = BudgetHigh
	case points > 4:
		tier = BudgetMedium
	}

	extra := n - 3
	if extra < 0 {
		extra = 0
	}
	score := 1.0 - 0.05*float64(extra) - 0.1*float64(complex)
	return clamp(score), tier, n, issues
}

// complexKeyword returns the first demanding keyword found in the scene's location or staging.
func (s *Scorer) complexKeyword(sc episode.SceneScript) string {
	texts := []string{sc.Location}
	for _, d := range sc.Staging {
		texts = append(texts, d.Description)
	}
	return firstTerm(texts, s.cfg.ComplexLocationKeyword)
}

func normalizeLocation(loc string) string {
	return strings.Join(strings.Fields(strings.ToLower(loc)), " ")
}
