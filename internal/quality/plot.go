package quality

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
)

type structuralBeat string

const (
	beatSetup      structuralBeat = "setup"
	beatEscalation structuralBeat = "escalation"
	beatResolution structuralBeat = "resolution"
)

// structuralKeywords match whole words; a trailing "*" marks a stem.
var structuralKeywords = map[structuralBeat][]string{
	beatSetup:      {"setup", "set up", "introduc*", "establish*", "arriv*", "begin*", "plan", "planning"},
	beatEscalation: {"escalat*", "complicat*", "worse", "conflict*", "chaos", "chaotic", "disaster*", "spiral*", "panic*", "twist*"},
	beatResolution: {"resolv*", "resolution", "reconcil*", "apolog*", "finally", "payoff", "pay off", "wrap up", "wraps up", "make up", "makes up"},
}

func (s *Scorer) scorePlot(script episode.Script, outline []episode.SceneOutline) (float64, []Issue) {
	var issues []Issue
	score := 1.0
	scenes := script.Scenes

	if len(scenes) < s.cfg.MinScenes {
		score -= 0.3
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Category: CategoryPlot,
			Message:  fmt.Sprintf("short script: %d scenes, at least %d expected", len(scenes), s.cfg.MinScenes),
		})
	}

	lines := 0
	for _, sc := range scenes {
		lines += len(sc.Dialogue)
		if sc.Degraded {
			score -= 0.15
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Category:    CategoryGeneration,
				SceneNumber: sc.SceneNumber,
				Message:     "scene fell back to placeholder content: " + sc.Failure,
			})
		}
	}
	if lines == 0 {
		score -= 0.5
		issues = append(issues, Issue{
			Severity: SeverityCritical,
			Category: CategoryGeneration,
			Message:  "script has no dialogue",
		})
	}

	found := detectStructure(scenes, outline)
	for i, b := range []structuralBeat{beatSetup, beatEscalation, beatResolution} {
		if found[b] {
			continue
		}
		score -= 0.2
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Category:    CategoryPlot,
			SceneNumber: anchorScene(scenes, i),
			Message:     fmt.Sprintf("no %s beat found", b),
		})
	}

	return clamp(score), issues
}

// detectStructure marks which structural beats are present, from outline purposes,
// planned beat descriptions, staging and dialogue.
func detectStructure(scenes []episode.SceneScript, outline []episode.SceneOutline) map[structuralBeat]bool {
	found := map[structuralBeat]bool{}
	var texts []string
	for _, o := range outline {
		if p := structuralBeat(strings.ToLower(strings.TrimSpace(o.Purpose))); structuralKeywords[p] != nil {
			found[p] = true
		}
		texts = append(texts, o.ComedicBeats...)
	}
	for _, sc := range scenes {
		for _, d := range sc.Staging {
			texts = append(texts, d.Description)
		}
		for _, l := range sc.Dialogue {
			texts = append(texts, l.Text)
		}
	}
	for beat, kws := range structuralKeywords {
		if !found[beat] && firstTerm(texts, kws) != "" {
			found[beat] = true
		}
	}
	return found
}

// anchorScene picks where a missing structural beat belongs: first, middle or last scene.
func anchorScene(scenes []episode.SceneScript, position int) int {
	if len(scenes) == 0 {
		return 0
	}
	switch position {
	case 0:
		return scenes[0].SceneNumber
	case 1:
		return scenes[len(scenes)/2].SceneNumber
	default:
		return scenes[len(scenes)-1].SceneNumber
	}
}
