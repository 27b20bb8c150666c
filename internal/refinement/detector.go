package refinement

import (
	"sort"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/orchestrator"
	"github.com/MikeSquared-Agency/showrunner/internal/quality"
)

// maxNotesPerScene caps how much reviewer feedback is fed back into one regeneration.
const maxNotesPerScene = 5

// Detector decides which scenes a failing report should send back for regeneration.
type Detector struct {
	mapper *Mapper
}

// NewDetector creates a detector using the given mapper, or the standard one when nil.
func NewDetector(mapper *Mapper) *Detector {
	if mapper == nil {
		mapper = NewMapper()
	}
	return &Detector{mapper: mapper}
}

// Targets returns regeneration targets in scene order. Only issues in the most severe tier
// are considered. An episode-wide issue in that tier is sent to the scenes it traces back to,
// or to every scene with dialogue when it names none. A report with no issues at all
// regenerates every scene.
func (d *Detector) Targets(rep *quality.Report, scenes []episode.SceneScript) []orchestrator.Target {
	known := make(map[int]bool, len(scenes))
	var spoken []int
	for _, sc := range scenes {
		known[sc.SceneNumber] = true
		if len(sc.Dialogue) > 0 {
			spoken = append(spoken, sc.SceneNumber)
		}
	}
	if len(spoken) == 0 {
		for _, sc := range scenes {
			spoken = append(spoken, sc.SceneNumber)
		}
	}

	tier := topTier(rep.Issues, known)
	if tier == 0 {
		targets := make([]orchestrator.Target, 0, len(scenes))
		for _, sc := range scenes {
			targets = append(targets, orchestrator.Target{SceneNumber: sc.SceneNumber, Dialogue: true, Staging: true})
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].SceneNumber < targets[j].SceneNumber })
		return targets
	}

	byScene := map[int]*orchestrator.Target{}
	add := func(n int, is quality.Issue) {
		t, ok := byScene[n]
		if !ok {
			t = &orchestrator.Target{SceneNumber: n}
			byScene[n] = t
		}
		for _, e := range d.mapper.ElementsFor(is.Category) {
			switch e {
			case ElementDialogue:
				t.Dialogue = true
			case ElementStaging:
				t.Staging = true
			}
		}
		if len(t.Notes) < maxNotesPerScene {
			t.Notes = append(t.Notes, is.Message)
		}
	}

	for _, is := range rep.Issues {
		if is.Severity.Priority() != tier {
			continue
		}
		switch {
		case known[is.SceneNumber]:
			add(is.SceneNumber, is)
		case is.SceneNumber == 0:
			for _, n := range culprits(is, known, spoken) {
				add(n, is)
			}
		}
	}

	targets := make([]orchestrator.Target, 0, len(byScene))
	for _, t := range byScene {
		targets = append(targets, *t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].SceneNumber < targets[j].SceneNumber })
	return targets
}

// topTier is the highest severity priority among issues that are episode-wide or name a
// known scene, or 0.
func topTier(issues []quality.Issue, known map[int]bool) int {
	top := 0
	for _, is := range issues {
		if (is.SceneNumber == 0 || known[is.SceneNumber]) && is.Severity.Priority() > top {
			top = is.Severity.Priority()
		}
	}
	return top
}

// culprits resolves an episode-wide issue to scenes.
func culprits(is quality.Issue, known map[int]bool, spoken []int) []int {
	var out []int
	for _, n := range is.Scenes {
		if known[n] {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return spoken
	}
	return out
}
