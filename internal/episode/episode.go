package episode

import (
	"fmt"
	"sort"
	"strings"
)

const (
	secondsPerWord    = 0.4
	secondsPerStaging = 2.0
)

// Validate checks the preconditions every pipeline run relies on.
func (e Episode) Validate() error {
	if len(e.Scenes) == 0 {
		return ErrEmptyOutline
	}
	seen := make(map[int]bool, len(e.Scenes))
	for _, s := range e.Scenes {
		if s.SceneNumber <= 0 {
			return fmt.Errorf("%w: scene number %d must be positive", ErrInvalidOutline, s.SceneNumber)
		}
		if seen[s.SceneNumber] {
			return fmt.Errorf("%w: duplicate scene number %d", ErrInvalidOutline, s.SceneNumber)
		}
		seen[s.SceneNumber] = true
		if len(s.Characters) == 0 {
			return fmt.Errorf("%w: scene %d has no characters", ErrInvalidOutline, s.SceneNumber)
		}
	}
	return nil
}

// OrderedScenes returns a copy of the outline sorted by scene number.
func (e Episode) OrderedScenes() []SceneOutline {
	out := make([]SceneOutline, len(e.Scenes))
	copy(out, e.Scenes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out
}

// Outline returns the outline for a scene number.
func (e Episode) Outline(sceneNumber int) (SceneOutline, bool) {
	for _, s := range e.Scenes {
		if s.SceneNumber == sceneNumber {
			return s, true
		}
	}
	return SceneOutline{}, false
}

// LineDuration estimates how long a line takes to perform, including the pause before it.
func LineDuration(l DialogueLine) float64 {
	return float64(len(strings.Fields(l.Text)))*secondsPerWord + l.PauseBefore
}

// EstimateRuntime estimates a scene's runtime from its dialogue and staging.
func EstimateRuntime(lines []DialogueLine, staging []StagingDirection) float64 {
	var total float64
	for _, l := range lines {
		total += LineDuration(l)
	}
	return total + float64(len(staging))*secondsPerStaging
}

// Beats places every comedic line on the episode timeline. Scenes are laid end to end
// in the order given; a beat lands once its pause has elapsed.
func Beats(scenes []SceneScript) []JokeRecord {
	var beats []JokeRecord
	var sceneStart float64
	for _, sc := range scenes {
		offset := sceneStart
		n := 0
		for _, l := range sc.Dialogue {
			at := offset + l.PauseBefore
			offset += LineDuration(l)
			if !l.ComedicBeat {
				continue
			}
			n++
			beats = append(beats, JokeRecord{
				BeatID:            fmt.Sprintf("s%d-b%d", sc.SceneNumber, n),
				SceneNumber:       sc.SceneNumber,
				Timestamp:         at,
				Type:              l.JokeType,
				Effectiveness:     l.Effectiveness,
				CallbackPotential: l.CallbackPotential,
			})
		}
		sceneStart += sc.RuntimeEstimate
	}
	return beats
}

// Duration is the summed runtime estimate of every scene.
func (s Script) Duration() float64 {
	var total float64
	for _, sc := range s.Scenes {
		total += sc.RuntimeEstimate
	}
	return total
}

// Scene returns the scene with the given number.
func (s Script) Scene(sceneNumber int) (SceneScript, bool) {
	for _, sc := range s.Scenes {
		if sc.SceneNumber == sceneNumber {
			return sc, true
		}
	}
	return SceneScript{}, false
}

// Screenplay flattens the script into screenplay-formatted text.
func (s Script) Screenplay() string {
	var sb strings.Builder
	if s.Title != "" {
		sb.WriteString(strings.ToUpper(s.Title))
		sb.WriteString("\n\n")
	}
	for _, sc := range s.Scenes {
		fmt.Fprintf(&sb, "SCENE %d - %s\n\n", sc.SceneNumber, strings.ToUpper(sc.Location))
		for _, d := range sc.Staging {
			sb.WriteString("(" + d.Description + ")\n\n")
		}
		for _, l := range sc.Dialogue {
			sb.WriteString("    " + strings.ToUpper(l.CharacterID) + "\n")
			if l.DeliveryNote != "" {
				sb.WriteString("        (" + l.DeliveryNote + ")\n")
			}
			sb.WriteString("    " + l.Text + "\n\n")
		}
	}
	return sb.String()
}
