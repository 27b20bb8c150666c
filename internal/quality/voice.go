package quality

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
)

type characterLines struct {
	id      string
	lines   []episode.DialogueLine
	byScene map[int]int
}

func (s *Scorer) scoreVoice(script episode.Script, voices map[string]episode.VoiceProfile) (float64, []Issue) {
	chars := collectCharacters(script)
	if len(chars) == 0 {
		return 1.0, nil
	}

	var issues []Issue
	var total float64
	for _, c := range chars {
		profile, ok := voices[c.id]
		if !ok {
			issues = append(issues, Issue{
				Severity:  SeverityWarning,
				Category:  CategoryVoice,
				Character: c.id,
				Message:   fmt.Sprintf("no voice profile found for %s", c.id),
			})
			total += s.cfg.MissingProfileScore
			continue
		}
		score, charIssues := s.scoreCharacter(c, profile)
		issues = append(issues, charIssues...)
		total += score
	}
	return clamp(total / float64(len(chars))), issues
}

func (s *Scorer) scoreCharacter(c characterLines, profile episode.VoiceProfile) (float64, []Issue) {
	var issues []Issue
	scene := busiestScene(c.byScene)

	register := 1.0
	if profile.Register != "" {
		observed := observedRegister(c.lines)
		switch diff := abs(observed.Rank() - profile.Register.Rank()); diff {
		case 0:
		case 1:
			register = 0.6
		default:
			register = 0.2
		}
		if observed != profile.Register {
			issues = append(issues, Issue{
				Severity:    SeverityInfo,
				Category:    CategoryVoice,
				SceneNumber: scene,
				Character:   c.id,
				Message:     fmt.Sprintf("%s reads as %s but the profile calls for %s vocabulary", c.id, observed, profile.Register),
			})
		}
	}

	catchphrase := 1.0
	if len(profile.Catchphrases) > 0 {
		share := shareContaining(c.lines, profile.Catchphrases)
		switch {
		case share == 0:
			catchphrase = 0.5
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Category:    CategoryVoice,
				SceneNumber: scene,
				Character:   c.id,
				Message:     fmt.Sprintf("%s never uses a catchphrase", c.id),
			})
		case share > s.cfg.CatchphraseOveruse:
			catchphrase = 0.6
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Category:    CategoryVoice,
				SceneNumber: scene,
				Character:   c.id,
				Message:     fmt.Sprintf("%s overuses catchphrases (%.0f%% of lines)", c.id, share*100),
			})
		}
	}

	emotion := 1.0
	if len(profile.EmotionalRange) > 0 {
		emotion = shareInRange(c.lines, profile.EmotionalRange)
		if emotion < 0.5 {
			issues = append(issues, Issue{
				Severity:    SeverityInfo,
				Category:    CategoryVoice,
				SceneNumber: scene,
				Character:   c.id,
				Message:     fmt.Sprintf("%s plays outside their emotional range in %.0f%% of lines", c.id, (1-emotion)*100),
			})
		}
	}

	if len(profile.VerbalTics) > 0 && shareContaining(c.lines, profile.VerbalTics) == 0 {
		issues = append(issues, Issue{
			Severity:  SeverityInfo,
			Category:  CategoryVoice,
			Character: c.id,
			Message:   fmt.Sprintf("%s shows none of their verbal tics", c.id),
		})
	}

	return clamp(0.5*register + 0.3*catchphrase + 0.2*emotion), issues
}

// collectCharacters groups dialogue by speaker in order of first appearance.
func collectCharacters(script episode.Script) []characterLines {
	index := map[string]int{}
	var out []characterLines
	for _, sc := range script.Scenes {
		for _, l := range sc.Dialogue {
			i, ok := index[l.CharacterID]
			if !ok {
				i = len(out)
				index[l.CharacterID] = i
				out = append(out, characterLines{id: l.CharacterID, byScene: map[int]int{}})
			}
			out[i].lines = append(out[i].lines, l)
			out[i].byScene[sc.SceneNumber]++
		}
	}
	return out
}

func busiestScene(byScene map[int]int) int {
	best, bestCount := 0, -1
	for scene, n := range byScene {
		if n > bestCount || (n == bestCount && scene < best) {
			best, bestCount = scene, n
		}
	}
	return best
}

// observedRegister estimates vocabulary register from mean word length.
func observedRegister(lines []episode.DialogueLine) episode.Register {
	var letters, words int
	for _, l := range lines {
		for _, w := range strings.Fields(l.Text) {
			n := 0
			for _, r := range w {
				if unicode.IsLetter(r) {
					n++
				}
			}
			if n == 0 {
				continue
			}
			letters += n
			words++
		}
	}
	if words == 0 {
		return episode.RegisterModerate
	}
	mean := float64(letters) / float64(words)
	switch {
	case mean < 4.2:
		return episode.RegisterSimple
	case mean <= 5.0:
		return episode.RegisterModerate
	default:
		return episode.RegisterSophisticated
	}
}

func shareContaining(lines []episode.DialogueLine, phrases []string) float64 {
	if len(lines) == 0 {
		return 0
	}
	hits := 0
	for _, l := range lines {
		text := strings.ToLower(l.Text)
		for _, p := range phrases {
			if p != "" && strings.Contains(text, strings.ToLower(p)) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(lines))
}

func shareInRange(lines []episode.DialogueLine, allowed []string) float64 {
	if len(lines) == 0 {
		return 1
	}
	ok := 0
	for _, l := range lines {
		if l.Emotion == "" {
			ok++
			continue
		}
		for _, a := range allowed {
			if strings.EqualFold(a, l.Emotion) {
				ok++
				break
			}
		}
	}
	return float64(ok) / float64(len(lines))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
