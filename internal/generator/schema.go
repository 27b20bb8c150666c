package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
)

// ErrSchema marks a provider response that does not have the expected shape.
var ErrSchema = errors.New("response does not match schema")

// ParseDialogue validates a raw dialogue response against the scene it was written for.
func ParseDialogue(raw string, scene episode.SceneOutline) (episode.SceneDialogue, error) {
	var d episode.SceneDialogue
	if err := json.Unmarshal([]byte(stripFences(raw)), &d); err != nil {
		return episode.SceneDialogue{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if len(d.Lines) == 0 {
		return episode.SceneDialogue{}, fmt.Errorf("%w: no lines", ErrSchema)
	}
	for i, l := range d.Lines {
		switch {
		case strings.TrimSpace(l.Text) == "":
			return episode.SceneDialogue{}, fmt.Errorf("%w: line %d has no text", ErrSchema, i)
		case !scene.HasCharacter(l.CharacterID):
			return episode.SceneDialogue{}, fmt.Errorf("%w: line %d spoken by %q who is not in scene %d", ErrSchema, i, l.CharacterID, scene.SceneNumber)
		case l.PauseBefore < 0:
			return episode.SceneDialogue{}, fmt.Errorf("%w: line %d has a negative pause", ErrSchema, i)
		case l.Effectiveness < 0 || l.Effectiveness > 1:
			return episode.SceneDialogue{}, fmt.Errorf("%w: line %d effectiveness %.2f out of range", ErrSchema, i, l.Effectiveness)
		case l.ComedicBeat && !l.JokeType.Valid():
			return episode.SceneDialogue{}, fmt.Errorf("%w: line %d has unknown joke type %q", ErrSchema, i, l.JokeType)
		}
	}
	return d, nil
}

// ParseStaging validates a raw staging response against the scene it was written for.
func ParseStaging(raw string, scene episode.SceneOutline) (episode.SceneStaging, error) {
	var s episode.SceneStaging
	if err := json.Unmarshal([]byte(stripFences(raw)), &s); err != nil {
		return episode.SceneStaging{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if len(s.Directions) == 0 {
		return episode.SceneStaging{}, fmt.Errorf("%w: no directions", ErrSchema)
	}
	for i, d := range s.Directions {
		if strings.TrimSpace(d.Description) == "" {
			return episode.SceneStaging{}, fmt.Errorf("%w: direction %d has no description", ErrSchema, i)
		}
		for _, c := range d.CharacterIDs {
			if !scene.HasCharacter(c) {
				return episode.SceneStaging{}, fmt.Errorf("%w: direction %d stages %q who is not in scene %d", ErrSchema, i, c, scene.SceneNumber)
			}
		}
	}
	return s, nil
}

// stripFences removes a surrounding markdown code fence if the model added one.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
