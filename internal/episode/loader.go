package episode

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads an episode definition from a YAML file.
func LoadFile(path string) (*Episode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read episode file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML episode definition. Voice profiles keyed by character
// inherit the map key as their CharacterID when it is omitted.
func Parse(data []byte) (*Episode, error) {
	var ep Episode
	if err := yaml.Unmarshal(data, &ep); err != nil {
		return nil, fmt.Errorf("parse episode: %w", err)
	}
	for id, vp := range ep.Voices {
		if vp.CharacterID == "" {
			vp.CharacterID = id
			ep.Voices[id] = vp
		}
	}
	return &ep, nil
}
