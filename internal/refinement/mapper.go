package refinement

import "github.com/MikeSquared-Agency/showrunner/internal/quality"

// Element is a regenerable part of a scene.
type Element string

const (
	ElementDialogue Element = "dialogue"
	ElementStaging  Element = "staging"
)

// Mapper maps issue categories to the scene elements that must be regenerated to fix them.
type Mapper struct {
	mapping map[quality.Category][]Element
}

// NewMapper creates the standard category mapping. Production problems live in staging;
// everything else is in what the characters say, and staging follows the dialogue.
func NewMapper() *Mapper {
	return &Mapper{
		mapping: map[quality.Category][]Element{
			quality.CategoryVoice:      {ElementDialogue, ElementStaging},
			quality.CategoryComedy:     {ElementDialogue, ElementStaging},
			quality.CategoryPlot:       {ElementDialogue, ElementStaging},
			quality.CategoryGeneration: {ElementDialogue, ElementStaging},
			quality.CategoryProduction: {ElementStaging},
		},
	}
}

// ElementsFor returns the elements to regenerate for an issue category.
// Unknown categories regenerate the whole scene.
func (m *Mapper) ElementsFor(category quality.Category) []Element {
	elems, ok := m.mapping[category]
	if !ok {
		return []Element{ElementDialogue, ElementStaging}
	}
	result := make([]Element, len(elems))
	copy(result, elems)
	return result
}
