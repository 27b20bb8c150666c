package refinement

import (
	"reflect"
	"testing"

	"github.com/MikeSquared-Agency/showrunner/internal/quality"
)

func TestMapper_ElementsFor(t *testing.T) {
	mapper := NewMapper()

	tests := []struct {
		name     string
		category quality.Category
		expected []Element
	}{
		{"voice issues rewrite dialogue", quality.CategoryVoice, []Element{ElementDialogue, ElementStaging}},
		{"comedy issues rewrite dialogue", quality.CategoryComedy, []Element{ElementDialogue, ElementStaging}},
		{"plot issues rewrite dialogue", quality.CategoryPlot, []Element{ElementDialogue, ElementStaging}},
		{"generation failures rewrite everything", quality.CategoryGeneration, []Element{ElementDialogue, ElementStaging}},
		{"production issues restage only", quality.CategoryProduction, []Element{ElementStaging}},
		{"unknown category", quality.Category("mystery"), []Element{ElementDialogue, ElementStaging}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mapper.ElementsFor(tt.category)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ElementsFor(%q) = %v, expected %v", tt.category, result, tt.expected)
			}
		})
	}
}

func TestMapper_ReturnsCopy(t *testing.T) {
	mapper := NewMapper()

	result1 := mapper.ElementsFor(quality.CategoryProduction)
	result1[0] = "modified"

	result2 := mapper.ElementsFor(quality.CategoryProduction)
	if result2[0] != ElementStaging {
		t.Errorf("mapper returned shared slice, modification affected subsequent calls")
	}
}
