package quality

import (
	"fmt"
	"sort"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/timing"
)

// Severity grades an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Priority returns the numeric priority for a severity; higher is more severe.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Blocking reports whether an issue of this severity forces a refinement pass.
func (s Severity) Blocking() bool {
	return s == SeverityCritical || s == SeverityError
}

// Category names the rubric an issue belongs to.
type Category string

const (
	CategoryVoice      Category = "voice"
	CategoryComedy     Category = "comedy"
	CategoryProduction Category = "production"
	CategoryPlot       Category = "plot"
	CategoryGeneration Category = "generation"
)

// Issue is a single finding. SceneNumber 0 means the issue spans the episode.
type Issue struct {
	Severity    Severity `json:"severity"`
	Category    Category `json:"category"`
	SceneNumber int      `json:"scene_number,omitempty"`
	Character   string   `json:"character,omitempty"`
	Message     string   `json:"message"`

	// Scenes lists the scenes an episode-wide issue traces back to, when known.
	Scenes []int `json:"scenes,omitempty"`
}

// SubScores holds the four rubric scores, each in [0,1].
type SubScores struct {
	VoiceConsistency     float64 `json:"voice_consistency"`
	ComedicDistribution  float64 `json:"comedic_distribution"`
	ProductionComplexity float64 `json:"production_complexity"`
	PlotCoherence        float64 `json:"plot_coherence"`
}

// BudgetTier is a coarse production cost estimate.
type BudgetTier string

const (
	BudgetLow    BudgetTier = "low"
	BudgetMedium BudgetTier = "medium"
	BudgetHigh   BudgetTier = "high"
)

// Report is the outcome of one scoring pass. It is replaced, never mutated, between passes.
type Report struct {
	ScriptID         string     `json:"script_id"`
	Scores           SubScores  `json:"scores"`
	Overall          float64    `json:"overall_score"`
	Passed           bool       `json:"validation_passed"`
	Issues           []Issue    `json:"issues"`
	Recommendations  []string   `json:"recommendations"`
	BudgetTier       BudgetTier `json:"budget_tier"`
	DistinctLocation int        `json:"distinct_locations"`
	WeakBeats        int        `json:"weak_beats"`
}

// CriticalIssues returns every issue that blocks acceptance: CRITICAL and ERROR.
func (r *Report) CriticalIssues() []Issue {
	out := []Issue{}
	for _, is := range r.Issues {
		if is.Severity.Blocking() {
			out = append(out, is)
		}
	}
	return out
}

// IssuesBySeverity returns the issues with exactly the given severity.
func (r *Report) IssuesBySeverity(s Severity) []Issue {
	out := []Issue{}
	for _, is := range r.Issues {
		if is.Severity == s {
			out = append(out, is)
		}
	}
	return out
}

// Export is the structured report handed to export and CLI layers.
type Export struct {
	Report     *Report         `json:"report"`
	Timing     timing.Analysis `json:"timing"`
	Screenplay string          `json:"screenplay"`
}

// Export bundles the report with its timing picture and the rendered screenplay.
func (r *Report) Export(script episode.Script, analysis timing.Analysis) Export {
	return Export{Report: r, Timing: analysis, Screenplay: script.Screenplay()}
}

// rank orders issues by severity, then by the weighted deficit of their rubric, then by scene.
func rank(issues []Issue, deficit map[Category]float64) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity.Priority() != b.Severity.Priority() {
			return a.Severity.Priority() > b.Severity.Priority()
		}
		if deficit[a.Category] != deficit[b.Category] {
			return deficit[a.Category] > deficit[b.Category]
		}
		return a.SceneNumber < b.SceneNumber
	})
}

func recommendations(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		where := "episode"
		if is.SceneNumber > 0 {
			where = fmt.Sprintf("scene %d", is.SceneNumber)
		}
		out = append(out, fmt.Sprintf("[%s] %s (%s): %s", is.Severity, where, is.Category, is.Message))
	}
	return out
}
