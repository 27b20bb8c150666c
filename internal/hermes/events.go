package hermes

import (
	"time"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
)

const (
	SubjectEpisodeRequested    = "showrunner.episode.requested"
	SubjectEpisodeCompleted    = "showrunner.episode.completed"
	SubjectEpisodeFailed       = "showrunner.episode.failed"
	SubjectRunReviewed         = "showrunner.run.reviewed"
	SubjectRefinementIteration = "showrunner.refinement.iteration"
	SubjectRefinementCompleted = "showrunner.refinement.completed"

	// Inbound from slack-forwarder and slack-gateway.
	SubjectSlackReaction    = "swarm.slack.reaction"
	SubjectSlackInteraction = "swarm.slack.interaction"
)

// EpisodeRequested asks the service to generate and refine an episode.
// Zero-valued bounds fall back to the service defaults.
type EpisodeRequested struct {
	RequestID     string          `json:"request_id"`
	Episode       episode.Episode `json:"episode"`
	MaxIterations int             `json:"max_iterations,omitempty"`
	Threshold     float64         `json:"threshold,omitempty"`
}

// EpisodeCompleted is emitted once a requested episode has a final script.
type EpisodeCompleted struct {
	RequestID       string    `json:"request_id"`
	RunID           string    `json:"run_id"`
	Title           string    `json:"title"`
	State           string    `json:"state"`
	Passed          bool      `json:"validation_passed"`
	OverallScore    float64   `json:"overall_score"`
	Iterations      int       `json:"iterations"`
	BudgetTier      string    `json:"budget_tier"`
	Recommendations []string  `json:"recommendations"`
	Timestamp       time.Time `json:"timestamp"`
}

// IterationEvent reports one generate and validate cycle of a run.
type IterationEvent struct {
	RunID          string    `json:"run_id"`
	Iteration      int       `json:"iteration"`
	OverallScore   float64   `json:"overall_score"`
	Passed         bool      `json:"passed"`
	BlockingIssues int       `json:"blocking_issues"`
	Regenerated    []int     `json:"regenerated_scenes"`
	Timestamp      time.Time `json:"timestamp"`
}

// RefinementCompletedEvent reports the terminal state of a run.
type RefinementCompletedEvent struct {
	RunID          string    `json:"run_id"`
	State          string    `json:"state"`
	Iterations     int       `json:"iterations"`
	OverallScore   float64   `json:"overall_score"`
	Passed         bool      `json:"passed"`
	BlockingIssues int       `json:"blocking_issues"`
	Timestamp      time.Time `json:"timestamp"`
}

// EpisodeFailed is emitted when a request is refused before any script exists.
type EpisodeFailed struct {
	RequestID string    `json:"request_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// RunReviewed carries a human verdict on a stored run.
type RunReviewed struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"review_status"`
	Reviewer  string    `json:"reviewer"`
	Timestamp time.Time `json:"timestamp"`
}
