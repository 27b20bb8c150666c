// Package backfill refines a backlog of episode outline files in one resumable batch.
package backfill

// EpisodeSummary is the outcome of one outline file.
type EpisodeSummary struct {
	Path       string  `json:"path"`
	Title      string  `json:"title"`
	RunID      string  `json:"run_id,omitempty"`
	State      string  `json:"state"`
	Overall    float64 `json:"overall_score"`
	Iterations int     `json:"iterations"`
	Error      string  `json:"error,omitempty"`
}

// State values recorded for files that never reached the loop.
const (
	StateInvalid   = "INVALID"
	StateValidated = "VALIDATED"
)
