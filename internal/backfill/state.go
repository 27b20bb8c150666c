package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
)

const DefaultStatePath = "~/.showrunner/backfill-state.json"

// Outcome is what a backfill run recorded for one outline file.
type Outcome struct {
	State   string    `json:"state"`
	RunID   string    `json:"run_id,omitempty"`
	Overall float64   `json:"overall,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Progress tracks which outline files a backfill has handled, so an interrupted run resumes
// where it stopped.
type Progress struct {
	StartedAt time.Time          `json:"started_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Remaining int                `json:"remaining"`
	Episodes  map[string]Outcome `json:"episodes"`

	path string
}

// LoadProgress reads the progress file at path. A missing file starts a fresh run.
func LoadProgress(path string) (*Progress, error) {
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return &Progress{StartedAt: time.Now().UTC(), Episodes: map[string]Outcome{}, path: p}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}

	var pr Progress
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("parse progress %s: %w", p, err)
	}
	if pr.Episodes == nil {
		pr.Episodes = map[string]Outcome{}
	}
	pr.path = p
	return &pr, nil
}

// Save writes the progress file through a temp file and rename, so a crash mid-write
// leaves the previous copy intact.
func (p *Progress) Save() error {
	p.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	return nil
}

// Done reports whether the file already has a recorded outcome.
func (p *Progress) Done(path string) bool {
	_, ok := p.Episodes[path]
	return ok
}

// Record stores the outcome of one file.
func (p *Progress) Record(s EpisodeSummary) {
	if p.Episodes == nil {
		p.Episodes = map[string]Outcome{}
	}
	p.Episodes[s.Path] = Outcome{
		State:   s.State,
		RunID:   s.RunID,
		Overall: s.Overall,
		Error:   s.Error,
		At:      time.Now().UTC(),
	}
}

// Counts tallies recorded outcomes. failed counts any file that recorded an error,
// including runs that finished but could not be stored.
func (p *Progress) Counts() (passed, flagged, failed int) {
	for _, o := range p.Episodes {
		switch {
		case o.Error != "":
			failed++
		case o.State == string(refinement.StateAccept):
			passed++
		case o.State == string(refinement.StateAcceptWithWarnings):
			flagged++
		}
	}
	return passed, flagged, failed
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
