package backfill

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
)

// Config holds the backfill command configuration.
type Config struct {
	Dir        string
	SingleFile string        // process a single file only
	StatePath  string        // default: DefaultStatePath
	DryRun     bool          // validate outlines without generating
	BatchSize  int           // episodes between pauses; 0 disables pausing
	Pause      time.Duration // pause between batches
	RequestID  string        // request id label for stored runs (default: "backfill")
}

// Refiner runs the refinement loop. *refinement.Loop implements it.
type Refiner interface {
	Run(ctx context.Context, ep episode.Episode) (*refinement.Result, error)
}

// RunStore persists finished runs. *store.Store implements it.
type RunStore interface {
	SaveRun(ctx context.Context, requestID string, res *refinement.Result) (uuid.UUID, error)
}

// Notifier receives batch summaries. *slack.Poster implements it.
type Notifier interface {
	PostThread(ctx context.Context, threadTS, text string) error
}

// Runner orchestrates the backfill process.
type Runner struct {
	cfg      Config
	refiner  Refiner
	store    RunStore
	notifier Notifier
	logger   *slog.Logger
}

// NewRunner creates a backfill runner. store and notifier may be nil.
func NewRunner(cfg Config, r Refiner, s RunStore, n Notifier, logger *slog.Logger) *Runner {
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath
	}
	return &Runner{
		cfg:      cfg,
		refiner:  r,
		store:    s,
		notifier: n,
		logger:   logger,
	}
}

func (r *Runner) requestID() string {
	if r.cfg.RequestID != "" {
		return r.cfg.RequestID
	}
	return "backfill"
}

// Run refines every outline not yet recorded in the progress file and returns a summary per
// file handled in this invocation.
func (r *Runner) Run(ctx context.Context) ([]EpisodeSummary, error) {
	progress, err := LoadProgress(r.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	files, err := r.discoverFiles()
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	var pending []string
	for _, f := range files {
		if !progress.Done(f) {
			pending = append(pending, f)
		}
	}
	progress.Remaining = len(pending)
	r.logger.Info("files to process", "total", len(files), "pending", len(pending), "dry_run", r.cfg.DryRun)

	var (
		summaries []EpisodeSummary
		batch     []EpisodeSummary
	)
	for _, path := range pending {
		select {
		case <-ctx.Done():
			r.logger.Info("backfill interrupted, saving progress")
			r.save(progress)
			r.postBatchSummary(context.WithoutCancel(ctx), batch)
			return summaries, ctx.Err()
		default:
		}

		s := r.processFile(ctx, path)
		summaries = append(summaries, s)
		batch = append(batch, s)

		progress.Record(s)
		progress.Remaining--
		r.save(progress)

		if r.cfg.BatchSize > 0 && len(batch) >= r.cfg.BatchSize {
			r.logger.Info("batch complete, pausing", "episodes_in_batch", len(batch), "total", len(summaries))
			r.postBatchSummary(ctx, batch)
			batch = nil

			select {
			case <-ctx.Done():
				return summaries, ctx.Err()
			case <-time.After(r.cfg.Pause):
			}
		}
	}

	r.postBatchSummary(ctx, batch)

	passed, flagged, failed := progress.Counts()
	r.logger.Info("backfill complete",
		"files_processed", len(summaries),
		"passed", passed,
		"flagged", flagged,
		"failed", failed,
	)
	return summaries, nil
}

func (r *Runner) save(p *Progress) {
	if err := p.Save(); err != nil {
		r.logger.Warn("failed to save backfill progress", "error", err)
	}
}

func (r *Runner) processFile(ctx context.Context, path string) EpisodeSummary {
	s := EpisodeSummary{Path: path}

	ep, err := episode.LoadFile(path)
	if err == nil {
		s.Title = ep.Meta.Title
		err = ep.Validate()
	}
	if err != nil {
		r.logger.Warn("invalid episode outline", "path", path, "error", err)
		s.State = StateInvalid
		s.Error = err.Error()
		return s
	}

	if r.cfg.DryRun {
		s.State = StateValidated
		return s
	}

	r.logger.Info("refining episode", "path", path, "title", ep.Meta.Title, "scenes", len(ep.Scenes))
	res, err := r.refiner.Run(ctx, *ep)
	if err != nil {
		r.logger.Error("refinement failed", "path", path, "error", err)
		s.State = StateInvalid
		s.Error = err.Error()
		return s
	}

	s.RunID = res.RunID
	s.State = string(res.State)
	s.Overall = res.Report.Overall
	s.Iterations = res.Iterations

	if r.store != nil {
		if _, err := r.store.SaveRun(ctx, r.requestID(), res); err != nil {
			r.logger.Error("persist failed", "path", path, "run_id", res.RunID, "error", err)
			s.Error = err.Error()
		}
	}
	return s
}

// postBatchSummary posts a summary of backfill results to Slack.
// If Slack is not configured, it logs the summary instead.
func (r *Runner) postBatchSummary(ctx context.Context, summaries []EpisodeSummary) {
	if len(summaries) == 0 {
		return
	}

	text := FormatSummary(summaries)

	if r.notifier == nil {
		r.logger.Info("backfill batch summary (no Slack configured)", "summary", text)
		return
	}
	if err := r.notifier.PostThread(ctx, "", text); err != nil {
		r.logger.Warn("failed to post batch summary to Slack, logging instead",
			"error", err,
			"summary", text,
		)
	}
}

// FormatSummary formats episode summaries grouped by final state.
func FormatSummary(summaries []EpisodeSummary) string {
	byState := make(map[string][]EpisodeSummary)
	for _, s := range summaries {
		byState[s.State] = append(byState[s.State], s)
	}

	states := make([]string, 0, len(byState))
	for st := range byState {
		states = append(states, st)
	}
	sort.Strings(states)

	var sb strings.Builder
	sb.WriteString("*Backfill Batch Summary*\n")

	for _, st := range states {
		eps := byState[st]
		fmt.Fprintf(&sb, "\n*%s* (%d episodes)\n", st, len(eps))
		for _, e := range eps {
			title := e.Title
			if title == "" {
				title = filepath.Base(e.Path)
			}
			fmt.Fprintf(&sb, "  - %s: %.2f after %d iteration(s)", title, e.Overall, e.Iterations)
			if e.Error != "" {
				fmt.Fprintf(&sb, " (error: %s)", e.Error)
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func (r *Runner) discoverFiles() ([]string, error) {
	if r.cfg.SingleFile != "" {
		return []string{expandHome(r.cfg.SingleFile)}, nil
	}

	var files []string
	err := filepath.WalkDir(expandHome(r.cfg.Dir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
