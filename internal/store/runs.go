package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/quality"
	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
	"github.com/MikeSquared-Agency/showrunner/internal/timing"
)

// Review statuses of a run.
const (
	ReviewNone     = "none"
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// RunRecord is a stored run with its final report.
type RunRecord struct {
	ID           uuid.UUID       `json:"id"`
	RequestID    string          `json:"request_id"`
	Title        string          `json:"title"`
	State        string          `json:"state"`
	Iterations   int             `json:"iterations"`
	OverallScore float64         `json:"overall_score"`
	Passed       bool            `json:"validation_passed"`
	BudgetTier   string          `json:"budget_tier"`
	Script       episode.Script  `json:"script"`
	Timing       timing.Analysis `json:"timing"`
	Scores       []ReportRow     `json:"iterations_detail"`
	Issues       []quality.Issue `json:"issues"`
	ReviewStatus string          `json:"review_status"`
	ReviewNote   string          `json:"review_note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ReportRow is the stored sub-score summary of one iteration.
type ReportRow struct {
	Iteration   int               `json:"iteration"`
	Overall     float64           `json:"overall_score"`
	Scores      quality.SubScores `json:"scores"`
	Passed      bool              `json:"passed"`
	Regenerated []int             `json:"regenerated_scenes"`
}

// SaveRun writes a finished run, every iteration's report and the issues of each report.
// Runs that did not fully pass are queued for human review.
func (s *Store) SaveRun(ctx context.Context, requestID string, res *refinement.Result) (uuid.UUID, error) {
	runID, err := uuid.Parse(res.RunID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse run id: %w", err)
	}
	script, err := json.Marshal(res.Script)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal script: %w", err)
	}
	analysis, err := json.Marshal(res.Analysis)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal timing: %w", err)
	}
	review := ReviewNone
	if !res.Passed() {
		review = ReviewPending
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO episode_runs (id, request_id, title, state, iterations, overall_score, passed, budget_tier, script, timing, review_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		runID, requestID, res.Script.Title, string(res.State), res.Iterations, res.Report.Overall,
		res.Report.Passed, string(res.Report.BudgetTier), string(script), string(analysis), review,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}

	for _, it := range res.History {
		rep := it.Report
		if rep == nil {
			continue
		}
		reportID := uuid.New()
		regenerated := make([]int32, len(it.Regenerated))
		for i, n := range it.Regenerated {
			regenerated[i] = int32(n)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO validation_reports (id, run_id, iteration, overall_score, voice_consistency, comedic_distribution,
				production_complexity, plot_coherence, passed, regenerated_scenes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			reportID, runID, it.Number, rep.Overall, rep.Scores.VoiceConsistency, rep.Scores.ComedicDistribution,
			rep.Scores.ProductionComplexity, rep.Scores.PlotCoherence, rep.Passed, regenerated,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert report %d: %w", it.Number, err)
		}

		batch := &pgx.Batch{}
		for rank, is := range rep.Issues {
			batch.Queue(`
				INSERT INTO report_issues (id, report_id, rank, severity, category, scene_number, character_id, message)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				uuid.New(), reportID, rank, string(is.Severity), string(is.Category), is.SceneNumber, is.Character, is.Message,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return uuid.Nil, fmt.Errorf("insert issues for report %d: %w", it.Number, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// GetRun fetches a run with its per-iteration scores and the issues of its final report.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	var (
		r                      RunRecord
		scriptJSON, timingJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, request_id, title, state, iterations, overall_score, passed, budget_tier, script, timing,
			review_status, review_note, created_at
		FROM episode_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.RequestID, &r.Title, &r.State, &r.Iterations, &r.OverallScore, &r.Passed, &r.BudgetTier,
		&scriptJSON, &timingJSON, &r.ReviewStatus, &r.ReviewNote, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := json.Unmarshal(scriptJSON, &r.Script); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if err := json.Unmarshal(timingJSON, &r.Timing); err != nil {
		return nil, fmt.Errorf("decode timing: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT iteration, overall_score, voice_consistency, comedic_distribution, production_complexity,
			plot_coherence, passed, regenerated_scenes
		FROM validation_reports WHERE run_id = $1 ORDER BY iteration`, id)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	r.Scores, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ReportRow, error) {
		var rr ReportRow
		var regenerated []int32
		err := row.Scan(&rr.Iteration, &rr.Overall, &rr.Scores.VoiceConsistency, &rr.Scores.ComedicDistribution,
			&rr.Scores.ProductionComplexity, &rr.Scores.PlotCoherence, &rr.Passed, &regenerated)
		for _, n := range regenerated {
			rr.Regenerated = append(rr.Regenerated, int(n))
		}
		return rr, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan reports: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT i.severity, i.category, i.scene_number, i.character_id, i.message
		FROM report_issues i
		JOIN validation_reports v ON v.id = i.report_id
		WHERE v.run_id = $1 AND v.iteration = $2
		ORDER BY i.rank`, id, r.Iterations)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	r.Issues, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (quality.Issue, error) {
		var is quality.Issue
		err := row.Scan(&is.Severity, &is.Category, &is.SceneNumber, &is.Character, &is.Message)
		return is, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan issues: %w", err)
	}
	return &r, nil
}

// RunSummary is a row of the review queue.
type RunSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	State        string    `json:"state"`
	OverallScore float64   `json:"overall_score"`
	ReviewStatus string    `json:"review_status"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListRunsByReview returns the newest runs with the given review status.
func (s *Store) ListRunsByReview(ctx context.Context, status string, limit int) ([]RunSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, state, overall_score, review_status, created_at
		FROM episode_runs WHERE review_status = $1
		ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[RunSummary])
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return runs, nil
}

// UpdateReviewStatus records a human verdict on a run.
func (s *Store) UpdateReviewStatus(ctx context.Context, id uuid.UUID, status, note string) error {
	switch status {
	case ReviewApproved, ReviewRejected, ReviewPending:
	default:
		return fmt.Errorf("unknown review status %q", status)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE episode_runs SET review_status = $1, review_note = $2, reviewed_at = now()
		WHERE id = $3`,
		status, note, id,
	)
	if err != nil {
		return fmt.Errorf("update review status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
