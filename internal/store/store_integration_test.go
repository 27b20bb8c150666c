//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/quality"
	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
	"github.com/MikeSquared-Agency/showrunner/internal/timing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func testResult() *refinement.Result {
	first := &quality.Report{
		Overall: 0.55,
		Scores:  quality.SubScores{VoiceConsistency: 0.5, ComedicDistribution: 0.4, ProductionComplexity: 1, PlotCoherence: 0.4},
		Issues: []quality.Issue{
			{Severity: quality.SeverityError, Category: quality.CategoryGeneration, SceneNumber: 2, Message: "scene fell back to placeholder content"},
		},
	}
	final := &quality.Report{
		Overall:    0.66,
		Scores:     quality.SubScores{VoiceConsistency: 0.5, ComedicDistribution: 0.7, ProductionComplexity: 1, PlotCoherence: 0.4},
		BudgetTier: quality.BudgetLow,
		Issues: []quality.Issue{
			{Severity: quality.SeverityWarning, Category: quality.CategoryVoice, Character: "ana", Message: "no voice profile found for ana"},
			{Severity: quality.SeverityInfo, Category: quality.CategoryProduction, SceneNumber: 1, Message: "rooftop"},
		},
	}
	return &refinement.Result{
		RunID: uuid.NewString(),
		Script: episode.Script{Title: "Integration Pilot", Scenes: []episode.SceneScript{
			{SceneNumber: 1, Location: "Rooftop", Dialogue: []episode.DialogueLine{{CharacterID: "ana", Text: "Hi"}}},
		}},
		Report:     final,
		Analysis:   timing.Analysis{JokeCount: 3, Category: timing.WellSpaced, PacingScore: 0.9},
		State:      refinement.StateAcceptWithWarnings,
		Iterations: 2,
		History: []refinement.Iteration{
			{Number: 1, Overall: first.Overall, Regenerated: []int{1, 2}, Report: first},
			{Number: 2, Overall: final.Overall, Regenerated: []int{2}, Report: final},
		},
	}
}

func TestIntegration_SaveAndGetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	res := testResult()

	id, err := s.SaveRun(ctx, "req-"+uuid.NewString()[:8], res)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM episode_runs WHERE id = $1", id)
	})

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Title != "Integration Pilot" {
		t.Errorf("expected title, got %q", got.Title)
	}
	if got.State != string(refinement.StateAcceptWithWarnings) {
		t.Errorf("expected state ACCEPT_WITH_WARNINGS, got %q", got.State)
	}
	if got.ReviewStatus != ReviewPending {
		t.Errorf("expected review_status pending, got %q", got.ReviewStatus)
	}
	if len(got.Scores) != 2 {
		t.Fatalf("expected 2 iterations, got %d", len(got.Scores))
	}
	if len(got.Scores[1].Regenerated) != 1 || got.Scores[1].Regenerated[0] != 2 {
		t.Errorf("expected iteration 2 to regenerate [2], got %v", got.Scores[1].Regenerated)
	}
	if len(got.Issues) != 2 || got.Issues[0].Character != "ana" {
		t.Errorf("expected final report issues in rank order, got %+v", got.Issues)
	}
	if got.Timing.JokeCount != 3 {
		t.Errorf("expected timing to round-trip, got %+v", got.Timing)
	}
	if len(got.Script.Scenes) != 1 || got.Script.Scenes[0].Location != "Rooftop" {
		t.Errorf("expected script to round-trip, got %+v", got.Script)
	}

	pending, err := s.ListRunsByReview(ctx, ReviewPending, 200)
	if err != nil {
		t.Fatalf("ListRunsByReview failed: %v", err)
	}
	found := false
	for _, r := range pending {
		if r.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("expected run in pending review queue")
	}

	if err := s.UpdateReviewStatus(ctx, id, ReviewApproved, "good enough for the table read"); err != nil {
		t.Fatalf("UpdateReviewStatus failed: %v", err)
	}
	got, err = s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun after update failed: %v", err)
	}
	if got.ReviewStatus != ReviewApproved {
		t.Errorf("expected review_status approved, got %q", got.ReviewStatus)
	}
}

func TestIntegration_GetRunNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetRun(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_UpdateReviewStatusValidation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.UpdateReviewStatus(ctx, uuid.New(), "maybe", ""); err == nil {
		t.Error("expected error for unknown status")
	}
	if err := s.UpdateReviewStatus(ctx, uuid.New(), ReviewApproved, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
