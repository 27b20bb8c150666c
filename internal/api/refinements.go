package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/quality"
	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
	"github.com/MikeSquared-Agency/showrunner/internal/store"
)

// Refiner runs the refinement loop. *refinement.Loop implements it.
type Refiner interface {
	Config() refinement.Config
	Refine(ctx context.Context, ep episode.Episode, cfg refinement.Config) (*refinement.Result, error)
}

// RunStore reads and writes stored runs. *store.Store implements it.
type RunStore interface {
	SaveRun(ctx context.Context, requestID string, res *refinement.Result) (uuid.UUID, error)
	GetRun(ctx context.Context, id uuid.UUID) (*store.RunRecord, error)
	ListRunsByReview(ctx context.Context, status string, limit int) ([]store.RunSummary, error)
	UpdateReviewStatus(ctx context.Context, id uuid.UUID, status, note string) error
}

// RefinementServer extends the base server with episode refinement and run lookup.
type RefinementServer struct {
	*Server
	refiner Refiner
	runs    RunStore
	logger  *slog.Logger
}

// RefineRequest is the body of POST /api/v1/episodes/refine. Zero bounds use the service defaults.
type RefineRequest struct {
	RequestID     string          `json:"request_id,omitempty"`
	Episode       episode.Episode `json:"episode"`
	MaxIterations int             `json:"max_iterations,omitempty"`
	Threshold     float64         `json:"threshold,omitempty"`
}

// RefineResponse carries the final script, its report and the iteration history.
type RefineResponse struct {
	RunID      string                 `json:"run_id"`
	State      refinement.State       `json:"state"`
	Passed     bool                   `json:"passed"`
	Iterations int                    `json:"iterations"`
	Stored     bool                   `json:"stored"`
	History    []refinement.Iteration `json:"history"`
	Export     quality.Export         `json:"export"`
}

// ReviewRequest is the body of POST /api/v1/runs/{id}/review.
type ReviewRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// NewRefinementServer creates a server with refinement capabilities. runs may be nil,
// in which case nothing is stored and the run endpoints answer 503.
func NewRefinementServer(port int, apiToken string, refiner Refiner, runs RunStore, logger *slog.Logger) *RefinementServer {
	base := NewServer(port, apiToken)
	rs := &RefinementServer{
		Server:  base,
		refiner: refiner,
		runs:    runs,
		logger:  logger,
	}

	base.router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/episodes/refine", rs.refineEpisode)
		r.Get("/runs", rs.listRuns)
		r.Get("/runs/{id}", rs.getRun)
		r.Post("/runs/{id}/review", rs.reviewRun)
	})

	return rs
}

// refineEpisode handles POST /api/v1/episodes/refine
func (rs *RefinementServer) refineEpisode(w http.ResponseWriter, r *http.Request) {
	var req RefineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	cfg := rs.refiner.Config().Override(req.MaxIterations, req.Threshold)
	res, err := rs.refiner.Refine(r.Context(), req.Episode, cfg)
	if err != nil {
		if isPrecondition(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rs.logger.Error("refinement failed", "request_id", req.RequestID, "error", err)
		writeError(w, http.StatusInternalServerError, "refinement failed")
		return
	}

	stored := false
	if rs.runs != nil {
		if _, err := rs.runs.SaveRun(r.Context(), req.RequestID, res); err != nil {
			rs.logger.Error("failed to store run", "run_id", res.RunID, "error", err)
		} else {
			stored = true
		}
	}

	writeJSON(w, http.StatusOK, RefineResponse{
		RunID:      res.RunID,
		State:      res.State,
		Passed:     res.Passed(),
		Iterations: res.Iterations,
		Stored:     stored,
		History:    res.History,
		Export:     res.Report.Export(res.Script, res.Analysis),
	})
}

// listRuns handles GET /api/v1/runs?review=pending&limit=20
func (rs *RefinementServer) listRuns(w http.ResponseWriter, r *http.Request) {
	if rs.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not configured")
		return
	}
	status := r.URL.Query().Get("review")
	if status == "" {
		status = store.ReviewPending
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %v", err))
			return
		}
		limit = n
	}

	runs, err := rs.runs.ListRunsByReview(r.Context(), status, limit)
	if err != nil {
		rs.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// getRun handles GET /api/v1/runs/{id}
func (rs *RefinementServer) getRun(w http.ResponseWriter, r *http.Request) {
	if rs.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := rs.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		rs.logger.Error("failed to get run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// reviewRun handles POST /api/v1/runs/{id}/review
func (rs *RefinementServer) reviewRun(w http.ResponseWriter, r *http.Request) {
	if rs.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	switch req.Status {
	case store.ReviewApproved, store.ReviewRejected, store.ReviewPending:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown review status %q", req.Status))
		return
	}

	err = rs.runs.UpdateReviewStatus(r.Context(), id, req.Status, req.Note)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		rs.logger.Error("failed to update review", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "update review failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": id.String(), "review_status": req.Status})
}

func isPrecondition(err error) bool {
	return errors.Is(err, episode.ErrEmptyOutline) ||
		errors.Is(err, episode.ErrInvalidOutline) ||
		errors.Is(err, refinement.ErrInvalidConfig)
}
