package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/hermes"
	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
	"github.com/MikeSquared-Agency/showrunner/internal/slack"
)

// runTimeout bounds one refinement run started from the bus.
const runTimeout = 15 * time.Minute

const rejectionPrompt = "What should change? Notes in this thread go to the writers' room."

// Refiner runs the refinement loop. *refinement.Loop implements it.
type Refiner interface {
	Config() refinement.Config
	Refine(ctx context.Context, ep episode.Episode, cfg refinement.Config) (*refinement.Result, error)
}

// RunStore persists runs and review verdicts. *store.Store implements it.
type RunStore interface {
	SaveRun(ctx context.Context, requestID string, res *refinement.Result) (uuid.UUID, error)
	UpdateReviewStatus(ctx context.Context, id uuid.UUID, status, note string) error
}

// Bus publishes events. *hermes.Client implements it.
type Bus interface {
	Publish(subject string, data any) error
}

// Reviewer asks humans to look at runs. *slack.Poster implements it.
type Reviewer interface {
	PostReviewRequest(ctx context.Context, res *refinement.Result) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// Processor turns episode requests from the bus into refined, stored scripts and routes
// review feedback back to the store.
type Processor struct {
	refiner  Refiner
	store    RunStore
	bus      Bus
	reviewer Reviewer
	logger   *slog.Logger

	mu             sync.Mutex
	pendingReviews map[string]*pendingReview // keyed by review message TS
}

// pendingReview links a Slack review message to its stored run.
type pendingReview struct {
	RunID     uuid.UUID
	RequestID string
	Title     string
}

// New creates a processor. store, bus and reviewer may be nil.
func New(r Refiner, s RunStore, bus Bus, reviewer Reviewer, logger *slog.Logger) *Processor {
	return &Processor{
		refiner:        r,
		store:          s,
		bus:            bus,
		reviewer:       reviewer,
		logger:         logger,
		pendingReviews: make(map[string]*pendingReview),
	}
}

// HandleEpisodeRequested is the NATS handler for showrunner.episode.requested.
func (p *Processor) HandleEpisodeRequested(subject string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var req hermes.EpisodeRequested
	if err := json.Unmarshal(data, &req); err != nil {
		p.logger.Error("failed to parse episode request", "error", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	p.logger.Info("processing episode request",
		"request_id", req.RequestID,
		"title", req.Episode.Meta.Title,
		"scenes", len(req.Episode.Scenes),
	)

	cfg := p.refiner.Config().Override(req.MaxIterations, req.Threshold)
	res, err := p.refiner.Refine(ctx, req.Episode, cfg)
	if err != nil {
		p.logger.Error("refinement failed", "request_id", req.RequestID, "error", err)
		p.publish(hermes.SubjectEpisodeFailed, hermes.EpisodeFailed{
			RequestID: req.RequestID,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	runID, stored := p.persist(ctx, req.RequestID, res)

	p.publish(hermes.SubjectEpisodeCompleted, hermes.EpisodeCompleted{
		RequestID:       req.RequestID,
		RunID:           res.RunID,
		Title:           res.Script.Title,
		State:           string(res.State),
		Passed:          res.Passed(),
		OverallScore:    res.Report.Overall,
		Iterations:      res.Iterations,
		BudgetTier:      string(res.Report.BudgetTier),
		Recommendations: res.Report.Recommendations,
		Timestamp:       time.Now().UTC(),
	})

	if !res.Passed() && stored && p.reviewer != nil {
		ts, err := p.reviewer.PostReviewRequest(ctx, res)
		if err != nil {
			p.logger.Error("slack post failed", "run_id", res.RunID, "error", err)
		} else {
			p.mu.Lock()
			p.pendingReviews[ts] = &pendingReview{RunID: runID, RequestID: req.RequestID, Title: res.Script.Title}
			p.mu.Unlock()
		}
	}

	p.logger.Info("episode processed",
		"request_id", req.RequestID,
		"run_id", res.RunID,
		"state", res.State,
		"iterations", res.Iterations,
		"overall", res.Report.Overall,
	)
}

// HandleReaction processes Slack reaction feedback from slack-forwarder via NATS.
func (p *Processor) HandleReaction(subject string, data []byte) {
	evt, err := slack.ParseReactionEvent(data)
	if err != nil {
		p.logger.Error("failed to parse reaction", "error", err)
		return
	}

	verdict := slack.ParseReaction(evt.Reaction)
	if !verdict.Final() {
		return // not a review reaction
	}

	review, ok := p.takeReview(evt.MessageTS)
	if !ok {
		return // not a message we're tracking
	}

	p.logger.Info("processing review reaction",
		"reaction", evt.Reaction,
		"verdict", string(verdict),
		"run_id", review.RunID,
	)
	p.recordVerdict(context.Background(), review.RunID, verdict, evt.UserID, evt.MessageTS)
}

// persist stores the run. It reports false when nothing was stored.
func (p *Processor) persist(ctx context.Context, requestID string, res *refinement.Result) (uuid.UUID, bool) {
	if p.store == nil {
		return uuid.Nil, false
	}
	id, err := p.store.SaveRun(ctx, requestID, res)
	if err != nil {
		p.logger.Error("persistence failed", "run_id", res.RunID, "error", err)
		return uuid.Nil, false
	}
	return id, true
}

func (p *Processor) takeReview(ts string) (*pendingReview, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	review, ok := p.pendingReviews[ts]
	if ok {
		delete(p.pendingReviews, ts)
	}
	return review, ok
}

func (p *Processor) recordVerdict(ctx context.Context, runID uuid.UUID, verdict slack.ReviewVerdict, reviewer, messageTS string) {
	if p.store != nil {
		if err := p.store.UpdateReviewStatus(ctx, runID, string(verdict), "reviewed by "+reviewer); err != nil {
			p.logger.Error("failed to update run review", "run_id", runID, "error", err)
			return
		}
	}

	p.publish(hermes.SubjectRunReviewed, hermes.RunReviewed{
		RunID:     runID.String(),
		Status:    string(verdict),
		Reviewer:  reviewer,
		Timestamp: time.Now().UTC(),
	})

	if verdict == slack.VerdictRejected && p.reviewer != nil && messageTS != "" {
		if err := p.reviewer.PostThread(ctx, messageTS, rejectionPrompt); err != nil {
			p.logger.Error("failed to post rejection thread", "error", err)
		}
	}
}

func (p *Processor) publish(subject string, data any) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish", "subject", subject, "error", err)
	}
}
