package refinement

import (
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/showrunner/internal/hermes"
)

// EventBus is the subset of the hermes client the publisher needs.
type EventBus interface {
	Publish(subject string, data any) error
}

// Publisher announces refinement progress. A nil Publisher or one without a bus is silent.
type Publisher struct {
	bus    EventBus
	logger *slog.Logger
}

// NewPublisher creates a new refinement event publisher.
func NewPublisher(bus EventBus, logger *slog.Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

// IterationCompleted publishes the outcome of one generate and validate cycle.
func (p *Publisher) IterationCompleted(runID string, it Iteration) {
	if p == nil || p.bus == nil {
		return
	}
	evt := hermes.IterationEvent{
		RunID:          runID,
		Iteration:      it.Number,
		OverallScore:   it.Overall,
		Passed:         it.Passed,
		BlockingIssues: it.Blocking,
		Regenerated:    it.Regenerated,
		Timestamp:      time.Now().UTC(),
	}
	if err := p.bus.Publish(hermes.SubjectRefinementIteration, evt); err != nil {
		p.logger.Warn("publish iteration event failed", "run_id", runID, "error", err)
	}
}

// RefinementCompleted publishes the terminal state of a run.
func (p *Publisher) RefinementCompleted(res *Result) {
	if p == nil || p.bus == nil {
		return
	}
	evt := hermes.RefinementCompletedEvent{
		RunID:          res.RunID,
		State:          string(res.State),
		Iterations:     res.Iterations,
		OverallScore:   res.Report.Overall,
		Passed:         res.Report.Passed,
		BlockingIssues: len(res.Report.CriticalIssues()),
		Timestamp:      time.Now().UTC(),
	}
	if err := p.bus.Publish(hermes.SubjectRefinementCompleted, evt); err != nil {
		p.logger.Warn("publish completion event failed", "run_id", res.RunID, "error", err)
	}
}
