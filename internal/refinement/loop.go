// Package refinement drives the generate, validate and targeted-regenerate cycle until a
// script clears the quality gate or the iteration budget runs out.
package refinement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/orchestrator"
	"github.com/MikeSquared-Agency/showrunner/internal/quality"
	"github.com/MikeSquared-Agency/showrunner/internal/timing"
)

// State is a refinement loop state.
type State string

const (
	StateGenerate           State = "GENERATE"
	StateValidate           State = "VALIDATE"
	StateTargetedRegenerate State = "TARGETED_REGENERATE"
	StateAccept             State = "ACCEPT"
	StateAcceptWithWarnings State = "ACCEPT_WITH_WARNINGS"
)

// Terminal reports whether the loop stops in this state.
func (s State) Terminal() bool {
	return s == StateAccept || s == StateAcceptWithWarnings
}

var ErrInvalidConfig = errors.New("invalid refinement config")

// Config bounds the loop.
type Config struct {
	Threshold     float64
	MaxIterations int
}

func DefaultConfig() Config {
	return Config{Threshold: 0.70, MaxIterations: 3}
}

func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations %d must be at least 1", ErrInvalidConfig, c.MaxIterations)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold %.2f must be within [0,1]", ErrInvalidConfig, c.Threshold)
	}
	return nil
}

// Override replaces the bounds that are set. Zero values keep the current bound.
func (c Config) Override(maxIterations int, threshold float64) Config {
	if maxIterations != 0 {
		c.MaxIterations = maxIterations
	}
	if threshold != 0 {
		c.Threshold = threshold
	}
	return c
}

// RunObserver is told about every finished run.
type RunObserver interface {
	ObserveRun(res *Result)
}

// SceneGenerator produces and patches scene lists. *orchestrator.Orchestrator implements it.
type SceneGenerator interface {
	Generate(ctx context.Context, ep episode.Episode) ([]episode.SceneScript, error)
	Regenerate(ctx context.Context, ep episode.Episode, previous []episode.SceneScript, targets []orchestrator.Target) ([]episode.SceneScript, error)
}

// Iteration records one generate and validate cycle.
type Iteration struct {
	Number      int             `json:"number"`
	Overall     float64         `json:"overall_score"`
	Passed      bool            `json:"passed"`
	Blocking    int             `json:"blocking_issues"`
	Regenerated []int           `json:"regenerated_scenes"`
	Duration    time.Duration   `json:"duration_ns"`
	Report      *quality.Report `json:"-"`
}

// Result is what a run hands back: always a script and the report that ended the loop.
type Result struct {
	RunID      string          `json:"run_id"`
	Script     episode.Script  `json:"script"`
	Report     *quality.Report `json:"report"`
	Analysis   timing.Analysis `json:"timing"`
	State      State           `json:"state"`
	Iterations int             `json:"iterations"`
	History    []Iteration     `json:"history"`
}

// Passed reports whether the run ended fully accepted.
func (r *Result) Passed() bool {
	return r.State == StateAccept
}

type Loop struct {
	scenes    SceneGenerator
	cfg       Config
	scoring   quality.Config
	analyzer  *timing.Analyzer
	detector  *Detector
	publisher *Publisher
	observer  RunObserver
	logger    *slog.Logger
}

type Option func(*Loop)

func WithScoring(cfg quality.Config) Option {
	return func(l *Loop) { l.scoring = cfg }
}

func WithTiming(cfg timing.Config) Option {
	return func(l *Loop) { l.analyzer = timing.NewAnalyzer(cfg) }
}

func WithDetector(d *Detector) Option {
	return func(l *Loop) { l.detector = d }
}

func WithPublisher(p *Publisher) Option {
	return func(l *Loop) { l.publisher = p }
}

func WithRunObserver(o RunObserver) Option {
	return func(l *Loop) { l.observer = o }
}

func NewLoop(scenes SceneGenerator, cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		scenes:   scenes,
		cfg:      cfg,
		scoring:  quality.DefaultConfig(),
		analyzer: timing.NewAnalyzer(timing.DefaultConfig()),
		detector: NewDetector(nil),
		logger:   logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Config returns the loop's bounds.
func (l *Loop) Config() Config {
	return l.cfg
}

// WithBounds returns a copy of the loop using different bounds.
func (l *Loop) WithBounds(cfg Config) *Loop {
	c := *l
	c.cfg = cfg
	return &c
}

// Refine runs the loop under different bounds.
func (l *Loop) Refine(ctx context.Context, ep episode.Episode, cfg Config) (*Result, error) {
	return l.WithBounds(cfg).Run(ctx, ep)
}

// Run refines an episode. Errors are returned only for precondition violations, before any
// generation starts, or if the scene generator itself refuses the episode.
func (l *Loop) Run(ctx context.Context, ep episode.Episode) (*Result, error) {
	if err := l.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ep.Validate(); err != nil {
		return nil, err
	}

	scoringCfg := l.scoring
	scoringCfg.PassThreshold = l.cfg.Threshold
	scorer := quality.NewScorer(scoringCfg)

	outline := ep.OrderedScenes()
	sceneNumbers := make([]int, len(outline))
	for i, s := range outline {
		sceneNumbers[i] = s.SceneNumber
	}

	res := &Result{RunID: uuid.NewString()}
	logger := l.logger.With("run_id", res.RunID, "title", ep.Meta.Title)

	var (
		scenes      []episode.SceneScript
		regenerated []int
		started     time.Time
		err         error
	)

	state := StateGenerate
	for !state.Terminal() {
		logger.Debug("refinement state", "state", state, "iteration", res.Iterations)

		switch state {
		case StateGenerate:
			started = time.Now()
			scenes, err = l.scenes.Generate(ctx, ep)
			if err != nil {
				return nil, fmt.Errorf("generate script: %w", err)
			}
			res.Iterations++
			regenerated = sceneNumbers
			state = StateValidate

		case StateValidate:
			res.Script = episode.Script{ID: res.RunID, Title: ep.Meta.Title, Scenes: scenes}
			res.Analysis = l.analyzer.Analyze(episode.Beats(scenes), res.Script.Duration())
			res.Report = scorer.Score(quality.Input{
				Script:  res.Script,
				Voices:  ep.Voices,
				Timing:  res.Analysis,
				Meta:    ep.Meta,
				Outline: outline,
			})

			it := Iteration{
				Number:      res.Iterations,
				Overall:     res.Report.Overall,
				Passed:      res.Report.Passed,
				Blocking:    len(res.Report.CriticalIssues()),
				Regenerated: regenerated,
				Duration:    time.Since(started),
				Report:      res.Report,
			}
			res.History = append(res.History, it)
			l.publisher.IterationCompleted(res.RunID, it)

			logger.Info("script validated",
				"iteration", it.Number,
				"overall", it.Overall,
				"passed", it.Passed,
				"blocking_issues", it.Blocking,
				"regenerated", len(regenerated),
			)

			switch {
			case res.Report.Passed:
				state = StateAccept
			case res.Iterations >= l.cfg.MaxIterations:
				state = StateAcceptWithWarnings
			case ctx.Err() != nil:
				logger.Warn("refinement cancelled", "error", ctx.Err())
				state = StateAcceptWithWarnings
			default:
				state = StateTargetedRegenerate
			}

		case StateTargetedRegenerate:
			started = time.Now()
			targets := l.detector.Targets(res.Report, scenes)
			scenes, err = l.scenes.Regenerate(ctx, ep, scenes, targets)
			if err != nil {
				return nil, fmt.Errorf("regenerate scenes: %w", err)
			}
			res.Iterations++
			regenerated = make([]int, len(targets))
			for i, t := range targets {
				regenerated[i] = t.SceneNumber
			}
			state = StateValidate
		}
	}

	res.State = state
	logger.Info("refinement finished",
		"state", res.State,
		"iterations", res.Iterations,
		"overall", res.Report.Overall,
	)
	l.publisher.RefinementCompleted(res)
	if l.observer != nil {
		l.observer.ObserveRun(res)
	}
	return res, nil
}
