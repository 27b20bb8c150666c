// Package orchestrator assembles a script by generating every scene of an outline with
// bounded parallelism. A scene whose generation fails is replaced by a degraded placeholder
// so one bad call never costs the whole episode.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/generator"
)

const DefaultConcurrency = 3

// Generator is the generation capability the orchestrator drives. It knows nothing of providers.
type Generator interface {
	GenerateDialogue(ctx context.Context, scene episode.SceneOutline, voices map[string]episode.VoiceProfile) (episode.SceneDialogue, error)
	GenerateStaging(ctx context.Context, scene episode.SceneOutline, dialogue episode.SceneDialogue) (episode.SceneStaging, error)
}

// Target selects what to regenerate for one scene.
type Target struct {
	SceneNumber int
	Dialogue    bool // regenerating dialogue always regenerates staging too
	Staging     bool
	Notes       []string
}

type Orchestrator struct {
	gen         Generator
	concurrency int
	observer    Observer
	logger      *slog.Logger
}

type Option func(*Orchestrator)

func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func New(gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:         gen,
		concurrency: DefaultConcurrency,
		observer:    NopObserver{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate produces one SceneScript per outlined scene, in ascending scene-number order.
// The only error is a precondition violation on the episode.
func (o *Orchestrator) Generate(ctx context.Context, ep episode.Episode) ([]episode.SceneScript, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	scenes := ep.OrderedScenes()
	targets := make([]Target, len(scenes))
	for i, s := range scenes {
		targets[i] = Target{SceneNumber: s.SceneNumber, Dialogue: true, Staging: true}
	}
	return o.run(ctx, ep, scenes, make([]episode.SceneScript, len(scenes)), targets)
}

// Regenerate returns a new script in which only the targeted scenes are generated again.
// previous is not modified.
func (o *Orchestrator) Regenerate(ctx context.Context, ep episode.Episode, previous []episode.SceneScript, targets []Target) ([]episode.SceneScript, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	scenes := ep.OrderedScenes()
	if len(previous) != len(scenes) {
		return nil, fmt.Errorf("regenerate: previous script has %d scenes, outline has %d: %w", len(previous), len(scenes), episode.ErrInvalidOutline)
	}
	out := make([]episode.SceneScript, len(previous))
	copy(out, previous)
	return o.run(ctx, ep, scenes, out, targets)
}

func (o *Orchestrator) run(ctx context.Context, ep episode.Episode, scenes []episode.SceneOutline, out []episode.SceneScript, targets []Target) ([]episode.SceneScript, error) {
	index := make(map[int]int, len(scenes))
	for i, s := range scenes {
		index[s.SceneNumber] = i
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for _, t := range targets {
		t := t
		i, ok := index[t.SceneNumber]
		if !ok || (!t.Dialogue && !t.Staging) {
			o.logger.Warn("skipping regeneration target", "scene", t.SceneNumber)
			continue
		}
		outline := scenes[i]
		prev := out[i]
		g.Go(func() error {
			out[i] = o.scene(ctx, outline, ep.Voices, prev, t)
			return nil
		})
	}
	// Scenes never fail; a failed generation comes back as a degraded scene.
	_ = g.Wait()

	return out, nil
}

// scene runs the generation calls for one scene. It never fails; errors degrade the scene.
func (o *Orchestrator) scene(ctx context.Context, outline episode.SceneOutline, voices map[string]episode.VoiceProfile, prev episode.SceneScript, t Target) episode.SceneScript {
	if len(t.Notes) > 0 {
		ctx = generator.WithNotes(ctx, t.Notes)
	}

	dialogue := episode.SceneDialogue{Lines: prev.Dialogue}
	if t.Dialogue || prev.Degraded || len(prev.Dialogue) == 0 {
		op := o.observer.StartOperation("generate_dialogue", outline.SceneNumber)
		d, err := o.gen.GenerateDialogue(ctx, outline, voices)
		o.observer.EndOperation(op, err)
		if err != nil {
			return o.degraded(outline, "dialogue", err)
		}
		dialogue = episode.SceneDialogue{Lines: o.castFilterLines(outline, d.Lines)}
	}

	op := o.observer.StartOperation("generate_staging", outline.SceneNumber)
	s, err := o.gen.GenerateStaging(ctx, outline, dialogue)
	o.observer.EndOperation(op, err)
	if err != nil {
		return o.degraded(outline, "staging", err)
	}
	staging := o.castFilterStaging(outline, s.Directions)

	return episode.SceneScript{
		SceneNumber:     outline.SceneNumber,
		Location:        outline.Location,
		Dialogue:        dialogue.Lines,
		Staging:         staging,
		RuntimeEstimate: episode.EstimateRuntime(dialogue.Lines, staging),
	}
}

// degraded builds the placeholder used when a scene's generation fails.
func (o *Orchestrator) degraded(outline episode.SceneOutline, stage string, err error) episode.SceneScript {
	o.logger.Error("scene generation failed, using placeholder",
		"scene", outline.SceneNumber,
		"stage", stage,
		"error", err,
	)

	var lines []episode.DialogueLine
	if len(outline.Characters) > 0 {
		lines = []episode.DialogueLine{{
			CharacterID: outline.Characters[0],
			Text:        fmt.Sprintf("[Scene %d dialogue unavailable]", outline.SceneNumber),
			Emotion:     "neutral",
		}}
	}
	staging := []episode.StagingDirection{{
		Description: fmt.Sprintf("[Scene %d staging unavailable: %s]", outline.SceneNumber, outline.Location),
	}}
	return episode.SceneScript{
		SceneNumber:     outline.SceneNumber,
		Location:        outline.Location,
		Dialogue:        lines,
		Staging:         staging,
		RuntimeEstimate: episode.EstimateRuntime(lines, staging),
		Degraded:        true,
		Failure:         fmt.Sprintf("%s: %v", stage, err),
	}
}

func (o *Orchestrator) castFilterLines(outline episode.SceneOutline, lines []episode.DialogueLine) []episode.DialogueLine {
	out := make([]episode.DialogueLine, 0, len(lines))
	for _, l := range lines {
		if !outline.HasCharacter(l.CharacterID) {
			o.logger.Warn("dropping line from character outside the scene", "scene", outline.SceneNumber, "character", l.CharacterID)
			continue
		}
		out = append(out, l)
	}
	return out
}

func (o *Orchestrator) castFilterStaging(outline episode.SceneOutline, dirs []episode.StagingDirection) []episode.StagingDirection {
	out := make([]episode.StagingDirection, 0, len(dirs))
	for _, d := range dirs {
		ids := make([]string, 0, len(d.CharacterIDs))
		for _, c := range d.CharacterIDs {
			if outline.HasCharacter(c) {
				ids = append(ids, c)
			} else {
				o.logger.Warn("dropping staged character outside the scene", "scene", outline.SceneNumber, "character", c)
			}
		}
		d.CharacterIDs = ids
		out = append(out, d)
	}
	return out
}
