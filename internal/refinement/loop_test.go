package refinement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/hermes"
	"github.com/MikeSquared-Agency/showrunner/internal/orchestrator"
	"github.com/MikeSquared-Agency/showrunner/internal/quality"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockScenes struct {
	mock.Mock
}

func (m *mockScenes) Generate(ctx context.Context, ep episode.Episode) ([]episode.SceneScript, error) {
	args := m.Called(ctx, ep)
	s, _ := args.Get(0).([]episode.SceneScript)
	return s, args.Error(1)
}

func (m *mockScenes) Regenerate(ctx context.Context, ep episode.Episode, prev []episode.SceneScript, targets []orchestrator.Target) ([]episode.SceneScript, error) {
	args := m.Called(ctx, ep, prev, targets)
	s, _ := args.Get(0).([]episode.SceneScript)
	return s, args.Error(1)
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *recordingBus) Publish(subject string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

var purposes = []string{"setup", "escalation", "resolution"}

func testEpisode() episode.Episode {
	ep := episode.Episode{
		Meta:   episode.Meta{Title: "The Toaster"},
		Voices: map[string]episode.VoiceProfile{"ana": {CharacterID: "ana", Register: episode.RegisterModerate, EmotionalRange: []string{"wry"}}},
	}
	for i, loc := range []string{"Kitchen", "Office", "Park"} {
		ep.Scenes = append(ep.Scenes, episode.SceneOutline{
			SceneNumber:  i + 1,
			Location:     loc,
			Characters:   []string{"ana"},
			ComedicBeats: []string{"a joke lands"},
			Purpose:      purposes[i],
		})
	}
	return ep
}

// goodScene has one strong joke placed so beats across scenes land about 44 seconds apart.
func goodScene(n int, loc string) episode.SceneScript {
	lines := []episode.DialogueLine{{
		CharacterID:   "ana",
		Text:          "Never trust a toaster again",
		Emotion:       "wry",
		PauseBefore:   40,
		ComedicBeat:   true,
		JokeType:      episode.JokeSituational,
		Effectiveness: 0.9,
	}}
	staging := []episode.StagingDirection{{Description: "Ana sits down."}}
	return episode.SceneScript{
		SceneNumber:     n,
		Location:        loc,
		Dialogue:        lines,
		Staging:         staging,
		RuntimeEstimate: episode.EstimateRuntime(lines, staging),
	}
}

func goodScript() []episode.SceneScript {
	return []episode.SceneScript{goodScene(1, "Kitchen"), goodScene(2, "Office"), goodScene(3, "Park")}
}

func silentScript() []episode.SceneScript {
	out := make([]episode.SceneScript, 3)
	for i := range out {
		out[i] = episode.SceneScript{SceneNumber: i + 1, Location: fmt.Sprintf("Set %d", i+1)}
	}
	return out
}

func TestRun_AcceptsPassingScript(t *testing.T) {
	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(goodScript(), nil).Once()

	bus := &recordingBus{}
	loop := NewLoop(scenes, DefaultConfig(), discardLogger(), WithPublisher(NewPublisher(bus, discardLogger())))
	res, err := loop.Run(context.Background(), testEpisode())

	require.NoError(t, err)
	assert.Equal(t, StateAccept, res.State)
	assert.True(t, res.Passed())
	assert.Equal(t, 1, res.Iterations)
	assert.GreaterOrEqual(t, res.Report.Overall, 0.70)
	assert.Empty(t, res.Report.CriticalIssues())
	assert.Equal(t, res.RunID, res.Script.ID)
	assert.Equal(t, res.RunID, res.Report.ScriptID)
	assert.Equal(t, []string{hermes.SubjectRefinementIteration, hermes.SubjectRefinementCompleted}, bus.subjects)
	scenes.AssertNotCalled(t, "Regenerate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SingleIterationBudget(t *testing.T) {
	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(silentScript(), nil).Once()

	loop := NewLoop(scenes, Config{Threshold: 0.70, MaxIterations: 1}, discardLogger())
	res, err := loop.Run(context.Background(), testEpisode())

	require.NoError(t, err)
	assert.Equal(t, StateAcceptWithWarnings, res.State)
	assert.False(t, res.Passed())
	assert.Equal(t, 1, res.Iterations)
	require.Len(t, res.History, 1)
	assert.False(t, res.Report.Passed)
	assert.NotEmpty(t, res.Report.Recommendations)
	scenes.AssertNumberOfCalls(t, "Generate", 1)
	scenes.AssertNotCalled(t, "Regenerate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_BudgetExhausted(t *testing.T) {
	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(silentScript(), nil).Once()
	scenes.On("Regenerate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(silentScript(), nil)

	res, err := NewLoop(scenes, DefaultConfig(), discardLogger()).Run(context.Background(), testEpisode())

	require.NoError(t, err)
	assert.Equal(t, StateAcceptWithWarnings, res.State)
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, res.History, 3)
	scenes.AssertNumberOfCalls(t, "Regenerate", 2)
}

func TestRun_RegeneratesOnlyFlaggedScene(t *testing.T) {
	first := goodScript()
	first[1] = episode.SceneScript{
		SceneNumber: 2,
		Location:    "Office",
		Dialogue:    []episode.DialogueLine{{CharacterID: "ana", Text: "[Scene 2 dialogue unavailable]", Emotion: "wry"}},
		Staging:     []episode.StagingDirection{{Description: "[Scene 2 staging unavailable]"}},
		Degraded:    true,
		Failure:     "dialogue: provider timeout",
	}
	first[1].RuntimeEstimate = episode.EstimateRuntime(first[1].Dialogue, first[1].Staging)

	onlyScene2 := mock.MatchedBy(func(ts []orchestrator.Target) bool {
		return len(ts) == 1 && ts[0].SceneNumber == 2 && ts[0].Dialogue && ts[0].Staging
	})

	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(first, nil).Once()
	scenes.On("Regenerate", mock.Anything, mock.Anything, first, onlyScene2).Return(goodScript(), nil).Once()

	res, err := NewLoop(scenes, DefaultConfig(), discardLogger()).Run(context.Background(), testEpisode())

	require.NoError(t, err)
	scenes.AssertExpectations(t)
	assert.Equal(t, StateAccept, res.State)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.History, 2)
	assert.Equal(t, []int{1, 2, 3}, res.History[0].Regenerated)
	assert.Equal(t, []int{2}, res.History[1].Regenerated)
	assert.False(t, res.History[0].Passed)
}

func TestRun_ErrorBlocksAcceptanceAboveThreshold(t *testing.T) {
	// Scene 2 kept its joke but fell back to placeholder staging: the score clears the
	// threshold while the degraded scene raises an ERROR.
	first := goodScript()
	first[1].Degraded = true
	first[1].Failure = "staging: provider timeout"

	onlyScene2 := mock.MatchedBy(func(ts []orchestrator.Target) bool {
		return len(ts) == 1 && ts[0].SceneNumber == 2
	})

	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(first, nil).Once()
	scenes.On("Regenerate", mock.Anything, mock.Anything, first, onlyScene2).Return(goodScript(), nil).Once()

	res, err := NewLoop(scenes, Config{Threshold: 0.5, MaxIterations: 2}, discardLogger()).Run(context.Background(), testEpisode())

	require.NoError(t, err)
	scenes.AssertExpectations(t)
	require.Len(t, res.History, 2)

	firstReport := res.History[0].Report
	assert.GreaterOrEqual(t, firstReport.Overall, 0.5)
	assert.NotEmpty(t, firstReport.CriticalIssues())
	assert.False(t, firstReport.Passed)
	assert.False(t, res.History[0].Passed)

	assert.Equal(t, StateAccept, res.State)
	assert.Equal(t, res.Report.Passed, res.Passed())
	for _, it := range res.History {
		if it.Passed {
			assert.Zero(t, it.Blocking, "iteration %d passed with blocking issues", it.Number)
		}
	}
}

func TestRun_ErrorAboveThresholdExhaustsBudget(t *testing.T) {
	first := goodScript()
	first[1].Degraded = true
	first[1].Failure = "staging: provider timeout"

	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(first, nil).Once()

	res, err := NewLoop(scenes, Config{Threshold: 0.5, MaxIterations: 1}, discardLogger()).Run(context.Background(), testEpisode())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Report.Overall, 0.5)
	assert.False(t, res.Report.Passed)
	assert.Equal(t, StateAcceptWithWarnings, res.State)
	assert.Equal(t, res.Report.Passed, res.Passed())
}

func TestRun_EpisodeWideIssueTargetsWeakScenes(t *testing.T) {
	first := goodScript()
	for _, i := range []int{0, 2} {
		first[i].Dialogue[0].Effectiveness = 0.2
	}

	weakDialogue := mock.MatchedBy(func(ts []orchestrator.Target) bool {
		if len(ts) != 2 || ts[0].SceneNumber != 1 || ts[1].SceneNumber != 3 {
			return false
		}
		return ts[0].Dialogue && ts[1].Dialogue
	})

	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(first, nil).Once()
	scenes.On("Regenerate", mock.Anything, mock.Anything, first, weakDialogue).Return(goodScript(), nil).Once()

	res, err := NewLoop(scenes, DefaultConfig(), discardLogger()).Run(context.Background(), testEpisode())

	require.NoError(t, err)
	scenes.AssertExpectations(t)

	var weakFraction *quality.Issue
	for _, is := range res.History[0].Report.Issues {
		is := is
		if is.Severity == quality.SeverityError && is.Category == quality.CategoryComedy {
			weakFraction = &is
		}
	}
	require.NotNil(t, weakFraction, "expected an episode-wide weak beat error")
	assert.Zero(t, weakFraction.SceneNumber)
	assert.Equal(t, []int{1, 3}, weakFraction.Scenes)

	assert.Equal(t, []int{1, 3}, res.History[1].Regenerated)
	assert.Equal(t, StateAccept, res.State)
}

func TestRun_Preconditions(t *testing.T) {
	scenes := new(mockScenes)

	tests := []struct {
		name string
		cfg  Config
		ep   episode.Episode
		want error
	}{
		{"zero iterations", Config{Threshold: 0.7, MaxIterations: 0}, testEpisode(), ErrInvalidConfig},
		{"threshold above one", Config{Threshold: 1.5, MaxIterations: 3}, testEpisode(), ErrInvalidConfig},
		{"empty outline", DefaultConfig(), episode.Episode{}, episode.ErrEmptyOutline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoop(scenes, tt.cfg, discardLogger()).Run(context.Background(), tt.ep)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	scenes.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRun_GeneratorRefusal(t *testing.T) {
	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	_, err := NewLoop(scenes, DefaultConfig(), discardLogger()).Run(context.Background(), testEpisode())
	assert.Error(t, err)
}

func TestRun_ThresholdOverridesScoring(t *testing.T) {
	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(goodScript(), nil).Once()

	res, err := NewLoop(scenes, Config{Threshold: 1.0, MaxIterations: 1}, discardLogger()).Run(context.Background(), testEpisode())

	require.NoError(t, err)
	assert.False(t, res.Report.Passed)
	assert.Equal(t, StateAcceptWithWarnings, res.State)
}

func TestPublisher_NilIsSilent(t *testing.T) {
	var p *Publisher
	p.IterationCompleted("run", Iteration{})
	NewPublisher(nil, discardLogger()).IterationCompleted("run", Iteration{})
}

type countingObserver struct {
	states []State
}

func (o *countingObserver) ObserveRun(res *Result) {
	o.states = append(o.states, res.State)
}

func TestRefine_UsesGivenBoundsAndObserves(t *testing.T) {
	scenes := new(mockScenes)
	scenes.On("Generate", mock.Anything, mock.Anything).Return(silentScript(), nil).Once()

	obs := &countingObserver{}
	loop := NewLoop(scenes, DefaultConfig(), discardLogger(), WithRunObserver(obs))
	res, err := loop.Refine(context.Background(), testEpisode(), loop.Config().Override(1, 0))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, []State{StateAcceptWithWarnings}, obs.states)
	assert.Equal(t, 3, loop.Config().MaxIterations, "Refine must not change the loop's own bounds")
}

func TestConfig_Override(t *testing.T) {
	base := DefaultConfig()
	assert.Equal(t, base, base.Override(0, 0))
	assert.Equal(t, Config{Threshold: 0.8, MaxIterations: 3}, base.Override(0, 0.8))
	assert.Equal(t, Config{Threshold: 0.7, MaxIterations: 5}, base.Override(5, 0))
}
