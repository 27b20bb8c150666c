package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/generator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEpisode(n int) episode.Episode {
	ep := episode.Episode{Meta: episode.Meta{Title: "Pilot"}}
	// outline deliberately out of order
	for i := n; i >= 1; i-- {
		ep.Scenes = append(ep.Scenes, episode.SceneOutline{
			SceneNumber: i,
			Location:    fmt.Sprintf("Set %d", i),
			Characters:  []string{"ana", "bob"},
		})
	}
	return ep
}

// fakeGen writes deterministic content after a random delay.
type fakeGen struct {
	delay    func() time.Duration
	failDia  map[int]bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeGen) track() func() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeGen) GenerateDialogue(ctx context.Context, s episode.SceneOutline, _ map[string]episode.VoiceProfile) (episode.SceneDialogue, error) {
	defer f.track()()
	if f.delay != nil {
		time.Sleep(f.delay())
	}
	if f.failDia[s.SceneNumber] {
		return episode.SceneDialogue{}, errors.New("provider timeout")
	}
	return episode.SceneDialogue{Lines: []episode.DialogueLine{
		{CharacterID: "ana", Text: fmt.Sprintf("line for scene %d", s.SceneNumber)},
	}}, nil
}

func (f *fakeGen) GenerateStaging(ctx context.Context, s episode.SceneOutline, d episode.SceneDialogue) (episode.SceneStaging, error) {
	defer f.track()()
	if f.delay != nil {
		time.Sleep(f.delay())
	}
	return episode.SceneStaging{Directions: []episode.StagingDirection{{Description: fmt.Sprintf("staging %d", s.SceneNumber)}}}, nil
}

type mockGen struct {
	mock.Mock
}

func (m *mockGen) GenerateDialogue(ctx context.Context, s episode.SceneOutline, v map[string]episode.VoiceProfile) (episode.SceneDialogue, error) {
	args := m.Called(ctx, s.SceneNumber, v)
	d, _ := args.Get(0).(episode.SceneDialogue)
	return d, args.Error(1)
}

func (m *mockGen) GenerateStaging(ctx context.Context, s episode.SceneOutline, d episode.SceneDialogue) (episode.SceneStaging, error) {
	args := m.Called(ctx, s.SceneNumber, d)
	st, _ := args.Get(0).(episode.SceneStaging)
	return st, args.Error(1)
}

func TestGenerate_PreservesOrderUnderRandomCompletion(t *testing.T) {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(1))
	gen := &fakeGen{delay: func() time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(rng.Intn(5)) * time.Millisecond
	}}

	o := New(gen, WithLogger(discardLogger()))
	scenes, err := o.Generate(context.Background(), testEpisode(9))

	require.NoError(t, err)
	require.Len(t, scenes, 9)
	for i, s := range scenes {
		assert.Equal(t, i+1, s.SceneNumber)
		assert.Equal(t, fmt.Sprintf("line for scene %d", i+1), s.Dialogue[0].Text)
		assert.Greater(t, s.RuntimeEstimate, 0.0)
		assert.False(t, s.Degraded)
	}
}

func TestGenerate_DegradesFailedSceneOnly(t *testing.T) {
	gen := &fakeGen{failDia: map[int]bool{2: true}}
	o := New(gen, WithLogger(discardLogger()))

	scenes, err := o.Generate(context.Background(), testEpisode(4))

	require.NoError(t, err)
	require.Len(t, scenes, 4)
	for _, s := range scenes {
		if s.SceneNumber == 2 {
			assert.True(t, s.Degraded)
			assert.Contains(t, s.Failure, "provider timeout")
			assert.NotEmpty(t, s.Dialogue)
			assert.NotEmpty(t, s.Staging)
			assert.Equal(t, "Set 2", s.Location)
			continue
		}
		assert.False(t, s.Degraded, "scene %d", s.SceneNumber)
	}
}

func TestGenerate_AllScenesFailing(t *testing.T) {
	gen := &fakeGen{failDia: map[int]bool{1: true, 2: true, 3: true}}
	scenes, err := New(gen, WithLogger(discardLogger())).Generate(context.Background(), testEpisode(3))

	require.NoError(t, err)
	require.Len(t, scenes, 3)
	for _, s := range scenes {
		assert.True(t, s.Degraded)
	}
}

func TestGenerate_RespectsConcurrencyLimit(t *testing.T) {
	gen := &fakeGen{delay: func() time.Duration { return 5 * time.Millisecond }}
	o := New(gen, WithConcurrency(2), WithLogger(discardLogger()))

	_, err := o.Generate(context.Background(), testEpisode(8))

	require.NoError(t, err)
	assert.LessOrEqual(t, gen.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, gen.peak.Load(), int32(1))
}

func TestGenerate_PreconditionErrors(t *testing.T) {
	o := New(&fakeGen{}, WithLogger(discardLogger()))

	_, err := o.Generate(context.Background(), episode.Episode{})
	assert.ErrorIs(t, err, episode.ErrEmptyOutline)

	ep := testEpisode(2)
	ep.Scenes[0].Characters = nil
	_, err = o.Generate(context.Background(), ep)
	assert.ErrorIs(t, err, episode.ErrInvalidOutline)
}

func TestGenerate_DropsCharactersOutsideScene(t *testing.T) {
	gen := new(mockGen)
	gen.On("GenerateDialogue", mock.Anything, 1, mock.Anything).Return(episode.SceneDialogue{Lines: []episode.DialogueLine{
		{CharacterID: "ana", Text: "hi"},
		{CharacterID: "zed", Text: "who am I"},
	}}, nil)
	gen.On("GenerateStaging", mock.Anything, 1, mock.Anything).Return(episode.SceneStaging{Directions: []episode.StagingDirection{
		{Description: "They hug.", CharacterIDs: []string{"ana", "zed"}},
	}}, nil)

	scenes, err := New(gen, WithLogger(discardLogger())).Generate(context.Background(), testEpisode(1))

	require.NoError(t, err)
	require.Len(t, scenes[0].Dialogue, 1)
	assert.Equal(t, "ana", scenes[0].Dialogue[0].CharacterID)
	assert.Equal(t, []string{"ana"}, scenes[0].Staging[0].CharacterIDs)
}

func previousScript(n int) []episode.SceneScript {
	out := make([]episode.SceneScript, n)
	for i := range out {
		out[i] = episode.SceneScript{
			SceneNumber: i + 1,
			Location:    fmt.Sprintf("Set %d", i+1),
			Dialogue:    []episode.DialogueLine{{CharacterID: "bob", Text: "old line"}},
			Staging:     []episode.StagingDirection{{Description: "old staging"}},
		}
	}
	return out
}

func TestRegenerate_TouchesOnlyTargets(t *testing.T) {
	gen := new(mockGen)
	newDialogue := episode.SceneDialogue{Lines: []episode.DialogueLine{{CharacterID: "ana", Text: "new line"}}}
	gen.On("GenerateDialogue", mock.Anything, 3, mock.Anything).Return(newDialogue, nil).Once()
	gen.On("GenerateStaging", mock.Anything, 3, newDialogue).Return(episode.SceneStaging{Directions: []episode.StagingDirection{{Description: "new staging"}}}, nil).Once()

	prev := previousScript(4)
	o := New(gen, WithLogger(discardLogger()))
	out, err := o.Regenerate(context.Background(), testEpisode(4), prev, []Target{{SceneNumber: 3, Dialogue: true, Staging: true}})

	require.NoError(t, err)
	gen.AssertExpectations(t)
	assert.Equal(t, "new line", out[2].Dialogue[0].Text)
	assert.Equal(t, "new staging", out[2].Staging[0].Description)
	for _, i := range []int{0, 1, 3} {
		assert.Equal(t, prev[i], out[i])
	}
	assert.Equal(t, "old line", prev[2].Dialogue[0].Text, "previous script must not be modified")
}

func TestRegenerate_StagingOnlyKeepsDialogue(t *testing.T) {
	gen := new(mockGen)
	gen.On("GenerateStaging", mock.Anything, 2, mock.Anything).Return(episode.SceneStaging{Directions: []episode.StagingDirection{{Description: "cheaper set"}}}, nil).Once()

	prev := previousScript(3)
	out, err := New(gen, WithLogger(discardLogger())).Regenerate(context.Background(), testEpisode(3), prev, []Target{{SceneNumber: 2, Staging: true}})

	require.NoError(t, err)
	gen.AssertNotCalled(t, "GenerateDialogue", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, "old line", out[1].Dialogue[0].Text)
	assert.Equal(t, "cheaper set", out[1].Staging[0].Description)
}

func TestRegenerate_NotesReachGenerator(t *testing.T) {
	gen := new(mockGen)
	withNotes := mock.MatchedBy(func(ctx context.Context) bool {
		notes := generator.NotesFrom(ctx)
		return len(notes) == 1 && notes[0] == "punch up the ending"
	})
	gen.On("GenerateDialogue", withNotes, 1, mock.Anything).Return(episode.SceneDialogue{Lines: []episode.DialogueLine{{CharacterID: "ana", Text: "better"}}}, nil).Once()
	gen.On("GenerateStaging", withNotes, 1, mock.Anything).Return(episode.SceneStaging{Directions: []episode.StagingDirection{{Description: "x"}}}, nil).Once()

	_, err := New(gen, WithLogger(discardLogger())).Regenerate(context.Background(), testEpisode(2), previousScript(2),
		[]Target{{SceneNumber: 1, Dialogue: true, Staging: true, Notes: []string{"punch up the ending"}}})

	require.NoError(t, err)
	gen.AssertExpectations(t)
}

func TestRegenerate_MismatchedScript(t *testing.T) {
	_, err := New(&fakeGen{}, WithLogger(discardLogger())).Regenerate(context.Background(), testEpisode(3), previousScript(2), nil)
	assert.ErrorIs(t, err, episode.ErrInvalidOutline)
}

type recordingObserver struct {
	mu     sync.Mutex
	starts map[string]int
	errs   int
}

func (r *recordingObserver) StartOperation(name string, scene int) Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts[name]++
	return Operation{Name: name, SceneNumber: scene, Started: time.Now()}
}

func (r *recordingObserver) EndOperation(_ Operation, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs++
	}
}

func TestGenerate_ObserverHooks(t *testing.T) {
	obs := &recordingObserver{starts: map[string]int{}}
	gen := &fakeGen{failDia: map[int]bool{1: true}}

	_, err := New(gen, WithObserver(Observers{obs, LogObserver{Logger: discardLogger()}}), WithLogger(discardLogger())).
		Generate(context.Background(), testEpisode(3))

	require.NoError(t, err)
	assert.Equal(t, 3, obs.starts["generate_dialogue"])
	assert.Equal(t, 2, obs.starts["generate_staging"])
	assert.Equal(t, 1, obs.errs)
}
