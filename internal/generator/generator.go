// Package generator turns scene outlines into dialogue and staging through a text
// completion provider. Provider output is parsed into typed records at this boundary
// and anything that does not match the expected shape is rejected and retried.
package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MikeSquared-Agency/showrunner/internal/cache"
	"github.com/MikeSquared-Agency/showrunner/internal/episode"
)

const (
	dialogueMaxTokens = 4096
	stagingMaxTokens  = 2048
)

// Completer is a text generation provider.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
	Name() string
}

// Policy bounds how hard a single call is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 20 * time.Second}
}

// Error is returned once every attempt for a call has failed.
type Error struct {
	Kind        string
	SceneNumber int
	Attempts    int
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generate %s for scene %d after %d attempts: %v", e.Kind, e.SceneNumber, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Generator struct {
	llm    Completer
	cache  cache.Cache
	policy Policy
	logger *slog.Logger
}

type Option func(*Generator)

func WithCache(c cache.Cache) Option {
	return func(g *Generator) { g.cache = c }
}

func WithPolicy(p Policy) Option {
	return func(g *Generator) { g.policy = p }
}

func New(llm Completer, logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{llm: llm, cache: cache.Nop{}, policy: DefaultPolicy(), logger: logger}
	for _, o := range opts {
		o(g)
	}
	if g.policy.MaxAttempts < 1 {
		g.policy.MaxAttempts = 1
	}
	return g
}

// GenerateDialogue writes the lines for one scene.
func (g *Generator) GenerateDialogue(ctx context.Context, scene episode.SceneOutline, voices map[string]episode.VoiceProfile) (episode.SceneDialogue, error) {
	notes := NotesFrom(ctx)
	prompt := fmt.Sprintf(dialogueUserPrompt, describeScene(scene), describeVoices(scene, voices), describeNotes(notes))

	var out episode.SceneDialogue
	key := cacheKey("dialogue", g.llm.Name(), scene, voices, notes)
	err := g.call(ctx, "dialogue", scene.SceneNumber, key, prompt, dialogueMaxTokens, func(raw string) error {
		d, err := ParseDialogue(raw, scene)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// GenerateStaging writes the staging for one scene around its dialogue.
func (g *Generator) GenerateStaging(ctx context.Context, scene episode.SceneOutline, dialogue episode.SceneDialogue) (episode.SceneStaging, error) {
	notes := NotesFrom(ctx)
	prompt := fmt.Sprintf(stagingUserPrompt, describeScene(scene), describeDialogue(dialogue), describeNotes(notes))

	var out episode.SceneStaging
	key := cacheKey("staging", g.llm.Name(), scene, dialogue, notes)
	err := g.call(ctx, "staging", scene.SceneNumber, key, prompt, stagingMaxTokens, func(raw string) error {
		s, err := ParseStaging(raw, scene)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (g *Generator) call(ctx context.Context, kind string, sceneNumber int, key, prompt string, maxTokens int, parse func(string) error) error {
	if raw, ok, err := g.cache.Get(ctx, key); err != nil {
		g.logger.Warn("cache read failed", "kind", kind, "scene", sceneNumber, "error", err)
	} else if ok {
		if err := parse(string(raw)); err == nil {
			g.logger.Debug("generation cache hit", "kind", kind, "scene", sceneNumber)
			return nil
		}
	}

	var raw string
	attempts := 0
	op := func() error {
		attempts++
		out, err := g.llm.Complete(ctx, systemPrompt, prompt, maxTokens)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := parse(out); err != nil {
			return err
		}
		raw = out
		return nil
	}

	notify := func(err error, wait time.Duration) {
		g.logger.Warn("generation attempt failed",
			"kind", kind,
			"scene", sceneNumber,
			"provider", g.llm.Name(),
			"attempt", attempts,
			"retry_in", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, g.backoff(ctx), notify); err != nil {
		return &Error{Kind: kind, SceneNumber: sceneNumber, Attempts: attempts, Err: err}
	}

	if err := g.cache.Set(ctx, key, []byte(raw)); err != nil {
		g.logger.Warn("cache write failed", "kind", kind, "scene", sceneNumber, "error", err)
	}
	return nil
}

func (g *Generator) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.policy.BaseDelay
	if g.policy.MaxDelay > 0 {
		exp.MaxInterval = g.policy.MaxDelay
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(g.policy.MaxAttempts-1)), ctx)
}

// retryable treats schema and transport failures as transient unless the provider says otherwise.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

func cacheKey(kind, provider string, parts ...any) string {
	h := sha256.New()
	h.Write([]byte(kind + "\x00" + provider + "\x00"))
	enc := json.NewEncoder(h)
	for _, p := range parts {
		enc.Encode(p)
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))
}

type notesKey struct{}

// WithNotes attaches reviewer notes that the next generation calls should address.
func WithNotes(ctx context.Context, notes []string) context.Context {
	if len(notes) == 0 {
		return ctx
	}
	return context.WithValue(ctx, notesKey{}, notes)
}

// NotesFrom returns the notes attached by WithNotes.
func NotesFrom(ctx context.Context) []string {
	notes, _ := ctx.Value(notesKey{}).([]string)
	return notes
}

func describeScene(s episode.SceneOutline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene %d at %s\n", s.SceneNumber, s.Location)
	fmt.Fprintf(&b, "Characters: %s\n", strings.Join(s.Characters, ", "))
	if s.Purpose != "" {
		fmt.Fprintf(&b, "Purpose in the episode: %s\n", s.Purpose)
	}
	if s.TargetRuntime > 0 {
		fmt.Fprintf(&b, "Target runtime: %.0f seconds\n", s.TargetRuntime)
	}
	b.WriteString("Comedic beats to land:\n")
	for _, beat := range s.ComedicBeats {
		fmt.Fprintf(&b, "- %s\n", beat)
	}
	return b.String()
}

func describeVoices(s episode.SceneOutline, voices map[string]episode.VoiceProfile) string {
	var b strings.Builder
	for _, id := range s.Characters {
		v, ok := voices[id]
		if !ok {
			fmt.Fprintf(&b, "- %s: no profile, keep them consistent within the scene\n", id)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s register, %s", id, v.Register, v.SentenceStructure)
		if len(v.Catchphrases) > 0 {
			fmt.Fprintf(&b, "; catchphrases: %s", strings.Join(v.Catchphrases, " / "))
		}
		if len(v.VerbalTics) > 0 {
			fmt.Fprintf(&b, "; tics: %s", strings.Join(v.VerbalTics, ", "))
		}
		if len(v.EmotionalRange) > 0 {
			fmt.Fprintf(&b, "; emotional range: %s", strings.Join(v.EmotionalRange, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func describeDialogue(d episode.SceneDialogue) string {
	var b strings.Builder
	for _, l := range d.Lines {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(l.CharacterID), l.Text)
	}
	return b.String()
}

func describeNotes(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	return fmt.Sprintf(notesSection, "- "+strings.Join(notes, "\n- "))
}
