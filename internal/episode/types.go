package episode

import "errors"

var (
	// ErrEmptyOutline is returned when an episode has no scenes to generate.
	ErrEmptyOutline = errors.New("episode outline is empty")
	// ErrInvalidOutline is returned when an outline fails a structural precondition.
	ErrInvalidOutline = errors.New("episode outline is invalid")
)

// Register is the vocabulary register of a character's voice.
type Register string

const (
	RegisterSimple        Register = "simple"
	RegisterModerate      Register = "moderate"
	RegisterSophisticated Register = "sophisticated"
)

// Rank orders registers from plainest to most elaborate. Unknown registers rank as moderate.
func (r Register) Rank() int {
	switch r {
	case RegisterSimple:
		return 0
	case RegisterSophisticated:
		return 2
	default:
		return 1
	}
}

// JokeType classifies a comedic beat.
type JokeType string

const (
	JokeWordplay     JokeType = "wordplay"
	JokeSituational  JokeType = "situational"
	JokePhysical     JokeType = "physical"
	JokeCallback     JokeType = "callback"
	JokeCharacter    JokeType = "character"
	JokeMisdirection JokeType = "misdirection"
	JokeRunningGag   JokeType = "running_gag"
)

// Valid reports whether t is one of the known joke types.
func (t JokeType) Valid() bool {
	switch t {
	case JokeWordplay, JokeSituational, JokePhysical, JokeCallback, JokeCharacter, JokeMisdirection, JokeRunningGag:
		return true
	}
	return false
}

// SceneOutline is one planned scene of an episode.
type SceneOutline struct {
	SceneNumber   int      `json:"scene_number" yaml:"scene_number"`
	Location      string   `json:"location" yaml:"location"`
	Characters    []string `json:"characters" yaml:"characters"`
	ComedicBeats  []string `json:"comedic_beats" yaml:"comedic_beats"`
	TargetRuntime float64  `json:"target_runtime_seconds" yaml:"target_runtime_seconds"`
	Purpose       string   `json:"purpose,omitempty" yaml:"purpose,omitempty"` // setup | escalation | resolution
}

// HasCharacter reports whether id participates in the scene.
func (s SceneOutline) HasCharacter(id string) bool {
	for _, c := range s.Characters {
		if c == id {
			return true
		}
	}
	return false
}

// VoiceProfile describes how a character talks.
type VoiceProfile struct {
	CharacterID       string   `json:"character_id" yaml:"character_id"`
	Register          Register `json:"register" yaml:"register"`
	SentenceStructure string   `json:"sentence_structure" yaml:"sentence_structure"`
	Catchphrases      []string `json:"catchphrases" yaml:"catchphrases"`
	VerbalTics        []string `json:"verbal_tics" yaml:"verbal_tics"`
	EmotionalRange    []string `json:"emotional_range" yaml:"emotional_range"`
}

// DialogueLine is a single spoken line. Joke fields are only meaningful when ComedicBeat is set.
type DialogueLine struct {
	CharacterID       string   `json:"character_id"`
	Text              string   `json:"text"`
	Emotion           string   `json:"emotion"`
	DeliveryNote      string   `json:"delivery_note,omitempty"`
	PauseBefore       float64  `json:"pause_before_seconds"`
	ComedicBeat       bool     `json:"comedic_beat"`
	JokeType          JokeType `json:"joke_type,omitempty"`
	Effectiveness     float64  `json:"effectiveness,omitempty"`
	CallbackPotential bool     `json:"callback_potential,omitempty"`
}

// StagingDirection is a piece of blocking or business within a scene.
type StagingDirection struct {
	Description  string   `json:"description"`
	CharacterIDs []string `json:"character_ids,omitempty"`
	Props        []string `json:"props,omitempty"`
}

// SceneDialogue is the result of a dialogue generation call.
type SceneDialogue struct {
	Lines []DialogueLine `json:"lines"`
}

// SceneStaging is the result of a staging generation call.
type SceneStaging struct {
	Directions []StagingDirection `json:"directions"`
}

// JokeRecord is one detected comedic beat placed on the episode timeline.
type JokeRecord struct {
	BeatID            string   `json:"beat_id"`
	SceneNumber       int      `json:"scene_number"`
	Timestamp         float64  `json:"timestamp_seconds"`
	Type              JokeType `json:"type"`
	Effectiveness     float64  `json:"effectiveness"`
	CallbackPotential bool     `json:"callback_potential"`
}

// SceneScript is an assembled scene: dialogue plus staging.
type SceneScript struct {
	SceneNumber     int                `json:"scene_number"`
	Location        string             `json:"location"`
	Dialogue        []DialogueLine     `json:"dialogue"`
	Staging         []StagingDirection `json:"staging"`
	RuntimeEstimate float64            `json:"runtime_estimate_seconds"`
	Degraded        bool               `json:"degraded,omitempty"`
	Failure         string             `json:"failure,omitempty"`
}

// Script is a full episode script in scene order.
type Script struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Scenes []SceneScript `json:"scenes"`
}

// Meta carries episode-level metadata.
type Meta struct {
	Title          string  `json:"title" yaml:"title"`
	Show           string  `json:"show" yaml:"show"`
	TargetDuration float64 `json:"target_duration_seconds" yaml:"target_duration_seconds"`
}

// Episode is the pipeline input: outline plus voice profiles.
type Episode struct {
	Meta   Meta                    `json:"meta" yaml:"meta"`
	Scenes []SceneOutline          `json:"scenes" yaml:"scenes"`
	Voices map[string]VoiceProfile `json:"voices" yaml:"voices"`
}
