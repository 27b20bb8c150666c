package quality

// Weights are the rubric weights of the overall score. They should sum to 1.
type Weights struct {
	Voice      float64
	Comedy     float64
	Production float64
	Plot       float64
}

// Config holds every tunable of the scorer.
type Config struct {
	Weights                Weights
	PassThreshold          float64
	CatchphraseOveruse     float64 // share of a character's lines above which a catchphrase is overused
	WeakBeatThreshold      float64 // beats below this effectiveness are weak
	WeakFractionLimit      float64 // share of weak beats above which an ERROR is raised
	MaxLocations           int
	MinScenes              int
	MissingProfileScore    float64
	ComplexLocationKeyword []string // whole-word terms, see hasTerm
}

// DefaultConfig returns the standard scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights:             Weights{Voice: 0.30, Comedy: 0.30, Production: 0.25, Plot: 0.15},
		PassThreshold:       0.70,
		CatchphraseOveruse:  0.40,
		WeakBeatThreshold:   0.5,
		WeakFractionLimit:   0.30,
		MaxLocations:        6,
		MinScenes:           3,
		MissingProfileScore: 0.5,
		ComplexLocationKeyword: []string{
			"underwater", "space", "zero gravity", "helicopter", "explosion", "fire",
			"car chase", "stadium", "crowd", "rooftop", "blizzard", "jungle", "aerial", "zoo",
		},
	}
}
