package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	APIToken    string

	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string

	SlackBotToken string
	SlackChannel  string

	SceneConcurrency   int
	MaxIterations      int
	PassThreshold      float64
	GenerationAttempts int
	GenerationBackoff  time.Duration
	CacheTTL           time.Duration
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Port:        envInt("SHOWRUNNER_PORT", 8760),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		RedisURL:    envStr("REDIS_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("SHOWRUNNER_API_TOKEN", ""),

		Provider:        envStr("GENERATION_PROVIDER", "anthropic"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("SHOWRUNNER_MODEL", "claude-sonnet-4-20250514"),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIModel:     envStr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:   envStr("OPENAI_BASE_URL", ""),

		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_REVIEW_CHANNEL", ""),

		SceneConcurrency:   envInt("SCENE_CONCURRENCY", 3),
		MaxIterations:      envInt("MAX_ITERATIONS", 3),
		PassThreshold:      envFloat("PASS_THRESHOLD", 0.70),
		GenerationAttempts: envInt("GENERATION_MAX_ATTEMPTS", 3),
		GenerationBackoff:  envDuration("GENERATION_BACKOFF_BASE", time.Second),
		CacheTTL:           envDuration("CACHE_TTL", 24*time.Hour),
	}
}

// LoadWithDotEnv loads the given .env files (".env" when none are named) into the
// environment, then reads the configuration. Variables already set win over the files
// and missing files are ignored.
func LoadWithDotEnv(paths ...string) (Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return Load(), nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
