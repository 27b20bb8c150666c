package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/showrunner/internal/anthropic"
	"github.com/MikeSquared-Agency/showrunner/internal/api"
	"github.com/MikeSquared-Agency/showrunner/internal/backfill"
	"github.com/MikeSquared-Agency/showrunner/internal/cache"
	"github.com/MikeSquared-Agency/showrunner/internal/config"
	"github.com/MikeSquared-Agency/showrunner/internal/episode"
	"github.com/MikeSquared-Agency/showrunner/internal/generator"
	"github.com/MikeSquared-Agency/showrunner/internal/hermes"
	"github.com/MikeSquared-Agency/showrunner/internal/metrics"
	"github.com/MikeSquared-Agency/showrunner/internal/openai"
	"github.com/MikeSquared-Agency/showrunner/internal/orchestrator"
	"github.com/MikeSquared-Agency/showrunner/internal/processor"
	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
	"github.com/MikeSquared-Agency/showrunner/internal/slack"
	"github.com/MikeSquared-Agency/showrunner/internal/store"
)

func main() {
	episodePath := flag.String("episode", "", "refine one episode YAML file, print the report JSON and exit")
	backfillDir := flag.String("backfill", "", "refine every episode YAML file under a directory and exit")
	backfillState := flag.String("backfill-state", backfill.DefaultStatePath, "backfill progress file")
	dryRun := flag.Bool("dry-run", false, "with -backfill, validate outlines without generating")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	cfg, err := config.LoadWithDotEnv(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	os.Exit(run(cfg, *episodePath, backfill.Config{
		Dir:       *backfillDir,
		StatePath: *backfillState,
		DryRun:    *dryRun,
		BatchSize: 10,
		Pause:     30 * time.Second,
	}))
}

func run(cfg config.Config, episodePath string, bf backfill.Config) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	llm, err := newCompleter(cfg)
	if err != nil {
		slog.Error("generation provider unavailable", "provider", cfg.Provider, "error", err)
		return 1
	}
	slog.Info("generation provider ready", "provider", llm.Name())

	var genCache cache.Cache = cache.NewMemory(cfg.CacheTTL)
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			slog.Warn("redis unavailable, using in-memory generation cache", "error", err)
		} else {
			defer rc.Close()
			genCache = rc
			slog.Info("redis generation cache ready")
		}
	}

	recorder := metrics.New()
	gen := generator.New(llm, slog.Default(),
		generator.WithCache(genCache),
		generator.WithPolicy(generator.Policy{
			MaxAttempts: cfg.GenerationAttempts,
			BaseDelay:   cfg.GenerationBackoff,
			MaxDelay:    20 * cfg.GenerationBackoff,
		}),
	)
	orch := orchestrator.New(gen,
		orchestrator.WithConcurrency(cfg.SceneConcurrency),
		orchestrator.WithObserver(orchestrator.Observers{orchestrator.LogObserver{Logger: slog.Default()}, recorder}),
		orchestrator.WithLogger(slog.Default()),
	)
	loopCfg := refinement.Config{Threshold: cfg.PassThreshold, MaxIterations: cfg.MaxIterations}
	if err := loopCfg.Validate(); err != nil {
		slog.Error("invalid refinement bounds", "error", err)
		return 1
	}

	if episodePath != "" {
		loop := refinement.NewLoop(orch, loopCfg, slog.Default(), refinement.WithRunObserver(recorder))
		return runOnce(ctx, loop, episodePath)
	}
	if bf.Dir != "" {
		loop := refinement.NewLoop(orch, loopCfg, slog.Default(), refinement.WithRunObserver(recorder))
		return runBackfill(ctx, cfg, loop, bf)
	}
	return serve(ctx, cfg, orch, loopCfg, recorder)
}

// runOnce refines a single episode file and writes the exported report to stdout.
func runOnce(ctx context.Context, loop *refinement.Loop, path string) int {
	ep, err := episode.LoadFile(path)
	if err != nil {
		slog.Error("failed to load episode", "path", path, "error", err)
		return 1
	}

	res, err := loop.Run(ctx, *ep)
	if err != nil {
		slog.Error("refinement failed", "error", err)
		if errors.Is(err, episode.ErrEmptyOutline) || errors.Is(err, episode.ErrInvalidOutline) {
			return 2
		}
		return 1
	}

	out := struct {
		RunID      string                 `json:"run_id"`
		State      refinement.State       `json:"state"`
		Iterations int                    `json:"iterations"`
		History    []refinement.Iteration `json:"history"`
		Export     any                    `json:"export"`
	}{res.RunID, res.State, res.Iterations, res.History, res.Report.Export(res.Script, res.Analysis)}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("failed to write result", "error", err)
		return 1
	}
	return 0
}

// runBackfill refines a directory of outlines, storing runs when a database is configured.
func runBackfill(ctx context.Context, cfg config.Config, loop *refinement.Loop, bf backfill.Config) int {
	var runs backfill.RunStore
	if cfg.DatabaseURL != "" && !bf.DryRun {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			return 1
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			return 1
		}
		runs = db
	}

	var notifier backfill.Notifier
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		notifier = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
	}

	summaries, err := backfill.NewRunner(bf, loop, runs, notifier, slog.Default()).Run(ctx)
	fmt.Print(backfill.FormatSummary(summaries))
	if err != nil {
		slog.Error("backfill failed", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, orch *orchestrator.Orchestrator, loopCfg refinement.Config, recorder *metrics.Recorder) int {
	slog.Info("showrunner starting", "port", cfg.Port)

	// Database (optional: without it runs are not stored and there is no review queue)
	var (
		procRuns processor.RunStore
		apiRuns  api.RunStore
	)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			return 1
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			return 1
		}
		procRuns, apiRuns = db, db
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, runs will not be stored")
	}

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		return 1
	}
	defer hermesClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	loop := refinement.NewLoop(orch, loopCfg, slog.Default(),
		refinement.WithPublisher(refinement.NewPublisher(hermesClient, slog.Default())),
		refinement.WithRunObserver(recorder),
	)

	// Slack poster (optional: without it nothing asks for human review)
	var reviewer processor.Reviewer
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		reviewer = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without review loop")
	}

	proc := processor.New(loop, procRuns, hermesClient, reviewer, slog.Default())

	if err := hermesClient.QueueSubscribe(hermes.SubjectEpisodeRequested, "showrunner", proc.HandleEpisodeRequested); err != nil {
		slog.Error("failed to subscribe to episode requests", "error", err)
		return 1
	}
	if err := hermesClient.Subscribe(hermes.SubjectSlackReaction, proc.HandleReaction); err != nil {
		slog.Error("failed to subscribe to slack reactions", "error", err)
		return 1
	}
	if err := hermesClient.Subscribe(hermes.SubjectSlackInteraction, proc.HandleReviewAction); err != nil {
		slog.Error("failed to subscribe to slack interactions", "error", err)
		return 1
	}

	// HTTP API
	srv := api.NewRefinementServer(cfg.Port, cfg.APIToken, loop, apiRuns, slog.Default())
	srv.Handle("/metrics", recorder.Handler())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	if err := hermesClient.Publish("swarm.agent.showrunner.registered", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"provider":  cfg.Provider,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("showrunner ready", "port", cfg.Port)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	slog.Info("showrunner stopped")
	return 0
}

func newCompleter(cfg config.Config) (generator.Completer, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required")
		}
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	case "openai":
		c, err := openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
