package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	ctxengine "autodev.dev/orchestrator/internal/context"
	"autodev.dev/orchestrator/internal/config"
	"autodev.dev/orchestrator/internal/embeddings"
	"autodev.dev/orchestrator/internal/events"
	"autodev.dev/orchestrator/internal/gitops"
	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/jobrunner"
	"autodev.dev/orchestrator/internal/llm"
	"autodev.dev/orchestrator/internal/logging"
	"autodev.dev/orchestrator/internal/model"
	"autodev.dev/orchestrator/internal/otelboot"
	"autodev.dev/orchestrator/internal/pricing"
	"autodev.dev/orchestrator/internal/prompts"
	"autodev.dev/orchestrator/internal/queue"
	"autodev.dev/orchestrator/internal/store"
	"autodev.dev/orchestrator/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otelboot.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logging.Setup(cfg)

	if err := checkExternalDependencies(ctx); err != nil {
		slog.ErrorContext(ctx, "missing required worker dependencies", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "orchestrator worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.JobGroup,
		"consumer_name", cfg.Redis.JobConsumer)

	if err := idgen.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	if err := db.Migrate(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.JobStream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.JobStream,
		Group:        cfg.Redis.JobGroup,
		Consumer:     cfg.Redis.JobConsumer,
		DLQStream:    cfg.Redis.JobDLQStream,
		BatchSize:    1,
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus(redisClient)

	var llmProvider llm.Provider
	if cfg.LLM.Enabled() {
		llmProvider, err = llm.NewOpenAIProvider(llm.Config{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create llm provider", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "llm provider initialized", "cto_model", cfg.LLM.ModelCTO, "coder_model", cfg.LLM.ModelCoder)
	} else if !cfg.DryRun {
		slog.ErrorContext(ctx, "OPENAI_API_KEY is required unless DRY_RUN is set")
		os.Exit(1)
	} else {
		slog.InfoContext(ctx, "llm provider disabled; jobs will run in dry-run mode")
	}

	var embedProvider embeddings.Provider
	if cfg.Embed.Enabled() {
		embedProvider, err = embeddings.NewOpenAIProvider(ctx, cfg.Embed.APIKey, "", cfg.Embed.Model)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create embedding provider", "error", err)
			os.Exit(1)
		}
	} else {
		embedProvider = embeddings.NewFallbackProvider()
		slog.InfoContext(ctx, "embedding provider disabled; using deterministic fallback")
	}

	pricingTable, err := pricing.Load(cfg.PricingFile)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load pricing table", "error", err)
		os.Exit(1)
	}

	agentsFile, err := prompts.Load(cfg.AgentsFile)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load agents file", "error", err, "path", cfg.AgentsFile)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "agents file loaded", "path", cfg.AgentsFile, "digest", agentsFile.Digest)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.ErrorContext(ctx, "failed to create data dir", "error", err, "path", cfg.DataDir)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.ArtifactsDir, 0o755); err != nil {
		slog.ErrorContext(ctx, "failed to create artifacts dir", "error", err, "path", cfg.ArtifactsDir)
		os.Exit(1)
	}

	repo := gitops.NewRepo(nil, cfg.DataDir)

	var prClient *gitops.PullRequestClient
	if cfg.GitLab.Token != "" {
		prClient, err = gitops.NewPullRequestClient(cfg.GitLab.Token, cfg.GitLab.BaseURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create gitlab client", "error", err)
			os.Exit(1)
		}
	} else {
		slog.InfoContext(ctx, "gitlab token not configured; pull requests will not be opened")
	}

	stores := store.NewStores(db)
	docsStore := embeddings.NewStore(stores.Embeddings(), embedProvider)

	engine := &ctxengine.Engine{
		Memory:  stores.MemoryNotes(),
		History: stores.MessageSummaries(),
		Docs:    docsStore,
		EmbedProvider: embedProvider,
		Provider:      llmProvider,
		Diagnostics: func(ctx context.Context, d model.ContextDiagnostic) error {
			_, err := stores.ContextDiagnostics().Create(ctx, nil, d)
			return err
		},
		ContextCfg:   cfg.Context,
		MemoryCfg:    cfg.Memory,
		RetrieveCfg:  cfg.Retrieve,
		JITEnabled:   cfg.Context.JITEnabled,
		ArtifactsDir: cfg.ArtifactsDir,
	}

	runner := &jobrunner.Runner{
		Stores:          stores,
		Engine:          engine,
		Bus:             bus,
		Pricing:         pricingTable,
		Prompts:         agentsFile,
		Repo:            repo,
		PR:              prClient,
		Provider:        llmProvider,
		GitLabBaseURL:   cfg.GitLab.BaseURL,
		GitLabToken:     cfg.GitLab.Token,
		DataDir:         cfg.DataDir,
		ArtifactsDir:    cfg.ArtifactsDir,
		AllowDirectPush: cfg.Budget.AllowDirectPush,
	}

	w := worker.New(consumer, runner, worker.Config{MaxAttempts: 3})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Redis.JobStream,
		Group:     cfg.Redis.JobGroup,
		Consumer:  cfg.Redis.JobConsumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go reclaimer.Run(runCtx)
	go func() {
		if err := w.Run(runCtx); err != nil && runCtx.Err() == nil {
			slog.ErrorContext(runCtx, "worker stopped with error", "error", err)
		}
	}()

	slog.InfoContext(ctx, "worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown...")
	cancel()

	shutdownComplete := make(chan struct{})
	go func() {
		reclaimer.Stop()
		w.Stop()
		close(shutdownComplete)
	}()

	shutdownTimeout := 30 * time.Second
	select {
	case <-shutdownComplete:
		slog.InfoContext(ctx, "graceful shutdown completed")
	case <-time.After(shutdownTimeout):
		slog.WarnContext(ctx, "shutdown timeout exceeded, forcing exit", "timeout", shutdownTimeout)
	}

	slog.InfoContext(ctx, "closing database connection")
	db.Close()

	slog.InfoContext(ctx, "closing redis connection")
	if err := redisClient.Close(); err != nil {
		slog.ErrorContext(ctx, "redis close error", "error", err)
	}

	if telemetry != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
		shutdownCancel()
	}

	slog.InfoContext(ctx, "shutdown complete")
}

// checkExternalDependencies verifies the one external binary the worker
// shells out to is on PATH. Repo auth goes through a token embedded in the
// clone URL (see gitops.EmbedToken), so unlike an SSH-deploy-key setup there
// is no ssh/ssh-keygen/ssh-keyscan dependency to check here.
func checkExternalDependencies(ctx context.Context) error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		slog.WarnContext(ctx, "git version check failed", "error", err, "output", string(out))
		return nil
	}
	slog.InfoContext(ctx, "dependency available", "name", "git", "output", string(out))
	return nil
}

const banner = `
 █████╗ ██╗   ██╗████████╗ ██████╗ ██████╗ ███████╗██╗   ██╗    ██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗███████╗██████╗
██╔══██╗██║   ██║╚══██╔══╝██╔═══██╗██╔══██╗██╔════╝██║   ██║    ██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██╔════╝██╔══██╗
███████║██║   ██║   ██║   ██║   ██║██║  ██║█████╗  ██║   ██║    ██║ █╗ ██║██║   ██║██████╔╝█████╔╝ █████╗  ██████╔╝
██╔══██║██║   ██║   ██║   ██║   ██║██║  ██║██╔══╝  ╚██╗ ██╔╝    ██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██╔══╝  ██╔══██╗
██║  ██║╚██████╔╝   ██║   ╚██████╔╝██████╔╝███████╗ ╚████╔╝     ╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗███████╗██║  ██║
╚═╝  ╚═╝ ╚═════╝    ╚═╝    ╚═════╝ ╚═════╝ ╚══════╝  ╚═══╝       ╚══╝╚══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`
