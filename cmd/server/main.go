package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"autodev.dev/orchestrator/internal/config"
	"autodev.dev/orchestrator/internal/embeddings"
	"autodev.dev/orchestrator/internal/events"
	"autodev.dev/orchestrator/internal/http/middleware"
	httprouter "autodev.dev/orchestrator/internal/http/router"
	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/logging"
	"autodev.dev/orchestrator/internal/otelboot"
	"autodev.dev/orchestrator/internal/queue"
	"autodev.dev/orchestrator/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logging (logging uses the OTel provider in production).
	telemetry, err := otelboot.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logging.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "orchestrator server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)

	if err := idgen.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
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
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.JobStream)

	producer := queue.NewRedisProducer(redisClient, cfg.Redis.JobStream)
	bus := events.NewBus(redisClient)

	var embedProvider embeddings.Provider
	if cfg.Embed.Enabled() {
		embedProvider, err = embeddings.NewOpenAIProvider(ctx, cfg.Embed.APIKey, "", cfg.Embed.Model)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create embedding provider", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "embedding provider initialized", "model", cfg.Embed.Model)
	} else {
		embedProvider = embeddings.NewFallbackProvider()
		slog.InfoContext(ctx, "embedding provider disabled; using deterministic fallback")
	}

	stores := store.NewStores(db)
	docsStore := embeddings.NewStore(stores.Embeddings(), embedProvider)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, db, stores, producer, bus, docsStore)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, db *store.DB, stores *store.Stores, producer queue.Producer, bus *events.Bus, docs *embeddings.Store) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates the span, Recovery catches panics within it,
	// Logger logs with the resulting trace context attached.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, httprouter.Deps{
		DB:       db,
		Stores:   stores,
		Producer: producer,
		Bus:      bus,
		Docs:     docs,
		Budget:   cfg.Budget,
		LLM:      cfg.LLM,
		Memory:   cfg.Memory,
		DataDir:  ".",
		DryRun:   cfg.DryRun,
	})

	return router
}

const banner = `
 █████╗ ██╗   ██╗████████╗ ██████╗ ██████╗ ███████╗██╗   ██╗
██╔══██╗██║   ██║╚══██╔══╝██╔═══██╗██╔══██╗██╔════╝██║   ██║
███████║██║   ██║   ██║   ██║   ██║██║  ██║█████╗  ██║   ██║
██╔══██║██║   ██║   ██║   ██║   ██║██║  ██║██╔══╝  ╚██╗ ██╔╝
██║  ██║╚██████╔╝   ██║   ╚██████╔╝██████╔╝███████╗ ╚████╔╝
╚═╝  ╚═╝ ╚═════╝    ╚═╝    ╚═════╝ ╚═════╝ ╚══════╝  ╚═══╝
`
