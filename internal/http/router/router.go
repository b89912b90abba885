package router

import (
	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/config"
	"autodev.dev/orchestrator/internal/embeddings"
	"autodev.dev/orchestrator/internal/events"
	"autodev.dev/orchestrator/internal/http/handler"
	"autodev.dev/orchestrator/internal/queue"
	"autodev.dev/orchestrator/internal/store"
)

// Deps bundles every dependency the HTTP surface needs, built once in
// cmd/server and handed to SetupRoutes.
type Deps struct {
	DB       *store.DB
	Stores   *store.Stores
	Producer queue.Producer
	Bus      *events.Bus
	Docs     *embeddings.Store
	Budget   config.BudgetConfig
	LLM      config.LLMConfig
	Memory   config.MemoryConfig
	DataDir  string
	DryRun   bool
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	healthHandler := handler.NewHealthHandler(deps.DB)
	router.GET("/health", healthHandler.Check)

	jobHandler := handler.NewJobHandler(deps.Stores, deps.Producer, deps.Bus, deps.Budget, deps.LLM, deps.DryRun)
	JobRouter(router.Group("/tasks"), router.Group("/jobs"), jobHandler)

	memoryHandler := handler.NewMemoryHandler(deps.Stores, deps.Memory, deps.DataDir)
	MemoryRouter(router.Group("/memory"), memoryHandler)

	docsHandler := handler.NewDocsHandler(deps.Docs)
	DocsRouter(router.Group("/context/docs"), docsHandler)

	eventsHandler := handler.NewJobEventsHandler(deps.Bus)
	JobEventsRouter(router.Group("/ws"), eventsHandler)
}
