package router

import (
	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/http/handler"
)

func JobRouter(tasks, jobs *gin.RouterGroup, h *handler.JobHandler) {
	tasks.POST("", h.Create)

	jobs.GET("", h.List)
	jobs.GET("/:id", h.Get)
	jobs.POST("/:id/cancel", h.Cancel)
	jobs.GET("/:id/context", h.Context)
}
