package router

import (
	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/http/handler"
)

func JobEventsRouter(rg *gin.RouterGroup, h *handler.JobEventsHandler) {
	rg.GET("/jobs", h.Stream)
}
