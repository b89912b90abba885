package router

import (
	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/http/handler"
)

func DocsRouter(rg *gin.RouterGroup, h *handler.DocsHandler) {
	rg.POST("", h.Ingest)
}
