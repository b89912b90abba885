package router

import (
	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/http/handler"
)

func MemoryRouter(rg *gin.RouterGroup, h *handler.MemoryHandler) {
	rg.POST("/:id/notes", h.AddNote)
	rg.GET("/:id", h.List)
	rg.POST("/:id/files", h.AddFile)
}
