package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/store"
)

// HealthHandler probes the database so a load balancer can distinguish a
// live process from one that can no longer reach Postgres.
type HealthHandler struct {
	db *store.DB
}

func NewHealthHandler(db *store.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(c *gin.Context) {
	if err := h.db.Pool.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
