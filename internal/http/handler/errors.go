package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/apperr"
	"autodev.dev/orchestrator/internal/store"
)

// writeError maps a store/apperr failure to a status code the way the
// teacher's handlers map store.ErrNotFound to 404, generalized to the
// orchestrator's wider kind taxonomy.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindMemoryCapExceeded:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.KindPlanParse, apperr.KindMalformedDiff, apperr.KindGit, apperr.KindProvider:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
