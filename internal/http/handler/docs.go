package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/embeddings"
	"autodev.dev/orchestrator/internal/http/dto"
	"autodev.dev/orchestrator/internal/idgen"
)

// docScope is the embeddings scope used for externally ingested documents;
// the context engine's external-doc producer searches this same scope.
const docScope = "doc"

// DocsHandler lets callers seed the context engine's external-doc
// candidate pool ahead of a job.
type DocsHandler struct {
	store *embeddings.Store
}

func NewDocsHandler(store *embeddings.Store) *DocsHandler {
	return &DocsHandler{store: store}
}

func (h *DocsHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestDocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ingest-doc request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	refID := req.RefID
	if refID == "" {
		refID = idgen.NewString()
	}

	if err := h.store.AddDocument(ctx, docScope, refID, req.Text); err != nil {
		slog.ErrorContext(ctx, "ingesting document", "error", err, "ref_id", refID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest document"})
		return
	}

	c.JSON(http.StatusCreated, dto.IngestDocResponse{RefID: refID})
}
