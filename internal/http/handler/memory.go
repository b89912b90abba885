package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/apperr"
	"autodev.dev/orchestrator/internal/config"
	"autodev.dev/orchestrator/internal/http/dto"
	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/model"
	"autodev.dev/orchestrator/internal/store"
)

// MemoryHandler serves a job's working-memory notes and files, enforcing
// the per-job item count and per-item byte caps.
type MemoryHandler struct {
	stores  *store.Stores
	cfg     config.MemoryConfig
	dataDir string
}

func NewMemoryHandler(stores *store.Stores, cfg config.MemoryConfig, dataDir string) *MemoryHandler {
	return &MemoryHandler{stores: stores, cfg: cfg, dataDir: dataDir}
}

func (h *MemoryHandler) AddNote(c *gin.Context) {
	ctx := c.Request.Context()

	jobID, err := jobIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req dto.CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid create-note request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !model.AllowedNoteTypes[req.NoteType] {
		writeError(c, apperr.New(apperr.KindValidation, fmt.Sprintf("unknown note_type %q", req.NoteType)))
		return
	}

	if len(req.Body) > h.cfg.MaxBytesPerItem {
		writeError(c, apperr.New(apperr.KindMemoryCapExceeded, "note body exceeds the per-item byte cap"))
		return
	}

	count, err := h.stores.MemoryNotes().CountByJob(ctx, jobID)
	if err != nil {
		slog.ErrorContext(ctx, "counting memory notes", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check memory cap"})
		return
	}
	if count >= h.cfg.MaxItemsPerJob {
		writeError(c, apperr.New(apperr.KindMemoryCapExceeded, "job has reached its memory note limit"))
		return
	}

	note, err := h.stores.MemoryNotes().Create(ctx, model.MemoryNote{
		ID:       idgen.New(),
		JobID:    jobID,
		NoteType: req.NoteType,
		Title:    req.Title,
		Body:     req.Body,
		Tags:     req.Tags,
		StepID:   req.StepID,
	})
	if err != nil {
		slog.ErrorContext(ctx, "creating memory note", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create memory note"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToNoteResponse(note))
}

func (h *MemoryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	jobID, err := jobIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notes, err := h.stores.MemoryNotes().ListByJob(ctx, jobID)
	if err != nil {
		slog.ErrorContext(ctx, "listing memory notes", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list memory notes"})
		return
	}
	files, err := h.stores.MemoryFiles().ListByJob(ctx, jobID)
	if err != nil {
		slog.ErrorContext(ctx, "listing memory files", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list memory files"})
		return
	}

	resp := dto.MemoryResponse{
		Notes: make([]dto.NoteResponse, len(notes)),
		Files: make([]dto.FileResponse, len(files)),
	}
	for i, n := range notes {
		resp.Notes[i] = dto.ToNoteResponse(n)
	}
	for i, f := range files {
		resp.Files[i] = dto.ToFileResponse(f)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *MemoryHandler) AddFile(c *gin.Context) {
	ctx := c.Request.Context()

	jobID, err := jobIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if fileHeader.Size > int64(h.cfg.MaxBytesPerItem) {
		writeError(c, apperr.New(apperr.KindMemoryCapExceeded, "file exceeds the per-item byte cap"))
		return
	}

	destDir := filepath.Join(h.dataDir, "memory", fmt.Sprint(jobID))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		slog.ErrorContext(ctx, "creating memory directory", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	destPath := filepath.Join(destDir, filepath.Base(fileHeader.Filename))
	if err := c.SaveUploadedFile(fileHeader, destPath); err != nil {
		slog.ErrorContext(ctx, "saving memory file", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	file, err := h.stores.MemoryFiles().Create(ctx, model.MemoryFile{
		ID:        idgen.New(),
		JobID:     jobID,
		Filename:  fileHeader.Filename,
		SizeBytes: fileHeader.Size,
		Path:      destPath,
	})
	if err != nil {
		slog.ErrorContext(ctx, "recording memory file", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record file"})
		return
	}

	c.JSON(http.StatusCreated, dto.UploadFileResponse{Path: file.Path, Bytes: file.SizeBytes})
}
