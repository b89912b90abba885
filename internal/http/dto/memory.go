package dto

import (
	"time"

	"autodev.dev/orchestrator/internal/model"
)

type CreateNoteRequest struct {
	NoteType string   `json:"note_type" binding:"required"`
	Title    string   `json:"title" binding:"required,min=1"`
	Body     string   `json:"body"`
	Tags     []string `json:"tags"`
	StepID   *int64   `json:"step_id,omitempty"`
}

type NoteResponse struct {
	ID        int64     `json:"id,string"`
	JobID     int64     `json:"job_id,string"`
	NoteType  string    `json:"note_type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	StepID    *int64    `json:"step_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func ToNoteResponse(n model.MemoryNote) NoteResponse {
	return NoteResponse{
		ID:        n.ID,
		JobID:     n.JobID,
		NoteType:  n.NoteType,
		Title:     n.Title,
		Body:      n.Body,
		Tags:      n.Tags,
		StepID:    n.StepID,
		CreatedAt: n.CreatedAt,
	}
}

type FileResponse struct {
	ID        int64     `json:"id,string"`
	JobID     int64     `json:"job_id,string"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

func ToFileResponse(f model.MemoryFile) FileResponse {
	return FileResponse{
		ID:        f.ID,
		JobID:     f.JobID,
		Filename:  f.Filename,
		SizeBytes: f.SizeBytes,
		Path:      f.Path,
		CreatedAt: f.CreatedAt,
	}
}

// MemoryResponse is the body of GET /memory/{id}: every note and file a job
// has accumulated.
type MemoryResponse struct {
	Notes []NoteResponse `json:"notes"`
	Files []FileResponse `json:"files"`
}

type UploadFileResponse struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}
