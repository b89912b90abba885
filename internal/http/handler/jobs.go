package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/config"
	"autodev.dev/orchestrator/internal/events"
	"autodev.dev/orchestrator/internal/http/dto"
	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/model"
	"autodev.dev/orchestrator/internal/queue"
	"autodev.dev/orchestrator/internal/store"
)

// JobHandler serves the /tasks and /jobs surface: enqueueing new runs and
// reading back job state.
type JobHandler struct {
	stores   *store.Stores
	producer queue.Producer
	bus      *events.Bus
	budget   config.BudgetConfig
	llm      config.LLMConfig
	dryRun   bool
}

func NewJobHandler(stores *store.Stores, producer queue.Producer, bus *events.Bus, budget config.BudgetConfig, llm config.LLMConfig, dryRun bool) *JobHandler {
	return &JobHandler{stores: stores, producer: producer, bus: bus, budget: budget, llm: llm, dryRun: dryRun}
}

func (h *JobHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid create-job request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	branchBase := req.BranchBase
	if branchBase == "" {
		branchBase = "main"
	}

	job := model.Job{
		ID:          idgen.New(),
		Task:        req.Task,
		RepoOwner:   req.RepoOwner,
		RepoName:    req.RepoName,
		BranchBase:  branchBase,
		BudgetUSD:   valueOrFloat(req.BudgetUSD, h.budget.DefaultBudgetUSD),
		MaxRequests: valueOrInt(req.MaxRequests, h.budget.DefaultMaxRequests),
		MaxMinutes:  valueOrInt(req.MaxMinutes, h.budget.DefaultMaxMinutes),
		ModelCTO:    valueOrString(req.ModelCTO, h.llm.ModelCTO),
		ModelCoder:  valueOrString(req.ModelCoder, h.llm.ModelCoder),
		DryRun:      valueOrBool(req.DryRun, h.dryRun),
		Status:      model.JobStatusPending,
	}

	created, err := h.stores.Jobs().Create(ctx, job)
	if err != nil {
		slog.ErrorContext(ctx, "creating job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	if err := h.producer.Enqueue(ctx, queue.JobMessage{JobID: created.ID}); err != nil {
		slog.ErrorContext(ctx, "enqueueing job", "error", err, "job_id", created.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{JobID: created.ID})
}

func (h *JobHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	status := model.JobStatus(c.Query("status"))
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	jobs, err := h.stores.Jobs().List(ctx, status, limit, offset)
	if err != nil {
		slog.ErrorContext(ctx, "listing jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	out := make([]*dto.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		completed, total, err := h.stores.JobSteps().CountByStatus(ctx, j.ID)
		if err != nil {
			slog.WarnContext(ctx, "counting job steps", "error", err, "job_id", j.ID)
		}
		out = append(out, dto.ToJobResponse(j, completed, total))
	}

	c.JSON(http.StatusOK, out)
}

func (h *JobHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := jobIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.stores.Jobs().Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	completed, total, err := h.stores.JobSteps().CountByStatus(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "counting job steps", "error", err, "job_id", id)
	}

	c.JSON(http.StatusOK, dto.ToJobResponse(job, completed, total))
}

// Cancel requests cooperative cancellation: it flips the job's status to
// Cancelled directly, rather than going through the runner, so a job
// mid-step observes the new status on its next limit check and stops
// itself. See internal/jobrunner's cancellation handling.
func (h *JobHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := jobIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.stores.Jobs().Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed || job.Status == model.JobStatusCancelled {
		c.JSON(http.StatusOK, dto.CancelJobResponse{Status: string(job.Status)})
		return
	}

	if err := h.stores.Jobs().UpdateStatus(ctx, nil, id, model.JobStatusCancelled); err != nil {
		slog.ErrorContext(ctx, "cancelling job", "error", err, "job_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		return
	}

	job.Status = model.JobStatusCancelled
	completed, total, _ := h.stores.JobSteps().CountByStatus(ctx, id)
	h.bus.Publish(ctx, events.JobEvent{Type: events.EventJobCancelled, Payload: events.SerializeJob(job, completed, total)})

	c.JSON(http.StatusOK, dto.CancelJobResponse{Status: string(model.JobStatusCancelled)})
}

func (h *JobHandler) Context(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := jobIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	diags, err := h.stores.ContextDiagnostics().ListByJob(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "listing context diagnostics", "error", err, "job_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load context diagnostics"})
		return
	}
	if len(diags) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no context diagnostic recorded for this job"})
		return
	}

	c.JSON(http.StatusOK, dto.ToContextDiagnosticResponse(diags[len(diags)-1]))
}

func jobIDParam(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func valueOrFloat(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

func valueOrInt(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func valueOrString(v *string, fallback string) string {
	if v != nil && *v != "" {
		return *v
	}
	return fallback
}

func valueOrBool(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
