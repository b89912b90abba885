// Package ledger enforces a job's budget, request, and wall-clock ceilings.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"autodev.dev/orchestrator/internal/model"
)

// ErrBudgetExceeded, ErrRequestsExceeded and ErrDeadlineExceeded are fatal:
// the job runner must transition the job to Failed on any of them, never
// retry.
var (
	ErrBudgetExceeded   = errors.New("ledger: budget exceeded")
	ErrRequestsExceeded = errors.New("ledger: requests exceeded")
	ErrDeadlineExceeded = errors.New("ledger: deadline exceeded")
)

// CheckLimits is invoked before each planned step execution. now is passed
// in rather than read from time.Now so callers can test deterministically.
func CheckLimits(job model.Job, now time.Time) error {
	if job.CostUSD >= job.BudgetUSD {
		return fmt.Errorf("%w: cost_usd=%.4f max_usd=%.4f", ErrBudgetExceeded, job.CostUSD, job.BudgetUSD)
	}
	if job.RequestsMade >= job.MaxRequests {
		return fmt.Errorf("%w: requests_made=%d max_requests=%d", ErrRequestsExceeded, job.RequestsMade, job.MaxRequests)
	}
	if job.StartedAt != nil {
		elapsed := now.Sub(*job.StartedAt)
		if elapsed > time.Duration(job.MaxMinutes)*time.Minute {
			return fmt.Errorf("%w: elapsed=%s max_minutes=%d", ErrDeadlineExceeded, elapsed, job.MaxMinutes)
		}
	}
	return nil
}
