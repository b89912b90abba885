package events_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autodev.dev/orchestrator/internal/events"
	"autodev.dev/orchestrator/internal/model"
)

func TestEvents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "events Suite")
}

var _ = Describe("SerializeJob", func() {
	It("carries every field a subscriber needs to render job state", func() {
		job := model.Job{
			ID:         7,
			Task:       "fix the login bug",
			RepoOwner:  "acme",
			RepoName:   "widgets",
			Status:     model.JobStatusRunning,
			CostUSD:    1.25,
			TokensIn:   1000,
			TokensOut:  500,
			ModelCTO:   "gpt-5",
			ModelCoder: "gpt-5-coder",
		}

		payload := events.SerializeJob(job, 1, 2)

		Expect(payload.ID).To(Equal(int64(7)))
		Expect(payload.Status).To(Equal("running"))
		Expect(payload.Progress).To(BeNumerically("~", 0.5, 0.001))
		Expect(payload.ModelCTO).To(Equal("gpt-5"))
	})
})

var _ = Describe("Bus", func() {
	It("does not panic publishing through a nil client", func() {
		bus := events.NewBus(nil)
		Expect(func() {
			bus.Publish(context.Background(), events.JobEvent{Type: events.EventJobUpdated})
		}).NotTo(Panic())
	})
})
