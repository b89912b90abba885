package queue_test

import (
	"testing"

	"github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autodev.dev/orchestrator/internal/queue"
)

func TestQueue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "queue Suite")
}

var _ = Describe("ParseMessage", func() {
	It("parses a well-formed job_execute message", func() {
		raw := redis.XMessage{ID: "1-0", Values: map[string]any{
			"task_type": "job_execute",
			"job_id":    "42",
			"attempt":   "2",
			"trace_id":  "trace-abc",
		}}

		msg, err := queue.ParseMessage(raw)

		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ID).To(Equal("1-0"))
		Expect(msg.TaskType).To(Equal(queue.TaskTypeJobExecute))
		Expect(msg.JobID).To(Equal(int64(42)))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.TraceID).To(Equal("trace-abc"))
	})

	It("defaults task_type to job_execute when absent", func() {
		raw := redis.XMessage{ID: "1-0", Values: map[string]any{"job_id": "1"}}
		msg, err := queue.ParseMessage(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.TaskType).To(Equal(queue.TaskTypeJobExecute))
	})

	It("defaults a missing attempt to 1", func() {
		raw := redis.XMessage{ID: "1-0", Values: map[string]any{"job_id": "1"}}
		msg, err := queue.ParseMessage(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
	})

	It("errors when job_id is missing", func() {
		raw := redis.XMessage{ID: "1-0", Values: map[string]any{}}
		_, err := queue.ParseMessage(raw)
		Expect(err).To(HaveOccurred())
	})

	It("errors when job_id is not numeric", func() {
		raw := redis.XMessage{ID: "1-0", Values: map[string]any{"job_id": "not-a-number"}}
		_, err := queue.ParseMessage(raw)
		Expect(err).To(HaveOccurred())
	})

	It("errors on an unrecognized task_type", func() {
		raw := redis.XMessage{ID: "1-0", Values: map[string]any{"job_id": "1", "task_type": "something_else"}}
		_, err := queue.ParseMessage(raw)
		Expect(err).To(HaveOccurred())
	})
})
