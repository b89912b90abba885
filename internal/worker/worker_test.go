package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autodev.dev/orchestrator/internal/queue"
	"autodev.dev/orchestrator/internal/worker"
)

func TestWorker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "worker Suite")
}

type fakeConsumer struct {
	mu       sync.Mutex
	messages []queue.Message
	read     bool

	acked    []queue.Message
	requeued []queue.Message
	dlqed    []queue.Message
}

func (f *fakeConsumer) Read(ctx context.Context) ([]queue.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.read {
		return nil, nil
	}
	f.read = true
	return f.messages, nil
}

func (f *fakeConsumer) Ack(ctx context.Context, msg queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msg)
	return nil
}

func (f *fakeConsumer) Requeue(ctx context.Context, msg queue.Message, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, msg)
	return nil
}

func (f *fakeConsumer) SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlqed = append(f.dlqed, msg)
	return nil
}

type fakeProcessor struct {
	err func(jobID int64) error
	got []int64
}

func (f *fakeProcessor) Process(ctx context.Context, jobID int64) error {
	f.got = append(f.got, jobID)
	if f.err != nil {
		return f.err(jobID)
	}
	return nil
}

var _ = Describe("Worker.ProcessMessage", func() {
	It("acks the message after a successful process call", func() {
		consumer := &fakeConsumer{}
		processor := &fakeProcessor{}
		w := worker.New(consumer, processor, worker.Config{MaxAttempts: 3})

		msg := queue.Message{ID: "1-0", JobID: 7}
		Expect(w.ProcessMessage(context.Background(), msg)).To(Succeed())

		Expect(processor.got).To(ConsistOf(int64(7)))
		Expect(consumer.acked).To(HaveLen(1))
	})

	It("returns an error without acking when the processor fails", func() {
		consumer := &fakeConsumer{}
		processor := &fakeProcessor{err: func(int64) error { return errors.New("boom") }}
		w := worker.New(consumer, processor, worker.Config{MaxAttempts: 3})

		msg := queue.Message{ID: "1-0", JobID: 7}
		err := w.ProcessMessage(context.Background(), msg)

		Expect(err).To(HaveOccurred())
		Expect(consumer.acked).To(BeEmpty())
	})
})

var _ = Describe("Worker.Run", func() {
	It("processes queued messages and stops cleanly on Stop", func() {
		consumer := &fakeConsumer{messages: []queue.Message{{ID: "1-0", JobID: 1}}}
		processor := &fakeProcessor{}
		w := worker.New(consumer, processor, worker.Config{MaxAttempts: 3})

		done := make(chan error, 1)
		go func() { done <- w.Run(context.Background()) }()

		Eventually(func() []int64 {
			consumer.mu.Lock()
			defer consumer.mu.Unlock()
			return processor.got
		}, time.Second).Should(ConsistOf(int64(1)))

		w.Stop()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	It("stops when the context is cancelled", func() {
		consumer := &fakeConsumer{}
		processor := &fakeProcessor{}
		w := worker.New(consumer, processor, worker.Config{MaxAttempts: 3})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		cancel()
		Eventually(done, time.Second).Should(Receive(Equal(context.Canceled)))
	})

	It("requeues a failed message below the max attempt ceiling", func() {
		consumer := &fakeConsumer{messages: []queue.Message{{ID: "1-0", JobID: 1, Attempt: 1}}}
		processor := &fakeProcessor{err: func(int64) error { return errors.New("transient") }}
		w := worker.New(consumer, processor, worker.Config{MaxAttempts: 3})

		go func() { _ = w.Run(context.Background()) }()

		Eventually(func() []queue.Message {
			consumer.mu.Lock()
			defer consumer.mu.Unlock()
			return consumer.requeued
		}, time.Second).Should(HaveLen(1))

		consumer.mu.Lock()
		Expect(consumer.dlqed).To(BeEmpty())
		consumer.mu.Unlock()

		w.Stop()
	})

	It("sends a failed message to the DLQ once the max attempt ceiling is reached", func() {
		consumer := &fakeConsumer{messages: []queue.Message{{ID: "1-0", JobID: 1, Attempt: 3}}}
		processor := &fakeProcessor{err: func(int64) error { return errors.New("still failing") }}
		w := worker.New(consumer, processor, worker.Config{MaxAttempts: 3})

		go func() { _ = w.Run(context.Background()) }()

		Eventually(func() []queue.Message {
			consumer.mu.Lock()
			defer consumer.mu.Unlock()
			return consumer.dlqed
		}, time.Second).Should(HaveLen(1))

		consumer.mu.Lock()
		Expect(consumer.requeued).To(BeEmpty())
		consumer.mu.Unlock()

		w.Stop()
	})
})
