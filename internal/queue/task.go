package queue

type TaskType string

const (
	// TaskTypeJobExecute is the only task this queue carries: run (or
	// resume) a Job to completion.
	TaskTypeJobExecute TaskType = "job_execute"
)
