package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/GBSLIT/FairForm/internal/formula"
)

// FormulaPatchTask is scheduled after a row has been appended when formula
// patching is deferred to the worker.
const FormulaPatchTask = "submission:formula"

// NewFormulaTask builds the task for job. The task is never retried: the
// patcher already makes its single locale fallback.
func NewFormulaTask(job formula.Job) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(FormulaPatchTask, data, asynq.MaxRetry(0), asynq.TaskID(job.SubmissionID+":formula")), nil
}

// Enqueuer implements the pipeline's formula step by handing the job to the
// worker.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer wraps an asynq client.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// Patch enqueues job and reports formula.Queued. The bearer token is not forwarded; the worker fetches
// its own.
func (e *Enqueuer) Patch(ctx context.Context, _ string, job formula.Job) (string, error) {
	task, err := NewFormulaTask(job)
	if err != nil {
		return "", err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return "", fmt.Errorf("enqueue formula task: %w", err)
	}
	return formula.Queued, nil
}

// DecodeFormulaTask reads the job back out of a task payload.
func DecodeFormulaTask(task *asynq.Task) (formula.Job, error) {
	var job formula.Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return formula.Job{}, fmt.Errorf("decode payload: %w", err)
	}
	return job, nil
}
