package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/GBSLIT/FairForm/internal/formula"
	"github.com/GBSLIT/FairForm/internal/queue"
)

// TokenSource yields a Graph bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FormulaPatcher applies one formula job.
type FormulaPatcher interface {
	Patch(ctx context.Context, token string, job formula.Job) (string, error)
}

// FormulaRecorder stores the outcome of a deferred patch. It may be nil.
type FormulaRecorder interface {
	MarkFormula(ctx context.Context, id, address, warning string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	tokens  TokenSource
	patcher FormulaPatcher
	audit   FormulaRecorder
}

// NewProcessor constructs a worker processor.
func NewProcessor(tokens TokenSource, patcher FormulaPatcher, audit FormulaRecorder) *Processor {
	return &Processor{tokens: tokens, patcher: patcher, audit: audit}
}

// Handler registers the formula job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.FormulaPatchTask, p.HandleFormula)
	return mux
}

// HandleFormula decodes a task and runs it. A failed patch is reported to
// asynq, which archives the task.
func (p *Processor) HandleFormula(ctx context.Context, task *asynq.Task) error {
	job, err := queue.DecodeFormulaTask(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return p.Run(ctx, job)
}

// Run patches the formula for job and records the outcome on the submission.
// A failure is recorded as a warning.
func (p *Processor) Run(ctx context.Context, job formula.Job) error {
	failure := func(err error) error {
		log.Printf("formula patch failed for %s: %v", job.SubmissionID, err)
		p.mark(ctx, job.SubmissionID, "", "FormulaPatchFailure: "+err.Error())
		return err
	}
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return failure(err)
	}
	addr, err := p.patcher.Patch(ctx, token, job)
	if err != nil {
		return failure(err)
	}
	p.mark(ctx, job.SubmissionID, addr, "")
	log.Printf("submission %s: formula written to %s", job.SubmissionID, addr)
	return nil
}

// Abandon records a job that was dropped before it ran, typically because
// the in-process pool shut down with jobs still buffered.
func (p *Processor) Abandon(ctx context.Context, job formula.Job, reason error) {
	log.Printf("formula patch abandoned for %s: %v", job.SubmissionID, reason)
	p.mark(ctx, job.SubmissionID, "", "FormulaPatchFailure: "+reason.Error())
}

// mark writes even when ctx is already cancelled, so outcomes reached during
// shutdown still land on the submission.
func (p *Processor) mark(ctx context.Context, id, addr, warning string) {
	if p.audit == nil {
		return
	}
	if err := p.audit.MarkFormula(context.WithoutCancel(ctx), id, addr, warning); err != nil {
		log.Printf("record formula outcome for %s: %v", id, err)
	}
}
