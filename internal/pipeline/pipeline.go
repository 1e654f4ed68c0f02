// Package pipeline runs one submission end to end: token, folder, uploads,
// record, schema, row append and the optional formula patch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/GBSLIT/FairForm/internal/formula"
	"github.com/GBSLIT/FairForm/internal/graph"
	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/naming"
	pdfutil "github.com/GBSLIT/FairForm/internal/pdf"
	"github.com/GBSLIT/FairForm/internal/record"
	"github.com/GBSLIT/FairForm/internal/upload"
)

// TokenSource yields a bearer token for the Graph calls of one submission.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Remote is the slice of the Graph client the pipeline drives directly.
type Remote interface {
	CreateFolder(ctx context.Context, token, name string) (*graph.DriveItem, error)
	ListColumns(ctx context.Context, token string) ([]string, error)
	AddRow(ctx context.Context, token string, row []any) (int, error)
}

// GroupUploader uploads one file group and reports how many files landed.
type GroupUploader interface {
	UploadGroup(ctx context.Context, token, folderID string, group model.FileGroup) (int, error)
}

// FormulaStep writes the status formula after the row is appended. It may run
// inline or hand the work to a queue.
type FormulaStep interface {
	Patch(ctx context.Context, token string, job formula.Job) (string, error)
}

// Archiver mirrors an uploaded attachment outside the drive.
type Archiver interface {
	Archive(ctx context.Context, folder string, group model.GroupName, file model.Attachment) error
}

// AuditLog remembers submission outcomes. MarkFormula is how a formula
// result reaches an entry that is already saved, whichever process produced
// it.
type AuditLog interface {
	Save(ctx context.Context, entry *model.AuditEntry) error
	MarkFormula(ctx context.Context, id, address, warning string) error
}

// Result is returned for a successful submission.
type Result struct {
	ID         string
	FolderName string
	FolderLink string
	Counts     model.Counts
	RowIndex   int
	Formula    string
	Warnings   []string
	Record     record.Record
}

// Pipeline holds the collaborators of a submission. Formula, Archive and
// Audit are optional.
type Pipeline struct {
	tokens   TokenSource
	remote   Remote
	uploader GroupUploader
	formula  FormulaStep
	archive  Archiver
	audit    AuditLog
	now      func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithFormula enables the post-append formula step.
func WithFormula(f FormulaStep) Option { return func(p *Pipeline) { p.formula = f } }

// WithArchive mirrors every uploaded file through a.
func WithArchive(a Archiver) Option { return func(p *Pipeline) { p.archive = a } }

// WithAudit records every outcome in l.
func WithAudit(l AuditLog) Option { return func(p *Pipeline) { p.audit = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New wires a Pipeline.
func New(tokens TokenSource, remote Remote, uploader GroupUploader, opts ...Option) *Pipeline {
	p := &Pipeline{tokens: tokens, remote: remote, uploader: uploader, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit runs the steps strictly in order. Any failure other than the
// formula patch aborts the submission and is returned as *Error; earlier side
// effects (folder, uploaded files) are left in place.
func (p *Pipeline) Submit(ctx context.Context, sub *model.Submission) (*Result, error) {
	now := p.now()
	id := naming.NewIdentifier(now)
	label := strings.TrimSpace(sub.Form.Get("companyName"))
	if label == "" {
		label = strings.TrimSpace(sub.Form.Get("fairName"))
	}
	res := &Result{ID: id, FolderName: naming.FolderName(id, label), RowIndex: -1}

	entry := &model.AuditEntry{
		ID:         id,
		Company:    label,
		FolderName: res.FolderName,
		RowIndex:   -1,
		CreatedAt:  now.UTC(),
	}
	job, token, err := p.run(ctx, sub, now, res)
	// The entry must exist before a deferred patch can report back.
	p.saveOutcome(ctx, entry, res, err)
	if err != nil {
		return nil, err
	}
	if p.formula != nil {
		p.patchFormula(ctx, token, job, res)
	}
	return res, nil
}

// run performs every fatal step and returns the formula job for the
// appended row.
func (p *Pipeline) run(ctx context.Context, sub *model.Submission, now time.Time, res *Result) (formula.Job, string, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return formula.Job{}, "", newError(AuthFailure, "token", err)
	}

	folder, err := p.remote.CreateFolder(ctx, token, res.FolderName)
	if err != nil {
		return formula.Job{}, "", newError(RemoteCreateFailure, "create folder", err)
	}
	res.FolderLink = folder.WebURL
	log.Printf("submission %s: folder %q created", res.ID, folder.Name)

	for _, name := range model.Groups {
		group := sub.Group(name)
		n, err := p.uploader.UploadGroup(ctx, token, folder.ID, group)
		res.Counts.Set(name, n)
		if err != nil {
			e := newError(RemoteUploadFailure, "upload "+string(name), err)
			var upErr *upload.Error
			if errors.As(err, &upErr) {
				e.File = upErr.File
			}
			return formula.Job{}, "", e
		}
		p.mirror(ctx, res.FolderName, group)
	}

	rec := record.Build(sub.Form, record.Computed{
		ID:             res.ID,
		Now:            now,
		Counts:         res.Counts,
		CataloguePages: pdfutil.TotalPages(sub.Group(model.GroupCatalogue).Files),
		FolderName:     res.FolderName,
		FolderLink:     res.FolderLink,
	})
	res.Record = rec

	schema, err := p.remote.ListColumns(ctx, token)
	if err != nil {
		return formula.Job{}, "", newError(SchemaUnavailable, "list columns", err)
	}
	if len(schema) == 0 {
		return formula.Job{}, "", newError(SchemaUnavailable, "list columns", fmt.Errorf("table has no columns"))
	}

	row := record.MapRow(schema, rec)
	idx, err := p.remote.AddRow(ctx, token, row)
	if err != nil {
		return formula.Job{}, "", newError(AppendFailure, "add row", err)
	}
	res.RowIndex = idx
	log.Printf("submission %s: row %d appended (%d columns)", res.ID, idx, len(schema))
	return formula.Job{SubmissionID: res.ID, Schema: schema, RowIndex: idx}, token, nil
}

// patchFormula runs the formula step. A failure becomes a warning. A queued
// job records its own outcome later.
func (p *Pipeline) patchFormula(ctx context.Context, token string, job formula.Job, res *Result) {
	addr, err := p.formula.Patch(ctx, token, job)
	var warning string
	if err != nil {
		ferr := newError(FormulaPatchFailure, "patch formula", err)
		log.Printf("submission %s: %v", res.ID, ferr)
		warning = ferr.Error()
		res.Warnings = append(res.Warnings, warning)
	} else {
		res.Formula = addr
		if addr == formula.Queued {
			return
		}
	}
	if p.audit == nil {
		return
	}
	if err := p.audit.MarkFormula(context.WithoutCancel(ctx), res.ID, addr, warning); err != nil {
		log.Printf("audit %s: %v", res.ID, err)
	}
}

// mirror archives a fully uploaded group. Archive failures only log.
func (p *Pipeline) mirror(ctx context.Context, folder string, group model.FileGroup) {
	if p.archive == nil {
		return
	}
	for _, f := range group.Files {
		if err := p.archive.Archive(ctx, folder, group.Name, f); err != nil {
			log.Printf("archive %s/%s: %v", folder, f.Filename, err)
		}
	}
}

func (p *Pipeline) saveOutcome(ctx context.Context, entry *model.AuditEntry, res *Result, err error) {
	if p.audit == nil {
		return
	}
	entry.FolderLink = res.FolderLink
	entry.Counts = res.Counts
	entry.RowIndex = res.RowIndex
	entry.Formula = res.Formula
	entry.Warnings = res.Warnings
	entry.Status = model.StatusSucceeded
	if err != nil {
		entry.Status = model.StatusFailed
		entry.Error = err.Error()
		var perr *Error
		if errors.As(err, &perr) {
			entry.ErrorKind = string(perr.Kind)
		}
	}
	// saved even when the client has gone away
	if saveErr := p.audit.Save(context.WithoutCancel(ctx), entry); saveErr != nil {
		log.Printf("audit %s: %v", entry.ID, saveErr)
	}
}
