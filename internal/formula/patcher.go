// Package formula writes the status formula into a workbook table column
// after a row has been appended.
package formula

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/GBSLIT/FairForm/internal/a1"
	"github.com/GBSLIT/FairForm/internal/config"
	"github.com/GBSLIT/FairForm/internal/graph"
	"github.com/GBSLIT/FairForm/internal/record"
)

const (
	ScopeRow    = "row"
	ScopeColumn = "column"

	StrategyTable  = "table"
	StrategyColumn = "column"
)

// Queued is returned as the address by a step that hands the job to a
// background worker instead of patching inline.
const Queued = "queued"

// ErrColumnNotFound is returned when a configured column is not in the live
// table header.
var ErrColumnNotFound = errors.New("column not found in table")

// Remote is the slice of the Graph client the patcher needs.
type Remote interface {
	TableBodyRange(ctx context.Context, token string) (*graph.RangeInfo, error)
	ColumnBodyRange(ctx context.Context, token, column string) (*graph.RangeInfo, error)
	PatchFormulas(ctx context.Context, token, sheet, address string, formulas []string, local bool) error
}

// Job identifies the appended row a patch is for. It is also the payload of
// a deferred patch task.
type Job struct {
	SubmissionID string   `json:"submission_id"`
	Schema       []string `json:"schema"`
	RowIndex     int      `json:"row_index"`
}

// Patcher fills the configured column with
// =IF(<id>r="","",IF(<status>r="","<blank>","<set>")).
type Patcher struct {
	remote Remote
	cfg    config.FormulaConfig
}

// New returns a Patcher for cfg.
func New(remote Remote, cfg config.FormulaConfig) *Patcher {
	return &Patcher{remote: remote, cfg: cfg}
}

// Patch writes the formula for the row at job.RowIndex (0-based within the
// table body) or, with column scope, for the whole column. The
// invariant-culture payload is tried first and the locale payload once after
// it. It returns the patched address.
func (p *Patcher) Patch(ctx context.Context, token string, job Job) (string, error) {
	target, idCol, statusCol, err := p.locate(ctx, token, job.Schema)
	if err != nil {
		return "", err
	}
	if p.cfg.Scope != ScopeColumn {
		if job.RowIndex >= 0 && job.RowIndex < target.Rows() {
			target = target.Row(job.RowIndex)
		} else {
			target = target.LastRow()
		}
	}

	formulas := make([]string, 0, target.Rows())
	for r := target.Start.Row; r <= target.End.Row; r++ {
		formulas = append(formulas, Build(idCol, statusCol, r, p.cfg.BlankToken, p.cfg.SetToken, ","))
	}
	firstErr := p.remote.PatchFormulas(ctx, token, target.Sheet, target.Address(), formulas, false)
	if firstErr == nil {
		return target.String(), nil
	}
	log.Printf("formula patch of %s rejected, retrying with local separators: %v", target, firstErr)

	for i := range formulas {
		formulas[i] = Build(idCol, statusCol, target.Start.Row+i, p.cfg.BlankToken, p.cfg.SetToken, ";")
	}
	if err := p.remote.PatchFormulas(ctx, token, target.Sheet, target.Address(), formulas, true); err != nil {
		return "", fmt.Errorf("patch %s: %w", target, errors.Join(firstErr, err))
	}
	return target.String(), nil
}

// locate returns the target range and the column letters of the id and
// status columns.
func (p *Patcher) locate(ctx context.Context, token string, schema []string) (a1.Range, string, string, error) {
	targetIdx, err := indexOf(schema, p.cfg.Column)
	if err != nil {
		return a1.Range{}, "", "", err
	}
	idIdx, err := indexOf(schema, p.cfg.IDColumn)
	if err != nil {
		return a1.Range{}, "", "", err
	}
	statusIdx, err := indexOf(schema, p.cfg.StatusColumn)
	if err != nil {
		return a1.Range{}, "", "", err
	}

	if p.cfg.Strategy == StrategyTable {
		body, err := p.remote.TableBodyRange(ctx, token)
		if err != nil {
			return a1.Range{}, "", "", err
		}
		rng, err := a1.Parse(body.Address)
		if err != nil {
			return a1.Range{}, "", "", err
		}
		return rng.Column(targetIdx),
			a1.ColumnLetter(rng.Start.Col + idIdx),
			a1.ColumnLetter(rng.Start.Col + statusIdx),
			nil
	}

	target, err := p.columnRange(ctx, token, schema[targetIdx])
	if err != nil {
		return a1.Range{}, "", "", err
	}
	id, err := p.columnRange(ctx, token, schema[idIdx])
	if err != nil {
		return a1.Range{}, "", "", err
	}
	status, err := p.columnRange(ctx, token, schema[statusIdx])
	if err != nil {
		return a1.Range{}, "", "", err
	}
	return target, a1.ColumnLetter(id.Start.Col), a1.ColumnLetter(status.Start.Col), nil
}

func (p *Patcher) columnRange(ctx context.Context, token, column string) (a1.Range, error) {
	info, err := p.remote.ColumnBodyRange(ctx, token, column)
	if err != nil {
		return a1.Range{}, err
	}
	return a1.Parse(info.Address)
}

func indexOf(schema []string, name string) (int, error) {
	want := record.NormalizeHeader(name)
	for i, h := range schema {
		if record.NormalizeHeader(h) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// Build renders the status formula for one worksheet row using sep as the
// argument separator.
func Build(idCol, statusCol string, row int, blank, set, sep string) string {
	id := fmt.Sprintf("%s%d", idCol, row)
	status := fmt.Sprintf("%s%d", statusCol, row)
	var b strings.Builder
	b.WriteString("=IF(")
	b.WriteString(id + `=""` + sep + `""` + sep)
	b.WriteString("IF(" + status + `=""` + sep + quote(blank) + sep + quote(set) + "))")
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
