package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/storage"
)

// SubmissionRepository persists audit entries in Postgres. It is shared by
// the API (which records outcomes) and the worker (which records deferred
// formula patches).
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository constructs a repository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Save upserts an entry.
func (r *SubmissionRepository) Save(ctx context.Context, e *model.AuditEntry) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	warnings := e.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO submissions (id, company, folder_name, folder_link, status, visiting_cards, booth_photos, catalogues,
			row_index, formula, warnings, error_kind, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			folder_link=EXCLUDED.folder_link,
			status=EXCLUDED.status,
			visiting_cards=EXCLUDED.visiting_cards,
			booth_photos=EXCLUDED.booth_photos,
			catalogues=EXCLUDED.catalogues,
			row_index=EXCLUDED.row_index,
			formula=EXCLUDED.formula,
			warnings=EXCLUDED.warnings,
			error_kind=EXCLUDED.error_kind,
			error_message=EXCLUDED.error_message,
			updated_at=EXCLUDED.updated_at
	`, e.ID, e.Company, e.FolderName, e.FolderLink, e.Status,
		e.Counts.VisitingCard, e.Counts.BoothPhotos, e.Counts.Catalogue,
		e.RowIndex, e.Formula, warnings, e.ErrorKind, e.Error, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// Get returns an entry by id. A missing id wraps storage.ErrNotFound.
func (r *SubmissionRepository) Get(ctx context.Context, id string) (*model.AuditEntry, error) {
	var e model.AuditEntry
	row := r.pool.QueryRow(ctx, `
		SELECT id, company, folder_name, folder_link, status, visiting_cards, booth_photos, catalogues,
			row_index, formula, warnings, error_kind, error_message, created_at, updated_at
		FROM submissions WHERE id=$1
	`, id)
	err := row.Scan(&e.ID, &e.Company, &e.FolderName, &e.FolderLink, &e.Status,
		&e.Counts.VisitingCard, &e.Counts.BoothPhotos, &e.Counts.Catalogue,
		&e.RowIndex, &e.Formula, &e.Warnings, &e.ErrorKind, &e.Error, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("select submission: %w", err)
	}
	if len(e.Warnings) == 0 {
		e.Warnings = nil
	}
	return &e, nil
}

// MarkFormula records a formula outcome on a saved entry.
func (r *SubmissionRepository) MarkFormula(ctx context.Context, id, address, warning string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE submissions
		SET formula = CASE WHEN $1 = '' THEN formula ELSE $1 END,
			warnings = CASE WHEN $2 = '' THEN warnings ELSE array_append(warnings, $2) END,
			updated_at = $3
		WHERE id = $4
	`, address, warning, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
