package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GBSLIT/FairForm/internal/database"
	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/naming"
	"github.com/GBSLIT/FairForm/internal/storage"
)

// Runs only against a scratch database named by FAIRFORM_TEST_DATABASE_URL.
func newRepo(t *testing.T) *SubmissionRepository {
	t.Helper()
	dsn := os.Getenv("FAIRFORM_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FAIRFORM_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))
	return NewSubmissionRepository(pool)
}

func TestSaveGetMark(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	id := naming.NewIdentifier(time.Now())

	entry := &model.AuditEntry{
		ID:       id,
		Company:  "Acme Corp",
		Status:   model.StatusSucceeded,
		Counts:   model.Counts{VisitingCard: 1},
		RowIndex: 4,
		Formula:  "queued",
	}
	require.NoError(t, repo.Save(ctx, entry))
	require.NoError(t, repo.MarkFormula(ctx, id, "Sheet1!D6", ""))
	require.NoError(t, repo.MarkFormula(ctx, id, "", "late warning"))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Company)
	assert.Equal(t, 1, got.Counts.VisitingCard)
	assert.Equal(t, "Sheet1!D6", got.Formula)
	assert.Equal(t, []string{"late warning"}, got.Warnings)
}

func TestGetMissing(t *testing.T) {
	repo := newRepo(t)
	_, err := repo.Get(context.Background(), "GBS_missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
