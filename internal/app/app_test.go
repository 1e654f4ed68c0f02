package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GBSLIT/FairForm/internal/formula"
	"github.com/GBSLIT/FairForm/internal/graph/graphtest"
	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/storage"
)

var columns = []string{"ID", "Company Name", "Folder Link", "Status", "State"}

func submission() *model.Submission {
	return &model.Submission{Form: model.Form{"companyName": {"Acme Corp"}}}
}

func newApp(t *testing.T, async bool) (*App, *graphtest.Server) {
	t.Helper()
	srv := graphtest.New(columns...)
	t.Cleanup(srv.Close)
	cfg := srv.Config()
	cfg.Formula.Column = "State"
	cfg.Formula.Async = async
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, srv
}

func TestNewUsesMemoryAuditWithoutDatabase(t *testing.T) {
	a, _ := newApp(t, false)
	assert.IsType(t, &storage.MemoryStore{}, a.Audit)
}

func TestPipelineInlineFormula(t *testing.T) {
	a, srv := newApp(t, false)
	p, err := a.Pipeline(context.Background())
	require.NoError(t, err)

	res, err := p.Submit(context.Background(), submission())

	require.NoError(t, err)
	assert.Equal(t, "Sheet1!E2", res.Formula)
	assert.Len(t, srv.Patches(), 1)
}

func TestPipelineBackgroundFormula(t *testing.T) {
	a, srv := newApp(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, err := a.Pipeline(ctx)
	require.NoError(t, err)
	a.StartBackground(ctx)

	res, err := p.Submit(ctx, submission())

	require.NoError(t, err)
	assert.Equal(t, formula.Queued, res.Formula)
	assert.Eventually(t, func() bool {
		entry, err := a.Audit.Get(ctx, res.ID)
		return err == nil && entry.Formula == "Sheet1!E2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, srv.Patches(), 1)
}

func TestRunWorkerNeedsQueue(t *testing.T) {
	a, _ := newApp(t, false)
	assert.ErrorIs(t, a.RunWorker(context.Background()), ErrQueueNotConfigured)
}
