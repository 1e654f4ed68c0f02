package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GBSLIT/FairForm/internal/auth"
	"github.com/GBSLIT/FairForm/internal/config"
	"github.com/GBSLIT/FairForm/internal/formula"
	"github.com/GBSLIT/FairForm/internal/graph"
	"github.com/GBSLIT/FairForm/internal/graph/graphtest"
	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/record"
	"github.com/GBSLIT/FairForm/internal/storage"
	"github.com/GBSLIT/FairForm/internal/upload"
)

var columns = []string{
	"ID", "Timestamp", "Company Name", "Contact Email", "GB Contact Email",
	"Visiting Cards", "Booth Photos", "Catalogues", "Folder Link", "Status", "State",
}

type fixture struct {
	srv   *graphtest.Server
	cfg   *config.Config
	audit *storage.MemoryStore
}

func newFixture(t *testing.T, cols ...string) *fixture {
	t.Helper()
	srv := graphtest.New(cols...)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, cfg: srv.Config(), audit: storage.NewMemoryStore()}
}

func (f *fixture) pipeline(opts ...Option) *Pipeline {
	client := graph.New(f.cfg)
	opts = append([]Option{WithAudit(f.audit)}, opts...)
	return New(auth.NewProvider(f.cfg), client, upload.New(client, f.cfg.UploadConcurrency), opts...)
}

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) {
	return "", errors.New("invalid_client")
}

// netTimeout is the shape of an http.Client Timeout error.
type netTimeout struct{}

func (netTimeout) Error() string   { return "Client.Timeout exceeded while awaiting headers" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return false }

type timeoutTokens struct{}

func (timeoutTokens) Token(context.Context) (string, error) {
	return "", fmt.Errorf("client credentials exchange: %w", &url.Error{Op: "Post", URL: "https://login.example/token", Err: netTimeout{}})
}

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingArchive) Archive(_ context.Context, folder string, group model.GroupName, file model.Attachment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, folder+"/"+string(group)+"/"+file.Filename)
	return nil
}

func acmeSubmission(cards ...string) *model.Submission {
	files := make([]model.Attachment, len(cards))
	for i, c := range cards {
		files[i] = model.Attachment{Filename: c, ContentType: "image/jpeg", Data: []byte("jpeg-" + c)}
	}
	return &model.Submission{
		Form: model.Form{
			"companyName":  {"Acme Corp"},
			"contactEmail": {"a@x.com"},
			"gbContact":    {"Mr. Ted"},
		},
		Groups: []model.FileGroup{{Name: model.GroupVisitingCard, Files: files}},
	}
}

func TestSubmitAcmeCorp(t *testing.T) {
	f := newFixture(t, columns...)
	archive := &recordingArchive{}
	p := f.pipeline(WithArchive(archive))

	res, err := p.Submit(context.Background(), acmeSubmission("card.jpg"))

	require.NoError(t, err)
	assert.Regexp(t, `^GBS_\d{14}_[A-Z0-9]{6}$`, res.ID)
	assert.Contains(t, res.FolderLink, "Acme_Corp")
	assert.Equal(t, model.Counts{VisitingCard: 1}, res.Counts)
	assert.Equal(t, "ted@globalbasesourcing.com", res.Record.String(record.FieldGlobalBaseContactEmail))
	assert.Equal(t, 1, res.Record[record.FieldVisitingCardCount])
	assert.Empty(t, res.Warnings)

	require.Equal(t, []string{res.FolderName}, f.srv.Folders())
	rows := f.srv.Rows()
	require.Len(t, rows, 1)
	row := rows[0]
	require.Len(t, row, len(columns))
	assert.Equal(t, res.ID, row[0])
	assert.Equal(t, "Acme Corp", row[2])
	assert.Equal(t, "a@x.com", row[3])
	assert.Equal(t, "ted@globalbasesourcing.com", row[4])
	assert.Equal(t, float64(1), row[5])
	assert.Equal(t, float64(0), row[6])
	assert.Equal(t, res.FolderLink, row[8])
	assert.Equal(t, "", row[9])

	assert.Equal(t, []string{res.FolderName + "/visitingCard/card.jpg"}, archive.keys)

	entry, err := f.audit.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, entry.Status)
	assert.Equal(t, 0, entry.RowIndex)
}

func TestSubmitSameNamedFilesKept(t *testing.T) {
	f := newFixture(t, columns...)
	sub := acmeSubmission("image.jpg", "image.jpg")
	sub.Groups = append(sub.Groups, model.FileGroup{
		Name:  model.GroupBoothPhotos,
		Files: []model.Attachment{{Filename: "image.jpg", ContentType: "image/jpeg", Data: []byte("booth")}},
	})

	res, err := f.pipeline().Submit(context.Background(), sub)

	require.NoError(t, err)
	assert.Equal(t, model.Counts{VisitingCard: 2, BoothPhotos: 1}, res.Counts)
	var names []string
	for _, u := range f.srv.Uploads() {
		names = append(names, u.Name)
	}
	assert.ElementsMatch(t, []string{"image.jpg", "image 1.jpg", "image 2.jpg"}, names)
}

func TestSubmitFormulaPatched(t *testing.T) {
	f := newFixture(t, columns...)
	f.cfg.Formula.Column = "State"
	client := graph.New(f.cfg)
	p := f.pipeline(WithFormula(formula.New(client, f.cfg.Formula)))

	res, err := p.Submit(context.Background(), acmeSubmission())

	require.NoError(t, err)
	assert.Equal(t, "Sheet1!K2", res.Formula)
	patches := f.srv.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, []string{`=IF(A2="","",IF(J2="","PENDING","DONE"))`}, patches[0].Formulas)

	entry, err := f.audit.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sheet1!K2", entry.Formula)
}

func TestSubmitFormulaFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, columns...)
	f.srv.RejectFormulas = true
	f.srv.RejectLocal = true
	f.cfg.Formula.Column = "State"
	p := f.pipeline(WithFormula(formula.New(graph.New(f.cfg), f.cfg.Formula)))

	res, err := p.Submit(context.Background(), acmeSubmission("card.jpg"))

	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], string(FormulaPatchFailure))
	assert.Len(t, f.srv.Rows(), 1)
	assert.Len(t, f.srv.Patches(), 2)

	entry, err := f.audit.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, entry.Status)
	assert.Equal(t, res.Warnings, entry.Warnings)
}

type deferredStep struct {
	audit *storage.MemoryStore
	saved bool
	job   formula.Job
}

func (d *deferredStep) Patch(ctx context.Context, _ string, job formula.Job) (string, error) {
	_, err := d.audit.Get(ctx, job.SubmissionID)
	d.saved = err == nil
	d.job = job
	return formula.Queued, nil
}

func TestSubmitFormulaDeferred(t *testing.T) {
	f := newFixture(t, columns...)
	step := &deferredStep{audit: f.audit}
	p := f.pipeline(WithFormula(step))

	res, err := p.Submit(context.Background(), acmeSubmission())

	require.NoError(t, err)
	assert.Equal(t, formula.Queued, res.Formula)
	assert.True(t, step.saved, "entry is saved before the job is handed off")
	assert.Equal(t, formula.Job{SubmissionID: res.ID, Schema: columns, RowIndex: 0}, step.job)

	// the worker reports later
	require.NoError(t, f.audit.MarkFormula(context.Background(), res.ID, "Sheet1!K2", ""))
	entry, err := f.audit.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sheet1!K2", entry.Formula)
}

func TestSubmitUploadFailFast(t *testing.T) {
	f := newFixture(t, columns...)
	f.srv.FailUploadAt = 2
	archive := &recordingArchive{}
	p := f.pipeline(WithArchive(archive))

	res, err := p.Submit(context.Background(), acmeSubmission("1.jpg", "2.jpg", "3.jpg"))

	require.Nil(t, res)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, RemoteUploadFailure, perr.Kind)
	assert.Equal(t, "2.jpg", perr.File)
	require.NotNil(t, perr.Remote)
	assert.Equal(t, "quotaLimitReached", perr.Remote.Code)

	assert.Equal(t, 2, f.srv.UploadAttempts())
	assert.Len(t, f.srv.Uploads(), 1, "uploaded files stay in place")
	assert.Empty(t, f.srv.Rows())
	assert.Empty(t, archive.keys)

	entries := f.srv.Folders()
	require.Len(t, entries, 1)
	id := strings.SplitN(entries[0], "_Acme", 2)[0]
	entry, err := f.audit.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, entry.Status)
	assert.Equal(t, string(RemoteUploadFailure), entry.ErrorKind)
	assert.Equal(t, 1, entry.Counts.VisitingCard)
}

func TestSubmitCreateFailure(t *testing.T) {
	f := newFixture(t, columns...)
	f.srv.FailCreate = true

	_, err := f.pipeline().Submit(context.Background(), acmeSubmission("card.jpg"))

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, RemoteCreateFailure, perr.Kind)
	require.NotNil(t, perr.Remote)
	assert.JSONEq(t, `{"error":{"code":"accessDenied","message":"folder creation denied"}}`, string(perr.Remote.Body))
	assert.Zero(t, f.srv.UploadAttempts())
}

func TestSubmitSchemaUnavailable(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t, columns...)
		f.srv.FailColumns = true
		_, err := f.pipeline().Submit(context.Background(), acmeSubmission())
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, SchemaUnavailable, perr.Kind)
	})
	t.Run("empty", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pipeline().Submit(context.Background(), acmeSubmission())
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, SchemaUnavailable, perr.Kind)
		assert.Nil(t, perr.Remote)
	})
}

func TestSubmitAppendFailure(t *testing.T) {
	f := newFixture(t, columns...)
	f.srv.FailAddRow = true

	_, err := f.pipeline().Submit(context.Background(), acmeSubmission("card.jpg"))

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, AppendFailure, perr.Kind)
	assert.Len(t, f.srv.Uploads(), 1)
}

func TestSubmitAuthFailure(t *testing.T) {
	f := newFixture(t, columns...)
	client := graph.New(f.cfg)
	p := New(failingTokens{}, client, upload.New(client, 1))

	_, err := p.Submit(context.Background(), acmeSubmission())

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, AuthFailure, perr.Kind)
	assert.Empty(t, f.srv.Folders())
}

func TestSubmitTimeout(t *testing.T) {
	f := newFixture(t, columns...)
	f.srv.Delay = 300 * time.Millisecond
	f.cfg.GraphTimeout = 30 * time.Millisecond

	_, err := f.pipeline().Submit(context.Background(), acmeSubmission())

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, RemoteTimeout, perr.Kind)
	assert.True(t, perr.Kind.Fatal())
}

func TestSubmitTokenTransportTimeout(t *testing.T) {
	f := newFixture(t, columns...)
	client := graph.New(f.cfg)
	p := New(timeoutTokens{}, client, upload.New(client, 1))

	_, err := p.Submit(context.Background(), acmeSubmission())

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, RemoteTimeout, perr.Kind)
	assert.Empty(t, f.srv.Folders())
}

func TestNewErrorClassifiesTimeouts(t *testing.T) {
	assert.Equal(t, RemoteTimeout, newError(AuthFailure, "token", context.DeadlineExceeded).Kind)
	assert.Equal(t, RemoteTimeout, newError(AppendFailure, "append row", fmt.Errorf("wrap: %w", graph.ErrTimeout)).Kind)
	assert.Equal(t, RemoteTimeout, newError(AuthFailure, "token", netTimeout{}).Kind)
	assert.Equal(t, AuthFailure, newError(AuthFailure, "token", errors.New("invalid_client")).Kind)
}

func TestSubmitFallsBackToFairName(t *testing.T) {
	f := newFixture(t, columns...)
	fixed := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	p := f.pipeline(WithClock(func() time.Time { return fixed }))

	res, err := p.Submit(context.Background(), &model.Submission{Form: model.Form{"fairName": {"Canton Fair 2026"}}})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ID, "GBS_20261015093000_"))
	assert.True(t, strings.HasSuffix(res.FolderName, "_Canton_Fair_2026"))
	assert.Equal(t, model.Counts{}, res.Counts)
	assert.Equal(t, "2026-10-15T09:30:00.000Z", f.srv.Rows()[0][1])
}

func TestKindFatal(t *testing.T) {
	for _, k := range []Kind{AuthFailure, RemoteCreateFailure, RemoteUploadFailure, SchemaUnavailable, AppendFailure, RemoteTimeout} {
		assert.True(t, k.Fatal(), k)
	}
	assert.False(t, FormulaPatchFailure.Fatal())
}
