package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/casegest/internal/analysis"
	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/extract"
	"github.com/dgallion1/casegest/internal/pathstore"
	"github.com/dgallion1/casegest/internal/store"
)

var quietLog = slog.New(slog.DiscardHandler)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "casegest.db"), nil, quietLog)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seed(t *testing.T, st store.Store, title, caseNumber, content string) *store.Record {
	t.Helper()
	rec := &store.Record{
		Document:   document.Document{Title: title, Content: content},
		Type:       "filing",
		CaseNumber: caseNumber,
	}
	require.NoError(t, st.Create(context.Background(), rec))
	return rec
}

type fakeExporter struct {
	mu    sync.Mutex
	errs  []error
	calls []pathstore.ExportRequest
}

func (f *fakeExporter) ExportAnalysis(_ context.Context, req pathstore.ExportRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeExporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type failingExtractor struct{}

func (failingExtractor) ExtractEntities(context.Context, string) ([]document.Entity, error) {
	return nil, errors.New("boom")
}

// cancelingExtractor cancels the run once extraction finishes.
type cancelingExtractor struct {
	cancel context.CancelFunc
}

func (c cancelingExtractor) ExtractEntities(ctx context.Context, content string) ([]document.Entity, error) {
	ents, err := extract.NewPatternExtractor().ExtractEntities(ctx, content)
	c.cancel()
	return ents, err
}

func newTestWorker(st store.Store, proc *analysis.Processor, exp Exporter) *Worker {
	if proc == nil {
		proc = analysis.NewProcessor(analysis.Options{Log: quietLog})
	}
	w := NewWorker(st, proc, exp, nil, quietLog)
	w.backoff = func(int) time.Duration { return 0 }
	return w
}

func retryable() error {
	return &pathstore.RetryableError{StatusCode: 503, Err: errors.New("unavailable")}
}

func TestWorker_ProcessCompletes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rec := seed(t, st, "Motion", "12-CV-3456",
		"In case 12-CV-3456 the motion was filed on 01/15/2024 by the plaintiff.")
	sibling := seed(t, st, "Reply", "12-CV-3456", "Reply brief in 12-CV-3456.")
	seed(t, st, "Other", "99-CV-0001", "Unrelated complaint in 99-CV-0001.")

	exp := &fakeExporter{}
	job := NewJob(rec.ID)
	newTestWorker(st, nil, exp).Process(ctx, job)

	snap := job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Empty(t, snap.Progress.Errors)
	assert.Equal(t, 1, snap.Progress.RelatedDocuments)
	assert.NotZero(t, snap.Progress.Entities)
	assert.Equal(t, 1, snap.Progress.TimelineEvents)

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status)

	res, err := st.GetAnalysis(ctx, rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, res.CrossReferences)
	for _, ref := range res.CrossReferences {
		assert.Equal(t, rec.ID, ref.SourceDocID)
		assert.Equal(t, sibling.ID, ref.TargetDocID)
	}

	require.Equal(t, 1, exp.count())
	assert.Equal(t, "12-CV-3456", exp.calls[0].CaseNumber)
	assert.Equal(t, "Motion", exp.calls[0].Title)
	assert.Equal(t, rec.ID, exp.calls[0].Result.ID)
}

func TestWorker_NoExporter(t *testing.T) {
	st := newTestStore(t)
	rec := seed(t, st, "Note", "", "Nothing legal here.")

	job := NewJob(rec.ID)
	newTestWorker(st, nil, nil).Process(context.Background(), job)

	assert.Equal(t, StatusCompleted, job.CurrentStatus())
	assert.Equal(t, 0, job.Snapshot().Progress.RelatedDocuments)
}

func TestWorker_MissingDocument(t *testing.T) {
	st := newTestStore(t)

	job := NewJob("missing")
	newTestWorker(st, nil, nil).Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "loading", snap.Phase)
	require.Len(t, snap.Progress.Errors, 1)
	assert.Contains(t, snap.Progress.Errors[0], "load:")
}

func TestWorker_AnalysisErrorMarksRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rec := seed(t, st, "Motion", "", "The motion was filed on 01/15/2024.")

	exp := &fakeExporter{}
	proc := analysis.NewProcessor(analysis.Options{Extractor: failingExtractor{}, Log: quietLog})
	job := NewJob(rec.ID)
	newTestWorker(st, proc, exp).Process(ctx, job)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, []string{"extract: boom"}, snap.Progress.Errors)

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusError, got.Status)
	assert.Equal(t, "extract: boom", got.ErrorMessage)

	res, err := st.GetAnalysis(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusError, res.Metadata.ProcessingStatus)
	assert.NotEmpty(t, res.Chunks, "earlier stage results are kept")

	assert.Zero(t, exp.count(), "failed analyses are not exported")
}

func TestWorker_CanceledRunResetsRecord(t *testing.T) {
	st := newTestStore(t)
	rec := seed(t, st, "Motion", "", "The motion was filed on 01/15/2024.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := analysis.NewProcessor(analysis.Options{Extractor: cancelingExtractor{cancel: cancel}, Log: quietLog})
	job := NewJob(rec.ID)
	newTestWorker(st, proc, nil).Process(ctx, job)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, []string{"canceled"}, snap.Progress.Errors)

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, got.Status)

	_, err = st.GetAnalysis(context.Background(), rec.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWorker_ExportRetries(t *testing.T) {
	st := newTestStore(t)
	rec := seed(t, st, "Motion", "12-CV-3456", "Filed 01/15/2024.")

	exp := &fakeExporter{errs: []error{retryable(), retryable()}}
	job := NewJob(rec.ID)
	newTestWorker(st, nil, exp).Process(context.Background(), job)

	assert.Equal(t, StatusCompleted, job.CurrentStatus())
	assert.Equal(t, 3, exp.count())
}

func TestWorker_ExportGivesUp(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rec := seed(t, st, "Motion", "12-CV-3456", "Filed 01/15/2024.")

	exp := &fakeExporter{errs: []error{retryable(), retryable(), retryable(), retryable()}}
	job := NewJob(rec.ID)
	newTestWorker(st, nil, exp).Process(ctx, job)

	snap := job.Snapshot()
	assert.Equal(t, StatusPartial, snap.Status)
	assert.Equal(t, MaxRetries, exp.count())
	require.Len(t, snap.Progress.Errors, 1)
	assert.Contains(t, snap.Progress.Errors[0], "export:")

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status, "analysis itself succeeded")
}

func TestWorker_ExportNonRetryable(t *testing.T) {
	st := newTestStore(t)
	rec := seed(t, st, "Motion", "", "Filed 01/15/2024.")

	exp := &fakeExporter{errs: []error{errors.New("bad request")}}
	job := NewJob(rec.ID)
	newTestWorker(st, nil, exp).Process(context.Background(), job)

	assert.Equal(t, StatusPartial, job.CurrentStatus())
	assert.Equal(t, 1, exp.count())
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := min(time.Duration(1<<uint(attempt))*time.Second, 30*time.Second)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/2)
	}
}
