package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/casegest/internal/analysis"
	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/metrics"
	"github.com/dgallion1/casegest/internal/pathstore"
	"github.com/dgallion1/casegest/internal/store"
)

// DefaultRelatedLimit caps how many same-case documents a job cross-references.
const DefaultRelatedLimit = 50

// Exporter mirrors a finished analysis into a downstream system.
type Exporter interface {
	ExportAnalysis(ctx context.Context, req pathstore.ExportRequest) error
}

// Worker processes a single document job.
type Worker struct {
	store     store.Store
	processor *analysis.Processor
	exporter  Exporter
	metrics   *metrics.Metrics
	log       *slog.Logger

	relatedLimit int
	backoff      func(int) time.Duration
}

// NewWorker builds a worker. exporter and m may be nil.
func NewWorker(st store.Store, proc *analysis.Processor, exporter Exporter, m *metrics.Metrics, log *slog.Logger) *Worker {
	return &Worker{
		store:        st,
		processor:    proc,
		exporter:     exporter,
		metrics:      m,
		log:          log,
		relatedLimit: DefaultRelatedLimit,
		backoff:      Backoff,
	}
}

// Process runs load, analyze, store and export for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)
	defer func() {
		w.metrics.JobFinished(string(job.CurrentStatus()))
	}()

	// Phase 1: Load the document and its case siblings.
	job.SetStatus(StatusLoading, "loading")
	rec, err := w.store.Get(ctx, job.DocID)
	if err != nil {
		log.Error("load failed", "error", err)
		job.AddError(fmt.Sprintf("load: %s", err))
		job.SetStatus(StatusFailed, "loading")
		return
	}
	related := w.related(ctx, log, rec)
	job.SetRelated(len(related))

	if err := w.store.UpdateStatus(ctx, rec.ID, document.StatusProcessing, ""); err != nil {
		log.Error("status update failed", "error", err)
		job.AddError(fmt.Sprintf("status: %s", err))
		job.SetStatus(StatusFailed, "loading")
		return
	}

	// Phase 2: Analyze.
	job.SetStatus(StatusAnalyzing, "analyzing")
	result := w.processor.ProcessDocument(ctx, rec.Document, related...)
	job.RecordResult(result)

	if result.Metadata.ProcessingStatus == document.StatusProcessing {
		// Canceled mid-run. Put the record back so it can be resubmitted.
		log.Warn("analysis interrupted", "error", ctx.Err())
		job.AddError("canceled")
		job.SetStatus(StatusFailed, "analyzing")
		resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.store.UpdateStatus(resetCtx, rec.ID, document.StatusPending, ""); err != nil {
			log.Error("status reset failed", "error", err)
		}
		return
	}

	// Phase 3: Store.
	job.SetStatus(StatusStoring, "storing")
	if err := w.store.SaveAnalysis(ctx, result); err != nil {
		log.Error("save analysis failed", "error", err)
		job.AddError(fmt.Sprintf("save: %s", err))
		job.SetStatus(StatusFailed, "storing")
		if uerr := w.store.UpdateStatus(ctx, rec.ID, document.StatusError, err.Error()); uerr != nil && !errors.Is(uerr, store.ErrNotFound) {
			log.Error("status update failed", "error", uerr)
		}
		return
	}
	if err := w.store.UpdateStatus(ctx, rec.ID, result.Metadata.ProcessingStatus, result.Metadata.ErrorMessage); err != nil {
		log.Error("status update failed", "error", err)
		job.AddError(fmt.Sprintf("status: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	if result.Metadata.ProcessingStatus == document.StatusError {
		job.AddError(result.Metadata.ErrorMessage)
		job.SetStatus(StatusFailed, "analyzing")
		return
	}

	// Phase 4: Export downstream.
	if w.exporter != nil {
		job.SetStatus(StatusStoring, "exporting")
		req := pathstore.ExportRequest{
			CaseNumber: rec.CaseNumber,
			Title:      rec.Title,
			Type:       rec.Type,
			Result:     result,
		}
		err := retry(ctx, log, w.backoff, func() error {
			return w.exporter.ExportAnalysis(ctx, req)
		})
		if err != nil {
			log.Error("export failed", "error", err)
			job.AddError(fmt.Sprintf("export: %s", err))
			job.SetStatus(StatusPartial, "exporting")
			return
		}
	}

	log.Info("job complete", "entities", len(result.Entities), "confidence", result.Metadata.Confidence)
	job.SetStatus(StatusCompleted, "done")
}

// related loads the other documents of rec's case. Failures only narrow the
// cross-reference search, so they are logged and swallowed.
func (w *Worker) related(ctx context.Context, log *slog.Logger, rec *store.Record) []document.Document {
	if rec.CaseNumber == "" {
		return nil
	}
	recs, err := w.store.List(ctx, store.ListFilter{CaseNumber: rec.CaseNumber, Limit: w.relatedLimit + 1})
	if err != nil {
		log.Warn("loading related documents failed", "error", err)
		return nil
	}
	docs := make([]document.Document, 0, len(recs))
	for _, r := range recs {
		if r.ID == rec.ID || len(docs) == w.relatedLimit {
			continue
		}
		docs = append(docs, r.Document)
	}
	return docs
}
