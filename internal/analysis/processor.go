// Package analysis runs the four-stage analysis of a single document:
// chunking, entity extraction, timeline construction and cross-referencing.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/casegest/internal/chunker"
	"github.com/dgallion1/casegest/internal/crossref"
	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/extract"
	"github.com/dgallion1/casegest/internal/metrics"
	"github.com/dgallion1/casegest/internal/timeline"
)

// Hooks are notified once a run reaches a terminal status. A canceled run
// triggers neither.
type Hooks struct {
	OnComplete func(ctx context.Context, result *document.ProcessedDocument)
	OnError    func(ctx context.Context, result *document.ProcessedDocument, err error)
}

// Options wires a Processor. Zero fields get defaults.
type Options struct {
	Chunker   *chunker.Chunker
	Extractor extract.Extractor
	Timeline  *timeline.Builder
	Finder    *crossref.Finder
	Stats     *extract.StageStats
	Metrics   *metrics.Metrics
	Hooks     Hooks
	Log       *slog.Logger
	Now       func() time.Time
}

// Processor sequences the analysis stages. It holds no per-run state and is
// safe for concurrent use.
type Processor struct {
	chunker   *chunker.Chunker
	extractor extract.Extractor
	timeline  *timeline.Builder
	finder    *crossref.Finder
	stats     *extract.StageStats
	metrics   *metrics.Metrics
	hooks     Hooks
	log       *slog.Logger
	now       func() time.Time
}

func NewProcessor(opts Options) *Processor {
	p := &Processor{
		chunker:   opts.Chunker,
		extractor: opts.Extractor,
		timeline:  opts.Timeline,
		finder:    opts.Finder,
		stats:     opts.Stats,
		metrics:   opts.Metrics,
		hooks:     opts.Hooks,
		log:       opts.Log,
		now:       opts.Now,
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.chunker == nil {
		p.chunker = chunker.New(chunker.DefaultConfig())
	}
	if p.extractor == nil {
		p.extractor = extract.NewPatternExtractor()
	}
	if p.timeline == nil {
		p.timeline = timeline.NewBuilder(p.log)
	}
	if p.finder == nil {
		p.finder = crossref.NewFinder(p.extractor, p.log, 4)
	}
	if p.stats == nil {
		p.stats = extract.NewStageStats(time.Hour)
	}
	return p
}

// Stats returns the processor's stage latency tracker.
func (p *Processor) Stats() *extract.StageStats {
	return p.stats
}

// ProcessDocument analyzes doc, cross-referencing it against related. It
// never returns an error: failures surface as ProcessingStatus error with
// ErrorMessage set and the results of earlier stages kept. If ctx is canceled
// the run stops between stages and the status stays processing.
func (p *Processor) ProcessDocument(ctx context.Context, doc document.Document, related ...document.Document) *document.ProcessedDocument {
	log := p.log.With("doc_id", doc.ID)
	result := &document.ProcessedDocument{
		ID: doc.ID,
		Metadata: document.ProcessMetadata{
			ProcessingDate:   p.now().UTC(),
			ProcessingStatus: document.StatusProcessing,
		},
	}

	if ctx.Err() != nil {
		return p.canceled(log, result, ctx.Err())
	}

	start := time.Now()
	result.Chunks = p.chunker.Chunk(doc.Content)
	p.observe(extract.StageChunk, start)
	log.Debug("chunked document", "chunks", len(result.Chunks))

	if ctx.Err() != nil {
		return p.canceled(log, result, ctx.Err())
	}

	start = time.Now()
	entities, err := p.extractor.ExtractEntities(ctx, doc.Content)
	p.observe(extract.StageExtract, start)
	if err != nil {
		return p.fail(ctx, log, result, extract.StageExtract, err)
	}
	result.Entities = entities
	p.countEntities(entities)

	if ctx.Err() != nil {
		return p.canceled(log, result, ctx.Err())
	}

	start = time.Now()
	events, err := p.timeline.ConstructTimeline(ctx, doc, entities)
	p.observe(extract.StageTimeline, start)
	if err != nil {
		return p.fail(ctx, log, result, extract.StageTimeline, err)
	}
	result.TimelineEvents = events
	p.metrics.TimelineEvents(len(events))

	if ctx.Err() != nil {
		return p.canceled(log, result, ctx.Err())
	}

	start = time.Now()
	refs, err := p.finder.FindAgainst(ctx, doc, related)
	p.observe(extract.StageCrossRefs, start)
	if err != nil {
		return p.fail(ctx, log, result, extract.StageCrossRefs, err)
	}
	result.CrossReferences = refs
	p.metrics.CrossReferences(len(refs))

	result.Metadata.Confidence = AggregateConfidence(result)
	result.Metadata.ProcessingStatus = document.StatusCompleted
	p.metrics.DocumentProcessed(string(document.StatusCompleted))
	log.Info("document processed",
		"chunks", len(result.Chunks),
		"entities", len(result.Entities),
		"events", len(result.TimelineEvents),
		"cross_refs", len(result.CrossReferences),
		"confidence", result.Metadata.Confidence,
	)

	if p.hooks.OnComplete != nil {
		p.hooks.OnComplete(ctx, result)
	}
	return result
}

// AggregateConfidence is the mean of every entity, timeline event and
// cross-reference confidence. An empty pool scores 0.
func AggregateConfidence(result *document.ProcessedDocument) float64 {
	var sum float64
	var n int
	for _, e := range result.Entities {
		sum += e.Confidence
		n++
	}
	for _, ev := range result.TimelineEvents {
		sum += ev.Confidence
		n++
	}
	for _, r := range result.CrossReferences {
		sum += r.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, result *document.ProcessedDocument, stage string, err error) *document.ProcessedDocument {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return p.canceled(log, result, err)
	}

	result.Metadata.ProcessingStatus = document.StatusError
	result.Metadata.ErrorMessage = fmt.Sprintf("%s: %s", stage, err)
	p.metrics.DocumentProcessed(string(document.StatusError))
	log.Error("document processing failed", "stage", stage, "error", err)

	if p.hooks.OnError != nil {
		p.hooks.OnError(ctx, result, err)
	}
	return result
}

func (p *Processor) canceled(log *slog.Logger, result *document.ProcessedDocument, err error) *document.ProcessedDocument {
	log.Warn("document processing canceled", "error", err)
	return result
}

func (p *Processor) observe(stage string, start time.Time) {
	d := time.Since(start)
	p.stats.Record(stage, d)
	p.metrics.ObserveStage(stage, d)
}

func (p *Processor) countEntities(entities []document.Entity) {
	if p.metrics == nil {
		return
	}
	byType := make(map[string]int)
	for _, e := range entities {
		byType[e.Type]++
	}
	for t, n := range byType {
		p.metrics.EntitiesExtracted(t, n)
	}
}
