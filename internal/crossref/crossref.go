// Package crossref links matching entities across documents.
package crossref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/extract"
)

const (
	// MinSimilarity is the exclusive lower bound for two entity texts to be
	// considered the same mention.
	MinSimilarity = 0.8
	// MinConfidence is the exclusive lower bound for emitting a reference.
	MinConfidence = 0.7
)

// Finder compares documents pairwise. Extraction runs once per document and
// pair comparisons fan out across at most Concurrency goroutines.
type Finder struct {
	extractor   extract.Extractor
	log         *slog.Logger
	concurrency int
}

func NewFinder(extractor extract.Extractor, log *slog.Logger, concurrency int) *Finder {
	if log == nil {
		log = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Finder{extractor: extractor, log: log, concurrency: concurrency}
}

type pair struct{ i, j int }

// FindPatterns compares every pair (i, j) with i < j in input order. Output
// is grouped by pair in that order, then by source entity order.
func (f *Finder) FindPatterns(ctx context.Context, docs []document.Document) ([]document.CrossReference, error) {
	var pairs []pair
	for i := range docs {
		for j := i + 1; j < len(docs); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}
	return f.run(ctx, docs, pairs)
}

// FindAgainst compares source with each target in order.
func (f *Finder) FindAgainst(ctx context.Context, source document.Document, targets []document.Document) ([]document.CrossReference, error) {
	docs := make([]document.Document, 0, len(targets)+1)
	docs = append(docs, source)
	docs = append(docs, targets...)

	pairs := make([]pair, 0, len(targets))
	for j := 1; j < len(docs); j++ {
		pairs = append(pairs, pair{0, j})
	}
	return f.run(ctx, docs, pairs)
}

func (f *Finder) run(ctx context.Context, docs []document.Document, pairs []pair) ([]document.CrossReference, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	entities, err := f.extractAll(ctx, docs)
	if err != nil {
		return nil, err
	}

	results := make([][]document.CrossReference, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for k, p := range pairs {
		src, tgt := docs[p.i], docs[p.j]
		if entities[p.i] == nil || entities[p.j] == nil {
			continue
		}
		if src.ID == tgt.ID {
			f.log.Debug("skipping self comparison", "doc_id", src.ID)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[k] = MatchEntities(src.ID, tgt.ID, *entities[p.i], *entities[p.j])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compare documents: %w", err)
	}

	var out []document.CrossReference
	for _, refs := range results {
		out = append(out, refs...)
	}
	return out, nil
}

// extractAll returns one entry per document; nil marks a document whose
// extraction failed and is excluded from comparison.
func (f *Finder) extractAll(ctx context.Context, docs []document.Document) ([]*[]document.Entity, error) {
	out := make([]*[]document.Entity, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			ents, err := f.extractor.ExtractEntities(gctx, doc.Content)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				f.log.Warn("skipping document in cross-reference", "doc_id", doc.ID, "error", err)
				return nil
			}
			out[i] = &ents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	return out, nil
}

// MatchEntities pairs same-type entities whose texts are similar and whose
// combined confidence clears MinConfidence.
func MatchEntities(sourceID, targetID string, source, target []document.Entity) []document.CrossReference {
	var refs []document.CrossReference
	for _, s := range source {
		for _, t := range target {
			if s.Type != t.Type {
				continue
			}
			sim := Similarity(s.Text, t.Text)
			if sim <= MinSimilarity {
				continue
			}
			conf := min(s.Confidence, t.Confidence, sim)
			if conf <= MinConfidence {
				continue
			}
			refs = append(refs, document.CrossReference{
				SourceDocID: sourceID,
				TargetDocID: targetID,
				SourceText:  s.Text,
				TargetText:  t.Text,
				Type:        s.Type,
				Confidence:  conf,
			})
		}
	}
	return refs
}
