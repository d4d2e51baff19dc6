package pathstore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/extract"
)

const source = "casegest"

// ExportRequest is one analyzed document to mirror into pathstore.
type ExportRequest struct {
	CaseNumber string
	Title      string
	Type       string
	Result     *document.ProcessedDocument
}

// Exporter writes analysis results to pathstore under
// cases/<case>/documents/<id>/.
type Exporter struct {
	client      *Client
	concurrency int
}

func NewExporter(client *Client, concurrency int) *Exporter {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Exporter{client: client, concurrency: concurrency}
}

// DocumentPrefix is the pathstore key under which a document's analysis lives.
func DocumentPrefix(caseNumber, docID string) string {
	c := extract.Slugify(caseNumber)
	if c == "" {
		c = "uncategorized"
	}
	return fmt.Sprintf("cases/%s/documents/%s", c, docID)
}

// ExportAnalysis writes the document meta node, one node per entity type, one
// node per timeline event and one link per cross-reference. Writes are
// idempotent so a failed export may be retried whole.
func (e *Exporter) ExportAnalysis(ctx context.Context, req ExportRequest) error {
	res := req.Result
	if res == nil {
		return fmt.Errorf("export: nil result")
	}
	prefix := DocumentPrefix(req.CaseNumber, res.ID)
	src := source + ":" + res.ID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	put := func(key string, value any, salience float64) {
		g.Go(func() error {
			return e.client.PutNode(gctx, key, NodeRequest{Value: value, Salience: salience, Source: src})
		})
	}

	put(prefix+"/meta", map[string]any{
		"title":           req.Title,
		"type":            req.Type,
		"case_number":     req.CaseNumber,
		"status":          string(res.Metadata.ProcessingStatus),
		"confidence":      res.Metadata.Confidence,
		"processed_at":    res.Metadata.ProcessingDate.UTC().Format(time.RFC3339),
		"chunks":          len(res.Chunks),
		"entities":        len(res.Entities),
		"timeline_events": len(res.TimelineEvents),
	}, 0.5)

	byType := make(map[string][]map[string]any)
	for _, ent := range res.Entities {
		byType[ent.Type] = append(byType[ent.Type], map[string]any{
			"text":       ent.Text,
			"start":      ent.Position.Start,
			"end":        ent.Position.End,
			"confidence": ent.Confidence,
		})
	}
	for typ, ents := range byType {
		put(prefix+"/entities/"+extract.Slugify(typ), ents, 0.3)
	}

	for i, ev := range res.TimelineEvents {
		refs := make([]string, 0, len(ev.EntityReferences))
		for _, r := range ev.EntityReferences {
			refs = append(refs, r.Text)
		}
		put(fmt.Sprintf("%s/timeline/%04d", prefix, i), map[string]any{
			"date":        ev.Date.UTC().Format("2006-01-02"),
			"description": ev.Description,
			"references":  refs,
			"confidence":  ev.Confidence,
		}, ev.Confidence)
	}

	for _, ref := range res.CrossReferences {
		link := LinkRequest{
			From:          DocumentPrefix(req.CaseNumber, ref.SourceDocID) + "/meta",
			To:            DocumentPrefix(req.CaseNumber, ref.TargetDocID) + "/meta",
			Weight:        ref.Confidence,
			Summary:       fmt.Sprintf("%s: %q ~ %q", ref.Type, ref.SourceText, ref.TargetText),
			Bidirectional: true,
		}
		g.Go(func() error {
			return e.client.PutLink(gctx, link)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("export %s: %w", res.ID, err)
	}
	return nil
}

// DeleteDocument removes everything exported for a document.
func (e *Exporter) DeleteDocument(ctx context.Context, caseNumber, docID string) error {
	return e.client.DeleteNode(ctx, DocumentPrefix(caseNumber, docID), true)
}
