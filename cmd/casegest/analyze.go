package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/casegest/internal/analysis"
	"github.com/dgallion1/casegest/internal/chunker"
	"github.com/dgallion1/casegest/internal/crossref"
	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/extract"
	"github.com/dgallion1/casegest/internal/parser"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "analyze FILE [RELATED...]",
		Short: "Analyze a document and print the result",
		Long: `Analyze parses FILE, then chunks it, extracts entities, builds its
timeline and cross-references it against any RELATED files. The processed
document is printed as JSON or YAML. A failed analysis is still printed and
the command exits non-zero.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			log := a.logger(cfg, a.stderr)

			docs, err := loadDocuments(args)
			if err != nil {
				return err
			}
			extractor := extract.NewPatternExtractor()
			proc := analysis.NewProcessor(analysis.Options{
				Chunker:   chunker.New(chunker.Config{ChunkSize: cfg.DefaultChunkSize, ChunkOverlap: cfg.DefaultChunkOverlap}),
				Extractor: extractor,
				Finder:    crossref.NewFinder(extractor, log, cfg.CrossRefConcurrency),
				Log:       log,
			})

			res := proc.ProcessDocument(cmd.Context(), docs[0], docs[1:]...)
			if err := writeOutput(a.stdout, format, res); err != nil {
				return err
			}
			switch res.Metadata.ProcessingStatus {
			case document.StatusError:
				return fmt.Errorf("analysis failed: %s", res.Metadata.ErrorMessage)
			case document.StatusProcessing:
				return context.Cause(cmd.Context())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().Int("chunk-size", 1000, "chunk size in bytes")
	cmd.Flags().Int("chunk-overlap", 200, "overlap between chunks in bytes")
	_ = a.v.BindPFlag("chunk_size", cmd.Flags().Lookup("chunk-size"))
	_ = a.v.BindPFlag("chunk_overlap", cmd.Flags().Lookup("chunk-overlap"))
	return cmd
}

// loadDocuments parses each file into a Document whose ID is the file's
// base name.
func loadDocuments(paths []string) ([]document.Document, error) {
	docs := make([]document.Document, 0, len(paths))
	for _, path := range paths {
		p, err := parser.ForFile(path)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		parsed, err := p.Parse(f, filepath.Base(path))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, document.Document{
			ID:        filepath.Base(path),
			Title:     parsed.Title,
			Content:   parsed.Content,
			CreatedAt: info.ModTime().UTC(),
			UpdatedAt: info.ModTime().UTC(),
			Metadata:  map[string]string{"path": path},
		})
	}
	return docs, nil
}
