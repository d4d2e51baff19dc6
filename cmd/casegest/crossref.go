package main

import (
	"github.com/spf13/cobra"

	"github.com/dgallion1/casegest/internal/crossref"
	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/extract"
)

func newCrossrefCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "crossref FILE FILE [FILE...]",
		Short: "Find matching entities across documents",
		Long: `Crossref extracts entities from every FILE and prints each pair of
same-type entities in different files whose text is nearly identical.`,
		Args: cobra.MinimumNArgs(2),
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
			finder := crossref.NewFinder(extract.NewPatternExtractor(), log, cfg.CrossRefConcurrency)
			refs, err := finder.FindPatterns(cmd.Context(), docs)
			if err != nil {
				return err
			}
			if refs == nil {
				refs = []document.CrossReference{}
			}
			return writeOutput(a.stdout, format, refs)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}
