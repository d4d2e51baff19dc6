// Package main is the entry point for the casegest CLI and HTTP service.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgallion1/casegest/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// app carries state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	stdout  io.Writer
	stderr  io.Writer
}

func (a *app) loadConfig() (config.Config, error) {
	return config.Load(a.v, a.cfgFile)
}

// logger writes JSON logs to w at the configured level.
func (a *app) logger(cfg config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "casegest",
		Short: "Legal document analysis: entities, timelines and cross-references",
		Long: `casegest chunks legal documents, extracts typed entities (dates, case
numbers, parties, courts, citations, statutes, amounts), builds a dated
timeline of events and links matching entities across documents.

Run "casegest serve" for the HTTP service, or "casegest analyze" to process
files locally. Settings come from flags, CASEGEST_* environment variables
and an optional YAML config file.`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	_ = a.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newServeCmd(a),
		newAnalyzeCmd(a),
		newCrossrefCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of casegest",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "casegest %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
