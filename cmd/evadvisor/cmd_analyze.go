// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EVChargeAdvisor/pkg/ux"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/analysis"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/cache"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/fixture"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/history"
)

// Output formats for analyze.
const (
	formatAuto  = "auto"
	formatJSON  = "json"
	formatTable = "table"
)

type analyzeOptions struct {
	dataset string
	output  string
	format  string
	record  bool
	watch   bool
	top     int
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis over a recorded dataset",
		Long: `Loads a dataset (YAML or JSON) holding geographies, stations and the
recorded upstream answers, runs enrichment and scoring, and writes the
report.

Examples:
  evadvisor analyze --dataset denver.yaml
  evadvisor analyze --dataset denver.yaml --format json -o report.json
  evadvisor analyze --dataset denver.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, a, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.dataset, "dataset", "d", "", "Dataset file to analyze")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatAuto, "Report format: auto, json or table")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Record scores in InfluxDB (requires history to be configured)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-run whenever the dataset file changes")
	cmd.Flags().IntVar(&opts.top, "top", 5, "Number of worst-served areas listed in table output")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func runAnalyze(cmd *cobra.Command, a *app, opts analyzeOptions) error {
	switch opts.format {
	case formatAuto, formatJSON, formatTable:
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds, err := fixture.Load(opts.dataset)
	if err != nil {
		return err
	}

	store, closeCache, err := a.openCache()
	if err != nil {
		return err
	}
	defer closeCache()

	var sink *history.Sink
	if opts.record {
		if !a.cfg.History.Enabled {
			return fmt.Errorf("--record needs history.enabled in the configuration")
		}
		if sink, err = a.openHistory(ctx); err != nil {
			return err
		}
		defer sink.Close()
	}

	run := func(ds *fixture.Dataset) error {
		report, err := analyzeDataset(ctx, a, ds, store)
		if err != nil {
			return err
		}
		if sink != nil && !report.Cancelled {
			if _, err := sink.Record(ctx, report); err != nil {
				a.logger.Warn("Score history not recorded", "run_id", report.RunID, "error", err)
			}
		}
		return writeReport(cmd.OutOrStdout(), opts, report)
	}

	if !opts.watch {
		return run(ds)
	}
	if err := run(ds); err != nil {
		a.logger.Error("Analysis failed", "dataset", opts.dataset, "error", err)
	}
	a.logger.Info("Watching dataset for changes", "dataset", opts.dataset)
	return fixture.Watch(ctx, opts.dataset, fixture.DefaultDebounce, func(ds *fixture.Dataset, err error) {
		if err != nil {
			a.logger.Error("Dataset reload failed", "dataset", opts.dataset, "error", err)
			return
		}
		if err := run(ds); err != nil {
			a.logger.Error("Analysis failed", "dataset", opts.dataset, "error", err)
		}
	})
}

// analyzeDataset runs the analyzer with the dataset's recorded fetchers.
func analyzeDataset(ctx context.Context, a *app, ds *fixture.Dataset, store *cache.Store) (*analysis.Report, error) {
	srv, err := fixture.NewServer(ds)
	if err != nil {
		return nil, err
	}
	analyzer, err := a.newAnalyzer(srv.Fetchers(), store)
	if err != nil {
		return nil, err
	}
	return analyzer.Run(ctx, ds.Request())
}

// writeReport writes to opts.output, or to stdout when it is empty.
func writeReport(stdout io.Writer, opts analyzeOptions, report *analysis.Report) error {
	w := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.output, err)
		}
		defer f.Close()
		w = f
	}

	format := opts.format
	if format == formatAuto {
		format = formatJSON
		if ux.IsTerminal(w) {
			format = formatTable
		}
	}
	if format == formatTable {
		renderReport(ux.NewPrinter(w), report, opts.top)
		return nil
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
