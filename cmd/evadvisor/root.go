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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EVChargeAdvisor/pkg/logging"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/analysis"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/cache"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/config"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/enrich"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/history"
	cachedb "github.com/AleutianAI/EVChargeAdvisor/services/advisor/storage/badger"
)

// app carries the state shared by every subcommand once the root
// command's pre-run has loaded the configuration.
type app struct {
	configPath string
	logLevel   string
	jsonLogs   bool

	cfg    config.Config
	logger *logging.Logger
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.jsonLogs {
		cfg.Log.JSON = true
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "evadvisor",
		JSON:    cfg.Log.JSON,
	})
	slog.SetDefault(a.logger.Slog())
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// openCache builds the cache store over badger, or memory only when the
// configuration says so. The returned func closes the database.
func (a *app) openCache() (*cache.Store, func(), error) {
	opts := []cache.Option{
		cache.WithTTLPolicy(a.cfg.Cache.TTL),
		cache.WithLogger(a.logger.Slog()),
	}
	if a.cfg.Cache.InMemory {
		return cache.New(opts...), func() {}, nil
	}

	dbCfg := cachedb.DefaultConfig(a.cfg.Cache.Dir)
	dbCfg.GCInterval = a.cfg.Cache.GCInterval
	dbCfg.Logger = a.logger.Slog()
	db, err := cachedb.Open(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache at %s: %w", a.cfg.Cache.Dir, err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			a.logger.Warn("Failed to close cache database", "error", err)
		}
	}
	return cache.New(append(opts, cache.WithPersistence(db))...), closeFn, nil
}

// newAnalyzer wires fetchers, cache and scorers.
func (a *app) newAnalyzer(fetchers enrich.Fetchers, store *cache.Store) (*analysis.Analyzer, error) {
	enricher := enrich.NewEnricher(fetchers, store,
		enrich.WithConfig(a.cfg.Enrich),
		enrich.WithLogger(a.logger.Slog()))
	return analysis.NewAnalyzer(enricher, a.cfg.Analysis, analysis.WithLogger(a.logger.Slog()))
}

// openHistory connects the score history sink when enabled. It returns
// nil without error when history is off.
func (a *app) openHistory(ctx context.Context) (*history.Sink, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	return history.Open(ctx, a.cfg.History, 5, a.logger.Slog())
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "evadvisor",
		Short: "Score EV charging coverage and find underserved areas",
		Long: `evadvisor enriches charging stations with demographic, amenity, transit
and weather context, scores infrastructure, equity, convenience and climate
resilience, and ranks the places that most need new charging.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"Path to the YAML configuration (default $"+config.EnvConfig+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.jsonLogs, "json-logs", false, "Emit logs as JSON")

	root.AddCommand(
		newAnalyzeCmd(a),
		newServeCmd(a),
		newCacheCmd(a),
		newConfigCmd(a),
	)
	return root
}
