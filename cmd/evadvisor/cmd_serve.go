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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/fixture"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/handlers"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/routes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/telemetry"
)

const shutdownGrace = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var dataset, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		Long: `Starts the HTTP API:

  POST /v1/analyze                 run an analysis request
  GET  /v1/history/:geographyId    score trend (when history is enabled)
  GET  /v1/cache/stats             cache counters
  GET  /health                     liveness
  GET  /metrics                    Prometheus metrics

Enrichment is answered from the recorded upstream data in --dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), a, dataset)
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset holding the recorded upstream answers")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func runServe(ctx context.Context, a *app, dataset string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			a.logger.Warn("Telemetry shutdown error", "error", err)
		}
	}()

	ds, err := fixture.Load(dataset)
	if err != nil {
		return err
	}
	srv, err := fixture.NewServer(ds)
	if err != nil {
		return err
	}

	store, closeCache, err := a.openCache()
	if err != nil {
		return err
	}
	defer closeCache()

	analyzer, err := a.newAnalyzer(srv.Fetchers(), store)
	if err != nil {
		return err
	}

	deps := handlers.Deps{
		Analyzer:       analyzer,
		Cache:          store,
		Logger:         a.logger.Slog(),
		RequestTimeout: a.cfg.Server.RequestTimeout,
		MaxBodyBytes:   a.cfg.Server.MaxBodyBytes,
	}
	sink, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
		deps.History = sink
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           routes.NewRouter(deps),
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting evadvisor API", "addr", server.Addr, "dataset", dataset)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down evadvisor API")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return server.Shutdown(sctx)
}
