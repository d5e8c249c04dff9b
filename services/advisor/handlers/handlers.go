// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the advisor's HTTP endpoints.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/analysis"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/cache"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/history"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/telemetry"
)

var tracer = otel.Tracer("evadvisor.handlers")

var validate = validator.New()

// Analyzer runs one analysis.
type Analyzer interface {
	Run(ctx context.Context, req analysis.Request) (*analysis.Report, error)
}

// History records reports and serves score trends.
type History interface {
	Record(ctx context.Context, report *analysis.Report) (int, error)
	Trend(ctx context.Context, geographyID string, days int) ([]history.TrendPoint, error)
}

// Deps are the collaborators shared by the handlers.
type Deps struct {
	Analyzer Analyzer

	// Cache holds finished reports under the derived class. Nil disables
	// report caching.
	Cache *cache.Store

	// History is optional.
	History History

	Logger         *slog.Logger
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleAnalyze serves POST /v1/analyze.
//
// # Description
//
// Binds an analysis.Request, answers from the report cache when the same
// request was analyzed recently, and otherwise runs the analyzer under the
// configured request timeout. Cancelled reports are returned but never
// cached or recorded. ?fresh=true bypasses the cache.
//
// # Outputs
//
//   - 200: analysis.Report. X-Cache is HIT or MISS.
//   - 400: malformed or invalid request.
//   - 413: body larger than MaxBodyBytes.
//   - 422: nothing could be analyzed.
//   - 500: anything else.
func HandleAnalyze(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleAnalyze")
		defer span.End()
		logger := telemetry.LoggerWithTrace(ctx, d.logger())

		if d.MaxBodyBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, d.MaxBodyBytes)
		}
		var req analysis.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large", "limit": tooLarge.Limit})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
		span.SetAttributes(
			attribute.Int("geographies", len(req.Geographies)),
			attribute.Int("stations", len(req.Stations)))

		key, err := reportKey(req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash request", "details": err.Error()})
			return
		}
		fresh, _ := strconv.ParseBool(c.Query("fresh"))
		if d.Cache != nil && !fresh {
			if report, ok := cache.GetJSON[analysis.Report](ctx, d.Cache, key); ok {
				span.SetAttributes(attribute.Bool("cache_hit", true))
				c.Header("X-Cache", "HIT")
				c.Header("X-Run-ID", report.RunID)
				c.JSON(http.StatusOK, report)
				return
			}
		}

		runCtx := ctx
		if d.RequestTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, d.RequestTimeout)
			defer cancel()
		}
		report, err := d.Analyzer.Run(runCtx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				logger.Error("Analysis failed", "error", err)
			}
			c.JSON(status, gin.H{"error": "Analysis failed", "details": err.Error()})
			return
		}

		if !report.Cancelled {
			// Partial reports come from recoverable fetch failures and are
			// recomputed on the next request.
			if d.Cache != nil && !report.Partial {
				if err := cache.PutJSON(ctx, d.Cache, key, report, cache.ClassDerived); err != nil {
					logger.Warn("Failed to cache report", "run_id", report.RunID, "error", err)
				}
			}
			if d.History != nil {
				if _, err := d.History.Record(ctx, report); err != nil {
					logger.Warn("Failed to record score history", "run_id", report.RunID, "error", err)
				}
			}
		}

		c.Header("X-Cache", "MISS")
		c.Header("X-Run-ID", report.RunID)
		c.JSON(http.StatusOK, report)
	}
}

// HandleTrend serves GET /v1/history/:geographyId?days=N.
func HandleTrend(h History) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Score history is disabled"})
			return
		}
		days := 30
		if v := c.Query("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
				return
			}
			days = n
		}
		id := c.Param("geographyId")
		points, err := h.Trend(c.Request.Context(), id, days)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Trend query failed", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"geography_id": id, "days": days, "points": points})
	}
}

// HandleCacheStats serves GET /v1/cache/stats.
func HandleCacheStats(store *cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cache is disabled"})
			return
		}
		stats := store.Stats()
		c.JSON(http.StatusOK, gin.H{"stats": stats, "hit_rate": stats.HitRate()})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// reportKey derives the report cache key from the canonical JSON form of
// the request.
func reportKey(req analysis.Request) (cache.Key, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return cache.NewKey("report", map[string]string{"request": hex.EncodeToString(sum[:])}), nil
}
