// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/handlers"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/telemetry"
)

// ServiceName labels spans produced by the HTTP middleware.
const ServiceName = "evadvisor"

// NewRouter builds the engine with recovery and tracing middleware and
// every route registered.
func NewRouter(deps handlers.Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	SetupRoutes(router, deps)
	return router
}

// SetupRoutes registers the advisor endpoints on router.
func SetupRoutes(router *gin.Engine, deps handlers.Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/analyze", handlers.HandleAnalyze(deps))
		v1.GET("/history/:geographyId", handlers.HandleTrend(deps.History))
		v1.GET("/cache/stats", handlers.HandleCacheStats(deps.Cache))
	}
}
