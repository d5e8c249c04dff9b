// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history records score snapshots in InfluxDB so that areas can be
// tracked across runs.
//
// Every run writes one ev_area_score point per geography and one
// ev_region_score point, all stamped with the report's generation time and
// tagged with its run ID.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/EVChargeAdvisor/pkg/validation"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/analysis"
)

// Measurement names.
const (
	MeasurementArea   = "ev_area_score"
	MeasurementRegion = "ev_region_score"
)

// ErrNotReady is returned by Open when InfluxDB never reports healthy.
var ErrNotReady = errors.New("influxdb not ready")

// Config locates the InfluxDB bucket.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url" validate:"omitempty,url"`
	Token   string `yaml:"token" json:"-" validate:"required_if=Enabled true"`
	Org     string `yaml:"org" json:"org" validate:"required_if=Enabled true"`
	Bucket  string `yaml:"bucket" json:"bucket" validate:"required_if=Enabled true"`
}

// Sink writes reports to InfluxDB and reads score trends back.
type Sink struct {
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	logger   *slog.Logger
	close    func()
}

// NewSink wraps existing write and query APIs. queryAPI may be nil when
// trends are not needed.
func NewSink(writeAPI api.WriteAPIBlocking, queryAPI api.QueryAPI, bucket string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   bucket,
		logger:   logger,
		close:    func() {},
	}
}

// Open connects to InfluxDB and waits until it reports healthy.
//
// Description:
//
//	Polls the health endpoint up to attempts times, one second apart,
//	and gives up early when ctx ends.
//
// Outputs:
//
//	*Sink - Ready sink. Call Close when done.
//	error - ErrNotReady or the context error.
func Open(ctx context.Context, cfg Config, attempts int, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ready := false
	for i := 0; i < max(attempts, 1); i++ {
		health, err := client.Health(ctx)
		if err == nil && health.Status == "pass" {
			ready = true
			break
		}
		var msg string
		if err != nil {
			msg = err.Error()
		} else if health != nil && health.Message != nil {
			msg = *health.Message
		}
		logger.Warn("InfluxDB not ready, retrying...", "attempt", i+1, "error", msg)
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if !ready {
		client.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotReady, cfg.URL)
	}

	s := NewSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client.QueryAPI(cfg.Org), cfg.Bucket, logger)
	s.close = client.Close
	logger.Info("Connected to InfluxDB", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return s, nil
}

// Close releases the client.
func (s *Sink) Close() {
	s.close()
}

// Record writes the report's points and returns how many were written.
func (s *Sink) Record(ctx context.Context, report *analysis.Report) (int, error) {
	points := Points(report)
	if len(points) == 0 {
		return 0, nil
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		s.logger.Error("Failed to write score history", "run_id", report.RunID, "error", err)
		return 0, fmt.Errorf("write score history: %w", err)
	}
	s.logger.Info("Recorded score history", "run_id", report.RunID, "points", len(points))
	return len(points), nil
}

// Points converts a report into InfluxDB points. Scores that were not
// computed are left out of the field set rather than written as zero.
func Points(report *analysis.Report) []*write.Point {
	if report == nil {
		return nil
	}
	ts := time.UnixMilli(report.GeneratedAt)
	points := make([]*write.Point, 0, len(report.Areas)+1)

	for _, area := range report.Areas {
		fields := map[string]interface{}{
			"stations":          area.Stations,
			"stations_per_1000": area.Equity.StationsPer1000,
		}
		if area.Equity.Score != nil {
			fields["equity"] = area.Equity.Score.Value
		}
		if area.Convenience != nil {
			fields["convenience"] = area.Convenience.Value
		}
		if area.Climate != nil {
			fields["climate"] = area.Climate.Value
		}
		if area.Overall != nil {
			fields["overall"] = area.Overall.Score.Value
		}
		if area.Equity.Population > 0 {
			fields["population"] = area.Equity.Population
		}
		points = append(points, influxdb2.NewPoint(
			MeasurementArea,
			map[string]string{
				"geography_id": area.Geography.ID,
				"run_id":       report.RunID,
			},
			fields,
			ts,
		))
	}

	region := report.Region
	fields := map[string]interface{}{
		"overall":        region.Overall.Score.Value,
		"infrastructure": region.Infrastructure.Score.Value,
		"stations":       region.Infrastructure.Stations,
		"gap_candidates": report.Gaps.TotalCandidates,
		"partial":        report.Partial,
	}
	if region.Equity != nil {
		fields["equity"] = region.Equity.Score.Value
	}
	if region.Convenience != nil {
		fields["convenience"] = region.Convenience.Value
	}
	if region.Climate != nil {
		fields["climate"] = region.Climate.Value
	}
	points = append(points, influxdb2.NewPoint(
		MeasurementRegion,
		map[string]string{"run_id": report.RunID},
		fields,
		ts,
	))
	return points
}

// TrendPoint is one recorded overall score for an area.
type TrendPoint struct {
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id"`
	Overall float64   `json:"overall"`
}

// Trend returns the overall score history of one geography over the last
// days, oldest first.
func (s *Sink) Trend(ctx context.Context, geographyID string, days int) ([]TrendPoint, error) {
	if s.queryAPI == nil {
		return nil, errors.New("trend: no query api")
	}
	if err := validation.ValidateIdentifier(geographyID); err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	if days <= 0 {
		days = 30
	}

	result, err := s.queryAPI.Query(ctx, trendQuery(s.bucket, geographyID, days))
	if err != nil {
		return nil, fmt.Errorf("trend query: %w", err)
	}
	if result == nil {
		return []TrendPoint{}, nil
	}
	defer result.Close()

	out := []TrendPoint{}
	for result.Next() {
		rec := result.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		runID, _ := rec.ValueByKey("run_id").(string)
		out = append(out, TrendPoint{Time: rec.Time(), RunID: runID, Overall: v})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("trend query: %w", result.Err())
	}
	return out, nil
}

// trendQuery builds the Flux query. geographyID must already be validated.
func trendQuery(bucket, geographyID string, days int) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%dd)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.geography_id == "%s")
		  |> filter(fn: (r) => r._field == "overall")
		  |> sort(columns: ["_time"], desc: false)
	`, bucket, days, MeasurementArea, geographyID)
}
