// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/analysis"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/gaps"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/scoring"
)

// --- Mock InfluxDB WriteAPI ---

type MockWriteAPI struct {
	WritePointFunc func(ctx context.Context, point ...*write.Point) error
	WrittenPoints  []*write.Point
}

func (m *MockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.WrittenPoints = append(m.WrittenPoints, point...)
	if m.WritePointFunc != nil {
		return m.WritePointFunc(ctx, point...)
	}
	return nil
}

func (m *MockWriteAPI) WriteRecord(ctx context.Context, line ...string) error {
	return nil
}

func (m *MockWriteAPI) EnableBatching()                 {}
func (m *MockWriteAPI) Flush(ctx context.Context) error { return nil }

// --- Mock InfluxDB QueryAPI ---

type MockQueryAPI struct {
	QueryFunc func(ctx context.Context, query string) (*api.QueryTableResult, error)
	Queries   []string
}

func (m *MockQueryAPI) Query(ctx context.Context, q string) (*api.QueryTableResult, error) {
	m.Queries = append(m.Queries, q)
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockQueryAPI) QueryRaw(ctx context.Context, query string, dialect *domain.Dialect) (string, error) {
	return "", nil
}

func (m *MockQueryAPI) QueryRawWithParams(ctx context.Context, query string, dialect *domain.Dialect, params interface{}) (string, error) {
	return "", nil
}

func (m *MockQueryAPI) QueryWithParams(ctx context.Context, query string, params interface{}) (*api.QueryTableResult, error) {
	return nil, nil
}

// --- Fixtures ---

func sampleReport() *analysis.Report {
	equity := scoring.NewScore(6.5)
	overall := scoring.NewScore(7)
	conv := scoring.NewScore(4)
	return &analysis.Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		Partial:     true,
		Areas: []analysis.AreaReport{
			{
				Geography: datatypes.Geography{ID: "g1"},
				Stations:  3,
				Equity: scoring.AreaEquity{
					GeographyID:     "g1",
					Stations:        3,
					Population:      3000,
					StationsPer1000: 1,
					Score:           &equity,
				},
				Convenience: &conv,
				Overall:     &scoring.OverallResult{Score: overall},
			},
			{
				Geography: datatypes.Geography{ID: "g2"},
				Equity:    scoring.AreaEquity{GeographyID: "g2", Excluded: "unknown population"},
			},
		},
		Region: analysis.RegionReport{
			Infrastructure: scoring.InfrastructureResult{Stations: 3, Score: scoring.NewScore(5)},
			Overall:        scoring.OverallResult{Score: scoring.NewScore(5.5)},
		},
		Gaps: gaps.Result{TotalCandidates: 2},
	}
}

func fieldsOf(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tagsOf(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

// --- Tests ---

func TestPoints(t *testing.T) {
	report := sampleReport()
	points := Points(report)
	require.Len(t, points, 3)

	g1 := points[0]
	assert.Equal(t, MeasurementArea, g1.Name())
	assert.Equal(t, map[string]string{"geography_id": "g1", "run_id": "run-1"}, tagsOf(g1))
	assert.Equal(t, time.UnixMilli(report.GeneratedAt), g1.Time())
	f := fieldsOf(g1)
	assert.Equal(t, 6.5, f["equity"])
	assert.Equal(t, 4.0, f["convenience"])
	assert.Equal(t, 7.0, f["overall"])
	assert.Equal(t, int64(3), f["stations"])
	assert.NotContains(t, f, "climate")

	g2 := fieldsOf(points[1])
	assert.NotContains(t, g2, "equity", "uncomputed scores are omitted, not zero")
	assert.NotContains(t, g2, "overall")
	assert.NotContains(t, g2, "population")

	region := points[2]
	assert.Equal(t, MeasurementRegion, region.Name())
	rf := fieldsOf(region)
	assert.Equal(t, 5.5, rf["overall"])
	assert.Equal(t, 5.0, rf["infrastructure"])
	assert.Equal(t, int64(2), rf["gap_candidates"])
	assert.Equal(t, true, rf["partial"])
	assert.NotContains(t, rf, "equity")

	assert.Nil(t, Points(nil))
}

func TestSink_Record(t *testing.T) {
	mockWrite := &MockWriteAPI{}
	sink := NewSink(mockWrite, nil, "ev-scores", nil)

	n, err := sink.Record(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, mockWrite.WrittenPoints, 3)
}

func TestSink_RecordWriteFailure(t *testing.T) {
	boom := errors.New("connection refused")
	mockWrite := &MockWriteAPI{WritePointFunc: func(context.Context, ...*write.Point) error { return boom }}
	sink := NewSink(mockWrite, nil, "ev-scores", nil)

	n, err := sink.Record(context.Background(), sampleReport())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}

func TestSink_Trend(t *testing.T) {
	mockQuery := &MockQueryAPI{}
	sink := NewSink(&MockWriteAPI{}, mockQuery, "ev-scores", nil)

	points, err := sink.Trend(context.Background(), "08031000100", 0)
	require.NoError(t, err)
	assert.Empty(t, points)

	require.Len(t, mockQuery.Queries, 1)
	q := mockQuery.Queries[0]
	assert.Contains(t, q, `from(bucket: "ev-scores")`)
	assert.Contains(t, q, "range(start: -30d)")
	assert.Contains(t, q, `r.geography_id == "08031000100"`)
	assert.Contains(t, q, MeasurementArea)
}

func TestSink_TrendRejectsInjection(t *testing.T) {
	mockQuery := &MockQueryAPI{}
	sink := NewSink(&MockWriteAPI{}, mockQuery, "ev-scores", nil)

	_, err := sink.Trend(context.Background(), `g1") |> drop(`, 7)
	assert.Error(t, err)
	assert.Empty(t, mockQuery.Queries)
}

func TestSink_TrendQueryError(t *testing.T) {
	mockQuery := &MockQueryAPI{QueryFunc: func(context.Context, string) (*api.QueryTableResult, error) {
		return nil, errors.New("unauthorized")
	}}
	sink := NewSink(&MockWriteAPI{}, mockQuery, "ev-scores", nil)

	_, err := sink.Trend(context.Background(), "g1", 7)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unauthorized"))
}

func TestSink_TrendWithoutQueryAPI(t *testing.T) {
	sink := NewSink(&MockWriteAPI{}, nil, "ev-scores", nil)
	_, err := sink.Trend(context.Background(), "g1", 7)
	assert.Error(t, err)
}
