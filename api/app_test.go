package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aadhaarlens/adapters/geo"
	"aadhaarlens/adapters/tabular"
	"aadhaarlens/app"
	"aadhaarlens/domain/core"
	"aadhaarlens/domain/dataset"
	"aadhaarlens/domain/geography"
	anomalyengine "aadhaarlens/internal/analysis/anomaly"
)

// stubReader serves fixed tables per source, or a fixed error.
type stubReader struct {
	tables map[dataset.Source][]*tabular.Table
	err    error
}

func (r *stubReader) ReadSource(_ context.Context, source dataset.Source) ([]*tabular.Table, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.tables[source], nil
}

// stubBoundaries serves a fixed shape set.
type stubBoundaries struct {
	boundaries  []geo.Boundary
	stateShapes map[string][]geo.Boundary
}

func (b *stubBoundaries) LoadIndia() ([]geo.Boundary, error) { return b.boundaries, nil }

func (b *stubBoundaries) LoadState(state string) ([]geo.Boundary, error) {
	if shapes, ok := b.stateShapes[state]; ok {
		return shapes, nil
	}
	return nil, core.ErrBoundaryNotFound
}

func (b *stubBoundaries) AvailableStates() []string {
	states := make([]string, 0, len(b.stateShapes))
	for s := range b.stateShapes {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}

func sourceTable(source dataset.Source, rows ...[]string) *tabular.Table {
	headers := append([]string{"date", "state", "district"}, source.NumericColumns()...)
	return &tabular.Table{Path: string(source) + ".csv", Headers: headers, Records: rows}
}

func readyApp(t *testing.T) *App {
	t.Helper()

	reader := &stubReader{tables: map[dataset.Source][]*tabular.Table{
		dataset.SourceEnrolment: {sourceTable(dataset.SourceEnrolment,
			[]string{"15-01-2023", "Karnataka", "Bangalore", "10", "20", "70"},
			[]string{"15-01-2023", "Kerala", "Kollam", "5", "10", "35"},
		)},
		dataset.SourceDemographic: {sourceTable(dataset.SourceDemographic,
			[]string{"15-01-2023", "Karnataka", "Bangalore", "4", "8"},
		)},
		dataset.SourceBiometric: {sourceTable(dataset.SourceBiometric,
			[]string{"15-01-2023", "Kerala", "Kollam", "2", "3"},
		)},
	}}
	boundaries := &stubBoundaries{
		boundaries: []geo.Boundary{
			{State: "Karnataka", District: "Bengaluru Urban"},
			{State: "Kerala", District: "Kollam"},
		},
		stateShapes: map[string][]geo.Boundary{
			"Kerala": {{State: "Kerala", District: "Kollam"}},
		},
	}

	svc := app.NewPipelineService(reader, boundaries, geography.NewNormalizer(), app.Config{Detector: anomalyengine.DefaultConfig()})
	require.NoError(t, svc.Run(context.Background()))

	return NewApp(svc, Config{TopAnomalies: 20})
}

func emptyApp() *App {
	svc := app.NewPipelineService(
		&stubReader{tables: map[dataset.Source][]*tabular.Table{}},
		&stubBoundaries{},
		geography.NewNormalizer(),
		app.Config{Detector: anomalyengine.DefaultConfig()},
	)
	return NewApp(svc, Config{})
}

func get(t *testing.T, a *App, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestEndpointsBeforeFirstRun(t *testing.T) {
	a := emptyApp()

	for _, path := range []string{
		"/api/overview", "/api/states", "/api/districts", "/api/anomalies",
		"/api/compliance", "/api/migration", "/api/patterns", "/api/clusters",
		"/api/geo/district", "/api/time-series", "/api/monthly-data/2023-01",
		"/report",
	} {
		rec, body := get(t, a, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "pipeline data not loaded", body["error"], path)
	}
}

func TestHealthReportsPipelineState(t *testing.T) {
	rec, body := get(t, readyApp(t), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ready", body["pipeline"])
	assert.NotContains(t, body, "last_error")
}

func TestOverview(t *testing.T) {
	rec, body := get(t, readyApp(t), "/api/overview")
	require.Equal(t, http.StatusOK, rec.Code)

	kpis := body["kpis"].(map[string]interface{})
	assert.Equal(t, float64(2), kpis["total_districts"])
	assert.Equal(t, float64(150), kpis["total_holders"])
	assert.Greater(t, kpis["avg_update_ratio"].(float64), 0.0)

	topStates := body["top_states"].([]interface{})
	require.Len(t, topStates, 2)
	first := topStates[0].(map[string]interface{})
	second := topStates[1].(map[string]interface{})
	assert.GreaterOrEqual(t,
		first["avg_update_ratio"].(float64), second["avg_update_ratio"].(float64))

	assert.NotEmpty(t, body["run_id"])
}

func TestStatesSorted(t *testing.T) {
	rec, body := get(t, readyApp(t), "/api/states")
	require.Equal(t, http.StatusOK, rec.Code)

	states := body["states"].([]interface{})
	assert.Equal(t, []interface{}{"Karnataka", "Kerala"}, states)
}

func TestDistrictsListing(t *testing.T) {
	a := readyApp(t)

	rec, body := get(t, a, "/api/districts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	rec, body = get(t, a, "/api/districts/karnataka")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"Bangalore"}, body["districts"])

	rec, body = get(t, a, "/api/districts/Atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "Atlantis")
}

func TestGeoLevels(t *testing.T) {
	a := readyApp(t)

	rec, body := get(t, a, "/api/geo/district")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["rows"], 2)

	rec, body = get(t, a, "/api/geo/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["rows"])

	rec, _ = get(t, a, "/api/geo/village")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnomalies(t *testing.T) {
	rec, body := get(t, readyApp(t), "/api/anomalies")
	require.Equal(t, http.StatusOK, rec.Code)

	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["total"])
	assert.Equal(t, float64(2), body["total"])
}

func TestAnomalyMap(t *testing.T) {
	rec, body := get(t, readyApp(t), "/api/anomalies/map")
	require.Equal(t, http.StatusOK, rec.Code)

	rows := body["rows"].([]interface{})
	require.Len(t, rows, 2)
	for _, raw := range rows {
		row := raw.(map[string]interface{})
		assert.NotEmpty(t, row["anomaly_flag"])
	}
}

func TestCompliance(t *testing.T) {
	rec, body := get(t, readyApp(t), "/api/compliance")
	require.Equal(t, http.StatusOK, rec.Code)

	distribution := body["distribution"].([]interface{})
	require.Len(t, distribution, 5)
	total := 0.0
	for _, raw := range distribution {
		total += raw.(map[string]interface{})["count"].(float64)
	}
	assert.Equal(t, 2.0, total, "every district lands in exactly one bin")

	top := body["top_compliant"].([]interface{})
	assert.LessOrEqual(t, len(top), 15)
}

func TestMigration(t *testing.T) {
	rec, body := get(t, readyApp(t), "/api/migration")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, body, "demo_median")
	assert.Contains(t, body, "bio_median")
	assert.Contains(t, body, "hotspots")
	assert.Contains(t, body, "total")
}

func TestComparison(t *testing.T) {
	a := readyApp(t)

	rec, body := get(t, a,
		"/api/comparison?state_a=Karnataka&district_a=Bangalore&state_b=Kerala&district_b=Kollam")
	require.Equal(t, http.StatusOK, rec.Code)

	first := body["a"].(map[string]interface{})
	assert.Equal(t, "Bangalore", first["district"])
	assert.Equal(t, float64(100), first["population"])
	second := body["b"].(map[string]interface{})
	assert.Equal(t, "Kollam", second["district"])

	rec, body = get(t, a,
		"/api/comparison?state_a=Karnataka&district_a=Nowhere&state_b=Kerala&district_b=Kollam")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "Nowhere")
}

func TestPatternsAndClusters(t *testing.T) {
	a := readyApp(t)

	rec, body := get(t, a, "/api/patterns")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "temporal_patterns")
	assert.Contains(t, body, "summary")

	rec, body = get(t, a, "/api/clusters")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "clusters")
	assert.Equal(t, float64(2), body["total_districts"])
}

func TestTimeSeriesNationalTrend(t *testing.T) {
	a := readyApp(t)

	rec, body := get(t, a, "/api/time-series")
	require.Equal(t, http.StatusOK, rec.Code)

	months := body["available_months"].([]interface{})
	require.Equal(t, []interface{}{"2023-01"}, months)

	trend := body["national_trend"].([]interface{})
	require.Len(t, trend, 1)
	point := trend[0].(map[string]interface{})
	assert.Equal(t, "2023-01", point["year_month"])
	assert.Equal(t, 150.0, point["total_holders"])
	assert.Equal(t, 17.0, point["total_updates"])
	assert.Equal(t, 0.113, point["update_ratio"])
}

func TestMonthlyData(t *testing.T) {
	a := readyApp(t)

	rec, body := get(t, a, "/api/monthly-data/2023-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2023-01", body["month"])

	statistics := body["statistics"].(map[string]interface{})
	assert.Equal(t, 2.0, statistics["total_districts"])
	assert.Equal(t, 2.0, statistics["non_zero_districts"])

	districts := body["district_data"].([]interface{})
	require.Len(t, districts, 2)
	first := districts[0].(map[string]interface{})
	assert.Equal(t, "Karnataka", first["state"], "district rows sorted by state then district")

	top := body["top_districts"].([]interface{})
	require.NotEmpty(t, top)
	best := top[0].(map[string]interface{})
	assert.Equal(t, "Bangalore", best["district"], "Bangalore has the higher update ratio")
}

func TestMonthlyDataUnknownMonth(t *testing.T) {
	a := readyApp(t)

	rec, body := get(t, a, "/api/monthly-data/2099-12")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no data for month 2099-12", body["error"])
}

func TestBoundaryStateEndpoints(t *testing.T) {
	a := readyApp(t)

	rec, body := get(t, a, "/api/geo/boundaries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"Kerala"}, body["states"])

	rec, body = get(t, a, "/api/geo/boundaries/Kerala")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["count"])
	assert.NotEmpty(t, body["features"])

	rec, body = get(t, a, "/api/geo/boundaries/Atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no boundary file for state: Atlantis", body["error"])
}

func TestReloadReportsInputDataErrors(t *testing.T) {
	svc := app.NewPipelineService(
		&stubReader{err: core.NewNoDataFoundError("enrolment", "data/enrolment")},
		&stubBoundaries{},
		geography.NewNormalizer(),
		app.Config{Detector: anomalyengine.DefaultConfig()},
	)
	a := NewApp(svc, Config{})

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reload", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "no data files found")
}

func TestReloadRunsPipelineAgain(t *testing.T) {
	a := readyApp(t)

	before, _ := get(t, a, "/api/overview")
	require.Equal(t, http.StatusOK, before.Code)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "reloaded", body["status"])
	assert.NotEmpty(t, body["run_id"])
}

func TestReportRendersHTML(t *testing.T) {
	a := readyApp(t)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "AadhaarLens Run Report")
	assert.Contains(t, rec.Body.String(), "enrolment")
}
