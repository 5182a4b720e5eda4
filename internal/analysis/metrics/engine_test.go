package metrics

import (
	"math"
	"testing"

	"aadhaarlens/domain/core"
	"aadhaarlens/domain/dataset"
	dm "aadhaarlens/domain/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(ym, state, district string, age05, age517, age18, demo517, demo17, bio517, bio17 float64) dataset.MergedRecord {
	return dataset.MergedRecord{
		Key:           dataset.Key{YearMonth: core.YearMonth(ym), State: state, District: district},
		Age0To5:       age05,
		Age5To17:      age517,
		Age18Plus:     age18,
		DemoAge5To17:  demo517,
		DemoAge17Plus: demo17,
		BioAge5To17:   bio517,
		BioAge17Plus:  bio17,
	}
}

func TestAddAllMetricsBasicRatios(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "Karnataka", "Bangalore", 10, 20, 70, 4, 8, 2, 4),
	})
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 100.0, row.TotalHolders)
	assert.Equal(t, 18.0, row.TotalUpdates)
	assert.InDelta(t, 0.18, row.UpdateRatio, 1e-9)
	assert.InDelta(t, 0.12, row.DemoUpdateRatio, 1e-9)
	assert.InDelta(t, 0.06, row.BioUpdateRatio, 1e-9)
}

func TestAddAllMetricsZeroHolders(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "Kerala", "Kollam", 0, 0, 0, 5, 5, 5, 5),
	})

	row := rows[0]
	assert.Equal(t, 0.0, row.UpdateRatio)
	assert.Equal(t, 0.0, row.DemoUpdateRatio)
	assert.Equal(t, 0.0, row.BioUpdateRatio)
	assertAllFinite(t, rows)
}

func TestLaggedMetricsFirstPeriodZero(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "Karnataka", "Mysore", 10, 40, 50, 0, 0, 0, 8),
	})

	assert.Equal(t, 0.0, rows[0].BiometricCompliance)
	assert.Equal(t, 0.0, rows[0].EnrolmentGrowthRate)
}

func TestLaggedMetricsUsePriorPeriod(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-02", "Karnataka", "Mysore", 10, 50, 60, 0, 0, 0, 10),
		record("2023-01", "Karnataka", "Mysore", 10, 40, 50, 0, 0, 0, 8),
	})
	require.Len(t, rows, 2)

	// Engine re-sorts into month order within the district.
	first, second := rows[0], rows[1]
	require.Equal(t, core.YearMonth("2023-01"), first.YearMonth)

	assert.Equal(t, 0.0, first.BiometricCompliance)
	// Feb compliance: bio_age_17_ (10) over Jan age_5_17 (40).
	assert.InDelta(t, 0.25, second.BiometricCompliance, 1e-9)
	// Feb growth: (120-100)/100.
	assert.InDelta(t, 0.2, second.EnrolmentGrowthRate, 1e-9)
}

func TestLagDoesNotLeakAcrossDistricts(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "Karnataka", "Aaa", 10, 40, 50, 0, 0, 0, 8),
		record("2023-01", "Karnataka", "Bbb", 5, 5, 5, 0, 0, 0, 3),
	})

	for _, row := range rows {
		assert.Equal(t, 0.0, row.BiometricCompliance, "district %s", row.District)
		assert.Equal(t, 0.0, row.EnrolmentGrowthRate, "district %s", row.District)
	}
}

func TestLagDoesNotLeakAcrossStatesWithSameDistrictName(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "Bihar", "Aurangabad", 10, 40, 50, 0, 0, 0, 0),
		record("2023-02", "Maharashtra", "Aurangabad", 20, 30, 50, 0, 0, 0, 9),
	})

	for _, row := range rows {
		assert.Equal(t, 0.0, row.BiometricCompliance,
			"%s/%s is a series start", row.State, row.District)
	}
}

func TestDistrictSummariesAggregation(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "Karnataka", "Mysore", 10, 40, 50, 5, 5, 0, 0),
		record("2023-02", "Karnataka", "Mysore", 10, 60, 80, 10, 10, 5, 5),
	})

	summaries := e.DistrictSummaries(rows)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, 2, s.Months)
	// Holders: mean of 100 and 150 (stock variable).
	assert.InDelta(t, 125.0, s.TotalHolders, 1e-9)
	// Updates: sum across months (flow variable).
	assert.Equal(t, 40.0, s.TotalUpdates)
	// Ratio: mean of monthly ratios 0.10 and 0.20.
	assert.InDelta(t, 0.15, s.UpdateRatio, 1e-9)
}

func TestDistrictSummariesOutlierCorrection(t *testing.T) {
	e := NewEngine()

	// One holder, massive updates: monthly ratio 1000 trips the >20 fallback,
	// recomputed from totals and capped at 10, well under the 50 ceiling.
	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "Kerala", "Noisy", 1, 0, 0, 500, 500, 0, 0),
	})
	require.InDelta(t, 1000.0, rows[0].UpdateRatio, 1e-9)

	summaries := e.DistrictSummaries(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, dm.RecomputedRatioCap, summaries[0].UpdateRatio)
	assert.LessOrEqual(t, summaries[0].UpdateRatio, dm.RatioCeiling)
}

func TestDistrictSummariesCeilingClip(t *testing.T) {
	e := NewEngine()

	// Demo ratio averages above 50 but below the suspect threshold is still
	// clipped by the ceiling guard.
	rows := []dm.MetricRecord{
		{
			MergedRecord:    record("2023-01", "Kerala", "Spike", 1, 0, 0, 0, 0, 0, 0),
			TotalHolders:    1,
			DemoUpdateRatio: 1000,
		},
	}

	summaries := e.DistrictSummaries(rows)
	assert.Equal(t, dm.RatioCeiling, summaries[0].DemoUpdateRatio)
}

func TestStateSummariesRecomputeRatioFromTotals(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "Karnataka", "Aaa", 0, 0, 100, 10, 0, 0, 0),
		record("2023-01", "Karnataka", "Bbb", 0, 0, 300, 30, 0, 0, 0),
	})

	summaries := e.StateSummaries(rows)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, 400.0, s.TotalHolders)
	assert.Equal(t, 40.0, s.TotalUpdates)
	// 40/400, not the mean of the district ratios.
	assert.InDelta(t, 0.1, s.UpdateRatio, 1e-9)
}

func TestAllMetricsFiniteAndNonNegative(t *testing.T) {
	e := NewEngine()

	rows := e.AddAllMetrics([]dataset.MergedRecord{
		record("2023-01", "X", "A", 0, 0, 0, 0, 0, 0, 0),
		record("2023-02", "X", "A", 0, 0, 0, 9, 9, 9, 9),
		record("2023-03", "X", "A", 1, 1, 1, 0, 0, 0, 0),
	})
	assertAllFinite(t, rows)
}

func assertAllFinite(t *testing.T, rows []dm.MetricRecord) {
	t.Helper()
	for _, row := range rows {
		for name, v := range map[string]float64{
			"update_ratio":          row.UpdateRatio,
			"demo_update_ratio":     row.DemoUpdateRatio,
			"bio_update_ratio":      row.BioUpdateRatio,
			"biometric_compliance":  row.BiometricCompliance,
			"enrolment_growth_rate": row.EnrolmentGrowthRate,
		} {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s not finite for %v", name, row.Key)
			if name != "enrolment_growth_rate" {
				require.GreaterOrEqual(t, v, 0.0, "%s negative for %v", name, row.Key)
			}
		}
	}
}
