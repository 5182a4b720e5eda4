// Package metrics derives the per-row activity metrics from the merged table
// and rolls them up into the district and state summary tables.
package metrics

import (
	"log"
	"sort"

	"aadhaarlens/domain/core"
	"aadhaarlens/domain/dataset"
	dm "aadhaarlens/domain/metrics"

	"github.com/montanaflynn/stats"
)

// Engine computes derived metrics over immutable merged snapshots.
type Engine struct{}

// NewEngine creates a metrics engine.
func NewEngine() *Engine {
	return &Engine{}
}

// AddAllMetrics derives every per-row metric from the merged table. The input
// is not mutated; a new table is returned in (district, month) order so the
// lagged metrics read naturally.
func (e *Engine) AddAllMetrics(merged []dataset.MergedRecord) []dm.MetricRecord {
	rows := make([]dm.MetricRecord, len(merged))
	for i, rec := range merged {
		holders := rec.TotalHolders()
		demo := rec.TotalDemoUpdates()
		bio := rec.TotalBioUpdates()
		updates := demo + bio

		rows[i] = dm.MetricRecord{
			MergedRecord:     rec,
			TotalHolders:     holders,
			TotalUpdates:     updates,
			TotalDemoUpdates: demo,
			TotalBioUpdates:  bio,
			UpdateRatio:      dm.SafeRatio(updates, holders),
			DemoUpdateRatio:  dm.SafeRatio(demo, holders),
			BioUpdateRatio:   dm.SafeRatio(bio, holders),
		}
	}

	// Lagged metrics need each district's series in month order. Sorting by
	// the full (state, district, month) tuple keeps the lag from ever
	// crossing a district boundary, including same-named districts in
	// different states.
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.District != b.District {
			return a.District < b.District
		}
		return a.YearMonth.Before(b.YearMonth)
	})

	for i := range rows {
		if i == 0 || rows[i].State != rows[i-1].State || rows[i].District != rows[i-1].District {
			// Series start: no prior cohort, no prior total.
			rows[i].BiometricCompliance = 0
			rows[i].EnrolmentGrowthRate = 0
			continue
		}
		prev := rows[i-1]
		rows[i].BiometricCompliance = dm.SafeRatio(rows[i].BioAge17Plus, prev.Age5To17)
		rows[i].EnrolmentGrowthRate = dm.SafeRatio(rows[i].TotalHolders-prev.TotalHolders, prev.TotalHolders)
	}

	return rows
}

// DistrictSummaries aggregates metric records across all months by
// (state, district). Holders average, update counts sum, ratios average with
// the documented outlier correction: a mean monthly ratio above 20 is
// replaced by the totals-based ratio capped at 10, and every final ratio is
// clipped to [0, 50].
func (e *Engine) DistrictSummaries(rows []dm.MetricRecord) []dm.DistrictSummary {
	type bucket struct {
		holders, ratios, demoRatios, bioRatios []float64
		compliance, growth                     []float64
		updates, demoUpdates, bioUpdates       float64
	}

	type groupKey struct{ state, district string }
	groups := make(map[groupKey]*bucket)

	for _, row := range rows {
		key := groupKey{row.State, row.District}
		b, ok := groups[key]
		if !ok {
			b = &bucket{}
			groups[key] = b
		}
		b.holders = append(b.holders, row.TotalHolders)
		b.ratios = append(b.ratios, row.UpdateRatio)
		b.demoRatios = append(b.demoRatios, row.DemoUpdateRatio)
		b.bioRatios = append(b.bioRatios, row.BioUpdateRatio)
		b.compliance = append(b.compliance, row.BiometricCompliance)
		b.growth = append(b.growth, row.EnrolmentGrowthRate)
		b.updates += row.TotalUpdates
		b.demoUpdates += row.TotalDemoUpdates
		b.bioUpdates += row.TotalBioUpdates
	}

	summaries := make([]dm.DistrictSummary, 0, len(groups))
	for key, b := range groups {
		meanHolders := mean(b.holders)
		meanRatio := mean(b.ratios)

		if meanRatio > dm.SuspectRatioThreshold {
			// Low-denominator months blow up the monthly average; fall back
			// to the totals-based ratio, capped.
			meanRatio = dm.Clip(dm.SafeRatio(b.updates, meanHolders), 0, dm.RecomputedRatioCap)
		}

		summaries = append(summaries, dm.DistrictSummary{
			State:               key.state,
			District:            key.district,
			Months:              len(b.holders),
			TotalHolders:        meanHolders,
			TotalUpdates:        b.updates,
			TotalDemoUpdates:    b.demoUpdates,
			TotalBioUpdates:     b.bioUpdates,
			UpdateRatio:         dm.Clip(meanRatio, 0, dm.RatioCeiling),
			DemoUpdateRatio:     dm.Clip(mean(b.demoRatios), 0, dm.RatioCeiling),
			BioUpdateRatio:      dm.Clip(mean(b.bioRatios), 0, dm.RatioCeiling),
			BiometricCompliance: mean(b.compliance),
			EnrolmentGrowthRate: mean(b.growth),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].State != summaries[j].State {
			return summaries[i].State < summaries[j].State
		}
		return summaries[i].District < summaries[j].District
	})

	log.Printf("[Metrics] %d metric rows -> %d district summaries", len(rows), len(summaries))
	return summaries
}

// StateSummaries aggregates metric records by (state, month), summing totals
// and recomputing the update ratio from those totals.
func (e *Engine) StateSummaries(rows []dm.MetricRecord) []dm.StateSummary {
	type groupKey struct {
		state string
		month core.YearMonth
	}
	type bucket struct {
		holders, updates, demoUpdates, bioUpdates float64
		compliance, growth                        []float64
	}

	groups := make(map[groupKey]*bucket)
	for _, row := range rows {
		key := groupKey{row.State, row.YearMonth}
		b, ok := groups[key]
		if !ok {
			b = &bucket{}
			groups[key] = b
		}
		b.holders += row.TotalHolders
		b.updates += row.TotalUpdates
		b.demoUpdates += row.TotalDemoUpdates
		b.bioUpdates += row.TotalBioUpdates
		b.compliance = append(b.compliance, row.BiometricCompliance)
		b.growth = append(b.growth, row.EnrolmentGrowthRate)
	}

	summaries := make([]dm.StateSummary, 0, len(groups))
	for key, b := range groups {
		summaries = append(summaries, dm.StateSummary{
			State:               key.state,
			YearMonth:           key.month,
			TotalHolders:        b.holders,
			TotalUpdates:        b.updates,
			TotalDemoUpdates:    b.demoUpdates,
			TotalBioUpdates:     b.bioUpdates,
			UpdateRatio:         dm.Clip(dm.SafeRatio(b.updates, b.holders), 0, dm.RatioCeiling),
			BiometricCompliance: mean(b.compliance),
			EnrolmentGrowthRate: mean(b.growth),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].State != summaries[j].State {
			return summaries[i].State < summaries[j].State
		}
		return summaries[i].YearMonth.Before(summaries[j].YearMonth)
	})

	return summaries
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}
