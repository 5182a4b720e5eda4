// Package metrics defines the derived per-row activity metrics and the
// district/state summary tables, plus the guarded arithmetic every ratio in
// the system goes through. Callers never observe NaN or Inf: any division by
// a zero or near-zero denominator yields 0.
package metrics

import (
	"math"

	"aadhaarlens/domain/core"
	"aadhaarlens/domain/dataset"
)

// Summary-correction thresholds. These are literal contract values the
// anomaly scorer depends on; do not tune them.
const (
	// SuspectRatioThreshold marks a mean monthly ratio as division noise.
	SuspectRatioThreshold = 20.0
	// RecomputedRatioCap bounds the totals-based replacement ratio.
	RecomputedRatioCap = 10.0
	// RatioCeiling is the hard data-error guard on any final ratio.
	RatioCeiling = 50.0
)

// MetricRecord is a MergedRecord with all derived metrics attached.
type MetricRecord struct {
	dataset.MergedRecord

	TotalHolders     float64 `json:"total_holders"`
	TotalUpdates     float64 `json:"total_updates"`
	TotalDemoUpdates float64 `json:"total_demo_updates"`
	TotalBioUpdates  float64 `json:"total_bio_updates"`

	UpdateRatio     float64 `json:"update_ratio"`
	DemoUpdateRatio float64 `json:"demo_update_ratio"`
	BioUpdateRatio  float64 `json:"bio_update_ratio"`

	// BiometricCompliance is the lagged cohort-progression estimate: this
	// month's older-bracket biometric updates over the same district's
	// younger-bracket count one period earlier.
	BiometricCompliance float64 `json:"biometric_compliance"`

	// EnrolmentGrowthRate is the month-over-month change in total holders,
	// zero at each district's series start.
	EnrolmentGrowthRate float64 `json:"enrolment_growth_rate"`
}

// DistrictSummary aggregates a district's metric records across all months:
// holders are averaged (stock), update counts summed (flow), ratios averaged
// with the outlier correction applied.
type DistrictSummary struct {
	State    string `json:"state"`
	District string `json:"district"`
	Months   int    `json:"months"`

	TotalHolders     float64 `json:"total_holders"`
	TotalUpdates     float64 `json:"total_updates"`
	TotalDemoUpdates float64 `json:"total_demo_updates"`
	TotalBioUpdates  float64 `json:"total_bio_updates"`

	UpdateRatio     float64 `json:"update_ratio"`
	DemoUpdateRatio float64 `json:"demo_update_ratio"`
	BioUpdateRatio  float64 `json:"bio_update_ratio"`

	BiometricCompliance float64 `json:"biometric_compliance"`
	EnrolmentGrowthRate float64 `json:"enrolment_growth_rate"`
}

// StateSummary aggregates metric records by (state, month). Its update ratio
// is recomputed from the aggregated totals, never averaged.
type StateSummary struct {
	State     string         `json:"state"`
	YearMonth core.YearMonth `json:"year_month"`

	TotalHolders     float64 `json:"total_holders"`
	TotalUpdates     float64 `json:"total_updates"`
	TotalDemoUpdates float64 `json:"total_demo_updates"`
	TotalBioUpdates  float64 `json:"total_bio_updates"`

	UpdateRatio         float64 `json:"update_ratio"`
	BiometricCompliance float64 `json:"biometric_compliance"`
	EnrolmentGrowthRate float64 `json:"enrolment_growth_rate"`
}

// SafeRatio divides num by den, returning 0 for zero, negative, or
// non-finite denominators and scrubbing any non-finite result.
func SafeRatio(num, den float64) float64 {
	if den <= 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0
	}
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
