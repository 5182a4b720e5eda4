// Package dataset defines the tabular records flowing through the pipeline:
// raw per-file rows, per-source monthly aggregates, and the merged wide table
// the metrics engine consumes. All tables are immutable snapshots; every stage
// builds a new one from its input.
package dataset

import (
	"aadhaarlens/domain/core"
)

// Source identifies one of the three monthly administrative datasets.
type Source string

const (
	SourceEnrolment   Source = "enrolment"
	SourceDemographic Source = "demographic"
	SourceBiometric   Source = "biometric"
)

// Sources lists all source datasets in load order.
var Sources = []Source{SourceEnrolment, SourceDemographic, SourceBiometric}

// Numeric column names per source. These match the published file headers.
const (
	ColAge0To5       = "age_0_5"
	ColAge5To17      = "age_5_17"
	ColAge18Plus     = "age_18_greater"
	ColDemoAge5To17  = "demo_age_5_17"
	ColDemoAge17Plus = "demo_age_17_"
	ColBioAge5To17   = "bio_age_5_17"
	ColBioAge17Plus  = "bio_age_17_"
)

// NumericColumns returns the numeric columns a source contributes.
func (s Source) NumericColumns() []string {
	switch s {
	case SourceEnrolment:
		return []string{ColAge0To5, ColAge5To17, ColAge18Plus}
	case SourceDemographic:
		return []string{ColDemoAge5To17, ColDemoAge17Plus}
	case SourceBiometric:
		return []string{ColBioAge5To17, ColBioAge17Plus}
	}
	return nil
}

// Valid reports whether s names a known source dataset.
func (s Source) Valid() bool {
	switch s {
	case SourceEnrolment, SourceDemographic, SourceBiometric:
		return true
	}
	return false
}

// Key is the composite aggregation key. It is carried intact through every
// stage of the pipeline; no join ever drops part of it.
type Key struct {
	YearMonth core.YearMonth `json:"year_month"`
	State     string         `json:"state"`
	District  string         `json:"district"`
}

// MonthlyTable holds one source dataset aggregated to (month, state, district)
// granularity, numeric columns summed.
type MonthlyTable struct {
	Source Source
	Rows   map[Key]map[string]float64
}

// NewMonthlyTable creates an empty aggregate for a source.
func NewMonthlyTable(source Source) *MonthlyTable {
	return &MonthlyTable{Source: source, Rows: make(map[Key]map[string]float64)}
}

// Add accumulates one raw row's numeric values into the key's sums.
func (t *MonthlyTable) Add(key Key, values map[string]float64) {
	row, ok := t.Rows[key]
	if !ok {
		row = make(map[string]float64, len(values))
		t.Rows[key] = row
	}
	for col, v := range values {
		row[col] += v
	}
}

// Len returns the number of aggregated keys.
func (t *MonthlyTable) Len() int {
	return len(t.Rows)
}

// MergedRecord is the outer join of the three monthly aggregates for one key.
// Columns absent from a source fill to zero.
type MergedRecord struct {
	Key

	Age0To5   float64 `json:"age_0_5"`
	Age5To17  float64 `json:"age_5_17"`
	Age18Plus float64 `json:"age_18_greater"`

	DemoAge5To17  float64 `json:"demo_age_5_17"`
	DemoAge17Plus float64 `json:"demo_age_17_"`

	BioAge5To17  float64 `json:"bio_age_5_17"`
	BioAge17Plus float64 `json:"bio_age_17_"`
}

// TotalHolders sums the enrolment age brackets.
func (r MergedRecord) TotalHolders() float64 {
	return r.Age0To5 + r.Age5To17 + r.Age18Plus
}

// TotalDemoUpdates sums the demographic update brackets.
func (r MergedRecord) TotalDemoUpdates() float64 {
	return r.DemoAge5To17 + r.DemoAge17Plus
}

// TotalBioUpdates sums the biometric update brackets.
func (r MergedRecord) TotalBioUpdates() float64 {
	return r.BioAge5To17 + r.BioAge17Plus
}

// TotalUpdates sums demographic and biometric update transactions.
func (r MergedRecord) TotalUpdates() float64 {
	return r.TotalDemoUpdates() + r.TotalBioUpdates()
}
