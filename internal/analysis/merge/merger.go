// Package merge turns raw source tables into the single wide monthly table
// the metrics engine consumes: date normalization, name canonicalization,
// per-source aggregation, and the three-way outer join.
package merge

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"aadhaarlens/adapters/tabular"
	"aadhaarlens/domain/core"
	"aadhaarlens/domain/dataset"
	"aadhaarlens/domain/geography"
)

// Quality counts the tolerated per-row losses of one source aggregation.
// These are diagnostics, not errors: the load succeeds, but the counts are
// surfaced so silent data decay stays observable.
type Quality struct {
	Source        dataset.Source `json:"source"`
	RowsRead      int            `json:"rows_read"`
	RowsKept      int            `json:"rows_kept"`
	BadDates      int            `json:"bad_dates"`
	DroppedStates int            `json:"dropped_states"`
	BlankKeys     int            `json:"blank_keys"`
}

// Merger aggregates and joins the three source datasets.
type Merger struct {
	normalizer *geography.Normalizer
}

// NewMerger creates a merger using the given name normalizer.
func NewMerger(normalizer *geography.Normalizer) *Merger {
	return &Merger{normalizer: normalizer}
}

// AggregateSource collapses a source's raw tables to (month, state, district)
// granularity, summing numeric columns. Tables concatenate without
// deduplication. Rows with unparseable dates, known-invalid states, or blank
// keys are dropped and counted.
func (m *Merger) AggregateSource(source dataset.Source, tables []*tabular.Table) (*dataset.MonthlyTable, Quality, error) {
	quality := Quality{Source: source}

	if !source.Valid() {
		return nil, quality, fmt.Errorf("%w: %s", core.ErrUnknownSource, source)
	}
	if len(tables) == 0 {
		return nil, quality, core.NewNoDataFoundError(string(source), "")
	}

	numericCols := source.NumericColumns()
	aggregate := dataset.NewMonthlyTable(source)

	for _, table := range tables {
		required := append([]string{"date", "state", "district"}, numericCols...)
		if err := table.RequireColumns(required...); err != nil {
			return nil, quality, err
		}

		dateIdx := table.ColumnIndex("date")
		stateIdx := table.ColumnIndex("state")
		districtIdx := table.ColumnIndex("district")

		colIdx := make(map[string]int, len(numericCols))
		for _, col := range numericCols {
			colIdx[col] = table.ColumnIndex(col)
		}

		for _, record := range table.Records {
			quality.RowsRead++

			when, err := core.ParseSourceDate(strings.TrimSpace(record[dateIdx]))
			if err != nil {
				quality.BadDates++
				continue
			}

			rawState := record[stateIdx]
			if m.normalizer.IsDroppedState(rawState) {
				quality.DroppedStates++
				continue
			}

			state := m.normalizer.NormalizeState(rawState)
			district := geography.CleanName(record[districtIdx])
			if state == "" || district == "" {
				quality.BlankKeys++
				continue
			}

			values := make(map[string]float64, len(numericCols))
			for col, idx := range colIdx {
				values[col] = parseNumeric(record[idx])
			}

			aggregate.Add(dataset.Key{
				YearMonth: core.YearMonthOf(when),
				State:     state,
				District:  district,
			}, values)
			quality.RowsKept++
		}
	}

	log.Printf("[Merger] %s: %d rows -> %d keys (bad dates %d, dropped states %d, blank keys %d)",
		source, quality.RowsRead, aggregate.Len(), quality.BadDates, quality.DroppedStates, quality.BlankKeys)

	return aggregate, quality, nil
}

// Merge outer-joins the three monthly aggregates on the full composite key.
// Numeric columns missing from a source fill to zero. The key tuple is
// carried whole through the join, so no identity back-filling is needed.
// Output order is deterministic: year_month, state, district.
func (m *Merger) Merge(enrolment, demographic, biometric *dataset.MonthlyTable) ([]dataset.MergedRecord, error) {
	if enrolment == nil || demographic == nil || biometric == nil {
		return nil, fmt.Errorf("%w: all three sources are required for the merge", core.ErrEmptyTable)
	}

	keys := make(map[dataset.Key]struct{})
	for key := range enrolment.Rows {
		keys[key] = struct{}{}
	}
	for key := range demographic.Rows {
		keys[key] = struct{}{}
	}
	for key := range biometric.Rows {
		keys[key] = struct{}{}
	}

	merged := make([]dataset.MergedRecord, 0, len(keys))
	for key := range keys {
		enrol := enrolment.Rows[key]
		demo := demographic.Rows[key]
		bio := biometric.Rows[key]

		merged = append(merged, dataset.MergedRecord{
			Key:           key,
			Age0To5:       enrol[dataset.ColAge0To5],
			Age5To17:      enrol[dataset.ColAge5To17],
			Age18Plus:     enrol[dataset.ColAge18Plus],
			DemoAge5To17:  demo[dataset.ColDemoAge5To17],
			DemoAge17Plus: demo[dataset.ColDemoAge17Plus],
			BioAge5To17:   bio[dataset.ColBioAge5To17],
			BioAge17Plus:  bio[dataset.ColBioAge17Plus],
		})
	}

	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.YearMonth != b.YearMonth {
			return a.YearMonth.Before(b.YearMonth)
		}
		if a.State != b.State {
			return a.State < b.State
		}
		return a.District < b.District
	})

	log.Printf("[Merger] Outer join produced %d merged records", len(merged))
	return merged, nil
}

// parseNumeric coerces a raw cell to a float. Blank or malformed cells count
// as zero, the documented per-row recovery default.
func parseNumeric(raw string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}
