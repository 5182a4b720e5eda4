// Package geolink joins district and state summaries onto boundary shapes.
// Both sides are name-normalized first, residual district names are fuzzy
// matched, and colliding source rows are aggregated before the join so one
// shape never silently inherits a single row out of several.
package geolink

import (
	"encoding/json"
	"log"

	da "aadhaarlens/domain/anomaly"
	"aadhaarlens/domain/geography"
	dm "aadhaarlens/domain/metrics"

	"aadhaarlens/adapters/geo"
	"aadhaarlens/internal/fuzzy"
)

// DistrictRow is one boundary shape with its linked metrics. Unmatched
// shapes keep zero metrics and the no_data flag.
type DistrictRow struct {
	State    string          `json:"state"`
	District string          `json:"district"`
	Geometry json.RawMessage `json:"geometry"`

	UpdateRatio         float64 `json:"update_ratio"`
	BiometricCompliance float64 `json:"biometric_compliance"`
	EnrolmentGrowthRate float64 `json:"enrolment_growth_rate"`
	TotalHolders        float64 `json:"total_holders"`
	TotalUpdates        float64 `json:"total_updates"`

	AnomalyFlag  da.Flag `json:"anomaly_flag"`
	AnomalyScore float64 `json:"anomaly_score"`

	Matched    bool `json:"matched"`
	SourceRows int  `json:"source_rows"`
}

// StateRow is one state shape with metrics aggregated over its districts.
type StateRow struct {
	State    string          `json:"state"`
	Geometry json.RawMessage `json:"geometry"`

	UpdateRatio         float64 `json:"update_ratio"`
	BiometricCompliance float64 `json:"biometric_compliance"`
	EnrolmentGrowthRate float64 `json:"enrolment_growth_rate"`
	TotalHolders        float64 `json:"total_holders"`
	TotalUpdates        float64 `json:"total_updates"`

	Matched bool `json:"matched"`
}

// DistrictResult carries the linked table plus the leftovers on both sides.
type DistrictResult struct {
	Rows []DistrictRow `json:"rows"`
	// UnmatchedShapes counts boundary shapes with no source data.
	UnmatchedShapes int `json:"unmatched_shapes"`
	// UnmatchedSources counts aggregated source districts that found no
	// shape even after fuzzy matching.
	UnmatchedSources int `json:"unmatched_sources"`
	// FuzzyMatched counts source names rescued by fuzzy matching.
	FuzzyMatched int `json:"fuzzy_matched"`
}

// StateResult is the state-level counterpart.
type StateResult struct {
	Rows             []StateRow `json:"rows"`
	UnmatchedShapes  int        `json:"unmatched_shapes"`
	UnmatchedSources int        `json:"unmatched_sources"`
}

// Linker resolves names through the shared normalizer before joining.
type Linker struct {
	normalizer *geography.Normalizer
	threshold  int
}

// NewLinker builds a linker around the shared normalizer. A threshold of
// zero or less selects fuzzy.DefaultThreshold.
func NewLinker(n *geography.Normalizer, threshold int) *Linker {
	if threshold <= 0 {
		threshold = fuzzy.DefaultThreshold
	}
	return &Linker{normalizer: n, threshold: threshold}
}

type linkKey struct{ state, district string }

// districtAgg accumulates colliding source rows for one canonical name pair.
// Worst case wins for the ratio, score and flag; other metrics average.
type districtAgg struct {
	n                  int
	updateRatio        float64
	compliance, growth float64
	holders, updates   float64
	flag               da.Flag
	score              float64
}

func (a *districtAgg) add(s dm.DistrictSummary, v da.Verdict) {
	a.n++
	if s.UpdateRatio > a.updateRatio {
		a.updateRatio = s.UpdateRatio
	}
	a.compliance += s.BiometricCompliance
	a.growth += s.EnrolmentGrowthRate
	a.holders += s.TotalHolders
	a.updates += s.TotalUpdates
	a.flag = da.MaxSeverity(a.flag, v.Flag)
	if v.Score > a.score {
		a.score = v.Score
	}
}

// LinkDistricts joins district summaries and their anomaly verdicts onto the
// national boundary set. Every shape is retained; shapes without data get
// zero metrics and the no_data flag.
func (l *Linker) LinkDistricts(boundaries []geo.Boundary, summaries []dm.DistrictSummary, verdicts []da.Verdict) DistrictResult {
	verdictFor := make(map[linkKey]da.Verdict, len(verdicts))
	for _, v := range verdicts {
		verdictFor[linkKey{v.State, v.District}] = v
	}

	// Normalized district names present on the shape side, per state, for
	// fuzzy residual matching.
	shapeDistricts := make(map[string]struct{})
	var shapeNames []string
	for _, b := range boundaries {
		d := l.normalizer.NormalizeDistrict(b.District)
		if d == "" {
			continue
		}
		if _, seen := shapeDistricts[d]; !seen {
			shapeDistricts[d] = struct{}{}
			shapeNames = append(shapeNames, d)
		}
	}

	// First pass: normalize source names and collect the ones that still
	// miss every shape district.
	normalized := make([]linkKey, len(summaries))
	var residuals []string
	seenResidual := make(map[string]struct{})
	for i, s := range summaries {
		k := linkKey{
			state:    l.normalizer.NormalizeState(s.State),
			district: l.normalizer.NormalizeDistrict(s.District),
		}
		normalized[i] = k
		if k.district == "" {
			continue
		}
		if _, ok := shapeDistricts[k.district]; !ok {
			if _, dup := seenResidual[k.district]; !dup {
				seenResidual[k.district] = struct{}{}
				residuals = append(residuals, k.district)
			}
		}
	}

	fuzzyMap := fuzzy.MatchNames(residuals, shapeNames, l.threshold)
	for i := range normalized {
		if target, ok := fuzzyMap[normalized[i].district]; ok {
			normalized[i].district = target
		}
	}

	// Aggregate colliding source rows before the join.
	aggs := make(map[linkKey]*districtAgg)
	for i, s := range summaries {
		k := normalized[i]
		a := aggs[k]
		if a == nil {
			a = &districtAgg{}
			aggs[k] = a
		}
		a.add(s, verdictFor[linkKey{s.State, s.District}])
	}

	res := DistrictResult{
		Rows:         make([]DistrictRow, 0, len(boundaries)),
		FuzzyMatched: len(fuzzyMap),
	}
	consumed := make(map[linkKey]struct{})
	for _, b := range boundaries {
		row := DistrictRow{
			State:       b.State,
			District:    b.District,
			Geometry:    b.Geometry,
			AnomalyFlag: da.FlagNoData,
		}
		k := linkKey{
			state:    l.normalizer.NormalizeState(b.State),
			district: l.normalizer.NormalizeDistrict(b.District),
		}
		if a, ok := aggs[k]; ok {
			n := float64(a.n)
			row.UpdateRatio = a.updateRatio
			row.BiometricCompliance = a.compliance / n
			row.EnrolmentGrowthRate = a.growth / n
			row.TotalHolders = a.holders / n
			row.TotalUpdates = a.updates / n
			row.AnomalyScore = a.score
			row.AnomalyFlag = a.flag
			if row.AnomalyFlag == "" {
				row.AnomalyFlag = da.FlagNormal
			}
			row.Matched = true
			row.SourceRows = a.n
			consumed[k] = struct{}{}
		} else {
			res.UnmatchedShapes++
		}
		res.Rows = append(res.Rows, row)
	}

	for k := range aggs {
		if _, ok := consumed[k]; !ok {
			res.UnmatchedSources++
		}
	}

	log.Printf("[GeoLink] district join: %d shapes, %d without data, %d source districts without shape, %d fuzzy rescues",
		len(res.Rows), res.UnmatchedShapes, res.UnmatchedSources, res.FuzzyMatched)
	return res
}

// LinkStates aggregates district summaries to state level (mean ratios, sum
// totals) and joins them onto state shapes by normalized state name.
func (l *Linker) LinkStates(boundaries []geo.Boundary, summaries []dm.DistrictSummary) StateResult {
	type stateAgg struct {
		n                 int
		ratio, compliance float64
		growth            float64
		holders, updates  float64
	}
	aggs := make(map[string]*stateAgg)
	for _, s := range summaries {
		state := l.normalizer.NormalizeState(s.State)
		if state == "" {
			continue
		}
		a := aggs[state]
		if a == nil {
			a = &stateAgg{}
			aggs[state] = a
		}
		a.n++
		a.ratio += s.UpdateRatio
		a.compliance += s.BiometricCompliance
		a.growth += s.EnrolmentGrowthRate
		a.holders += s.TotalHolders
		a.updates += s.TotalUpdates
	}

	res := StateResult{Rows: make([]StateRow, 0, len(boundaries))}
	consumed := make(map[string]struct{})
	for _, b := range boundaries {
		row := StateRow{State: b.State, Geometry: b.Geometry}
		state := l.normalizer.NormalizeState(b.State)
		if a, ok := aggs[state]; ok {
			n := float64(a.n)
			row.UpdateRatio = a.ratio / n
			row.BiometricCompliance = a.compliance / n
			row.EnrolmentGrowthRate = a.growth / n
			row.TotalHolders = a.holders
			row.TotalUpdates = a.updates
			row.Matched = true
			consumed[state] = struct{}{}
		} else {
			res.UnmatchedShapes++
		}
		res.Rows = append(res.Rows, row)
	}

	for state := range aggs {
		if _, ok := consumed[state]; !ok {
			res.UnmatchedSources++
		}
	}

	log.Printf("[GeoLink] state join: %d shapes, %d without data, %d source states without shape",
		len(res.Rows), res.UnmatchedShapes, res.UnmatchedSources)
	return res
}
