// Package patterns derives temporal, spatial and behavioral patterns from the
// monthly metric rows: per-district trend and volatility, per-state spatial
// heterogeneity, and behavioral classes relative to national medians.
package patterns

import (
	"log"
	"sort"
	"strings"

	dm "aadhaarlens/domain/metrics"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Trend classification cutoffs for the least-squares slope of update_ratio
// over a district's month index.
const (
	RisingSlope    = 0.1
	DecliningSlope = -0.1
)

// Volatility cutoffs on the standard deviation of a district's monthly
// update_ratio series.
const (
	HighVolatility     = 2.0
	ModerateVolatility = 1.0
)

// Spatial heterogeneity cutoffs on the coefficient of variation of district
// ratios within a state.
const (
	HighHeterogeneity     = 1.0
	ModerateHeterogeneity = 0.5
)

// Trend names.
const (
	TrendRising    = "rising"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Temporal pattern names.
const (
	PatternHighlyVolatile     = "highly_volatile"
	PatternModerateVolatility = "moderate_volatility"
	PatternStable             = "stable"
	PatternInsufficientData   = "insufficient_data"
)

// Spatial pattern names.
const (
	SpatialHighlyHeterogeneous     = "highly_heterogeneous"
	SpatialModeratelyHeterogeneous = "moderately_heterogeneous"
	SpatialHomogeneous             = "homogeneous"
)

// Behavioral class names. A district can carry several at once.
const (
	BehaviorMigrationHeavy = "migration_heavy"
	BehaviorQualityFocused = "quality_focused"
	BehaviorLowEngagement  = "low_engagement"
	BehaviorHighActivity   = "high_activity"
	BehaviorBalanced       = "balanced"
)

// TemporalPattern is the trend result for one district's time series.
type TemporalPattern struct {
	State           string  `json:"state"`
	District        string  `json:"district"`
	TemporalPattern string  `json:"temporal_pattern"`
	Trend           string  `json:"trend"`
	TrendSlope      float64 `json:"trend_slope"`
	Volatility      float64 `json:"volatility"`
}

// SpatialPattern is the heterogeneity result for one state.
type SpatialPattern struct {
	State          string  `json:"state"`
	SpatialPattern string  `json:"spatial_pattern"`
	CVUpdateRatio  float64 `json:"cv_update_ratio"`
	CVCompliance   float64 `json:"cv_compliance"`
	NumDistricts   int     `json:"num_districts"`
	AvgUpdateRatio float64 `json:"avg_update_ratio"`
	AvgCompliance  float64 `json:"avg_compliance"`
}

// BehavioralPattern classifies one district against national medians.
type BehavioralPattern struct {
	State               string   `json:"state"`
	District            string   `json:"district"`
	DemoUpdateRatio     float64  `json:"demo_update_ratio"`
	BioUpdateRatio      float64  `json:"bio_update_ratio"`
	UpdateRatio         float64  `json:"update_ratio"`
	BiometricCompliance float64  `json:"biometric_compliance"`
	TotalHolders        float64  `json:"total_holders"`
	Behaviors           []string `json:"behaviors"`
}

// Label joins the behavior classes the way reports display them.
func (b BehavioralPattern) Label() string {
	return strings.Join(b.Behaviors, ",")
}

// Summary carries the counts the overview endpoints report.
type Summary struct {
	Temporal struct {
		Rising    int `json:"rising_districts"`
		Declining int `json:"declining_districts"`
		Stable    int `json:"stable_districts"`
		Volatile  int `json:"volatile_districts"`
	} `json:"temporal"`
	Spatial struct {
		Heterogeneous int `json:"heterogeneous_states"`
		Homogeneous   int `json:"homogeneous_states"`
		Total         int `json:"total_states"`
	} `json:"spatial"`
	Behavioral struct {
		MigrationHeavy int `json:"migration_heavy"`
		QualityFocused int `json:"quality_focused"`
		LowEngagement  int `json:"low_engagement"`
		HighActivity   int `json:"high_activity"`
	} `json:"behavioral"`
}

// Result bundles every pattern table with the summary counts.
type Result struct {
	Temporal   []TemporalPattern   `json:"temporal_patterns"`
	Spatial    []SpatialPattern    `json:"spatial_patterns"`
	Behavioral []BehavioralPattern `json:"behavioral_patterns"`
	Summary    Summary             `json:"summary"`
}

// Discovery runs the three pattern passes over monthly metric rows.
type Discovery struct{}

func NewDiscovery() *Discovery { return &Discovery{} }

// Discover runs all passes and assembles the summary.
func (d *Discovery) Discover(rows []dm.MetricRecord) Result {
	res := Result{
		Temporal:   d.TemporalPatterns(rows),
		Spatial:    d.SpatialPatterns(rows),
		Behavioral: d.BehavioralPatterns(rows),
	}

	for _, t := range res.Temporal {
		switch t.Trend {
		case TrendRising:
			res.Summary.Temporal.Rising++
		case TrendDeclining:
			res.Summary.Temporal.Declining++
		default:
			res.Summary.Temporal.Stable++
		}
		if t.TemporalPattern == PatternHighlyVolatile {
			res.Summary.Temporal.Volatile++
		}
	}
	for _, s := range res.Spatial {
		res.Summary.Spatial.Total++
		switch s.SpatialPattern {
		case SpatialHighlyHeterogeneous:
			res.Summary.Spatial.Heterogeneous++
		case SpatialHomogeneous:
			res.Summary.Spatial.Homogeneous++
		}
	}
	for _, b := range res.Behavioral {
		for _, behavior := range b.Behaviors {
			switch behavior {
			case BehaviorMigrationHeavy:
				res.Summary.Behavioral.MigrationHeavy++
			case BehaviorQualityFocused:
				res.Summary.Behavioral.QualityFocused++
			case BehaviorLowEngagement:
				res.Summary.Behavioral.LowEngagement++
			case BehaviorHighActivity:
				res.Summary.Behavioral.HighActivity++
			}
		}
	}

	log.Printf("[Patterns] %d district trends, %d state spatial profiles, %d behavioral profiles",
		len(res.Temporal), len(res.Spatial), len(res.Behavioral))
	return res
}

// TemporalPatterns fits a least-squares slope to each district's monthly
// update_ratio series and classifies trend and volatility.
func (d *Discovery) TemporalPatterns(rows []dm.MetricRecord) []TemporalPattern {
	type key struct{ state, district string }
	series := make(map[key][]dm.MetricRecord)
	for _, row := range rows {
		k := key{row.State, row.District}
		series[k] = append(series[k], row)
	}

	out := make([]TemporalPattern, 0, len(series))
	for k, group := range series {
		sort.Slice(group, func(i, j int) bool {
			return group[i].YearMonth < group[j].YearMonth
		})

		p := TemporalPattern{State: k.state, District: k.district}
		if len(group) < 2 {
			p.TemporalPattern = PatternInsufficientData
			p.Trend = TrendStable
			out = append(out, p)
			continue
		}

		xs := make([]float64, len(group))
		ys := make([]float64, len(group))
		for i, row := range group {
			xs[i] = float64(i)
			ys[i] = row.UpdateRatio
		}
		if variance(ys) > 0 {
			_, p.TrendSlope = stat.LinearRegression(xs, ys, nil, false)
			p.Volatility, _ = stats.StandardDeviation(ys)
		}

		switch {
		case p.TrendSlope > RisingSlope:
			p.Trend = TrendRising
		case p.TrendSlope < DecliningSlope:
			p.Trend = TrendDeclining
		default:
			p.Trend = TrendStable
		}
		switch {
		case p.Volatility > HighVolatility:
			p.TemporalPattern = PatternHighlyVolatile
		case p.Volatility > ModerateVolatility:
			p.TemporalPattern = PatternModerateVolatility
		default:
			p.TemporalPattern = PatternStable
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].District < out[j].District
	})
	return out
}

// SpatialPatterns reports the coefficient of variation of district-mean
// ratios within each state. States with a single district carry no spread
// signal and are skipped.
func (d *Discovery) SpatialPatterns(rows []dm.MetricRecord) []SpatialPattern {
	perDistrict := districtMeans(rows)

	byState := make(map[string][]districtProfile)
	for _, p := range perDistrict {
		byState[p.state] = append(byState[p.state], p)
	}

	out := make([]SpatialPattern, 0, len(byState))
	for state, districts := range byState {
		if len(districts) < 2 {
			continue
		}
		ratios := make([]float64, len(districts))
		compliances := make([]float64, len(districts))
		for i, p := range districts {
			ratios[i] = p.updateRatio
			compliances[i] = p.compliance
		}

		sp := SpatialPattern{
			State:          state,
			NumDistricts:   len(districts),
			AvgUpdateRatio: meanOf(ratios),
			AvgCompliance:  meanOf(compliances),
			CVUpdateRatio:  coefficientOfVariation(ratios),
			CVCompliance:   coefficientOfVariation(compliances),
		}
		switch {
		case sp.CVUpdateRatio > HighHeterogeneity:
			sp.SpatialPattern = SpatialHighlyHeterogeneous
		case sp.CVUpdateRatio > ModerateHeterogeneity:
			sp.SpatialPattern = SpatialModeratelyHeterogeneous
		default:
			sp.SpatialPattern = SpatialHomogeneous
		}
		out = append(out, sp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out
}

// BehavioralPatterns classifies each district against the national medians of
// its demographic and biometric update intensity.
func (d *Discovery) BehavioralPatterns(rows []dm.MetricRecord) []BehavioralPattern {
	perDistrict := districtMeans(rows)
	if len(perDistrict) == 0 {
		return nil
	}

	demoRatios := make([]float64, len(perDistrict))
	bioRatios := make([]float64, len(perDistrict))
	compliances := make([]float64, len(perDistrict))
	for i, p := range perDistrict {
		demoRatios[i] = p.demoRatio
		bioRatios[i] = p.bioRatio
		compliances[i] = p.compliance
	}
	demoMedian, _ := stats.Median(demoRatios)
	bioMedian, _ := stats.Median(bioRatios)
	complianceMedian, _ := stats.Median(compliances)

	out := make([]BehavioralPattern, 0, len(perDistrict))
	for _, p := range perDistrict {
		b := BehavioralPattern{
			State:               p.state,
			District:            p.district,
			DemoUpdateRatio:     p.demoRatio,
			BioUpdateRatio:      p.bioRatio,
			UpdateRatio:         p.updateRatio,
			BiometricCompliance: p.compliance,
			TotalHolders:        p.holders,
		}
		if p.demoRatio > demoMedian && p.bioRatio < bioMedian {
			b.Behaviors = append(b.Behaviors, BehaviorMigrationHeavy)
		}
		if p.bioRatio > bioMedian && p.compliance > complianceMedian {
			b.Behaviors = append(b.Behaviors, BehaviorQualityFocused)
		}
		if p.demoRatio < demoMedian && p.bioRatio < bioMedian {
			b.Behaviors = append(b.Behaviors, BehaviorLowEngagement)
		}
		if p.demoRatio > demoMedian && p.bioRatio > bioMedian {
			b.Behaviors = append(b.Behaviors, BehaviorHighActivity)
		}
		if len(b.Behaviors) == 0 {
			b.Behaviors = []string{BehaviorBalanced}
		}
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].District < out[j].District
	})
	return out
}

// TopVolatile returns the n most volatile district trends.
func (d *Discovery) TopVolatile(rows []dm.MetricRecord, n int) []TemporalPattern {
	patterns := d.TemporalPatterns(rows)
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Volatility > patterns[j].Volatility
	})
	if n > 0 && len(patterns) > n {
		patterns = patterns[:n]
	}
	return patterns
}

type districtProfile struct {
	state, district string
	updateRatio     float64
	demoRatio       float64
	bioRatio        float64
	compliance      float64
	holders         float64
}

// districtMeans collapses monthly rows into one profile per district: mean
// ratios and compliance, summed holders. Output is sorted for determinism.
func districtMeans(rows []dm.MetricRecord) []districtProfile {
	type key struct{ state, district string }
	type acc struct {
		n                                     int
		ratio, demo, bio, compliance, holders float64
	}
	accs := make(map[key]*acc)
	for _, row := range rows {
		k := key{row.State, row.District}
		a := accs[k]
		if a == nil {
			a = &acc{}
			accs[k] = a
		}
		a.n++
		a.ratio += row.UpdateRatio
		a.demo += row.DemoUpdateRatio
		a.bio += row.BioUpdateRatio
		a.compliance += row.BiometricCompliance
		a.holders += row.TotalHolders
	}

	out := make([]districtProfile, 0, len(accs))
	for k, a := range accs {
		n := float64(a.n)
		out = append(out, districtProfile{
			state:       k.state,
			district:    k.district,
			updateRatio: a.ratio / n,
			demoRatio:   a.demo / n,
			bioRatio:    a.bio / n,
			compliance:  a.compliance / n,
			holders:     a.holders,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].state != out[j].state {
			return out[i].state < out[j].state
		}
		return out[i].district < out[j].district
	})
	return out
}

func meanOf(vals []float64) float64 {
	m, err := stats.Mean(vals)
	if err != nil {
		return 0
	}
	return m
}

func coefficientOfVariation(vals []float64) float64 {
	m := meanOf(vals)
	if m <= 0 {
		return 0
	}
	std, err := stats.StandardDeviationSample(vals)
	if err != nil {
		return 0
	}
	return std / m
}

func variance(vals []float64) float64 {
	m := meanOf(vals)
	var sum float64
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(vals))
}
