// Package anomaly defines the flag taxonomy and scoring types produced by the
// anomaly detector. The detector itself lives in internal/analysis/anomaly;
// this package holds only pure value types so API handlers and the geo linker
// can consume verdicts without importing the engine.
package anomaly

// Flag is the three-level classification attached to every district-month row.
type Flag string

const (
	FlagNormal   Flag = "normal"
	FlagWarning  Flag = "warning"
	FlagCritical Flag = "critical"
	// FlagNoData marks boundary shapes with no source rows after geo
	// linking; it never comes out of the detector itself.
	FlagNoData Flag = "no_data"
)

// severityRank orders flags for aggregation: a district that is critical in
// any month stays critical in rollups.
func severityRank(f Flag) int {
	switch f {
	case FlagCritical:
		return 2
	case FlagWarning:
		return 1
	default:
		return 0
	}
}

// MoreSevere reports whether f outranks other.
func (f Flag) MoreSevere(other Flag) bool {
	return severityRank(f) > severityRank(other)
}

// MaxSeverity returns the more severe of the two flags.
func MaxSeverity(a, b Flag) Flag {
	if b.MoreSevere(a) {
		return b
	}
	return a
}

// Strictness selects which rule cascade the detector applies.
type Strictness string

const (
	// StrictnessBatch is the default cascade: mean-relative deviation rules
	// with the blended 0.4/0.3/0.3 score.
	StrictnessBatch Strictness = "batch"
	// StrictnessZScore replaces the deviation rule with z-score cutoffs
	// (z > 3 critical, 2 < z <= 3 warning) and the 0.6/0.4 score blend.
	StrictnessZScore Strictness = "zscore"
)

// Valid reports whether s names a known cascade.
func (s Strictness) Valid() bool {
	return s == StrictnessBatch || s == StrictnessZScore
}

// StateStats holds the per-state update_ratio distribution the cascade rules
// compare each district against. Computed once per state over the full batch.
type StateStats struct {
	State     string
	Count     int
	MeanRatio float64
	StdRatio  float64
	// MaxAbsDeviation is the largest |ratio - mean| observed in the state,
	// used to normalise the deviation term of the batch score.
	MaxAbsDeviation float64
}

// Verdict is the detector's output for one district summary row.
type Verdict struct {
	State    string `json:"state"`
	District string `json:"district"`

	Flag  Flag    `json:"anomaly_flag"`
	Score float64 `json:"anomaly_score"` // in [0, 1]

	// Rule is the index (1-based) of the cascade rule that fired, 0 for
	// normal rows. Reasons carries the human-readable explanation.
	Rule    int      `json:"rule,omitempty"`
	Reasons []string `json:"reasons,omitempty"`

	UpdateRatio         float64 `json:"update_ratio"`
	BiometricCompliance float64 `json:"biometric_compliance"`
	DeviationFromMean   float64 `json:"deviation_from_mean"`
	ZScore              float64 `json:"z_score"`
}

// Summary counts verdicts by flag for quick reporting.
type Summary struct {
	Total    int `json:"total"`
	Normal   int `json:"normal"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// Add folds one verdict into the summary.
func (s *Summary) Add(v Verdict) {
	s.Total++
	switch v.Flag {
	case FlagCritical:
		s.Critical++
	case FlagWarning:
		s.Warning++
	default:
		s.Normal++
	}
}
