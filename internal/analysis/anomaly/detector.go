// Package anomaly implements the rule cascade that classifies district
// summary rows as normal, warning or critical and assigns each a score in
// [0, 1].
package anomaly

import (
	"log"
	"math"
	"sort"

	da "aadhaarlens/domain/anomaly"
	dm "aadhaarlens/domain/metrics"
	apperrors "aadhaarlens/internal/errors"

	"github.com/montanaflynn/stats"
)

// Rule thresholds. The cascade checks rules in order and the first match wins.
const (
	// RatioMeanMultiple flags a district whose ratio exceeds this multiple
	// of its state mean.
	RatioMeanMultiple = 10.0
	// ComplianceFloor is the biometric compliance below which a district is
	// suspicious.
	ComplianceFloor = 0.1
	// DeviationSigma is the batch-mode deviation cutoff in standard
	// deviations.
	DeviationSigma = 3.0
	// ZScoreCritical and ZScoreWarning are the strict-mode cutoffs.
	ZScoreCritical = 3.0
	ZScoreWarning  = 2.0
	// DormantHolderFloor flags large holder bases reporting zero updates.
	DormantHolderFloor = 1000.0
	// ScoreRatioTrigger gates the ratio-extremity term of the batch score.
	ScoreRatioTrigger = 5.0
)

// Config tunes the detector. Zero value is not usable; start from
// DefaultConfig.
type Config struct {
	Strictness da.Strictness
}

// DefaultConfig returns the batch cascade.
func DefaultConfig() Config {
	return Config{Strictness: da.StrictnessBatch}
}

// Validate checks the config before a run.
func (c Config) Validate() error {
	if !c.Strictness.Valid() {
		return apperrors.ConfigInvalid("unknown anomaly strictness: " + string(c.Strictness))
	}
	return nil
}

// Detector classifies district summaries against per-state statistics.
type Detector struct {
	cfg Config
}

// NewDetector builds a detector, falling back to the default cascade when the
// config is invalid.
func NewDetector(cfg Config) *Detector {
	if err := cfg.Validate(); err != nil {
		log.Printf("[Anomaly] invalid config (%v), using defaults", err)
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg}
}

// StateStats computes the per-state update_ratio distribution once for the
// whole batch. States with a single district get a zero std, which disables
// the deviation and z-score rules for them.
func (d *Detector) StateStats(rows []dm.DistrictSummary) map[string]da.StateStats {
	ratios := make(map[string][]float64)
	for _, row := range rows {
		ratios[row.State] = append(ratios[row.State], row.UpdateRatio)
	}

	out := make(map[string]da.StateStats, len(ratios))
	for state, vals := range ratios {
		mean, err := stats.Mean(vals)
		if err != nil {
			continue
		}
		std := 0.0
		if len(vals) > 1 {
			if s, err := stats.StandardDeviationSample(vals); err == nil {
				std = s
			}
		}
		maxDev := 0.0
		for _, v := range vals {
			if dev := math.Abs(v - mean); dev > maxDev {
				maxDev = dev
			}
		}
		out[state] = da.StateStats{
			State:           state,
			Count:           len(vals),
			MeanRatio:       mean,
			StdRatio:        std,
			MaxAbsDeviation: maxDev,
		}
	}
	return out
}

// Detect runs the cascade over every district summary and returns one verdict
// per row, in input order. State statistics are computed once up front so
// classification is consistent across districts within a state.
func (d *Detector) Detect(rows []dm.DistrictSummary) []da.Verdict {
	byState := d.StateStats(rows)

	verdicts := make([]da.Verdict, 0, len(rows))
	for _, row := range rows {
		verdicts = append(verdicts, d.classify(row, byState[row.State]))
	}

	sum := Summarize(verdicts)
	log.Printf("[Anomaly] classified %d districts: %d critical, %d warning, %d normal (%s cascade)",
		sum.Total, sum.Critical, sum.Warning, sum.Normal, d.cfg.Strictness)
	return verdicts
}

func (d *Detector) classify(row dm.DistrictSummary, st da.StateStats) da.Verdict {
	v := da.Verdict{
		State:               row.State,
		District:            row.District,
		Flag:                da.FlagNormal,
		UpdateRatio:         row.UpdateRatio,
		BiometricCompliance: row.BiometricCompliance,
		DeviationFromMean:   row.UpdateRatio - st.MeanRatio,
	}
	if st.StdRatio > 0 {
		v.ZScore = (row.UpdateRatio - st.MeanRatio) / st.StdRatio
	}

	switch {
	case st.MeanRatio > 0 && row.UpdateRatio > RatioMeanMultiple*st.MeanRatio:
		v.Flag = da.FlagCritical
		v.Rule = 1
		v.Reasons = append(v.Reasons, "update ratio exceeds 10x state mean")

	case row.BiometricCompliance < ComplianceFloor:
		v.Flag = da.FlagWarning
		v.Rule = 2
		v.Reasons = append(v.Reasons, "biometric compliance below floor")

	case d.dispersionRule(&v, st):
		// flag, rule and reason set by dispersionRule

	case row.TotalHolders > DormantHolderFloor && row.TotalUpdates == 0:
		v.Flag = da.FlagCritical
		v.Rule = 4
		v.Reasons = append(v.Reasons, "large holder base with zero updates")
	}

	v.Score = d.score(row, v, st)
	return v
}

// dispersionRule applies rule 3, which differs between cascades. It mutates v
// and reports whether the rule fired.
func (d *Detector) dispersionRule(v *da.Verdict, st da.StateStats) bool {
	if st.StdRatio <= 0 {
		return false
	}
	if d.cfg.Strictness == da.StrictnessZScore {
		switch {
		case v.ZScore > ZScoreCritical:
			v.Flag = da.FlagCritical
			v.Rule = 3
			v.Reasons = append(v.Reasons, "update ratio z-score above critical cutoff")
			return true
		case v.ZScore > ZScoreWarning:
			v.Flag = da.FlagWarning
			v.Rule = 3
			v.Reasons = append(v.Reasons, "update ratio z-score above warning cutoff")
			return true
		}
		return false
	}
	if math.Abs(v.DeviationFromMean) > DeviationSigma*st.StdRatio {
		v.Flag = da.FlagWarning
		v.Rule = 3
		v.Reasons = append(v.Reasons, "update ratio deviates more than 3 sigma from state mean")
		return true
	}
	return false
}

// score blends the rule inputs into a single [0, 1] severity. The two
// cascades weigh the terms differently; the batch blend is the authoritative
// one and the z-score blend exists for the stricter live cascade.
func (d *Detector) score(row dm.DistrictSummary, v da.Verdict, st da.StateStats) float64 {
	if d.cfg.Strictness == da.StrictnessZScore {
		z := math.Min(math.Abs(v.ZScore)/5.0, 1.0)
		comp := 1.0 - math.Min(row.BiometricCompliance, 1.0)
		return clamp01(0.6*z + 0.4*comp)
	}

	devTerm := 0.0
	if st.MaxAbsDeviation > 0 {
		devTerm = math.Abs(v.DeviationFromMean) / st.MaxAbsDeviation
	}
	compTerm := 1.0 - clamp01(row.BiometricCompliance)
	ratioTerm := 0.0
	if row.UpdateRatio > ScoreRatioTrigger {
		ratioTerm = clamp01(row.UpdateRatio / RatioMeanMultiple)
	}
	return clamp01(0.4*devTerm + 0.3*compTerm + 0.3*ratioTerm)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Summarize folds a verdict slice into counts by flag.
func Summarize(verdicts []da.Verdict) da.Summary {
	var s da.Summary
	for _, v := range verdicts {
		s.Add(v)
	}
	return s
}

// TopAnomalies returns the n highest-scoring non-normal verdicts, most severe
// first, ties broken by score then name for deterministic output.
func TopAnomalies(verdicts []da.Verdict, n int) []da.Verdict {
	flagged := make([]da.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Flag != da.FlagNormal {
			flagged = append(flagged, v)
		}
	}
	sort.Slice(flagged, func(i, j int) bool {
		a, b := flagged[i], flagged[j]
		if a.Flag != b.Flag {
			return a.Flag.MoreSevere(b.Flag)
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.State != b.State {
			return a.State < b.State
		}
		return a.District < b.District
	})
	if n > 0 && len(flagged) > n {
		flagged = flagged[:n]
	}
	return flagged
}
