package geolink

import (
	"encoding/json"
	"testing"

	da "aadhaarlens/domain/anomaly"
	"aadhaarlens/domain/geography"
	dm "aadhaarlens/domain/metrics"

	"aadhaarlens/adapters/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shape(state, district string) geo.Boundary {
	return geo.Boundary{
		State:    state,
		District: district,
		Geometry: json.RawMessage(`{"type":"Polygon","coordinates":[]}`),
	}
}

func summary(state, district string, ratio, compliance float64) dm.DistrictSummary {
	return dm.DistrictSummary{
		State:               state,
		District:            district,
		UpdateRatio:         ratio,
		BiometricCompliance: compliance,
		TotalHolders:        1000,
		TotalUpdates:        100,
	}
}

func verdict(state, district string, flag da.Flag, score float64) da.Verdict {
	return da.Verdict{State: state, District: district, Flag: flag, Score: score}
}

func newLinker(t *testing.T) *Linker {
	t.Helper()
	return NewLinker(geography.NewNormalizer(), 0)
}

func districtRows(res DistrictResult) map[string]DistrictRow {
	out := make(map[string]DistrictRow)
	for _, r := range res.Rows {
		out[r.District] = r
	}
	return out
}

func TestLinkDistrictsCollapsesCollidingNames(t *testing.T) {
	// Bangalore and Bengaluru both normalize to Bengaluru Urban: the shape
	// must inherit the worst case, not whichever row merged last.
	boundaries := []geo.Boundary{shape("Karnataka", "Bengaluru Urban")}
	summaries := []dm.DistrictSummary{
		summary("Karnataka", "Bangalore", 0.5, 0.8),
		summary("Karnataka", "Bengaluru", 2.0, 0.4),
	}
	verdicts := []da.Verdict{
		verdict("Karnataka", "Bangalore", da.FlagWarning, 0.3),
		verdict("Karnataka", "Bengaluru", da.FlagCritical, 0.9),
	}

	res := newLinker(t).LinkDistricts(boundaries, summaries, verdicts)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.True(t, row.Matched)
	assert.Equal(t, 2, row.SourceRows)
	assert.Equal(t, 0.9, row.AnomalyScore)
	assert.Equal(t, da.FlagCritical, row.AnomalyFlag)
	assert.Equal(t, 2.0, row.UpdateRatio)
	assert.InDelta(t, 0.6, row.BiometricCompliance, 1e-9)
	assert.Equal(t, 0, res.UnmatchedShapes)
	assert.Equal(t, 0, res.UnmatchedSources)
}

func TestLinkDistrictsRetainsUnmatchedShapes(t *testing.T) {
	boundaries := []geo.Boundary{
		shape("Karnataka", "Bengaluru Urban"),
		shape("Kerala", "Kollam"),
	}
	summaries := []dm.DistrictSummary{summary("Karnataka", "Bangalore", 0.5, 0.8)}
	verdicts := []da.Verdict{verdict("Karnataka", "Bangalore", da.FlagNormal, 0.1)}

	res := newLinker(t).LinkDistricts(boundaries, summaries, verdicts)
	require.Len(t, res.Rows, 2)

	rows := districtRows(res)
	kollam := rows["Kollam"]
	assert.False(t, kollam.Matched)
	assert.Equal(t, da.FlagNoData, kollam.AnomalyFlag)
	assert.Zero(t, kollam.UpdateRatio)
	assert.Zero(t, kollam.TotalHolders)
	assert.NotNil(t, kollam.Geometry, "shape geometry survives the join")
	assert.Equal(t, 1, res.UnmatchedShapes)
}

func TestLinkDistrictsFuzzyRescuesResidualNames(t *testing.T) {
	boundaries := []geo.Boundary{shape("West Bengal", "North 24 Parganas")}
	// A trailing typo that no alias covers, close enough for fuzzy match.
	summaries := []dm.DistrictSummary{summary("West Bengal", "North 24 Parganass", 0.7, 0.5)}
	verdicts := []da.Verdict{verdict("West Bengal", "North 24 Parganass", da.FlagNormal, 0.2)}

	res := newLinker(t).LinkDistricts(boundaries, summaries, verdicts)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].Matched)
	assert.Equal(t, 0.7, res.Rows[0].UpdateRatio)
	assert.Equal(t, 1, res.FuzzyMatched)
	assert.Equal(t, 0, res.UnmatchedSources)
}

func TestLinkDistrictsHonorsCustomThreshold(t *testing.T) {
	boundaries := []geo.Boundary{shape("West Bengal", "North 24 Parganas")}
	summaries := []dm.DistrictSummary{summary("West Bengal", "North 24 Parganass", 0.7, 0.5)}

	// At 100 only exact matches survive, so the default-threshold rescue
	// above must not happen.
	strict := NewLinker(geography.NewNormalizer(), 100)
	res := strict.LinkDistricts(boundaries, summaries, nil)
	assert.Equal(t, 0, res.FuzzyMatched)
	assert.Equal(t, 1, res.UnmatchedSources)
	assert.Equal(t, 1, res.UnmatchedShapes)

	lenient := NewLinker(geography.NewNormalizer(), 50)
	res = lenient.LinkDistricts(boundaries, summaries, nil)
	assert.Equal(t, 1, res.FuzzyMatched)
	assert.Equal(t, 0, res.UnmatchedSources)
}

func TestLinkDistrictsCountsUnmatchedSources(t *testing.T) {
	boundaries := []geo.Boundary{shape("Kerala", "Kollam")}
	summaries := []dm.DistrictSummary{summary("Karnataka", "Zzzzz", 0.5, 0.8)}

	res := newLinker(t).LinkDistricts(boundaries, summaries, nil)
	assert.Equal(t, 1, res.UnmatchedSources)
	assert.Equal(t, 1, res.UnmatchedShapes)
}

func TestLinkDistrictsMissingVerdictDefaultsToNormal(t *testing.T) {
	boundaries := []geo.Boundary{shape("Kerala", "Kollam")}
	summaries := []dm.DistrictSummary{summary("Kerala", "Kollam", 0.5, 0.8)}

	res := newLinker(t).LinkDistricts(boundaries, summaries, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, da.FlagNormal, res.Rows[0].AnomalyFlag)
}

func TestLinkStatesAggregatesDistricts(t *testing.T) {
	boundaries := []geo.Boundary{
		shape("Kerala", "Kollam"),
		shape("Goa", "North Goa"),
	}
	summaries := []dm.DistrictSummary{
		summary("Kerala", "Kollam", 0.4, 0.6),
		summary("Kerala", "Thrissur", 0.8, 0.8),
	}

	res := newLinker(t).LinkStates(boundaries, summaries)
	require.Len(t, res.Rows, 2)

	byState := make(map[string]StateRow)
	for _, r := range res.Rows {
		byState[r.State] = r
	}

	kerala := byState["Kerala"]
	assert.True(t, kerala.Matched)
	assert.InDelta(t, 0.6, kerala.UpdateRatio, 1e-9)
	assert.InDelta(t, 0.7, kerala.BiometricCompliance, 1e-9)
	assert.Equal(t, 2000.0, kerala.TotalHolders)
	assert.Equal(t, 200.0, kerala.TotalUpdates)

	assert.False(t, byState["Goa"].Matched)
	assert.Equal(t, 1, res.UnmatchedShapes)
}

func TestLinkStatesNormalizesSpellings(t *testing.T) {
	boundaries := []geo.Boundary{shape("Odisha", "Cuttack")}
	summaries := []dm.DistrictSummary{
		summary("Orissa", "Cuttack", 0.4, 0.6),
		summary("ODISHA", "Puri", 0.8, 0.8),
	}

	res := newLinker(t).LinkStates(boundaries, summaries)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].Matched)
	assert.InDelta(t, 0.6, res.Rows[0].UpdateRatio, 1e-9)
	assert.Equal(t, 0, res.UnmatchedSources)
}
