package clustering

import (
	"fmt"
	"testing"

	"aadhaarlens/domain/core"
	"aadhaarlens/domain/dataset"
	dm "aadhaarlens/domain/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(state, district string, ratio, compliance, growth float64) dm.MetricRecord {
	return dm.MetricRecord{
		MergedRecord: dataset.MergedRecord{
			Key: dataset.Key{YearMonth: core.YearMonth("2023-01"), State: state, District: district},
		},
		UpdateRatio:         ratio,
		BiometricCompliance: compliance,
		EnrolmentGrowthRate: growth,
		TotalHolders:        1000,
	}
}

// corners builds m districts near each of two well-separated feature corners.
func corners(m int) []dm.MetricRecord {
	rows := make([]dm.MetricRecord, 0, 2*m)
	for i := 0; i < m; i++ {
		jitter := float64(i) * 0.01
		rows = append(rows,
			row("Kerala", fmt.Sprintf("Hi%02d", i), 3.0+jitter, 0.9, 0.1),
			row("Bihar", fmt.Sprintf("Lo%02d", i), 0.1+jitter, 0.1, 0.0),
		)
	}
	return rows
}

func TestRunSeparatesDistinctGroups(t *testing.T) {
	summary := NewClusterer(2).Run(corners(5))
	require.Equal(t, 10, summary.TotalDistricts)

	byDistrict := make(map[string]int)
	for _, d := range summary.Districts {
		byDistrict[d.District] = d.Cluster
	}
	// All high-activity districts share one cluster, all low another.
	for i := 1; i < 5; i++ {
		assert.Equal(t, byDistrict["Hi00"], byDistrict[fmt.Sprintf("Hi%02d", i)])
		assert.Equal(t, byDistrict["Lo00"], byDistrict[fmt.Sprintf("Lo%02d", i)])
	}
	assert.NotEqual(t, byDistrict["Hi00"], byDistrict["Lo00"])
}

func TestRunIsDeterministic(t *testing.T) {
	first := NewClusterer(2).Run(corners(5))
	second := NewClusterer(2).Run(corners(5))
	assert.Equal(t, first.Districts, second.Districts)
}

func TestProfilesOrderedAndLabeled(t *testing.T) {
	summary := NewClusterer(2).Run(corners(5))
	require.Len(t, summary.Clusters, 2)

	low, high := summary.Clusters[0], summary.Clusters[1]
	assert.Less(t, low.AvgUpdateRatio, high.AvgUpdateRatio)
	assert.Equal(t, LabelLowEngagement, low.Label)
	assert.Equal(t, LabelHighActivityQuality, high.Label)
	assert.Equal(t, 5, low.Size)
	assert.Equal(t, map[string]int{"Bihar": 5}, low.TopStates)
	assert.NotEmpty(t, low.Recommendations)
}

func TestFewerDistrictsThanK(t *testing.T) {
	rows := []dm.MetricRecord{
		row("Kerala", "A", 3.0, 0.9, 0.1),
		row("Bihar", "B", 0.1, 0.1, 0.0),
	}
	summary := NewClusterer(DefaultClusters).Run(rows)

	assert.Equal(t, 2, summary.TotalDistricts)
	assert.Len(t, summary.Clusters, 2)
}

func TestEmptyInput(t *testing.T) {
	summary := NewClusterer(DefaultClusters).Run(nil)
	assert.Zero(t, summary.TotalDistricts)
	assert.Empty(t, summary.Clusters)
}

func TestPrepareFeaturesAveragesMonths(t *testing.T) {
	rows := []dm.MetricRecord{
		row("Kerala", "A", 1.0, 0.4, 0.0),
		row("Kerala", "A", 3.0, 0.8, 0.2),
	}
	rows[1].YearMonth = core.YearMonth("2023-02")

	features := NewClusterer(2).PrepareFeatures(rows)
	require.Len(t, features, 1)
	assert.InDelta(t, 2.0, features[0].UpdateRatio, 1e-9)
	assert.InDelta(t, 0.6, features[0].BiometricCompliance, 1e-9)
	assert.Equal(t, 2000.0, features[0].TotalHolders)
}

func TestClassifyLabels(t *testing.T) {
	cases := []struct {
		ratio, compliance float64
		want              string
	}{
		{3.0, 0.9, LabelHighActivityQuality},
		{3.0, 0.5, LabelHighActivity},
		{1.5, 0.7, LabelModerateActivityQuality},
		{1.5, 0.3, LabelModerateActivity},
		{0.5, 0.7, LabelQualityFocused},
		{0.5, 0.3, LabelLowEngagement},
	}
	for _, tc := range cases {
		got := classify(Profile{AvgUpdateRatio: tc.ratio, AvgCompliance: tc.compliance})
		assert.Equal(t, tc.want, got, "ratio=%v compliance=%v", tc.ratio, tc.compliance)
	}
}
