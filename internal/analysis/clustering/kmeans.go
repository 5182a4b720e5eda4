// Package clustering groups districts by k-means over standardized activity
// features (update_ratio, biometric_compliance, enrolment_growth_rate) and
// labels each cluster with a human-readable activity profile.
package clustering

import (
	"log"
	"math"
	"math/rand"
	"sort"

	dm "aadhaarlens/domain/metrics"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultClusters is the k used for district segmentation.
	DefaultClusters = 4
	// restarts and maxIterations bound the Lloyd iterations; the fixed seed
	// keeps cluster assignment reproducible across runs.
	restarts      = 10
	maxIterations = 100
	seed          = 42
)

// Cluster activity labels.
const (
	LabelHighActivityQuality     = "High Activity & Quality"
	LabelHighActivity            = "High Activity"
	LabelModerateActivityQuality = "Moderate Activity & Quality"
	LabelModerateActivity        = "Moderate Activity"
	LabelQualityFocused          = "Quality Focused"
	LabelLowEngagement           = "Low Engagement"
)

// DistrictFeatures is one district's clustering input plus its assignment.
type DistrictFeatures struct {
	State    string `json:"state"`
	District string `json:"district"`

	UpdateRatio         float64 `json:"update_ratio"`
	BiometricCompliance float64 `json:"biometric_compliance"`
	EnrolmentGrowthRate float64 `json:"enrolment_growth_rate"`
	TotalHolders        float64 `json:"total_holders"`
	DemoUpdateRatio     float64 `json:"demo_update_ratio"`
	BioUpdateRatio      float64 `json:"bio_update_ratio"`

	Cluster int `json:"cluster"`
}

// Profile describes one cluster: averages over its members, the label derived
// from them, and the guidance attached to that label.
type Profile struct {
	Cluster         int            `json:"cluster"`
	Label           string         `json:"label"`
	Size            int            `json:"size"`
	AvgUpdateRatio  float64        `json:"avg_update_ratio"`
	AvgCompliance   float64        `json:"avg_compliance"`
	AvgGrowthRate   float64        `json:"avg_growth_rate"`
	TotalPopulation float64        `json:"total_population"`
	States          int            `json:"states"`
	TopStates       map[string]int `json:"top_states"`
	Recommendations []string       `json:"recommendations"`
}

// Summary is the full clustering output.
type Summary struct {
	Clusters       []Profile          `json:"clusters"`
	Districts      []DistrictFeatures `json:"districts"`
	TotalDistricts int                `json:"total_districts"`
}

// Clusterer assigns districts to k groups.
type Clusterer struct {
	k int
}

// NewClusterer builds a clusterer; k below 1 falls back to the default.
func NewClusterer(k int) *Clusterer {
	if k < 1 {
		k = DefaultClusters
	}
	return &Clusterer{k: k}
}

// PrepareFeatures collapses monthly metric rows into one feature vector per
// district: mean ratios and growth, summed holders. Non-finite inputs land as
// zeros so a single bad row cannot poison the standardization.
func (c *Clusterer) PrepareFeatures(rows []dm.MetricRecord) []DistrictFeatures {
	type key struct{ state, district string }
	type acc struct {
		n                         int
		ratio, compliance, growth float64
		holders, demo, bio        float64
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
		a.ratio += finite(row.UpdateRatio)
		a.compliance += finite(row.BiometricCompliance)
		a.growth += finite(row.EnrolmentGrowthRate)
		a.holders += finite(row.TotalHolders)
		a.demo += finite(row.DemoUpdateRatio)
		a.bio += finite(row.BioUpdateRatio)
	}

	out := make([]DistrictFeatures, 0, len(accs))
	for k, a := range accs {
		n := float64(a.n)
		out = append(out, DistrictFeatures{
			State:               k.state,
			District:            k.district,
			UpdateRatio:         a.ratio / n,
			BiometricCompliance: a.compliance / n,
			EnrolmentGrowthRate: a.growth / n,
			TotalHolders:        a.holders,
			DemoUpdateRatio:     a.demo / n,
			BioUpdateRatio:      a.bio / n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].District < out[j].District
	})
	return out
}

// Run clusters the districts and assembles labeled profiles. With fewer
// districts than k the effective k shrinks to the district count.
func (c *Clusterer) Run(rows []dm.MetricRecord) Summary {
	districts := c.PrepareFeatures(rows)
	if len(districts) == 0 {
		return Summary{}
	}

	k := c.k
	if len(districts) < k {
		k = len(districts)
	}

	points := standardize(featureMatrix(districts))
	assignments := kmeans(points, k)
	for i := range districts {
		districts[i].Cluster = assignments[i]
	}

	profiles := c.profiles(districts, k)
	log.Printf("[Clustering] grouped %d districts into %d clusters", len(districts), len(profiles))
	return Summary{
		Clusters:       profiles,
		Districts:      districts,
		TotalDistricts: len(districts),
	}
}

// profiles computes per-cluster averages, then derives labels and attaches
// recommendations. Profiles are ordered by ascending activity.
func (c *Clusterer) profiles(districts []DistrictFeatures, k int) []Profile {
	byCluster := make(map[int][]DistrictFeatures)
	for _, d := range districts {
		byCluster[d.Cluster] = append(byCluster[d.Cluster], d)
	}

	profiles := make([]Profile, 0, k)
	for id, members := range byCluster {
		p := Profile{Cluster: id, Size: len(members), TopStates: map[string]int{}}
		states := make(map[string]int)
		for _, m := range members {
			p.AvgUpdateRatio += m.UpdateRatio
			p.AvgCompliance += m.BiometricCompliance
			p.AvgGrowthRate += m.EnrolmentGrowthRate
			p.TotalPopulation += m.TotalHolders
			states[m.State]++
		}
		n := float64(len(members))
		p.AvgUpdateRatio /= n
		p.AvgCompliance /= n
		p.AvgGrowthRate /= n
		p.States = len(states)
		p.TopStates = topStates(states, 3)
		p.Label = classify(p)
		p.Recommendations = recommendations(p.Label)
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].AvgUpdateRatio < profiles[j].AvgUpdateRatio
	})
	return profiles
}

// classify maps a cluster's average activity and compliance to its label.
func classify(p Profile) string {
	switch {
	case p.AvgUpdateRatio > 2.0 && p.AvgCompliance > 0.8:
		return LabelHighActivityQuality
	case p.AvgUpdateRatio > 2.0:
		return LabelHighActivity
	case p.AvgUpdateRatio > 1.0 && p.AvgCompliance > 0.6:
		return LabelModerateActivityQuality
	case p.AvgUpdateRatio > 1.0:
		return LabelModerateActivity
	case p.AvgCompliance > 0.6:
		return LabelQualityFocused
	default:
		return LabelLowEngagement
	}
}

func recommendations(label string) []string {
	switch {
	case label == LabelHighActivityQuality || label == LabelHighActivity:
		return []string{
			"Monitor for data quality issues due to high activity",
			"Consider these districts as best practice examples",
			"Investigate factors driving high engagement",
		}
	case label == LabelLowEngagement:
		return []string{
			"Implement awareness campaigns",
			"Improve service accessibility",
			"Investigate barriers to update activity",
		}
	case label == LabelQualityFocused:
		return []string{
			"Maintain current quality standards",
			"Share best practices with other districts",
			"Monitor for any decline in engagement",
		}
	default:
		return []string{
			"Balanced approach - maintain current levels",
			"Monitor trends for any significant changes",
			"Consider targeted improvements where needed",
		}
	}
}

// featureMatrix extracts the three clustering dimensions per district.
func featureMatrix(districts []DistrictFeatures) [][]float64 {
	points := make([][]float64, len(districts))
	for i, d := range districts {
		points[i] = []float64{d.UpdateRatio, d.BiometricCompliance, d.EnrolmentGrowthRate}
	}
	return points
}

// standardize scales each column to zero mean and unit variance. Columns with
// zero spread stay at zero so they carry no distance weight.
func standardize(points [][]float64) [][]float64 {
	if len(points) == 0 {
		return points
	}
	dims := len(points[0])
	means := make([]float64, dims)
	stds := make([]float64, dims)
	for d := 0; d < dims; d++ {
		for _, p := range points {
			means[d] += p[d]
		}
		means[d] /= float64(len(points))
		for _, p := range points {
			diff := p[d] - means[d]
			stds[d] += diff * diff
		}
		stds[d] = math.Sqrt(stds[d] / float64(len(points)))
	}

	scaled := make([][]float64, len(points))
	for i, p := range points {
		scaled[i] = make([]float64, dims)
		for d := 0; d < dims; d++ {
			if stds[d] > 0 {
				scaled[i][d] = (p[d] - means[d]) / stds[d]
			}
		}
	}
	return scaled
}

// kmeans runs Lloyd's algorithm with a fixed seed and several random
// restarts, keeping the assignment with the lowest inertia.
func kmeans(points [][]float64, k int) []int {
	rng := rand.New(rand.NewSource(seed))

	best := make([]int, len(points))
	bestInertia := math.Inf(1)
	for r := 0; r < restarts; r++ {
		assignments, inertia := lloyd(points, k, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			copy(best, assignments)
		}
	}
	return best
}

func lloyd(points [][]float64, k int, rng *rand.Rand) ([]int, float64) {
	dims := len(points[0])

	// Seed centroids from distinct random points.
	centroids := make([][]float64, k)
	for i, idx := range rng.Perm(len(points))[:k] {
		centroids[i] = append([]float64(nil), points[idx]...)
	}

	assignments := make([]int, len(points))
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			nearest := 0
			nearestDist := math.Inf(1)
			for c, centroid := range centroids {
				if d := floats.Distance(p, centroid, 2); d < nearestDist {
					nearest, nearestDist = c, d
				}
			}
			if assignments[i] != nearest {
				assignments[i] = nearest
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			counts[assignments[i]]++
			floats.Add(sums[assignments[i]], p)
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Re-seed an empty cluster to keep k groups alive.
				centroids[c] = append([]float64(nil), points[rng.Intn(len(points))]...)
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			centroids[c] = sums[c]
		}
	}

	inertia := 0.0
	for i, p := range points {
		d := floats.Distance(p, centroids[assignments[i]], 2)
		inertia += d * d
	}
	return assignments, inertia
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// topStates returns the n most frequent states with their member counts.
func topStates(counts map[string]int, n int) map[string]int {
	type sc struct {
		state string
		count int
	}
	all := make([]sc, 0, len(counts))
	for s, c := range counts {
		all = append(all, sc{s, c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].state < all[j].state
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make(map[string]int, len(all))
	for _, e := range all {
		out[e.state] = e.count
	}
	return out
}
