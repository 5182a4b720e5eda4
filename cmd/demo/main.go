// Command demo serves the analytics API over synthetic district data, so the
// dashboard can be exercised without the UIDAI source files on disk.
package main

import (
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/montanaflynn/stats"

	dm "aadhaarlens/domain/metrics"
	anomalyengine "aadhaarlens/internal/analysis/anomaly"
)

var demoStates = []string{
	"Maharashtra", "Uttar Pradesh", "Karnataka", "Gujarat", "Tamil Nadu",
	"West Bengal", "Rajasthan", "Andhra Pradesh", "Madhya Pradesh", "Odisha",
}

const districtsPerState = 5

// sampleSummaries builds a fixed-seed synthetic district table covering the
// same metric ranges the real pipeline produces.
func sampleSummaries() []dm.DistrictSummary {
	rng := rand.New(rand.NewSource(2025))

	var rows []dm.DistrictSummary
	for _, state := range demoStates {
		for i := 0; i < districtsPerState; i++ {
			holders := float64(100000 + rng.Intn(900000))
			rows = append(rows, dm.DistrictSummary{
				State:               state,
				District:            state + " District " + strconv.Itoa(i+1),
				Months:              12,
				TotalHolders:        holders,
				TotalUpdates:        float64(10000 + rng.Intn(490000)),
				UpdateRatio:         0.1 + rng.Float64()*2.9,
				DemoUpdateRatio:     0.05 + rng.Float64()*1.45,
				BioUpdateRatio:      0.05 + rng.Float64()*1.45,
				BiometricCompliance: 0.2 + rng.Float64()*0.7,
				EnrolmentGrowthRate: -0.1 + rng.Float64()*0.3,
			})
		}
	}
	return rows
}

type demoServer struct {
	rows     []dm.DistrictSummary
	verdicts map[string]string
	scores   map[string]float64
}

func newDemoServer() *demoServer {
	rows := sampleSummaries()

	detector := anomalyengine.NewDetector(anomalyengine.DefaultConfig())
	verdicts := make(map[string]string)
	scores := make(map[string]float64)
	for _, v := range detector.Detect(rows) {
		verdicts[v.State+"/"+v.District] = string(v.Flag)
		scores[v.State+"/"+v.District] = v.Score
	}

	return &demoServer{rows: rows, verdicts: verdicts, scores: scores}
}

func (s *demoServer) router() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": "demo"})
	})
	r.GET("/api/overview", s.handleOverview)
	r.GET("/api/anomalies", s.handleAnomalies)
	r.GET("/api/compliance", s.handleCompliance)
	r.GET("/api/migration", s.handleMigration)
	r.GET("/api/comparison", s.handleComparison)
	r.GET("/api/states", s.handleStates)
	r.GET("/api/districts/:state", s.handleDistricts)

	return r
}

func (s *demoServer) handleOverview(c *gin.Context) {
	var holders, updates, ratioSum float64
	for _, d := range s.rows {
		holders += d.TotalHolders
		updates += d.TotalUpdates
		ratioSum += d.UpdateRatio
	}

	byState := make(map[string]float64)
	counts := make(map[string]int)
	for _, d := range s.rows {
		byState[d.State] += d.UpdateRatio
		counts[d.State]++
	}
	type stateRatio struct {
		State          string  `json:"state"`
		AvgUpdateRatio float64 `json:"avg_update_ratio"`
	}
	var topStates []stateRatio
	for state, sum := range byState {
		topStates = append(topStates, stateRatio{state, sum / float64(counts[state])})
	}
	sort.Slice(topStates, func(i, j int) bool {
		return topStates[i].AvgUpdateRatio > topStates[j].AvgUpdateRatio
	})

	c.JSON(http.StatusOK, gin.H{
		"kpis": gin.H{
			"total_holders":    holders,
			"total_updates":    updates,
			"avg_update_ratio": ratioSum / float64(len(s.rows)),
			"total_districts":  len(s.rows),
		},
		"top_states": topStates,
	})
}

func (s *demoServer) handleAnomalies(c *gin.Context) {
	var anomalies []gin.H
	for _, d := range s.rows {
		key := d.State + "/" + d.District
		flag := s.verdicts[key]
		if flag == "normal" || flag == "" {
			continue
		}
		anomalies = append(anomalies, gin.H{
			"state":         d.State,
			"district":      d.District,
			"anomaly_flag":  flag,
			"anomaly_score": s.scores[key],
			"update_ratio":  d.UpdateRatio,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"anomalies": anomalies,
		"total":     len(s.rows),
	})
}

func (s *demoServer) handleCompliance(c *gin.Context) {
	ranked := make([]dm.DistrictSummary, len(s.rows))
	copy(ranked, s.rows)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].BiometricCompliance > ranked[j].BiometricCompliance
	})
	if len(ranked) > 15 {
		ranked = ranked[:15]
	}

	var top []gin.H
	for _, d := range ranked {
		top = append(top, gin.H{
			"state":                d.State,
			"district":             d.District,
			"biometric_compliance": d.BiometricCompliance,
		})
	}

	c.JSON(http.StatusOK, gin.H{"top_compliant": top})
}

func (s *demoServer) handleMigration(c *gin.Context) {
	var demo, bio []float64
	for _, d := range s.rows {
		demo = append(demo, d.DemoUpdateRatio)
		bio = append(bio, d.BioUpdateRatio)
	}
	demoMedian, _ := stats.Median(stats.Float64Data(demo))
	bioMedian, _ := stats.Median(stats.Float64Data(bio))

	var hotspots []gin.H
	for _, d := range s.rows {
		if d.DemoUpdateRatio > demoMedian && d.BioUpdateRatio < bioMedian {
			hotspots = append(hotspots, gin.H{
				"state":             d.State,
				"district":          d.District,
				"demo_update_ratio": d.DemoUpdateRatio,
				"bio_update_ratio":  d.BioUpdateRatio,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"demo_median": demoMedian,
		"bio_median":  bioMedian,
		"hotspots":    hotspots,
	})
}

func (s *demoServer) handleComparison(c *gin.Context) {
	find := func(state, district string) (dm.DistrictSummary, bool) {
		for _, d := range s.rows {
			if strings.EqualFold(d.State, state) && strings.EqualFold(d.District, district) {
				return d, true
			}
		}
		return dm.DistrictSummary{}, false
	}

	first, ok := find(c.Query("state_a"), c.Query("district_a"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "district not found: " + c.Query("district_a")})
		return
	}
	second, ok := find(c.Query("state_b"), c.Query("district_b"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "district not found: " + c.Query("district_b")})
		return
	}

	card := func(d dm.DistrictSummary) gin.H {
		return gin.H{
			"state":          d.State,
			"district":       d.District,
			"population":     d.TotalHolders,
			"activity_score": d.UpdateRatio,
			"quality_score":  d.BiometricCompliance,
			"growth_rate":    d.EnrolmentGrowthRate * 100,
		}
	}
	c.JSON(http.StatusOK, gin.H{"a": card(first), "b": card(second)})
}

func (s *demoServer) handleStates(c *gin.Context) {
	states := append([]string(nil), demoStates...)
	sort.Strings(states)
	c.JSON(http.StatusOK, gin.H{"states": states})
}

func (s *demoServer) handleDistricts(c *gin.Context) {
	state := c.Param("state")
	var districts []string
	for _, d := range s.rows {
		if strings.EqualFold(d.State, state) {
			districts = append(districts, d.District)
		}
	}
	if len(districts) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "state not found: " + state})
		return
	}
	sort.Strings(districts)
	c.JSON(http.StatusOK, gin.H{"state": state, "districts": districts})
}

func main() {
	port := os.Getenv("DEMO_PORT")
	if port == "" {
		port = "8090"
	}

	log.Printf("[Demo] Serving synthetic data on http://localhost:%s", port)
	log.Fatal(newDemoServer().router().Run(":" + port))
}
