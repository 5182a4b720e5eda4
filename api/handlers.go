package api

import (
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/montanaflynn/stats"

	"aadhaarlens/domain/core"
	dm "aadhaarlens/domain/metrics"
	anomalyengine "aadhaarlens/internal/analysis/anomaly"
)

// handleHealth reports liveness plus the pipeline lifecycle state.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, lastErr := a.pipeline.Status()
	payload := map[string]interface{}{
		"status":   "ok",
		"pipeline": string(status),
	}
	if lastErr != "" {
		payload["last_error"] = lastErr
	}
	a.respondJSON(w, payload)
}

// handleReload triggers a fresh pipeline run. Only one run may be in
// flight at a time.
func (a *App) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := a.pipeline.Run(r.Context()); err != nil {
		if errors.Is(err, core.ErrRunInFlight) {
			a.respondError(w, http.StatusConflict, "a pipeline run is already in flight")
			return
		}
		// Bad or missing source data is the caller's problem to resolve,
		// not a server fault.
		if core.IsInputError(err) {
			a.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		a.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snap, ok := a.snapshot(w)
	if !ok {
		return
	}
	a.respondJSON(w, map[string]interface{}{
		"status": "reloaded",
		"run_id": snap.RunID,
	})
}

// handleOverview returns headline KPIs and the top states by update ratio.
func (a *App) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	var totalHolders, totalUpdates, ratioSum float64
	for _, d := range snap.DistrictSummaries {
		totalHolders += d.TotalHolders
		totalUpdates += d.TotalUpdates
		ratioSum += d.UpdateRatio
	}
	avgRatio := 0.0
	if len(snap.DistrictSummaries) > 0 {
		avgRatio = ratioSum / float64(len(snap.DistrictSummaries))
	}

	a.respondJSON(w, map[string]interface{}{
		"run_id":       snap.RunID,
		"generated_at": snap.GeneratedAt,
		"kpis": map[string]interface{}{
			"total_holders":    totalHolders,
			"total_updates":    totalUpdates,
			"avg_update_ratio": round3(avgRatio),
			"total_districts":  len(snap.DistrictSummaries),
		},
		"top_states":      topStatesByRatio(snap.StateSummaries, 10),
		"anomaly_summary": snap.AnomalySummary,
	})
}

// handleStates returns the sorted list of states present in the data.
func (a *App) handleStates(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	seen := make(map[string]bool)
	var states []string
	for _, d := range snap.DistrictSummaries {
		if !seen[d.State] {
			seen[d.State] = true
			states = append(states, d.State)
		}
	}
	sort.Strings(states)

	a.respondJSON(w, map[string]interface{}{"states": states})
}

// handleDistricts returns every district summary row.
func (a *App) handleDistricts(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	a.respondJSON(w, map[string]interface{}{
		"districts": snap.DistrictSummaries,
		"count":     len(snap.DistrictSummaries),
	})
}

// handleStateDistricts returns the sorted district names for one state.
func (a *App) handleStateDistricts(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	state := chi.URLParam(r, "state")
	var districts []string
	for _, d := range snap.DistrictSummaries {
		if strings.EqualFold(d.State, state) {
			districts = append(districts, d.District)
		}
	}
	if len(districts) == 0 {
		a.respondError(w, http.StatusNotFound, "state not found: "+state)
		return
	}
	sort.Strings(districts)

	a.respondJSON(w, map[string]interface{}{
		"state":     state,
		"districts": districts,
	})
}

// handleGeo serves the boundary-linked rows at state or district level.
func (a *App) handleGeo(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	switch chi.URLParam(r, "level") {
	case "district":
		if snap.GeoDistricts == nil {
			a.respondError(w, http.StatusServiceUnavailable, "geographic linkage unavailable")
			return
		}
		a.respondJSON(w, snap.GeoDistricts)
	case "state":
		if snap.GeoStates == nil {
			a.respondError(w, http.StatusServiceUnavailable, "geographic linkage unavailable")
			return
		}
		a.respondJSON(w, snap.GeoStates)
	default:
		a.respondError(w, http.StatusBadRequest, "level must be state or district")
	}
}

// handleBoundaryStates lists the states that have a drill-down boundary file.
func (a *App) handleBoundaryStates(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, map[string]interface{}{
		"states": a.pipeline.BoundaryStates(),
	})
}

// handleStateBoundaries serves the raw district shapes for one state's map.
// Boundary files are independent of the pipeline snapshot.
func (a *App) handleStateBoundaries(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	shapes, err := a.pipeline.StateBoundaries(state)
	if err != nil {
		if errors.Is(err, core.ErrBoundaryNotFound) {
			a.respondError(w, http.StatusNotFound, "no boundary file for state: "+state)
			return
		}
		a.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.respondJSON(w, map[string]interface{}{
		"state":    state,
		"features": shapes,
		"count":    len(shapes),
	})
}

// handleTimeSeries returns the national monthly trend: holders and updates
// summed per month, with the ratio recomputed from the totals.
func (a *App) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	type monthAgg struct{ holders, updates float64 }
	byMonth := make(map[string]*monthAgg)
	for _, m := range snap.Metrics {
		e := byMonth[m.YearMonth.String()]
		if e == nil {
			e = &monthAgg{}
			byMonth[m.YearMonth.String()] = e
		}
		e.holders += m.TotalHolders
		e.updates += m.TotalUpdates
	}

	months := make([]string, 0, len(byMonth))
	for ym := range byMonth {
		months = append(months, ym)
	}
	sort.Strings(months)

	trend := make([]map[string]interface{}, 0, len(months))
	for _, ym := range months {
		e := byMonth[ym]
		trend = append(trend, map[string]interface{}{
			"year_month":    ym,
			"total_holders": e.holders,
			"total_updates": e.updates,
			"update_ratio":  round3(dm.SafeRatio(e.updates, e.holders)),
		})
	}

	a.respondJSON(w, map[string]interface{}{
		"available_months": months,
		"national_trend":   trend,
	})
}

// handleMonthlyData returns the per-district rows for one month, with the
// top districts by update ratio and the month's ratio statistics.
func (a *App) handleMonthlyData(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	month := core.YearMonth(chi.URLParam(r, "month"))
	var rows []dm.MetricRecord
	for _, m := range snap.Metrics {
		if m.YearMonth == month {
			rows = append(rows, m)
		}
	}
	if len(rows) == 0 {
		a.respondError(w, http.StatusNotFound, "no data for month "+month.String())
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].State != rows[j].State {
			return rows[i].State < rows[j].State
		}
		return rows[i].District < rows[j].District
	})

	districts := make([]map[string]interface{}, 0, len(rows))
	ratios := make([]float64, 0, len(rows))
	nonZero := 0
	for _, m := range rows {
		districts = append(districts, map[string]interface{}{
			"state":         m.State,
			"district":      m.District,
			"update_ratio":  round3(m.UpdateRatio),
			"total_holders": m.TotalHolders,
			"total_updates": m.TotalUpdates,
		})
		ratios = append(ratios, m.UpdateRatio)
		if m.UpdateRatio > 0 {
			nonZero++
		}
	}

	ranked := make([]dm.MetricRecord, len(rows))
	copy(ranked, rows)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].UpdateRatio > ranked[j].UpdateRatio
	})
	if len(ranked) > 15 {
		ranked = ranked[:15]
	}
	top := make([]map[string]interface{}, 0, len(ranked))
	for _, m := range ranked {
		top = append(top, map[string]interface{}{
			"state":         m.State,
			"district":      m.District,
			"update_ratio":  round3(m.UpdateRatio),
			"total_holders": m.TotalHolders,
		})
	}

	minRatio, _ := stats.Min(stats.Float64Data(ratios))
	maxRatio, _ := stats.Max(stats.Float64Data(ratios))
	meanRatio, _ := stats.Mean(stats.Float64Data(ratios))

	a.respondJSON(w, map[string]interface{}{
		"month":         month.String(),
		"top_districts": top,
		"statistics": map[string]interface{}{
			"total_districts":    len(rows),
			"min_ratio":          round3(minRatio),
			"max_ratio":          round3(maxRatio),
			"mean_ratio":         round3(meanRatio),
			"non_zero_districts": nonZero,
		},
		"district_data": districts,
	})
}

// handleAnomalies returns the anomaly summary and the top flagged districts.
func (a *App) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	limit := a.topN
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	a.respondJSON(w, map[string]interface{}{
		"summary":   snap.AnomalySummary,
		"anomalies": anomalyengine.TopAnomalies(snap.Verdicts, limit),
		"total":     len(snap.Verdicts),
	})
}

// handleAnomalyMap serves the district boundary rows carrying anomaly flags.
func (a *App) handleAnomalyMap(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}
	if snap.GeoDistricts == nil {
		a.respondError(w, http.StatusServiceUnavailable, "geographic linkage unavailable")
		return
	}

	a.respondJSON(w, map[string]interface{}{
		"rows":             snap.GeoDistricts.Rows,
		"unmatched_shapes": snap.GeoDistricts.UnmatchedShapes,
		"fuzzy_matched":    snap.GeoDistricts.FuzzyMatched,
	})
}

// handleCompliance returns the most compliant districts and the distribution
// of compliance across fixed bins.
func (a *App) handleCompliance(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	ranked := make([]dm.DistrictSummary, len(snap.DistrictSummaries))
	copy(ranked, snap.DistrictSummaries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].BiometricCompliance > ranked[j].BiometricCompliance
	})

	top := ranked
	if len(top) > 15 {
		top = top[:15]
	}
	topOut := make([]map[string]interface{}, 0, len(top))
	for _, d := range top {
		topOut = append(topOut, map[string]interface{}{
			"state":                d.State,
			"district":             d.District,
			"biometric_compliance": round3(d.BiometricCompliance),
		})
	}

	a.respondJSON(w, map[string]interface{}{
		"top_compliant": topOut,
		"distribution":  complianceBins(snap.DistrictSummaries),
	})
}

// handleMigration surfaces districts whose demographic churn outpaces their
// biometric activity, the usual signature of migration-heavy areas.
func (a *App) handleMigration(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	var demo, bio []float64
	for _, d := range snap.DistrictSummaries {
		demo = append(demo, d.DemoUpdateRatio)
		bio = append(bio, d.BioUpdateRatio)
	}
	demoMedian, _ := stats.Median(stats.Float64Data(demo))
	bioMedian, _ := stats.Median(stats.Float64Data(bio))

	var heavy []dm.DistrictSummary
	for _, d := range snap.DistrictSummaries {
		if d.DemoUpdateRatio > demoMedian && d.BioUpdateRatio < bioMedian {
			heavy = append(heavy, d)
		}
	}
	sort.SliceStable(heavy, func(i, j int) bool {
		return heavy[i].DemoUpdateRatio > heavy[j].DemoUpdateRatio
	})

	hotspots := heavy
	if len(hotspots) > 10 {
		hotspots = hotspots[:10]
	}
	out := make([]map[string]interface{}, 0, len(hotspots))
	for _, d := range hotspots {
		out = append(out, map[string]interface{}{
			"state":             d.State,
			"district":          d.District,
			"demo_update_ratio": round3(d.DemoUpdateRatio),
			"bio_update_ratio":  round3(d.BioUpdateRatio),
			"total_holders":     d.TotalHolders,
		})
	}

	a.respondJSON(w, map[string]interface{}{
		"demo_median": round3(demoMedian),
		"bio_median":  round3(bioMedian),
		"hotspots":    out,
		"total":       len(heavy),
	})
}

// handleComparison compares two districts side by side.
func (a *App) handleComparison(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	first, ok := findDistrict(snap.DistrictSummaries, q.Get("state_a"), q.Get("district_a"))
	if !ok {
		a.respondError(w, http.StatusNotFound, "district not found: "+q.Get("district_a"))
		return
	}
	second, ok := findDistrict(snap.DistrictSummaries, q.Get("state_b"), q.Get("district_b"))
	if !ok {
		a.respondError(w, http.StatusNotFound, "district not found: "+q.Get("district_b"))
		return
	}

	a.respondJSON(w, map[string]interface{}{
		"a": comparisonCard(first),
		"b": comparisonCard(second),
	})
}

// handlePatterns serves the temporal, spatial and behavioral pattern pass.
func (a *App) handlePatterns(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}
	if snap.Patterns == nil {
		a.respondError(w, http.StatusServiceUnavailable, "pattern analysis unavailable")
		return
	}

	a.respondJSON(w, snap.Patterns)
}

// handleClusters serves the district cluster profiles.
func (a *App) handleClusters(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}
	if snap.Clusters == nil {
		a.respondError(w, http.StatusServiceUnavailable, "cluster analysis unavailable")
		return
	}

	a.respondJSON(w, snap.Clusters)
}

// topStatesByRatio averages per-month state ratios and returns the n highest.
func topStatesByRatio(rows []dm.StateSummary, n int) []map[string]interface{} {
	type acc struct {
		ratioSum float64
		holders  float64
		months   int
	}
	byState := make(map[string]*acc)
	for _, s := range rows {
		entry := byState[s.State]
		if entry == nil {
			entry = &acc{}
			byState[s.State] = entry
		}
		entry.ratioSum += s.UpdateRatio
		entry.holders += s.TotalHolders
		entry.months++
	}

	out := make([]map[string]interface{}, 0, len(byState))
	for state, entry := range byState {
		out = append(out, map[string]interface{}{
			"state":            state,
			"avg_update_ratio": round3(entry.ratioSum / float64(entry.months)),
			"total_holders":    entry.holders,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri := out[i]["avg_update_ratio"].(float64)
		rj := out[j]["avg_update_ratio"].(float64)
		if ri != rj {
			return ri > rj
		}
		return out[i]["state"].(string) < out[j]["state"].(string)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

var complianceBinLabels = []string{"0-25%", "25-50%", "50-75%", "75-100%", "100%+"}

// complianceBins buckets districts by compliance into fixed quartile bins,
// with an open-ended bucket for lag artifacts above 1.0.
func complianceBins(rows []dm.DistrictSummary) []map[string]interface{} {
	edges := []float64{0.25, 0.5, 0.75, 1.0}
	counts := make([]int, len(complianceBinLabels))
	for _, d := range rows {
		idx := len(edges)
		for i, edge := range edges {
			if d.BiometricCompliance < edge {
				idx = i
				break
			}
		}
		counts[idx]++
	}

	out := make([]map[string]interface{}, 0, len(counts))
	for i, label := range complianceBinLabels {
		out = append(out, map[string]interface{}{
			"bin":   label,
			"count": counts[i],
		})
	}
	return out
}

func findDistrict(rows []dm.DistrictSummary, state, district string) (dm.DistrictSummary, bool) {
	for _, d := range rows {
		if strings.EqualFold(d.State, state) && strings.EqualFold(d.District, district) {
			return d, true
		}
	}
	return dm.DistrictSummary{}, false
}

func comparisonCard(d dm.DistrictSummary) map[string]interface{} {
	return map[string]interface{}{
		"state":          d.State,
		"district":       d.District,
		"population":     d.TotalHolders,
		"activity_score": round3(d.UpdateRatio),
		"quality_score":  round3(d.BiometricCompliance),
		"growth_rate":    round3(d.EnrolmentGrowthRate * 100),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
