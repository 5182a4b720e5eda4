// Package app wires the analysis engines into a pipeline service with a
// replace-on-success result snapshot.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"aadhaarlens/adapters/geo"
	"aadhaarlens/domain/anomaly"
	"aadhaarlens/domain/core"
	"aadhaarlens/domain/dataset"
	"aadhaarlens/domain/geography"
	dm "aadhaarlens/domain/metrics"
	"aadhaarlens/internal"
	anomalyengine "aadhaarlens/internal/analysis/anomaly"
	"aadhaarlens/internal/analysis/clustering"
	"aadhaarlens/internal/analysis/geolink"
	"aadhaarlens/internal/analysis/merge"
	metricsengine "aadhaarlens/internal/analysis/metrics"
	"aadhaarlens/internal/analysis/patterns"
	"aadhaarlens/internal/errors"
	"aadhaarlens/ports"
)

// RunStatus is the lifecycle of a pipeline run.
type RunStatus string

const (
	StatusIdle    RunStatus = "idle"
	StatusLoading RunStatus = "loading"
	StatusReady   RunStatus = "ready"
	StatusFailed  RunStatus = "failed"
)

// RunQuality records the tolerated losses and match gaps of one run.
type RunQuality struct {
	Sources    []merge.Quality `json:"sources"`
	MergedRows int             `json:"merged_rows"`
	// UnmatchedShapes / UnmatchedDistricts come from the district geo join.
	UnmatchedShapes    int `json:"unmatched_shapes"`
	UnmatchedDistricts int `json:"unmatched_districts"`
	FuzzyMatched       int `json:"fuzzy_matched"`
	// DegradedStages lists optional analytics that failed this run.
	DegradedStages []string `json:"degraded_stages,omitempty"`
}

// Snapshot is one complete, immutable pipeline result. Optional analytics
// may be nil when their stage failed; baseline metrics are always present.
type Snapshot struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Metrics           []dm.MetricRecord    `json:"-"`
	DistrictSummaries []dm.DistrictSummary `json:"district_summaries"`
	StateSummaries    []dm.StateSummary    `json:"state_summaries"`

	Verdicts       []anomaly.Verdict `json:"verdicts"`
	AnomalySummary anomaly.Summary   `json:"anomaly_summary"`

	Patterns     *patterns.Result        `json:"patterns,omitempty"`
	Clusters     *clustering.Summary     `json:"clusters,omitempty"`
	GeoDistricts *geolink.DistrictResult `json:"-"`
	GeoStates    *geolink.StateResult    `json:"-"`

	Quality RunQuality `json:"quality"`
}

// PipelineService runs the load → merge → metrics → analytics pipeline and
// hands out the latest complete snapshot. A failed run never replaces a good
// snapshot.
type PipelineService struct {
	reader     ports.SourceReader
	boundaries ports.BoundaryLoader
	normalizer *geography.Normalizer

	merger    *merge.Merger
	metrics   *metricsengine.Engine
	detector  *anomalyengine.Detector
	discovery *patterns.Discovery
	clusterer *clustering.Clusterer
	linker    *geolink.Linker

	logger *internal.Logger

	mu       sync.RWMutex
	status   RunStatus
	snapshot *Snapshot
	lastErr  string
	running  bool
}

// Config carries the tunable analysis settings of a pipeline run.
type Config struct {
	// Detector selects the anomaly rule cascade.
	Detector anomalyengine.Config
	// FuzzyThreshold is the minimum similarity score for geo name rescue;
	// zero selects the linker default.
	FuzzyThreshold int
}

// NewPipelineService builds a service around the given adapters.
func NewPipelineService(reader ports.SourceReader, boundaries ports.BoundaryLoader, normalizer *geography.Normalizer, cfg Config) *PipelineService {
	return &PipelineService{
		reader:     reader,
		boundaries: boundaries,
		normalizer: normalizer,
		merger:     merge.NewMerger(normalizer),
		metrics:    metricsengine.NewEngine(),
		detector:   anomalyengine.NewDetector(cfg.Detector),
		discovery:  patterns.NewDiscovery(),
		clusterer:  clustering.NewClusterer(clustering.DefaultClusters),
		linker:     geolink.NewLinker(normalizer, cfg.FuzzyThreshold),
		logger:     internal.NewDefaultLogger(),
		status:     StatusIdle,
	}
}

// Status reports the current lifecycle state and the last run error, if any.
func (s *PipelineService) Status() (RunStatus, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.lastErr
}

// Snapshot returns the latest complete result. core.ErrNotReady until the
// first successful run; a later failed run still serves the previous
// snapshot.
func (s *PipelineService) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, core.ErrNotReady
	}
	return s.snapshot, nil
}

// BoundaryStates lists the states that have a dedicated boundary file for
// drill-down maps.
func (s *PipelineService) BoundaryStates() []string {
	return s.boundaries.AvailableStates()
}

// StateBoundaries loads one state's district shapes. Returns an error
// wrapping core.ErrBoundaryNotFound when the state has no boundary file.
func (s *PipelineService) StateBoundaries(state string) ([]geo.Boundary, error) {
	return s.boundaries.LoadState(state)
}

// Run executes one full pipeline pass. Only one run may be in flight at a
// time; input and configuration errors abort the run, optional analytics
// failures degrade it.
func (s *PipelineService) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return core.ErrRunInFlight
	}
	s.running = true
	s.status = StatusLoading
	s.mu.Unlock()

	runID := uuid.New().String()
	s.logger.Info("[Pipeline] run %s starting", runID)

	snap, err := s.execute(ctx, runID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if err != nil {
		s.status = StatusFailed
		s.lastErr = err.Error()
		s.logger.Error("[Pipeline] run %s failed: %v", runID, err)
		return errors.Wrapf(err, "pipeline run %s", runID)
	}
	s.snapshot = snap
	s.status = StatusReady
	s.lastErr = ""
	s.logger.Info("[Pipeline] run %s ready: %d districts, %d anomalies flagged",
		runID, len(snap.DistrictSummaries), snap.AnomalySummary.Warning+snap.AnomalySummary.Critical)
	return nil
}

// execute performs the actual pipeline stages without touching the published
// snapshot until everything mandatory has succeeded.
func (s *PipelineService) execute(ctx context.Context, runID string) (*Snapshot, error) {
	tables, qualities, err := s.loadSources(ctx)
	if err != nil {
		return nil, err
	}

	merged, err := s.merger.Merge(tables[dataset.SourceEnrolment], tables[dataset.SourceDemographic], tables[dataset.SourceBiometric])
	if err != nil {
		return nil, errors.WithCode(errors.CodeMergeFailed, errors.Wrap(err, "merging sources"))
	}

	metricRows := s.metrics.AddAllMetrics(merged)
	snap := &Snapshot{
		RunID:             runID,
		GeneratedAt:       time.Now().UTC(),
		Metrics:           metricRows,
		DistrictSummaries: s.metrics.DistrictSummaries(metricRows),
		StateSummaries:    s.metrics.StateSummaries(metricRows),
		Quality: RunQuality{
			Sources:    qualities,
			MergedRows: len(merged),
		},
	}

	// Optional analytics: each failure degrades the snapshot, never the run.
	s.stage(snap, "anomaly", func() error {
		snap.Verdicts = s.detector.Detect(snap.DistrictSummaries)
		snap.AnomalySummary = anomalyengine.Summarize(snap.Verdicts)
		return nil
	})
	s.stage(snap, "patterns", func() error {
		res := s.discovery.Discover(metricRows)
		snap.Patterns = &res
		return nil
	})
	s.stage(snap, "clustering", func() error {
		res := s.clusterer.Run(metricRows)
		snap.Clusters = &res
		return nil
	})
	s.stage(snap, "geo", func() error {
		boundaries, err := s.boundaries.LoadIndia()
		if err != nil {
			return errors.WithCode(errors.CodeGeoFailed, err)
		}
		districts := s.linker.LinkDistricts(boundaries, snap.DistrictSummaries, snap.Verdicts)
		states := s.linker.LinkStates(boundaries, snap.DistrictSummaries)
		snap.GeoDistricts = &districts
		snap.GeoStates = &states
		snap.Quality.UnmatchedShapes = districts.UnmatchedShapes
		snap.Quality.UnmatchedDistricts = districts.UnmatchedSources
		snap.Quality.FuzzyMatched = districts.FuzzyMatched
		return nil
	})

	return snap, nil
}

// stage runs one optional analytics stage, recovering errors and panics into
// a degraded (but still served) snapshot.
func (s *PipelineService) stage(snap *Snapshot, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[Pipeline] %s stage panicked: %v", name, r)
			snap.Quality.DegradedStages = append(snap.Quality.DegradedStages, name)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn("[Pipeline] %s stage degraded: %v", name, err)
		snap.Quality.DegradedStages = append(snap.Quality.DegradedStages, name)
	}
}

// loadSources reads and aggregates the three sources concurrently.
func (s *PipelineService) loadSources(ctx context.Context) (map[dataset.Source]*dataset.MonthlyTable, []merge.Quality, error) {
	sources := dataset.Sources

	var mu sync.Mutex
	tables := make(map[dataset.Source]*dataset.MonthlyTable, len(sources))
	qualities := make([]merge.Quality, 0, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for _, source := range sources {
		source := source
		g.Go(func() error {
			raw, err := s.reader.ReadSource(ctx, source)
			if err != nil {
				return errors.WithCode(errors.CodeReadFailed, errors.Wrapf(err, "reading %s", source))
			}
			table, quality, err := s.merger.AggregateSource(source, raw)
			if err != nil {
				return errors.WithCode(errors.CodeMergeFailed, errors.Wrapf(err, "aggregating %s", source))
			}
			mu.Lock()
			tables[source] = table
			qualities = append(qualities, quality)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Deterministic quality order regardless of goroutine completion.
	ordered := make([]merge.Quality, 0, len(sources))
	for _, source := range sources {
		for _, q := range qualities {
			if q.Source == source {
				ordered = append(ordered, q)
			}
		}
	}
	return tables, ordered, nil
}
