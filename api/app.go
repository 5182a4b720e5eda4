package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aadhaarlens/app"
)

// App serves the analytics API over the latest pipeline snapshot.
type App struct {
	router   *chi.Mux
	pipeline *app.PipelineService
	topN     int
}

// Config holds API application configuration
type Config struct {
	Port string
	// TopAnomalies caps the anomaly list returned by /api/anomalies.
	TopAnomalies int
}

// NewApp creates a new API application
func NewApp(pipeline *app.PipelineService, config Config) *App {
	topN := config.TopAnomalies
	if topN <= 0 {
		topN = 20
	}

	a := &App{
		router:   chi.NewRouter(),
		pipeline: pipeline,
		topN:     topN,
	}

	a.setupMiddleware()
	a.setupRoutes()

	return a
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealth)
	a.router.Get("/report", a.handleReport)
	a.router.Post("/api/reload", a.handleReload)

	// Overview and geography
	a.router.Get("/api/overview", a.handleOverview)
	a.router.Get("/api/states", a.handleStates)
	a.router.Get("/api/districts", a.handleDistricts)
	a.router.Get("/api/districts/{state}", a.handleStateDistricts)
	a.router.Get("/api/geo/{level}", a.handleGeo)
	a.router.Get("/api/geo/boundaries", a.handleBoundaryStates)
	a.router.Get("/api/geo/boundaries/{state}", a.handleStateBoundaries)

	// Temporal views
	a.router.Get("/api/time-series", a.handleTimeSeries)
	a.router.Get("/api/monthly-data/{month}", a.handleMonthlyData)

	// Analytics
	a.router.Get("/api/anomalies", a.handleAnomalies)
	a.router.Get("/api/anomalies/map", a.handleAnomalyMap)
	a.router.Get("/api/compliance", a.handleCompliance)
	a.router.Get("/api/migration", a.handleMigration)
	a.router.Get("/api/comparison", a.handleComparison)
	a.router.Get("/api/patterns", a.handlePatterns)
	a.router.Get("/api/clusters", a.handleClusters)
}

// Router exposes the configured mux so callers can mount or test it.
func (a *App) Router() http.Handler {
	return a.router
}

// Start starts the HTTP server
func (a *App) Start(port string) error {
	addr := ":" + port
	log.Printf("[API] Starting AadhaarLens API server on %s", addr)
	return http.ListenAndServe(addr, a.router)
}

// snapshot fetches the latest pipeline result, answering 503 when no run
// has completed yet.
func (a *App) snapshot(w http.ResponseWriter) (*app.Snapshot, bool) {
	snap, err := a.pipeline.Snapshot()
	if err != nil {
		a.respondError(w, http.StatusServiceUnavailable, "pipeline data not loaded")
		return nil, false
	}
	return snap, true
}

func (a *App) respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func (a *App) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"error": message})
}
