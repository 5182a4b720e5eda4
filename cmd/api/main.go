package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"aadhaarlens/adapters/geo"
	"aadhaarlens/adapters/tabular"
	"aadhaarlens/api"
	"aadhaarlens/app"
	"aadhaarlens/domain/geography"
	anomalyengine "aadhaarlens/internal/analysis/anomaly"
	"aadhaarlens/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[Main] No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] Invalid configuration: %v", err)
	}

	normalizer, err := geography.LoadNormalizer(cfg.Paths.AliasDir)
	if err != nil {
		log.Printf("[Main] Alias tables from %s unavailable (%v), using embedded tables", cfg.Paths.AliasDir, err)
		normalizer = geography.NewNormalizer()
	}

	pipeline := app.NewPipelineService(
		tabular.NewSourceDirs(cfg.Paths.DataDir),
		geo.NewLoader(cfg.Paths.GeoJSONDir),
		normalizer,
		app.Config{
			Detector:       anomalyengine.Config{Strictness: cfg.Pipeline.AnomalyStrictness},
			FuzzyThreshold: cfg.Pipeline.FuzzyThreshold,
		},
	)

	if err := pipeline.Run(context.Background()); err != nil {
		// Serve anyway: /healthz reports the failure and a later reload
		// can succeed once data is in place.
		log.Printf("[Main] Initial pipeline run failed: %v", err)
	}

	server := api.NewApp(pipeline, api.Config{
		Port:         cfg.Server.Port,
		TopAnomalies: cfg.Pipeline.TopAnomalies,
	})

	log.Printf("[Main] AadhaarLens serving on http://localhost:%s", cfg.Server.Port)
	log.Fatal(server.Start(cfg.Server.Port))
}
