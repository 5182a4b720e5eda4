package config

import (
	"os"
	"strconv"

	"aadhaarlens/domain/anomaly"
	"aadhaarlens/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Paths    PathConfig
	Pipeline PipelineConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// PathConfig holds the data directories the pipeline reads from
type PathConfig struct {
	// DataDir holds one subdirectory per source: enrolment, demographic,
	// biometric.
	DataDir string
	// GeoJSONDir holds india.geojson and the states/ directory.
	GeoJSONDir string
	// AliasDir optionally overrides the embedded alias tables.
	AliasDir string
}

// PipelineConfig holds analysis settings
type PipelineConfig struct {
	// AnomalyStrictness selects the rule cascade: "batch" or "zscore".
	AnomalyStrictness anomaly.Strictness
	// FuzzyThreshold is the minimum similarity score for geo name rescue.
	FuzzyThreshold int
	// TopAnomalies caps the anomaly listing endpoints.
	TopAnomalies int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Paths: PathConfig{
			DataDir:    getEnvOrDefault("DATA_DIR", "data"),
			GeoJSONDir: getEnvOrDefault("GEOJSON_DIR", "india-maps-data/geojson"),
			AliasDir:   os.Getenv("ALIAS_DIR"),
		},
		Pipeline: PipelineConfig{
			AnomalyStrictness: anomaly.Strictness(getEnvOrDefault("ANOMALY_STRICTNESS", string(anomaly.StrictnessBatch))),
			FuzzyThreshold:    getEnvIntOrDefault("FUZZY_THRESHOLD", 85),
			TopAnomalies:      getEnvIntOrDefault("TOP_ANOMALIES", 20),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Validate checks that the configuration can drive a pipeline run
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return errors.ConfigInvalid("data directory is required")
	}
	if c.Paths.GeoJSONDir == "" {
		return errors.ConfigInvalid("geojson directory is required")
	}
	if !c.Pipeline.AnomalyStrictness.Valid() {
		return errors.ConfigInvalid("anomaly strictness must be batch or zscore")
	}
	if c.Pipeline.FuzzyThreshold < 0 || c.Pipeline.FuzzyThreshold > 100 {
		return errors.ConfigInvalid("fuzzy threshold must be in [0, 100]")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
