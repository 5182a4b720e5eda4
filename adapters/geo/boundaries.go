// Package geo loads district boundary shapes from GeoJSON files. The
// national file carries one feature per district with st_nm and district
// properties; per-state files live under states/ with kebab-case names.
package geo

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aadhaarlens/domain/core"
)

// Boundary is one shape from a GeoJSON feature collection. Geometry is kept
// as raw JSON; nothing downstream needs to interpret coordinates.
type Boundary struct {
	State    string          `json:"state"`
	District string          `json:"district"`
	Geometry json.RawMessage `json:"geometry"`
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Properties map[string]any  `json:"properties"`
		Geometry   json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// Loader reads boundary files from a GeoJSON directory.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadIndia reads the national boundary file with every district shape.
func (l *Loader) LoadIndia() ([]Boundary, error) {
	return l.loadFile(filepath.Join(l.dir, "india.geojson"))
}

// Per-state files that do not follow plain kebab-casing of the state name.
var stateFileOverrides = map[string]string{
	"dadra and nagar haveli": "dnh-and-dd",
	"daman and diu":          "dnh-and-dd",
	"dadra and nagar haveli and daman and diu": "dnh-and-dd",
}

// LoadState reads one state's boundary file, resolving the filename from the
// state name. Returns core.ErrBoundaryNotFound when no file exists.
func (l *Loader) LoadState(state string) ([]Boundary, error) {
	lower := strings.ToLower(strings.TrimSpace(state))
	if lower == "" {
		return nil, core.ErrBoundaryNotFound
	}

	name := strings.ReplaceAll(lower, " ", "-")
	if override, ok := stateFileOverrides[lower]; ok {
		name = override
	}

	path := filepath.Join(l.dir, "states", name+".geojson")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("state %q: %w", state, core.ErrBoundaryNotFound)
	}
	return l.loadFile(path)
}

// AvailableStates lists the states that have a per-state boundary file,
// title-cased from the filenames.
func (l *Loader) AvailableStates() []string {
	matches, err := filepath.Glob(filepath.Join(l.dir, "states", "*.geojson"))
	if err != nil {
		return nil
	}
	states := make([]string, 0, len(matches))
	for _, m := range matches {
		stem := strings.TrimSuffix(filepath.Base(m), ".geojson")
		states = append(states, titleCase(strings.ReplaceAll(stem, "-", " ")))
	}
	sort.Strings(states)
	return states
}

func (l *Loader) loadFile(path string) ([]Boundary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%s: %w", path, core.ErrNoBoundaries)
	}

	boundaries := make([]Boundary, 0, len(fc.Features))
	for _, f := range fc.Features {
		boundaries = append(boundaries, Boundary{
			State:    propString(f.Properties, "st_nm"),
			District: propString(f.Properties, "district"),
			Geometry: f.Geometry,
		})
	}
	log.Printf("[Geo] loaded %d boundaries from %s", len(boundaries), filepath.Base(path))
	return boundaries, nil
}

// propString reads a property as a string, tolerating missing keys and the
// literal junk values some boundary files carry.
func propString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "nan" || s == "None" || s == "null" {
		return ""
	}
	return s
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
