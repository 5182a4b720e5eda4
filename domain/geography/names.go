// Package geography canonicalizes the free-text state and district names that
// the administrative datasets and the boundary files spell inconsistently.
// The alias tables are versioned configuration data: administrative boundary
// changes are table updates, not code changes.
package geography

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed data/state_aliases.json data/district_aliases.json
var aliasFS embed.FS

const (
	stateAliasFile    = "state_aliases.json"
	districtAliasFile = "district_aliases.json"
)

type stateAliasTable struct {
	Aliases map[string]string `json:"aliases"`
	Drop    []string          `json:"drop"`
}

type districtAliasTable struct {
	Aliases map[string]string `json:"aliases"`
}

// Normalizer resolves raw state/district names to their canonical spelling.
// It never fails: unknown names pass through cleaned, on the assumption that
// they are already canonical.
type Normalizer struct {
	stateAliases    map[string]string
	dropStates      map[string]struct{}
	districtAliases map[string]string // keys are lowercase
}

// NewNormalizer builds a normalizer from the embedded alias tables.
func NewNormalizer() *Normalizer {
	stateRaw, err := aliasFS.ReadFile("data/" + stateAliasFile)
	if err != nil {
		panic(fmt.Sprintf("embedded state alias table unreadable: %v", err))
	}
	districtRaw, err := aliasFS.ReadFile("data/" + districtAliasFile)
	if err != nil {
		panic(fmt.Sprintf("embedded district alias table unreadable: %v", err))
	}

	n, err := buildNormalizer(stateRaw, districtRaw)
	if err != nil {
		panic(fmt.Sprintf("embedded alias tables invalid: %v", err))
	}
	return n
}

// LoadNormalizer reads alias tables from dir, falling back to the embedded
// copy for any file that is absent. This is the hook for shipping boundary
// changes without a rebuild.
func LoadNormalizer(dir string) (*Normalizer, error) {
	stateRaw, err := readOrEmbedded(dir, stateAliasFile)
	if err != nil {
		return nil, err
	}
	districtRaw, err := readOrEmbedded(dir, districtAliasFile)
	if err != nil {
		return nil, err
	}
	return buildNormalizer(stateRaw, districtRaw)
}

func readOrEmbedded(dir, name string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err == nil {
		return raw, nil
	}
	if os.IsNotExist(err) {
		return aliasFS.ReadFile("data/" + name)
	}
	return nil, fmt.Errorf("failed to read alias table %s: %w", name, err)
}

func buildNormalizer(stateRaw, districtRaw []byte) (*Normalizer, error) {
	var states stateAliasTable
	if err := json.Unmarshal(stateRaw, &states); err != nil {
		return nil, fmt.Errorf("failed to parse state alias table: %w", err)
	}
	var districts districtAliasTable
	if err := json.Unmarshal(districtRaw, &districts); err != nil {
		return nil, fmt.Errorf("failed to parse district alias table: %w", err)
	}

	drop := make(map[string]struct{}, len(states.Drop))
	for _, d := range states.Drop {
		drop[d] = struct{}{}
	}

	lowered := make(map[string]string, len(districts.Aliases))
	for k, v := range districts.Aliases {
		lowered[strings.ToLower(k)] = v
	}

	return &Normalizer{
		stateAliases:    states.Aliases,
		dropStates:      drop,
		districtAliases: lowered,
	}, nil
}

// CleanName trims a raw name and collapses interior whitespace runs. Null-like
// values ("nan", "None") from upstream exports clean to the empty string.
func CleanName(raw string) string {
	cleaned := strings.Join(strings.Fields(raw), " ")
	switch cleaned {
	case "nan", "None", "null":
		return ""
	}
	return cleaned
}

// stripMarkers removes the trailing-asterisk annotations some source files
// carry on district names.
func stripMarkers(name string) string {
	return CleanName(strings.ReplaceAll(name, "*", " "))
}

// NormalizeState resolves a raw state name to its canonical spelling.
// Lookup order: exact alias match, cleaned-and-stripped alias match, then the
// cleaned input unchanged.
func (n *Normalizer) NormalizeState(raw string) string {
	if canonical, ok := n.stateAliases[raw]; ok {
		return canonical
	}

	cleaned := CleanName(raw)
	if cleaned == "" {
		return ""
	}
	if canonical, ok := n.stateAliases[cleaned]; ok {
		return canonical
	}

	stripped := stripMarkers(cleaned)
	if canonical, ok := n.stateAliases[stripped]; ok {
		return canonical
	}
	return stripped
}

// IsDroppedState reports whether a raw state value is a known-invalid entry
// (for example a stray numeric code) whose rows must be excluded entirely.
func (n *Normalizer) IsDroppedState(raw string) bool {
	if _, ok := n.dropStates[raw]; ok {
		return true
	}
	_, ok := n.dropStates[CleanName(raw)]
	return ok
}

// NormalizeDistrict resolves a raw district name to its canonical spelling.
// The alias table is keyed case-insensitively; unmatched names pass through
// cleaned with their original casing.
func (n *Normalizer) NormalizeDistrict(raw string) string {
	cleaned := CleanName(raw)
	if cleaned == "" {
		return ""
	}

	if canonical, ok := n.districtAliases[strings.ToLower(cleaned)]; ok {
		return canonical
	}

	stripped := stripMarkers(cleaned)
	if canonical, ok := n.districtAliases[strings.ToLower(stripped)]; ok {
		return canonical
	}
	return stripped
}
