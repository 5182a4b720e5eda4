package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"Baramula", "Baramulla", 1},
		{"Purnia", "Purnia", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b), "Distance(%q, %q)", tt.a, tt.b)
	}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100, Ratio("Cuttack", "Cuttack"))
	assert.Equal(t, 100, Ratio("", ""))

	// One edit across nine runes.
	assert.Equal(t, (9-1)*100/9, Ratio("Baramula", "Baramulla"))

	// Completely different strings score low.
	assert.Less(t, Ratio("Jaipur", "Thiruvananthapuram"), 40)
}

func TestMatchNamesThreshold(t *testing.T) {
	targets := []string{"Bengaluru Urban", "Bengaluru Rural", "Mysuru"}

	mapping := MatchNames([]string{"Bengaluru Urbann", "Zzzzz"}, targets, DefaultThreshold)

	require.Len(t, mapping, 1)
	assert.Equal(t, "Bengaluru Urban", mapping["Bengaluru Urbann"])

	// A name with no target above threshold must not be guessed.
	_, guessed := mapping["Zzzzz"]
	assert.False(t, guessed)
}

func TestMatchNamesSkipsExactAndEmpty(t *testing.T) {
	targets := []string{"Mysuru", "Tumakuru"}

	mapping := MatchNames([]string{"Mysuru", ""}, targets, DefaultThreshold)
	assert.Empty(t, mapping, "exact matches and empty names are not remapped")
}

func TestMatchNamesEmptyTargets(t *testing.T) {
	mapping := MatchNames([]string{"anything"}, nil, DefaultThreshold)
	assert.Empty(t, mapping)
}
