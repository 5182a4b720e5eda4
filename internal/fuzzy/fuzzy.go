// Package fuzzy provides edit-distance similarity matching for residual
// geographic names that the alias tables do not cover.
package fuzzy

// DefaultThreshold is the minimum similarity (0-100) accepted as a match.
const DefaultThreshold = 85

// Distance calculates the Levenshtein distance between two strings: the
// minimum number of single-character insertions, deletions, or substitutions
// needed to transform one into the other. O(min(m,n)) space.
func Distance(str1, str2 string) int {
	s1 := []rune(str1)
	s2 := []rune(str2)

	lenS1 := len(s1)
	lenS2 := len(s2)

	if lenS2 == 0 {
		return lenS1
	}
	if lenS1 == 0 {
		return lenS2
	}

	column := make([]int, lenS1+1)
	for idx := 1; idx <= lenS1; idx++ {
		column[idx] = idx
	}

	for col := 0; col < lenS2; col++ {
		s2Rune := s2[col]
		column[0] = col + 1
		lastdiag := col

		for row := 0; row < lenS1; row++ {
			olddiag := column[row+1]

			cost := 0
			if s1[row] != s2Rune {
				cost = 1
			}

			column[row+1] = min(column[row+1]+1, column[row]+1, lastdiag+cost)
			lastdiag = olddiag
		}
	}

	return column[lenS1]
}

// Ratio scores string similarity on a 0-100 scale, 100 meaning identical.
// This mirrors the conventional normalized edit-distance similarity used for
// record linkage thresholds.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 100
	}
	return (longest - Distance(a, b)) * 100 / longest
}

// BestMatch finds the target most similar to name. Returns the match and its
// score; ok is false when targets is empty.
func BestMatch(name string, targets []string) (best string, score int, ok bool) {
	score = -1
	for _, t := range targets {
		if r := Ratio(name, t); r > score {
			best, score = t, r
		}
	}
	return best, score, score >= 0
}

// MatchNames maps each source name to its best-scoring target when the score
// meets threshold. Names already present in targets are skipped, and no
// below-threshold guess is ever emitted: the result is a partial mapping.
func MatchNames(sources, targets []string, threshold int) map[string]string {
	mapping := make(map[string]string)
	if len(targets) == 0 {
		return mapping
	}

	targetSet := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		targetSet[t] = struct{}{}
	}

	for _, name := range sources {
		if name == "" {
			continue
		}
		if _, exists := targetSet[name]; exists {
			continue
		}
		if best, score, ok := BestMatch(name, targets); ok && score >= threshold {
			mapping[name] = best
		}
	}

	return mapping
}
