// Package duration implements the dynamic-time-warping similarity scoring
// between two ordered integer-second duration sequences (§4.6). No DTW
// implementation appears anywhere in the reference corpus; this is modeled
// after the matrix-based distance algorithms the corpus does use elsewhere
// (Levenshtein/Damerau-Levenshtein string distance in Vinylfo's duration
// client and Ambrevar-demlo's fuzzy.go) applied to a numeric cost function.
package duration

// HighConfidence is the similarity threshold at which a match is accepted
// without further corroboration (§4.6, §4.8, §4.9).
const HighConfidence = 0.90

// Similarity computes DTW-based similarity between observed and candidate in
// [0,1]. Substitution cost is min(|a-b|/max(a,b,1), 1); insertion and
// deletion each cost 1 unit. The raw DTW cost is normalized by the longer
// sequence's length; the return value is 1 minus that normalized cost.
func Similarity(observed, candidate []int) float64 {
	n, m := len(observed), len(candidate)
	if n == 0 && m == 0 {
		return 1
	}
	longer := n
	if m > longer {
		longer = m
	}
	if longer == 0 {
		return 1
	}

	// dtw[i][j] = minimal accumulated cost aligning observed[:i] to candidate[:j].
	dtw := make([][]float64, n+1)
	for i := range dtw {
		dtw[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		dtw[i][0] = float64(i) // i deletions
	}
	for j := 1; j <= m; j++ {
		dtw[0][j] = float64(j) // j insertions
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sub := dtw[i-1][j-1] + substitutionCost(observed[i-1], candidate[j-1])
			del := dtw[i-1][j] + 1
			ins := dtw[i][j-1] + 1
			dtw[i][j] = minOf3(sub, del, ins)
		}
	}

	normalized := dtw[n][m] / float64(longer)
	if normalized > 1 {
		normalized = 1
	}
	return 1 - normalized
}

func substitutionCost(a, b int) float64 {
	if a == b {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	denom := a
	if b > denom {
		denom = b
	}
	if denom < 1 {
		denom = 1
	}
	cost := float64(diff) / float64(denom)
	if cost > 1 {
		return 1
	}
	return cost
}

func minOf3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Candidate pairs a release-group's duration sequence with the metadata
// needed to break ties among candidates that all clear HighConfidence.
type Candidate struct {
	ReleaseGroupID string
	ReleaseID      string
	ReleaseDate    string
	Durations      []int
}

// Best returns the winning candidate against observed, or false if none
// clears HighConfidence. Tie-break order: highest similarity; if tied,
// closest absolute length difference to observed; if still tied, earliest
// ReleaseDate (lexicographic, which matches ISO-8601 ordering).
func Best(observed []int, candidates []Candidate) (Candidate, float64, bool) {
	var (
		best      Candidate
		bestSim   = -1.0
		bestFound bool
	)
	for _, c := range candidates {
		sim := Similarity(observed, c.Durations)
		if sim < HighConfidence {
			continue
		}
		if !bestFound {
			best, bestSim, bestFound = c, sim, true
			continue
		}
		if sim > bestSim {
			best, bestSim = c, sim
			continue
		}
		if sim == bestSim {
			if lenDiff(observed, c.Durations) < lenDiff(observed, best.Durations) {
				best = c
				continue
			}
			if lenDiff(observed, c.Durations) == lenDiff(observed, best.Durations) &&
				c.ReleaseDate != "" && (best.ReleaseDate == "" || c.ReleaseDate < best.ReleaseDate) {
				best = c
			}
		}
	}
	return best, bestSim, bestFound
}

// FirstAboveThreshold scans candidates in order and returns the first one
// whose similarity to observed clears HighConfidence, without evaluating the
// rest. This is the short-circuit behavior required by FolderAlbumCache's
// determineByDurationSequence (§4.8) and QuickScan (§4.9): both avoid paying
// for full candidate-set evaluation once a confident match is found.
func FirstAboveThreshold(observed []int, candidates []Candidate) (Candidate, float64, bool) {
	for _, c := range candidates {
		sim := Similarity(observed, c.Durations)
		if sim >= HighConfidence {
			return c, sim, true
		}
	}
	return Candidate{}, 0, false
}

func lenDiff(a []int, b []int) int {
	d := len(a) - len(b)
	if d < 0 {
		return -d
	}
	return d
}
