// Package selection implements the §4.13 version-indicator scorer used to
// break ties among recordings from the same locked release-group: which
// recording's title (instrumental, live, remix, ...) best matches the
// file's own basename. Grounded on alexander-bruun-Orb's filename-parsing
// heuristics in cmd/ingest and MoonFuji-SpotiFLAC's use of go-edlib for
// fuzzy title comparison elsewhere in the pack.
package selection

import "strings"

// indicators is the fixed set named in §4.13, checked case-insensitively.
var indicators = []string{
	"instrumental", "inst", "karaoke", "off vocal", "live", "acoustic",
	"remix", "extended", "radio edit", "tv size", "tv ver", "movie ver",
	"full ver", "album mix", "album ver", "single mix", "single ver",
	"original mix", "remaster", "remastered", "bonus track", "short ver",
	"long ver", "edit", "demo",
}

// Recording is the subset of a fingerprint-registry recording candidate
// needed to score it against a filename.
type Recording struct {
	ID    string
	Title string
}

// Best scores each candidate's title against filename per §4.13 and returns
// the index of the highest-scoring candidate. Ties keep the first (earliest
// registry-order) candidate, since the loop only replaces the leader on a
// strictly greater score.
func Best(filename string, candidates []Recording) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	fileIndicators := presentIndicators(filename)

	bestIdx := 0
	bestScore := score(fileIndicators, presentIndicators(candidates[0].Title))
	for i := 1; i < len(candidates); i++ {
		s := score(fileIndicators, presentIndicators(candidates[i].Title))
		if s > bestScore {
			bestIdx, bestScore = i, s
		}
	}
	return bestIdx, true
}

// score implements §4.13's point rule: +100 for each indicator present in
// both sets, -50 for one present only in the filename, -100 for one present
// only in the title, or +10 flat when neither side carries any indicator.
func score(fileSet, titleSet map[string]bool) int {
	if len(fileSet) == 0 && len(titleSet) == 0 {
		return 10
	}
	total := 0
	seen := make(map[string]bool, len(fileSet)+len(titleSet))
	for ind := range fileSet {
		seen[ind] = true
	}
	for ind := range titleSet {
		seen[ind] = true
	}
	for ind := range seen {
		inFile, inTitle := fileSet[ind], titleSet[ind]
		switch {
		case inFile && inTitle:
			total += 100
		case inFile && !inTitle:
			total -= 50
		case !inFile && inTitle:
			total -= 100
		}
	}
	return total
}

func presentIndicators(s string) map[string]bool {
	lower := strings.ToLower(s)
	out := make(map[string]bool)
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			out[ind] = true
		}
	}
	return out
}
