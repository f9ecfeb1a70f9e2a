package duration

import "testing"

func TestSimilarityIdentical(t *testing.T) {
	observed := []int{180, 210, 195}
	if sim := Similarity(observed, observed); sim != 1 {
		t.Fatalf("identical sequences: got %v, want 1", sim)
	}
}

func TestSimilarityBothEmpty(t *testing.T) {
	if sim := Similarity(nil, nil); sim != 1 {
		t.Fatalf("empty sequences: got %v, want 1", sim)
	}
}

func TestSimilarityDegradesWithDrift(t *testing.T) {
	observed := []int{180, 210, 195}
	close := Similarity(observed, []int{181, 209, 196})
	far := Similarity(observed, []int{60, 600, 30})
	if close < HighConfidence {
		t.Fatalf("small drift should stay above HighConfidence, got %v", close)
	}
	if far >= close {
		t.Fatalf("large drift should score worse than small drift: far=%v close=%v", far, close)
	}
}

func TestBestPicksHighestSimilarityAboveThreshold(t *testing.T) {
	observed := []int{180, 210, 195}
	candidates := []Candidate{
		{ReleaseGroupID: "weak", Durations: []int{10, 20, 30}},
		{ReleaseGroupID: "strong", Durations: []int{180, 210, 195}},
	}
	best, sim, ok := Best(observed, candidates)
	if !ok {
		t.Fatal("expected a match above HighConfidence")
	}
	if best.ReleaseGroupID != "strong" {
		t.Fatalf("got %q, want %q", best.ReleaseGroupID, "strong")
	}
	if sim != 1 {
		t.Fatalf("exact match similarity = %v, want 1", sim)
	}
}

func TestBestTieBreaksOnLengthThenReleaseDate(t *testing.T) {
	observed := []int{180, 210}
	candidates := []Candidate{
		{ReleaseGroupID: "later", Durations: []int{180, 210}, ReleaseDate: "2020-01-01"},
		{ReleaseGroupID: "earlier", Durations: []int{180, 210}, ReleaseDate: "2010-01-01"},
	}
	best, _, ok := Best(observed, candidates)
	if !ok {
		t.Fatal("expected a match")
	}
	if best.ReleaseGroupID != "earlier" {
		t.Fatalf("tie-break should prefer earliest ReleaseDate, got %q", best.ReleaseGroupID)
	}
}

func TestBestReturnsFalseWhenNoneClearThreshold(t *testing.T) {
	observed := []int{180, 210, 195}
	candidates := []Candidate{{ReleaseGroupID: "bad", Durations: []int{1, 2, 3}}}
	if _, _, ok := Best(observed, candidates); ok {
		t.Fatal("expected no match below HighConfidence")
	}
}

func TestFirstAboveThresholdShortCircuits(t *testing.T) {
	observed := []int{180, 210}
	candidates := []Candidate{
		{ReleaseGroupID: "first-match", Durations: []int{180, 210}},
		{ReleaseGroupID: "also-matches", Durations: []int{180, 210}},
	}
	got, _, ok := FirstAboveThreshold(observed, candidates)
	if !ok || got.ReleaseGroupID != "first-match" {
		t.Fatalf("got %+v, ok=%v, want first-match", got, ok)
	}
}
