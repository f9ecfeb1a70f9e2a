package selection

import "testing"

func TestBestPrefersMatchingVersionIndicator(t *testing.T) {
	candidates := []Recording{
		{ID: "studio", Title: "Song Title"},
		{ID: "live", Title: "Song Title (Live)"},
	}
	idx, ok := Best("01 - Song Title (Live).flac", candidates)
	if !ok {
		t.Fatal("expected a winner")
	}
	if candidates[idx].ID != "live" {
		t.Fatalf("got %q, want live", candidates[idx].ID)
	}
}

func TestBestPrefersPlainTitleWhenFilenameHasNoIndicator(t *testing.T) {
	candidates := []Recording{
		{ID: "studio", Title: "Song Title"},
		{ID: "remix", Title: "Song Title (Remix)"},
	}
	idx, ok := Best("01 - Song Title.flac", candidates)
	if !ok {
		t.Fatal("expected a winner")
	}
	if candidates[idx].ID != "studio" {
		t.Fatalf("got %q, want studio", candidates[idx].ID)
	}
}

func TestBestTieKeepsEarliestCandidate(t *testing.T) {
	candidates := []Recording{
		{ID: "first", Title: "Song Title"},
		{ID: "second", Title: "Song Title"},
	}
	idx, ok := Best("01 - Song Title.flac", candidates)
	if !ok {
		t.Fatal("expected a winner")
	}
	if candidates[idx].ID != "first" {
		t.Fatalf("tie should keep the first candidate, got %q", candidates[idx].ID)
	}
}

func TestBestEmptyCandidates(t *testing.T) {
	if _, ok := Best("anything.flac", nil); ok {
		t.Fatal("expected no winner for an empty candidate list")
	}
}
