package model

import "testing"

func TestApplyDecisionOverwritesAlbumFields(t *testing.T) {
	md := MusicMetadata{Title: "Song", Artist: "Artist", Album: "Wrong Album"}
	decision := FolderAlbumDecision{
		AlbumTitle:     "Right Album",
		AlbumArtist:    "Right Artist",
		ReleaseGroupID: "rg1",
		ReleaseID:      "rel1",
		ReleaseDate:    "2020-01-01",
	}
	got := md.ApplyDecision(decision)

	if got.Album != "Right Album" || got.AlbumArtist != "Right Artist" {
		t.Fatalf("got %+v, want album fields from decision", got)
	}
	if got.Title != "Song" {
		t.Fatal("per-file fields must survive ApplyDecision")
	}
}

func TestApplyDecisionKeepsExistingReleaseIDWhenDecisionOmitsIt(t *testing.T) {
	md := MusicMetadata{ReleaseID: "keep-me"}
	got := md.ApplyDecision(FolderAlbumDecision{})
	if got.ReleaseID != "keep-me" {
		t.Fatalf("got %q, want keep-me (decision's empty ReleaseID should not clobber)", got.ReleaseID)
	}
}

func TestMergeSourcePreferredFillsOnlyUnsetFields(t *testing.T) {
	m := MusicMetadata{Composer: "Mine"}
	source := MusicMetadata{Composer: "Theirs", Lyricist: "TheirLyricist", TrackNo: 5}

	got := m.MergeSourcePreferred(source)
	if got.Composer != "Mine" {
		t.Fatalf("existing composer should not be overwritten, got %q", got.Composer)
	}
	if got.Lyricist != "TheirLyricist" {
		t.Fatalf("unset lyricist should be filled from source, got %q", got.Lyricist)
	}
	if got.TrackNo != 5 {
		t.Fatalf("unset track number should be filled from source, got %d", got.TrackNo)
	}
}

func TestDecisionSourceOutranks(t *testing.T) {
	if !SourceQuickScan.Outranks(SourceForced) {
		t.Fatal("QUICK_SCAN should outrank FORCED")
	}
	if !SourceForced.Outranks(SourceDurationMatch) {
		t.Fatal("FORCED should outrank DURATION_MATCH")
	}
	if !SourceDurationMatch.Outranks(SourceVote) {
		t.Fatal("DURATION_MATCH should outrank VOTE")
	}
	if SourceVote.Outranks(SourceVote) {
		t.Fatal("a source should not outrank itself")
	}
}

func TestUnset(t *testing.T) {
	cases := map[string]bool{
		"":      true,
		"   ":   true,
		"value": false,
	}
	for in, want := range cases {
		if got := Unset(in); got != want {
			t.Errorf("Unset(%q) = %v, want %v", in, got, want)
		}
	}
}
