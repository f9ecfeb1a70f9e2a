package albumcache

import (
	"context"
	"testing"

	"github.com/soundwatch/soundwatch/internal/folderlock"
	"github.com/soundwatch/soundwatch/internal/model"
	"github.com/soundwatch/soundwatch/internal/musicbrainz"
)

type fakeSource struct {
	sequences map[string][]int
}

func (f fakeSource) GetReleaseDurationSequence(_ context.Context, releaseGroupID string) (musicbrainz.ReleaseDurationInfo, error) {
	return musicbrainz.ReleaseDurationInfo{Durations: f.sequences[releaseGroupID]}, nil
}

func TestTryLockInstallsFirstDecision(t *testing.T) {
	c := New(folderlock.NewRegistry(), fakeSource{})
	installed, ok := c.TryLock("/music/a", model.FolderAlbumDecision{ReleaseGroupID: "rg1", Source: model.SourceVote})
	if !ok || installed.ReleaseGroupID != "rg1" {
		t.Fatalf("first install should always succeed, got %+v ok=%v", installed, ok)
	}
}

func TestTryLockRejectsLowerPriority(t *testing.T) {
	c := New(folderlock.NewRegistry(), fakeSource{})
	c.TryLock("/music/a", model.FolderAlbumDecision{ReleaseGroupID: "quickscan-wins", Source: model.SourceQuickScan})

	installed, ok := c.TryLock("/music/a", model.FolderAlbumDecision{ReleaseGroupID: "vote-loses", Source: model.SourceVote})
	if ok {
		t.Fatal("a lower-priority source must not displace an existing decision")
	}
	if installed.ReleaseGroupID != "quickscan-wins" {
		t.Fatalf("existing decision should be returned unchanged, got %+v", installed)
	}
}

func TestTryLockAcceptsHigherPriority(t *testing.T) {
	c := New(folderlock.NewRegistry(), fakeSource{})
	c.TryLock("/music/a", model.FolderAlbumDecision{ReleaseGroupID: "vote-first", Source: model.SourceVote})

	installed, ok := c.TryLock("/music/a", model.FolderAlbumDecision{ReleaseGroupID: "forced-wins", Source: model.SourceForced})
	if !ok || installed.ReleaseGroupID != "forced-wins" {
		t.Fatalf("FORCED should outrank VOTE, got %+v ok=%v", installed, ok)
	}
}

func TestDetermineByDurationSequencePicksFirstAboveThreshold(t *testing.T) {
	source := fakeSource{sequences: map[string][]int{
		"rg-bad":  {1, 2, 3},
		"rg-good": {180, 210, 195},
	}}
	c := New(folderlock.NewRegistry(), source)

	candidates := []model.Candidate{
		{ReleaseGroupID: "rg-bad"},
		{ReleaseGroupID: "rg-good"},
	}
	decision, ok := c.DetermineByDurationSequence(context.Background(), "/music/b", candidates, []int{180, 210, 195}, 3)
	if !ok {
		t.Fatal("expected a duration-sequence match")
	}
	if decision.ReleaseGroupID != "rg-good" {
		t.Fatalf("got %q, want rg-good", decision.ReleaseGroupID)
	}
	if decision.Source != model.SourceDurationMatch {
		t.Fatalf("decision source = %v, want SourceDurationMatch", decision.Source)
	}
}

func TestGetReturnsFalseForUnknownFolder(t *testing.T) {
	c := New(folderlock.NewRegistry(), fakeSource{})
	if _, ok := c.Get("/never/seen"); ok {
		t.Fatal("expected no decision for an untouched folder")
	}
}
