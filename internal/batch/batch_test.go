package batch

import (
	"context"
	"testing"

	"github.com/soundwatch/soundwatch/internal/folderlock"
	"github.com/soundwatch/soundwatch/internal/model"
	"github.com/soundwatch/soundwatch/internal/processedlog"
)

type fakeCache struct {
	installed map[string]model.FolderAlbumDecision
	durFound  bool
	durResult model.FolderAlbumDecision
}

func newFakeCache() *fakeCache {
	return &fakeCache{installed: make(map[string]model.FolderAlbumDecision)}
}

func (f *fakeCache) TryLock(folderPath string, incoming model.FolderAlbumDecision) (model.FolderAlbumDecision, bool) {
	existing, ok := f.installed[folderPath]
	if !ok || incoming.Source.Outranks(existing.Source) {
		f.installed[folderPath] = incoming
		return incoming, true
	}
	return existing, false
}

func (f *fakeCache) Get(folderPath string) (model.FolderAlbumDecision, bool) {
	d, ok := f.installed[folderPath]
	return d, ok
}

func (f *fakeCache) DetermineByDurationSequence(_ context.Context, _ string, _ []model.Candidate, _ []int, _ int) (model.FolderAlbumDecision, bool) {
	return f.durResult, f.durFound
}

type noopLog struct{}

func (noopLog) IsProcessed(string) (bool, error)         { return false, nil }
func (noopLog) Mark(model.ProcessedRecord) error         { return nil }
func (noopLog) Count() (int, error)                      { return 0, nil }

var _ processedlog.Log = noopLog{}

func TestTryDetermineUsesCachedDecisionFirst(t *testing.T) {
	cache := newFakeCache()
	cache.installed["/music/x"] = model.FolderAlbumDecision{ReleaseGroupID: "cached", Source: model.SourceForced}

	p := New(folderlock.NewRegistry(), cache, noopLog{}, "/out", 3)
	d, ok := p.TryDetermine(context.Background(), "/music/x", 3, SampleInfo{})
	if !ok || d.ReleaseGroupID != "cached" {
		t.Fatalf("expected cached decision, got %+v ok=%v", d, ok)
	}
}

func TestTryDetermineMajorityVoteWins(t *testing.T) {
	cache := newFakeCache()
	p := New(folderlock.NewRegistry(), cache, noopLog{}, "/out", 3)

	for i := 0; i < 2; i++ {
		p.AddPending("/music/y", model.PendingFile{
			Metadata: model.MusicMetadata{ReleaseGroupID: "rgA", Album: "Album A"},
		}, 3)
	}
	p.AddPending("/music/y", model.PendingFile{
		Metadata: model.MusicMetadata{ReleaseGroupID: "rgB", Album: "Album B"},
	}, 3)

	d, ok := p.TryDetermine(context.Background(), "/music/y", 3, SampleInfo{})
	if !ok {
		t.Fatal("expected majority vote to elect a winner")
	}
	if d.ReleaseGroupID != "rgA" {
		t.Fatalf("got %q, want rgA (2 of 3 votes)", d.ReleaseGroupID)
	}
	if d.Source != model.SourceVote {
		t.Fatalf("decision source = %v, want SourceVote", d.Source)
	}
}

func TestTryDetermineFallsBackToDurationSequence(t *testing.T) {
	cache := newFakeCache()
	cache.durFound = true
	cache.durResult = model.FolderAlbumDecision{ReleaseGroupID: "rg-dtw", Source: model.SourceDurationMatch}

	p := New(folderlock.NewRegistry(), cache, noopLog{}, "/out", 3)
	p.AddPending("/music/z", model.PendingFile{
		Metadata: model.MusicMetadata{ReleaseGroupID: "rg1"},
	}, 3)

	d, ok := p.TryDetermine(context.Background(), "/music/z", 3, SampleInfo{ObservedDurations: []int{180, 210, 195}})
	if !ok || d.ReleaseGroupID != "rg-dtw" {
		t.Fatalf("expected duration-sequence fallback, got %+v ok=%v", d, ok)
	}
}

func TestTryDetermineReturnsFalseWhenNothingElects(t *testing.T) {
	cache := newFakeCache()
	p := New(folderlock.NewRegistry(), cache, noopLog{}, "/out", 3)
	p.AddPending("/music/w", model.PendingFile{Metadata: model.MusicMetadata{ReleaseGroupID: "rg1"}}, 3)

	if _, ok := p.TryDetermine(context.Background(), "/music/w", 3, SampleInfo{}); ok {
		t.Fatal("expected no decision: single vote below threshold, no duration match")
	}
}

func TestPendingFoldersCountsOnlyNonEmptyQueues(t *testing.T) {
	cache := newFakeCache()
	p := New(folderlock.NewRegistry(), cache, noopLog{}, "/out", 3)
	p.AddPending("/music/a", model.PendingFile{}, 1)
	p.AddPending("/music/b", model.PendingFile{}, 1)

	if n := p.PendingFolders(); n != 2 {
		t.Fatalf("got %d pending folders, want 2", n)
	}
}
