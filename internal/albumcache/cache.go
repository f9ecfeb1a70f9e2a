// Package albumcache implements FolderAlbumCache (§4.8): the per-folder
// locked decision of "which release this directory is", with strict
// source-priority replacement. Grounded on alexander-bruun-Orb's
// sync.Map-guarded session caches, generalized here into a map of whole,
// immutable decision values replaced atomically under a per-folder lock
// (§9 "Interlocking caches": never mutate in place).
package albumcache

import (
	"context"
	"sync"

	"github.com/soundwatch/soundwatch/internal/duration"
	"github.com/soundwatch/soundwatch/internal/folderlock"
	"github.com/soundwatch/soundwatch/internal/model"
	"github.com/soundwatch/soundwatch/internal/musicbrainz"
)

// DurationSource supplies a release-group's duration sequence, implemented
// by internal/musicbrainz.Client.
type DurationSource interface {
	GetReleaseDurationSequence(ctx context.Context, releaseGroupID string) (musicbrainz.ReleaseDurationInfo, error)
}

// Cache is the in-process FolderAlbumCache. An optional Redis-backed
// implementation with the same method set exists in redis.go for multiple
// instances sharing a watch root over a network volume.
type Cache struct {
	locks    *folderlock.Registry
	mu       sync.RWMutex
	decision map[string]model.FolderAlbumDecision
	source   DurationSource
}

func New(locks *folderlock.Registry, source DurationSource) *Cache {
	return &Cache{
		locks:    locks,
		decision: make(map[string]model.FolderAlbumDecision),
		source:   source,
	}
}

// Get returns the installed decision for folderPath, if any.
func (c *Cache) Get(folderPath string) (model.FolderAlbumDecision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.decision[folderPath]
	return d, ok
}

// TryLock installs incoming iff no decision exists for folderPath, or the
// existing decision's source is strictly lower priority than incoming's. A
// lower-priority write to an already-decided folder is a silent no-op,
// returning the (unchanged) existing decision and false.
//
// Callers must hold the folder's lock (via folderlock.Registry) before
// calling TryLock when the install must be atomic with other folder state
// changes (e.g. AlbumBatchProcessor enqueue/finalize); TryLock itself only
// guards the cache's own map.
func (c *Cache) TryLock(folderPath string, incoming model.FolderAlbumDecision) (model.FolderAlbumDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.decision[folderPath]
	if !ok || incoming.Source.Outranks(existing.Source) {
		c.decision[folderPath] = incoming
		return incoming, true
	}
	return existing, false
}

// DetermineByDurationSequence implements §4.8's determineByDurationSequence:
// for each candidate release-group, fetch its duration sequence and run the
// DTW matcher; return the first candidate whose similarity clears 0.90,
// short-circuiting without evaluating the rest.
func (c *Cache) DetermineByDurationSequence(ctx context.Context, folderPath string, candidates []model.Candidate, observed []int, expectedTrackCount int) (model.FolderAlbumDecision, bool) {
	for _, cand := range candidates {
		info, err := c.source.GetReleaseDurationSequence(ctx, cand.ReleaseGroupID)
		if err != nil || len(info.Durations) == 0 {
			continue
		}
		sim := duration.Similarity(observed, info.Durations)
		if sim < duration.HighConfidence {
			continue
		}
		d := model.FolderAlbumDecision{
			ReleaseGroupID: cand.ReleaseGroupID,
			ReleaseID:      info.ReleaseID,
			AlbumTitle:     cand.ReleaseTitle,
			TrackCount:     info.TrackCount,
			ReleaseDate:    info.ReleaseDate,
			Similarity:     sim,
			Source:         model.SourceDurationMatch,
		}
		return d, true
	}
	return model.FolderAlbumDecision{}, false
}

// Lock acquires folderPath's per-folder mutex, shared with
// AlbumBatchProcessor so cache mutations and pending-queue mutations for the
// same folder never interleave.
func (c *Cache) Lock(folderPath string) func() {
	return c.locks.Lock(folderPath)
}
