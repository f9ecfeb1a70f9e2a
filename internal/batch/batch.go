// Package batch implements AlbumBatchProcessor (§4.10): the per-folder queue
// of identification samples that waits for enough corroborating evidence
// before committing every buffered file to its final tags and location.
// Grounded on alexander-bruun-Orb's cmd/ingest batching of per-library
// scan results before a single LoadIngestState/UpsertIngestState pass, here
// generalized to a per-folder queue guarded by the shared folderlock
// registry instead of a single whole-library lock.
package batch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/soundwatch/soundwatch/internal/folderlock"
	"github.com/soundwatch/soundwatch/internal/library"
	"github.com/soundwatch/soundwatch/internal/model"
	"github.com/soundwatch/soundwatch/internal/processedlog"
	"github.com/soundwatch/soundwatch/internal/tagio"
)

// DurationCache is the subset of albumcache.Cache the processor needs for
// the duration-sequence election step.
type DurationCache interface {
	TryLock(folderPath string, incoming model.FolderAlbumDecision) (model.FolderAlbumDecision, bool)
	Get(folderPath string) (model.FolderAlbumDecision, bool)
	DetermineByDurationSequence(ctx context.Context, folderPath string, candidates []model.Candidate, observed []int, expectedTrackCount int) (model.FolderAlbumDecision, bool)
}

// SampleInfo carries the per-folder signal tryDetermine needs beyond the
// queued pending files themselves: the observed duration sequence used for
// the §4.8 DTW fallback, built by the caller from whichever files in the
// folder it has already extracted durations for.
type SampleInfo struct {
	ObservedDurations []int
}

type folderQueue struct {
	pending       []model.PendingFile
	expectedCount int
}

// Processor is the in-process AlbumBatchProcessor.
type Processor struct {
	locks      *folderlock.Registry
	cache      DurationCache
	log        processedlog.Log
	outputRoot string
	voteSize   int

	mu      sync.Mutex
	folders map[string]*folderQueue
}

func New(locks *folderlock.Registry, cache DurationCache, log processedlog.Log, outputRoot string, voteSize int) *Processor {
	if voteSize <= 0 {
		voteSize = 3
	}
	return &Processor{
		locks:      locks,
		cache:      cache,
		log:        log,
		outputRoot: outputRoot,
		voteSize:   voteSize,
		folders:    make(map[string]*folderQueue),
	}
}

// AddPending appends pending to folderPath's queue. expectedCount is the
// folder's total audio-file count; any positive value replaces the recorded
// one. Callers must hold folderPath's lock.
func (p *Processor) AddPending(folderPath string, pending model.PendingFile, expectedCount int) {
	q := p.queueFor(folderPath)
	q.pending = append(q.pending, pending)
	if expectedCount > 0 {
		q.expectedCount = expectedCount
	}
}

func (p *Processor) queueFor(folderPath string) *folderQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.folders[folderPath]
	if !ok {
		q = &folderQueue{}
		p.folders[folderPath] = q
	}
	return q
}

// TryDetermine attempts cached lookup, then majority vote, then
// duration-sequence matching, in that order, returning the winning decision
// if any strategy succeeds. Callers must hold folderPath's lock.
func (p *Processor) TryDetermine(ctx context.Context, folderPath string, observedTrackCount int, sample SampleInfo) (model.FolderAlbumDecision, bool) {
	if d, ok := p.cache.Get(folderPath); ok {
		return d, true
	}

	q := p.queueFor(folderPath)

	if d, ok := p.majorityVote(q, observedTrackCount); ok {
		installed, _ := p.cache.TryLock(folderPath, d)
		return installed, true
	}

	candidates := uniqueCandidates(q.pending)
	if d, ok := p.cache.DetermineByDurationSequence(ctx, folderPath, candidates, sample.ObservedDurations, observedTrackCount); ok {
		installed, _ := p.cache.TryLock(folderPath, d)
		return installed, true
	}

	return model.FolderAlbumDecision{}, false
}

// majorityVote implements §4.10 step 2: elect a release-group if at least
// ceil(min(observedTrackCount, N)/2) queued files agree on it, N = voteSize.
func (p *Processor) majorityVote(q *folderQueue, observedTrackCount int) (model.FolderAlbumDecision, bool) {
	counts := make(map[string]int)
	samples := make(map[string]model.MusicMetadata)
	for _, pf := range q.pending {
		if model.Unset(pf.Metadata.ReleaseGroupID) {
			continue
		}
		counts[pf.Metadata.ReleaseGroupID]++
		if _, ok := samples[pf.Metadata.ReleaseGroupID]; !ok {
			samples[pf.Metadata.ReleaseGroupID] = pf.Metadata
		}
	}

	n := observedTrackCount
	if p.voteSize < n {
		n = p.voteSize
	}
	threshold := int(math.Ceil(float64(n) / 2))
	if threshold < 1 {
		threshold = 1
	}

	var winner string
	best := 0
	for rgID, c := range counts {
		if c > best {
			winner, best = rgID, c
		}
	}
	if winner == "" || best < threshold {
		return model.FolderAlbumDecision{}, false
	}

	md := samples[winner]
	return model.FolderAlbumDecision{
		ReleaseGroupID: md.ReleaseGroupID,
		ReleaseID:      md.ReleaseID,
		AlbumTitle:     md.Album,
		AlbumArtist:    md.AlbumArtist,
		TrackCount:     md.TrackCount,
		ReleaseDate:    md.ReleaseDate,
		Similarity:     1,
		Source:         model.SourceVote,
	}, true
}

func uniqueCandidates(pending []model.PendingFile) []model.Candidate {
	seen := make(map[string]bool)
	var out []model.Candidate
	for _, pf := range pending {
		rg := pf.Metadata.ReleaseGroupID
		if model.Unset(rg) || seen[rg] {
			continue
		}
		seen[rg] = true
		out = append(out, model.Candidate{ReleaseGroupID: rg, ReleaseTitle: pf.Metadata.Album})
	}
	return out
}

// FinalizeAll writes tags, moves, and marks processed every file queued
// under folderPath, merging decision fields over each file's own metadata
// first. Callers must hold folderPath's lock.
func (p *Processor) FinalizeAll(folderPath string, decision model.FolderAlbumDecision) error {
	q := p.queueFor(folderPath)
	pending := q.pending
	q.pending = nil

	var firstErr error
	for _, pf := range pending {
		if err := p.finalizeOne(pf, decision); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Processor) finalizeOne(pf model.PendingFile, decision model.FolderAlbumDecision) error {
	merged := pf.Metadata.ApplyDecision(decision)

	if err := tagio.WriteTags(pf.ProcessingPath, merged, pf.CoverBytes); err != nil {
		return fmt.Errorf("write tags %s: %w", pf.ProcessingPath, err)
	}

	ext := filepath.Ext(pf.ProcessingPath)
	dest := library.Destination(p.outputRoot, merged, ext)
	finalPath, err := library.Place(pf.ProcessingPath, dest)
	if err != nil {
		return fmt.Errorf("place %s: %w", pf.ProcessingPath, err)
	}

	hash, size, err := hashAndSize(finalPath)
	if err != nil {
		return fmt.Errorf("hash %s: %w", finalPath, err)
	}

	return p.log.Mark(model.ProcessedRecord{
		FilePath:    pf.OriginalPath,
		FileHash:    hash,
		FileSize:    size,
		RecordingID: merged.RecordingID,
		Artist:      merged.Artist,
		Title:       merged.Title,
		Album:       merged.Album,
	})
}

// hashAndSize returns path's MD5 hex digest and byte size, matching the
// content-identity check alexander-bruun-Orb's ingest hashing uses to decide
// whether a file has genuinely changed since it was last recorded.
func hashAndSize(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ForceFinalize installs a FORCED decision from fallback's metadata when no
// election succeeded but the queue is complete, then finalizes the folder.
// Callers must hold folderPath's lock.
func (p *Processor) ForceFinalize(folderPath string, fallback model.PendingFile) error {
	md := fallback.Metadata
	decision := model.FolderAlbumDecision{
		ReleaseGroupID: md.ReleaseGroupID,
		ReleaseID:      md.ReleaseID,
		AlbumTitle:     md.Album,
		AlbumArtist:    md.AlbumArtist,
		TrackCount:     md.TrackCount,
		ReleaseDate:    md.ReleaseDate,
		Similarity:     0,
		Source:         model.SourceForced,
	}
	installed, _ := p.cache.TryLock(folderPath, decision)
	return p.FinalizeAll(folderPath, installed)
}

// ReadyForForce reports whether folderPath's queue has accumulated one
// sample per expected file, i.e. every file in the folder has at least
// reached the pending stage.
func (p *Processor) ReadyForForce(folderPath string) (model.PendingFile, bool) {
	q := p.queueFor(folderPath)
	if q.expectedCount == 0 || len(q.pending) < q.expectedCount {
		return model.PendingFile{}, false
	}
	return q.pending[0], true
}

// PendingFolders reports how many folders currently hold at least one
// unfinalized sample, for the dashboard's "folders pending" status field.
func (p *Processor) PendingFolders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, q := range p.folders {
		if len(q.pending) > 0 {
			n++
		}
	}
	return n
}

// ProcessBeforeShutdown drains every folder with a non-empty queue via
// ForceFinalize, so no sample is lost across a graceful restart.
func (p *Processor) ProcessBeforeShutdown() []error {
	p.mu.Lock()
	paths := make([]string, 0, len(p.folders))
	for folder, q := range p.folders {
		if len(q.pending) > 0 {
			paths = append(paths, folder)
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, folder := range paths {
		unlock := p.locks.Lock(folder)
		q := p.queueFor(folder)
		if len(q.pending) > 0 {
			if err := p.ForceFinalize(folder, q.pending[0]); err != nil {
				errs = append(errs, err)
			}
		}
		unlock()
	}
	return errs
}

