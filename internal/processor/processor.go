// Package processor implements AudioFileProcessor (§4.11): the driver that
// takes one file through identification, album-locking, enrichment, tagging,
// and placement. Grounded on alexander-bruun-Orb's cmd/ingest per-file
// ingest loop (tag read → MusicBrainz enrich → write → move), generalized
// here into the full two-tier identification + album-coordination pipeline
// the teacher's single-pass ingest never needed.
package processor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/soundwatch/soundwatch/internal/batch"
	"github.com/soundwatch/soundwatch/internal/fingerprint"
	"github.com/soundwatch/soundwatch/internal/httpx"
	"github.com/soundwatch/soundwatch/internal/library"
	"github.com/soundwatch/soundwatch/internal/model"
	"github.com/soundwatch/soundwatch/internal/processedlog"
	"github.com/soundwatch/soundwatch/internal/quickscan"
	"github.com/soundwatch/soundwatch/internal/selection"
	"github.com/soundwatch/soundwatch/internal/tagio"
)

// Outcome is the processor's typed result, reported instead of a bare error
// so the caller (DirectoryMonitor's retry scheduler) can apply the right
// policy without inspecting error strings.
type Outcome int

const (
	Success Outcome = iota
	DelayRetry
	NetworkErrorRetry
	PermanentFail
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case DelayRetry:
		return "DELAY_RETRY"
	case NetworkErrorRetry:
		return "NETWORK_ERROR_RETRY"
	case PermanentFail:
		return "PERMANENT_FAIL"
	default:
		return "UNKNOWN"
	}
}

// inProgressSuffixes marks a file (anywhere in the folder) as belonging to a
// download still being written, per §4.11 step 2.
var inProgressSuffixes = []string{".!qb", ".!qB", ".part", ".ut!", ".crdownload", ".tmp", ".download"}

// FingerprintSource is the subset of internal/fingerprint.Client the
// processor needs.
type FingerprintSource interface {
	Extract(ctx context.Context, path string) (durationSeconds int, fp string, err error)
	Lookup(ctx context.Context, durationSeconds int, fp string) ([]fingerprint.Recording, error)
}

// MetadataSource is the subset of internal/musicbrainz.Client the processor
// needs.
type MetadataSource interface {
	GetRecordingByID(ctx context.Context, recordingID string, fileCount int, preferredReleaseGroupID, preferredReleaseID string, observedDurationSec int) (model.MusicMetadata, error)
	GetTrackFromLockedReleaseByDuration(ctx context.Context, releaseID, releaseGroupID string, observedDurationSec int, fallbackTitle, fallbackArtist string) (*model.MusicMetadata, error)
	GetTrackFromLockedReleaseGroupByDuration(ctx context.Context, releaseGroupID string, observedDurationSec, fileCount int, fallbackTitle, fallbackArtist string) (*model.MusicMetadata, error)
}

// AlbumCache is the subset of internal/albumcache.Cache the processor needs.
type AlbumCache interface {
	Get(folderPath string) (model.FolderAlbumDecision, bool)
	TryLock(folderPath string, incoming model.FolderAlbumDecision) (model.FolderAlbumDecision, bool)
	Lock(folderPath string) func()
}

// CoverSource resolves cover art for a release-group within a folder.
type CoverSource interface {
	GetCover(ctx context.Context, folderPath, releaseGroupID string, siblingPaths []string) ([]byte, error)
}

// LyricsSource is the best-effort lyrics lookup.
type LyricsSource interface {
	GetLyrics(ctx context.Context, title, artist, album string, durationSec int) string
}

// CueSplitter hands a single-file CUE-sheet album off to an external
// collaborator and gets back the split per-track files to recurse on (§4.11
// step 3); internal/cuesplit is the concrete implementation, kept behind
// this interface so the processor never depends on ffmpeg directly.
type CueSplitter interface {
	IsCueAlbum(folderPath string) (cueFile string, ok bool)
	Split(ctx context.Context, folderPath, cueFile string) (trackPaths []string, err error)
}

// Deps bundles the processor's collaborators.
type Deps struct {
	Fingerprint FingerprintSource
	Metadata    MetadataSource
	QuickScan   *quickscan.Scanner
	AlbumCache  AlbumCache
	Batch       *batch.Processor
	Cover       CoverSource
	Lyrics      LyricsSource
	Cue         CueSplitter
	Log         processedlog.Log

	WatchRoot  string
	OutputRoot string
	FailedDir  string
	PartialDir string
	MaxRetries int
}

// Processor drives a single file through the pipeline.
type Processor struct {
	d Deps
}

func New(d Deps) *Processor {
	return &Processor{d: d}
}

// Process implements §4.11 end to end for one file.
func (p *Processor) Process(ctx context.Context, path string) Outcome {
	if done, err := p.d.Log.IsProcessed(path); err == nil && done {
		return Success
	}

	folderPath := filepath.Dir(path)
	albumRoot := p.albumRoot(path)

	if p.hasInProgressSibling(folderPath) {
		return DelayRetry
	}

	if p.d.Cue != nil {
		if cueFile, ok := p.d.Cue.IsCueAlbum(folderPath); ok {
			tracks, err := p.d.Cue.Split(ctx, folderPath, cueFile)
			if err != nil {
				return p.fail(path, albumRoot, "cue split failed: "+err.Error())
			}
			worst := Success
			for _, t := range tracks {
				if o := p.Process(ctx, t); o > worst {
					worst = o
				}
			}
			_ = p.d.Log.Mark(model.ProcessedRecord{FilePath: path, RecordingID: model.SentinelCueSplit})
			return worst
		}
	}

	siblings := p.audioSiblings(albumRoot)
	expectedCount := len(siblings)
	loose := folderPath == p.d.WatchRoot

	var decision model.FolderAlbumDecision
	var locked bool
	var unlock func()

	if !loose {
		unlock = p.d.AlbumCache.Lock(albumRoot)
		defer unlock()

		decision, locked = p.d.AlbumCache.Get(albumRoot)
		if !locked {
			if qr, ok := p.d.QuickScan.Scan(ctx, path, albumRoot, siblings, nil); ok {
				decision = model.FolderAlbumDecision{
					ReleaseGroupID: qr.Metadata.ReleaseGroupID,
					ReleaseID:      qr.Metadata.ReleaseID,
					AlbumTitle:     qr.Metadata.Album,
					AlbumArtist:    qr.Metadata.AlbumArtist,
					TrackCount:     qr.Metadata.TrackCount,
					ReleaseDate:    qr.Metadata.ReleaseDate,
					Similarity:     qr.Similarity,
					Source:         model.SourceQuickScan,
				}
				decision, locked = p.d.AlbumCache.TryLock(albumRoot, decision)
			}
		}
	}

	durationSec, fp, fpErr := p.d.Fingerprint.Extract(ctx, path)
	var recordings []fingerprint.Recording
	if fpErr == nil {
		recordings, fpErr = p.d.Fingerprint.Lookup(ctx, durationSec, fp)
	}
	if fpErr != nil && fpErr != fingerprint.ErrCLIMissing {
		return p.networkOrPermanent(path, albumRoot, fpErr)
	}

	var md model.MusicMetadata
	switch {
	case len(recordings) == 0 && locked:
		md = p.synthesizeFromLock(path, decision, durationSec)
	case len(recordings) == 0 && !locked:
		if o, ok := p.tryPartial(ctx, path, albumRoot, siblings); ok {
			return o
		}
		return p.failWithSentinel(path, albumRoot, "no fingerprint match and no folder decision", model.SentinelUnknown)
	default:
		rec := p.chooseRecording(path, recordings, decision, locked)
		fetched, err := p.d.Metadata.GetRecordingByID(ctx, rec.RecordingID, expectedCount, decision.ReleaseGroupID, decision.ReleaseID, durationSec)
		if err != nil {
			return p.networkOrPermanent(path, albumRoot, err)
		}
		md = fetched
		if locked && md.ReleaseGroupID != "" && md.ReleaseGroupID != decision.ReleaseGroupID {
			if refined, err := p.d.Metadata.GetTrackFromLockedReleaseGroupByDuration(ctx, decision.ReleaseGroupID, durationSec, expectedCount, md.Title, md.Artist); err == nil && refined != nil {
				md = *refined
			} else {
				md = md.ApplyDecision(decision)
			}
		}
	}

	sourceTags, _ := tagio.ReadTags(path)
	md = md.MergeSourcePreferred(sourceTags)
	if model.Unset(md.Title) {
		md.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	coverBytes, _ := p.coverFor(ctx, albumRoot, md.ReleaseGroupID, siblings)
	md.CoverArtData = coverBytes
	md.Lyrics = p.d.Lyrics.GetLyrics(ctx, md.Title, md.Artist, md.Album, durationSec)

	pending := model.PendingFile{
		OriginalPath:   path,
		ProcessingPath: path,
		Metadata:       md,
		CoverBytes:     coverBytes,
		Timestamp:      model.Clock(),
	}

	if loose {
		return p.writeImmediately(pending, decision)
	}

	p.d.Batch.AddPending(albumRoot, pending, expectedCount)
	sample := batch.SampleInfo{ObservedDurations: observedDurations(siblings)}
	if d, ok := p.d.Batch.TryDetermine(ctx, albumRoot, expectedCount, sample); ok {
		if err := p.d.Batch.FinalizeAll(albumRoot, d); err != nil {
			return p.fail(path, albumRoot, err.Error())
		}
		return Success
	}
	if fallback, ready := p.d.Batch.ReadyForForce(albumRoot); ready {
		if err := p.d.Batch.ForceFinalize(albumRoot, fallback); err != nil {
			return p.fail(path, albumRoot, err.Error())
		}
	}
	return Success
}

func (p *Processor) writeImmediately(pending model.PendingFile, decision model.FolderAlbumDecision) Outcome {
	merged := pending.Metadata
	if decision.ReleaseGroupID != "" {
		merged = merged.ApplyDecision(decision)
	}
	if err := tagio.WriteTags(pending.ProcessingPath, merged, pending.CoverBytes); err != nil {
		return p.fail(pending.OriginalPath, "", err.Error())
	}
	ext := filepath.Ext(pending.ProcessingPath)
	dest := library.Destination(p.d.OutputRoot, merged, ext)
	if _, err := library.Place(pending.ProcessingPath, dest); err != nil {
		return p.fail(pending.OriginalPath, "", err.Error())
	}
	_ = p.d.Log.Mark(model.ProcessedRecord{
		FilePath:    pending.OriginalPath,
		RecordingID: merged.RecordingID,
		Artist:      merged.Artist,
		Title:       merged.Title,
		Album:       merged.Album,
	})
	return Success
}

// chooseRecording implements §4.11 step 9: prefer a recording whose
// release-groups intersect the lock, prefer complete title+artist, and break
// ties by version-indicator similarity to the filename (§4.13).
func (p *Processor) chooseRecording(path string, recordings []fingerprint.Recording, decision model.FolderAlbumDecision, locked bool) fingerprint.Recording {
	candidates := recordings
	if locked && decision.ReleaseGroupID != "" {
		if matched := filterByReleaseGroup(recordings, decision.ReleaseGroupID); len(matched) > 0 {
			candidates = matched
		}
	}
	if complete := filterComplete(candidates); len(complete) > 0 {
		candidates = complete
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	selCandidates := make([]selection.Recording, len(candidates))
	for i, c := range candidates {
		selCandidates[i] = selection.Recording{ID: c.RecordingID, Title: c.Title}
	}
	idx, ok := selection.Best(filepath.Base(path), selCandidates)
	if !ok {
		return candidates[0]
	}
	return candidates[idx]
}

func filterByReleaseGroup(recordings []fingerprint.Recording, releaseGroupID string) []fingerprint.Recording {
	var out []fingerprint.Recording
	for _, r := range recordings {
		for _, rg := range r.ReleaseGroups {
			if rg.ID == releaseGroupID {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func filterComplete(recordings []fingerprint.Recording) []fingerprint.Recording {
	var out []fingerprint.Recording
	for _, r := range recordings {
		if !model.Unset(r.Title) && !model.Unset(r.Artist) {
			out = append(out, r)
		}
	}
	return out
}

// synthesizeFromLock builds metadata when the fingerprint match is empty but
// a folder decision is already locked (§4.11 step 8, first branch).
func (p *Processor) synthesizeFromLock(path string, decision model.FolderAlbumDecision, durationSec int) model.MusicMetadata {
	return model.MusicMetadata{
		Title:          strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Album:          decision.AlbumTitle,
		AlbumArtist:    decision.AlbumArtist,
		ReleaseGroupID: decision.ReleaseGroupID,
		ReleaseID:      decision.ReleaseID,
		ReleaseDate:    decision.ReleaseDate,
		TrackCount:     decision.TrackCount,
	}
}

func (p *Processor) coverFor(ctx context.Context, albumRoot, releaseGroupID string, siblings []string) ([]byte, error) {
	if p.d.Cover == nil {
		return nil, nil
	}
	return p.d.Cover.GetCover(ctx, albumRoot, releaseGroupID, siblings)
}

// tryPartial implements §6's partial-recognition surface: fingerprinting
// found nothing and no folder decision is locked, but a cover can still be
// found locally (sibling embedded art or a folder image — passing an empty
// release-group ID keeps Cover.GetCover from ever reaching the archive).
// When one turns up, the file earns a spot under PartialDir instead of
// FailedDir, with that cover embedded unless one already was.
func (p *Processor) tryPartial(ctx context.Context, path, albumRoot string, siblings []string) (Outcome, bool) {
	if p.d.Cover == nil {
		return 0, false
	}
	cover, err := p.d.Cover.GetCover(ctx, albumRoot, "", siblings)
	if err != nil || len(cover) == 0 {
		return 0, false
	}

	md, _ := tagio.ReadTags(path)
	if model.Unset(md.Title) {
		md.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if !tagio.HasEmbeddedCover(path) {
		if err := tagio.WriteTags(path, md, cover); err != nil {
			return 0, false
		}
	}

	dest := library.PartialDestination(p.d.PartialDir, p.d.WatchRoot, path)
	if _, err := library.Place(path, dest); err != nil {
		return 0, false
	}
	_ = p.d.Log.Mark(model.ProcessedRecord{FilePath: path, RecordingID: model.SentinelUnknown})
	slog.Warn("partial recognition: cover found, identification failed", "path", path, "folder", albumRoot)
	return PermanentFail, true
}

// albumRoot computes the first-level child of the watch root containing
// path, or path's own folder when path sits directly under the watch root.
func (p *Processor) albumRoot(path string) string {
	rel, err := filepath.Rel(p.d.WatchRoot, path)
	if err != nil {
		return filepath.Dir(path)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) <= 1 {
		return p.d.WatchRoot
	}
	return filepath.Join(p.d.WatchRoot, parts[0])
}

func (p *Processor) audioSiblings(albumRoot string) []string {
	var out []string
	_ = filepath.WalkDir(albumRoot, func(fp string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if isSupportedExt(fp) {
			out = append(out, fp)
		}
		return nil
	})
	return out
}

func (p *Processor) hasInProgressSibling(folderPath string) bool {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		for _, suffix := range inProgressSuffixes {
			if strings.HasSuffix(name, suffix) {
				return true
			}
		}
	}
	return false
}

// observedDurations extracts each sibling's duration straight from its own
// tags (no fpcalc invocation), skipping files that fail to read, matching
// quickscan's duration-sequence construction for the same §4.6 DTW contract.
func observedDurations(paths []string) []int {
	out := make([]int, 0, len(paths))
	for _, p := range paths {
		d, err := tagio.Duration(p)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

func isSupportedExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range tagio.SupportedExtensions() {
		if strings.ToLower(supported) == ext {
			return true
		}
	}
	return false
}

func (p *Processor) fail(path, albumRoot, reason string) Outcome {
	return p.failWithSentinel(path, albumRoot, reason, model.SentinelFailed)
}

// failWithSentinel is fail's general form: every other permanent-failure
// call site (cue split, tag write/place errors, non-retryable API errors) is
// a genuine processing failure and keeps the FAILED sentinel; S6's
// no-match-no-lock-no-cover case is not, and records UNKNOWN instead.
func (p *Processor) failWithSentinel(path, albumRoot, reason, sentinel string) Outcome {
	if p.d.FailedDir != "" {
		dest := library.FailedDestination(p.d.FailedDir, p.d.WatchRoot, albumRoot, path)
		_, _ = library.Place(path, dest)
	}
	_ = p.d.Log.Mark(model.ProcessedRecord{FilePath: path, RecordingID: sentinel})
	slog.Error("permanent failure", "path", path, "folder", albumRoot, "reason", reason)
	return PermanentFail
}

func (p *Processor) networkOrPermanent(path, albumRoot string, err error) Outcome {
	if httpx.IsRetryableError(err) {
		return NetworkErrorRetry
	}
	return p.fail(path, albumRoot, err.Error())
}
