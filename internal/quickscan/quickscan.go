// Package quickscan implements QuickScan (§4.9): the tier-1 identification
// path that tries existing tags and folder-name parsing before ever paying
// for a fingerprint call. Grounded on alexander-bruun-Orb's cmd/ingest
// filename-pattern parsing (artist/album/year folder names) and on
// MoonFuji-SpotiFLAC's use of go-edlib JaroWinkler similarity to rank
// loosely-matching search results.
package quickscan

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/soundwatch/soundwatch/internal/duration"
	"github.com/soundwatch/soundwatch/internal/model"
	"github.com/soundwatch/soundwatch/internal/musicbrainz"
	"github.com/soundwatch/soundwatch/internal/tagio"
)

// folderPattern matches "Artist - Album (Year)", "Artist - Album", or
// "Album (Year)" folder names, per §4.9 step 1.
var folderPattern = regexp.MustCompile(`^(?:(.+?)\s*-\s*)?(.+?)(?:\s*\((\d{4})\))?$`)

// ReleaseSearcher is the subset of internal/musicbrainz.Client QuickScan
// needs: a title/artist search plus the per-release-group duration sequence
// used for the §4.6 DTW pass.
type ReleaseSearcher interface {
	SearchRelease(ctx context.Context, album, artist string) ([]model.MusicMetadata, error)
	GetReleaseDurationSequence(ctx context.Context, releaseGroupID string) (musicbrainz.ReleaseDurationInfo, error)
}

// Scanner runs QuickScan over a single candidate file.
type Scanner struct {
	Registry ReleaseSearcher
}

func New(registry ReleaseSearcher) *Scanner {
	return &Scanner{Registry: registry}
}

// Result is QuickScan's successful outcome: a metadata record (with
// ReleaseGroupID/ReleaseID/Album/AlbumArtist/ReleaseDate/TrackCount set from
// the winning release) and the duration-sequence similarity that won it.
type Result struct {
	Metadata   model.MusicMetadata
	Similarity float64
}

// Scan implements §4.9. folderPath is the album-root directory containing
// file; siblingPaths lists every audio file in that folder in a stable order
// (used to build the observed duration sequence); precomputedDurations, if
// non-nil and the same length as siblingPaths, is reused instead of invoking
// the duration extraction again.
func (s *Scanner) Scan(ctx context.Context, file, folderPath string, siblingPaths []string, precomputedDurations []int) (Result, bool) {
	artist, album := artistAlbumFromTags(file)
	if model.Unset(album) {
		artist, album = parseFolderName(filepath.Base(folderPath))
	}
	if model.Unset(album) {
		return Result{}, false
	}

	candidates, err := s.Registry.SearchRelease(ctx, album, artist)
	if err != nil || len(candidates) == 0 {
		return Result{}, false
	}
	candidates = rankByNameSimilarity(album, candidates)

	observed := precomputedDurations
	if len(observed) != len(siblingPaths) {
		observed = durationsFromTags(siblingPaths)
	}

	// §4.9 step 4-5: DTW each candidate's release-group duration sequence
	// against the folder's observed sequence, short-circuiting on the first
	// one to reach HighConfidence, in candidate-similarity-ranked order.
	for _, c := range candidates {
		info, err := s.Registry.GetReleaseDurationSequence(ctx, c.ReleaseGroupID)
		if err != nil || len(info.Durations) == 0 {
			continue
		}
		sim := duration.Similarity(observed, info.Durations)
		if sim < duration.HighConfidence {
			continue
		}
		md := c
		md.ReleaseID = info.ReleaseID
		md.ReleaseDate = info.ReleaseDate
		md.TrackCount = info.TrackCount
		return Result{Metadata: md, Similarity: sim}, true
	}
	return Result{}, false
}

// rankByNameSimilarity orders candidates by JaroWinkler similarity of their
// album title to the parsed/tagged album name, highest first, so the
// short-circuit in Scan tries the most plausible release first.
func rankByNameSimilarity(album string, candidates []model.MusicMetadata) []model.MusicMetadata {
	type scored struct {
		md  model.MusicMetadata
		sim float32
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		sim, err := edlib.StringsSimilarity(strings.ToLower(album), strings.ToLower(c.Album), edlib.JaroWinkler)
		if err != nil {
			sim = 0
		}
		ranked[i] = scored{md: c, sim: sim}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })
	out := make([]model.MusicMetadata, len(ranked))
	for i, r := range ranked {
		out[i] = r.md
	}
	return out
}

// artistAlbumFromTags reads file's embedded tags, returning its artist/album
// if present. A read failure yields empty strings so the caller falls back
// to folder-name parsing.
func artistAlbumFromTags(file string) (artist, album string) {
	md, err := tagio.ReadTags(file)
	if err != nil {
		return "", ""
	}
	if !model.Unset(md.AlbumArtist) {
		artist = md.AlbumArtist
	} else {
		artist = md.Artist
	}
	return artist, md.Album
}

// parseFolderName applies folderPattern to name, returning (artist, album).
func parseFolderName(name string) (artist, album string) {
	m := folderPattern.FindStringSubmatch(name)
	if m == nil {
		return "", strings.TrimSpace(name)
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
}

// durationsFromTags extracts each sibling's duration via tagio.Duration (no
// fpcalc invocation): FLAC reads STREAMINFO, other containers report 0.
// Files that fail to read are skipped.
func durationsFromTags(paths []string) []int {
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
