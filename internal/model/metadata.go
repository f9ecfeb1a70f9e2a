// Package model holds the traveling records passed between pipeline stages.
package model

import (
	"strings"
	"time"
)

// Clock returns the current unix time in seconds; the sole indirection point
// for PendingFile.Timestamp so tests can substitute a fixed value.
var Clock = func() int64 { return time.Now().Unix() }

// DecisionSource ranks how a FolderAlbumDecision was established. Higher
// values win when a folder already carries a decision; see FolderAlbumDecision.
type DecisionSource int

const (
	SourceVote DecisionSource = iota
	SourceDurationMatch
	SourceForced
	SourceQuickScan
)

func (s DecisionSource) String() string {
	switch s {
	case SourceQuickScan:
		return "QUICK_SCAN"
	case SourceForced:
		return "FORCED"
	case SourceDurationMatch:
		return "DURATION_MATCH"
	case SourceVote:
		return "VOTE"
	default:
		return "UNKNOWN"
	}
}

// Outranks reports whether s has strictly higher priority than other.
func (s DecisionSource) Outranks(other DecisionSource) bool {
	return s > other
}

// Sentinel recordingId values recorded in ProcessedLog for terminal outcomes
// that were not a genuine registry match.
const (
	SentinelFailed   = "FAILED"
	SentinelCueSplit = "CUE_SPLIT"
	SentinelUnknown  = "UNKNOWN"
)

// MusicMetadata is the pipeline's traveling record for a single audio file.
// All string fields may be Unset; nil Composer/Lyricist/Genres are legal.
type MusicMetadata struct {
	RecordingID    string
	Title          string
	Artist         string
	AlbumArtist    string
	Album          string
	ReleaseDate    string
	TrackNo        int
	DiscNo         int
	TrackCount     int
	Composer       string
	Lyricist       string
	Lyrics         string
	Genres         []string
	ReleaseGroupID string
	ReleaseID      string
	CoverArtURL    string
	CoverArtData   []byte
}

// Unset reports whether a string field should be treated as absent: missing,
// empty, or whitespace-only.
func Unset(s string) bool {
	return strings.TrimSpace(s) == ""
}

// HasPartialTags reports whether at least one of title, artist, album is set.
func (m MusicMetadata) HasPartialTags() bool {
	return !Unset(m.Title) || !Unset(m.Artist) || !Unset(m.Album)
}

// MergeSourcePreferred overlays values from source onto m, but only where
// m's current field is unset, preserving composer/lyricist/lyrics/genres/
// discNo/trackNo from the source tags per §4.11 step 10.
func (m MusicMetadata) MergeSourcePreferred(source MusicMetadata) MusicMetadata {
	out := m
	if Unset(out.Composer) {
		out.Composer = source.Composer
	}
	if Unset(out.Lyricist) {
		out.Lyricist = source.Lyricist
	}
	if Unset(out.Lyrics) {
		out.Lyrics = source.Lyrics
	}
	if len(out.Genres) == 0 {
		out.Genres = source.Genres
	}
	if out.DiscNo == 0 {
		out.DiscNo = source.DiscNo
	}
	if out.TrackNo == 0 {
		out.TrackNo = source.TrackNo
	}
	return out
}

// ApplyDecision overwrites the album-level fields of m with those locked by a
// FolderAlbumDecision, per the invariant that every sibling file inherits the
// folder's album, albumArtist, releaseGroupId, releaseDate.
func (m MusicMetadata) ApplyDecision(d FolderAlbumDecision) MusicMetadata {
	out := m
	out.Album = d.AlbumTitle
	out.AlbumArtist = d.AlbumArtist
	out.ReleaseGroupID = d.ReleaseGroupID
	out.ReleaseDate = d.ReleaseDate
	if d.ReleaseID != "" {
		out.ReleaseID = d.ReleaseID
	}
	return out
}

// FolderAlbumDecision is the cache entry installed by FolderAlbumCache for a
// single album-root folder. It is immutable once constructed; a new decision
// replaces the whole value, never mutates one in place.
type FolderAlbumDecision struct {
	ReleaseGroupID string
	ReleaseID      string // nullable: empty means unknown
	AlbumTitle     string
	AlbumArtist    string
	TrackCount     int
	ReleaseDate    string
	Similarity     float64
	Source         DecisionSource
}

// ProcessedRecord is a durable row recorded by ProcessedLog.
type ProcessedRecord struct {
	FilePath    string
	FileHash    string
	FileSize    int64
	ProcessedAt string // RFC3339
	RecordingID string
	Artist      string
	Title       string
	Album       string
}

// Candidate is a release-group gathered from fingerprint-lookup responses
// while an album's identity is still being decided.
type Candidate struct {
	ReleaseGroupID string
	ReleaseTitle   string
}

// PendingFile is queued under a folder path until that folder's album is
// decided (or force-finalized) by AlbumBatchProcessor.
type PendingFile struct {
	OriginalPath   string
	ProcessingPath string
	Metadata       MusicMetadata
	CoverBytes     []byte
	Timestamp      int64 // unix seconds, set by the caller (see model.Clock)
}
