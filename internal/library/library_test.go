package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/soundwatch/soundwatch/internal/model"
)

func TestSanitizeReplacesReservedCharacters(t *testing.T) {
	got := Sanitize(`AC/DC: Back In Black?`)
	want := "AC_DC_ Back In Black_"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeEmptyFallsBackToTrack(t *testing.T) {
	if got := Sanitize("..."); got != "Track" {
		t.Fatalf("got %q, want Track", got)
	}
}

func TestDestinationUsesTrackNumberPrefix(t *testing.T) {
	md := model.MusicMetadata{
		AlbumArtist: "Artist",
		Album:       "Album",
		Title:       "Song",
		TrackNo:     3,
	}
	got := Destination("/out", md, ".flac")
	want := filepath.Join("/out", "Artist", "Album", "03 - Song.flac")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDestinationFallsBackToUnknownFields(t *testing.T) {
	got := Destination("/out", model.MusicMetadata{}, ".mp3")
	want := filepath.Join("/out", "Unknown Artist", "Unknown Album", "Track.mp3")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPlaceResolvesCollisionWithSuffix(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out", "song.flac")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(dir, "incoming.flac")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	finalPath, err := Place(src, dest)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "out", "song (1).flac")
	if finalPath != want {
		t.Fatalf("got %q, want %q", finalPath, want)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source file should have been moved away")
	}
}

func TestFailedDestinationPreservesAlbumStructure(t *testing.T) {
	got := FailedDestination("/failed", "/watch", "/watch/Artist/Album", "/watch/Artist/Album/01.flac")
	want := filepath.Join("/failed", "Album", "01.flac")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFailedDestinationLooseFile(t *testing.T) {
	got := FailedDestination("/failed", "/watch", "", "/watch/loose.flac")
	want := filepath.Join("/failed", "loose.flac")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPartialDestinationPreservesRelativeStructure(t *testing.T) {
	got := PartialDestination("/partial", "/watch", "/watch/Artist/Album/01.flac")
	want := filepath.Join("/partial", "Artist", "Album", "01.flac")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPartialDestinationFallsBackOutsideWatchRoot(t *testing.T) {
	got := PartialDestination("/partial", "/watch", "/other/loose.flac")
	want := filepath.Join("/partial", "loose.flac")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
