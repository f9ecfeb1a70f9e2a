package tagio

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"

	"github.com/soundwatch/soundwatch/internal/model"
)

// genericCodec handles M4A, OGG, and WAV via dhowden/tag, the read-only tag
// library alexander-bruun-Orb's cmd/ingest uses for its own tag reading.
// These three containers have no actively maintained pure-Go write support
// anywhere in the reference corpus, so writeTags reports a permanent error
// for them rather than silently no-op'ing; the processor treats that as
// PERMANENT_FAIL for the affected file, never a silent data loss.
type genericCodec struct{}

func (genericCodec) readTags(path string) (model.MusicMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.MusicMetadata{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return model.MusicMetadata{}, fmt.Errorf("read tags %s: %w", path, err)
	}

	trackNo, trackTotal := m.Track()
	discNo, _ := m.Disc()
	md := model.MusicMetadata{
		Title:       m.Title(),
		Artist:      m.Artist(),
		Album:       m.Album(),
		AlbumArtist: m.AlbumArtist(),
		Composer:    m.Composer(),
		ReleaseDate: yearString(m.Year()),
		TrackNo:     trackNo,
		TrackCount:  trackTotal,
		DiscNo:      discNo,
	}
	if genre := m.Genre(); genre != "" {
		md.Genres = []string{genre}
	}
	return md, nil
}

func yearString(year int) string {
	if year <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", year)
}

func (genericCodec) duration(path string) (int, error) {
	// dhowden/tag exposes no audio-duration accessor, so these containers
	// report 0; the duration sequences QuickScan and the processor build
	// from Duration carry that 0 as-is.
	return 0, nil
}

func (genericCodec) writeTags(path string, md model.MusicMetadata, cover []byte) error {
	return fmt.Errorf("tagio: writing tags is unsupported for %s (no maintained pure-Go writer in scope)", path)
}

func (genericCodec) hasEmbeddedCover(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return false
	}
	return m.Picture() != nil
}

func (genericCodec) extractEmbeddedCover(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags %s: %w", path, err)
	}
	if pic := m.Picture(); pic != nil {
		return pic.Data, nil
	}
	return nil, nil
}
