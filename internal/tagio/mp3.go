package tagio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	id3 "github.com/bogem/id3v2/v2"

	"github.com/soundwatch/soundwatch/internal/model"
)

// mp3Codec implements codec for MP3 via bogem/id3v2, the MP3 tag library
// used throughout MoonFuji-SpotiFLAC.
type mp3Codec struct{}

func (mp3Codec) readTags(path string) (model.MusicMetadata, error) {
	tag, err := id3.Open(path, id3.Options{Parse: true})
	if err != nil {
		return model.MusicMetadata{}, fmt.Errorf("open mp3 %s: %w", path, err)
	}
	defer tag.Close()

	md := model.MusicMetadata{
		Title:       tag.Title(),
		Artist:      tag.Artist(),
		Album:       tag.Album(),
		ReleaseDate: tag.Year(),
	}
	if genre := tag.Genre(); genre != "" {
		md.Genres = strings.Split(genre, ";")
	}
	if frame := tag.GetTextFrame(tag.CommonID("TPE2")); frame.Text != "" {
		md.AlbumArtist = frame.Text
	}
	if frame := tag.GetTextFrame(tag.CommonID("TCOM")); frame.Text != "" {
		md.Composer = frame.Text
	}
	md.TrackNo, md.TrackCount = splitSlashPair(tag.GetTextFrame(tag.CommonID("TRCK")).Text)
	md.DiscNo, _ = splitSlashPair(tag.GetTextFrame(tag.CommonID("TPOS")).Text)
	return md, nil
}

func (mp3Codec) duration(path string) (int, error) {
	// bogem/id3v2 does not expose audio duration, so MP3 files report 0;
	// the duration sequences QuickScan and the processor build from
	// Duration carry that 0 as-is.
	return 0, nil
}

func (mp3Codec) writeTags(path string, md model.MusicMetadata, cover []byte) error {
	// id3v2 saves in place against the path it was opened with, so atomicity
	// is achieved by mutating a scratch copy and renaming it over the
	// original only once the save has fully succeeded and been fsynced.
	dir := filepath.Dir(path)
	tmpPath, err := copyToTemp(path, dir)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	tag, err := id3.Open(tmpPath, id3.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open mp3 %s: %w", path, err)
	}
	defer tag.Close()

	tag.DeleteAllFrames()
	tag.SetVersion(4)
	setIfPresent(tag, tag.SetTitle, md.Title)
	setIfPresent(tag, tag.SetArtist, md.Artist)
	setIfPresent(tag, tag.SetAlbum, md.Album)
	setIfPresent(tag, tag.SetYear, md.ReleaseDate)
	if len(md.Genres) > 0 {
		tag.SetGenre(strings.Join(md.Genres, ";"))
	}
	if !model.Unset(md.AlbumArtist) {
		tag.AddTextFrame(tag.CommonID("TPE2"), id3.EncodingUTF8, md.AlbumArtist)
	}
	if !model.Unset(md.Composer) {
		tag.AddTextFrame(tag.CommonID("TCOM"), id3.EncodingUTF8, md.Composer)
	}
	if md.TrackNo > 0 {
		tag.AddTextFrame(tag.CommonID("TRCK"), id3.EncodingUTF8, trackPair(md.TrackNo, md.TrackCount))
	}
	if md.DiscNo > 0 {
		tag.AddTextFrame(tag.CommonID("TPOS"), id3.EncodingUTF8, strconv.Itoa(md.DiscNo))
	}

	if len(cover) > 0 {
		tag.AddAttachedPicture(id3.PictureFrame{
			Encoding:    id3.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3.PTFrontCover,
			Description: "Front cover",
			Picture:     cover,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save mp3 tag to %s: %w", tmpPath, err)
	}
	tag.Close()
	if err := fsyncPath(tmpPath); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s into place: %w", path, err)
	}
	return nil
}

// copyToTemp copies src's bytes into a new temp file under dir and returns
// its path.
func copyToTemp(src, dir string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	tmpFile, err := os.CreateTemp(dir, ".tagio-mp3-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", src, err)
	}
	defer tmpFile.Close()
	if _, err := tmpFile.Write(data); err != nil {
		return "", fmt.Errorf("write temp copy of %s: %w", src, err)
	}
	return tmpFile.Name(), nil
}

func setIfPresent(tag *id3.Tag, setter func(string), value string) {
	if !model.Unset(value) {
		setter(value)
	}
}

func trackPair(track, total int) string {
	if total > 0 {
		return fmt.Sprintf("%d/%d", track, total)
	}
	return strconv.Itoa(track)
}

func splitSlashPair(s string) (first, second int) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) > 0 {
		first, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
	}
	if len(parts) > 1 {
		second, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return first, second
}

func (mp3Codec) hasEmbeddedCover(path string) bool {
	tag, err := id3.Open(path, id3.Options{Parse: true})
	if err != nil {
		return false
	}
	defer tag.Close()
	return len(tag.GetFrames(tag.CommonID("Attached picture"))) > 0
}

func (mp3Codec) extractEmbeddedCover(path string) ([]byte, error) {
	tag, err := id3.Open(path, id3.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("open mp3 %s: %w", path, err)
	}
	defer tag.Close()

	frames := tag.GetFrames(tag.CommonID("Attached picture"))
	for _, f := range frames {
		if pic, ok := f.(id3.PictureFrame); ok {
			return pic.Picture, nil
		}
	}
	return nil, nil
}
