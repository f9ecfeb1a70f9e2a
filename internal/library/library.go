// Package library places a processed file into its final resting location
// (§6: output layout, failed-directory layout, partial-directory layout) and
// sanitizes the path components involved. Grounded on MoonFuji-SpotiFLAC's
// backend/organize.go (sanitizePathComponent, moveFile's rename-then-copy
// fallback, findUniqueFilename), adapted from a user-driven preview/execute
// workflow into the pipeline's unattended single-file placement.
package library

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soundwatch/soundwatch/internal/model"
)

// invalidPathChars are replaced with "_" per §6's sanitization rule.
var invalidPathChars = []string{`\`, "/", ":", "*", "?", `"`, "<", ">", "|"}

// Sanitize applies §6's filename sanitization: replace reserved characters
// with "_", strip trailing dots, and collapse an empty result to "Track".
func Sanitize(name string) string {
	result := name
	for _, ch := range invalidPathChars {
		result = strings.ReplaceAll(result, ch, "_")
	}
	result = strings.TrimRight(result, ".")
	result = strings.TrimSpace(result)
	if result == "" {
		return "Track"
	}
	return result
}

// Destination computes the §6 output path for md's file under outputRoot:
// <outputRoot>/<albumArtist>/<album>/<track# - title>.<ext>.
func Destination(outputRoot string, md model.MusicMetadata, ext string) string {
	albumArtist := md.AlbumArtist
	if model.Unset(albumArtist) {
		albumArtist = md.Artist
	}
	if model.Unset(albumArtist) {
		albumArtist = "Unknown Artist"
	}
	album := md.Album
	if model.Unset(album) {
		album = "Unknown Album"
	}
	title := md.Title
	if model.Unset(title) {
		title = "Track"
	}

	fileName := title
	if md.TrackNo > 0 {
		fileName = fmt.Sprintf("%02d - %s", md.TrackNo, title)
	}

	return filepath.Join(
		outputRoot,
		Sanitize(albumArtist),
		Sanitize(album),
		Sanitize(fileName)+ext,
	)
}

// Place moves src to dest, creating parent directories and resolving a
// same-path collision with a "(n)" suffix, exactly as
// findUniqueFilename/moveFile do in the teacher pack.
func Place(src, dest string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}
	dest = uniquePath(dest)
	if err := moveFile(src, dest); err != nil {
		return "", fmt.Errorf("move %s -> %s: %w", src, dest, err)
	}
	return dest, nil
}

// FailedDestination computes where a failed file lands: a loose file goes
// directly under failedDir; a file inside an album root preserves the
// relative structure under failedDir/<albumRootName>/....
func FailedDestination(failedDir, watchRoot, albumRoot, path string) string {
	if albumRoot == "" || albumRoot == watchRoot {
		return filepath.Join(failedDir, filepath.Base(path))
	}
	rel, err := filepath.Rel(filepath.Dir(albumRoot), path)
	if err != nil {
		return filepath.Join(failedDir, filepath.Base(path))
	}
	return filepath.Join(failedDir, rel)
}

// PartialDestination computes where a partial-recognition file lands,
// preserving its path relative to watchRoot under partialDir. A path outside
// watchRoot lands directly under partialDir by its base name.
func PartialDestination(partialDir, watchRoot, path string) string {
	rel, err := filepath.Rel(watchRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Join(partialDir, filepath.Base(path))
	}
	return filepath.Join(partialDir, rel)
}

// uniquePath appends " (n)" before the extension until dest does not already
// exist on disk.
func uniquePath(dest string) string {
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest
	}
	dir := filepath.Dir(dest)
	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(filepath.Base(dest), ext)
	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return dest
}

// moveFile renames src to dest, falling back to copy-then-remove when they
// sit on different filesystems (the rename syscall's EXDEV case).
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_RDWR|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
