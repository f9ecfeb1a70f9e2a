// Package tagio implements the TagIO contract (§4.5): reading and writing
// embedded tags and cover art across the supported containers, with every
// write going through an atomic temp-file-then-rename.
package tagio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/soundwatch/soundwatch/internal/model"
)

// codec is the per-container implementation seam; each supported extension
// maps to exactly one codec.
type codec interface {
	readTags(path string) (model.MusicMetadata, error)
	writeTags(path string, md model.MusicMetadata, cover []byte) error
	duration(path string) (int, error)
	hasEmbeddedCover(path string) bool
	extractEmbeddedCover(path string) ([]byte, error)
}

var codecs = map[string]codec{
	".mp3":  mp3Codec{},
	".flac": flacCodec{},
	".m4a":  genericCodec{},
	".ogg":  genericCodec{},
	".wav":  genericCodec{},
}

func codecFor(path string) (codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c, ok := codecs[ext]
	if !ok {
		return nil, fmt.Errorf("tagio: unsupported container %q", ext)
	}
	return c, nil
}

// ReadTags returns the embedded metadata of the file at path.
func ReadTags(path string) (model.MusicMetadata, error) {
	c, err := codecFor(path)
	if err != nil {
		return model.MusicMetadata{}, err
	}
	return c.readTags(path)
}

// WriteTags writes md (and cover, if non-empty) to path atomically: a
// sibling temp file is written, fsynced, then renamed over the original.
func WriteTags(path string, md model.MusicMetadata, cover []byte) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	return c.writeTags(path, md, cover)
}

// Duration returns the file's audio duration in whole seconds, where the
// underlying codec can determine it without the fingerprint CLI.
func Duration(path string) (int, error) {
	c, err := codecFor(path)
	if err != nil {
		return 0, err
	}
	return c.duration(path)
}

// HasEmbeddedCover reports whether path already carries an embedded picture.
func HasEmbeddedCover(path string) bool {
	c, err := codecFor(path)
	if err != nil {
		return false
	}
	return c.hasEmbeddedCover(path)
}

// ExtractEmbeddedCover returns path's embedded picture bytes, or nil if none.
func ExtractEmbeddedCover(path string) ([]byte, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	return c.extractEmbeddedCover(path)
}

// HasPartialTags reports whether at least one of {title, artist, album} is
// set on path's embedded tags. A read failure is treated as "no tags".
func HasPartialTags(path string) bool {
	md, err := ReadTags(path)
	if err != nil {
		return false
	}
	return md.HasPartialTags()
}

// TagReader adapts the package-level functions to the cover.EmbeddedCoverSource
// interface so internal/cover can consult embedded pictures without importing
// this package's internals.
type TagReader struct{}

func (TagReader) HasEmbeddedCover(path string) bool                { return HasEmbeddedCover(path) }
func (TagReader) ExtractEmbeddedCover(path string) ([]byte, error) { return ExtractEmbeddedCover(path) }

// SupportedExtensions lists the containers codecFor recognizes.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(codecs))
	for ext := range codecs {
		exts = append(exts, ext)
	}
	return exts
}
