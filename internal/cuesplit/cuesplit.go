// Package cuesplit implements the CueSplitter seam the processor pipeline
// calls into for single-file CUE-sheet albums (§4.11 step 3): one big audio
// file plus a .cue sidecar describing per-track boundaries. Cue parsing is
// grounded directly on Ambrevar-demlo's cuesheet package; splitting shells
// out to ffmpeg with start/duration arguments computed the same way
// Ambrevar-demlo's ffmpegSplitTimes does, since cuesheet.Cuesheet carries no
// running total duration itself.
package cuesplit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ambrevar/demlo/cuesheet"
)

// Splitter locates a lone .cue sidecar in a folder and, on demand, runs
// ffprobe+ffmpeg to cut the paired audio file into one track per cuesheet
// entry.
type Splitter struct {
	WorkDir string // scratch directory for split output; defaults to the folder itself when empty
}

// New builds a Splitter.
func New() *Splitter {
	return &Splitter{}
}

// IsCueAlbum reports whether folderPath contains exactly one .cue file, and
// returns its path.
func (s *Splitter) IsCueAlbum(folderPath string) (string, bool) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return "", false
	}
	var cueFile string
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".cue") {
			cueFile = filepath.Join(folderPath, e.Name())
			count++
		}
	}
	if count != 1 {
		return "", false
	}
	return cueFile, true
}

// Split parses cueFile, locates its paired audio file inside folderPath, and
// shells out to ffmpeg once per track, writing WAV files (tag-agnostic;
// later pipeline steps assign real tags) named track-NN.wav alongside the
// source. Requires ffmpeg and ffprobe on PATH.
func (s *Splitter) Split(ctx context.Context, folderPath, cueFile string) ([]string, error) {
	raw, err := os.ReadFile(cueFile)
	if err != nil {
		return nil, fmt.Errorf("read cuesheet %s: %w", cueFile, err)
	}

	sheet, err := cuesheet.New(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse cuesheet %s: %w", cueFile, err)
	}

	var tracks []string
	for file, fileTracks := range sheet.Files {
		audioPath := filepath.Join(folderPath, file)
		if _, statErr := os.Stat(audioPath); statErr != nil {
			return nil, fmt.Errorf("cuesheet references missing audio file %s: %w", audioPath, statErr)
		}

		total, err := probeDuration(ctx, audioPath)
		if err != nil {
			return nil, fmt.Errorf("probe duration %s: %w", audioPath, err)
		}

		outDir := s.WorkDir
		if outDir == "" {
			outDir = folderPath
		}

		for i := range fileTracks {
			start, dur := splitTimes(fileTracks, i, total)
			if start == "" {
				continue
			}
			out := filepath.Join(outDir, fmt.Sprintf("track-%02d.wav", i+1))
			if err := ffmpegExtract(ctx, audioPath, start, dur, out); err != nil {
				return nil, fmt.Errorf("split track %d of %s: %w", i+1, audioPath, err)
			}
			tracks = append(tracks, out)
		}
	}
	return tracks, nil
}

// splitTimes mirrors Ambrevar-demlo's ffmpegSplitTimes: the next track's
// first index (or the file's total duration, for the last track) bounds the
// current track's end.
func splitTimes(fileTracks []cuesheet.Track, track int, total time.Duration) (start, duration string) {
	if track >= len(fileTracks) || len(fileTracks[track].Indices) == 0 {
		return "", ""
	}

	idx := fileTracks[track].Indices[0]
	startMsec := 1000*60*idx.Min + 1000*idx.Sec + idx.Msec

	var endMsec int
	if track < len(fileTracks)-1 && len(fileTracks[track+1].Indices) > 0 {
		next := fileTracks[track+1].Indices[0]
		endMsec = 1000*60*next.Min + 1000*next.Sec + next.Msec
	} else {
		endMsec = int(total.Milliseconds())
	}

	diffMsec := endMsec - startMsec
	if diffMsec < 0 {
		diffMsec = 0
	}

	return msecToTimestamp(startMsec), msecToTimestamp(diffMsec)
}

func msecToTimestamp(totalMsec int) string {
	msec := totalMsec % 1000
	totalSec := totalMsec / 1000
	sec := totalSec % 60
	totalMin := totalSec / 60
	min := totalMin % 60
	hour := totalMin / 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hour, min, sec, msec)
}

// probeDuration runs ffprobe to get the source file's total duration, the
// way Ambrevar-demlo's analyzer.go invokes it for format inspection.
func probeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func ffmpegExtract(ctx context.Context, src, start, duration, dest string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-nostdin", "-v", "error", "-y",
		"-i", src, "-ss", start, "-t", duration, "-c", "copy", dest)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %s: %w", stderr.String(), err)
	}
	return nil
}
