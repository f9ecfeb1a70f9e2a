package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundwatch/soundwatch/internal/model"
)

type fakeCover struct {
	bytes []byte
	err   error
}

func (f fakeCover) GetCover(_ context.Context, _, releaseGroupID string, _ []string) ([]byte, error) {
	if releaseGroupID != "" {
		// tryPartial must never reach the network tier.
		return nil, nil
	}
	return f.bytes, f.err
}

type fakeLog struct {
	marked []model.ProcessedRecord
}

func (l *fakeLog) IsProcessed(string) (bool, error) { return false, nil }
func (l *fakeLog) Mark(rec model.ProcessedRecord) error {
	l.marked = append(l.marked, rec)
	return nil
}
func (l *fakeLog) Count() (int, error) { return len(l.marked), nil }

func writeTestFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not a real audio file"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTryPartialRoutesToPartialDirWhenLocalCoverFound(t *testing.T) {
	watch := t.TempDir()
	partial := t.TempDir()
	path := writeTestFile(t, watch, "song.mp3")

	log := &fakeLog{}
	p := New(Deps{
		Cover:      fakeCover{bytes: []byte("cover-bytes")},
		Log:        log,
		WatchRoot:  watch,
		PartialDir: partial,
	})

	outcome, ok := p.tryPartial(context.Background(), path, watch, nil)
	if !ok {
		t.Fatal("expected tryPartial to report a hit")
	}
	if outcome != PermanentFail {
		t.Fatalf("got outcome %v, want PermanentFail (terminal, just routed elsewhere)", outcome)
	}

	if _, err := os.Stat(filepath.Join(partial, "song.mp3")); err != nil {
		t.Fatalf("expected file under partial dir: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("original path should have been moved away")
	}

	if len(log.marked) != 1 || log.marked[0].RecordingID != model.SentinelUnknown {
		t.Fatalf("got marked %+v, want one record with SentinelUnknown", log.marked)
	}
}

func TestTryPartialDeclinesWhenNoCoverFound(t *testing.T) {
	watch := t.TempDir()
	path := writeTestFile(t, watch, "song.mp3")

	p := New(Deps{
		Cover:     fakeCover{},
		Log:       &fakeLog{},
		WatchRoot: watch,
	})

	if _, ok := p.tryPartial(context.Background(), path, watch, nil); ok {
		t.Fatal("expected tryPartial to decline when no cover is found")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("file should be left in place when tryPartial declines")
	}
}

func TestFailUsesFailedSentinel(t *testing.T) {
	watch := t.TempDir()
	failed := t.TempDir()
	path := writeTestFile(t, watch, "noise.wav")

	log := &fakeLog{}
	p := New(Deps{
		Log:       log,
		WatchRoot: watch,
		FailedDir: failed,
	})

	p.fail(path, watch, "no fingerprint match and no folder decision")

	if len(log.marked) != 1 || log.marked[0].RecordingID != model.SentinelFailed {
		t.Fatalf("got marked %+v, want one record with SentinelFailed", log.marked)
	}
	if _, err := os.Stat(filepath.Join(failed, "noise.wav")); err != nil {
		t.Fatalf("expected file under failed dir: %v", err)
	}
}

func TestFailWithSentinelUsesGivenSentinel(t *testing.T) {
	watch := t.TempDir()
	failed := t.TempDir()
	path := writeTestFile(t, watch, "white-noise.wav")

	log := &fakeLog{}
	p := New(Deps{
		Log:       log,
		WatchRoot: watch,
		FailedDir: failed,
	})

	p.failWithSentinel(path, watch, "no recordings, no lock, no cover", model.SentinelUnknown)

	if len(log.marked) != 1 || log.marked[0].RecordingID != model.SentinelUnknown {
		t.Fatalf("got marked %+v, want one record with SentinelUnknown (S6)", log.marked)
	}
}
