package processedlog

import (
	"path/filepath"
	"testing"

	"github.com/soundwatch/soundwatch/internal/model"
)

func TestFileLogMarkAndIsProcessed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.csv")
	log, err := NewFileLog(path)
	if err != nil {
		t.Fatal(err)
	}

	if ok, _ := log.IsProcessed("/music/a.flac"); ok {
		t.Fatal("unmarked file should not be processed")
	}

	rec := model.ProcessedRecord{FilePath: "/music/a.flac", FileHash: "abc", Artist: "A", Title: "T", Album: "Al"}
	if err := log.Mark(rec); err != nil {
		t.Fatal(err)
	}

	if ok, _ := log.IsProcessed("/music/a.flac"); !ok {
		t.Fatal("marked file should be processed")
	}

	if n, _ := log.Count(); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestFileLogReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.csv")
	first, err := NewFileLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Mark(model.ProcessedRecord{FilePath: "/music/b.flac", FileHash: "h"}); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := reopened.IsProcessed("/music/b.flac"); !ok {
		t.Fatal("reopened log should recover rows written by a previous instance")
	}
}

func TestFileLogMarkTwiceKeepsLastValueInMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.csv")
	log, err := NewFileLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Mark(model.ProcessedRecord{FilePath: "/music/c.flac", Title: "First"}); err != nil {
		t.Fatal(err)
	}
	if err := log.Mark(model.ProcessedRecord{FilePath: "/music/c.flac", Title: "Second"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := log.Count(); n != 1 {
		t.Fatalf("count = %d, want 1 (same path re-marked)", n)
	}
}
