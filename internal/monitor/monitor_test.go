package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/soundwatch/soundwatch/internal/processor"
)

type countingProcessor struct {
	mu    sync.Mutex
	seen  []string
	delay time.Duration
}

func (p *countingProcessor) Process(_ context.Context, path string) processor.Outcome {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.seen = append(p.seen, path)
	p.mu.Unlock()
	return processor.Success
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func alwaysUnprocessed(string) (bool, error) { return false, nil }

func TestMonitorDispatchesStableFileAfterTwoScans(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "song.flac")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	proc := &countingProcessor{}
	m := New(root, []string{".flac"}, 10*time.Millisecond, 3, 2, 8, proc, alwaysUnprocessed)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) && proc.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if proc.count() != 1 {
		t.Fatalf("expected the stable file to be dispatched exactly once, got %d", proc.count())
	}
}

func TestMonitorIgnoresUnsupportedExtension(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	proc := &countingProcessor{}
	m := New(root, []string{".flac"}, 10*time.Millisecond, 3, 1, 8, proc, alwaysUnprocessed)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = m.Run(ctx)

	if proc.count() != 0 {
		t.Fatalf("unsupported extension should never be dispatched, got %d calls", proc.count())
	}
}

func TestMonitorSkipsAlreadyProcessedFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "song.flac"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	proc := &countingProcessor{}
	alreadyDone := func(string) (bool, error) { return true, nil }
	m := New(root, []string{".flac"}, 10*time.Millisecond, 3, 1, 8, proc, alreadyDone)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = m.Run(ctx)

	if proc.count() != 0 {
		t.Fatalf("already-processed file should never be dispatched, got %d calls", proc.count())
	}
}

func TestPauseStopsScanning(t *testing.T) {
	root := t.TempDir()
	proc := &countingProcessor{}
	m := New(root, []string{".flac"}, 5*time.Millisecond, 3, 1, 8, proc, alwaysUnprocessed)
	m.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	time.Sleep(40 * time.Millisecond)
	if !m.LastScanTime().IsZero() {
		t.Fatal("a paused monitor should never record a scan")
	}
}
