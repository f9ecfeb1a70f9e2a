// Package monitor implements DirectoryMonitor (§4.12): a poll-based scan of
// the watch roots with an fsnotify-driven fast path, stability-checking each
// candidate file before handing it to a FileProcessor, and tracking a
// per-path retry budget. Grounded on alexander-bruun-Orb's cmd/ingest watch
// loop (fsnotify.NewWatcher, recursive directory registration, the
// Create|Write|Rename event mask), generalized from its single full-rescan
// loop to per-file stability tracking and a bounded retry budget.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/soundwatch/soundwatch/internal/processor"
)

// FileProcessor is the single collaborator the monitor drives: the pipeline
// entry point for one candidate file.
type FileProcessor interface {
	Process(ctx context.Context, path string) processor.Outcome
}

type fileState struct {
	lastSize    int64
	stableSince time.Time
	seenStable  bool
	retries     int
}

// Monitor scans WatchRoot every ScanInterval, stability-checks every
// supported-extension file that is not already processed, and enqueues each
// ready file onto a bounded queue consumed by a fixed-size worker pool (§5:
// "a fixed-size worker pool ... consumes from a bounded ingress queue
// populated by the DirectoryMonitor"). An fsnotify watch on the root and
// every directory beneath it triggers an out-of-schedule scan pass; it never
// bypasses the stability check.
type Monitor struct {
	WatchRoot     string
	SupportedExts []string
	ScanInterval  time.Duration
	MaxRetries    int
	Workers       int
	QueueSize     int
	Processor     FileProcessor
	IsProcessed   func(path string) (bool, error)
	OnExhausted   func(path string) // invoked once a path's retry budget is spent

	mu        sync.Mutex
	states    map[string]*fileState
	paused    bool
	lastScan  time.Time
	rescanNow chan struct{}
	queue     chan string
	busy      int32
}

// New builds a Monitor. maxRetries <= 0 means unlimited retries; workers <= 0
// defaults to 1; queueSize <= 0 defaults to 64.
func New(watchRoot string, exts []string, scanInterval time.Duration, maxRetries, workers, queueSize int, proc FileProcessor, isProcessed func(string) (bool, error)) *Monitor {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Monitor{
		WatchRoot:     watchRoot,
		SupportedExts: exts,
		ScanInterval:  scanInterval,
		MaxRetries:    maxRetries,
		Workers:       workers,
		QueueSize:     queueSize,
		Processor:     proc,
		IsProcessed:   isProcessed,
		states:        make(map[string]*fileState),
		rescanNow:     make(chan struct{}, 1),
		queue:         make(chan string, queueSize),
	}
}

// Run starts the worker pool, then blocks, scanning on ScanInterval or on an
// fsnotify-triggered rescan, until ctx is cancelled. Workers keep draining
// the queue until it is empty and ctx is done, so in-flight files finish
// before Run returns. The fsnotify watcher is best-effort: if it cannot be
// created, Run still works on the poll schedule alone.
func (m *Monitor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < m.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx)
		}()
	}
	defer wg.Wait()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, polling only", "err", err)
		watcher = nil
	} else {
		defer watcher.Close()
		m.registerTree(watcher, m.WatchRoot)
		go m.watchEvents(ctx, watcher)
	}

	m.scanOnce(ctx)

	ticker := time.NewTicker(m.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.scanOnce(ctx)
		case <-m.rescanNow:
			m.scanOnce(ctx)
		}
	}
}

// worker drains the ingress queue until ctx is cancelled and the queue runs
// dry, calling dispatch (which tracks WorkersBusy for the duration) for each
// path.
func (m *Monitor) worker(ctx context.Context) {
	for {
		select {
		case path, ok := <-m.queue:
			if !ok {
				return
			}
			atomic.AddInt32(&m.busy, 1)
			m.dispatch(ctx, path)
			atomic.AddInt32(&m.busy, -1)
		case <-ctx.Done():
			// Drain whatever is already queued before exiting, so a file
			// that reached stability is not silently dropped on shutdown.
			select {
			case path, ok := <-m.queue:
				if !ok {
					return
				}
				atomic.AddInt32(&m.busy, 1)
				m.dispatch(ctx, path)
				atomic.AddInt32(&m.busy, -1)
			default:
				return
			}
		}
	}
}

// QueueDepth reports how many ready files are waiting for a free worker.
func (m *Monitor) QueueDepth() int {
	return len(m.queue)
}

// WorkersBusy reports how many workers are currently processing a file.
func (m *Monitor) WorkersBusy() int {
	return int(atomic.LoadInt32(&m.busy))
}

// LastScanTime reports when scanOnce last ran to completion.
func (m *Monitor) LastScanTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastScan
}

// Pause suspends scanning until Resume is called; an in-flight scan still
// completes.
func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume reverses Pause and triggers an immediate rescan.
func (m *Monitor) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.triggerRescan()
}

func (m *Monitor) isPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *Monitor) triggerRescan() {
	select {
	case m.rescanNow <- struct{}{}:
	default:
	}
}

func (m *Monitor) registerTree(watcher *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = watcher.Add(path)
		}
		return nil
	})
}

func (m *Monitor) watchEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				_ = watcher.Add(ev.Name)
			}
			m.triggerRescan()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "err", err)
		}
	}
}

// scanOnce walks WatchRoot, advancing the stability tracker for every
// supported, unprocessed, non-dotfile entry and dispatching any file that
// has now been stable across two consecutive scans.
func (m *Monitor) scanOnce(ctx context.Context) {
	if m.isPaused() {
		return
	}

	now := time.Now()
	seen := make(map[string]bool)

	_ = filepath.WalkDir(m.WatchRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if isDotfile(d.Name()) || !m.supportedExt(path) {
			return nil
		}
		if ok, pErr := m.IsProcessed(path); pErr == nil && ok {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		seen[path] = true

		if m.advance(path, fi.Size(), now) {
			m.enqueue(ctx, path)
		}
		return nil
	})

	m.forgetStale(seen)

	m.mu.Lock()
	m.lastScan = now
	m.mu.Unlock()
}

// enqueue blocks until a worker has room, applying the backpressure the
// bounded ingress queue is meant to provide, or returns early if ctx is
// cancelled first.
func (m *Monitor) enqueue(ctx context.Context, path string) {
	select {
	case m.queue <- path:
	case <-ctx.Done():
	}
}

// advance records path's current size and reports whether it has now been
// observed at the same size on two consecutive scans (the poll-based
// stability check).
func (m *Monitor) advance(path string, size int64, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[path]
	if !ok {
		st = &fileState{}
		m.states[path] = st
	}

	if st.lastSize != size {
		st.lastSize = size
		st.stableSince = now
		st.seenStable = false
		return false
	}
	if st.seenStable {
		return false // already dispatched and awaiting an outcome
	}
	if st.stableSince.IsZero() {
		st.stableSince = now
		return false
	}
	st.seenStable = true
	return true
}

func (m *Monitor) dispatch(ctx context.Context, path string) {
	switch m.Processor.Process(ctx, path) {
	case processor.Success:
		m.clearState(path)
	case processor.DelayRetry:
		m.resetForRetry(path)
	case processor.NetworkErrorRetry:
		m.countRetry(path)
	case processor.PermanentFail:
		m.clearState(path)
	}
}

// resetForRetry lets a file with an in-progress sibling (e.g. a ".part"
// download twin) be re-evaluated next scan without consuming retry budget.
func (m *Monitor) resetForRetry(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[path]; ok {
		st.seenStable = false
	}
}

func (m *Monitor) countRetry(path string) {
	m.mu.Lock()
	st, ok := m.states[path]
	if !ok {
		st = &fileState{}
		m.states[path] = st
	}
	st.retries++
	st.seenStable = false
	exhausted := m.MaxRetries > 0 && st.retries >= m.MaxRetries
	m.mu.Unlock()

	if exhausted && m.OnExhausted != nil {
		m.OnExhausted(path)
		m.clearState(path)
	}
}

func (m *Monitor) clearState(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, path)
}

// forgetStale drops tracked paths that vanished from the tree (moved,
// deleted, or already relocated into the library by a prior dispatch).
func (m *Monitor) forgetStale(seen map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path := range m.states {
		if !seen[path] {
			delete(m.states, path)
		}
	}
}

func (m *Monitor) supportedExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range m.SupportedExts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func isDotfile(name string) bool {
	return strings.HasPrefix(name, ".")
}
