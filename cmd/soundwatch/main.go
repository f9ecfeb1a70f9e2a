// Command soundwatch watches a set of music directories, identifies each
// incoming file against a fingerprint+metadata registry (or a quick
// tag/folder-name scan), locks an album decision per folder, enriches tags
// with cover art and lyrics, and moves the finished file into a structured
// library tree. Grounded on alexander-bruun-Orb's cmd/ingest entrypoint:
// same cobra root command shape, same watch/one-shot split, same
// slog-first startup logging.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/soundwatch/soundwatch/internal/albumcache"
	"github.com/soundwatch/soundwatch/internal/batch"
	"github.com/soundwatch/soundwatch/internal/config"
	"github.com/soundwatch/soundwatch/internal/cover"
	"github.com/soundwatch/soundwatch/internal/cuesplit"
	"github.com/soundwatch/soundwatch/internal/dashboard"
	"github.com/soundwatch/soundwatch/internal/fingerprint"
	"github.com/soundwatch/soundwatch/internal/folderlock"
	"github.com/soundwatch/soundwatch/internal/lyrics"
	"github.com/soundwatch/soundwatch/internal/model"
	"github.com/soundwatch/soundwatch/internal/monitor"
	"github.com/soundwatch/soundwatch/internal/musicbrainz"
	"github.com/soundwatch/soundwatch/internal/processedlog"
	"github.com/soundwatch/soundwatch/internal/processor"
	"github.com/soundwatch/soundwatch/internal/quickscan"
	"github.com/soundwatch/soundwatch/internal/ratelimit"
	"github.com/soundwatch/soundwatch/internal/store"
	"github.com/soundwatch/soundwatch/internal/tagio"
)

// albumCache is the method set both processor.AlbumCache and
// batch.DurationCache need; albumcache.Cache and albumcache.RedisCache both
// satisfy it, so main picks between them on cfg.FolderCacheRedis without
// either downstream package knowing which backend is live.
type albumCache interface {
	Get(folderPath string) (model.FolderAlbumDecision, bool)
	TryLock(folderPath string, incoming model.FolderAlbumDecision) (model.FolderAlbumDecision, bool)
	Lock(folderPath string) func()
	DetermineByDurationSequence(ctx context.Context, folderPath string, candidates []model.Candidate, observed []int, expectedTrackCount int) (model.FolderAlbumDecision, bool)
}

var (
	colorInfo    = color.New(color.FgCyan)
	colorSuccess = color.New(color.FgGreen)
	colorWarning = color.New(color.FgYellow)
)

var (
	flagConfigPath string
	flagWatch      bool
	flagOneShot    bool
)

var rootCmd = &cobra.Command{
	Use:   "soundwatch",
	Short: "Identify, tag, and organize a music directory",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "./soundwatch.json", "Path to the JSON config file")
	rootCmd.Flags().BoolVar(&flagWatch, "watch", true, "Keep watching after the initial scan completes")
	rootCmd.Flags().BoolVar(&flagOneShot, "once", false, "Run a single scan pass and exit (overrides --watch)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// statusAdapter satisfies dashboard.StatusSource by reading the live monitor
// and batch processor, so the dashboard never needs its own bookkeeping.
type statusAdapter struct {
	mon   *monitor.Monitor
	batch *batch.Processor
}

func (a statusAdapter) Status() dashboard.Status {
	return dashboard.Status{
		QueueDepth:     a.mon.QueueDepth(),
		WorkersBusy:    a.mon.WorkersBusy(),
		FoldersPending: a.batch.PendingFolders(),
		LastScan:       a.mon.LastScanTime(),
	}
}

func run(cmd *cobra.Command, _ []string) error {
	runID := uuid.NewString()
	slog.Info("soundwatch starting", "run_id", runID)

	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.WatchRoots) == 0 {
		return fmt.Errorf("no watch roots configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	var dash *dashboard.Server
	if cfg.DashboardAddr != "" {
		dash = dashboard.New(nil) // StatusSource wired in per watch root below
	}

	watch := flagWatch && !flagOneShot

	for _, root := range cfg.WatchRoots {
		proc := processor.New(processor.Deps{
			Fingerprint: deps.fingerprint,
			Metadata:    deps.musicbrainz,
			QuickScan:   deps.quickscan,
			AlbumCache:  deps.albumCache,
			Batch:       deps.batchProc,
			Cover:       deps.coverClient,
			Lyrics:      deps.lyricsClient,
			Cue:         deps.cue,
			Log:         deps.log,
			WatchRoot:   root,
			OutputRoot:  cfg.OutputRoot,
			FailedDir:   cfg.FailedDir,
			PartialDir:  cfg.PartialDir,
			MaxRetries:  cfg.MaxRetries,
		})

		mon := monitor.New(root, cfg.SupportedExts, time.Duration(cfg.ScanIntervalSec)*time.Second,
			cfg.MaxRetries, cfg.Workers, cfg.Workers*4, proc, deps.log.IsProcessed)
		mon.OnExhausted = func(path string) {
			colorWarning.Printf("⚠ retry budget exhausted: %s\n", path)
		}

		if dash != nil {
			dash.SetSource(statusAdapter{mon: mon, batch: deps.batchProc})
		}

		if !watch {
			colorInfo.Printf("scanning %s (single pass)\n", root)
			runOneShotWithProgress(ctx, mon, root, cfg.SupportedExts)
			continue
		}

		colorInfo.Printf("watching %s\n", root)
		go func(m *monitor.Monitor, root string) {
			if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("monitor stopped", "root", root, "err", err)
			}
		}(mon, root)
	}

	if dash != nil {
		srv := &http.Server{Addr: cfg.DashboardAddr, Handler: dash.Router()}
		go func() {
			colorInfo.Printf("dashboard listening on %s\n", cfg.DashboardAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("dashboard stopped", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if !watch {
		colorSuccess.Println("scan complete")
		return nil
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, draining pending folders")
	for _, err := range deps.batchProc.ProcessBeforeShutdown() {
		slog.Error("force-finalize on shutdown", "err", err)
	}
	colorSuccess.Println("shutdown complete")
	return nil
}

// runOneShotWithProgress lets Run scan until the two-scan stability check can
// pass (one ScanInterval after the first scan), then cancels Run's context
// as soon as the queue and the workers are idle; it borrows Run's worker pool for a single
// pass instead of duplicating its dispatch logic. A progress bar tracks the
// backlog this pass starts with, styled after PrathxmOp-dab-downloader's
// per-track download bars.
func runOneShotWithProgress(parent context.Context, m *monitor.Monitor, root string, exts []string) {
	backlog := countCandidates(root, exts)
	bar := pb.New(backlog)
	bar.SetTemplateString(`{{ green "scanning:" }} {{bar . }} {{counters . }}`)
	bar.Start()
	defer bar.Finish()

	ctx, cancel := context.WithCancel(parent)
	go func() {
		time.Sleep(m.ScanInterval + 2*time.Second) // let the stability check's two-scan window elapse
		last := 0
		for m.QueueDepth() > 0 || m.WorkersBusy() > 0 {
			time.Sleep(200 * time.Millisecond)
			done := backlog - m.QueueDepth() - m.WorkersBusy()
			if done > last {
				bar.Add(done - last)
				last = done
			}
		}
		bar.SetCurrent(int64(backlog))
		cancel()
	}()
	_ = m.Run(ctx)
}

// countCandidates walks root once up front purely to size the progress bar;
// the monitor performs its own independent, authoritative walk.
func countCandidates(root string, exts []string) int {
	n := 0
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if strings.ToLower(e) == ext {
				n++
				break
			}
		}
		return nil
	})
	return n
}

// deps bundles every long-lived collaborator built once at startup and torn
// down together on shutdown.
type deps struct {
	fingerprint  *fingerprint.Client
	musicbrainz  *musicbrainz.Client
	coverClient  *cover.Client
	lyricsClient *lyrics.Client
	quickscan    *quickscan.Scanner
	cue          *cuesplit.Splitter
	albumCache   albumCache
	batchProc    *batch.Processor
	log          processedlog.Log
	pgStore      *store.Store
}

func (d *deps) close() {
	if d.pgStore != nil {
		d.pgStore.Close()
	}
}

func buildDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	limiter := ratelimit.NewRegistry(cfg.RateLimitBurst)
	locks := folderlock.NewRegistry()

	fpClient := fingerprint.NewClient(cfg.FingerprintAPIURL, cfg.FingerprintAPIKey, limiter, cfg.MaxRetries)
	mbClient := musicbrainz.NewClient(cfg.MetadataAPIURL, cfg.ClientUserAgent, limiter, cfg.MaxRetries, cfg.CountryPriority)
	lyricsClient := lyrics.NewClient(cfg.LyricsAPIURL)

	var pgStore *store.Store
	var log processedlog.Log
	switch cfg.ProcessedLog {
	case config.ProcessedLogRelational:
		s, err := store.Open(ctx, cfg.DatabaseDSN, cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		pgStore = s
		log = processedlog.NewRelationalLog(s)
	default:
		fileLog, err := processedlog.NewFileLog(cfg.ProcessedLogPath)
		if err != nil {
			return nil, fmt.Errorf("open processed log: %w", err)
		}
		log = fileLog
	}

	var coverRows cover.RowStore
	if pgStore != nil {
		coverRows = pgStore
	}
	coverCache, err := cover.NewCache(cfg.CoverCacheDir, coverRows)
	if err != nil {
		return nil, fmt.Errorf("open cover cache: %w", err)
	}
	coverClient := cover.NewClient(cfg.CoverArchiveURL, coverCache, tagio.TagReader{})

	var cache albumCache
	if cfg.FolderCacheRedis != "" {
		cache = albumcache.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.FolderCacheRedis}), locks, "", mbClient)
	} else {
		cache = albumcache.New(locks, mbClient)
	}
	batchProc := batch.New(locks, cache, log, cfg.OutputRoot, cfg.VoteFolderSize)
	scanner := quickscan.New(mbClient)

	return &deps{
		fingerprint:  fpClient,
		musicbrainz:  mbClient,
		coverClient:  coverClient,
		lyricsClient: lyricsClient,
		quickscan:    scanner,
		cue:          cuesplit.New(),
		albumCache:   cache,
		batchProc:    batchProc,
		log:          log,
		pgStore:      pgStore,
	}, nil
}
