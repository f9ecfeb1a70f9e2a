// Package store implements the relational persistence named in §6:
// processed_files and cover_art_cache, using pgx/v5 exactly as
// alexander-bruun-Orb's pkg/store does, including its self-healing-schema
// pattern (create-if-missing rather than a separate migration tool, which
// matches the Non-goal excluding migrations beyond these two tables).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundwatch/soundwatch/internal/cover"
	"github.com/soundwatch/soundwatch/internal/model"
)

const processedFilesSchema = `
CREATE TABLE IF NOT EXISTS processed_files (
	id SERIAL PRIMARY KEY,
	file_hash TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_path TEXT NOT NULL UNIQUE,
	file_size BIGINT NOT NULL,
	processed_time TIMESTAMPTZ NOT NULL,
	recording_id TEXT NOT NULL,
	artist TEXT,
	title TEXT,
	album TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const coverArtCacheSchema = `
CREATE TABLE IF NOT EXISTS cover_art_cache (
	id SERIAL PRIMARY KEY,
	url_hash TEXT NOT NULL UNIQUE,
	cover_url TEXT NOT NULL,
	cache_file_path TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	cached_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Store wraps a pgxpool.Pool sized and timed out per §4.7/§5 (connection
// pool sized by config; 30s connect timeout).
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and ensures the schema exists with CREATE TABLE IF
// NOT EXISTS, in the same spirit as Orb's LoadIngestState/UpsertIngestState
// pgconn.PgError handling. An existing table is never dropped or altered.
func Open(ctx context.Context, dsn string, poolSize int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if poolSize > 0 {
		cfg.MaxConns = int32(poolSize)
	}
	cfg.ConnConfig.ConnectTimeout = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range []string{processedFilesSchema, coverArtCacheSchema} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// IsProcessed reports whether file_path already has a row.
func (s *Store) IsProcessed(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM processed_files WHERE file_path = $1)`, path).Scan(&exists)
	if err != nil {
		return false, wrapOrHeal(ctx, s, err)
	}
	return exists, nil
}

// Mark upserts rec keyed by file_path, matching the "INSERT ... ON DUPLICATE
// KEY UPDATE" semantics of §4.7 via Postgres's ON CONFLICT.
func (s *Store) Mark(ctx context.Context, rec model.ProcessedRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processed_files (file_hash, file_name, file_path, file_size, processed_time, recording_id, artist, title, album, updated_at)
		VALUES ($1, $2, $3, $4, now(), $5, $6, $7, $8, now())
		ON CONFLICT (file_path) DO UPDATE SET
			file_hash = EXCLUDED.file_hash,
			file_size = EXCLUDED.file_size,
			processed_time = now(),
			recording_id = EXCLUDED.recording_id,
			artist = EXCLUDED.artist,
			title = EXCLUDED.title,
			album = EXCLUDED.album,
			updated_at = now()
	`, rec.FileHash, baseName(rec.FilePath), rec.FilePath, rec.FileSize, rec.RecordingID, rec.Artist, rec.Title, rec.Album)
	if err != nil {
		return wrapOrHeal(ctx, s, err)
	}
	return nil
}

// Count returns the number of processed_files rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed_files`).Scan(&n)
	if err != nil {
		return 0, wrapOrHeal(ctx, s, err)
	}
	return n, nil
}

// GetCoverCacheRow implements cover.RowStore.
func (s *Store) GetCoverCacheRow(urlHash string) (cover.CacheRow, bool, error) {
	ctx := context.Background()
	var row cover.CacheRow
	var cachedAt time.Time
	err := s.pool.QueryRow(ctx, `SELECT url_hash, cover_url, cache_file_path, file_size, cached_time FROM cover_art_cache WHERE url_hash = $1`, urlHash).
		Scan(&row.URLHash, &row.URL, &row.CacheFilePath, &row.FileSize, &cachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cover.CacheRow{}, false, nil
	}
	if err != nil {
		return cover.CacheRow{}, false, wrapOrHeal(ctx, s, err)
	}
	row.CachedAt = cachedAt.Format(time.RFC3339)
	return row, true, nil
}

// PutCoverCacheRow implements cover.RowStore; a racing identical write is a
// no-op because url_hash is unique and the update is idempotent (§5).
func (s *Store) PutCoverCacheRow(row cover.CacheRow) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cover_art_cache (url_hash, cover_url, cache_file_path, file_size, cached_time, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (url_hash) DO UPDATE SET
			cache_file_path = EXCLUDED.cache_file_path,
			file_size = EXCLUDED.file_size,
			updated_at = now()
	`, row.URLHash, row.URL, row.CacheFilePath, row.FileSize)
	if err != nil {
		return wrapOrHeal(ctx, s, err)
	}
	return nil
}

// wrapOrHeal re-runs the CREATE TABLE IF NOT EXISTS statements when the
// error indicates an undefined column or missing relation (pgcode
// 42703/42P01), treating the prior state as empty rather than failing
// startup, exactly as Orb's LoadIngestState does for its own ingest-state
// table. This creates a missing table; a table lacking a column is left as
// it is.
func wrapOrHeal(ctx context.Context, s *Store, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "42703" || pgErr.Code == "42P01") {
		if healErr := s.ensureSchema(ctx); healErr != nil {
			return fmt.Errorf("self-heal schema after %s: %w", pgErr.Code, healErr)
		}
		return nil
	}
	return fmt.Errorf("store: %w", err)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
