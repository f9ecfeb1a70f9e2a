// Package cover implements CoverClient/CoverCache (§4.3): sibling-embedded,
// folder-image, and remote cover-archive fallbacks, with an on-disk cache
// keyed by MD5 of the remote URL. Grounded on alexander-bruun-Orb's
// bestFolderImage/storeCoverArt and the objstore local-filesystem backend's
// "write bytes under a content-addressed name" idiom.
package cover

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// CacheRow mirrors the cover_art_cache table described in §6.
type CacheRow struct {
	URLHash       string
	URL           string
	CacheFilePath string
	FileSize      int64
	CachedAt      string
}

// RowStore persists CacheRow bookkeeping; implemented by internal/store for
// the relational backend, or left nil for a filesystem-only deployment.
type RowStore interface {
	GetCoverCacheRow(urlHash string) (CacheRow, bool, error)
	PutCoverCacheRow(row CacheRow) error
}

// Cache is the on-disk, MD5-keyed byte cache described in §4.3 and §6. Cache
// entries are never evicted by the core.
type Cache struct {
	Dir   string
	Store RowStore
}

// NewCache ensures Dir exists and returns a ready Cache.
func NewCache(dir string, store RowStore) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cover cache dir %s: %w", dir, err)
	}
	return &Cache{Dir: dir, Store: store}, nil
}

func hashURL(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns cached bytes for url, bypassing the network on a hit.
func (c *Cache) Get(url string) ([]byte, bool) {
	urlHash := hashURL(url)
	if c.Store != nil {
		if row, ok, err := c.Store.GetCoverCacheRow(urlHash); err == nil && ok {
			if data, err := os.ReadFile(row.CacheFilePath); err == nil {
				return data, true
			}
		}
	}
	// Fall back to a direct filesystem probe in case the row store is absent
	// (file-backed deployments have no relational rows at all).
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif"} {
		path := filepath.Join(c.Dir, urlHash+ext)
		if data, err := os.ReadFile(path); err == nil {
			return data, true
		}
	}
	return nil, false
}

// Put writes data under the cache directory keyed by the MD5 of url and
// idempotently records the bookkeeping row. A racing identical write is a
// no-op: the file content is the same regardless of which writer wins.
func (c *Cache) Put(url string, data []byte, ext string) (string, error) {
	if ext == "" {
		ext = ".jpg"
	}
	urlHash := hashURL(url)
	path := filepath.Join(c.Dir, urlHash+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write cover cache file %s: %w", path, err)
	}
	if c.Store != nil {
		row := CacheRow{URLHash: urlHash, URL: url, CacheFilePath: path, FileSize: int64(len(data))}
		if err := c.Store.PutCoverCacheRow(row); err != nil {
			return "", fmt.Errorf("record cover cache row: %w", err)
		}
	}
	return path, nil
}
