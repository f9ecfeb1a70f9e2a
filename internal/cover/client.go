package cover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
)

// folderImageNames are the extensionless base names §4.3(b) recognizes,
// tried against the supported image extensions in order.
var folderImageNames = []string{"cover", "folder", "front"}
var folderImageExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp", ".tif", ".tiff"}

// EmbeddedCoverSource lets Client consult a sibling file's embedded picture
// without importing internal/tagio (avoiding an import cycle); internal/tagio
// implements this interface.
type EmbeddedCoverSource interface {
	HasEmbeddedCover(path string) bool
	ExtractEmbeddedCover(path string) ([]byte, error)
}

// Client resolves cover art through the three-tier fallback in §4.3, using
// resty for the remote archive call (matching the kirbs-btw repo's HTTP
// client choice for this domain-stack entry).
type Client struct {
	HTTP        *resty.Client
	ArchiveBase string
	Cache       *Cache
	Tags        EmbeddedCoverSource
}

// NewClient builds a Client against a cover archive base URL such as
// https://coverartarchive.org.
func NewClient(archiveBase string, cache *Cache, tags EmbeddedCoverSource) *Client {
	return &Client{
		HTTP:        resty.New().SetTimeout(30 * 1e9),
		ArchiveBase: strings.TrimRight(archiveBase, "/"),
		Cache:       cache,
		Tags:        tags,
	}
}

// GetCover resolves cover bytes for releaseGroupID, consulting siblingPaths
// (other files in the same folder) for an already-embedded picture before
// trying a folder image file, then the remote archive.
func (c *Client) GetCover(ctx context.Context, folderPath, releaseGroupID string, siblingPaths []string) ([]byte, error) {
	for _, sibling := range siblingPaths {
		if c.Tags != nil && c.Tags.HasEmbeddedCover(sibling) {
			if data, err := c.Tags.ExtractEmbeddedCover(sibling); err == nil && len(data) > 0 {
				return data, nil
			}
		}
	}

	if data, ok := folderImageFile(folderPath); ok {
		return data, nil
	}

	if releaseGroupID == "" {
		return nil, nil
	}
	return c.fetchFromArchive(ctx, releaseGroupID)
}

func folderImageFile(folderPath string) ([]byte, bool) {
	for _, name := range folderImageNames {
		for _, ext := range folderImageExts {
			path := filepath.Join(folderPath, name+ext)
			if data, err := os.ReadFile(path); err == nil {
				return data, true
			}
		}
	}
	return nil, false
}

func (c *Client) fetchFromArchive(ctx context.Context, releaseGroupID string) ([]byte, error) {
	url := fmt.Sprintf("%s/release-group/%s/front", c.ArchiveBase, releaseGroupID)

	if c.Cache != nil {
		if data, ok := c.Cache.Get(url); ok {
			return data, nil
		}
	}

	resp, err := c.HTTP.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("cover archive request: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cover archive %s: %s", url, resp.Status())
	}

	body := resp.Body()
	if c.Cache != nil {
		if _, err := c.Cache.Put(url, body, extFromContentType(resp.Header().Get("Content-Type"))); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "gif"):
		return ".gif"
	default:
		return ".jpg"
	}
}
