// Package lyrics implements the best-effort LyricsClient contract (§4.4),
// grounded on alexander-bruun-Orb's services/api/internal/lyricfetch package
// (LRCLIB get/search, NetEase fallback), trimmed to the single registry
// contract named in §6 and transported over resty per the domain stack.
package lyrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Client fetches synchronized lyrics by best-effort lookup; any failure
// yields a nil string rather than an error, per §4.4.
type Client struct {
	HTTP    *resty.Client
	BaseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{
		HTTP:    resty.New().SetTimeout(30 * 1e9),
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

type lyricsResponse struct {
	SyncedLyrics string `json:"syncedLyrics"`
	PlainLyrics  string `json:"plainLyrics"`
}

// GetLyrics returns a time-stamped line sequence verbatim from the registry,
// or "" if nothing usable was found. Errors are swallowed by design; callers
// should not treat a failed lookup as a processing failure.
func (c *Client) GetLyrics(ctx context.Context, title, artist, album string, durationSec int) string {
	var parsed lyricsResponse
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"track_name":  title,
			"artist_name": artist,
			"album_name":  album,
			"duration":    fmt.Sprintf("%d", durationSec),
		}).
		SetResult(&parsed).
		Get(c.BaseURL + "/get")
	if err != nil || resp.IsError() {
		return ""
	}
	if parsed.SyncedLyrics != "" {
		return parsed.SyncedLyrics
	}
	return parsed.PlainLyrics
}
