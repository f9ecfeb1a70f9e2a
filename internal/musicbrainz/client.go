// Package musicbrainz implements the MetadataClient contract (§4.2) against a
// MusicBrainz-shaped metadata registry. Grounded on alexander-bruun-Orb's
// pkg/musicbrainz/client.go for the request/throttle/response shape, and on
// dab-downloader's internal/api/musicbrainz client for the rate-limiter +
// retry-with-backoff wiring (golang.org/x/time/rate, shared HTTP error
// classification).
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jhprks/damerau"

	"github.com/soundwatch/soundwatch/internal/httpx"
	"github.com/soundwatch/soundwatch/internal/model"
	"github.com/soundwatch/soundwatch/internal/ratelimit"
)

// Client talks to the metadata registry described in §6.
type Client struct {
	HTTPClient      *http.Client
	Limiter         *ratelimit.Registry
	BaseURL         string
	UserAgent       string
	MaxRetries      int
	CountryPriority []string
}

// NewClient builds a Client whose requests are capped at 30s by the
// http.Client timeout (connect handled by the transport's defaults).
func NewClient(baseURL, userAgent string, limiter *ratelimit.Registry, maxRetries int, countryPriority []string) *Client {
	return &Client{
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
		Limiter:         limiter,
		BaseURL:         strings.TrimRight(baseURL, "/"),
		UserAgent:       userAgent,
		MaxRetries:      maxRetries,
		CountryPriority: countryPriority,
	}
}

func (c *Client) host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL
	}
	return u.Host
}

// get issues a rate-limited, retried GET against path (relative to BaseURL)
// with the given query values, decoding the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return httpx.RetryWithBackoff(ctx, c.MaxRetries, func() error {
		if err := c.Limiter.Wait(ctx, c.host()); err != nil {
			return err
		}

		query.Set("fmt", "json")
		full := fmt.Sprintf("%s%s?%s", c.BaseURL, path, query.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", c.UserAgent)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("metadata request %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return &httpx.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Message: "not found"}
		}
		if resp.StatusCode != http.StatusOK {
			return &httpx.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	})
}

// --- wire shapes, mirroring MusicBrainz's JSON representation ---

type artistCredit struct {
	Name   string `json:"name"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
}

type recordingRelation struct {
	Type   string `json:"type"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
}

type wireRelease struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Date          string         `json:"date"`
	Country       string         `json:"country"`
	TrackCount    int            `json:"track-count"`
	ArtistCredit  []artistCredit `json:"artist-credit"`
	ReleaseGroup  struct {
		ID string `json:"id"`
	} `json:"release-group"`
	Media []struct {
		Tracks []struct {
			Title  string `json:"title"`
			Number string `json:"number"`
			Length int    `json:"length"`
		} `json:"tracks"`
	} `json:"media"`
}

type wireRecording struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	ArtistCredit []artistCredit    `json:"artist-credit"`
	Releases     []wireRelease     `json:"releases"`
	Genres       []struct{ Name string `json:"name"` } `json:"genres"`
	Relations    []recordingRelation `json:"relations"`
}

func creditName(credits []artistCredit) string {
	if len(credits) == 0 {
		return ""
	}
	if credits[0].Name != "" {
		return credits[0].Name
	}
	return credits[0].Artist.Name
}

func relatedRole(rels []recordingRelation, roleType string) string {
	for _, r := range rels {
		if r.Type == roleType {
			return r.Artist.Name
		}
	}
	return ""
}

// GetRecordingByID fetches full recording detail and resolves the best
// release for it per the §4.2 release-selection ordering.
func (c *Client) GetRecordingByID(ctx context.Context, recordingID string, fileCount int, preferredReleaseGroupID, preferredReleaseID string, observedDurationSec int) (model.MusicMetadata, error) {
	var rec wireRecording
	q := url.Values{"inc": {"artist-credits+releases+release-groups+work-rels+artist-rels+genres"}}
	if err := c.get(ctx, "/recording/"+recordingID, q, &rec); err != nil {
		return model.MusicMetadata{}, err
	}

	chosen := selectRelease(rec.Releases, preferredReleaseID, preferredReleaseGroupID, fileCount, c.CountryPriority)

	md := model.MusicMetadata{
		RecordingID: rec.ID,
		Title:       rec.Title,
		Artist:      creditName(rec.ArtistCredit),
		Composer:    relatedRole(rec.Relations, "composer"),
		Lyricist:    relatedRole(rec.Relations, "lyricist"),
	}
	for _, g := range rec.Genres {
		md.Genres = append(md.Genres, g.Name)
	}
	if chosen != nil {
		md.Album = chosen.Title
		md.AlbumArtist = creditName(chosen.ArtistCredit)
		md.ReleaseDate = chosen.Date
		md.ReleaseID = chosen.ID
		md.ReleaseGroupID = chosen.ReleaseGroup.ID
		md.TrackCount = chosen.TrackCount
	}
	return md, nil
}

// SearchRelease searches releases by album title and optional artist, then
// re-ranks same-named candidates by Damerau-Levenshtein distance to the
// query so the closest title match leads when the registry returns several.
func (c *Client) SearchRelease(ctx context.Context, album, artist string) ([]model.MusicMetadata, error) {
	query := quoteField("release", album)
	if artist != "" {
		query += " AND " + quoteField("artist", artist)
	}
	var resp struct {
		Releases []wireRelease `json:"releases"`
	}
	q := url.Values{"query": {query}}
	if err := c.get(ctx, "/release/", q, &resp); err != nil {
		return nil, err
	}
	out := make([]model.MusicMetadata, 0, len(resp.Releases))
	for _, r := range resp.Releases {
		out = append(out, model.MusicMetadata{
			Album:          r.Title,
			AlbumArtist:    creditName(r.ArtistCredit),
			ReleaseDate:    r.Date,
			ReleaseID:      r.ID,
			ReleaseGroupID: r.ReleaseGroup.ID,
			TrackCount:     r.TrackCount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return damerau.DamerauLevenshteinDistance(album, out[i].Album) < damerau.DamerauLevenshteinDistance(album, out[j].Album)
	})
	return out, nil
}

// ReleaseDurationInfo is the §4.2 getReleaseDurationSequence result.
type ReleaseDurationInfo struct {
	Durations  []int
	ReleaseID  string
	ReleaseDate string
	TrackCount int
}

// GetReleaseDurationSequence fetches a release-group's releases and returns
// the ordered track durations (in whole seconds) of the selected release.
func (c *Client) GetReleaseDurationSequence(ctx context.Context, releaseGroupID string) (ReleaseDurationInfo, error) {
	var rg struct {
		Releases []wireRelease `json:"releases"`
	}
	q := url.Values{"inc": {"releases+artist-credits"}}
	if err := c.get(ctx, "/release-group/"+releaseGroupID, q, &rg); err != nil {
		return ReleaseDurationInfo{}, err
	}
	if len(rg.Releases) == 0 {
		return ReleaseDurationInfo{}, fmt.Errorf("release-group %s: no releases", releaseGroupID)
	}
	chosen := selectRelease(rg.Releases, "", releaseGroupID, 0, c.CountryPriority)
	if chosen == nil {
		chosen = &rg.Releases[0]
	}

	var full wireRelease
	q2 := url.Values{"inc": {"recordings+artist-credits"}}
	if err := c.get(ctx, "/release/"+chosen.ID, q2, &full); err != nil {
		return ReleaseDurationInfo{}, err
	}

	var durations []int
	for _, medium := range full.Media {
		for _, t := range medium.Tracks {
			durations = append(durations, t.Length/1000)
		}
	}
	return ReleaseDurationInfo{
		Durations:   durations,
		ReleaseID:   chosen.ID,
		ReleaseDate: chosen.Date,
		TrackCount:  len(durations),
	}, nil
}

// GetTrackFromLockedReleaseByDuration finds the track in releaseID whose
// duration is closest to observedDurationSec, returning nil if the release
// has no usable track list.
func (c *Client) GetTrackFromLockedReleaseByDuration(ctx context.Context, releaseID, releaseGroupID string, observedDurationSec int, fallbackTitle, fallbackArtist string) (*model.MusicMetadata, error) {
	var full wireRelease
	q := url.Values{"inc": {"recordings+artist-credits"}}
	if err := c.get(ctx, "/release/"+releaseID, q, &full); err != nil {
		return nil, err
	}

	best, found := closestTrack(full, observedDurationSec)
	if !found {
		return nil, nil
	}
	return &model.MusicMetadata{
		Title:          coalesce(best.Title, fallbackTitle),
		Artist:         coalesce(creditName(full.ArtistCredit), fallbackArtist),
		Album:          full.Title,
		AlbumArtist:    creditName(full.ArtistCredit),
		ReleaseDate:    full.Date,
		ReleaseID:      full.ID,
		ReleaseGroupID: releaseGroupID,
		TrackCount:     full.TrackCount,
	}, nil
}

// GetTrackFromLockedReleaseGroupByDuration resolves the release to use within
// releaseGroupID via selectRelease, then delegates to the by-release lookup.
func (c *Client) GetTrackFromLockedReleaseGroupByDuration(ctx context.Context, releaseGroupID string, observedDurationSec, fileCount int, fallbackTitle, fallbackArtist string) (*model.MusicMetadata, error) {
	info, err := c.GetReleaseDurationSequence(ctx, releaseGroupID)
	if err != nil {
		return nil, err
	}
	if info.ReleaseID == "" {
		return nil, nil
	}
	return c.GetTrackFromLockedReleaseByDuration(ctx, info.ReleaseID, releaseGroupID, observedDurationSec, fallbackTitle, fallbackArtist)
}

func closestTrack(full wireRelease, observedDurationSec int) (struct {
	Title  string `json:"title"`
	Number string `json:"number"`
	Length int    `json:"length"`
}, bool) {
	type track = struct {
		Title  string `json:"title"`
		Number string `json:"number"`
		Length int    `json:"length"`
	}
	var best track
	var bestDiff = -1
	found := false
	for _, medium := range full.Media {
		for _, t := range medium.Tracks {
			diff := (t.Length / 1000) - observedDurationSec
			if diff < 0 {
				diff = -diff
			}
			if !found || diff < bestDiff {
				best, bestDiff, found = t, diff, true
			}
		}
	}
	return best, found
}

func coalesce(values ...string) string {
	for _, v := range values {
		if !model.Unset(v) {
			return v
		}
	}
	return ""
}

func quoteField(field, value string) string {
	escaped := strings.NewReplacer(`"`, `\"`).Replace(value)
	return fmt.Sprintf(`%s:"%s"`, field, escaped)
}
