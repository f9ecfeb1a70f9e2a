// Package fingerprint computes acoustic fingerprints via the fpcalc CLI tool
// and looks them up against a fingerprint registry, grounded on
// Ambrevar-demlo's fingerprint.go (fpcalc invocation) and acoustid package
// (response shapes), adapted to the §4.1 contract.
package fingerprint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/soundwatch/soundwatch/internal/httpx"
	"github.com/soundwatch/soundwatch/internal/ratelimit"
)

// ErrCLIMissing is returned by Extract when fpcalc is not on PATH; the caller
// treats this as "feature disabled", not a processing error.
var ErrCLIMissing = fmt.Errorf("fpcalc: not found on PATH")

// ReleaseGroup is a candidate release-group attached to a recording result.
type ReleaseGroup struct {
	ID    string
	Title string
}

// Recording is one candidate match returned by the fingerprint registry.
type Recording struct {
	RecordingID   string
	Title         string
	Artist        string
	Album         string
	ReleaseGroups []ReleaseGroup
}

// Client wraps fpcalc extraction and the registry lookup HTTP call.
type Client struct {
	HTTPClient *http.Client
	Limiter    *ratelimit.Registry
	APIURL     string
	ClientKey  string
	MaxRetries int
}

// NewClient builds a Client with sane timeouts (connect 10s, 30s for the
// whole request via the http.Client timeout).
func NewClient(apiURL, clientKey string, limiter *ratelimit.Registry, maxRetries int) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second, Transport: transport},
		Limiter:    limiter,
		APIURL:     apiURL,
		ClientKey:  clientKey,
		MaxRetries: maxRetries,
	}
}

// Extract runs fpcalc on path with a 60s CLI timeout and parses its
// DURATION=/FINGERPRINT= lines, exactly as Ambrevar-demlo's fingerprint()
// does. Returns ErrCLIMissing if fpcalc is not installed.
func Extract(ctx context.Context, path string) (durationSeconds int, fp string, err error) {
	if _, lookErr := exec.LookPath("fpcalc"); lookErr != nil {
		return 0, "", ErrCLIMissing
	}

	cctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, "fpcalc", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, "", fmt.Errorf("fpcalc %s: %w", path, err)
	}

	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "DURATION="):
			durationSeconds, _ = strconv.Atoi(strings.TrimPrefix(line, "DURATION="))
		case strings.HasPrefix(line, "FINGERPRINT="):
			fp = strings.TrimPrefix(line, "FINGERPRINT=")
		}
	}
	if fp == "" {
		return 0, "", fmt.Errorf("fpcalc %s: no fingerprint produced", path)
	}
	return durationSeconds, fp, nil
}

type lookupResponse struct {
	Status  string `json:"status"`
	Results []struct {
		ID         string  `json:"id"`
		Score      float64 `json:"score"`
		Recordings []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			ReleaseGroups []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"releasegroups"`
		} `json:"recordings"`
	} `json:"results"`
}

// Lookup POSTs the fingerprint to the registry and returns the candidate
// recordings. An empty result is not an error (§4.1); network/5xx errors are
// retried per MaxRetries and surfaced as retryable httpx errors on exhaustion.
func (c *Client) Lookup(ctx context.Context, durationSeconds int, fp string) ([]Recording, error) {
	host := hostOf(c.APIURL)
	var recordings []Recording

	err := httpx.RetryWithBackoff(ctx, c.MaxRetries, func() error {
		if err := c.Limiter.Wait(ctx, host); err != nil {
			return err
		}

		form := url.Values{}
		form.Set("client", c.ClientKey)
		form.Set("duration", strconv.Itoa(durationSeconds))
		form.Set("fingerprint", fp)
		form.Set("meta", "recordings+releasegroups+compress")

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("fingerprint lookup: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &httpx.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
		}

		var parsed lookupResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode fingerprint response: %w", err)
		}

		recordings = recordings[:0]
		for _, result := range parsed.Results {
			for _, r := range result.Recordings {
				rec := Recording{RecordingID: r.ID, Title: r.Title}
				if len(r.Artists) > 0 {
					rec.Artist = r.Artists[0].Name
				}
				for _, rg := range r.ReleaseGroups {
					rec.ReleaseGroups = append(rec.ReleaseGroups, ReleaseGroup{ID: rg.ID, Title: rg.Title})
				}
				recordings = append(recordings, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recordings, nil
}

// Extract is Client's method form of the package-level Extract func, so
// *Client alone satisfies a FingerprintSource-shaped interface.
func (c *Client) Extract(ctx context.Context, path string) (durationSeconds int, fp string, err error) {
	return Extract(ctx, path)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
