// Package youtube resolves submitted links to stable video ids and display
// titles via the public oEmbed endpoint.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WatchURL is the canonical short link prefix for a video id.
const WatchURL = "https://youtu.be/"

const oembedURL = "https://www.youtube.com/oembed"

// Metadata is the subset of oEmbed data the workflow needs.
type Metadata struct {
	Title string `json:"title"`
}

// ExtractVideoID pulls the video id out of a watch link. Recognized forms
// are youtube.com/watch?v=ID (including www. and music. hosts) and
// youtu.be/ID. Anything else is not a video link.
func ExtractVideoID(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	switch parsed.Host {
	case "youtube.com", "www.youtube.com", "music.youtube.com":
		if id := parsed.Query().Get("v"); id != "" {
			return id, true
		}
	case "youtu.be":
		path := strings.TrimPrefix(parsed.Path, "/")
		if idx := strings.IndexByte(path, '/'); idx != -1 {
			path = path[:idx]
		}
		if path != "" {
			return path, true
		}
	}
	return "", false
}

// Client fetches video metadata.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Metadata resolves a video id to its display metadata. Titles have every
// path separator doubled with a trailing space so downstream markup cannot
// misread them; the transformation is part of the display convention.
func (c *Client) Metadata(ctx context.Context, id string) (*Metadata, error) {
	endpoint := fmt.Sprintf("%s?url=%s", oembedURL, url.QueryEscape(WatchURL+id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata for %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch metadata for %s: status %d", id, resp.StatusCode)
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
	}

	meta.Title = EscapeTitle(meta.Title)
	return &meta, nil
}

// EscapeTitle replaces "/" with "/ " in display titles.
func EscapeTitle(title string) string {
	return strings.ReplaceAll(title, "/", "/ ")
}
