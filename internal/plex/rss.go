// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// rssFetchTimeout bounds one full feed read, however large the document.
const rssFetchTimeout = 2 * time.Minute

// rssFeed is the JSON feed shape the watchlist RSS endpoints serve.
type rssFeed struct {
	Items []struct {
		Title    string   `json:"title"`
		Category string   `json:"category"`
		GUIDs    []string `json:"guids"`
		Keywords []string `json:"keywords"`
		PubDate  string   `json:"pubDate"`
	} `json:"items"`
}

// RSSWatchlist fetches one of the configured fallback feeds, reading the
// body through the streaming helper so gzip-served feeds decompress
// transparently, an empty body surfaces as a typed error, and the whole
// read stays under one total timeout. Feed items carry no stable rating
// key, so the first GUID doubles as the external key; items with no
// GUIDs at all are skipped.
func (c *Client) RSSWatchlist(ctx context.Context, feedURL string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("plex: create rss request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	stream, err := c.rl.DoStream(ctx, req, rssFetchTimeout)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var doc strings.Builder
	for {
		line, ok := stream.Next()
		if !ok {
			break
		}
		doc.WriteString(line)
		doc.WriteByte('\n')
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("plex: reading rss feed: %w", err)
	}

	var feed rssFeed
	if err := json.Unmarshal([]byte(doc.String()), &feed); err != nil {
		return nil, fmt.Errorf("plex: decode rss feed: %w", err)
	}

	seen := make(map[string]struct{})
	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		guids := models.NormalizeGUIDs(rewriteGUIDs(entry.GUIDs))
		if len(guids) == 0 {
			continue
		}
		key := guids[0]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		ct := models.ContentTypeMovie
		if entry.Category == "show" {
			ct = models.ContentTypeShow
		}
		items = append(items, Item{
			Key:    key,
			Title:  entry.Title,
			Type:   ct,
			GUIDs:  guids,
			Genres: entry.Keywords,
		})
	}
	return items, nil
}
