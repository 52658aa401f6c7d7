// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plex implements the watchlist source protocol: the paged
// self-watchlist REST endpoint, the paged GraphQL friends endpoints, the
// optional RSS fallback feeds, and the media-server surface used for
// label sync and session inspection. Every call goes through the shared
// rate-limited client, so 429 Retry-After responses suspend the whole
// endpoint family.
package plex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
)

// watchlistPageSize is the container size requested per page.
const watchlistPageSize = 100

// Item is one watchlist entry as the source reports it, before
// enrichment and persistence.
type Item struct {
	Key     string
	Title   string
	Type    models.ContentType
	Thumb   string
	GUIDs   []string
	Genres  []string
	AddedAt int64 // unix seconds, zero when the source omits it
}

// Friend is a Plex account sharing with the token owner. The friendship
// token authorizes reading their watchlist through GraphQL.
type Friend struct {
	UUID     string
	Username string
	Token    string
}

// Client talks to the plex.tv discover and community APIs.
type Client struct {
	baseURL    string
	graphqlURL string
	token      string
	rl         *ratelimit.Client
}

// NewClient constructs a Client over the shared rate-limited transport.
func NewClient(baseURL, graphqlURL, token string, rl *ratelimit.Client) *Client {
	if baseURL == "" {
		baseURL = "https://metadata.provider.plex.tv"
	}
	if graphqlURL == "" {
		graphqlURL = "https://community.plex.tv/api"
	}
	return &Client{baseURL: baseURL, graphqlURL: graphqlURL, token: token, rl: rl}
}

// mediaContainer is the JSON shape of the discover watchlist page.
type mediaContainer struct {
	MediaContainer struct {
		TotalSize int `json:"totalSize"`
		Metadata  []struct {
			RatingKey string `json:"ratingKey"`
			Key       string `json:"key"`
			Title     string `json:"title"`
			Type      string `json:"type"`
			Thumb     string `json:"thumb"`
			AddedAt   int64  `json:"addedAt"`
			GUID      []struct {
				ID string `json:"id"`
			} `json:"Guid"`
			Genre []struct {
				Tag string `json:"tag"`
			} `json:"Genre"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// SelfWatchlist fetches the token owner's full watchlist, paging until
// the reported total is reached and deduplicating by key across pages.
func (c *Client) SelfWatchlist(ctx context.Context) ([]Item, error) {
	seen := make(map[string]struct{})
	var items []Item

	for start := 0; ; start += watchlistPageSize {
		page, total, err := c.watchlistPage(ctx, start)
		if err != nil {
			return nil, err
		}
		for _, it := range page {
			if _, dup := seen[it.Key]; dup {
				continue
			}
			seen[it.Key] = struct{}{}
			items = append(items, it)
		}
		if start+watchlistPageSize >= total || len(page) == 0 {
			return items, nil
		}
	}
}

func (c *Client) watchlistPage(ctx context.Context, start int) ([]Item, int, error) {
	q := url.Values{}
	q.Set("X-Plex-Container-Start", strconv.Itoa(start))
	q.Set("X-Plex-Container-Size", strconv.Itoa(watchlistPageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/library/sections/watchlist/all?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("plex: create watchlist request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.rl.Do(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	var container mediaContainer
	if err := json.Unmarshal(resp.Body, &container); err != nil {
		return nil, 0, fmt.Errorf("plex: decode watchlist page: %w", err)
	}

	items := make([]Item, 0, len(container.MediaContainer.Metadata))
	for _, m := range container.MediaContainer.Metadata {
		items = append(items, metadataToItem(m.RatingKey, m.Key, m.Title, m.Type, m.Thumb, m.AddedAt, guidIDs(m.GUID), genreTags(m.Genre)))
	}
	return items, container.MediaContainer.TotalSize, nil
}

func guidIDs(gs []struct {
	ID string `json:"id"`
}) []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.ID)
	}
	return out
}

func genreTags(gs []struct {
	Tag string `json:"tag"`
}) []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.Tag)
	}
	return out
}

// metadataToItem normalizes one metadata entry: the rating key is the
// stable external key, GUIDs are lowercased "source://id" rewritten to
// "source:id" form.
func metadataToItem(ratingKey, key, title, typ, thumb string, addedAt int64, guids, genres []string) Item {
	k := ratingKey
	if k == "" {
		k = key
	}
	ct := models.ContentTypeMovie
	if typ == "show" {
		ct = models.ContentTypeShow
	}
	return Item{
		Key:     k,
		Title:   title,
		Type:    ct,
		Thumb:   thumb,
		AddedAt: addedAt,
		GUIDs:   models.NormalizeGUIDs(rewriteGUIDs(guids)),
		Genres:  genres,
	}
}

// rewriteGUIDs converts the source's "tmdb://123" form to the stored
// "tmdb:123" form; already-normal values pass through.
func rewriteGUIDs(guids []string) []string {
	out := make([]string, 0, len(guids))
	for _, g := range guids {
		out = append(out, rewriteGUID(g))
	}
	return out
}

func rewriteGUID(g string) string {
	if i := strings.Index(g, "://"); i >= 0 {
		return g[:i] + ":" + g[i+3:]
	}
	return g
}

// --- GraphQL: friends and their watchlists ---

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

const friendsQuery = `query AllFriends {
	allFriendsV2 { user { id username } sharedServers { accessToken } }
}`

const friendWatchlistQuery = `query Watchlist($uuid: ID!, $first: PaginationInt!, $after: String) {
	user(id: $uuid) {
		watchlist(first: $first, after: $after) {
			nodes { id title type ratingKey }
			pageInfo { hasNextPage endCursor }
		}
	}
}`

// Friends enumerates the accounts sharing with the token owner.
func (c *Client) Friends(ctx context.Context) ([]Friend, error) {
	var out struct {
		Data struct {
			AllFriendsV2 []struct {
				User struct {
					ID       string `json:"id"`
					Username string `json:"username"`
				} `json:"user"`
				SharedServers []struct {
					AccessToken string `json:"accessToken"`
				} `json:"sharedServers"`
			} `json:"allFriendsV2"`
		} `json:"data"`
	}
	if err := c.graphql(ctx, c.token, graphqlRequest{Query: friendsQuery}, &out); err != nil {
		return nil, err
	}

	friends := make([]Friend, 0, len(out.Data.AllFriendsV2))
	for _, f := range out.Data.AllFriendsV2 {
		friend := Friend{UUID: f.User.ID, Username: f.User.Username}
		if len(f.SharedServers) > 0 {
			friend.Token = f.SharedServers[0].AccessToken
		}
		friends = append(friends, friend)
	}
	return friends, nil
}

// FriendWatchlist pages through one friend's watchlist using their
// friendship token, deduplicating by key.
func (c *Client) FriendWatchlist(ctx context.Context, friend Friend) ([]Item, error) {
	token := friend.Token
	if token == "" {
		token = c.token
	}

	seen := make(map[string]struct{})
	var items []Item
	var after *string

	for {
		vars := map[string]any{"uuid": friend.UUID, "first": watchlistPageSize}
		if after != nil {
			vars["after"] = *after
		}
		var out struct {
			Data struct {
				User struct {
					Watchlist struct {
						Nodes []struct {
							ID        string `json:"id"`
							Title     string `json:"title"`
							Type      string `json:"type"`
							RatingKey string `json:"ratingKey"`
						} `json:"nodes"`
						PageInfo struct {
							HasNextPage bool   `json:"hasNextPage"`
							EndCursor   string `json:"endCursor"`
						} `json:"pageInfo"`
					} `json:"watchlist"`
				} `json:"user"`
			} `json:"data"`
		}
		if err := c.graphql(ctx, token, graphqlRequest{Query: friendWatchlistQuery, Variables: vars}, &out); err != nil {
			return nil, err
		}

		wl := out.Data.User.Watchlist
		for _, n := range wl.Nodes {
			key := n.RatingKey
			if key == "" {
				key = n.ID
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			typ := "movie"
			if n.Type == "SHOW" || n.Type == "show" {
				typ = "show"
			}
			items = append(items, metadataToItem(key, key, n.Title, typ, "", 0, nil, nil))
		}
		if !wl.PageInfo.HasNextPage {
			return items, nil
		}
		cursor := wl.PageInfo.EndCursor
		after = &cursor
	}
}

func (c *Client) graphql(ctx context.Context, token string, body graphqlRequest, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("plex: marshal graphql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("plex: create graphql request: %w", err)
	}
	req.Header.Set("X-Plex-Token", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.rl.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("plex: decode graphql response: %w", err)
	}
	return nil
}
