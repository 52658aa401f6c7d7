// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package arr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
)

// Movie is one Radarr library entry reduced to what the reconciler needs.
type Movie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	TMDBID      int    `json:"tmdbId"`
	IMDBID      string `json:"imdbId"`
	HasFile     bool   `json:"hasFile"`
	IsAvailable bool   `json:"isAvailable"`
	Monitored   bool   `json:"monitored"`
	Added       string `json:"added"`
	Tags        []int  `json:"tags"`
}

// SetMovieTags replaces one movie's tag set.
func (c *RadarrClient) SetMovieTags(ctx context.Context, movie *Movie, tagIDs []int) error {
	movie.Tags = tagIDs
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v3/movie/%d", movie.ID), nil, movie, nil)
}

// GUIDs renders the movie's external ids in normalized form.
func (m *Movie) GUIDs() []string {
	var out []string
	if m.TMDBID != 0 {
		out = append(out, fmt.Sprintf("tmdb:%d", m.TMDBID))
	}
	if m.IMDBID != "" {
		out = append(out, "imdb:"+m.IMDBID)
	}
	return out
}

// AddMovieRequest carries the routing spec fields a Radarr-like add
// accepts.
type AddMovieRequest struct {
	TMDBID              int
	Title               string
	RootFolder          string
	QualityProfileID    int
	Tags                []int
	SearchOnAdd         bool
	Monitor             string // "movieOnly", "movieAndCollection", "none"
	MinimumAvailability string // "announced" | "inCinemas" | "released"
}

// RadarrClient is the Radarr-like flavor of the downstream protocol.
type RadarrClient struct {
	client
}

// NewRadarr constructs a client for one Radarr-like instance.
func NewRadarr(baseURL, apiKey string, rl *ratelimit.Client) *RadarrClient {
	return &RadarrClient{client{baseURL: baseURL, apiKey: apiKey, rl: rl}}
}

// Movies fetches the instance's full movie set.
func (c *RadarrClient) Movies(ctx context.Context) ([]Movie, error) {
	var out []Movie
	if err := c.do(ctx, http.MethodGet, "/api/v3/movie", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LookupByTMDBID resolves one movie by its TMDB id without adding it.
func (c *RadarrClient) LookupByTMDBID(ctx context.Context, tmdbID int) (*Movie, error) {
	q := url.Values{}
	q.Set("tmdbId", strconv.Itoa(tmdbID))
	var out Movie
	if err := c.do(ctx, http.MethodGet, "/api/v3/movie/lookup/tmdb", q, nil, &out); err != nil {
		return nil, err
	}
	if out.TMDBID == 0 {
		return nil, nil
	}
	return &out, nil
}

// AddMovie submits one movie with the resolved routing parameters.
func (c *RadarrClient) AddMovie(ctx context.Context, req AddMovieRequest) (*Movie, error) {
	minAvail := req.MinimumAvailability
	if minAvail == "" {
		minAvail = "released"
	}
	monitor := req.Monitor
	if monitor == "" {
		monitor = "movieOnly"
	}
	payload := map[string]any{
		"tmdbId":              req.TMDBID,
		"title":               req.Title,
		"rootFolderPath":      req.RootFolder,
		"qualityProfileId":    req.QualityProfileID,
		"tags":                req.Tags,
		"minimumAvailability": minAvail,
		"monitored":           monitor != "none",
		"addOptions": map[string]any{
			"monitor":          monitor,
			"searchForMovie":   req.SearchOnAdd,
		},
	}
	var out Movie
	if err := c.do(ctx, http.MethodPost, "/api/v3/movie", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
