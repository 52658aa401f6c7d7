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

// Series is one Sonarr library entry reduced to what the reconciler and
// rolling monitoring need.
type Series struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	TVDBID     int      `json:"tvdbId"`
	IMDBID     string   `json:"imdbId"`
	Status     string   `json:"status"` // "continuing" | "ended" | ...
	Monitored  bool     `json:"monitored"`
	Added      string   `json:"added"`
	Tags       []int    `json:"tags"`
	Seasons    []Season `json:"seasons"`
	Statistics struct {
		EpisodeFileCount int `json:"episodeFileCount"`
	} `json:"statistics"`
}

// Season is one season's monitoring state.
type Season struct {
	SeasonNumber int  `json:"seasonNumber"`
	Monitored    bool `json:"monitored"`
	Statistics   struct {
		TotalEpisodeCount int `json:"totalEpisodeCount"`
	} `json:"statistics"`
}

// GUIDs renders the series' external ids in normalized form.
func (s *Series) GUIDs() []string {
	var out []string
	if s.TVDBID != 0 {
		out = append(out, fmt.Sprintf("tvdb:%d", s.TVDBID))
	}
	if s.IMDBID != "" {
		out = append(out, "imdb:"+s.IMDBID)
	}
	return out
}

// AddSeriesRequest carries the routing spec fields a Sonarr-like add
// accepts.
type AddSeriesRequest struct {
	TVDBID           int
	Title            string
	RootFolder       string
	QualityProfileID int
	Tags             []int
	SearchOnAdd      bool
	SeasonMonitoring string // concrete value: "all", "firstSeason", "pilot", ...
	SeriesType       string // "standard" | "anime" | "daily"
}

// SonarrClient is the Sonarr-like flavor of the downstream protocol.
type SonarrClient struct {
	client
}

// NewSonarr constructs a client for one Sonarr-like instance.
func NewSonarr(baseURL, apiKey string, rl *ratelimit.Client) *SonarrClient {
	return &SonarrClient{client{baseURL: baseURL, apiKey: apiKey, rl: rl}}
}

// Series fetches the instance's full series set.
func (c *SonarrClient) Series(ctx context.Context) ([]Series, error) {
	var out []Series
	if err := c.do(ctx, http.MethodGet, "/api/v3/series", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LookupByTVDBID resolves one series by its TVDB id without adding it.
func (c *SonarrClient) LookupByTVDBID(ctx context.Context, tvdbID int) (*Series, error) {
	q := url.Values{}
	q.Set("term", "tvdb:"+strconv.Itoa(tvdbID))
	var out []Series
	if err := c.do(ctx, http.MethodGet, "/api/v3/series/lookup", q, nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// AddSeries submits one series with the resolved routing parameters.
func (c *SonarrClient) AddSeries(ctx context.Context, req AddSeriesRequest) (*Series, error) {
	seriesType := req.SeriesType
	if seriesType == "" {
		seriesType = "standard"
	}
	monitoring := req.SeasonMonitoring
	if monitoring == "" {
		monitoring = "all"
	}
	payload := map[string]any{
		"tvdbId":           req.TVDBID,
		"title":            req.Title,
		"rootFolderPath":   req.RootFolder,
		"qualityProfileId": req.QualityProfileID,
		"tags":             req.Tags,
		"seriesType":       seriesType,
		"monitored":        true,
		"addOptions": map[string]any{
			"monitor":                   monitoring,
			"searchForMissingEpisodes":  req.SearchOnAdd,
		},
	}
	var out Series
	if err := c.do(ctx, http.MethodPost, "/api/v3/series", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetSeriesTags replaces one series' tag set.
func (c *SonarrClient) SetSeriesTags(ctx context.Context, series *Series, tagIDs []int) error {
	series.Tags = tagIDs
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v3/series/%d", series.ID), nil, series, nil)
}

// SetSeasonMonitored flips one season's monitored flag, used by rolling
// monitoring expansion. It does not trigger a search for the season.
func (c *SonarrClient) SetSeasonMonitored(ctx context.Context, series *Series, seasonNumber int, monitored bool) error {
	for i := range series.Seasons {
		if series.Seasons[i].SeasonNumber == seasonNumber {
			series.Seasons[i].Monitored = monitored
		}
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v3/series/%d", series.ID), nil, series, nil)
}
