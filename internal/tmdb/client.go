// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tmdb is the third-party metadata source behind the enricher:
// external-id resolution, genres/language, certification for a region,
// ratings, and streaming-provider availability.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
)

// Client talks to the TMDB v3 API through the shared rate-limited
// transport.
type Client struct {
	baseURL string
	apiKey  string
	rl      *ratelimit.Client
}

// NewClient constructs a Client. An empty baseURL uses the public API.
func NewClient(baseURL, apiKey string, rl *ratelimit.Client) *Client {
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, rl: rl}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("tmdb: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.rl.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("tmdb: decode response: %w", err)
	}
	return nil
}

// FindResult is the TMDB id resolved from a foreign external id.
type FindResult struct {
	TMDBID  int
	IsMovie bool
}

// FindByExternalID resolves an IMDB ("tt...") or TVDB (numeric) id to a
// TMDB id. Returns nil when nothing matches.
func (c *Client) FindByExternalID(ctx context.Context, externalID, source string) (*FindResult, error) {
	q := url.Values{}
	q.Set("external_source", source)

	var out struct {
		MovieResults []struct {
			ID int `json:"id"`
		} `json:"movie_results"`
		TVResults []struct {
			ID int `json:"id"`
		} `json:"tv_results"`
	}
	if err := c.get(ctx, "/find/"+url.PathEscape(externalID), q, &out); err != nil {
		return nil, err
	}
	if len(out.MovieResults) > 0 {
		return &FindResult{TMDBID: out.MovieResults[0].ID, IsMovie: true}, nil
	}
	if len(out.TVResults) > 0 {
		return &FindResult{TMDBID: out.TVResults[0].ID}, nil
	}
	return nil, nil
}

// Details is the enrichment payload for one title.
type Details struct {
	TMDBID        int
	IMDBID        string
	Genres        []string
	Language      string
	Certification string
	Rating        float64
	Year          int
	SeasonCount   int
	Providers     []string
}

// MovieDetails fetches one movie's enrichment fields, with certification
// for the given region and streaming providers appended.
func (c *Client) MovieDetails(ctx context.Context, tmdbID int, region string) (*Details, error) {
	q := url.Values{}
	q.Set("append_to_response", "release_dates,watch/providers,external_ids")

	var out struct {
		IMDBID string `json:"imdb_id"`
		Genres []struct {
			Name string `json:"name"`
		} `json:"genres"`
		OriginalLanguage string  `json:"original_language"`
		VoteAverage      float64 `json:"vote_average"`
		ReleaseDate      string  `json:"release_date"`
		ReleaseDates     struct {
			Results []struct {
				ISO31661     string `json:"iso_3166_1"`
				ReleaseDates []struct {
					Certification string `json:"certification"`
				} `json:"release_dates"`
			} `json:"results"`
		} `json:"release_dates"`
		WatchProviders providerEnvelope `json:"watch/providers"`
	}
	if err := c.get(ctx, "/movie/"+strconv.Itoa(tmdbID), q, &out); err != nil {
		return nil, err
	}

	d := &Details{
		TMDBID:   tmdbID,
		IMDBID:   out.IMDBID,
		Language: out.OriginalLanguage,
		Rating:   out.VoteAverage,
		Year:     yearOf(out.ReleaseDate),
	}
	for _, g := range out.Genres {
		d.Genres = append(d.Genres, g.Name)
	}
	for _, r := range out.ReleaseDates.Results {
		if r.ISO31661 == region {
			for _, rd := range r.ReleaseDates {
				if rd.Certification != "" {
					d.Certification = rd.Certification
					break
				}
			}
		}
	}
	d.Providers = out.WatchProviders.providersFor(region)
	return d, nil
}

// TVDetails fetches one show's enrichment fields.
func (c *Client) TVDetails(ctx context.Context, tmdbID int, region string) (*Details, error) {
	q := url.Values{}
	q.Set("append_to_response", "content_ratings,watch/providers,external_ids")

	var out struct {
		Genres []struct {
			Name string `json:"name"`
		} `json:"genres"`
		OriginalLanguage string  `json:"original_language"`
		VoteAverage      float64 `json:"vote_average"`
		FirstAirDate     string  `json:"first_air_date"`
		NumberOfSeasons  int     `json:"number_of_seasons"`
		ExternalIDs      struct {
			IMDBID string `json:"imdb_id"`
		} `json:"external_ids"`
		ContentRatings struct {
			Results []struct {
				ISO31661 string `json:"iso_3166_1"`
				Rating   string `json:"rating"`
			} `json:"results"`
		} `json:"content_ratings"`
		WatchProviders providerEnvelope `json:"watch/providers"`
	}
	if err := c.get(ctx, "/tv/"+strconv.Itoa(tmdbID), q, &out); err != nil {
		return nil, err
	}

	d := &Details{
		TMDBID:      tmdbID,
		IMDBID:      out.ExternalIDs.IMDBID,
		Language:    out.OriginalLanguage,
		Rating:      out.VoteAverage,
		Year:        yearOf(out.FirstAirDate),
		SeasonCount: out.NumberOfSeasons,
	}
	for _, g := range out.Genres {
		d.Genres = append(d.Genres, g.Name)
	}
	for _, r := range out.ContentRatings.Results {
		if r.ISO31661 == region && r.Rating != "" {
			d.Certification = r.Rating
			break
		}
	}
	d.Providers = out.WatchProviders.providersFor(region)
	return d, nil
}

type providerEnvelope struct {
	Results map[string]struct {
		Flatrate []struct {
			ProviderName string `json:"provider_name"`
		} `json:"flatrate"`
	} `json:"results"`
}

func (p providerEnvelope) providersFor(region string) []string {
	entry, ok := p.Results[region]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.Flatrate))
	for _, f := range entry.Flatrate {
		out = append(out, f.ProviderName)
	}
	return out
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
