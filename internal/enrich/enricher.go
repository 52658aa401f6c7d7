// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package enrich resolves the metadata the routing engine evaluates
// against: canonical GUIDs expanded across sources, genres, language,
// certification, ratings, and streaming-provider availability for the
// configured region. Enrichment is best-effort: a failed sub-fetch
// yields a partial result with the rest intact, and repeated calls with
// the same input converge on the same output.
package enrich

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
	"github.com/jamcalli/Pulsarr-sub009/internal/tmdb"
)

// MetadataSource is the third-party lookup surface the enricher needs,
// satisfied by *tmdb.Client.
type MetadataSource interface {
	FindByExternalID(ctx context.Context, externalID, source string) (*tmdb.FindResult, error)
	MovieDetails(ctx context.Context, tmdbID int, region string) (*tmdb.Details, error)
	TVDetails(ctx context.Context, tmdbID int, region string) (*tmdb.Details, error)
}

// Result is one item's enriched facts: the expanded GUID set to persist
// and the evaluation context for the router.
type Result struct {
	GUIDs []string
	Ctx   routing.EvalContext
}

// Enricher expands an item's metadata from its GUIDs.
type Enricher struct {
	source MetadataSource
	region string
}

// New constructs an Enricher for one provider region.
func New(source MetadataSource, region string) *Enricher {
	if region == "" {
		region = "US"
	}
	return &Enricher{source: source, region: region}
}

// Enrich resolves item's metadata. The returned result always carries at
// least the item's own GUIDs and genres; lookup failures degrade to that
// baseline with a warning.
func (e *Enricher) Enrich(ctx context.Context, item *models.WatchlistItem) Result {
	res := Result{
		GUIDs: models.NormalizeGUIDs(item.GUIDs),
		Ctx: routing.EvalContext{
			ContentType: item.Type,
			Genres:      item.Genres,
			UserID:      item.UserID,
			Region:      e.region,
			Ratings:     map[string]float64{},
		},
	}

	tmdbID := e.resolveTMDBID(ctx, item, res.GUIDs)
	if tmdbID == 0 {
		return res
	}

	var details *tmdb.Details
	var err error
	if item.Type == models.ContentTypeShow {
		details, err = e.source.TVDetails(ctx, tmdbID, e.region)
	} else {
		details, err = e.source.MovieDetails(ctx, tmdbID, e.region)
	}
	if err != nil {
		logging.Warn().Err(err).Str("component", "enricher").
			Str("title", item.Title).Int("tmdb_id", tmdbID).
			Msg("detail lookup failed, continuing with partial result")
		return res
	}

	// Expand the GUID set with everything the lookup confirmed.
	expanded := append([]string{}, res.GUIDs...)
	expanded = append(expanded, fmt.Sprintf("tmdb:%d", details.TMDBID))
	if details.IMDBID != "" {
		expanded = append(expanded, "imdb:"+details.IMDBID)
	}
	res.GUIDs = models.NormalizeGUIDs(expanded)

	if len(details.Genres) > 0 {
		res.Ctx.Genres = details.Genres
	}
	res.Ctx.Language = details.Language
	res.Ctx.Certification = details.Certification
	res.Ctx.Year = details.Year
	res.Ctx.SeasonCount = details.SeasonCount
	res.Ctx.StreamingProviders = details.Providers
	if details.Rating > 0 {
		res.Ctx.Ratings["tmdb"] = details.Rating
	}
	return res
}

// resolveTMDBID extracts a tmdb GUID or cross-resolves from imdb/tvdb.
func (e *Enricher) resolveTMDBID(ctx context.Context, item *models.WatchlistItem, guids []string) int {
	if id := guidValueInt(guids, "tmdb"); id != 0 {
		return id
	}

	// Cross-source lookup: imdb first, then tvdb.
	if imdb := guidValue(guids, "imdb"); imdb != "" {
		if found, err := e.source.FindByExternalID(ctx, imdb, "imdb_id"); err != nil {
			logging.Warn().Err(err).Str("component", "enricher").Str("imdb", imdb).Msg("imdb find failed")
		} else if found != nil {
			return found.TMDBID
		}
	}
	if tvdb := guidValue(guids, "tvdb"); tvdb != "" {
		if found, err := e.source.FindByExternalID(ctx, tvdb, "tvdb_id"); err != nil {
			logging.Warn().Err(err).Str("component", "enricher").Str("tvdb", tvdb).Msg("tvdb find failed")
		} else if found != nil {
			return found.TMDBID
		}
	}

	logging.Debug().Str("component", "enricher").Str("title", item.Title).Msg("no resolvable tmdb id")
	return 0
}

// guidValue extracts the value part of the first "source:value" GUID with
// the given source prefix.
func guidValue(guids []string, source string) string {
	prefix := source + ":"
	for _, g := range guids {
		if strings.HasPrefix(g, prefix) {
			return strings.TrimPrefix(g, prefix)
		}
	}
	return ""
}

func guidValueInt(guids []string, source string) int {
	v := guidValue(guids, source)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
