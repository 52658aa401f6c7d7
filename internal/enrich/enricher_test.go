// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/tmdb"
)

type fakeSource struct {
	findErr    error
	detailsErr error
	movie      *tmdb.Details
	tv         *tmdb.Details
	found      *tmdb.FindResult
}

func (f *fakeSource) FindByExternalID(context.Context, string, string) (*tmdb.FindResult, error) {
	return f.found, f.findErr
}

func (f *fakeSource) MovieDetails(context.Context, int, string) (*tmdb.Details, error) {
	return f.movie, f.detailsErr
}

func (f *fakeSource) TVDetails(context.Context, int, string) (*tmdb.Details, error) {
	return f.tv, f.detailsErr
}

func TestEnrichExpandsGUIDsAndContext(t *testing.T) {
	src := &fakeSource{
		movie: &tmdb.Details{
			TMDBID: 10, IMDBID: "tt0000010",
			Genres: []string{"Action", "Thriller"}, Language: "en",
			Certification: "PG-13", Rating: 7.4, Year: 2021,
			Providers: []string{"Netflix"},
		},
	}
	e := New(src, "US")

	item := &models.WatchlistItem{
		UserID: 1, Title: "Example", Type: models.ContentTypeMovie,
		GUIDs: []string{"tmdb:10"},
	}
	res := e.Enrich(context.Background(), item)

	assert.ElementsMatch(t, []string{"tmdb:10", "imdb:tt0000010"}, res.GUIDs)
	assert.Equal(t, []string{"Action", "Thriller"}, res.Ctx.Genres)
	assert.Equal(t, "en", res.Ctx.Language)
	assert.Equal(t, "PG-13", res.Ctx.Certification)
	assert.Equal(t, 2021, res.Ctx.Year)
	assert.Equal(t, []string{"Netflix"}, res.Ctx.StreamingProviders)
	assert.InDelta(t, 7.4, res.Ctx.Ratings["tmdb"], 0.001)
}

func TestEnrichCrossSourceResolution(t *testing.T) {
	src := &fakeSource{
		found: &tmdb.FindResult{TMDBID: 99},
		tv: &tmdb.Details{
			TMDBID: 99, Genres: []string{"Anime"}, SeasonCount: 3,
		},
	}
	e := New(src, "US")

	item := &models.WatchlistItem{
		UserID: 2, Title: "Show", Type: models.ContentTypeShow,
		GUIDs: []string{"tvdb:555"},
	}
	res := e.Enrich(context.Background(), item)
	assert.Contains(t, res.GUIDs, "tmdb:99")
	assert.Contains(t, res.GUIDs, "tvdb:555")
	assert.Equal(t, 3, res.Ctx.SeasonCount)
}

func TestEnrichDegradesToPartialResult(t *testing.T) {
	src := &fakeSource{detailsErr: errors.New("upstream down")}
	e := New(src, "US")

	item := &models.WatchlistItem{
		UserID: 1, Title: "Example", Type: models.ContentTypeMovie,
		GUIDs: []string{"tmdb:10"}, Genres: []string{"Drama"},
	}
	res := e.Enrich(context.Background(), item)

	assert.Equal(t, []string{"tmdb:10"}, res.GUIDs)
	assert.Equal(t, []string{"Drama"}, res.Ctx.Genres)
}

func TestEnrichIsIdempotent(t *testing.T) {
	src := &fakeSource{
		movie: &tmdb.Details{TMDBID: 10, IMDBID: "tt0000010", Genres: []string{"Action"}},
	}
	e := New(src, "US")

	item := &models.WatchlistItem{
		UserID: 1, Title: "Example", Type: models.ContentTypeMovie,
		GUIDs: []string{"tmdb:10", "imdb:tt0000010"},
	}
	first := e.Enrich(context.Background(), item)

	item.GUIDs = first.GUIDs
	second := e.Enrich(context.Background(), item)
	assert.Equal(t, first.GUIDs, second.GUIDs)
	assert.Equal(t, first.Ctx, second.Ctx)
}
