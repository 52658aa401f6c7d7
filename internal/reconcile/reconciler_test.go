// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/arr"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/store/fake"
)

type fakeClients struct {
	movies []arr.Movie
	series []arr.Series
}

type fakeRadarr struct{ movies []arr.Movie }

func (f fakeRadarr) Movies(context.Context) ([]arr.Movie, error) { return f.movies, nil }

type fakeSonarr struct{ series []arr.Series }

func (f fakeSonarr) Series(context.Context) ([]arr.Series, error) { return f.series, nil }

func (f *fakeClients) RadarrReader(*models.DownstreamInstance) RadarrAPI {
	return fakeRadarr{f.movies}
}

func (f *fakeClients) SonarrReader(*models.DownstreamInstance) SonarrAPI {
	return fakeSonarr{f.series}
}

func seedMovieItem(t *testing.T, st *fake.Store, status models.WatchlistStatus) (*models.User, *models.WatchlistItem) {
	t.Helper()
	ctx := context.Background()
	user := &models.User{Name: "alice"}
	require.NoError(t, st.CreateUser(ctx, user))
	item := &models.WatchlistItem{
		UserID: user.ID, Key: "k1", Title: "Example",
		Type: models.ContentTypeMovie, GUIDs: []string{"tmdb:10"}, Status: status,
	}
	require.NoError(t, st.CreateWatchlistItem(ctx, item))
	require.NoError(t, st.CreateInstance(ctx, &models.DownstreamInstance{
		Name: "radarr", TargetType: models.TargetRadarr,
		BaseURL: "http://radarr:7878", APIKey: "k", IsDefault: true,
	}))
	return user, item
}

func TestReconcileAdvancesStatus(t *testing.T) {
	st := fake.New()
	user, item := seedMovieItem(t, st, models.StatusRequested)
	ctx := context.Background()

	clients := &fakeClients{movies: []arr.Movie{
		{ID: 1, TMDBID: 10, HasFile: true, IsAvailable: true, Added: "2026-01-02T00:00:00Z"},
	}}
	r := NewReconciler(st, clients)
	require.NoError(t, r.Run(ctx))

	got, err := st.GetWatchlistItem(ctx, user.ID, item.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGrabbed, got.Status)
	require.NotNil(t, got.MovieStatus)
	assert.Equal(t, models.MovieStatusAvailable, *got.MovieStatus)
	require.NotNil(t, got.RadarrInstanceID)
	require.NotNil(t, got.Added)
	assert.Equal(t, 2026, got.Added.Year())
}

func TestReconcileNeverDowngradesNotified(t *testing.T) {
	st := fake.New()
	user, item := seedMovieItem(t, st, models.StatusNotified)
	ctx := context.Background()

	// Downstream reports only "requested" (present, no file): no update.
	clients := &fakeClients{movies: []arr.Movie{{ID: 1, TMDBID: 10, HasFile: false}}}
	r := NewReconciler(st, clients)
	require.NoError(t, r.Run(ctx))

	got, err := st.GetWatchlistItem(ctx, user.ID, item.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotified, got.Status)
	history, err := st.StatusHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	// Downstream reports "grabbed": live status stays notified, history
	// backfilled once, dated by the item's added timestamp.
	added := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	clients.movies[0].HasFile = true
	clients.movies[0].Added = added.Format(time.RFC3339)
	require.NoError(t, r.Run(ctx))
	require.NoError(t, r.Run(ctx)) // idempotent: still one entry

	got, err = st.GetWatchlistItem(ctx, user.ID, item.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotified, got.Status)
	history, err = st.StatusHistory(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusGrabbed, history[0].Status)
}

func TestReconcileTwiceProducesNoSecondUpdate(t *testing.T) {
	st := fake.New()
	user, item := seedMovieItem(t, st, models.StatusRequested)
	ctx := context.Background()

	clients := &fakeClients{movies: []arr.Movie{
		{ID: 1, TMDBID: 10, HasFile: true, IsAvailable: true, Added: "2026-01-02T00:00:00Z"},
	}}
	r := NewReconciler(st, clients)
	require.NoError(t, r.Run(ctx))

	first, err := st.GetWatchlistItem(ctx, user.ID, item.Key)
	require.NoError(t, err)

	require.NoError(t, r.Run(ctx))
	second, err := st.GetWatchlistItem(ctx, user.ID, item.Key)
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt, "second pass emits zero updates")
}

func TestReconcileShowFields(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	user := &models.User{Name: "bob"}
	require.NoError(t, st.CreateUser(ctx, user))
	item := &models.WatchlistItem{
		UserID: user.ID, Key: "s1", Title: "Show",
		Type: models.ContentTypeShow, GUIDs: []string{"tvdb:55"}, Status: models.StatusRequested,
	}
	require.NoError(t, st.CreateWatchlistItem(ctx, item))
	require.NoError(t, st.CreateInstance(ctx, &models.DownstreamInstance{
		Name: "sonarr", TargetType: models.TargetSonarr,
		BaseURL: "http://sonarr:8989", APIKey: "k", IsDefault: true,
	}))

	series := arr.Series{ID: 9, TVDBID: 55, Status: "ended"}
	series.Statistics.EpisodeFileCount = 3
	clients := &fakeClients{series: []arr.Series{series}}
	r := NewReconciler(st, clients)
	require.NoError(t, r.Run(ctx))

	got, err := st.GetWatchlistItem(ctx, user.ID, item.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGrabbed, got.Status)
	require.NotNil(t, got.SeriesStatus)
	assert.Equal(t, models.SeriesStatusEnded, *got.SeriesStatus)
	require.NotNil(t, got.SonarrInstanceID)
}
