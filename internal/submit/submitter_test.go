// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package submit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/arr"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/store/fake"
)

type fakeSonarr struct {
	mu    sync.Mutex
	adds  []arr.AddSeriesRequest
	err   error
}

func (f *fakeSonarr) EnsureTags(_ context.Context, labels []string) ([]int, error) {
	ids := make([]int, len(labels))
	for i := range labels {
		ids[i] = i + 1
	}
	return ids, nil
}

func (f *fakeSonarr) AddSeries(_ context.Context, req arr.AddSeriesRequest) (*arr.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.adds = append(f.adds, req)
	return &arr.Series{ID: 1, TVDBID: req.TVDBID}, nil
}

type fakeRadarr struct {
	mu   sync.Mutex
	adds []arr.AddMovieRequest
	err  error
}

func (f *fakeRadarr) EnsureTags(_ context.Context, labels []string) ([]int, error) {
	ids := make([]int, len(labels))
	for i := range labels {
		ids[i] = i + 1
	}
	return ids, nil
}

func (f *fakeRadarr) AddMovie(_ context.Context, req arr.AddMovieRequest) (*arr.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.adds = append(f.adds, req)
	return &arr.Movie{ID: 1, TMDBID: req.TMDBID}, nil
}

type fakeClients struct {
	sonarr map[int]*fakeSonarr
	radarr map[int]*fakeRadarr
}

func (f *fakeClients) Sonarr(inst *models.DownstreamInstance) SonarrAPI { return f.sonarr[inst.ID] }
func (f *fakeClients) Radarr(inst *models.DownstreamInstance) RadarrAPI { return f.radarr[inst.ID] }

func TestSubmitFansOutToSyncedInstancesWithOwnDefaults(t *testing.T) {
	st := fake.New()
	ctx := context.Background()

	primary := &models.DownstreamInstance{
		Name: "radarr-main", TargetType: models.TargetRadarr,
		BaseURL: "http://r1", APIKey: "k", IsDefault: true,
		Defaults: models.InstanceDefaults{RootFolder: "/movies", QualityProfile: "1"},
	}
	require.NoError(t, st.CreateInstance(ctx, primary))
	synced := &models.DownstreamInstance{
		Name: "radarr-4k", TargetType: models.TargetRadarr,
		BaseURL: "http://r2", APIKey: "k",
		Defaults: models.InstanceDefaults{RootFolder: "/movies-4k", QualityProfile: "7"},
	}
	require.NoError(t, st.CreateInstance(ctx, synced))

	clients := &fakeClients{radarr: map[int]*fakeRadarr{
		primary.ID: {}, synced.ID: {},
	}}
	s := New(st, clients, nil, 4)

	item := &models.WatchlistItem{
		ID: 10, UserID: 1, Key: "k1", Title: "Example",
		Type: models.ContentTypeMovie, GUIDs: []string{"tmdb:42"},
	}
	decision := models.RouterDecision{
		TargetType:        models.TargetRadarr,
		PrimaryInstanceID: primary.ID,
		SyncedInstanceIDs: []int{synced.ID},
		RootFolder:        "/rule-override",
	}

	result, err := s.Submit(ctx, item, decision)
	require.NoError(t, err)
	assert.True(t, result.Succeeded())

	// Primary used the rule override.
	require.Len(t, clients.radarr[primary.ID].adds, 1)
	assert.Equal(t, "/rule-override", clients.radarr[primary.ID].adds[0].RootFolder)

	// The synced instance used its own defaults, not the override.
	require.Len(t, clients.radarr[synced.ID].adds, 1)
	assert.Equal(t, "/movies-4k", clients.radarr[synced.ID].adds[0].RootFolder)
}

func TestSubmitSyncedFailureIsolated(t *testing.T) {
	st := fake.New()
	ctx := context.Background()

	primary := &models.DownstreamInstance{
		Name: "radarr-main", TargetType: models.TargetRadarr,
		BaseURL: "http://r1", APIKey: "k", IsDefault: true,
	}
	require.NoError(t, st.CreateInstance(ctx, primary))
	synced := &models.DownstreamInstance{
		Name: "radarr-4k", TargetType: models.TargetRadarr,
		BaseURL: "http://r2", APIKey: "k",
	}
	require.NoError(t, st.CreateInstance(ctx, synced))

	clients := &fakeClients{radarr: map[int]*fakeRadarr{
		primary.ID: {}, synced.ID: {err: errors.New("down")},
	}}
	s := New(st, clients, nil, 4)

	item := &models.WatchlistItem{
		ID: 11, UserID: 1, Key: "k2", Title: "Example",
		Type: models.ContentTypeMovie, GUIDs: []string{"tmdb:43"},
	}
	result, err := s.Submit(ctx, item, models.RouterDecision{
		TargetType: models.TargetRadarr, PrimaryInstanceID: primary.ID,
		SyncedInstanceIDs: []int{synced.ID},
	})
	require.NoError(t, err, "synced failure does not fail the decision")
	assert.True(t, result.Succeeded())
	require.Len(t, result.Synced, 1)
	assert.Error(t, result.Synced[0].Err)
}

func TestSubmitRollingMonitoringTranslatedAndTracked(t *testing.T) {
	st := fake.New()
	ctx := context.Background()

	inst := &models.DownstreamInstance{
		Name: "sonarr", TargetType: models.TargetSonarr,
		BaseURL: "http://s1", APIKey: "k", IsDefault: true,
		Defaults: models.InstanceDefaults{RootFolder: "/tv", QualityProfile: "1"},
	}
	require.NoError(t, st.CreateInstance(ctx, inst))

	sonarr := &fakeSonarr{}
	clients := &fakeClients{sonarr: map[int]*fakeSonarr{inst.ID: sonarr}}
	s := New(st, clients, nil, 4)

	item := &models.WatchlistItem{
		ID: 12, UserID: 1, Key: "s1", Title: "Show",
		Type: models.ContentTypeShow, GUIDs: []string{"tvdb:99"},
	}
	_, err := s.Submit(ctx, item, models.RouterDecision{
		TargetType: models.TargetSonarr, PrimaryInstanceID: inst.ID,
		SeasonMonitoring: models.MonitorPilotRolling,
	})
	require.NoError(t, err)

	require.Len(t, sonarr.adds, 1)
	assert.Equal(t, models.MonitorPilot, sonarr.adds[0].SeasonMonitoring,
		"rolling value translated to its concrete form at submission")

	tracked, err := st.RollingShowForItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorPilotRolling, tracked.StartingMonitoring)
	assert.Equal(t, 1, tracked.MonitoredSeason)
}

func TestSubmitMissingGUIDFails(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	inst := &models.DownstreamInstance{
		Name: "radarr", TargetType: models.TargetRadarr,
		BaseURL: "http://r1", APIKey: "k", IsDefault: true,
	}
	require.NoError(t, st.CreateInstance(ctx, inst))

	clients := &fakeClients{radarr: map[int]*fakeRadarr{inst.ID: {}}}
	s := New(st, clients, nil, 4)

	item := &models.WatchlistItem{
		ID: 13, UserID: 1, Key: "k9", Title: "NoGuid",
		Type: models.ContentTypeMovie, GUIDs: []string{"imdb:tt9"},
	}
	result, err := s.Submit(ctx, item, models.RouterDecision{
		TargetType: models.TargetRadarr, PrimaryInstanceID: inst.ID,
	})
	assert.Error(t, err)
	assert.False(t, result.Succeeded())
}
