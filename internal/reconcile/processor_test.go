// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/approval"
	"github.com/jamcalli/Pulsarr-sub009/internal/enrich"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/quota"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing/evaluators"
	"github.com/jamcalli/Pulsarr-sub009/internal/store/fake"
	"github.com/jamcalli/Pulsarr-sub009/internal/submit"
)

type recordingSubmitter struct {
	calls []models.RouterDecision
}

func (r *recordingSubmitter) Submit(_ context.Context, _ *models.WatchlistItem, d models.RouterDecision) (submit.Result, error) {
	r.calls = append(r.calls, d)
	return submit.Result{Primary: submit.InstanceResult{InstanceID: d.PrimaryInstanceID}}, nil
}

type passthroughEnricher struct{}

func (passthroughEnricher) Enrich(_ context.Context, item *models.WatchlistItem) enrich.Result {
	return enrich.Result{
		GUIDs: models.NormalizeGUIDs(item.GUIDs),
		Ctx: routing.EvalContext{
			ContentType: item.Type, Genres: item.Genres, UserID: item.UserID,
		},
	}
}

func newEngine(st *fake.Store) *routing.Engine {
	reg := routing.NewRegistry()
	reg.Register(evaluators.NewGenre())
	reg.Register(evaluators.NewUser())
	return routing.NewEngine(reg, st)
}

func buildProcessor(st *fake.Store, sub *recordingSubmitter) *Processor {
	checker := quota.NewChecker(st, quota.Config{})
	gate := approval.New(st, sub, checker, nil, approval.Config{})
	return NewProcessor(st, passthroughEnricher{}, newEngine(st), gate, sub, checker)
}

// Simple acquisition: no rules, default instance, item ends requested
// with one submission carrying instance defaults.
func TestProcessPendingDefaultInstance(t *testing.T) {
	st := fake.New()
	ctx := context.Background()

	user := &models.User{Name: "alice"}
	require.NoError(t, st.CreateUser(ctx, user))
	require.NoError(t, st.CreateInstance(ctx, &models.DownstreamInstance{
		Name: "radarr", TargetType: models.TargetRadarr,
		BaseURL: "http://r1", APIKey: "k", IsDefault: true,
		Defaults: models.InstanceDefaults{RootFolder: "/movies", QualityProfile: "1"},
	}))
	item := &models.WatchlistItem{
		UserID: user.ID, Key: "k1", Title: "Example",
		Type: models.ContentTypeMovie, GUIDs: []string{"tmdb:10"},
	}
	require.NoError(t, st.CreateWatchlistItem(ctx, item))

	sub := &recordingSubmitter{}
	p := buildProcessor(st, sub)
	require.NoError(t, p.ProcessPending(ctx))

	require.Len(t, sub.calls, 1)
	assert.Equal(t, "/movies", sub.calls[0].RootFolder)

	got, err := st.GetWatchlistItem(ctx, user.ID, "k1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, got.Status)
	require.NotNil(t, got.RadarrInstanceID)

	// Usage was recorded for the direct submission.
	n, err := st.UsageSince(ctx, user.ID, models.ContentTypeMovie, got.CreatedAt.Add(-1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Rule-based routing: an anime genre rule routes the item to instance 2
// rather than to the default instance.
func TestProcessPendingGenreRuleWins(t *testing.T) {
	st := fake.New()
	ctx := context.Background()

	user := &models.User{Name: "bob"}
	require.NoError(t, st.CreateUser(ctx, user))

	def := &models.DownstreamInstance{
		Name: "sonarr-main", TargetType: models.TargetSonarr,
		BaseURL: "http://s1", APIKey: "k", IsDefault: true,
	}
	require.NoError(t, st.CreateInstance(ctx, def))
	anime := &models.DownstreamInstance{
		Name: "sonarr-anime", TargetType: models.TargetSonarr,
		BaseURL: "http://s2", APIKey: "k",
		Defaults: models.InstanceDefaults{RootFolder: "/anime"},
	}
	require.NoError(t, st.CreateInstance(ctx, anime))

	criteria, _ := json.Marshal(map[string]any{"operator": "contains", "value": "anime"})
	require.NoError(t, st.CreateRouterRule(ctx, &models.RouterRule{
		Name: "anime to 2", Type: "genre", Criteria: criteria,
		TargetType: models.TargetSonarr, TargetInstanceID: anime.ID,
		Order: 80, Enabled: true,
	}))

	item := &models.WatchlistItem{
		UserID: user.ID, Key: "s1", Title: "Anime Show",
		Type: models.ContentTypeShow, GUIDs: []string{"tvdb:9"},
		Genres: []string{"Anime", "Action"},
	}
	require.NoError(t, st.CreateWatchlistItem(ctx, item))

	sub := &recordingSubmitter{}
	p := buildProcessor(st, sub)
	require.NoError(t, p.ProcessPending(ctx))

	require.Len(t, sub.calls, 1)
	assert.Equal(t, anime.ID, sub.calls[0].PrimaryInstanceID)
	assert.Equal(t, "/anime", sub.calls[0].RootFolder)

	got, err := st.GetWatchlistItem(ctx, user.ID, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, got.Status)
	require.NotNil(t, got.SonarrInstanceID)
	assert.Equal(t, anime.ID, *got.SonarrInstanceID)
}

// A flagged user's item stays pending behind an approval request; no
// submission happens until the request is approved.
func TestProcessPendingHeldForApproval(t *testing.T) {
	st := fake.New()
	ctx := context.Background()

	user := &models.User{Name: "carol", RequiresApproval: true}
	require.NoError(t, st.CreateUser(ctx, user))
	require.NoError(t, st.CreateInstance(ctx, &models.DownstreamInstance{
		Name: "radarr", TargetType: models.TargetRadarr,
		BaseURL: "http://r1", APIKey: "k", IsDefault: true,
	}))
	item := &models.WatchlistItem{
		UserID: user.ID, Key: "k1", Title: "Held",
		Type: models.ContentTypeMovie, GUIDs: []string{"tmdb:77"},
	}
	require.NoError(t, st.CreateWatchlistItem(ctx, item))

	sub := &recordingSubmitter{}
	p := buildProcessor(st, sub)
	require.NoError(t, p.ProcessPending(ctx))

	assert.Empty(t, sub.calls)
	got, err := st.GetWatchlistItem(ctx, user.ID, "k1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	pending, err := st.ListPendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.TriggerUserRequiresApproval, pending[0].TriggeredBy)

	// A second pass does not duplicate the pending request.
	require.NoError(t, p.ProcessPending(ctx))
	pending, err = st.ListPendingApprovals(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
