// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

type fakeStore struct {
	rules     []models.RouterRule
	instances map[int]*models.DownstreamInstance
	defaults  map[models.TargetType]*models.DownstreamInstance
}

func (f *fakeStore) RulesForTargetType(_ context.Context, targetType models.TargetType) ([]models.RouterRule, error) {
	var out []models.RouterRule
	for _, r := range f.rules {
		if r.TargetType == targetType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) DefaultInstance(_ context.Context, targetType models.TargetType) (*models.DownstreamInstance, error) {
	return f.defaults[targetType], nil
}

func (f *fakeStore) Instance(_ context.Context, id int) (*models.DownstreamInstance, error) {
	return f.instances[id], nil
}

func newGenreRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(genreEvaluatorForTest{})
	return reg
}

// genreEvaluatorForTest mirrors evaluators.Genre without importing the
// evaluators package (which imports routing), avoiding an import cycle
// in this test.
type genreEvaluatorForTest struct{}

func (genreEvaluatorForTest) Name() string              { return "genre" }
func (genreEvaluatorForTest) Priority() int              { return 50 }
func (genreEvaluatorForTest) SupportedFields() []string { return []string{"genre"} }
func (genreEvaluatorForTest) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "genre"
}
func (genreEvaluatorForTest) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx EvalContext) bool {
	var c struct {
		Operator models.ConditionOperator `json:"operator"`
		Value    any                      `json:"value"`
	}
	if err := json.Unmarshal(rule.Criteria, &c); err != nil {
		return false
	}
	op := c.Operator
	if op == "" {
		op = models.OpEquals
	}
	return EvaluateOperator(op, any(ctx.Genres), c.Value)
}
func (genreEvaluatorForTest) ResolveField(field string, _ *models.WatchlistItem, ctx EvalContext) (any, bool) {
	if field != "genre" || len(ctx.Genres) == 0 {
		return nil, false
	}
	return ctx.Genres, true
}

func TestEngineRuleBasedFanOut(t *testing.T) {
	reg := newGenreRegistry()

	criteria, _ := json.Marshal(map[string]any{"operator": "contains", "value": "anime"})
	rules := []models.RouterRule{
		{ID: 1, Name: "anime", Type: "genre", Criteria: criteria, TargetType: models.TargetSonarr, TargetInstanceID: 2, Order: 80, Enabled: true},
	}
	instances := map[int]*models.DownstreamInstance{
		1: {ID: 1, TargetType: models.TargetSonarr, IsDefault: true, Defaults: models.InstanceDefaults{RootFolder: "/tv"}},
		2: {ID: 2, TargetType: models.TargetSonarr, SyncedInstances: []int{3}, Defaults: models.InstanceDefaults{RootFolder: "/anime"}},
		3: {ID: 3, TargetType: models.TargetSonarr, Defaults: models.InstanceDefaults{RootFolder: "/anime-backup"}},
	}
	store := &fakeStore{
		rules:     rules,
		instances: instances,
		defaults:  map[models.TargetType]*models.DownstreamInstance{models.TargetSonarr: instances[1]},
	}

	engine := NewEngine(reg, store)
	item := &models.WatchlistItem{Type: models.ContentTypeShow}
	ctx := EvalContext{ContentType: models.ContentTypeShow, Genres: []string{"Anime", "Action"}}

	decision, err := engine.Decide(context.Background(), item, ctx)
	require.NoError(t, err)
	require.Equal(t, ActionRoute, decision.Action)
	require.NotNil(t, decision.Route)
	assert.Equal(t, 2, decision.Route.Primary.InstanceID)
	assert.Equal(t, "/anime", decision.Route.Primary.RootFolder)
	require.Len(t, decision.Route.Synced, 1)
	assert.Equal(t, 3, decision.Route.Synced[0].InstanceID)
	assert.Equal(t, "/anime-backup", decision.Route.Synced[0].RootFolder)
}

func TestEngineSelectsHighestOrderThenLowestID(t *testing.T) {
	reg := newGenreRegistry()
	c1, _ := json.Marshal(map[string]any{"operator": "contains", "value": "anime"})
	c2, _ := json.Marshal(map[string]any{"operator": "contains", "value": "anime"})
	rules := []models.RouterRule{
		{ID: 5, Type: "genre", Criteria: c1, TargetType: models.TargetSonarr, TargetInstanceID: 10, Order: 50, Enabled: true},
		{ID: 2, Type: "genre", Criteria: c2, TargetType: models.TargetSonarr, TargetInstanceID: 11, Order: 50, Enabled: true},
	}
	instances := map[int]*models.DownstreamInstance{
		10: {ID: 10, TargetType: models.TargetSonarr},
		11: {ID: 11, TargetType: models.TargetSonarr},
	}
	store := &fakeStore{rules: rules, instances: instances, defaults: map[models.TargetType]*models.DownstreamInstance{}}
	engine := NewEngine(reg, store)

	ctx := EvalContext{ContentType: models.ContentTypeShow, Genres: []string{"anime"}}
	decision, err := engine.Decide(context.Background(), &models.WatchlistItem{Type: models.ContentTypeShow}, ctx)
	require.NoError(t, err)
	require.NotNil(t, decision.Route)
	assert.Equal(t, 11, decision.Route.Primary.InstanceID, "tie on order must break to lowest rule id")
}

func TestEngineNoMatchFallsBackToDefaultInstance(t *testing.T) {
	reg := newGenreRegistry()
	store := &fakeStore{
		instances: map[int]*models.DownstreamInstance{1: {ID: 1, TargetType: models.TargetRadarr, Defaults: models.InstanceDefaults{RootFolder: "/movies"}}},
		defaults:  map[models.TargetType]*models.DownstreamInstance{models.TargetRadarr: {ID: 1, TargetType: models.TargetRadarr, Defaults: models.InstanceDefaults{RootFolder: "/movies"}}},
	}
	engine := NewEngine(reg, store)

	decision, err := engine.Decide(context.Background(), &models.WatchlistItem{Type: models.ContentTypeMovie}, EvalContext{ContentType: models.ContentTypeMovie})
	require.NoError(t, err)
	require.Equal(t, ActionRoute, decision.Action)
	assert.Nil(t, decision.MatchedRuleID)
	assert.Equal(t, "/movies", decision.Route.Primary.RootFolder)
}

func TestEngineNoMatchNoDefaultSkips(t *testing.T) {
	reg := newGenreRegistry()
	store := &fakeStore{defaults: map[models.TargetType]*models.DownstreamInstance{}}
	engine := NewEngine(reg, store)

	decision, err := engine.Decide(context.Background(), &models.WatchlistItem{Type: models.ContentTypeMovie}, EvalContext{ContentType: models.ContentTypeMovie})
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, decision.Action)
}

func TestEngineRuleMetadataTriggersApproval(t *testing.T) {
	reg := newGenreRegistry()
	criteria, _ := json.Marshal(map[string]any{"operator": "contains", "value": "anime"})
	meta, _ := json.Marshal(map[string]any{"require_approval": true, "approval_reason": "anime needs review"})
	rules := []models.RouterRule{
		{ID: 1, Type: "genre", Criteria: criteria, TargetType: models.TargetSonarr, TargetInstanceID: 1, Order: 80, Enabled: true, Metadata: meta},
	}
	instances := map[int]*models.DownstreamInstance{1: {ID: 1, TargetType: models.TargetSonarr}}
	store := &fakeStore{rules: rules, instances: instances, defaults: map[models.TargetType]*models.DownstreamInstance{}}
	engine := NewEngine(reg, store)

	ctx := EvalContext{ContentType: models.ContentTypeShow, Genres: []string{"anime"}}
	decision, err := engine.Decide(context.Background(), &models.WatchlistItem{Type: models.ContentTypeShow}, ctx)
	require.NoError(t, err)
	require.Equal(t, ActionRequireApproval, decision.Action)
	require.NotNil(t, decision.Approval)
	assert.Equal(t, models.TriggerRouterRule, decision.Approval.TriggeredBy)
	assert.Equal(t, "anime needs review", decision.Approval.Reason)
}

func TestEngineDisabledRuleNeverMatches(t *testing.T) {
	reg := newGenreRegistry()
	criteria, _ := json.Marshal(map[string]any{"operator": "contains", "value": "anime"})
	rules := []models.RouterRule{
		{ID: 1, Type: "genre", Criteria: criteria, TargetType: models.TargetSonarr, TargetInstanceID: 1, Order: 80, Enabled: false},
	}
	instances := map[int]*models.DownstreamInstance{1: {ID: 1, TargetType: models.TargetSonarr}}
	store := &fakeStore{rules: rules, instances: instances, defaults: map[models.TargetType]*models.DownstreamInstance{}}
	engine := NewEngine(reg, store)

	decision, err := engine.Decide(context.Background(), &models.WatchlistItem{Type: models.ContentTypeShow}, EvalContext{ContentType: models.ContentTypeShow, Genres: []string{"anime"}})
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, decision.Action)
}
