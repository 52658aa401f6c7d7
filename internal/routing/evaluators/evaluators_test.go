// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

func criteriaJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestGenreEvaluatorContains(t *testing.T) {
	g := NewGenre()
	rule := &models.RouterRule{Type: "genre", Criteria: criteriaJSON(t, map[string]any{"operator": "contains", "value": "anime"})}
	ctx := routing.EvalContext{Genres: []string{"Anime", "Action"}}
	assert.True(t, g.Evaluate(rule, nil, ctx))

	ctx2 := routing.EvalContext{Genres: []string{"Drama"}}
	assert.False(t, g.Evaluate(rule, nil, ctx2))
}

func TestGenreEvaluatorMissingGenresDisqualifies(t *testing.T) {
	g := NewGenre()
	rule := &models.RouterRule{Type: "genre", Criteria: criteriaJSON(t, map[string]any{"operator": "contains", "value": "anime"})}
	assert.False(t, g.Evaluate(rule, nil, routing.EvalContext{}))
}

func TestYearEvaluatorRangeOperators(t *testing.T) {
	y := NewYear()
	rule := &models.RouterRule{Type: "year", Criteria: criteriaJSON(t, map[string]any{"operator": "gte", "value": 2015})}
	assert.True(t, y.Evaluate(rule, nil, routing.EvalContext{Year: 2020}))
	assert.False(t, y.Evaluate(rule, nil, routing.EvalContext{Year: 2000}))
}

func TestYearEvaluatorEqualsOperator(t *testing.T) {
	y := NewYear()
	rule := &models.RouterRule{Type: "year", Criteria: criteriaJSON(t, map[string]any{"operator": "equals", "value": 1999})}
	assert.True(t, y.Evaluate(rule, nil, routing.EvalContext{Year: 1999}))
}

func TestSeasonCountEvaluatorOnlyAppliesToShows(t *testing.T) {
	sc := NewSeasonCount()
	rule := &models.RouterRule{Type: "season_count", TargetType: models.TargetSonarr, Criteria: criteriaJSON(t, map[string]any{"operator": "gte", "value": 3})}
	assert.True(t, sc.Evaluate(rule, nil, routing.EvalContext{ContentType: models.ContentTypeShow, SeasonCount: 5}))
	assert.False(t, sc.Evaluate(rule, nil, routing.EvalContext{ContentType: models.ContentTypeMovie, SeasonCount: 5}))
}

func TestRatingEvaluatorMultiSource(t *testing.T) {
	r := NewRating()
	rule := &models.RouterRule{Type: "rating", Criteria: criteriaJSON(t, map[string]any{"source": "imdb", "operator": "gte", "value": 7.5})}
	ctx := routing.EvalContext{Ratings: map[string]float64{"imdb": 8.0, "tmdb": 6.0}}
	assert.True(t, r.Evaluate(rule, nil, ctx))

	ctx2 := routing.EvalContext{Ratings: map[string]float64{"imdb": 5.0}}
	assert.False(t, r.Evaluate(rule, nil, ctx2))
}

func TestRatingEvaluatorUnknownSourceDisqualifies(t *testing.T) {
	r := NewRating()
	rule := &models.RouterRule{Type: "rating", Criteria: criteriaJSON(t, map[string]any{"source": "rottentomatoes", "operator": "gte", "value": 7.0})}
	ctx := routing.EvalContext{Ratings: map[string]float64{"imdb": 9.0}}
	assert.False(t, r.Evaluate(rule, nil, ctx))
}

func TestRatingResolveFieldNamespaced(t *testing.T) {
	r := NewRating()
	ctx := routing.EvalContext{Ratings: map[string]float64{"imdb": 8.2}}
	v, ok := r.ResolveField("rating:imdb", nil, ctx)
	assert.True(t, ok)
	assert.Equal(t, 8.2, v)
}

func TestLanguageEvaluatorCaseInsensitive(t *testing.T) {
	l := NewLanguage()
	rule := &models.RouterRule{Type: "language", Criteria: criteriaJSON(t, map[string]any{"operator": "equals", "value": "EN"})}
	assert.True(t, l.Evaluate(rule, nil, routing.EvalContext{Language: "en"}))
}

func TestUserEvaluatorIn(t *testing.T) {
	u := NewUser()
	rule := &models.RouterRule{Type: "user", Criteria: criteriaJSON(t, map[string]any{"operator": "in", "value": []string{"7", "12"}})}
	assert.True(t, u.Evaluate(rule, nil, routing.EvalContext{UserID: 12}))
	assert.False(t, u.Evaluate(rule, nil, routing.EvalContext{UserID: 3}))
}

func TestStreamingProviderEvaluatorContains(t *testing.T) {
	sp := NewStreamingProvider()
	rule := &models.RouterRule{Type: "streaming_provider", Criteria: criteriaJSON(t, map[string]any{"operator": "contains", "value": "netflix"})}
	assert.True(t, sp.Evaluate(rule, nil, routing.EvalContext{StreamingProviders: []string{"Netflix", "Hulu"}}))
	assert.False(t, sp.Evaluate(rule, nil, routing.EvalContext{StreamingProviders: []string{"Hulu"}}))
}

func TestCertificationEvaluatorEquals(t *testing.T) {
	c := NewCertification()
	rule := &models.RouterRule{Type: "certification", Criteria: criteriaJSON(t, map[string]any{"operator": "equals", "value": "pg-13"})}
	assert.True(t, c.Evaluate(rule, nil, routing.EvalContext{Certification: "PG-13"}))
}
