// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

type stubEvaluator struct {
	name     string
	priority int
	fields   []string
}

func (s stubEvaluator) Name() string              { return s.name }
func (s stubEvaluator) Priority() int              { return s.priority }
func (s stubEvaluator) SupportedFields() []string { return s.fields }
func (s stubEvaluator) CanEvaluate(*models.RouterRule) bool { return true }
func (s stubEvaluator) Evaluate(*models.RouterRule, *models.WatchlistItem, EvalContext) bool {
	return true
}
func (s stubEvaluator) ResolveField(field string, _ *models.WatchlistItem, _ EvalContext) (any, bool) {
	return field, true
}

func TestRegistryAllSortedByPriorityThenName(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubEvaluator{name: "b", priority: 10})
	reg.Register(stubEvaluator{name: "a", priority: 10})
	reg.Register(stubEvaluator{name: "z", priority: 99})

	all := reg.All()
	assert.Equal(t, []string{"z", "a", "b"}, []string{all[0].Name(), all[1].Name(), all[2].Name()})
}

func TestRegistryGetMissing(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Get("nope")
	assert.False(t, ok)
}

func TestRegistryResolveExactAndNamespacedField(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubEvaluator{name: "rating", fields: []string{"rating"}})

	v, ok := reg.Resolve("rating:imdb", nil, EvalContext{})
	assert.True(t, ok)
	assert.Equal(t, "rating:imdb", v)

	_, ok = reg.Resolve("unknown_field", nil, EvalContext{})
	assert.False(t, ok)
}

func TestRegistryEvaluateFlatRuleUnknownTypeNeverMatches(t *testing.T) {
	reg := NewRegistry()
	rule := &models.RouterRule{Type: "does-not-exist"}
	assert.False(t, reg.EvaluateFlatRule(rule, nil, EvalContext{}))
}
