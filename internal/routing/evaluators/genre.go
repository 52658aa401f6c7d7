// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

// Genre matches a watchlist item's enriched genre list against a rule's
// criteria value.
type Genre struct{}

func NewGenre() *Genre { return &Genre{} }

func (Genre) Name() string              { return "genre" }
func (Genre) Priority() int              { return 50 }
func (Genre) SupportedFields() []string { return []string{"genre"} }

func (Genre) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "genre"
}

func (Genre) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx routing.EvalContext) bool {
	c, ok := decodeSimple(rule.Criteria)
	if !ok {
		return false
	}
	return routing.EvaluateOperator(normalizedOp(c.Operator), any(ctx.Genres), c.Value)
}

func (Genre) ResolveField(field string, _ *models.WatchlistItem, ctx routing.EvalContext) (any, bool) {
	if field != "genre" {
		return nil, false
	}
	if len(ctx.Genres) == 0 {
		return nil, false
	}
	return any(ctx.Genres), true
}
