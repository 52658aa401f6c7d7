// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

// Year matches a content item's release year, supporting both the
// shared equality/set operators and range operators (gt/gte/lt/lte) for
// rules like "release after 2015".
type Year struct{}

func NewYear() *Year { return &Year{} }

func (Year) Name() string              { return "year" }
func (Year) Priority() int              { return 50 }
func (Year) SupportedFields() []string { return []string{"year"} }

func (Year) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "year"
}

func (Year) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx routing.EvalContext) bool {
	c, ok := decodeSimple(rule.Criteria)
	if !ok || ctx.Year == 0 {
		return false
	}
	op := normalizedOp(c.Operator)
	if matched, handled := evaluateNumericOp(op, ctx.Year, c.Value); handled {
		return matched
	}
	return routing.EvaluateOperator(op, float64(ctx.Year), c.Value)
}

func (Year) ResolveField(field string, _ *models.WatchlistItem, ctx routing.EvalContext) (any, bool) {
	if field != "year" || ctx.Year == 0 {
		return nil, false
	}
	return ctx.Year, true
}
