// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

// SeasonCount matches a show's enriched season count. Only applies to
// shows; movies never carry a meaningful season count and the evaluator
// reports no match for them.
type SeasonCount struct{}

func NewSeasonCount() *SeasonCount { return &SeasonCount{} }

func (SeasonCount) Name() string              { return "season_count" }
func (SeasonCount) Priority() int              { return 50 }
func (SeasonCount) SupportedFields() []string { return []string{"season_count"} }

func (SeasonCount) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "season_count" && rule.TargetType == models.TargetSonarr
}

func (SeasonCount) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx routing.EvalContext) bool {
	if ctx.ContentType != models.ContentTypeShow || ctx.SeasonCount <= 0 {
		return false
	}
	c, ok := decodeSimple(rule.Criteria)
	if !ok {
		return false
	}
	op := normalizedOp(c.Operator)
	if matched, handled := evaluateNumericOp(op, ctx.SeasonCount, c.Value); handled {
		return matched
	}
	return routing.EvaluateOperator(op, float64(ctx.SeasonCount), c.Value)
}

func (SeasonCount) ResolveField(field string, _ *models.WatchlistItem, ctx routing.EvalContext) (any, bool) {
	if field != "season_count" || ctx.ContentType != models.ContentTypeShow || ctx.SeasonCount <= 0 {
		return nil, false
	}
	return ctx.SeasonCount, true
}
