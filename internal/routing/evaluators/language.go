// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

// Language matches a content item's enriched original-language code.
type Language struct{}

func NewLanguage() *Language { return &Language{} }

func (Language) Name() string              { return "language" }
func (Language) Priority() int              { return 50 }
func (Language) SupportedFields() []string { return []string{"language"} }

func (Language) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "language"
}

func (Language) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx routing.EvalContext) bool {
	c, ok := decodeSimple(rule.Criteria)
	if !ok || ctx.Language == "" {
		return false
	}
	return routing.EvaluateOperator(normalizedOp(c.Operator), ctx.Language, c.Value)
}

func (Language) ResolveField(field string, _ *models.WatchlistItem, ctx routing.EvalContext) (any, bool) {
	if field != "language" || ctx.Language == "" {
		return nil, false
	}
	return ctx.Language, true
}
