// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

// Certification matches a content item's content rating (e.g. "PG-13",
// "TV-MA").
type Certification struct{}

func NewCertification() *Certification { return &Certification{} }

func (Certification) Name() string              { return "certification" }
func (Certification) Priority() int              { return 50 }
func (Certification) SupportedFields() []string { return []string{"certification"} }

func (Certification) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "certification"
}

func (Certification) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx routing.EvalContext) bool {
	c, ok := decodeSimple(rule.Criteria)
	if !ok || ctx.Certification == "" {
		return false
	}
	return routing.EvaluateOperator(normalizedOp(c.Operator), ctx.Certification, c.Value)
}

func (Certification) ResolveField(field string, _ *models.WatchlistItem, ctx routing.EvalContext) (any, bool) {
	if field != "certification" || ctx.Certification == "" {
		return nil, false
	}
	return ctx.Certification, true
}
