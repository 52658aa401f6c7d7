// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

// StreamingProvider matches against the enriched list of services a
// title is already available on (for a configured region), enabling
// rules like "skip acquisition if already streaming on a subscribed
// service".
type StreamingProvider struct{}

func NewStreamingProvider() *StreamingProvider { return &StreamingProvider{} }

func (StreamingProvider) Name() string              { return "streaming_provider" }
func (StreamingProvider) Priority() int              { return 50 }
func (StreamingProvider) SupportedFields() []string { return []string{"streaming_provider"} }

func (StreamingProvider) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "streaming_provider"
}

func (StreamingProvider) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx routing.EvalContext) bool {
	c, ok := decodeSimple(rule.Criteria)
	if !ok || len(ctx.StreamingProviders) == 0 {
		return false
	}
	return routing.EvaluateOperator(normalizedOp(c.Operator), any(ctx.StreamingProviders), c.Value)
}

func (StreamingProvider) ResolveField(field string, _ *models.WatchlistItem, ctx routing.EvalContext) (any, bool) {
	if field != "streaming_provider" || len(ctx.StreamingProviders) == 0 {
		return nil, false
	}
	return any(ctx.StreamingProviders), true
}
