// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"encoding/json"
	"strings"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

// ratingCriteria names which rating source a rule targets (e.g. "imdb",
// "tmdb", "rottentomatoes") in addition to the shared operator/value.
type ratingCriteria struct {
	Source   string                   `json:"source"`
	Operator models.ConditionOperator `json:"operator"`
	Value    any                      `json:"value"`
}

// Rating matches against an enriched rating from one of several
// ancillary sources, supporting both equality/set operators and
// numeric range operators for threshold rules ("imdb rating >= 7").
type Rating struct{}

func NewRating() *Rating { return &Rating{} }

func (Rating) Name() string              { return "rating" }
func (Rating) Priority() int              { return 50 }
func (Rating) SupportedFields() []string { return []string{"rating"} }

func (Rating) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "rating"
}

func decodeRating(raw json.RawMessage) (ratingCriteria, bool) {
	var c ratingCriteria
	if len(raw) == 0 {
		return c, false
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, false
	}
	if c.Source == "" || c.Value == nil {
		return c, false
	}
	return c, true
}

func (Rating) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx routing.EvalContext) bool {
	c, ok := decodeRating(rule.Criteria)
	if !ok {
		return false
	}
	score, ok := lookupRating(ctx, c.Source)
	if !ok {
		return false
	}
	op := normalizedOp(c.Operator)
	want, numOK := ratingValueAsFloat(c.Value)
	switch op {
	case "gt":
		return numOK && score > want
	case "gte":
		return numOK && score >= want
	case "lt":
		return numOK && score < want
	case "lte":
		return numOK && score <= want
	default:
		return routing.EvaluateOperator(op, score, c.Value)
	}
}

// ResolveField returns the rating source chosen by field, formatted
// "rating:<source>" for conditional-tree lookups; plain "rating" with no
// source suffix is unsupported since a condition leaf has no separate
// Source parameter, so conditional rules must use field "rating:<source>".
func (Rating) ResolveField(field string, _ *models.WatchlistItem, ctx routing.EvalContext) (any, bool) {
	const prefix = "rating:"
	if !strings.HasPrefix(field, prefix) {
		return nil, false
	}
	source := strings.TrimPrefix(field, prefix)
	score, ok := lookupRating(ctx, source)
	if !ok {
		return nil, false
	}
	return score, true
}

func lookupRating(ctx routing.EvalContext, source string) (float64, bool) {
	if ctx.Ratings == nil {
		return 0, false
	}
	score, ok := ctx.Ratings[strings.ToLower(source)]
	return score, ok
}

func ratingValueAsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}
