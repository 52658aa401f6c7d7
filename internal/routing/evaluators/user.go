// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"strconv"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
)

// User matches the requesting user's id, letting rules target or
// exempt specific accounts (e.g. "kids' profile always requires
// approval", routed via a separate approval trigger).
type User struct{}

func NewUser() *User { return &User{} }

func (User) Name() string              { return "user" }
func (User) Priority() int              { return 50 }
func (User) SupportedFields() []string { return []string{"user"} }

func (User) CanEvaluate(rule *models.RouterRule) bool {
	return rule.Type == "user"
}

func (User) Evaluate(rule *models.RouterRule, _ *models.WatchlistItem, ctx routing.EvalContext) bool {
	if ctx.UserID == 0 {
		return false
	}
	c, ok := decodeSimple(rule.Criteria)
	if !ok {
		return false
	}
	return routing.EvaluateOperator(normalizedOp(c.Operator), strconv.Itoa(ctx.UserID), c.Value)
}

func (User) ResolveField(field string, _ *models.WatchlistItem, ctx routing.EvalContext) (any, bool) {
	if field != "user" || ctx.UserID == 0 {
		return nil, false
	}
	return strconv.Itoa(ctx.UserID), true
}
