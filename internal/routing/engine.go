// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// RuleStore is the persistence-facing dependency the engine needs:
// enabled rules for a target type, and the configured instances
// (default + synced topology) for that type.
type RuleStore interface {
	RulesForTargetType(ctx context.Context, targetType models.TargetType) ([]models.RouterRule, error)
	DefaultInstance(ctx context.Context, targetType models.TargetType) (*models.DownstreamInstance, error)
	Instance(ctx context.Context, id int) (*models.DownstreamInstance, error)
}

// Engine is the routing decision-maker: it holds a Registry of
// evaluators and decides, per item, whether to skip, route, or require
// approval, and to which instances. One synchronous decision per call.
type Engine struct {
	registry *Registry
	store    RuleStore
}

// NewEngine builds an Engine over registry and store.
func NewEngine(registry *Registry, store RuleStore) *Engine {
	return &Engine{registry: registry, store: store}
}

// Decide runs the full selection & fan-out algorithm for one item and
// returns the routing decision. It never returns an error for rule
// evaluation failures -- a malformed rule is simply skipped -- but does
// propagate persistence errors from RuleStore.
func (e *Engine) Decide(ctx context.Context, item *models.WatchlistItem, ectx EvalContext) (RoutingDecision, error) {
	targetType := targetTypeFor(ectx.ContentType)

	rules, err := e.store.RulesForTargetType(ctx, targetType)
	if err != nil {
		return RoutingDecision{}, err
	}

	winner := e.selectWinningRule(rules, item, ectx)
	if winner == nil {
		return e.fallbackToDefault(ctx, targetType)
	}

	primaryInstance, err := e.store.Instance(ctx, winner.TargetInstanceID)
	if err != nil {
		return RoutingDecision{}, err
	}
	if primaryInstance == nil {
		return e.fallbackToDefault(ctx, targetType)
	}

	outcome, err := e.buildOutcome(ctx, winner, primaryInstance)
	if err != nil {
		return RoutingDecision{}, err
	}

	ruleID := winner.ID
	if meta, ok := parseRuleMetadata(winner.Metadata); ok && meta.RequireApproval {
		return RoutingDecision{
			Action:        ActionRequireApproval,
			MatchedRuleID: &ruleID,
			Approval: &ApprovalProposal{
				Reason:      meta.ApprovalReason,
				TriggeredBy: models.TriggerRouterRule,
				Proposed:    outcome,
			},
		}, nil
	}

	return RoutingDecision{Action: ActionRoute, Route: &outcome, MatchedRuleID: &ruleID}, nil
}

// selectWinningRule filters enabled rules matching item/ectx and returns
// the one with the greatest order, breaking ties by lowest id. Returns
// nil if no rule matches.
func (e *Engine) selectWinningRule(rules []models.RouterRule, item *models.WatchlistItem, ectx EvalContext) *models.RouterRule {
	candidates := make([]models.RouterRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if e.ruleMatches(&rule, item, ectx) {
			candidates = append(candidates, rule)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Order != candidates[j].Order {
			return candidates[i].Order > candidates[j].Order
		}
		return candidates[i].ID < candidates[j].ID
	})
	winner := candidates[0]
	return &winner
}

func (e *Engine) ruleMatches(rule *models.RouterRule, item *models.WatchlistItem, ectx EvalContext) bool {
	if rule.IsConditional() {
		if rule.Condition == nil {
			return false
		}
		return EvaluateConditionTree(rule.Condition, item, ectx, e.registry.Resolve)
	}
	return e.registry.EvaluateFlatRule(rule, item, ectx)
}

// fallbackToDefault builds a route decision from the configured default
// instance for targetType, with no rule overrides. Returns a skip
// decision if no default instance is configured.
func (e *Engine) fallbackToDefault(ctx context.Context, targetType models.TargetType) (RoutingDecision, error) {
	inst, err := e.store.DefaultInstance(ctx, targetType)
	if err != nil {
		return RoutingDecision{}, err
	}
	if inst == nil {
		logging.Warn().Str("target_type", string(targetType)).Msg("routing: no rule matched and no default instance configured, skipping")
		return RoutingDecision{Action: ActionSkip}, nil
	}

	outcome, err := e.buildOutcome(ctx, nil, inst)
	if err != nil {
		return RoutingDecision{}, err
	}
	return RoutingDecision{Action: ActionRoute, Route: &outcome}, nil
}

// buildOutcome constructs the primary RoutingSpec (rule overrides falling
// back to the primary instance's own defaults) plus one RoutingSpec per
// synced instance, built purely from each synced instance's own defaults
// (no inheritance of the primary rule's overrides).
func (e *Engine) buildOutcome(ctx context.Context, rule *models.RouterRule, primary *models.DownstreamInstance) (RouteOutcome, error) {
	primarySpec := specFromDefaults(primary, primary.Defaults)
	if rule != nil {
		applyRuleOverrides(&primarySpec, rule)
	}

	synced := make([]RoutingSpec, 0, len(primary.SyncedInstances))
	for _, syncedID := range primary.SyncedInstances {
		inst, err := e.store.Instance(ctx, syncedID)
		if err != nil {
			return RouteOutcome{}, err
		}
		if inst == nil {
			continue
		}
		synced = append(synced, specFromDefaults(inst, inst.Defaults))
	}

	return RouteOutcome{Primary: primarySpec, Synced: synced}, nil
}

func specFromDefaults(inst *models.DownstreamInstance, d models.InstanceDefaults) RoutingSpec {
	return RoutingSpec{
		InstanceType:        inst.TargetType,
		InstanceID:          inst.ID,
		RootFolder:          d.RootFolder,
		QualityProfile:      d.QualityProfile,
		Tags:                d.Tags,
		SearchOnAdd:         d.SearchOnAdd,
		SeasonMonitoring:    d.SeasonMonitoring,
		Monitor:             d.Monitor,
		SeriesType:          d.SeriesType,
		MinimumAvailability: d.MinimumAvailability,
		Priority:            50,
	}
}

// applyRuleOverrides layers a winning rule's per-field overrides onto
// spec, which already carries the primary instance's defaults. Priority
// becomes rule.Order, or 50 if unset (order is an int so the zero value
// is indistinguishable from an explicit 0; a freshly created rule is the
// common case, so zero maps to the default).
func applyRuleOverrides(spec *RoutingSpec, rule *models.RouterRule) {
	if rule.RootFolder != nil {
		spec.RootFolder = *rule.RootFolder
	}
	if rule.QualityProfile != nil {
		spec.QualityProfile = *rule.QualityProfile
	}
	if len(rule.Tags) > 0 {
		spec.Tags = rule.Tags
	}
	if rule.SearchOnAdd != nil {
		spec.SearchOnAdd = *rule.SearchOnAdd
	}
	if rule.SeasonMonitoring != nil {
		spec.SeasonMonitoring = *rule.SeasonMonitoring
	}
	if rule.Monitor != nil {
		spec.Monitor = *rule.Monitor
	}
	if rule.SeriesType != nil {
		spec.SeriesType = *rule.SeriesType
	}
	if rule.MinimumAvailability != nil {
		spec.MinimumAvailability = *rule.MinimumAvailability
	}
	spec.Priority = 50
	if rule.Order != 0 {
		spec.Priority = rule.Order
	}
}

func parseRuleMetadata(raw json.RawMessage) (ruleMetadata, bool) {
	if len(raw) == 0 {
		return ruleMetadata{}, false
	}
	var meta ruleMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ruleMetadata{}, false
	}
	return meta, true
}
