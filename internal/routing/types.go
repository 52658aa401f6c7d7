// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package routing implements the routing engine: a registry of pluggable
// evaluators, condition-tree evaluation, priority-based rule selection,
// and primary+synced fan-out.
package routing

import (
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// EvalContext carries the enriched, read-only facts about one content item
// that evaluators and condition leaves match against. It is assembled by
// the metadata enricher before the engine runs.
type EvalContext struct {
	ContentType        models.ContentType
	Genres             []string
	Language           string
	Certification      string
	Year               int
	UserID             int
	SeasonCount        int
	Ratings            map[string]float64 // source name (e.g. "imdb", "tmdb") -> rating
	StreamingProviders []string
	Region             string
}

// RoutingSpec is the fully-resolved submission parameters for one
// downstream instance, with all rule/defaults fallbacks already applied.
type RoutingSpec struct {
	InstanceType        models.TargetType
	InstanceID          int
	RootFolder          string
	QualityProfile      string
	Tags                []string
	SearchOnAdd         bool
	SeasonMonitoring    string
	Monitor             string
	SeriesType          string
	MinimumAvailability string
	Priority            int
}

// RouteOutcome bundles the primary submission target and every synced
// fan-out target. Synced entries always use their own instance defaults
// rather than the primary rule's overrides.
type RouteOutcome struct {
	Primary RoutingSpec
	Synced  []RoutingSpec
}

// Action is the sum-type tag on a RoutingDecision.
type Action string

const (
	ActionSkip            Action = "skip"
	ActionRoute           Action = "route"
	ActionRequireApproval Action = "require_approval"
)

// ApprovalProposal is the payload of a require_approval decision: the
// reason, the trigger, and the routing that would be submitted once
// approved.
type ApprovalProposal struct {
	Reason      string
	TriggeredBy models.ApprovalTrigger
	Proposed    RouteOutcome
}

// RoutingDecision is the engine's verdict for one item:
// {skip} | {route, RouteOutcome} | {require_approval, ApprovalProposal}.
type RoutingDecision struct {
	Action   Action
	Route    *RouteOutcome
	Approval *ApprovalProposal

	// MatchedRuleID is the winning rule's id, nil on a default-instance
	// fallback (no rule matched).
	MatchedRuleID *int
}

// targetTypeFor maps a watchlist item's content type to the router's
// target type vocabulary.
func targetTypeFor(ct models.ContentType) models.TargetType {
	if ct == models.ContentTypeShow {
		return models.TargetSonarr
	}
	return models.TargetRadarr
}

// ruleMetadata is the optional JSON shape of RouterRule.Metadata this
// engine understands: whether a match on this rule requires approval
// rather than immediate routing, and why.
type ruleMetadata struct {
	RequireApproval bool   `json:"require_approval,omitempty"`
	ApprovalReason  string `json:"approval_reason,omitempty"`
}
