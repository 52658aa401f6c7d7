// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "encoding/json"

// TargetType is which downstream manager family a rule or instance
// belongs to.
type TargetType string

const (
	TargetSonarr TargetType = "sonarr"
	TargetRadarr TargetType = "radarr"
)

// ConditionOperator is a leaf condition's comparison operator. Unsafe or
// unknown operators never raise during evaluation; they evaluate false.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "notEquals"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "notContains"
	OpIn          ConditionOperator = "in"
	OpNotIn       ConditionOperator = "notIn"
	OpRegex       ConditionOperator = "regex"
)

// ConditionLogic joins a group node's children.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "and"
	LogicOr  ConditionLogic = "or"
)

// Condition is the sum-typed node of a rule's condition tree: either a
// leaf (Field/Operator/Value set) or a group (Logic/Children set), never
// both. Negate applies exactly once at this node and must never be
// re-applied by a caller walking the tree.
type Condition struct {
	// Leaf fields.
	Field    string            `json:"field,omitempty"`
	Operator ConditionOperator `json:"operator,omitempty"`
	Value    any               `json:"value,omitempty"`

	// Group fields.
	Logic    ConditionLogic `json:"logic,omitempty"`
	Children []Condition    `json:"children,omitempty"`

	Negate bool `json:"negate,omitempty"`
}

// IsGroup reports whether c is a group node rather than a leaf.
func (c *Condition) IsGroup() bool {
	return c.Logic != "" || len(c.Children) > 0
}

// RouterRule is a named routing decision: either a plain evaluator rule
// (Type = an evaluator name, Criteria holds its parameters) or a
// conditional rule (Type = "conditional", Condition holds the tree).
type RouterRule struct {
	ID                  int             `json:"id" db:"id"`
	Name                string          `json:"name" db:"name" validate:"required"`
	Type                string          `json:"type" db:"type" validate:"required"`
	Criteria            json.RawMessage `json:"criteria,omitempty" db:"criteria"`
	Condition           *Condition      `json:"condition,omitempty" db:"-"`
	TargetType          TargetType      `json:"target_type" db:"target_type" validate:"required,oneof=sonarr radarr"`
	TargetInstanceID    int             `json:"target_instance_id" db:"target_instance_id"`
	RootFolder          *string         `json:"root_folder,omitempty" db:"root_folder"`
	QualityProfile      *string         `json:"quality_profile,omitempty" db:"quality_profile"`
	Tags                []string        `json:"tags,omitempty" db:"-"`
	Order               int             `json:"order" db:"order"`
	Enabled             bool            `json:"enabled" db:"enabled"`
	SearchOnAdd         *bool           `json:"search_on_add,omitempty" db:"search_on_add"`
	SeasonMonitoring    *string         `json:"season_monitoring,omitempty" db:"season_monitoring"`
	SeriesType          *string         `json:"series_type,omitempty" db:"series_type"`
	MinimumAvailability *string         `json:"minimum_availability,omitempty" db:"minimum_availability"`
	Monitor             *string         `json:"monitor,omitempty" db:"monitor"`
	Metadata            json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// IsConditional reports whether r carries a condition tree rather than a
// flat evaluator criteria blob.
func (r *RouterRule) IsConditional() bool {
	return r.Type == "conditional"
}

// InstanceDefaults are the submission parameters an instance applies when
// no rule overrides them. Synced instances always use their own defaults
// rather than the primary rule's overrides.
type InstanceDefaults struct {
	RootFolder          string   `json:"root_folder"`
	QualityProfile      string   `json:"quality_profile"`
	Tags                []string `json:"tags,omitempty"`
	SearchOnAdd         bool     `json:"search_on_add"`
	SeasonMonitoring    string   `json:"season_monitoring,omitempty"`
	Monitor             string   `json:"monitor,omitempty"`
	SeriesType          string   `json:"series_type,omitempty"`
	MinimumAvailability string   `json:"minimum_availability,omitempty"`
}

// DownstreamInstance is a configured Sonarr-like or Radarr-like manager.
// Invariant: at most one default per TargetType; a non-default instance
// may not carry SyncedInstances.
type DownstreamInstance struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name" validate:"required"`
	TargetType      TargetType       `json:"target_type" db:"target_type" validate:"required,oneof=sonarr radarr"`
	BaseURL         string           `json:"base_url" db:"base_url" validate:"required,url"`
	APIKey          string           `json:"-" db:"api_key" validate:"required"`
	IsDefault       bool             `json:"is_default" db:"is_default"`
	SyncedInstances []int            `json:"synced_instances,omitempty" db:"-"`
	Defaults        InstanceDefaults `json:"defaults" db:"-"`
}
