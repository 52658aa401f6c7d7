// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"encoding/json"
	"time"
)

// ApprovalStatus is a point on the approval request lifecycle. Terminal
// statuses (Approved, Rejected, Expired) are immutable once reached.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// IsTerminal reports whether s can no longer transition.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalExpired
}

// ApprovalTrigger is why an approval request was created.
type ApprovalTrigger string

const (
	TriggerQuotaExceeded     ApprovalTrigger = "quota_exceeded"
	TriggerRouterRule        ApprovalTrigger = "router_rule"
	TriggerUserRequiresApproval ApprovalTrigger = "user_requires_approval"
	TriggerManual            ApprovalTrigger = "manual"
)

// RouterDecision is the full routing snapshot captured at the moment an
// approval request was created, so approving it later replays exactly
// what would have been submitted without re-evaluating rules. The
// override fields apply to the primary instance only; synced instances
// always submit with their own defaults.
type RouterDecision struct {
	TargetType          TargetType `json:"target_type"`
	PrimaryInstanceID   int        `json:"primary_instance_id"`
	SyncedInstanceIDs   []int      `json:"synced_instance_ids,omitempty"`
	RootFolder          string     `json:"root_folder,omitempty"`
	QualityProfile      string     `json:"quality_profile,omitempty"`
	Tags                []string   `json:"tags,omitempty"`
	SearchOnAdd         bool       `json:"search_on_add,omitempty"`
	SeasonMonitoring    string     `json:"season_monitoring,omitempty"`
	Monitor             string     `json:"monitor,omitempty"`
	SeriesType          string     `json:"series_type,omitempty"`
	MinimumAvailability string     `json:"minimum_availability,omitempty"`
	Priority            int        `json:"priority,omitempty"`
	MatchedRuleID       *int       `json:"matched_rule_id,omitempty"`
}

// ApprovalRequest gates acquisition on a person's decision. Invariant: at
// most one pending request per (UserID, ContentKey) at any instant.
type ApprovalRequest struct {
	ID               int             `json:"id" db:"id"`
	UserID           int             `json:"user_id" db:"user_id"`
	ContentType      ContentType     `json:"content_type" db:"content_type"`
	ContentTitle     string          `json:"content_title" db:"content_title"`
	ContentKey       string          `json:"content_key" db:"content_key"`
	ContentGUIDs     []string        `json:"content_guids,omitempty" db:"-"`
	ProposedDecision RouterDecision  `json:"proposed_router_decision" db:"-"`
	TriggeredBy      ApprovalTrigger `json:"triggered_by" db:"triggered_by"`
	ApprovalReason   *string         `json:"approval_reason,omitempty" db:"approval_reason"`
	Status           ApprovalStatus  `json:"status" db:"status"`
	ApprovedBy       *int            `json:"approved_by,omitempty" db:"approved_by"`
	ApprovalNotes    *string         `json:"approval_notes,omitempty" db:"approval_notes"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// MarshalDecision serializes ProposedDecision for storage in the
// proposed_router_decision JSON column.
func (a *ApprovalRequest) MarshalDecision() (json.RawMessage, error) {
	return json.Marshal(a.ProposedDecision)
}
