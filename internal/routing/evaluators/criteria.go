// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package evaluators

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// simpleCriteria is the flat-rule shape shared by every evaluator in this
// package: a single operator applied to a single named value, matching
// the condition leaf shape one level up so flat rules and conditional
// leaves share evaluation semantics.
type simpleCriteria struct {
	Operator models.ConditionOperator `json:"operator"`
	Value    any                      `json:"value"`
}

// decodeSimple reads a flat rule's criteria into the shared shape,
// reporting ok=false for a missing/empty/malformed blob so callers can
// disqualify the rule without raising.
func decodeSimple(raw json.RawMessage) (simpleCriteria, bool) {
	var c simpleCriteria
	if len(raw) == 0 {
		return c, false
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, false
	}
	if c.Value == nil {
		return c, false
	}
	return c, true
}

func normalizedOp(op models.ConditionOperator) models.ConditionOperator {
	if op == "" {
		return models.OpEquals
	}
	return op
}

func intFromAny(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// evaluateNumericOp handles numeric-specific operators (gt/gte/lt/lte) in
// addition to the shared string/set operators, for fields like year and
// season-count where range rules are common. Unknown operators fall
// through to routing.EvaluateOperator's string/set handling.
func evaluateNumericOp(op models.ConditionOperator, actual int, value any) (bool, bool) {
	want, ok := intFromAny(value)
	if !ok {
		switch op {
		case "gt", "gte", "lt", "lte":
			return false, true
		}
		return false, false
	}
	switch op {
	case "gt":
		return actual > want, true
	case "gte":
		return actual >= want, true
	case "lt":
		return actual < want, true
	case "lte":
		return actual <= want, true
	default:
		return false, false
	}
}
