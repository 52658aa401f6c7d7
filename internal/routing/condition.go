// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// FieldResolver looks up a named field's value on (item, ctx) for leaf
// condition evaluation, e.g. "genre" -> ctx.Genres, "year" -> ctx.Year.
// The registry composes one resolver covering every evaluator's
// SupportedFields so the condition tree can evaluate leaves without
// knowing which evaluator owns a field.
type FieldResolver func(field string, item *models.WatchlistItem, ctx EvalContext) (any, bool)

// EvaluateConditionTree walks a sum-typed Condition tree (leaf or group),
// short-circuiting group evaluation and applying Negate exactly once at
// the node where it appears. A nil condition matches (vacuously true) so
// callers can treat "no condition" as "always applies".
func EvaluateConditionTree(cond *models.Condition, item *models.WatchlistItem, ctx EvalContext, resolve FieldResolver) bool {
	if cond == nil {
		return true
	}

	var result bool
	if cond.IsGroup() {
		result = evaluateGroup(cond, item, ctx, resolve)
	} else {
		result = evaluateLeaf(cond, item, ctx, resolve)
	}

	if cond.Negate {
		return !result
	}
	return result
}

func evaluateGroup(cond *models.Condition, item *models.WatchlistItem, ctx EvalContext, resolve FieldResolver) bool {
	switch cond.Logic {
	case models.LogicOr:
		for i := range cond.Children {
			if EvaluateConditionTree(&cond.Children[i], item, ctx, resolve) {
				return true
			}
		}
		return false
	default: // AND is the default logic for a group with an unset/invalid Logic
		for i := range cond.Children {
			if !EvaluateConditionTree(&cond.Children[i], item, ctx, resolve) {
				return false
			}
		}
		return true
	}
}

func evaluateLeaf(cond *models.Condition, item *models.WatchlistItem, ctx EvalContext, resolve FieldResolver) bool {
	actual, ok := resolve(cond.Field, item, ctx)
	if !ok {
		// A missing criterion value disqualifies the rule.
		return false
	}
	op := cond.Operator
	if op == "" {
		op = models.OpEquals
	}
	return EvaluateOperator(op, actual, cond.Value)
}

// EvaluateOperator applies one of the supported operators
// (equals, notEquals, contains, notContains, in, notIn, regex) to actual
// vs. the rule-supplied value. String comparisons are case-insensitive;
// array values use unordered set semantics. An invalid or unsafe regex,
// or an unrecognized operator, evaluates to false rather than raising.
func EvaluateOperator(op models.ConditionOperator, actual, value any) bool {
	switch op {
	case models.OpEquals:
		return equalsAny(actual, value)
	case models.OpNotEquals:
		return !equalsAny(actual, value)
	case models.OpContains:
		return containsAny(actual, value)
	case models.OpNotContains:
		return !containsAny(actual, value)
	case models.OpIn:
		return inAny(actual, value)
	case models.OpNotIn:
		return !inAny(actual, value)
	case models.OpRegex:
		return regexMatch(actual, value)
	default:
		logging.Warn().Str("operator", string(op)).Msg("routing: unknown condition operator, evaluating false")
		return false
	}
}

func asStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case string:
		return []string{t}, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func normSet(v any) (map[string]struct{}, bool) {
	strs, ok := asStringSlice(v)
	if !ok {
		return nil, false
	}
	set := make(map[string]struct{}, len(strs))
	for _, s := range strs {
		set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return set, true
}

// equalsAny compares actual to value, case-insensitively for strings and
// with set-equality for arrays: rule arrays are unordered, so matching
// uses set semantics.
func equalsAny(actual, value any) bool {
	if value == nil || actual == nil {
		return false
	}
	actualSlice, actualIsSlice := asStringSlice(actual)
	valueSlice, valueIsSlice := asStringSlice(value)
	if actualIsSlice && valueIsSlice && (len(actualSlice) > 1 || len(valueSlice) > 1) {
		aSet, _ := normSet(actual)
		bSet, _ := normSet(value)
		if len(aSet) != len(bSet) {
			return false
		}
		for k := range aSet {
			if _, ok := bSet[k]; !ok {
				return false
			}
		}
		return true
	}

	as, aok := singleString(actual)
	bs, bok := singleString(value)
	if aok && bok {
		return strings.EqualFold(as, bs)
	}
	return actual == value
}

func singleString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []string:
		if len(t) == 1 {
			return t[0], true
		}
	case []any:
		if len(t) == 1 {
			if s, ok := t[0].(string); ok {
				return s, true
			}
		}
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	}
	return "", false
}

// containsAny reports whether value (a string, typically a substring) is
// present in actual, case-insensitively. If actual is an array, it
// reports whether any element contains value.
func containsAny(actual, value any) bool {
	needle, ok := singleString(value)
	if !ok {
		return false
	}
	needle = strings.ToLower(needle)

	if items, ok := asStringSlice(actual); ok {
		for _, it := range items {
			if strings.Contains(strings.ToLower(it), needle) {
				return true
			}
		}
		return false
	}
	return false
}

// inAny reports whether actual is a member of the value array (set
// semantics, case-insensitive).
func inAny(actual, value any) bool {
	as, ok := singleString(actual)
	if !ok {
		return false
	}
	set, ok := normSet(value)
	if !ok {
		return false
	}
	_, found := set[strings.ToLower(as)]
	return found
}

// regexMatch applies value as a regex pattern against actual. Any failure
// — wrong types, invalid syntax, or a pattern flagged unsafe — evaluates
// to false with a logged warning; it never returns an error to the
// caller.
func regexMatch(actual, value any) bool {
	pattern, ok := singleString(value)
	if !ok {
		return false
	}
	subject, ok := singleString(actual)
	if !ok {
		return false
	}

	if unsafe, reason := IsUnsafeRegex(pattern); unsafe {
		logging.Warn().Str("pattern", pattern).Str("reason", reason).Msg("routing: rejected unsafe regex, evaluating false")
		return false
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Str("pattern", pattern).Err(err).Msg("routing: invalid regex, evaluating false")
		return false
	}
	return re.MatchString(subject)
}

// IsUnsafeRegex applies a static heuristic for catastrophic-backtracking
// shapes: nested quantified groups ((a+)+, (a*)+, (.+)*...), since those
// are the classic ReDoS constructions regardless of which regex engine
// ultimately runs them. Go's RE2-based regexp package is immune to
// exponential blowup, but these patterns are rejected at the boundary so
// rule authors can't author portably-unsafe criteria.
func IsUnsafeRegex(pattern string) (bool, string) {
	if len(pattern) > 512 {
		return true, "pattern exceeds maximum length"
	}
	if nestedQuantifier.MatchString(pattern) {
		return true, "nested quantified group"
	}
	if strings.Count(pattern, "(") > 40 {
		return true, "excessive group nesting"
	}
	return false, ""
}

// nestedQuantifier matches a quantified group immediately followed by
// another quantifier, e.g. "(a+)+", "(.*)*", "(\\w+){2,}" — the shape
// that causes exponential backtracking in backtracking regex engines.
var nestedQuantifier = regexp.MustCompile(`\([^()]*[+*][^()]*\)[+*]|\([^()]*[+*][^()]*\)\{\d*,?\d*\}`)
