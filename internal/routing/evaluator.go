// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// Evaluator is a pluggable rule-type handler: a named, independently
// enable-able unit that knows how to decide whether one field (or set of
// fields) matches a rule's criteria.
type Evaluator interface {
	// Name is this evaluator's RouterRule.Type key, e.g. "genre", "year".
	Name() string

	// Priority orders evaluators in Registry.All (higher first), which
	// decides the evaluator that resolves a condition field several
	// evaluators support. The engine picks among matching rules by
	// rule.Order and ID only; Priority plays no part in that choice.
	Priority() int

	// SupportedFields lists the condition-tree field names this
	// evaluator can resolve, so the engine can build one FieldResolver
	// covering every registered evaluator.
	SupportedFields() []string

	// CanEvaluate reports whether this evaluator understands rule's
	// criteria blob at all (correct type field present). A rule with a
	// criteria blob no evaluator can parse never matches.
	CanEvaluate(rule *models.RouterRule) bool

	// Evaluate applies rule.Criteria (already known by CanEvaluate to be
	// this evaluator's shape) against ctx, reporting whether it matches.
	// A malformed or missing criterion always reports false, never an
	// error.
	Evaluate(rule *models.RouterRule, item *models.WatchlistItem, ctx EvalContext) bool

	// ResolveField returns this evaluator's value for one of its
	// SupportedFields, for use by FieldResolver in conditional rules.
	ResolveField(field string, item *models.WatchlistItem, ctx EvalContext) (any, bool)
}

// Registry holds every registered Evaluator, keyed by Name(). Dispatch
// is by capability: new evaluators register here and the engine never
// needs to know them by name.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// Register adds an evaluator, replacing any prior registration under the
// same name. Registration is expected at startup wiring time, not on the
// evaluation hot path, but is safe to call concurrently.
func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.Name()] = e
}

// Get returns the evaluator registered under name, if any.
func (r *Registry) Get(name string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[name]
	return e, ok
}

// All returns every registered evaluator, sorted by (Priority desc,
// Name asc) for deterministic iteration.
func (r *Registry) All() []Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Evaluator, 0, len(r.evaluators))
	for _, e := range r.evaluators {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Resolve implements FieldResolver by dispatching to whichever
// registered evaluator claims the requested field. A field is claimed by
// exact match against SupportedFields, or, for namespaced fields like
// "rating:imdb", by the "rating" prefix before the colon -- this lets
// the multi-source rating evaluator expose one field per source without
// each one being separately registered.
func (r *Registry) Resolve(field string, item *models.WatchlistItem, ctx EvalContext) (any, bool) {
	base := field
	if i := strings.IndexByte(field, ':'); i >= 0 {
		base = field[:i]
	}
	for _, e := range r.All() {
		for _, f := range e.SupportedFields() {
			if f == field || f == base {
				return e.ResolveField(field, item, ctx)
			}
		}
	}
	return nil, false
}

// EvaluateFlatRule runs a non-conditional rule (rule.Type names a
// registered evaluator directly; rule.Criteria is that evaluator's
// parameter blob) against ctx.
func (r *Registry) EvaluateFlatRule(rule *models.RouterRule, item *models.WatchlistItem, ctx EvalContext) bool {
	e, ok := r.Get(rule.Type)
	if !ok {
		return false
	}
	if !e.CanEvaluate(rule) {
		return false
	}
	return e.Evaluate(rule, item, ctx)
}

// unmarshalCriteria decodes rule.Criteria into dst, reporting false on
// any decode failure rather than propagating the error -- a malformed
// criteria blob simply never matches, per the "criteria corrupt = skip"
// behavior required of evaluators.
func unmarshalCriteria(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	return true
}
