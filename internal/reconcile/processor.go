// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"errors"

	"github.com/jamcalli/Pulsarr-sub009/internal/approval"
	"github.com/jamcalli/Pulsarr-sub009/internal/enrich"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
	"github.com/jamcalli/Pulsarr-sub009/internal/store"
	"github.com/jamcalli/Pulsarr-sub009/internal/submit"
)

// ProcessorStore extends the reconciler's store surface with what the
// pending-item pipeline needs.
type ProcessorStore interface {
	Store
	GetUser(ctx context.Context, id int) (*models.User, error)
	LockItem(userID int, key string) func()
}

// Router decides where one item goes, satisfied by *routing.Engine.
type Router interface {
	Decide(ctx context.Context, item *models.WatchlistItem, ectx routing.EvalContext) (routing.RoutingDecision, error)
}

// Gate resolves approval requirements, satisfied by *approval.Service.
type Gate interface {
	Gate(ctx context.Context, user *models.User, item *models.WatchlistItem, decision routing.RoutingDecision) (approval.Outcome, error)
}

// Submitter fans a permitted decision out, satisfied by *submit.Submitter.
type Submitter interface {
	Submit(ctx context.Context, item *models.WatchlistItem, decision models.RouterDecision) (submit.Result, error)
}

// Enricher resolves routing facts, satisfied by *enrich.Enricher.
type Enricher interface {
	Enrich(ctx context.Context, item *models.WatchlistItem) enrich.Result
}

// QuotaRecorder appends usage on successful direct submission.
type QuotaRecorder interface {
	RecordUsage(ctx context.Context, userID int, contentType models.ContentType) error
}

// Processor drives every pending watchlist item through
// enrich -> route -> gate -> submit and advances it to requested.
type Processor struct {
	store     ProcessorStore
	enricher  Enricher
	router    Router
	gate      Gate
	submitter Submitter
	quota     QuotaRecorder
}

// NewProcessor constructs a Processor.
func NewProcessor(st ProcessorStore, enricher Enricher, router Router, gate Gate, submitter Submitter, q QuotaRecorder) *Processor {
	return &Processor{store: st, enricher: enricher, router: router, gate: gate, submitter: submitter, quota: q}
}

// ProcessPending walks every pending item. Per-item failures, store
// errors included, are logged and the pass moves on; only a failure to
// list the items or a canceled context ends the pass early.
func (p *Processor) ProcessPending(ctx context.Context) error {
	items, err := p.store.ListAllWatchlistItems(ctx)
	if err != nil {
		return err
	}
	for i := range items {
		item := &items[i]
		if item.Status != models.StatusPending {
			continue
		}
		if err := p.processOne(ctx, item); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logging.Error().Err(err).Str("component", "processor").
				Str("title", item.Title).Msg("item processing failed")
		}
	}
	return nil
}

func (p *Processor) processOne(ctx context.Context, item *models.WatchlistItem) error {
	unlock := p.store.LockItem(item.UserID, item.Key)
	defer unlock()

	user, err := p.store.GetUser(ctx, item.UserID)
	if err != nil {
		return err
	}

	enriched := p.enricher.Enrich(ctx, item)
	item.GUIDs = enriched.GUIDs

	decision, err := p.router.Decide(ctx, item, enriched.Ctx)
	if err != nil {
		return err
	}
	if decision.Action == routing.ActionSkip {
		logging.Debug().Str("component", "processor").Str("title", item.Title).Msg("router skipped item")
		return nil
	}

	outcome, err := p.gate.Gate(ctx, user, item, decision)
	if err != nil {
		return err
	}
	if !outcome.Proceed {
		// The item stays pending until its approval request resolves.
		return nil
	}

	snapshot := routing.Snapshot(*decision.Route, decision.MatchedRuleID)
	if _, err := p.submitter.Submit(ctx, item, snapshot); err != nil {
		return err
	}

	if err := p.quota.RecordUsage(ctx, item.UserID, item.Type); err != nil {
		logging.Warn().Err(err).Str("component", "processor").Str("title", item.Title).Msg("usage record failed")
	}

	requested := models.StatusRequested
	primaryID := snapshot.PrimaryInstanceID
	u := store.WatchlistUpdate{UserID: item.UserID, Key: item.Key, Status: &requested}
	if snapshot.TargetType == models.TargetSonarr {
		u.SonarrInstanceID = &primaryID
	} else {
		u.RadarrInstanceID = &primaryID
	}
	return p.store.BulkUpdateWatchlistItems(ctx, []store.WatchlistUpdate{u})
}
