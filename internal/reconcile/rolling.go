// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/arr"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/plex"
)

// expansionThreshold is the fraction of the current season a viewer must
// have reached before the next season is monitored. Deterministic given
// (season, episode index, total episodes).
const expansionThreshold = 0.8

// RollingStore is the tracking surface for rolling-monitored shows.
type RollingStore interface {
	ListRollingShows(ctx context.Context) ([]models.RollingShow, error)
	UpdateRollingShow(ctx context.Context, r *models.RollingShow) error
	GetWatchlistItemByID(ctx context.Context, id int) (*models.WatchlistItem, error)
	Instance(ctx context.Context, id int) (*models.DownstreamInstance, error)
}

// SessionSource reports in-progress playbacks, satisfied by *plex.Server.
type SessionSource interface {
	Sessions(ctx context.Context) ([]plex.Session, error)
}

// SonarrExpander is the write surface expansion needs, satisfied by
// *arr.SonarrClient.
type SonarrExpander interface {
	Series(ctx context.Context) ([]arr.Series, error)
	SetSeasonMonitored(ctx context.Context, series *arr.Series, seasonNumber int, monitored bool) error
}

// ExpanderClients resolves a SonarrExpander per instance.
type ExpanderClients interface {
	SonarrExpander(inst *models.DownstreamInstance) SonarrExpander
}

// RollingReconciler inspects session progress and expands monitoring one
// season ahead when a viewer approaches the end of the current season.
// Shows with no progress for the inactivity window reset to their
// starting configuration.
type RollingReconciler struct {
	store    RollingStore
	sessions SessionSource
	clients  ExpanderClients

	// inactivityWindow is how long a rolling show may sit without
	// progress before it resets.
	inactivityWindow time.Duration
}

// NewRollingReconciler constructs a RollingReconciler.
func NewRollingReconciler(st RollingStore, sessions SessionSource, clients ExpanderClients, inactivityWindow time.Duration) *RollingReconciler {
	if inactivityWindow <= 0 {
		inactivityWindow = 90 * 24 * time.Hour
	}
	return &RollingReconciler{store: st, sessions: sessions, clients: clients, inactivityWindow: inactivityWindow}
}

// Run performs one expansion pass.
func (r *RollingReconciler) Run(ctx context.Context) error {
	tracked, err := r.store.ListRollingShows(ctx)
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		return nil
	}

	sessions, err := r.sessions.Sessions(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("component", "rolling").Msg("session fetch failed, skipping pass")
		return nil
	}

	now := time.Now().UTC()
	for i := range tracked {
		show := &tracked[i]
		if err := r.reconcileShow(ctx, show, sessions, now); err != nil {
			logging.Warn().Err(err).Str("component", "rolling").
				Int("watchlist_item_id", show.WatchlistItemID).Msg("rolling reconcile failed for show")
		}
	}
	return nil
}

func (r *RollingReconciler) reconcileShow(ctx context.Context, show *models.RollingShow, sessions []plex.Session, now time.Time) error {
	item, err := r.store.GetWatchlistItemByID(ctx, show.WatchlistItemID)
	if err != nil {
		return err
	}

	session := matchSession(item, sessions)
	if session == nil {
		return r.maybeReset(ctx, show, item, now)
	}

	show.LastProgressAt = &now
	if !shouldExpand(session, show.MonitoredSeason) {
		return r.store.UpdateRollingShow(ctx, show)
	}

	if err := r.expand(ctx, show, item, show.MonitoredSeason+1); err != nil {
		return err
	}
	show.MonitoredSeason++
	logging.Info().Str("component", "rolling").Str("title", item.Title).
		Int("season", show.MonitoredSeason).Msg("expanded rolling monitoring")
	return r.store.UpdateRollingShow(ctx, show)
}

// shouldExpand reports whether the viewer has crossed the expansion
// threshold within the currently monitored season.
func shouldExpand(s *plex.Session, monitoredSeason int) bool {
	if s.SeasonNumber != monitoredSeason {
		// Watching an earlier or later season does not trigger.
		return false
	}
	if s.EpisodeCount <= 0 || s.EpisodeIndex <= 0 {
		return false
	}
	return float64(s.EpisodeIndex)/float64(s.EpisodeCount) >= expansionThreshold
}

// expand flips the target season to monitored in the show's Sonarr
// instance.
func (r *RollingReconciler) expand(ctx context.Context, show *models.RollingShow, item *models.WatchlistItem, season int) error {
	inst, err := r.store.Instance(ctx, show.SonarrInstanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		logging.Warn().Str("component", "rolling").Int("instance_id", show.SonarrInstanceID).Msg("instance gone, skipping expansion")
		return nil
	}

	api := r.clients.SonarrExpander(inst)
	all, err := api.Series(ctx)
	if err != nil {
		return err
	}
	series := matchSeries(item, all)
	if series == nil {
		logging.Warn().Str("component", "rolling").Str("title", item.Title).Msg("series not found downstream")
		return nil
	}
	return api.SetSeasonMonitored(ctx, series, season, true)
}

// maybeReset returns an inactive show to its starting monitoring
// configuration.
func (r *RollingReconciler) maybeReset(ctx context.Context, show *models.RollingShow, item *models.WatchlistItem, now time.Time) error {
	last := show.CreatedAt
	if show.LastProgressAt != nil {
		last = *show.LastProgressAt
	}
	if now.Sub(last) < r.inactivityWindow {
		return nil
	}

	startSeason := 1
	if show.MonitoredSeason == startSeason {
		return nil
	}

	inst, err := r.store.Instance(ctx, show.SonarrInstanceID)
	if err != nil || inst == nil {
		return err
	}
	api := r.clients.SonarrExpander(inst)
	all, err := api.Series(ctx)
	if err != nil {
		return err
	}
	series := matchSeries(item, all)
	if series == nil {
		return nil
	}
	for season := show.MonitoredSeason; season > startSeason; season-- {
		if err := api.SetSeasonMonitored(ctx, series, season, false); err != nil {
			return err
		}
	}

	show.MonitoredSeason = startSeason
	logging.Info().Str("component", "rolling").Str("title", item.Title).Msg("reset inactive rolling show")
	return r.store.UpdateRollingShow(ctx, show)
}

// matchSession finds an in-progress playback of item's show.
func matchSession(item *models.WatchlistItem, sessions []plex.Session) *plex.Session {
	for i := range sessions {
		if models.GUIDsIntersect(item.GUIDs, sessions[i].GUIDs) {
			return &sessions[i]
		}
	}
	return nil
}
