// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile compares local watchlist state against the
// downstream managers and applies the minimal update set: adopt newer
// added timestamps, advance statuses (never downgrade), and refresh the
// per-flavor fields. It never creates items -- only the ingester does
// that -- and a snapshot reconciled twice produces zero updates the
// second time.
package reconcile

import (
	"context"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/arr"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/store"
)

// Store is the persistence surface the reconciler needs.
type Store interface {
	ListAllWatchlistItems(ctx context.Context) ([]models.WatchlistItem, error)
	BulkUpdateWatchlistItems(ctx context.Context, updates []store.WatchlistUpdate) error
	AppendStatusHistory(ctx context.Context, entry models.StatusHistoryEntry) error
	StatusHistory(ctx context.Context, itemID int) ([]models.StatusHistoryEntry, error)
	ListInstances(ctx context.Context, targetType models.TargetType) ([]models.DownstreamInstance, error)
}

// SonarrAPI is the Sonarr-like read surface, satisfied by
// *arr.SonarrClient.
type SonarrAPI interface {
	Series(ctx context.Context) ([]arr.Series, error)
}

// RadarrAPI is the Radarr-like read surface, satisfied by
// *arr.RadarrClient.
type RadarrAPI interface {
	Movies(ctx context.Context) ([]arr.Movie, error)
}

// Clients resolves read clients per configured instance.
type Clients interface {
	SonarrReader(inst *models.DownstreamInstance) SonarrAPI
	RadarrReader(inst *models.DownstreamInstance) RadarrAPI
}

// Reconciler drives the periodic downstream diff.
type Reconciler struct {
	store   Store
	clients Clients
}

// NewReconciler constructs a Reconciler.
func NewReconciler(st Store, clients Clients) *Reconciler {
	return &Reconciler{store: st, clients: clients}
}

// Run reconciles every configured instance of both flavors. Per-instance
// fetch failures are isolated; the computed updates are applied in one
// bulk write at the end.
func (r *Reconciler) Run(ctx context.Context) error {
	items, err := r.store.ListAllWatchlistItems(ctx)
	if err != nil {
		return err
	}

	var updates []store.WatchlistUpdate

	radarrs, err := r.store.ListInstances(ctx, models.TargetRadarr)
	if err != nil {
		return err
	}
	for i := range radarrs {
		inst := &radarrs[i]
		movies, err := r.clients.RadarrReader(inst).Movies(ctx)
		if err != nil {
			logging.Warn().Err(err).Str("component", "reconciler").
				Str("instance", inst.Name).Msg("movie fetch failed, skipping instance")
			continue
		}
		updates = append(updates, r.diffMovies(ctx, items, inst.ID, movies)...)
	}

	sonarrs, err := r.store.ListInstances(ctx, models.TargetSonarr)
	if err != nil {
		return err
	}
	for i := range sonarrs {
		inst := &sonarrs[i]
		series, err := r.clients.SonarrReader(inst).Series(ctx)
		if err != nil {
			logging.Warn().Err(err).Str("component", "reconciler").
				Str("instance", inst.Name).Msg("series fetch failed, skipping instance")
			continue
		}
		updates = append(updates, r.diffSeries(ctx, items, inst.ID, series)...)
	}

	if len(updates) == 0 {
		return nil
	}
	logging.Info().Str("component", "reconciler").Int("updates", len(updates)).Msg("applying reconcile updates")
	return r.store.BulkUpdateWatchlistItems(ctx, updates)
}

// diffMovies matches local movie items to one instance's library by GUID
// intersection and emits each item's minimal update.
func (r *Reconciler) diffMovies(ctx context.Context, items []models.WatchlistItem, instanceID int, movies []arr.Movie) []store.WatchlistUpdate {
	var updates []store.WatchlistUpdate
	for i := range items {
		item := &items[i]
		if item.Type != models.ContentTypeMovie {
			continue
		}
		movie := matchMovie(item, movies)
		if movie == nil {
			continue
		}

		u := store.WatchlistUpdate{UserID: item.UserID, Key: item.Key}

		downstream := movieDownstreamStatus(movie)
		r.applyStatus(ctx, item, downstream, &u)

		if added := parseArrTime(movie.Added); added != nil {
			if item.Added == nil || added.After(*item.Added) {
				u.Added = added
			}
		}

		ms := movieAvailability(movie)
		if !validMovieStatus(ms) {
			logging.Warn().Str("component", "reconciler").Str("title", item.Title).
				Str("movie_status", string(ms)).Msg("rejecting unknown movie status")
		} else if item.MovieStatus == nil || *item.MovieStatus != ms {
			u.MovieStatus = &ms
		}

		if item.RadarrInstanceID == nil || *item.RadarrInstanceID != instanceID {
			id := instanceID
			u.RadarrInstanceID = &id
		}

		if !u.IsEmpty() {
			updates = append(updates, u)
		}
	}
	return updates
}

// diffSeries is the Sonarr-flavor diff.
func (r *Reconciler) diffSeries(ctx context.Context, items []models.WatchlistItem, instanceID int, series []arr.Series) []store.WatchlistUpdate {
	var updates []store.WatchlistUpdate
	for i := range items {
		item := &items[i]
		if item.Type != models.ContentTypeShow {
			continue
		}
		sr := matchSeries(item, series)
		if sr == nil {
			continue
		}

		u := store.WatchlistUpdate{UserID: item.UserID, Key: item.Key}

		r.applyStatus(ctx, item, seriesDownstreamStatus(sr), &u)

		if added := parseArrTime(sr.Added); added != nil {
			if item.Added == nil || added.After(*item.Added) {
				u.Added = added
			}
		}

		if ss := seriesAiringStatus(sr); ss != "" {
			if item.SeriesStatus == nil || *item.SeriesStatus != ss {
				u.SeriesStatus = &ss
			}
		}

		if item.SonarrInstanceID == nil || *item.SonarrInstanceID != instanceID {
			id := instanceID
			u.SonarrInstanceID = &id
		}

		if !u.IsEmpty() {
			updates = append(updates, u)
		}
	}
	return updates
}

// applyStatus folds the downstream-observed status into the update,
// honoring the no-downgrade rule: a notified item stays notified, and a
// grabbed observation against it is backfilled into status history dated
// by the item's added timestamp.
func (r *Reconciler) applyStatus(ctx context.Context, item *models.WatchlistItem, downstream models.WatchlistStatus, u *store.WatchlistUpdate) {
	if downstream == "" || downstream == item.Status {
		return
	}
	if item.Status.IsForwardTransition(downstream) {
		s := downstream
		u.Status = &s
		return
	}
	if item.Status == models.StatusNotified && downstream == models.StatusGrabbed {
		// Backfill once: repeated reconciles of the same observation
		// must not multiply history rows.
		if history, err := r.store.StatusHistory(ctx, item.ID); err == nil {
			for _, e := range history {
				if e.Status == models.StatusGrabbed {
					return
				}
			}
		}
		observedAt := time.Now().UTC()
		if item.Added != nil {
			observedAt = *item.Added
		}
		if err := r.store.AppendStatusHistory(ctx, models.StatusHistoryEntry{
			WatchlistItemID: item.ID,
			Status:          models.StatusGrabbed,
			ObservedAt:      observedAt,
		}); err != nil {
			logging.Warn().Err(err).Str("component", "reconciler").
				Int("item_id", item.ID).Msg("status history backfill failed")
		}
	}
	// Any other backward observation is dropped.
}

func matchMovie(item *models.WatchlistItem, movies []arr.Movie) *arr.Movie {
	for i := range movies {
		if models.GUIDsIntersect(item.GUIDs, models.NormalizeGUIDs(movies[i].GUIDs())) {
			return &movies[i]
		}
	}
	return nil
}

func matchSeries(item *models.WatchlistItem, series []arr.Series) *arr.Series {
	for i := range series {
		if models.GUIDsIntersect(item.GUIDs, models.NormalizeGUIDs(series[i].GUIDs())) {
			return &series[i]
		}
	}
	return nil
}

// movieDownstreamStatus maps a library movie to the lifecycle DAG:
// having a file means the content was grabbed; being present at all
// means it was requested.
func movieDownstreamStatus(m *arr.Movie) models.WatchlistStatus {
	if m.HasFile {
		return models.StatusGrabbed
	}
	return models.StatusRequested
}

func seriesDownstreamStatus(s *arr.Series) models.WatchlistStatus {
	if s.Statistics.EpisodeFileCount > 0 {
		return models.StatusGrabbed
	}
	return models.StatusRequested
}

func movieAvailability(m *arr.Movie) models.MovieStatus {
	if m.IsAvailable {
		return models.MovieStatusAvailable
	}
	return models.MovieStatusUnavailable
}

func validMovieStatus(s models.MovieStatus) bool {
	return s == models.MovieStatusAvailable || s == models.MovieStatusUnavailable
}

func seriesAiringStatus(s *arr.Series) models.SeriesStatus {
	switch s.Status {
	case "continuing", "upcoming":
		return models.SeriesStatusContinuing
	case "ended":
		return models.SeriesStatusEnded
	default:
		return ""
	}
}

func parseArrTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
