// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest acquires watchlist state from the source -- the token
// owner's paged REST watchlist, each friend's paged GraphQL watchlist,
// and the RSS fallback feeds -- and reconciles it into the store in
// three invariant-preserving steps: acquire, classify, persist. A source
// failure for one user degrades to that user's last persisted snapshot;
// nothing is ever deleted on a failed refresh.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/enrich"
	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/plex"
	"github.com/jamcalli/Pulsarr-sub009/internal/progress"
)

// Source is the watchlist source protocol, satisfied by *plex.Client.
type Source interface {
	SelfWatchlist(ctx context.Context) ([]plex.Item, error)
	Friends(ctx context.Context) ([]plex.Friend, error)
	FriendWatchlist(ctx context.Context, friend plex.Friend) ([]plex.Item, error)
	RSSWatchlist(ctx context.Context, feedURL string) ([]plex.Item, error)
}

// Store is the persistence the ingester needs.
type Store interface {
	PrimaryTokenUser(ctx context.Context) (*models.User, error)
	GetUserByPlexUUID(ctx context.Context, uuid string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	GetWatchlistItem(ctx context.Context, userID int, key string) (*models.WatchlistItem, error)
	ListWatchlistItems(ctx context.Context, userID int) ([]models.WatchlistItem, error)
	CreateWatchlistItem(ctx context.Context, item *models.WatchlistItem) error
	UpdateWatchlistMetadata(ctx context.Context, item *models.WatchlistItem) error
	FindItemsByKeyAnyUser(ctx context.Context, key string) ([]models.WatchlistItem, error)
	DeleteWatchlistItems(ctx context.Context, userID int, keys []string) error
	LockItem(userID int, key string) func()
}

// Enricher resolves metadata for brand-new items, satisfied by
// *enrich.Enricher.
type Enricher interface {
	Enrich(ctx context.Context, item *models.WatchlistItem) enrich.Result
}

// Config carries the RSS fallback feed URLs.
type Config struct {
	SelfRSSURL    string
	FriendsRSSURL string
}

// Ingester drives watchlist acquisition.
type Ingester struct {
	source   Source
	store    Store
	enricher Enricher
	bus      *progress.Bus
	cfg      Config
}

// New constructs an Ingester. bus may be nil in tests.
func New(source Source, store Store, enricher Enricher, bus *progress.Bus, cfg Config) *Ingester {
	return &Ingester{source: source, store: store, enricher: enricher, bus: bus, cfg: cfg}
}

// Result summarizes one refresh for logging and progress reporting.
type Result struct {
	UsersSynced int
	NewItems    int
	Linked      int
	Removed     int
	Failed      int
}

// SyncSelf refreshes the token owner's watchlist. When forceRefresh is
// set, every item is treated as brand-new and re-enriched.
func (i *Ingester) SyncSelf(ctx context.Context, forceRefresh bool) (Result, error) {
	opID := "self-" + logging.NewOperationID()
	ctx = logging.ContextWithOperationID(ctx, opID)
	i.publish(ctx, progress.TypeSelfWatchlist, opID, "acquire", 0, "fetching self watchlist")

	owner, err := i.store.PrimaryTokenUser(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: no primary token user: %w", err)
	}

	items, err := i.source.SelfWatchlist(ctx)
	if err != nil {
		i.publish(ctx, progress.TypeSelfWatchlist, opID, "failed", 100, "source unavailable, keeping persisted snapshot")
		logging.Ctx(ctx).Warn().Err(err).Str("component", "ingester").Msg("self watchlist fetch failed, keeping persisted items")
		return Result{Failed: 1}, nil
	}

	res, err := i.reconcileUser(ctx, owner.ID, items, forceRefresh)
	if err != nil {
		return res, err
	}
	res.UsersSynced = 1
	i.publish(ctx, progress.TypeSelfWatchlist, opID, "done", 100,
		fmt.Sprintf("%d new, %d linked, %d removed", res.NewItems, res.Linked, res.Removed))
	return res, nil
}

// SyncOthers refreshes every friend's watchlist. Per-user failures are
// isolated: the failing user keeps their persisted snapshot and the rest
// of the batch proceeds.
func (i *Ingester) SyncOthers(ctx context.Context, forceRefresh bool) (Result, error) {
	opID := "others-" + logging.NewOperationID()
	ctx = logging.ContextWithOperationID(ctx, opID)
	i.publish(ctx, progress.TypeOthersWatchlist, opID, "acquire", 0, "enumerating friends")

	friends, err := i.source.Friends(ctx)
	if err != nil {
		// A complete upstream failure deletes nothing.
		i.publish(ctx, progress.TypeOthersWatchlist, opID, "failed", 100, "friend enumeration failed")
		logging.Ctx(ctx).Warn().Err(err).Str("component", "ingester").Msg("friend enumeration failed, keeping all persisted items")
		return Result{Failed: 1}, nil
	}

	var total Result
	for n, friend := range friends {
		pct := 0
		if len(friends) > 0 {
			pct = (n * 100) / len(friends)
		}
		i.publish(ctx, progress.TypeOthersWatchlist, opID, "sync", pct, "syncing "+friend.Username)

		user, err := i.userForFriend(ctx, friend)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("component", "ingester").Str("friend", friend.Username).Msg("user resolution failed")
			total.Failed++
			continue
		}
		if !user.CanSync {
			continue
		}

		items, err := i.source.FriendWatchlist(ctx, friend)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("component", "ingester").Str("friend", friend.Username).
				Msg("friend watchlist fetch failed, keeping persisted snapshot")
			total.Failed++
			continue
		}

		res, err := i.reconcileUser(ctx, user.ID, items, forceRefresh)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("component", "ingester").Str("friend", friend.Username).Msg("reconcile failed")
			total.Failed++
			continue
		}
		total.NewItems += res.NewItems
		total.Linked += res.Linked
		total.Removed += res.Removed
		total.UsersSynced++
	}

	i.publish(ctx, progress.TypeOthersWatchlist, opID, "done", 100,
		fmt.Sprintf("%d users, %d new items", total.UsersSynced, total.NewItems))
	return total, nil
}

// SyncRSS ingests the fallback feeds when configured. Self-feed items
// attribute to the token owner; the friends feed carries no per-user
// attribution, so its items land on the reserved System user; a later
// GraphQL sync links the same keys to each friend without removing the
// System user's rows. Absences are NOT treated as removals
// because a feed is a window, not a full snapshot.
func (i *Ingester) SyncRSS(ctx context.Context) (Result, error) {
	if i.cfg.SelfRSSURL == "" && i.cfg.FriendsRSSURL == "" {
		return Result{}, nil
	}
	opID := "rss-" + logging.NewOperationID()
	ctx = logging.ContextWithOperationID(ctx, opID)
	i.publish(ctx, progress.TypeRSSFeed, opID, "acquire", 0, "fetching rss feeds")

	var res Result
	if i.cfg.SelfRSSURL != "" {
		owner, err := i.store.PrimaryTokenUser(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("ingest: no primary token user: %w", err)
		}
		i.ingestFeed(ctx, i.cfg.SelfRSSURL, owner.ID, &res)
	}
	if i.cfg.FriendsRSSURL != "" {
		i.ingestFeed(ctx, i.cfg.FriendsRSSURL, models.SystemUserID, &res)
	}

	i.publish(ctx, progress.TypeRSSFeed, opID, "done", 100, fmt.Sprintf("%d new items", res.NewItems))
	return res, nil
}

func (i *Ingester) ingestFeed(ctx context.Context, feedURL string, userID int, res *Result) {
	items, err := i.source.RSSWatchlist(ctx, feedURL)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("component", "ingester").Str("feed", feedURL).Msg("rss fetch failed")
		res.Failed++
		return
	}
	for _, raw := range items {
		created, linked, err := i.persistItem(ctx, userID, raw, false)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("component", "ingester").Str("key", raw.Key).Msg("rss item persist failed")
			continue
		}
		if created {
			res.NewItems++
		}
		if linked {
			res.Linked++
		}
	}
}

// reconcileUser applies one user's full snapshot: classify each item,
// persist the new ones, and remove items absent from the snapshot for
// this user only.
func (i *Ingester) reconcileUser(ctx context.Context, userID int, snapshot []plex.Item, forceRefresh bool) (Result, error) {
	var res Result

	present := make(map[string]struct{}, len(snapshot))
	for _, raw := range snapshot {
		present[raw.Key] = struct{}{}
		created, linked, err := i.persistItem(ctx, userID, raw, forceRefresh)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("component", "ingester").Str("key", raw.Key).Msg("item persist failed")
			res.Failed++
			continue
		}
		if created {
			res.NewItems++
		}
		if linked {
			res.Linked++
		}
	}

	existing, err := i.store.ListWatchlistItems(ctx, userID)
	if err != nil {
		return res, err
	}
	var removed []string
	for _, item := range existing {
		if _, ok := present[item.Key]; !ok {
			removed = append(removed, item.Key)
		}
	}
	if len(removed) > 0 {
		if err := i.store.DeleteWatchlistItems(ctx, userID, removed); err != nil {
			return res, err
		}
		res.Removed = len(removed)
	}
	return res, nil
}

// persistItem classifies one raw item and stores it. Brand-new items are
// enriched; items already known under another user are linked by copying
// that row's metadata without a new enrichment pass. Reports
// (created, linkedToExisting).
func (i *Ingester) persistItem(ctx context.Context, userID int, raw plex.Item, forceRefresh bool) (bool, bool, error) {
	unlock := i.store.LockItem(userID, raw.Key)
	defer unlock()

	item := itemFromRaw(userID, raw)

	if _, err := i.store.GetWatchlistItem(ctx, userID, raw.Key); err == nil {
		if !forceRefresh {
			return false, false, nil
		}
		// Force refresh: re-enrich and rewrite metadata in place,
		// leaving lifecycle state untouched.
		enriched := i.enricher.Enrich(ctx, item)
		item.GUIDs = enriched.GUIDs
		if len(enriched.Ctx.Genres) > 0 {
			item.Genres = enriched.Ctx.Genres
		}
		return false, false, i.store.UpdateWatchlistMetadata(ctx, item)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return false, false, err
	}

	if !forceRefresh {
		// Known under another user: link without re-fetching metadata.
		siblings, err := i.store.FindItemsByKeyAnyUser(ctx, raw.Key)
		if err != nil {
			return false, false, err
		}
		if len(siblings) > 0 {
			src := siblings[0]
			item.GUIDs = src.GUIDs
			item.Genres = src.Genres
			item.Thumb = src.Thumb
			if err := i.store.CreateWatchlistItem(ctx, item); err != nil {
				return false, false, err
			}
			return false, true, nil
		}
	}

	enriched := i.enricher.Enrich(ctx, item)
	item.GUIDs = enriched.GUIDs
	if len(enriched.Ctx.Genres) > 0 {
		item.Genres = enriched.Ctx.Genres
	}
	if err := i.store.CreateWatchlistItem(ctx, item); err != nil {
		return false, false, err
	}
	return true, false, nil
}

func itemFromRaw(userID int, raw plex.Item) *models.WatchlistItem {
	item := &models.WatchlistItem{
		UserID: userID,
		Key:    raw.Key,
		Title:  raw.Title,
		Type:   raw.Type,
		GUIDs:  raw.GUIDs,
		Genres: raw.Genres,
		Status: models.StatusPending,
	}
	if raw.Thumb != "" {
		item.Thumb = &raw.Thumb
	}
	if raw.AddedAt > 0 {
		t := time.Unix(raw.AddedAt, 0).UTC()
		item.Added = &t
	}
	return item
}

// userForFriend finds or creates the user row for a friend, keyed by
// their account uuid.
func (i *Ingester) userForFriend(ctx context.Context, friend plex.Friend) (*models.User, error) {
	user, err := i.store.GetUserByPlexUUID(ctx, friend.UUID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	uuid := friend.UUID
	user = &models.User{
		Name:     friend.Username,
		PlexUUID: &uuid,
		CanSync:  true,
	}
	if err := i.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("component", "ingester").Str("user", friend.Username).Msg("created user for new friend")
	return user, nil
}

func (i *Ingester) publish(ctx context.Context, t progress.EventType, opID, phase string, pct int, msg string) {
	if i.bus == nil {
		return
	}
	i.bus.Publish(ctx, progress.Event{
		OperationID: opID, Type: t, Phase: phase, Progress: pct, Message: msg,
	})
}
