// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package labels mirrors watchlist ownership into the media library:
// each matched library entity carries one "prefix:username" label per
// current watcher. The syncer only ever removes labels it previously
// applied (recorded in the tracking table), applies a tri-valued policy
// for removed users, and bounds its library mutations with a configured
// concurrency limit.
package labels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/plex"
	"github.com/jamcalli/Pulsarr-sub009/internal/progress"
)

// RemovedUserPolicy controls what happens to a label whose user no
// longer watches the content.
type RemovedUserPolicy string

const (
	PolicyRemove       RemovedUserPolicy = "remove"
	PolicyKeep         RemovedUserPolicy = "keep"
	PolicySpecialLabel RemovedUserPolicy = "special-label"
)

// Store is the persistence surface the syncer needs.
type Store interface {
	ListAllWatchlistItems(ctx context.Context) ([]models.WatchlistItem, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListLabelTracking(ctx context.Context, ratingKey string) ([]models.LabelTracking, error)
	UpsertLabelTracking(ctx context.Context, t models.LabelTracking) error
	DeleteLabelTracking(ctx context.Context, t models.LabelTracking) error
	DeleteOrphanedLabelTracking(ctx context.Context) (int, error)
}

// Library is the media-server surface, satisfied by *plex.Server.
type Library interface {
	FindByGUID(ctx context.Context, guid string) ([]plex.LibraryItem, error)
	GetItem(ctx context.Context, ratingKey string) (*plex.LibraryItem, error)
	SetLabels(ctx context.Context, ratingKey string, sectionID int, labels []string) error
}

// Config tunes the sync behavior.
type Config struct {
	// Prefix namespaces the labels this system owns, e.g. "pulsarr".
	Prefix string

	// RemovedUserPolicy is applied to labels of users who no longer
	// watch the content.
	RemovedUserPolicy RemovedUserPolicy

	// SpecialLabel is the replacement prefix under PolicySpecialLabel.
	SpecialLabel string

	// Concurrency bounds simultaneous library mutations, clamped to
	// [1, 20].
	Concurrency int
}

// Syncer reconciles library labels against watchlist ownership.
type Syncer struct {
	store   Store
	library Library
	bus     *progress.Bus
	cfg     Config
}

// New constructs a Syncer. bus may be nil in tests.
func New(st Store, library Library, bus *progress.Bus, cfg Config) *Syncer {
	if cfg.Prefix == "" {
		cfg.Prefix = "pulsarr"
	}
	if cfg.RemovedUserPolicy == "" {
		cfg.RemovedUserPolicy = PolicyRemove
	}
	if cfg.SpecialLabel == "" {
		cfg.SpecialLabel = "removed"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.Concurrency > 20 {
		cfg.Concurrency = 20
	}
	return &Syncer{store: st, library: library, bus: bus, cfg: cfg}
}

// userLabel renders the label for one owner.
func (s *Syncer) userLabel(username string) string {
	return s.cfg.Prefix + ":" + strings.ToLower(username)
}

func (s *Syncer) removedLabel(username string) string {
	return s.cfg.SpecialLabel + ":" + strings.ToLower(username)
}

// owned reports whether a label belongs to this system's namespace.
func (s *Syncer) owned(label string) bool {
	return strings.HasPrefix(label, s.cfg.Prefix+":") || strings.HasPrefix(label, s.cfg.SpecialLabel+":")
}

// contentGroup is one piece of content with every user watching it.
type contentGroup struct {
	guids  []string
	owners []string
	itemID int // representative watchlist item id for tracking rows
}

// Sync runs one full label reconcile pass.
func (s *Syncer) Sync(ctx context.Context) error {
	opID := fmt.Sprintf("label-sync-%d", time.Now().UnixNano())
	s.publish(ctx, opID, "start", 0, "label sync started")

	groups, err := s.groupByContent(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, group := range groups {
		g.Go(func() error {
			if err := s.syncGroup(gctx, group); err != nil {
				logging.Warn().Err(err).Str("component", "label-sync").
					Strs("guids", group.guids).Msg("group sync failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.publish(ctx, opID, "done", 100, fmt.Sprintf("synced %d content groups", len(groups)))
	return nil
}

// groupByContent folds watchlist items into per-content owner sets keyed
// by GUID overlap.
func (s *Syncer) groupByContent(ctx context.Context) ([]contentGroup, error) {
	items, err := s.store.ListAllWatchlistItems(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	nameByID := make(map[int]string, len(users))
	for _, u := range users {
		nameByID[u.ID] = u.Name
	}

	byKey := make(map[string]*contentGroup)
	var order []string
	for i := range items {
		item := &items[i]
		if len(item.GUIDs) == 0 {
			continue
		}
		owner, ok := nameByID[item.UserID]
		if !ok {
			continue
		}
		group, seen := byKey[item.Key]
		if !seen {
			group = &contentGroup{guids: item.GUIDs, itemID: item.ID}
			byKey[item.Key] = group
			order = append(order, item.Key)
		}
		group.owners = append(group.owners, owner)
	}

	out := make([]contentGroup, 0, len(order))
	for _, key := range order {
		g := byKey[key]
		sort.Strings(g.owners)
		out = append(out, *g)
	}
	return out, nil
}

// syncGroup reconciles one content's labels on every matched library
// entity.
func (s *Syncer) syncGroup(ctx context.Context, group contentGroup) error {
	entities, err := s.findEntities(ctx, group.guids)
	if err != nil {
		return err
	}

	desired := make(map[string]struct{}, len(group.owners))
	for _, owner := range group.owners {
		desired[s.userLabel(owner)] = struct{}{}
	}

	for _, entity := range entities {
		if err := s.applyDelta(ctx, entity, desired, group.itemID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) findEntities(ctx context.Context, guids []string) ([]plex.LibraryItem, error) {
	seen := make(map[string]struct{})
	var out []plex.LibraryItem
	for _, guid := range guids {
		entities, err := s.library.FindByGUID(ctx, guid)
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			if _, dup := seen[e.RatingKey]; dup {
				continue
			}
			seen[e.RatingKey] = struct{}{}
			out = append(out, e)
		}
	}
	return out, nil
}

// applyDelta computes and applies one entity's label changes: add
// missing desired labels, and handle stale tracked labels per policy.
// Labels the system never applied are left alone.
func (s *Syncer) applyDelta(ctx context.Context, entity plex.LibraryItem, desired map[string]struct{}, itemID int) error {
	tracked, err := s.store.ListLabelTracking(ctx, entity.RatingKey)
	if err != nil {
		return err
	}
	trackedSet := make(map[string]struct{}, len(tracked))
	for _, t := range tracked {
		trackedSet[t.LabelApplied] = struct{}{}
	}

	// Labels this system applies are lowercase by construction; foreign
	// labels keep their original casing untouched.
	next := make(map[string]struct{}, len(entity.Labels))
	for _, l := range entity.Labels {
		if s.owned(strings.ToLower(l)) {
			next[strings.ToLower(l)] = struct{}{}
		} else {
			next[l] = struct{}{}
		}
	}
	changed := false
	var toTrack, toUntrack []string

	for label := range desired {
		if _, ok := next[label]; !ok {
			next[label] = struct{}{}
			changed = true
		}
		if _, ok := trackedSet[label]; !ok {
			toTrack = append(toTrack, label)
		}
	}

	// Stale: tracked by us, still on the entity, no longer desired.
	for label := range trackedSet {
		if _, want := desired[label]; want {
			continue
		}
		if _, present := next[label]; !present {
			toUntrack = append(toUntrack, label)
			continue
		}
		switch s.cfg.RemovedUserPolicy {
		case PolicyKeep:
			// Retained for history; tracking stays so Remove can still
			// clean it later.
		case PolicySpecialLabel:
			delete(next, label)
			replacement := s.removedLabel(strings.TrimPrefix(label, s.cfg.Prefix+":"))
			next[replacement] = struct{}{}
			toTrack = append(toTrack, replacement)
			toUntrack = append(toUntrack, label)
			changed = true
		default: // PolicyRemove
			delete(next, label)
			toUntrack = append(toUntrack, label)
			changed = true
		}
	}

	if changed {
		if err := s.library.SetLabels(ctx, entity.RatingKey, entity.SectionID, setToSorted(next)); err != nil {
			return err
		}
	}
	for _, label := range toTrack {
		if err := s.store.UpsertLabelTracking(ctx, models.LabelTracking{
			WatchlistItemID: itemID, PlexRatingKey: entity.RatingKey, LabelApplied: label,
		}); err != nil {
			return err
		}
	}
	for _, label := range toUntrack {
		for _, t := range tracked {
			if t.LabelApplied == label {
				if err := s.store.DeleteLabelTracking(ctx, t); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Cleanup removes tracking rows whose watchlist items are gone. The
// labels those rows recorded are not removed from the library.
func (s *Syncer) Cleanup(ctx context.Context) error {
	n, err := s.store.DeleteOrphanedLabelTracking(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Info().Str("component", "label-sync").Int("orphans", n).Msg("cleaned orphaned label tracking")
	}
	return nil
}

// Remove deletes every system-applied label from the library and clears
// the tracking table.
func (s *Syncer) Remove(ctx context.Context) error {
	opID := fmt.Sprintf("label-remove-%d", time.Now().UnixNano())
	s.publish(ctx, opID, "start", 0, "removing all applied labels")

	tracked, err := s.store.ListLabelTracking(ctx, "")
	if err != nil {
		return err
	}

	byRatingKey := make(map[string][]models.LabelTracking)
	for _, t := range tracked {
		byRatingKey[t.PlexRatingKey] = append(byRatingKey[t.PlexRatingKey], t)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for ratingKey, rows := range byRatingKey {
		g.Go(func() error {
			return s.removeTracked(gctx, ratingKey, rows)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.publish(ctx, opID, "done", 100, fmt.Sprintf("removed labels from %d entities", len(byRatingKey)))
	return nil
}

// removeTracked strips only the labels this system applied; anything
// else on the entity survives.
func (s *Syncer) removeTracked(ctx context.Context, ratingKey string, rows []models.LabelTracking) error {
	entity, err := s.library.GetItem(ctx, ratingKey)
	if err != nil || entity == nil {
		logging.Warn().Err(err).Str("component", "label-sync").
			Str("rating_key", ratingKey).Msg("entity lookup failed during removal")
		return nil
	}

	trackedSet := make(map[string]struct{}, len(rows))
	for _, t := range rows {
		trackedSet[t.LabelApplied] = struct{}{}
	}
	remaining := make(map[string]struct{})
	for _, l := range entity.Labels {
		if _, ours := trackedSet[strings.ToLower(l)]; !ours {
			remaining[l] = struct{}{}
		}
	}

	if err := s.library.SetLabels(ctx, ratingKey, entity.SectionID, setToSorted(remaining)); err != nil {
		logging.Warn().Err(err).Str("component", "label-sync").
			Str("rating_key", ratingKey).Msg("label removal failed")
		return nil
	}
	for _, t := range rows {
		if err := s.store.DeleteLabelTracking(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) publish(ctx context.Context, opID, phase string, pct int, msg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, progress.Event{
		OperationID: opID, Type: progress.TypeSync, Phase: phase, Progress: pct, Message: msg,
	})
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
