// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package labels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/arr"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/progress"
)

// TaggerStore is the persistence surface the downstream tagger needs.
type TaggerStore interface {
	ListAllWatchlistItems(ctx context.Context) ([]models.WatchlistItem, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListInstances(ctx context.Context, targetType models.TargetType) ([]models.DownstreamInstance, error)
}

// SonarrTagAPI is the Sonarr-like tag surface, satisfied by
// *arr.SonarrClient.
type SonarrTagAPI interface {
	Series(ctx context.Context) ([]arr.Series, error)
	Tags(ctx context.Context) ([]arr.Tag, error)
	EnsureTags(ctx context.Context, labels []string) ([]int, error)
	SetSeriesTags(ctx context.Context, series *arr.Series, tagIDs []int) error
}

// RadarrTagAPI is the Radarr-like tag surface, satisfied by
// *arr.RadarrClient.
type RadarrTagAPI interface {
	Movies(ctx context.Context) ([]arr.Movie, error)
	Tags(ctx context.Context) ([]arr.Tag, error)
	EnsureTags(ctx context.Context, labels []string) ([]int, error)
	SetMovieTags(ctx context.Context, movie *arr.Movie, tagIDs []int) error
}

// TagClients resolves tag clients per instance.
type TagClients interface {
	SonarrTagger(inst *models.DownstreamInstance) SonarrTagAPI
	RadarrTagger(inst *models.DownstreamInstance) RadarrTagAPI
}

// Tagger mirrors watchlist ownership into downstream manager tags.
// SyncSonarr and SyncRadarr only add owner tags; they do not remove the
// tags of owners who no longer watch an item.
type Tagger struct {
	store   TaggerStore
	clients TagClients
	bus     *progress.Bus
	prefix  string
}

// NewTagger constructs a Tagger.
func NewTagger(st TaggerStore, clients TagClients, bus *progress.Bus, prefix string) *Tagger {
	if prefix == "" {
		prefix = "pulsarr"
	}
	return &Tagger{store: st, clients: clients, bus: bus, prefix: prefix}
}

func (t *Tagger) tagFor(username string) string {
	return t.prefix + ":" + strings.ToLower(username)
}

// ownersByGUIDs folds watchlist state into content owner names.
func (t *Tagger) ownersByGUIDs(ctx context.Context, contentType models.ContentType) (map[string][]string, error) {
	items, err := t.store.ListAllWatchlistItems(ctx)
	if err != nil {
		return nil, err
	}
	users, err := t.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	nameByID := make(map[int]string, len(users))
	for _, u := range users {
		nameByID[u.ID] = u.Name
	}

	owners := make(map[string][]string)
	for i := range items {
		item := &items[i]
		if item.Type != contentType {
			continue
		}
		name, ok := nameByID[item.UserID]
		if !ok {
			continue
		}
		for _, g := range item.GUIDs {
			owners[g] = append(owners[g], name)
		}
	}
	return owners, nil
}

// SyncSonarr applies owner tags on every Sonarr instance.
func (t *Tagger) SyncSonarr(ctx context.Context) error {
	opID := fmt.Sprintf("sonarr-tagging-%d", time.Now().UnixNano())
	t.publish(ctx, progress.TypeSonarrTagging, opID, "start", 0, "tagging sonarr series")

	owners, err := t.ownersByGUIDs(ctx, models.ContentTypeShow)
	if err != nil {
		return err
	}
	instances, err := t.store.ListInstances(ctx, models.TargetSonarr)
	if err != nil {
		return err
	}

	tagged := 0
	for i := range instances {
		api := t.clients.SonarrTagger(&instances[i])
		series, err := api.Series(ctx)
		if err != nil {
			logging.Warn().Err(err).Str("component", "arr-tagger").
				Str("instance", instances[i].Name).Msg("series fetch failed")
			continue
		}
		for j := range series {
			sr := &series[j]
			names := ownersFor(owners, models.NormalizeGUIDs(sr.GUIDs()))
			if len(names) == 0 {
				continue
			}
			labels := make([]string, 0, len(names))
			for _, n := range names {
				labels = append(labels, t.tagFor(n))
			}
			ids, err := api.EnsureTags(ctx, labels)
			if err != nil {
				logging.Warn().Err(err).Str("component", "arr-tagger").Str("series", sr.Title).Msg("tag resolution failed")
				continue
			}
			merged := mergeTagIDs(sr.Tags, ids)
			if len(merged) == len(sr.Tags) {
				continue
			}
			if err := api.SetSeriesTags(ctx, sr, merged); err != nil {
				logging.Warn().Err(err).Str("component", "arr-tagger").Str("series", sr.Title).Msg("tag write failed")
				continue
			}
			tagged++
		}
	}

	t.publish(ctx, progress.TypeSonarrTagging, opID, "done", 100, fmt.Sprintf("tagged %d series", tagged))
	return nil
}

// SyncRadarr applies owner tags on every Radarr instance.
func (t *Tagger) SyncRadarr(ctx context.Context) error {
	opID := fmt.Sprintf("radarr-tagging-%d", time.Now().UnixNano())
	t.publish(ctx, progress.TypeRadarrTagging, opID, "start", 0, "tagging radarr movies")

	owners, err := t.ownersByGUIDs(ctx, models.ContentTypeMovie)
	if err != nil {
		return err
	}
	instances, err := t.store.ListInstances(ctx, models.TargetRadarr)
	if err != nil {
		return err
	}

	tagged := 0
	for i := range instances {
		api := t.clients.RadarrTagger(&instances[i])
		movies, err := api.Movies(ctx)
		if err != nil {
			logging.Warn().Err(err).Str("component", "arr-tagger").
				Str("instance", instances[i].Name).Msg("movie fetch failed")
			continue
		}
		for j := range movies {
			mv := &movies[j]
			names := ownersFor(owners, models.NormalizeGUIDs(mv.GUIDs()))
			if len(names) == 0 {
				continue
			}
			labels := make([]string, 0, len(names))
			for _, n := range names {
				labels = append(labels, t.tagFor(n))
			}
			ids, err := api.EnsureTags(ctx, labels)
			if err != nil {
				logging.Warn().Err(err).Str("component", "arr-tagger").Str("movie", mv.Title).Msg("tag resolution failed")
				continue
			}
			merged := mergeTagIDs(mv.Tags, ids)
			if len(merged) == len(mv.Tags) {
				continue
			}
			if err := api.SetMovieTags(ctx, mv, merged); err != nil {
				logging.Warn().Err(err).Str("component", "arr-tagger").Str("movie", mv.Title).Msg("tag write failed")
				continue
			}
			tagged++
		}
	}

	t.publish(ctx, progress.TypeRadarrTagging, opID, "done", 100, fmt.Sprintf("tagged %d movies", tagged))
	return nil
}

// RemoveSonarrTags strips every owner tag from every Sonarr instance.
func (t *Tagger) RemoveSonarrTags(ctx context.Context) error {
	opID := fmt.Sprintf("sonarr-tag-removal-%d", time.Now().UnixNano())
	t.publish(ctx, progress.TypeSonarrTagRemoval, opID, "start", 0, "removing sonarr owner tags")

	instances, err := t.store.ListInstances(ctx, models.TargetSonarr)
	if err != nil {
		return err
	}
	for i := range instances {
		api := t.clients.SonarrTagger(&instances[i])
		ownedIDs, err := t.ownedTagIDs(ctx, api.Tags)
		if err != nil || len(ownedIDs) == 0 {
			continue
		}
		series, err := api.Series(ctx)
		if err != nil {
			continue
		}
		for j := range series {
			sr := &series[j]
			kept := withoutTagIDs(sr.Tags, ownedIDs)
			if len(kept) == len(sr.Tags) {
				continue
			}
			if err := api.SetSeriesTags(ctx, sr, kept); err != nil {
				logging.Warn().Err(err).Str("component", "arr-tagger").Str("series", sr.Title).Msg("tag removal failed")
			}
		}
	}

	t.publish(ctx, progress.TypeSonarrTagRemoval, opID, "done", 100, "sonarr owner tags removed")
	return nil
}

// RemoveRadarrTags strips every owner tag from every Radarr instance.
func (t *Tagger) RemoveRadarrTags(ctx context.Context) error {
	opID := fmt.Sprintf("radarr-tag-removal-%d", time.Now().UnixNano())
	t.publish(ctx, progress.TypeRadarrTagRemoval, opID, "start", 0, "removing radarr owner tags")

	instances, err := t.store.ListInstances(ctx, models.TargetRadarr)
	if err != nil {
		return err
	}
	for i := range instances {
		api := t.clients.RadarrTagger(&instances[i])
		ownedIDs, err := t.ownedTagIDs(ctx, api.Tags)
		if err != nil || len(ownedIDs) == 0 {
			continue
		}
		movies, err := api.Movies(ctx)
		if err != nil {
			continue
		}
		for j := range movies {
			mv := &movies[j]
			kept := withoutTagIDs(mv.Tags, ownedIDs)
			if len(kept) == len(mv.Tags) {
				continue
			}
			if err := api.SetMovieTags(ctx, mv, kept); err != nil {
				logging.Warn().Err(err).Str("component", "arr-tagger").Str("movie", mv.Title).Msg("tag removal failed")
			}
		}
	}

	t.publish(ctx, progress.TypeRadarrTagRemoval, opID, "done", 100, "radarr owner tags removed")
	return nil
}

// ownedTagIDs resolves the ids of every tag in this system's namespace.
func (t *Tagger) ownedTagIDs(ctx context.Context, list func(context.Context) ([]arr.Tag, error)) (map[int]struct{}, error) {
	tags, err := list(ctx)
	if err != nil {
		return nil, err
	}
	owned := make(map[int]struct{})
	for _, tag := range tags {
		if strings.HasPrefix(tag.Label, t.prefix+":") {
			owned[tag.ID] = struct{}{}
		}
	}
	return owned, nil
}

func ownersFor(owners map[string][]string, guids []string) []string {
	set := make(map[string]struct{})
	for _, g := range guids {
		for _, name := range owners[g] {
			set[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func mergeTagIDs(existing, add []int) []int {
	set := make(map[int]struct{}, len(existing)+len(add))
	out := make([]int, 0, len(existing)+len(add))
	for _, id := range existing {
		if _, ok := set[id]; !ok {
			set[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range add {
		if _, ok := set[id]; !ok {
			set[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func withoutTagIDs(existing []int, drop map[int]struct{}) []int {
	out := make([]int, 0, len(existing))
	for _, id := range existing {
		if _, gone := drop[id]; !gone {
			out = append(out, id)
		}
	}
	return out
}

func (t *Tagger) publish(ctx context.Context, typ progress.EventType, opID, phase string, pct int, msg string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(ctx, progress.Event{
		OperationID: opID, Type: typ, Phase: phase, Progress: pct, Message: msg,
	})
}
