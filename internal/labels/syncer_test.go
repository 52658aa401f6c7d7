// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package labels

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/plex"
	"github.com/jamcalli/Pulsarr-sub009/internal/store/fake"
)

// fakeLibrary is an in-memory media server: entities keyed by guid, with
// mutable label sets.
type fakeLibrary struct {
	mu       sync.Mutex
	entities map[string]*plex.LibraryItem // by rating key
	byGUID   map[string][]string          // guid -> rating keys
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		entities: map[string]*plex.LibraryItem{},
		byGUID:   map[string][]string{},
	}
}

func (f *fakeLibrary) add(ratingKey string, guids, labels []string) {
	f.entities[ratingKey] = &plex.LibraryItem{
		RatingKey: ratingKey, GUIDs: guids, Labels: labels, SectionID: 1,
	}
	for _, g := range guids {
		f.byGUID[g] = append(f.byGUID[g], ratingKey)
	}
}

func (f *fakeLibrary) FindByGUID(_ context.Context, guid string) ([]plex.LibraryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []plex.LibraryItem
	for _, rk := range f.byGUID[guid] {
		out = append(out, *f.entities[rk])
	}
	return out, nil
}

func (f *fakeLibrary) GetItem(_ context.Context, ratingKey string) (*plex.LibraryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[ratingKey]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeLibrary) SetLabels(_ context.Context, ratingKey string, _ int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entities[ratingKey]; ok {
		e.Labels = labels
	}
	return nil
}

func seedWatcher(t *testing.T, st *fake.Store, name, key string, guids []string) *models.WatchlistItem {
	t.Helper()
	ctx := context.Background()
	user := &models.User{Name: name}
	require.NoError(t, st.CreateUser(ctx, user))
	item := &models.WatchlistItem{
		UserID: user.ID, Key: key, Title: key,
		Type: models.ContentTypeMovie, GUIDs: guids,
	}
	require.NoError(t, st.CreateWatchlistItem(ctx, item))
	return item
}

func TestSyncAppliesOwnerLabels(t *testing.T) {
	st := fake.New()
	lib := newFakeLibrary()
	lib.add("rk1", []string{"tmdb:10"}, []string{"4K"})
	seedWatcher(t, st, "Alice", "k1", []string{"tmdb:10"})

	s := New(st, lib, nil, Config{Prefix: "pulsarr"})
	require.NoError(t, s.Sync(context.Background()))

	entity, err := lib.GetItem(context.Background(), "rk1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"4K", "pulsarr:alice"}, entity.Labels)

	tracked, err := st.ListLabelTracking(context.Background(), "rk1")
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "pulsarr:alice", tracked[0].LabelApplied)
}

func TestSyncRemovesStaleTrackedLabelOnly(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	lib := newFakeLibrary()
	item := seedWatcher(t, st, "Alice", "k1", []string{"tmdb:10"})

	// "pulsarr:bob" is tracked (bob used to watch); "curator" is a label
	// the system never applied.
	lib.add("rk1", []string{"tmdb:10"}, []string{"pulsarr:alice", "pulsarr:bob", "curator"})
	require.NoError(t, st.UpsertLabelTracking(ctx, models.LabelTracking{
		WatchlistItemID: item.ID, PlexRatingKey: "rk1", LabelApplied: "pulsarr:alice",
	}))
	require.NoError(t, st.UpsertLabelTracking(ctx, models.LabelTracking{
		WatchlistItemID: item.ID, PlexRatingKey: "rk1", LabelApplied: "pulsarr:bob",
	}))

	s := New(st, lib, nil, Config{Prefix: "pulsarr", RemovedUserPolicy: PolicyRemove})
	require.NoError(t, s.Sync(ctx))

	entity, _ := lib.GetItem(ctx, "rk1")
	assert.ElementsMatch(t, []string{"pulsarr:alice", "curator"}, entity.Labels)

	tracked, err := st.ListLabelTracking(ctx, "rk1")
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "pulsarr:alice", tracked[0].LabelApplied)
}

func TestSyncSpecialLabelPolicy(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	lib := newFakeLibrary()
	item := seedWatcher(t, st, "Alice", "k1", []string{"tmdb:10"})

	lib.add("rk1", []string{"tmdb:10"}, []string{"pulsarr:alice", "pulsarr:bob"})
	require.NoError(t, st.UpsertLabelTracking(ctx, models.LabelTracking{
		WatchlistItemID: item.ID, PlexRatingKey: "rk1", LabelApplied: "pulsarr:bob",
	}))

	s := New(st, lib, nil, Config{
		Prefix: "pulsarr", RemovedUserPolicy: PolicySpecialLabel, SpecialLabel: "removed",
	})
	require.NoError(t, s.Sync(ctx))

	entity, _ := lib.GetItem(ctx, "rk1")
	assert.Contains(t, entity.Labels, "removed:bob")
	assert.NotContains(t, entity.Labels, "pulsarr:bob")
}

func TestSyncKeepPolicyRetainsLabel(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	lib := newFakeLibrary()
	item := seedWatcher(t, st, "Alice", "k1", []string{"tmdb:10"})

	lib.add("rk1", []string{"tmdb:10"}, []string{"pulsarr:alice", "pulsarr:bob"})
	require.NoError(t, st.UpsertLabelTracking(ctx, models.LabelTracking{
		WatchlistItemID: item.ID, PlexRatingKey: "rk1", LabelApplied: "pulsarr:bob",
	}))

	s := New(st, lib, nil, Config{Prefix: "pulsarr", RemovedUserPolicy: PolicyKeep})
	require.NoError(t, s.Sync(ctx))

	entity, _ := lib.GetItem(ctx, "rk1")
	assert.Contains(t, entity.Labels, "pulsarr:bob")
}

func TestRemoveStripsOnlyTrackedLabels(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	lib := newFakeLibrary()
	item := seedWatcher(t, st, "Alice", "k1", []string{"tmdb:10"})

	lib.add("rk1", []string{"tmdb:10"}, []string{"pulsarr:alice", "4K"})
	require.NoError(t, st.UpsertLabelTracking(ctx, models.LabelTracking{
		WatchlistItemID: item.ID, PlexRatingKey: "rk1", LabelApplied: "pulsarr:alice",
	}))

	s := New(st, lib, nil, Config{Prefix: "pulsarr"})
	require.NoError(t, s.Remove(ctx))

	entity, _ := lib.GetItem(ctx, "rk1")
	assert.Equal(t, []string{"4K"}, entity.Labels)

	tracked, err := st.ListLabelTracking(ctx, "rk1")
	require.NoError(t, err)
	assert.Empty(t, tracked, "apply-then-remove leaves no tracking rows")
}

func TestCleanupDropsOrphans(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	require.NoError(t, st.UpsertLabelTracking(ctx, models.LabelTracking{
		WatchlistItemID: 999, PlexRatingKey: "rk9", LabelApplied: "pulsarr:ghost",
	}))

	s := New(st, newFakeLibrary(), nil, Config{})
	require.NoError(t, s.Cleanup(ctx))

	tracked, err := st.ListLabelTracking(ctx, "rk9")
	require.NoError(t, err)
	assert.Empty(t, tracked)
}
