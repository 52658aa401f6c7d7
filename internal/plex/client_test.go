// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plex

import (
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
)

func testRLClient() *ratelimit.Client {
	gov := ratelimit.NewGovernor()
	gov.Configure("plex-test", ratelimit.FamilyConfig{RequestsPerSecond: 1000, Burst: 1000})
	return ratelimit.NewClient(gov, "plex-test", &http.Client{}, ratelimit.DefaultRetryConfig())
}

func TestSelfWatchlistPagesAndDedupes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok", r.Header.Get("X-Plex-Token"))
		start := r.URL.Query().Get("X-Plex-Container-Start")
		w.Header().Set("Content-Type", "application/json")
		if start == "0" {
			fmt.Fprint(w, `{"MediaContainer":{"totalSize":150,"Metadata":[
				{"ratingKey":"k1","title":"One","type":"movie","addedAt":100,
				 "Guid":[{"id":"tmdb://10"},{"id":"IMDB://tt1"}],"Genre":[{"tag":"Action"}]},
				{"ratingKey":"k2","title":"Two","type":"show"}]}}`)
			return
		}
		// Second page repeats k2 and adds k3.
		fmt.Fprint(w, `{"MediaContainer":{"totalSize":150,"Metadata":[
			{"ratingKey":"k2","title":"Two","type":"show"},
			{"ratingKey":"k3","title":"Three","type":"movie"}]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "tok", testRLClient())
	items, err := c.SelfWatchlist(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "k1", items[0].Key)
	assert.Equal(t, models.ContentTypeMovie, items[0].Type)
	assert.Equal(t, []string{"tmdb:10", "imdb:tt1"}, items[0].GUIDs)
	assert.Equal(t, []string{"Action"}, items[0].Genres)
	assert.Equal(t, models.ContentTypeShow, items[1].Type)
	assert.Equal(t, "k3", items[2].Key)
}

func TestRSSWatchlistFallsBackToGUIDKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"title":"Example","category":"movie","guids":["tmdb://42","imdb://tt42"]},
			{"title":"NoGuid","category":"movie","guids":[]},
			{"title":"Example","category":"movie","guids":["tmdb://42"]}]}`)
	}))
	defer srv.Close()

	c := NewClient("", "", "tok", testRLClient())
	items, err := c.RSSWatchlist(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, items, 1, "guid-less and duplicate entries are dropped")
	assert.Equal(t, "tmdb:42", items[0].Key)
	assert.Equal(t, []string{"tmdb:42", "imdb:tt42"}, items[0].GUIDs)
}

func TestRSSWatchlistHandlesGzipFeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, `{"items":[{"title":"Zipped","category":"show","guids":["tvdb://9"]}]}`)
		require.NoError(t, gz.Close())
	}))
	defer srv.Close()

	c := NewClient("", "", "tok", testRLClient())
	items, err := c.RSSWatchlist(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "tvdb:9", items[0].Key)
	assert.Equal(t, models.ContentTypeShow, items[0].Type)
}

func TestRSSWatchlistEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("", "", "tok", testRLClient())
	_, err := c.RSSWatchlist(context.Background(), srv.URL)
	assert.ErrorIs(t, err, errs.ErrEmptyResponseBody)
}

func TestFindByGUIDRewritesForms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tmdb://42", r.URL.Query().Get("guid"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"MediaContainer":{"Metadata":[
			{"ratingKey":"rk1","title":"Example","librarySectionID":2,
			 "Guid":[{"id":"tmdb://42"}],"Label":[{"tag":"pulsarr:alice"}]}]}}`)
	}))
	defer srv.Close()

	s := NewServer(srv.URL, "tok", testRLClient())
	items, err := s.FindByGUID(context.Background(), "tmdb:42")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"tmdb:42"}, items[0].GUIDs)
	assert.Equal(t, []string{"pulsarr:alice"}, items[0].Labels)
	assert.Equal(t, 2, items[0].SectionID)
}
