// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package arr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
)

func testRL() *ratelimit.Client {
	gov := ratelimit.NewGovernor()
	gov.Configure("arr-test", ratelimit.FamilyConfig{RequestsPerSecond: 1000, Burst: 1000})
	return ratelimit.NewClient(gov, "arr-test", &http.Client{}, ratelimit.DefaultRetryConfig())
}

func TestEnsureTagsCreatesMissing(t *testing.T) {
	var created []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v3/tag":
			fmt.Fprint(w, `[{"id":1,"label":"existing"}]`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v3/tag":
			var tag Tag
			require.NoError(t, json.NewDecoder(r.Body).Decode(&tag))
			created = append(created, tag.Label)
			fmt.Fprintf(w, `{"id":%d,"label":%q}`, 10+len(created), tag.Label)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewRadarr(srv.URL, "key", testRL())
	ids, err := c.EnsureTags(context.Background(), []string{"existing", "new-tag"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 11}, ids)
	assert.Equal(t, []string{"new-tag"}, created)
}

func TestAddMovieCarriesRoutingFields(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/movie", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":5,"tmdbId":42,"title":"Example"}`)
	}))
	defer srv.Close()

	c := NewRadarr(srv.URL, "key", testRL())
	movie, err := c.AddMovie(context.Background(), AddMovieRequest{
		TMDBID: 42, Title: "Example", RootFolder: "/movies",
		QualityProfileID: 3, SearchOnAdd: true,
		Monitor: "movieOnly", MinimumAvailability: "inCinemas",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, movie.ID)

	assert.Equal(t, "/movies", payload["rootFolderPath"])
	assert.Equal(t, "inCinemas", payload["minimumAvailability"])
	addOptions := payload["addOptions"].(map[string]any)
	assert.Equal(t, true, addOptions["searchForMovie"])
}

func TestAddSeriesDefaults(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/series", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":9,"tvdbId":99}`)
	}))
	defer srv.Close()

	c := NewSonarr(srv.URL, "key", testRL())
	_, err := c.AddSeries(context.Background(), AddSeriesRequest{TVDBID: 99, Title: "Show"})
	require.NoError(t, err)

	assert.Equal(t, "standard", payload["seriesType"])
	addOptions := payload["addOptions"].(map[string]any)
	assert.Equal(t, "all", addOptions["monitor"])
}

func TestInstallWebhookReplacesExisting(t *testing.T) {
	var deleted, posted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v3/notification":
			fmt.Fprint(w, `[{"id":4,"name":"pulsarr"},{"id":5,"name":"other"}]`)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v3/notification/4":
			deleted = true
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v3/notification":
			posted = true
			fmt.Fprint(w, `{}`)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewSonarr(srv.URL, "key", testRL())
	require.NoError(t, c.InstallWebhook(context.Background(), "pulsarr", "http://bridge/webhook"))
	assert.True(t, deleted, "existing webhook with the same name removed first")
	assert.True(t, posted)
}

func TestGUIDRendering(t *testing.T) {
	s := Series{TVDBID: 9, IMDBID: "tt9"}
	assert.Equal(t, []string{"tvdb:9", "imdb:tt9"}, s.GUIDs())

	m := Movie{TMDBID: 42}
	assert.Equal(t, []string{"tmdb:42"}, m.GUIDs())
}
