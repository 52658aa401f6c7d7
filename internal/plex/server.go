// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
)

// Server talks to the user's own media server: matching library entities
// by GUID, mutating labels, and reading playback sessions for rolling
// monitoring.
type Server struct {
	baseURL string
	token   string
	rl      *ratelimit.Client
}

// NewServer constructs a Server over the shared rate-limited transport.
func NewServer(baseURL, token string, rl *ratelimit.Client) *Server {
	return &Server{baseURL: baseURL, token: token, rl: rl}
}

// LibraryItem is one library entity with its current labels.
type LibraryItem struct {
	RatingKey string
	Title     string
	GUIDs     []string
	Labels    []string
	SectionID int
}

// Session is one in-progress playback, reduced to what rolling monitoring
// expansion needs.
type Session struct {
	UserUUID     string
	RatingKey    string
	GUIDs        []string
	SeasonNumber int
	EpisodeIndex int
	// EpisodeCount is the season's total episodes when the server
	// reports it, else zero.
	EpisodeCount int
}

func (s *Server) get(ctx context.Context, path string, query url.Values, out any) error {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("plex: create server request: %w", err)
	}
	req.Header.Set("X-Plex-Token", s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.rl.Do(ctx, req)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("plex: decode server response: %w", err)
		}
	}
	return nil
}

type libraryContainer struct {
	MediaContainer struct {
		Metadata []struct {
			RatingKey        string `json:"ratingKey"`
			Title            string `json:"title"`
			LibrarySectionID int    `json:"librarySectionID"`
			GUID             []struct {
				ID string `json:"id"`
			} `json:"Guid"`
			Label []struct {
				Tag string `json:"tag"`
			} `json:"Label"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// FindByGUID searches the whole library for entities carrying guid
// (normalized "source:value" form).
func (s *Server) FindByGUID(ctx context.Context, guid string) ([]LibraryItem, error) {
	q := url.Values{}
	// The server's search wants the "source://value" form back.
	q.Set("guid", denormalizeGUID(guid))

	var container libraryContainer
	if err := s.get(ctx, "/library/all", q, &container); err != nil {
		return nil, err
	}
	return containerToLibraryItems(container), nil
}

func containerToLibraryItems(container libraryContainer) []LibraryItem {
	items := make([]LibraryItem, 0, len(container.MediaContainer.Metadata))
	for _, m := range container.MediaContainer.Metadata {
		item := LibraryItem{
			RatingKey: m.RatingKey,
			Title:     m.Title,
			SectionID: m.LibrarySectionID,
		}
		for _, g := range m.GUID {
			item.GUIDs = append(item.GUIDs, rewriteGUID(g.ID))
		}
		item.GUIDs = models.NormalizeGUIDs(item.GUIDs)
		for _, l := range m.Label {
			item.Labels = append(item.Labels, l.Tag)
		}
		items = append(items, item)
	}
	return items
}

func denormalizeGUID(guid string) string {
	for i := 0; i < len(guid); i++ {
		if guid[i] == ':' {
			return guid[:i] + "://" + guid[i+1:]
		}
	}
	return guid
}

// GetItem fetches one library entity by rating key.
func (s *Server) GetItem(ctx context.Context, ratingKey string) (*LibraryItem, error) {
	var container libraryContainer
	if err := s.get(ctx, "/library/metadata/"+url.PathEscape(ratingKey), nil, &container); err != nil {
		return nil, err
	}
	items := containerToLibraryItems(container)
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// SetLabels replaces the label set on one library entity. The server API
// is whole-set assignment, so callers compute the desired set first.
func (s *Server) SetLabels(ctx context.Context, ratingKey string, sectionID int, labels []string) error {
	q := url.Values{}
	q.Set("type", "1")
	q.Set("id", ratingKey)
	q.Set("includeExternalMedia", "1")
	for i, label := range labels {
		q.Set(fmt.Sprintf("label[%d].tag.tag", i), label)
	}
	if len(labels) == 0 {
		q.Set("label[].tag.tag-", "")
	}

	u := fmt.Sprintf("%s/library/sections/%d/all?%s", s.baseURL, sectionID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("plex: create label request: %w", err)
	}
	req.Header.Set("X-Plex-Token", s.token)

	_, err = s.rl.Do(ctx, req)
	return err
}

type sessionContainer struct {
	MediaContainer struct {
		Metadata []struct {
			Type             string `json:"type"`
			RatingKey        string `json:"ratingKey"`
			GrandparentKey   string `json:"grandparentRatingKey"`
			ParentIndex      int    `json:"parentIndex"`
			Index            int    `json:"index"`
			GrandparentGUID  string `json:"grandparentGuid"`
			ParentLeafCount  int    `json:"parentLeafCount"`
			User             struct {
				ID string `json:"id"`
			} `json:"User"`
			GUID []struct {
				ID string `json:"id"`
			} `json:"Guid"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// Sessions returns in-progress episode playbacks, keyed to the show they
// belong to so rolling monitoring can match them to watchlist items.
func (s *Server) Sessions(ctx context.Context) ([]Session, error) {
	var container sessionContainer
	if err := s.get(ctx, "/status/sessions", nil, &container); err != nil {
		return nil, err
	}

	var sessions []Session
	for _, m := range container.MediaContainer.Metadata {
		if m.Type != "episode" {
			continue
		}
		sess := Session{
			UserUUID:     m.User.ID,
			RatingKey:    m.GrandparentKey,
			SeasonNumber: m.ParentIndex,
			EpisodeIndex: m.Index,
			EpisodeCount: m.ParentLeafCount,
		}
		if m.GrandparentGUID != "" {
			sess.GUIDs = append(sess.GUIDs, rewriteGUID(m.GrandparentGUID))
		}
		for _, g := range m.GUID {
			sess.GUIDs = append(sess.GUIDs, rewriteGUID(g.ID))
		}
		sess.GUIDs = models.NormalizeGUIDs(sess.GUIDs)
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// TestConnection verifies the server is reachable with the configured
// token.
func (s *Server) TestConnection(ctx context.Context) error {
	return s.get(ctx, "/identity", nil, nil)
}
