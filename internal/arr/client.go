// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package arr implements the downstream manager protocol for the two
// flavors the router targets: Sonarr-like (series, season monitoring,
// series type) and Radarr-like (movies, minimum availability, monitor).
// One client is constructed per configured instance; every call rides
// the shared rate-limited transport under that instance's family.
package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
)

// client is the transport shared by both flavors.
type client struct {
	baseURL string
	apiKey  string
	rl      *ratelimit.Client
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("arr: marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("arr: create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.rl.Do(ctx, req)
	if err != nil {
		return err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("arr: decode response: %w", err)
		}
	}
	return nil
}

// Tag is one downstream tag definition.
type Tag struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// systemStatus is the minimal shape of /api/v3/system/status.
type systemStatus struct {
	Version string `json:"version"`
}

// TestConnection verifies the instance is reachable and the API key is
// accepted.
func (c *client) TestConnection(ctx context.Context) error {
	var status systemStatus
	return c.do(ctx, http.MethodGet, "/api/v3/system/status", nil, nil, &status)
}

// Tags lists the instance's tag definitions.
func (c *client) Tags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := c.do(ctx, http.MethodGet, "/api/v3/tag", nil, nil, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// EnsureTags resolves label strings to tag ids, creating any that do not
// exist yet.
func (c *client) EnsureTags(ctx context.Context, labels []string) ([]int, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	existing, err := c.Tags(ctx)
	if err != nil {
		return nil, err
	}
	byLabel := make(map[string]int, len(existing))
	for _, t := range existing {
		byLabel[t.Label] = t.ID
	}

	ids := make([]int, 0, len(labels))
	for _, label := range labels {
		if id, ok := byLabel[label]; ok {
			ids = append(ids, id)
			continue
		}
		var created Tag
		if err := c.do(ctx, http.MethodPost, "/api/v3/tag", nil, Tag{Label: label}, &created); err != nil {
			return nil, err
		}
		byLabel[label] = created.ID
		ids = append(ids, created.ID)
	}
	return ids, nil
}

// webhook is the notification definition both managers accept.
type webhook struct {
	ID     int    `json:"id,omitempty"`
	Name   string `json:"name"`
	Fields []struct {
		Name  string `json:"name"`
		Value any    `json:"value,omitempty"`
	} `json:"fields"`
	Implementation     string   `json:"implementation"`
	ConfigContract     string   `json:"configContract"`
	OnGrab             bool     `json:"onGrab"`
	OnDownload         bool     `json:"onDownload"`
	OnUpgrade          bool     `json:"onUpgrade"`
	Tags               []int    `json:"tags"`
}

// InstallWebhook registers (or re-registers) the bridge's webhook under
// name pointing at callbackURL.
func (c *client) InstallWebhook(ctx context.Context, name, callbackURL string) error {
	if err := c.RemoveWebhook(ctx, name); err != nil {
		return err
	}
	hook := map[string]any{
		"name":           name,
		"implementation": "Webhook",
		"configContract": "WebhookSettings",
		"onGrab":         true,
		"onDownload":     true,
		"onUpgrade":      true,
		"fields": []map[string]any{
			{"name": "url", "value": callbackURL},
			{"name": "method", "value": 1},
		},
	}
	return c.do(ctx, http.MethodPost, "/api/v3/notification", nil, hook, nil)
}

// RemoveWebhook deletes any webhook registered under name.
func (c *client) RemoveWebhook(ctx context.Context, name string) error {
	var hooks []webhook
	if err := c.do(ctx, http.MethodGet, "/api/v3/notification", nil, nil, &hooks); err != nil {
		return err
	}
	for _, h := range hooks {
		if h.Name == name {
			if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v3/notification/%d", h.ID), nil, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
