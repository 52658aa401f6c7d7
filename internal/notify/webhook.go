// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
)

// WebhookChannel posts events as JSON to a configured URL. It is the one
// transport implemented in-process; chat, email, and push arrive through
// external integrations behind the same Channel interface.
type WebhookChannel struct {
	url string
	rl  *ratelimit.Client
}

// NewWebhookChannel constructs a WebhookChannel.
func NewWebhookChannel(url string, rl *ratelimit.Client) *WebhookChannel {
	return &WebhookChannel{url: url, rl: rl}
}

func (w *WebhookChannel) Name() string { return "webhook" }

// Send posts the notification payload.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(map[string]any{
		"user":    n.User.Name,
		"type":    n.Type,
		"title":   n.Title,
		"season":  n.Season,
		"episode": n.Episode,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = w.rl.Do(ctx, req)
	return err
}
