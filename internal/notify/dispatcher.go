// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify fans availability events out to the configured channels
// with idempotence per (user, type, title, season, episode). Concrete
// transports live behind the Channel interface; this package owns
// de-duplication, per-user flag filtering, sync-duplicate detection, and
// atomic outcome recording.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/store"
)

// statusActive marks a record whose de-dup key currently suppresses
// repeats; statusSynced marks a suppressed duplicate of content another
// user already acquired.
const (
	statusActive = "active"
	statusSynced = "synced"
)

// Channel is one notification transport. Name is the SentTo bucket:
// "chat", "email", "webhook", or "push".
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notification is the transport-facing payload.
type Notification struct {
	User    *models.User
	Type    models.NotificationType
	Title   string
	Season  *int
	Episode *int
}

// Store is the persistence the dispatcher needs. De-dup lookup and
// outcome insert run inside one transaction per event.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindNotification(ctx context.Context, key models.NotificationKey) (*models.NotificationRecord, error)
	CreateNotification(ctx context.Context, rec *models.NotificationRecord) error
	BulkUpdateWatchlistItems(ctx context.Context, updates []store.WatchlistUpdate) error
	ListAllWatchlistItems(ctx context.Context) ([]models.WatchlistItem, error)
	GetUser(ctx context.Context, id int) (*models.User, error)
}

// Dispatcher routes events to channels.
type Dispatcher struct {
	store    Store
	channels []Channel
}

// New constructs a Dispatcher over the configured channels.
func New(st Store, channels []Channel) *Dispatcher {
	return &Dispatcher{store: st, channels: channels}
}

// Event is one dispatch request.
type Event struct {
	Item    *models.WatchlistItem
	User    *models.User
	Type    models.NotificationType
	Title   string
	Season  *int
	Episode *int

	// SyncedDuplicate marks content acquired via another user's request;
	// the event is recorded but every channel is suppressed.
	SyncedDuplicate bool
}

// Dispatch sends one event. A record already in active status for the
// de-dup key suppresses the send entirely. The send outcome per channel
// is recorded atomically with the de-dup insert.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	key := models.NotificationKey{
		UserID: ev.User.ID, Type: ev.Type, Title: ev.Title,
		Season: ev.Season, Episode: ev.Episode,
	}

	return d.store.WithTx(ctx, func(ctx context.Context) error {
		existing, err := d.store.FindNotification(ctx, key)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		if existing != nil && existing.NotificationStatus == statusActive {
			logging.Debug().Str("component", "notifier").Str("title", ev.Title).
				Int("user_id", ev.User.ID).Msg("duplicate suppressed")
			return nil
		}

		rec := &models.NotificationRecord{
			UserID: &ev.User.ID, Type: ev.Type, Title: ev.Title,
			Season: ev.Season, Episode: ev.Episode,
			NotificationStatus: statusActive,
		}
		if ev.Item != nil {
			rec.WatchlistItemID = &ev.Item.ID
		}

		if ev.SyncedDuplicate {
			rec.NotificationStatus = statusSynced
		} else {
			rec.SentTo = d.send(ctx, ev)
		}

		if err := d.store.CreateNotification(ctx, rec); err != nil {
			return err
		}

		if ev.Item != nil && !ev.SyncedDuplicate {
			d.advanceItem(ctx, ev.Item)
		}
		return nil
	})
}

// send delivers to every channel the user's flags allow, recording which
// succeeded. Channel failures are isolated.
func (d *Dispatcher) send(ctx context.Context, ev Event) models.SentTo {
	var sent models.SentTo
	n := Notification{User: ev.User, Type: ev.Type, Title: ev.Title, Season: ev.Season, Episode: ev.Episode}

	for _, ch := range d.channels {
		if !d.channelAllowed(ch.Name(), ev.User) {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			logging.Warn().Err(err).Str("component", "notifier").
				Str("channel", ch.Name()).Str("title", ev.Title).Msg("channel send failed")
			continue
		}
		switch ch.Name() {
		case "chat":
			sent.Chat = true
		case "email":
			sent.Email = true
		case "webhook":
			sent.Webhook = true
		case "push":
			sent.Push = true
		}
	}
	return sent
}

// channelAllowed applies the user's notify flags; webhooks are
// system-level and always allowed.
func (d *Dispatcher) channelAllowed(name string, user *models.User) bool {
	switch name {
	case "chat":
		return user.NotifyFlags.Chat && user.ChatID != nil
	case "email":
		return user.NotifyFlags.Email && user.Email != nil
	case "push":
		return user.NotifyFlags.Push
	case "webhook":
		return true
	default:
		return false
	}
}

// NotifyGrabbed walks items that reached grabbed and dispatches one
// availability event per (user, item). Duplicate content grabbed for a
// second user is recorded as a synced duplicate. Wired as a scheduled
// job after each reconcile pass.
func (d *Dispatcher) NotifyGrabbed(ctx context.Context) error {
	items, err := d.store.ListAllWatchlistItems(ctx)
	if err != nil {
		return err
	}

	// Titles already announced in this pass: further users with the same
	// content become synced duplicates.
	announced := make(map[string]struct{})

	for i := range items {
		item := &items[i]
		if item.Status != models.StatusGrabbed {
			continue
		}
		user, err := d.store.GetUser(ctx, item.UserID)
		if err != nil {
			logging.Warn().Err(err).Str("component", "notifier").Int("item_id", item.ID).Msg("user lookup failed")
			continue
		}

		typ := models.NotifyMovie
		if item.Type == models.ContentTypeShow {
			typ = models.NotifySeason
		}
		_, dup := announced[item.Key]
		announced[item.Key] = struct{}{}

		if err := d.Dispatch(ctx, Event{
			Item: item, User: user, Type: typ, Title: item.Title,
			SyncedDuplicate: dup,
		}); err != nil {
			logging.Warn().Err(err).Str("component", "notifier").
				Str("title", item.Title).Msg("dispatch failed")
		}
	}
	return nil
}

// advanceItem moves the notified item forward on the lifecycle DAG and
// stamps last_notified_at. Failures are logged, not propagated: the
// notification already went out.
func (d *Dispatcher) advanceItem(ctx context.Context, item *models.WatchlistItem) {
	notified := models.StatusNotified
	now := time.Now().UTC()
	if err := d.store.BulkUpdateWatchlistItems(ctx, []store.WatchlistUpdate{
		{UserID: item.UserID, Key: item.Key, Status: &notified, LastNotifiedAt: &now},
	}); err != nil {
		logging.Warn().Err(err).Str("component", "notifier").
			Int("item_id", item.ID).Msg("status advance after notification failed")
	}
}
