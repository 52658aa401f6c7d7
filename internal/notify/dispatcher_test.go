// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/store/fake"
)

type recordingChannel struct {
	name string
	sent []Notification
	err  error
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, n Notification) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

func chatUser(t *testing.T, st *fake.Store) *models.User {
	t.Helper()
	chatID := "chat-1"
	u := &models.User{
		Name: "alice", ChatID: &chatID,
		NotifyFlags: models.NotifyFlags{Chat: true},
	}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func TestDispatchSendsOnceAndSuppressesRepeat(t *testing.T) {
	st := fake.New()
	user := chatUser(t, st)
	chat := &recordingChannel{name: "chat"}
	d := New(st, []Channel{chat})
	ctx := context.Background()

	ev := Event{User: user, Type: models.NotifyMovie, Title: "Example"}
	require.NoError(t, d.Dispatch(ctx, ev))
	require.NoError(t, d.Dispatch(ctx, ev))

	assert.Len(t, chat.sent, 1, "second dispatch suppressed by de-dup key")
}

func TestDispatchHonorsUserFlags(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	email := "a@example.com"
	user := &models.User{
		Name: "bob", Email: &email,
		NotifyFlags: models.NotifyFlags{Email: false, Chat: true},
	}
	require.NoError(t, st.CreateUser(ctx, user))

	emailCh := &recordingChannel{name: "email"}
	chatCh := &recordingChannel{name: "chat"}
	d := New(st, []Channel{emailCh, chatCh})

	require.NoError(t, d.Dispatch(ctx, Event{User: user, Type: models.NotifyMovie, Title: "X"}))
	assert.Empty(t, emailCh.sent, "email flag off")
	assert.Empty(t, chatCh.sent, "chat flag on but no chat id")
}

func TestDispatchNullSeasonDistinctFromZero(t *testing.T) {
	st := fake.New()
	user := chatUser(t, st)
	chat := &recordingChannel{name: "chat"}
	d := New(st, []Channel{chat})
	ctx := context.Background()

	zero := 0
	require.NoError(t, d.Dispatch(ctx, Event{User: user, Type: models.NotifySeason, Title: "Show", Season: &zero}))
	require.NoError(t, d.Dispatch(ctx, Event{User: user, Type: models.NotifySeason, Title: "Show"}))

	assert.Len(t, chat.sent, 2, "season=0 and season=nil are distinct keys")
}

func TestDispatchSyncedDuplicateRecordsWithoutSending(t *testing.T) {
	st := fake.New()
	user := chatUser(t, st)
	chat := &recordingChannel{name: "chat"}
	d := New(st, []Channel{chat})
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, Event{
		User: user, Type: models.NotifyMovie, Title: "Dup", SyncedDuplicate: true,
	}))
	assert.Empty(t, chat.sent)

	rec, err := st.FindNotification(ctx, models.NotificationKey{
		UserID: user.ID, Type: models.NotifyMovie, Title: "Dup",
	})
	require.NoError(t, err)
	assert.Equal(t, "synced", rec.NotificationStatus)
}

func TestDispatchAdvancesItemToNotified(t *testing.T) {
	st := fake.New()
	user := chatUser(t, st)
	ctx := context.Background()
	item := &models.WatchlistItem{
		UserID: user.ID, Key: "k1", Title: "Example",
		Type: models.ContentTypeMovie, Status: models.StatusGrabbed,
	}
	require.NoError(t, st.CreateWatchlistItem(ctx, item))

	d := New(st, []Channel{&recordingChannel{name: "chat"}})
	require.NoError(t, d.Dispatch(ctx, Event{Item: item, User: user, Type: models.NotifyMovie, Title: "Example"}))

	got, err := st.GetWatchlistItem(ctx, user.ID, "k1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotified, got.Status)
	assert.NotNil(t, got.LastNotifiedAt)
}

func TestDispatchChannelFailureIsolated(t *testing.T) {
	st := fake.New()
	user := chatUser(t, st)
	user.NotifyFlags.Push = true
	chat := &recordingChannel{name: "chat", err: errors.New("transport down")}
	push := &recordingChannel{name: "push"}
	d := New(st, []Channel{chat, push})

	require.NoError(t, d.Dispatch(context.Background(), Event{User: user, Type: models.NotifyMovie, Title: "Y"}))
	assert.Len(t, push.sent, 1, "push proceeds despite chat failure")

	rec, err := st.FindNotification(context.Background(), models.NotificationKey{
		UserID: user.ID, Type: models.NotifyMovie, Title: "Y",
	})
	require.NoError(t, err)
	assert.False(t, rec.SentTo.Chat)
	assert.True(t, rec.SentTo.Push)
}
