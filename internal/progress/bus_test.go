// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesMatchingSubscriberOnly(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	syncCh, unsubSync := bus.Subscribe(TypeSync)
	defer unsubSync()
	approvalCh, unsubApproval := bus.Subscribe(TypeApproval)
	defer unsubApproval()

	bus.Publish(context.Background(), Event{
		OperationID: "op-1", Type: TypeSync, Phase: "start", Progress: 0, Message: "begin",
	})

	select {
	case e := <-syncCh:
		assert.Equal(t, "op-1", e.OperationID)
		assert.Equal(t, TypeSync, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("sync subscriber did not receive event")
	}

	select {
	case e := <-approvalCh:
		t.Fatalf("approval subscriber received unrelated event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHasActiveSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	assert.False(t, bus.HasActiveSubscribers(TypeRSSFeed))
	_, unsub := bus.Subscribe(TypeRSSFeed)
	assert.True(t, bus.HasActiveSubscribers(TypeRSSFeed))
	unsub()
	assert.False(t, bus.HasActiveSubscribers(TypeRSSFeed))
}

func TestProgressClamping(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub := bus.Subscribe(TypeSystem)
	defer unsub()

	bus.Publish(context.Background(), Event{Type: TypeSystem, Progress: 250})

	select {
	case e := <-ch:
		assert.Equal(t, 100, e.Progress)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub := bus.Subscribe(TypeSync)
	defer unsub()

	// Publish far more events than the subscriber buffer without reading.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*10; i++ {
			bus.Publish(context.Background(), Event{Type: TypeSync, Progress: i % 100})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	// Drain what survived; it must be at most the buffer plus transport
	// buffer, never the full publish count.
	time.Sleep(100 * time.Millisecond)
	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			require.Less(t, received, subscriberBuffer*10)
			return
		}
	}
}
