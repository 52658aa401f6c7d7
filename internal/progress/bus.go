// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package progress is the in-process typed pub/sub bus for long-operation
// telemetry. Delivery is at-most-once per subscriber and never blocks a
// publisher: a subscriber that falls behind its buffer drops events.
package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
)

// EventType enumerates the long operations that report progress.
type EventType string

const (
	TypeSelfWatchlist    EventType = "self-watchlist"
	TypeOthersWatchlist  EventType = "others-watchlist"
	TypeRSSFeed          EventType = "rss-feed"
	TypeSystem           EventType = "system"
	TypeSync             EventType = "sync"
	TypeSonarrTagging    EventType = "sonarr-tagging"
	TypeRadarrTagging    EventType = "radarr-tagging"
	TypeSonarrTagRemoval EventType = "sonarr-tag-removal"
	TypeRadarrTagRemoval EventType = "radarr-tag-removal"
	TypeApproval         EventType = "approval"
)

// Event is one progress report. Progress is clamped to [0, 100] at
// publish time.
type Event struct {
	OperationID string            `json:"operation_id"`
	Type        EventType         `json:"type"`
	Phase       string            `json:"phase"`
	Progress    int               `json:"progress"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// subscriberBuffer bounds how far one subscriber may lag before events
// are dropped for it.
const subscriberBuffer = 16

type subscriber struct {
	ch        chan Event
	types     map[EventType]struct{}
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Bus fans typed events out to subscribers over a watermill gochannel
// transport. One drain goroutine per topic reads the transport and
// delivers to subscriber channels with a non-blocking send.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	topics map[EventType]struct{}
	closed bool

	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup
}

// NewBus constructs a running Bus. Close releases it.
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: subscriberBuffer,
		}, watermill.NopLogger{}),
		subs:   make(map[*subscriber]struct{}),
		topics: make(map[EventType]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func topicFor(t EventType) string { return "progress." + string(t) }

// HasActiveSubscribers reports whether anyone is listening for t, so
// publishers can skip constructing expensive events.
func (b *Bus) HasActiveSubscribers(t EventType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if _, ok := sub.types[t]; ok {
			return true
		}
	}
	return false
}

// Publish emits e to every subscriber of its type. It never blocks on a
// slow subscriber and is a no-op when nobody listens.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if !b.HasActiveSubscribers(e.Type) {
		return
	}
	if e.Progress < 0 {
		e.Progress = 0
	}
	if e.Progress > 100 {
		e.Progress = 100
	}
	payload, err := json.Marshal(e)
	if err != nil {
		logging.Error().Err(err).Str("component", "progress-bus").Msg("marshal event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(topicFor(e.Type), msg); err != nil {
		logging.Warn().Err(err).Str("component", "progress-bus").Str("type", string(e.Type)).Msg("publish failed")
	}
}

// Subscribe returns a channel receiving events of the given types and an
// unsubscribe function. The channel is closed on unsubscribe or bus Close.
func (b *Bus) Subscribe(types ...EventType) (<-chan Event, func()) {
	sub := &subscriber{
		ch:    make(chan Event, subscriberBuffer),
		types: make(map[EventType]struct{}, len(types)),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}
	for _, t := range types {
		if _, started := b.topics[t]; !started {
			b.topics[t] = struct{}{}
			b.startDrain(t)
		}
	}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, unsubscribe
}

// startDrain launches the per-topic goroutine that reads the transport
// and fans out to matching subscribers without blocking. Callers hold
// b.mu.
func (b *Bus) startDrain(t EventType) {
	msgs, err := b.pubsub.Subscribe(b.ctx, topicFor(t))
	if err != nil {
		logging.Error().Err(err).Str("component", "progress-bus").Str("type", string(t)).Msg("transport subscribe failed")
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				logging.Warn().Err(err).Str("component", "progress-bus").Msg("drop undecodable event")
				msg.Ack()
				continue
			}
			b.mu.RLock()
			for sub := range b.subs {
				if _, ok := sub.types[e.Type]; !ok {
					continue
				}
				select {
				case sub.ch <- e:
				default:
					// Slow subscriber: drop rather than backpressure.
				}
			}
			b.mu.RUnlock()
			msg.Ack()
		}
	}()
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*subscriber]struct{})
	b.mu.Unlock()

	b.cancel()
	_ = b.pubsub.Close()
	b.wg.Wait()
	for _, sub := range subs {
		sub.close()
	}
}
