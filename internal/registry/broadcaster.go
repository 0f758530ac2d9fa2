// ABOUTME: In-memory keyed fan-out broadcaster for registry and router events
// ABOUTME: Per-subscriber buffered channels; slow subscribers drop, never block

package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Broadcaster provides in-memory pub/sub keyed by an arbitrary string
// (host id, agent id, or a well-known key for global streams). Publishing
// to a key with no subscribers performs no work beyond a read-locked map
// lookup.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[string]map[string]chan T // key -> subID -> ch
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster[T any](logger *slog.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		subs:   make(map[string]map[string]chan T),
		logger: logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given key. Returns
// the receiving channel and a subscription ID. The subscription is
// cleaned up automatically when ctx is cancelled.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, key string) (<-chan T, string) {
	subID := uuid.New().String()
	ch := make(chan T, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subs[key]; !ok {
		b.subs[key] = make(map[string]chan T)
	}
	b.subs[key][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "key", key, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(key, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the given key.
// Non-blocking: the event is dropped for subscribers whose channels are
// full.
func (b *Broadcaster[T]) Publish(key string, event T) {
	b.mu.RLock()
	subs, ok := b.subs[key]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy channels under the read lock to avoid holding it during sends
	targets := make([]chan T, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber", "key", key)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subs[key]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subs, key)
	}

	b.logger.Debug("subscriber removed", "key", key, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subs {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subs, key)
	}
}
