// Package events fans indexing progress out to observers: terminal
// renderers, the MCP status tool and an optional NATS publisher.
package events

import (
	"log/slog"
	"sync"

	"github.com/Aman-CERP/ragindex/internal/index"
)

// DefaultSubscriberBuffer is the channel capacity used when Subscribe is
// given a non-positive buffer.
const DefaultSubscriberBuffer = 16

// Broadcaster reads one progress stream and delivers every snapshot to all
// subscribers. A slow subscriber loses its oldest snapshots, never the
// latest one, and never blocks the others.
type Broadcaster struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan index.IndexProgress
	nextID int
	last   index.IndexProgress
	closed bool

	stop chan struct{}
	done chan struct{}
}

// NewBroadcaster starts forwarding src. src is typically
// index.Coordinator.Progress().
func NewBroadcaster(src <-chan index.IndexProgress, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		logger: logger,
		subs:   make(map[int]chan index.IndexProgress),
		last:   index.IndexProgress{Status: index.StatusIdle},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.run(src)
	return b
}

func (b *Broadcaster) run(src <-chan index.IndexProgress) {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case p, ok := <-src:
			if !ok {
				return
			}
			b.publish(p)
		}
	}
}

func (b *Broadcaster) publish(p index.IndexProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = p
	for id, ch := range b.subs {
		if !offer(ch, p) {
			b.logger.Debug("progress_subscriber_lagging", slog.Int("subscriber", id))
		}
	}
}

// offer sends p, dropping the oldest queued snapshot when ch is full. It
// reports whether nothing had to be dropped.
func offer(ch chan index.IndexProgress, p index.IndexProgress) bool {
	select {
	case ch <- p:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
	return false
}

// Subscribe registers a new observer. The returned channel first receives
// the latest known snapshot. Call cancel to unsubscribe; it closes the
// channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan index.IndexProgress, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan index.IndexProgress, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	ch <- b.last

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Last returns the most recent snapshot seen.
func (b *Broadcaster) Last() index.IndexProgress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Close stops forwarding and closes every subscriber channel. Safe to call
// more than once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.stop)
	b.mu.Unlock()

	<-b.done

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
