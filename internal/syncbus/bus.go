// Package syncbus propagates field edits between the editing surfaces of one
// session (the inline canvas and the settings form). It is in-process only and
// lives exactly as long as the session that created it.
package syncbus

import (
	"log/slog"
	"sync"
)

// Update is one field edit.
type Update struct {
	FieldID string `json:"fieldId"`
	Value   string `json:"value"`
	// Origin is the publishing surface; it never receives its own update.
	Origin string `json:"origin"`
}

// Handler applies an update on a subscribing surface. It runs synchronously
// inside Publish and must tolerate redundant deliveries.
type Handler func(Update)

// Topic names the channel a surface listens on.
func Topic(surface string) string {
	return surface + "FieldUpdate"
}

type subscriber struct {
	id      uint64
	surface string
	handler Handler
}

type echoKey struct {
	field string
	value string
}

// Bus 是会话级的发布订阅通道，通过依赖注入传递，不存在全局实例。
type Bus struct {
	mu       sync.Mutex
	subs     []subscriber
	nextID   uint64
	inflight map[echoKey]struct{}
	closed   bool
	logger   *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{inflight: make(map[echoKey]struct{}), logger: logger}
}

// Subscribe registers h for updates published by any other surface. The
// returned func removes the subscription and is safe to call more than once.
func (b *Bus) Subscribe(surface string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, surface: surface, handler: h})
	b.logger.Debug("sync bus subscribed", slog.String("topic", Topic(surface)))

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish fans u out to every subscriber of another surface and returns the
// number of deliveries. An update re-published while the same field and value
// is still being delivered is an echo and is dropped.
func (b *Bus) Publish(u Update) int {
	key := echoKey{field: u.FieldID, value: u.Value}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	if _, busy := b.inflight[key]; busy {
		b.mu.Unlock()
		b.logger.Debug("sync bus dropped echo",
			slog.String("field", u.FieldID),
			slog.String("origin", u.Origin),
		)
		return 0
	}
	targets := make([]subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.surface != u.Origin {
			targets = append(targets, s)
		}
	}
	b.inflight[key] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.inflight, key)
		b.mu.Unlock()
	}()

	for _, s := range targets {
		s.handler(u)
	}
	return len(targets)
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscription; later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}
