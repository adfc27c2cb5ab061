package reachability

import (
	"log/slog"
	"sort"
	"sync"
)

type registration struct {
	url string
	sub Subscriber
}

// Broadcaster fans one reachability change out to every registered
// subscriber. It is safe for concurrent use.
type Broadcaster struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]registration
	nextID uint64
	last   Kind
	known  bool
}

// NewBroadcaster creates an empty registry.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		logger: logger,
		subs:   make(map[uint64]registration),
	}
}

// Register adds a subscriber for the given endpoint URL. The returned
// release func removes it again and is safe to call more than once.
func (b *Broadcaster) Register(url string, sub Subscriber) (release func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = registration{url: url, sub: sub}
	b.mu.Unlock()

	b.logger.Debug("subscriber registered", "url", url, "id", id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			b.logger.Debug("subscriber released", "url", url, "id", id)
		})
	}
}

// Broadcast records kind as the latest observation and delivers it to every
// subscriber. Subscribers are called outside the lock, so they may register
// or release during delivery. Returns the number of subscribers notified.
func (b *Broadcaster) Broadcast(kind Kind) int {
	b.mu.Lock()
	b.last = kind
	b.known = true
	targets := make([]registration, 0, len(b.subs))
	for _, r := range b.subs {
		targets = append(targets, r)
	}
	b.mu.Unlock()

	b.logger.Info("network changed", "kind", kind, "subscribers", len(targets))

	for _, r := range targets {
		r.sub.OnNetworkChanged(kind)
	}
	return len(targets)
}

// Last returns the most recently broadcast kind, if any.
func (b *Broadcaster) Last() (Kind, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.known
}

// Available reports whether the network is usable according to the latest
// broadcast. Before any broadcast the network is assumed available.
func (b *Broadcaster) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.known || b.last.Available()
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// URLs returns the sorted endpoint URLs of all registered subscribers.
func (b *Broadcaster) URLs() []string {
	b.mu.RLock()
	urls := make([]string, 0, len(b.subs))
	for _, r := range b.subs {
		urls = append(urls, r.url)
	}
	b.mu.RUnlock()

	sort.Strings(urls)
	return urls
}
