package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"dualinbox/internal/domain"
)

// DefaultFeedCapacity is the number of notifications a Feed keeps.
const DefaultFeedCapacity = 200

// FeedItem is one notification with its derived unread flag.
type FeedItem struct {
	ID       string
	Payload  domain.PayloadData
	Received time.Time
	Unread   bool
}

type feedEntry struct {
	id       string
	payload  domain.PayloadData
	received time.Time
}

// Feed is the newest-first list of inbound notifications. Payloads are
// never changed after insertion; read state lives in a separate set.
type Feed struct {
	mu       sync.Mutex
	capacity int
	entries  []feedEntry
	unread   map[string]struct{}
}

// NewFeed returns a Feed holding at most capacity notifications.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{capacity: capacity, unread: make(map[string]struct{})}
}

// Attach subscribes the feed to hub.
func (f *Feed) Attach(hub *Hub) *Subscription {
	return hub.Subscribe("feed", f.Consume)
}

// Consume records notification events and ignores everything else.
func (f *Feed) Consume(ev Event) {
	if n, ok := ev.(NotificationEvent); ok {
		f.Add(n.Payload, n.Received)
	}
}

// Add inserts p as unread and returns its id. The oldest notification is
// evicted once the feed is full.
func (f *Feed) Add(p domain.PayloadData, received time.Time) string {
	id := uuid.NewString()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append([]feedEntry{{id: id, payload: p, received: received}}, f.entries...)
	f.unread[id] = struct{}{}
	for len(f.entries) > f.capacity {
		last := f.entries[len(f.entries)-1]
		delete(f.unread, last.id)
		f.entries = f.entries[:len(f.entries)-1]
	}
	return id
}

// Items returns a snapshot of the feed, newest first.
func (f *Feed) Items() []FeedItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FeedItem, len(f.entries))
	for i, e := range f.entries {
		_, unread := f.unread[e.id]
		out[i] = FeedItem{ID: e.id, Payload: e.payload, Received: e.received, Unread: unread}
	}
	return out
}

// MarkRead clears the unread flag of id.
func (f *Feed) MarkRead(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.unread, id)
}

// MarkAllRead clears every unread flag.
func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.unread)
}

// UnreadCount returns the number of unread notifications.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unread)
}
