package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/eapache/channels.v1"
	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/log"
	"dualinbox/internal/observe"
)

const component = "notify"

// Hub publishes events to every subscriber.
type Hub struct {
	log      *logging.Logger
	reporter *observe.Reporter

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewHub returns an empty Hub.
func NewHub(backend *log.Backend, reporter *observe.Reporter) *Hub {
	return &Hub{
		log:      backend.GetLogger(component),
		reporter: reporter,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscription is one consumer of the hub.
type Subscription struct {
	hub  *Hub
	name string
	ch   *channels.InfiniteChannel
	done chan struct{}
	once sync.Once
}

// Subscribe registers fn as a consumer. fn runs on the subscription's own
// goroutine, one event at a time, in publish order.
func (h *Hub) Subscribe(name string, fn func(Event)) *Subscription {
	s := &Subscription{
		hub:  h,
		name: name,
		ch:   channels.NewInfiniteChannel(),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for v := range s.ch.Out() {
			fn(v.(Event))
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.ch.Close()
		return s
	}
	h.subs[s] = struct{}{}
	h.log.Debugf("Subscribed %s", name)
	return s
}

// Publish queues ev for every subscriber. It never blocks on consumers.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for s := range h.subs {
		s.ch.In() <- ev
	}
}

// Close stops the subscription after its queued events are consumed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if _, ok := s.hub.subs[s]; ok {
			delete(s.hub.subs, s)
			s.ch.Close()
		}
		s.hub.mu.Unlock()
	})
	<-s.done
}

// Pending returns how many events are queued but not yet consumed.
func (s *Subscription) Pending() int {
	return s.ch.Len()
}

// Close closes every subscription and waits for them to drain.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	for s := range subs {
		s.ch.Close()
	}
	h.mu.Unlock()

	for s := range subs {
		<-s.done
	}
}

// Socket is a source of events, such as a push notification connection.
type Socket interface {
	Next(ctx context.Context) (Event, error)
}

// ErrSocketClosed is returned by a Socket that has no more events.
var ErrSocketClosed = errors.New("notify: socket closed")

// Run publishes events from sock until ctx is done or the socket fails.
// Socket failures are reported, not returned, so a broken notification
// connection never blocks the caller.
func (h *Hub) Run(ctx context.Context, sock Socket) {
	for {
		ev, err := sock.Next(ctx)
		switch {
		case err == nil:
			h.Publish(ev)
		case errors.Is(err, ErrSocketClosed):
			h.log.Info("Socket closed")
			return
		case ctx.Err() != nil:
			return
		default:
			h.reporter.Report(component, fmt.Errorf("socket: %w", err))
			return
		}
	}
}

// ChanSocket adapts a channel of events to a Socket.
type ChanSocket chan Event

// Next returns the next event, or ErrSocketClosed once the channel is
// closed.
func (c ChanSocket) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-c:
		if !ok {
			return nil, ErrSocketClosed
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
