// Package notify fans socket events out to independent consumers.
//
// A socket adapter publishes typed Events onto the Hub. Every subscriber
// owns an unbounded queue drained by its own goroutine, so a slow consumer
// never blocks the publisher or its siblings. Feed is the consumer that
// keeps the bounded in-memory list of inbound notifications.
package notify
