package notify

import (
	"time"

	"dualinbox/internal/domain"
)

// Event is the closed set of hub events.
type Event interface {
	event()
}

// NotificationEvent is an inbound push notification.
type NotificationEvent struct {
	Payload  domain.PayloadData
	Received time.Time
}

// MessageEvent is a DM message received by an inbox.
type MessageEvent struct {
	Owner   domain.Address
	Message domain.DecodedMessage
}

// ChatEvent is a group chat message.
type ChatEvent struct {
	ChatID  string
	Message domain.DecryptedGroupMessage
}

func (NotificationEvent) event() {}
func (MessageEvent) event()      {}
func (ChatEvent) event()         {}
