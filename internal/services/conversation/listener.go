package conversation

import (
	"context"
	"fmt"

	"dualinbox/internal/domain"
	"dualinbox/internal/services/notify"
)

// Publisher receives events for other consumers.
type Publisher interface {
	Publish(ev notify.Event)
}

// Listener streams incoming messages of one inbox into a Synchronizer.
type Listener struct {
	sync      *Synchronizer
	publisher Publisher
}

// NewListener returns a Listener. publisher may be nil.
func NewListener(sync *Synchronizer, publisher Publisher) *Listener {
	return &Listener{sync: sync, publisher: publisher}
}

// Run consumes the all-conversations stream of addr until ctx is done or
// the stream ends. Messages sent by addr itself are skipped.
func (l *Listener) Run(ctx context.Context, addr domain.Address) error {
	sess, err := l.sync.sessions.Require(addr)
	if err != nil {
		return err
	}
	stream, err := sess.Client().StreamAllMessages(ctx)
	if err != nil {
		return fmt.Errorf("conversation: stream %s: %w", sess.Address(), err)
	}
	l.sync.log.Debugf("Listening for messages to %s", sess.Address())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-stream:
			if !ok {
				return nil
			}
			if msg.Sender.Equal(sess.Address()) {
				continue
			}
			if _, err := l.sync.ApplyMessage(ctx, addr, msg); err != nil {
				return err
			}
			if l.publisher != nil {
				l.publisher.Publish(notify.MessageEvent{Owner: sess.Address(), Message: msg})
			}
		}
	}
}
