package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
)

func newHub(t *testing.T) (*Hub, *observe.Reporter) {
	rep, err := observe.NewReporter(log.Discard(), nil)
	require.NoError(t, err)
	h := NewHub(log.Discard(), rep)
	t.Cleanup(h.Close)
	return h, rep
}

func TestHub_IndependentConsumers(t *testing.T) {
	require := require.New(t)
	h, _ := newHub(t)

	release := make(chan struct{})
	var slowGot []Event
	slow := h.Subscribe("slow", func(ev Event) {
		<-release
		slowGot = append(slowGot, ev)
	})

	var mu sync.Mutex
	var fastGot []Event
	fast := h.Subscribe("fast", func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		fastGot = append(fastGot, ev)
	})

	for i := 0; i < 5; i++ {
		h.Publish(ChatEvent{ChatID: "c", Message: domain.DecryptedGroupMessage{Timestamp: int64(i)}})
	}

	// The fast consumer drains while the slow one is blocked.
	fast.Close()
	require.Len(fastGot, 5)

	close(release)
	slow.Close()
	require.Len(slowGot, 5)
	for i, ev := range slowGot {
		require.EqualValues(i, ev.(ChatEvent).Message.Timestamp)
	}
}

func TestHub_RunReportsSocketFailure(t *testing.T) {
	require := require.New(t)
	h, rep := newHub(t)
	feed := NewFeed(10)
	sub := feed.Attach(h)

	sock := make(ChanSocket, 2)
	sock <- NotificationEvent{Payload: domain.PayloadData{App: "a"}, Received: time.Now()}
	sock <- NotificationEvent{Payload: domain.PayloadData{App: "b"}, Received: time.Now()}
	close(sock)
	h.Run(context.Background(), sock)
	sub.Close()
	require.Equal(2, feed.UnreadCount())
	require.Equal("b", feed.Items()[0].Payload.App)

	h.Run(context.Background(), failingSocket{})
	require.Equal(1.0, testutil.ToFloat64(rep.Counter(component, observe.Error)))
}

type failingSocket struct{}

func (failingSocket) Next(context.Context) (Event, error) {
	return nil, errors.New("handshake rejected")
}

func TestFeed_BoundedWithUnreadSet(t *testing.T) {
	require := require.New(t)
	f := NewFeed(3)

	var ids []string
	for _, app := range []string{"a", "b", "c", "d"} {
		ids = append(ids, f.Add(domain.PayloadData{App: app}, time.Now()))
	}
	items := f.Items()
	require.Len(items, 3)
	require.Equal("d", items[0].Payload.App)
	require.Equal("b", items[2].Payload.App)
	require.Equal(3, f.UnreadCount())

	f.MarkRead(ids[3])
	items = f.Items()
	require.False(items[0].Unread)
	require.True(items[1].Unread)
	require.Equal(2, f.UnreadCount())

	f.MarkAllRead()
	require.Zero(f.UnreadCount())
}
