package conversation

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dualinbox/internal/domain"
)

const (
	self = domain.Address("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	peer = domain.Address("0x000000000000000000000000000000000000bEEF")
)

func textAt(topic string, sender domain.Address, text string, ms int64) domain.DecodedMessage {
	return domain.DecodedMessage{
		ID:      fmt.Sprintf("%s-%d", topic, ms),
		Topic:   topic,
		Sender:  sender,
		Sent:    time.UnixMilli(ms),
		Content: domain.TextContent{Text: text},
	}
}

func requireSorted(t *testing.T, tl Timeline) {
	t.Helper()
	seen := make(map[string]bool)
	for i, m := range tl {
		k := strings.ToLower(m.Topic)
		require.False(t, seen[k], "duplicate topic %s", m.Topic)
		seen[k] = true
		if i > 0 {
			require.GreaterOrEqual(t, tl[i-1].TimestampMillis, m.TimestampMillis)
		}
	}
}

func TestPreview(t *testing.T) {
	p := Previewer{Self: self, SelfMarker: "You:"}
	require.Equal(t, "hi", p.Preview(textAt("t", peer, "hi", 1)))
	require.Equal(t, "You: hi", p.Preview(textAt("t", domain.Address(self.Key()), "hi", 1)))
	require.Equal(t, AttachmentPreview, p.Preview(domain.DecodedMessage{Sender: peer, Content: domain.RemoteAttachmentContent{}}))
	require.Equal(t, AttachmentPreview, p.Preview(domain.DecodedMessage{Sender: self, Content: domain.UnknownContent{TypeID: "reaction"}}))
}

func TestWithMessage_SelfSentReorders(t *testing.T) {
	require := require.New(t)
	p := Previewer{Self: self, SelfMarker: "You:"}

	tl := Timeline{
		{Topic: "t1", TimestampMillis: 100},
		{Topic: "t2", TimestampMillis: 200},
	}
	next, isNew := tl.WithMessage(textAt("t1", self, "later", 300), p, nil)
	require.False(isNew)
	require.Len(next, 2)
	require.Equal("t1", next[0].Topic)
	require.EqualValues(300, next[0].TimestampMillis)
	require.True(strings.HasPrefix(next[0].Preview, "You:"))
	require.Equal("t2", next[1].Topic)
	require.EqualValues(200, next[1].TimestampMillis)

	// The input timeline is untouched.
	require.EqualValues(100, tl[0].TimestampMillis)
	require.Empty(tl[0].Preview)
}

func TestWithMessage_NewTopic(t *testing.T) {
	require := require.New(t)
	p := Previewer{Self: self, SelfMarker: "You:"}

	next, isNew := Timeline(nil).WithMessage(textAt("t1", peer, "hi", 5), p, nil)
	require.True(isNew)
	require.Len(next, 1)
	require.Equal("hi", next[0].Preview)
	require.Equal(domain.ConsentUnknown, next[0].ConsentState)
	require.True(next[0].Peer.Equal(peer))
	require.True(next[0].Visible)

	next, isNew = next.WithMessage(textAt("T2", self, "yo", 1), p, nil)
	require.True(isNew)
	require.Equal(domain.ConsentAllowed, next[1].ConsentState)

	// Topic matching ignores case.
	next, isNew = next.WithMessage(textAt("t2", peer, "back", 9), p, nil)
	require.False(isNew)
	require.Len(next, 2)
	require.Equal("T2", next[0].Topic)
}

func TestTimeline_OrderedAndUniqueUnderRandomUpdates(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	p := Previewer{Self: self, SelfMarker: "You:"}
	topics := []string{"a", "B", "c", "D", "e", "A", "b"}

	var tl Timeline
	for i := 0; i < 500; i++ {
		topic := topics[rng.IntN(len(topics))]
		sender := peer
		if rng.IntN(2) == 0 {
			sender = self
		}
		tl, _ = tl.WithMessage(textAt(topic, sender, "m", rng.Int64N(1000)), p, nil)
		requireSorted(t, tl)
	}

	dup := append(Timeline{{Topic: "a", TimestampMillis: 1}}, tl...)
	requireSorted(t, dup.Normalize())
}
