package memdm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
)

type testSigner struct {
	addr  domain.Address
	calls int
	err   error
}

func (s *testSigner) Address() domain.Address { return s.addr }

func (s *testSigner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte("sig:"), msg[:4]...), nil
}

const (
	alice = domain.Address("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	bob   = domain.Address("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
)

func newKey(t *testing.T) []byte {
	k, err := crypto.NewKey()
	require.NoError(t, err)
	return k
}

func TestCreateAndRestore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	net := NewNetwork()

	s := &testSigner{addr: alice}
	key := newKey(t)
	c, err := net.NewClient(ctx, s, key)
	require.NoError(err)
	require.Equal(1, s.calls)
	require.Equal(1, net.Created())
	require.True(c.Address().Equal(alice))

	// Restoring with the stored key never signs.
	noop := &testSigner{addr: alice, err: errors.New("must not sign")}
	_, err = net.NewClient(ctx, noop, key)
	require.NoError(err)
	require.Equal(0, noop.calls)
	require.Equal(1, net.Created())

	_, err = net.NewClient(ctx, noop, newKey(t))
	require.ErrorIs(err, ErrWrongKey)

	_, err = net.NewClient(ctx, &testSigner{addr: bob, err: errors.New("rejected")}, newKey(t))
	require.Error(err)
	require.Equal(1, net.Created())
}

func TestConversationFlow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	net := NewNetwork()
	base := time.UnixMilli(1000)
	tick := 0
	net.SetClock(func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Millisecond) })

	a, err := net.NewClient(ctx, &testSigner{addr: alice}, newKey(t))
	require.NoError(err)
	b, err := net.NewClient(ctx, &testSigner{addr: bob}, newKey(t))
	require.NoError(err)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := b.StreamAllMessages(streamCtx)
	require.NoError(err)

	conv, err := a.NewConversation(ctx, bob)
	require.NoError(err)
	require.True(conv.PeerAddress().Equal(bob))

	id1, err := conv.Send(ctx, domain.TextContent{Text: "one"})
	require.NoError(err)
	_, err = conv.Send(ctx, domain.TextContent{Text: "two"})
	require.NoError(err)

	got := <-stream
	require.Equal(id1, got.ID)

	latest, err := conv.Messages(ctx, domain.ListOptions{Limit: 1, Descending: true})
	require.NoError(err)
	require.Len(latest, 1)
	require.Equal(domain.TextContent{Text: "two"}, latest[0].Content)

	convs, err := b.Conversations(ctx)
	require.NoError(err)
	require.Len(convs, 1)
	require.Equal(conv.Topic(), convs[0].Topic())
	require.True(convs[0].PeerAddress().Equal(alice))

	st, err := convs[0].ConsentState(ctx)
	require.NoError(err)
	require.Equal(domain.ConsentUnknown, st)
	require.NoError(b.Deny(ctx, []domain.Address{alice}))
	st, err = convs[0].ConsentState(ctx)
	require.NoError(err)
	require.Equal(domain.ConsentDenied, st)

	// Consent is per inbox.
	st, err = conv.ConsentState(ctx)
	require.NoError(err)
	require.Equal(domain.ConsentUnknown, st)

	m, err := convs[0].MessageByID(ctx, id1)
	require.NoError(err)
	require.True(m.Sender.Equal(alice))
}

func TestFaultsAndClose(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	net := NewNetwork()

	a, err := net.NewClient(ctx, &testSigner{addr: alice}, newKey(t))
	require.NoError(err)
	_, err = a.NewConversation(ctx, bob)
	require.ErrorIs(err, ErrPeerNotRegistered)

	boom := errors.New("boom")
	net.SetFault(OpList, boom)
	_, err = a.Conversations(ctx)
	require.ErrorIs(err, boom)
	net.SetFault(OpList, nil)
	_, err = a.Conversations(ctx)
	require.NoError(err)

	require.NoError(a.Close())
	_, err = a.Conversations(ctx)
	require.ErrorIs(err, ErrClosed)
}
