package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/protocol/memdm"
	"dualinbox/internal/services/consent"
	"dualinbox/internal/services/identity"
	"dualinbox/internal/services/notify"
	"dualinbox/internal/services/session"
	"dualinbox/internal/store"
)

type recordingRegistrar struct {
	mu    sync.Mutex
	calls [][]domain.TopicMetadata
	err   error
}

func (r *recordingRegistrar) RegisterTopics(_ context.Context, _ domain.Address, topics []domain.TopicMetadata) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, topics)
	return len(topics), r.err
}

func (r *recordingRegistrar) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(ev notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	net       *memdm.Network
	mgr       *session.Manager
	reporter  *observe.Reporter
	registrar *recordingRegistrar
	sync      *Synchronizer
	me        *identity.Wallet
	peers     []*identity.Wallet
}

func wallet(t *testing.T, b byte) *identity.Wallet {
	seed := make([]byte, 32)
	seed[31] = b
	w, err := identity.NewWallet(seed)
	require.NoError(t, err)
	return w
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	require := require.New(t)
	ctx := context.Background()

	db, err := store.Open(filepath.Join(t.TempDir(), "keys.db"), "")
	require.NoError(err)
	t.Cleanup(func() { db.Close() })
	rep, err := observe.NewReporter(log.Discard(), nil)
	require.NoError(err)

	net := memdm.NewNetwork()
	mgr := session.New(net, db, log.Discard(), rep)
	t.Cleanup(mgr.Close)

	fx := &fixture{net: net, mgr: mgr, reporter: rep, registrar: &recordingRegistrar{}}
	fx.me = wallet(t, 1)
	_, err = mgr.Ensure(ctx, fx.me.Address(), fx.me)
	require.NoError(err)

	for i := byte(2); i < 5; i++ {
		w := wallet(t, i)
		_, err := net.NewClient(ctx, w, make([]byte, 32))
		require.NoError(err)
		fx.peers = append(fx.peers, w)
	}

	fx.sync = New(mgr, consent.New(log.Discard()), fx.registrar, opts, log.Discard(), rep)
	return fx
}

func TestListConversations_InboundUnknown(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, Options{})
	ctx := context.Background()

	tl, err := fx.sync.ListConversations(ctx, fx.me.Address())
	require.NoError(err)
	require.Empty(tl)

	_, err = fx.net.Deliver(fx.peers[0].Address(), fx.me.Address(), domain.TextContent{Text: "hi"})
	require.NoError(err)

	tl, err = fx.sync.ListConversations(ctx, fx.me.Address())
	require.NoError(err)
	require.Len(tl, 1)
	require.Equal("hi", tl[0].Preview)
	require.Equal(domain.ConsentUnknown, tl[0].ConsentState)
	require.True(tl[0].Peer.Equal(fx.peers[0].Address()))
	require.True(tl[0].Visible)
}

func TestListConversations_SortedWithPreviews(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, Options{SelfMarker: "Me:"})
	ctx := context.Background()

	var tick int64
	fx.net.SetClock(func() time.Time { tick += 10; return time.UnixMilli(tick) })

	me := fx.me.Address()
	_, err := fx.net.Deliver(fx.peers[0].Address(), me, domain.TextContent{Text: "first"})
	require.NoError(err)
	_, err = fx.net.Deliver(fx.peers[1].Address(), me, domain.TextContent{Text: "second"})
	require.NoError(err)
	_, err = fx.net.Deliver(me, fx.peers[0].Address(), domain.TextContent{Text: "reply"})
	require.NoError(err)
	_, err = fx.net.Deliver(fx.peers[2].Address(), me, domain.RemoteAttachmentContent{Fallback: "file"})
	require.NoError(err)

	tl, err := fx.sync.ListConversations(ctx, me)
	require.NoError(err)
	require.Len(tl, 3)
	require.Equal(AttachmentPreview, tl[0].Preview)
	require.Equal("Me: reply", tl[1].Preview)
	require.Equal("second", tl[2].Preview)
	requireSorted(t, tl)
}

func TestListConversations_MigratesLegacyConsent(t *testing.T) {
	require := require.New(t)
	var topics []string
	var mu sync.Mutex
	fx := newFixture(t, Options{Preferences: func(context.Context, domain.Address) *domain.ConsentPreferences {
		mu.Lock()
		defer mu.Unlock()
		return domain.NewConsentPreferences(nil, topics)
	}})
	ctx := context.Background()

	m, err := fx.net.Deliver(fx.peers[0].Address(), fx.me.Address(), domain.TextContent{Text: "spam"})
	require.NoError(err)
	mu.Lock()
	topics = []string{m.Topic}
	mu.Unlock()

	tl, err := fx.sync.ListConversations(ctx, fx.me.Address())
	require.NoError(err)
	require.Len(tl, 1)
	require.Equal(domain.ConsentDenied, tl[0].ConsentState)
	require.False(tl[0].Visible)

	st, err := tl[0].Conversation.ConsentState(ctx)
	require.NoError(err)
	require.Equal(domain.ConsentDenied, st)
}

func TestListConversations_DegradesOnFailures(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, Options{})
	ctx := context.Background()

	_, err := fx.net.Deliver(fx.peers[0].Address(), fx.me.Address(), domain.TextContent{Text: "hi"})
	require.NoError(err)

	fx.net.SetFault(memdm.OpMessages, errors.New("rate limited"))
	fx.net.SetFault(memdm.OpConsent, errors.New("rate limited"))
	tl, err := fx.sync.ListConversations(ctx, fx.me.Address())
	require.NoError(err)
	require.Len(tl, 1)
	require.Empty(tl[0].Preview)
	require.Equal(tl[0].Conversation.CreatedAt().UnixMilli(), tl[0].TimestampMillis)
	require.Equal(domain.ConsentUnknown, tl[0].ConsentState)
	require.Equal(2.0, testutil.ToFloat64(fx.reporter.Counter(component, observe.Error)))

	fx.net.SetFault(memdm.OpList, errors.New("connection refused"))
	again, err := fx.sync.ListConversations(ctx, fx.me.Address())
	require.NoError(err)
	require.Len(again, 1)

	_, err = fx.sync.ListConversations(ctx, fx.peers[0].Address())
	require.ErrorIs(err, session.ErrNoSession)
}

type gatedResolver struct {
	ConsentResolver
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedResolver) Resolve(ctx context.Context, conv domain.Conversation, prefs *domain.ConsentPreferences) (domain.ConsentState, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.ConsentResolver.Resolve(ctx, conv, prefs)
}

func TestListConversations_KeepsConcurrentlyAppliedMessages(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, Options{})
	ctx := context.Background()
	me := fx.me.Address()

	gate := &gatedResolver{
		ConsentResolver: consent.New(log.Discard()),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	fx.sync = New(fx.mgr, gate, fx.registrar, Options{}, log.Discard(), fx.reporter)

	_, err := fx.net.Deliver(fx.peers[0].Address(), me, domain.TextContent{Text: "old"})
	require.NoError(err)

	type result struct {
		tl  Timeline
		err error
	}
	done := make(chan result, 1)
	go func() {
		tl, err := fx.sync.ListConversations(ctx, me)
		done <- result{tl, err}
	}()
	<-gate.entered

	msg, err := fx.net.Deliver(fx.peers[1].Address(), me, domain.TextContent{Text: "fresh"})
	require.NoError(err)
	_, err = fx.sync.ApplyMessage(ctx, me, msg)
	require.NoError(err)
	close(gate.release)

	res := <-done
	require.NoError(res.err)
	require.Len(res.tl, 2)
	require.GreaterOrEqual(res.tl.Index(msg.Topic), 0)

	tl := fx.sync.Timeline(me)
	require.Len(tl, 2)
	i := tl.Index(msg.Topic)
	require.GreaterOrEqual(i, 0)
	require.Equal("fresh", tl[i].Preview)
	requireSorted(t, tl)
}

func TestApplyMessage_RegistersNewPeer(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, Options{})
	ctx := context.Background()
	me := fx.me.Address()

	msg, err := fx.net.Deliver(fx.peers[1].Address(), me, domain.TextContent{Text: "hello"})
	require.NoError(err)

	tl, err := fx.sync.ApplyMessage(ctx, me, msg)
	require.NoError(err)
	require.Len(tl, 1)
	require.NotNil(tl[0].Conversation)
	require.Equal(domain.ConsentUnknown, tl[0].ConsentState)

	require.Equal(1, fx.registrar.count())
	reg := fx.registrar.calls[0][0]
	require.Equal(msg.Topic, reg.Topic)
	require.True(reg.PeerAddress.Equal(fx.peers[1].Address()))
	require.False(reg.Accept)

	// A known topic only updates the entry.
	msg2, err := fx.net.Deliver(fx.peers[1].Address(), me, domain.TextContent{Text: "again"})
	require.NoError(err)
	tl, err = fx.sync.ApplyMessage(ctx, me, msg2)
	require.NoError(err)
	require.Len(tl, 1)
	require.Equal("again", tl[0].Preview)
	require.Equal(1, fx.registrar.count())

	// Registration failures never fail the update.
	fx.registrar.err = errors.New("index down")
	msg3, err := fx.net.Deliver(fx.peers[2].Address(), me, domain.TextContent{Text: "new"})
	require.NoError(err)
	tl, err = fx.sync.ApplyMessage(ctx, me, msg3)
	require.NoError(err)
	require.Len(tl, 2)
}

func TestSend(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, Options{})
	ctx := context.Background()
	me := fx.me.Address()

	_, err := fx.sync.Send(ctx, me, fx.peers[0].Address(), "  ")
	require.ErrorIs(err, ErrEmptyMessage)

	msg, err := fx.sync.Send(ctx, me, fx.peers[0].Address(), "hey")
	require.NoError(err)
	require.True(msg.Sender.Equal(me))

	tl := fx.sync.Timeline(me)
	require.Len(tl, 1)
	require.Equal("You: hey", tl[0].Preview)
	require.Equal(domain.ConsentAllowed, tl[0].ConsentState)
	require.True(fx.registrar.calls[0][0].Accept)

	fx.net.SetFault(memdm.OpSend, errors.New("boom"))
	_, err = fx.sync.Send(ctx, me, fx.peers[0].Address(), "lost")
	require.Error(err)
}

func TestListener(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, Options{})
	me := fx.me.Address()
	pub := &recordingPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	l := NewListener(fx.sync, pub)
	sess, err := fx.mgr.Require(me)
	require.NoError(err)

	ready := make(chan struct{})
	go func() {
		close(ready)
		done <- l.Run(ctx, me)
	}()
	<-ready
	require.Eventually(func() bool {
		_, _ = fx.net.Deliver(me, fx.peers[0].Address(), domain.TextContent{Text: "warmup"})
		_, _ = fx.net.Deliver(fx.peers[1].Address(), me, domain.TextContent{Text: "ping"})
		return pub.len() > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.ErrorIs(<-done, context.Canceled)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, ev := range pub.events {
		got := ev.(notify.MessageEvent)
		require.False(got.Message.Sender.Equal(sess.Address()))
	}
	tl := fx.sync.Timeline(sess.Address())
	i := tl.Index(pub.events[0].(notify.MessageEvent).Message.Topic)
	require.GreaterOrEqual(i, 0)
	require.False(strings.HasPrefix(tl[i].Preview, "You:"))
}
