package group

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/protocol/memgroup"
	"dualinbox/internal/services/identity"
	"dualinbox/internal/services/notify"
	"dualinbox/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(ev notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, string(ev.(notify.ChatEvent).Message.Plaintext))
	}
	return out
}

type fixture struct {
	net     *memgroup.Network
	pub     *recordingPublisher
	adapter *Adapter
	db      *store.DB
	alice   *identity.Wallet
	bob     *identity.Wallet
}

func wallet(t *testing.T, b byte) *identity.Wallet {
	w, err := identity.NewWallet(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return w
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	rep, err := observe.NewReporter(log.Discard(), nil)
	require.NoError(t, err)

	f := &fixture{
		net:   memgroup.NewNetwork(),
		pub:   &recordingPublisher{},
		db:    db,
		alice: wallet(t, 1),
		bob:   wallet(t, 2),
	}
	f.adapter = New(f.net, db, db, DefaultPageSize, f.pub, log.Discard(), rep)
	return f
}

func (f *fixture) chat(t *testing.T, n int) []byte {
	t.Helper()
	ctx := context.Background()
	_, err := f.adapter.Register(ctx, f.alice)
	require.NoError(t, err)
	_, _, err = f.net.CreateUser(ctx, f.bob)
	require.NoError(t, err)
	require.NoError(t, f.net.CreateChat("chat", f.alice.Address(), f.bob.Address()))
	for i := 0; i < n; i++ {
		_, err := f.net.Post("chat", f.bob.Address(), domain.GroupKindText, []byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}
	key, err := f.adapter.Key(f.alice.Address())
	require.NoError(t, err)
	return key
}

func texts(p domain.GroupPage) []string {
	var out []string
	for _, m := range p.Messages {
		out = append(out, string(m.Plaintext))
	}
	return out
}

func TestMessages_ShortPageHasNoMore(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	key := f.chat(t, 7)

	page, err := f.adapter.Messages(context.Background(), "chat", f.alice.Address(), key, "")
	require.NoError(err)
	require.Len(page.Messages, 7)
	require.False(page.HasMore)
	require.Equal([]string{"m0", "m1", "m2", "m3", "m4", "m5", "m6"}, texts(page))
	require.True(page.Messages[0].From.Equal(f.bob.Address()))
}

func TestMessages_Paginates(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	key := f.chat(t, 25)

	first, err := f.adapter.Messages(ctx, "chat", f.alice.Address(), key, "")
	require.NoError(err)
	require.Len(first.Messages, 20)
	require.True(first.HasMore)
	require.Equal("m5", string(first.Messages[0].Plaintext))
	require.Equal("m24", string(first.Messages[19].Plaintext))
	require.Equal(first.Messages[0].Link, first.Cursor)

	second, err := f.adapter.Messages(ctx, "chat", f.alice.Address(), key, first.Cursor)
	require.NoError(err)
	require.Equal([]string{"m0", "m1", "m2", "m3", "m4"}, texts(second))
	require.False(second.HasMore)
}

func TestMessages_PublishesOnlyNewestPage(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	key := f.chat(t, 22)

	first, err := f.adapter.Messages(ctx, "chat", f.alice.Address(), key, "")
	require.NoError(err)
	require.Len(f.pub.texts(), 20)

	_, err = f.adapter.Messages(ctx, "chat", f.alice.Address(), key, first.Cursor)
	require.NoError(err)
	require.Len(f.pub.texts(), 20)

	_, err = f.net.Post("chat", f.bob.Address(), domain.GroupKindText, []byte("late"))
	require.NoError(err)
	_, err = f.adapter.Messages(ctx, "chat", f.alice.Address(), key, "")
	require.NoError(err)
	got := f.pub.texts()
	require.Len(got, 21)
	require.Equal("late", got[20])
}

func TestMessages_DecryptsOnce(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	key := f.chat(t, 4)

	for i := 0; i < 3; i++ {
		page, err := f.adapter.Messages(ctx, "chat", f.alice.Address(), key, "")
		require.NoError(err)
		require.Len(page.Messages, 4)
	}
	require.Equal(4, f.net.Decrypts())
	require.Equal(3, f.net.HistoryCalls())
}

func TestMessages_NetworkFailureYieldsEmptyPage(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	key := f.chat(t, 2)

	page, err := f.adapter.Messages(context.Background(), "missing", f.alice.Address(), key, "")
	require.NoError(err)
	require.Empty(page.Messages)
	require.False(page.HasMore)

	_, err = f.adapter.Messages(context.Background(), "chat", f.alice.Address(), nil, "")
	require.ErrorIs(err, ErrNoKey)
}

func TestUserIsCached(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	_, _, err := f.net.CreateUser(ctx, f.bob)
	require.NoError(err)
	require.NoError(f.net.SetName(f.bob.Address(), "bob"))

	u, err := f.adapter.User(ctx, f.bob.Address())
	require.NoError(err)
	require.Equal("bob", u.Name)

	require.NoError(f.net.SetName(f.bob.Address(), "robert"))
	u, err = f.adapter.User(ctx, f.bob.Address())
	require.NoError(err)
	require.Equal("bob", u.Name)
}

func TestKeyRequiresRegistration(t *testing.T) {
	f := newFixture(t)
	_, err := f.adapter.Key(f.alice.Address())
	require.ErrorIs(t, err, ErrNoKey)
}

func TestRender(t *testing.T) {
	require := require.New(t)
	bob := wallet(t, 2).Address()

	require.Equal(TextBody{Text: "hi"}, Render(domain.DecryptedGroupMessage{Kind: domain.GroupKindText, Plaintext: []byte("hi")}))
	require.Equal(MediaBody{URL: "https://x/y.gif"}, Render(domain.DecryptedGroupMessage{Kind: domain.GroupKindMedia, Plaintext: []byte("https://x/y.gif")}))

	meta := Render(domain.DecryptedGroupMessage{Kind: domain.GroupKindMeta, Plaintext: MetaPayload("add", bob)})
	require.IsType(MetaBody{}, meta)
	require.Equal("add", meta.(MetaBody).Action)
	require.Len(meta.(MetaBody).Affected, 1)
	require.True(meta.(MetaBody).Affected[0].Equal(bob))

	bad := Render(domain.DecryptedGroupMessage{Kind: domain.GroupKindMeta, Plaintext: []byte("{")})
	require.Equal(UnsupportedBody{Kind: domain.GroupKindMeta, Text: UnsupportedText}, bad)

	unknown := Render(domain.DecryptedGroupMessage{Kind: "Reaction"})
	require.Equal(UnsupportedBody{Kind: "Reaction", Text: UnsupportedText}, unknown)
}
