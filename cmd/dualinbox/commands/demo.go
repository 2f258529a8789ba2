package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"dualinbox/internal/app"
	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
	"dualinbox/internal/indexserver"
	"dualinbox/internal/log"
	"dualinbox/internal/protocol/memdm"
	"dualinbox/internal/protocol/memgroup"
	"dualinbox/internal/resolve"
	"dualinbox/internal/services/group"
	"dualinbox/internal/services/identity"
	"dualinbox/internal/services/notify"
)

const demoChat = "demo-chat"

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run two local identities through every service",
		Long: `Demo starts an in-process index server and in-process DM and group
networks, creates two throwaway wallets, sets both up, and then exchanges
text, an attachment and group chat messages between them. Nothing is kept
after it exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newDemoWallet() (*identity.Wallet, error) {
	seed, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(seed)
	return identity.NewWallet(seed)
}

func runDemo(ctx context.Context, out io.Writer) error {
	dir, err := os.MkdirTemp("", "dualinbox-demo")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	demoCfg := *cfg
	store := *cfg.Store
	store.Path = filepath.Join(dir, "dualinbox.db")
	demoCfg.Store = &store

	// Index server on a loopback port.
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return err
	}
	srv, err := indexserver.New(backend, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	hs := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(out, "index server: %v\n", err)
		}
	}()
	defer hs.Close()
	idx := *cfg.Index
	idx.URL = "http://" + ln.Addr().String()
	demoCfg.Index = &idx

	dm := memdm.NewNetwork()
	groups := memgroup.NewNetwork()
	names := resolve.NewStatic()
	w, err := app.NewWire(app.Config{Config: &demoCfg, DM: dm, Group: groups, Resolver: names})
	if err != nil {
		return err
	}
	defer w.Close()

	alice, err := newDemoWallet()
	if err != nil {
		return err
	}
	bob, err := newDemoWallet()
	if err != nil {
		return err
	}
	names.Set("alice.eth", alice.Address())
	names.Set("bob.eth", bob.Address())
	fmt.Fprintf(out, "alice: %s\nbob:   %s\n\n", alice.Address(), bob.Address())

	// Setup: alice through the state machine, bob directly on the networks.
	state, err := w.Setup.Run(ctx, alice.Address(), alice)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "setup alice: %s\n", state)
	if _, err := dm.NewClient(ctx, bob, make([]byte, crypto.KeySize)); err != nil {
		return err
	}
	if _, _, err := groups.CreateUser(ctx, bob); err != nil {
		return err
	}

	// Incoming messages reach the hub through the listener.
	received := make(chan notify.MessageEvent, 4)
	sub := w.Hub.Subscribe("demo", func(ev notify.Event) {
		if m, ok := ev.(notify.MessageEvent); ok {
			received <- m
		}
	})
	defer sub.Close()
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = w.Listener.Run(lctx, alice.Address()) }()

	if _, err := w.Sync.Send(ctx, alice.Address(), bob.Address(), "gm bob"); err != nil {
		return err
	}
	if _, err := dm.Deliver(bob.Address(), alice.Address(), domain.TextContent{Text: "gm alice"}); err != nil {
		return err
	}
	select {
	case ev := <-received:
		fmt.Fprintf(out, "received from %s: %s\n", w.Names.ReverseResolve(ctx, ev.Message.Sender), preview(ev.Message))
	case <-time.After(2 * time.Second):
		fmt.Fprintln(out, "received nothing")
	}

	// Attachment through blob storage.
	sess, err := w.Sessions.Require(alice.Address())
	if err != nil {
		return err
	}
	conv, err := sess.Client().NewConversation(ctx, bob.Address())
	if err != nil {
		return err
	}
	sent, err := w.Attachments.Send(ctx, conv, domain.Attachment{
		Filename: "hello.txt",
		MimeType: "text/plain",
		Data:     []byte("an encrypted attachment"),
	}, "dualinbox.demo")
	if err != nil {
		return err
	}
	file, err := w.Attachments.Load(ctx, sent)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "attachment round trip: %s (%d bytes)\n\n", file.Filename, len(file.Data))

	// Timeline with consent and registered topics.
	timeline, err := w.Sync.ListConversations(ctx, alice.Address())
	if err != nil {
		return err
	}
	for _, m := range timeline {
		fmt.Fprintf(out, "%-10s %-8s %s\n", w.Names.ReverseResolve(ctx, m.Peer), m.ConsentState, m.Preview)
	}
	if prefs := w.Preferences.ForAddress(ctx, alice.Address()); prefs != nil {
		fmt.Fprintf(out, "index: %d accepted, %d blocked topics\n\n", len(prefs.AcceptedTopics), len(prefs.BlockedTopics))
	}

	// Group history.
	if err := groups.CreateChat(demoChat, alice.Address(), bob.Address()); err != nil {
		return err
	}
	posts := []struct {
		kind domain.GroupMessageKind
		body []byte
	}{
		{domain.GroupKindMeta, group.MetaPayload("add", alice.Address())},
		{domain.GroupKindText, []byte("welcome alice")},
		{domain.GroupKindMedia, []byte("https://media.example/wave.gif")},
		{"Reaction", []byte("+1")},
	}
	for _, p := range posts {
		if _, err := groups.Post(demoChat, bob.Address(), p.kind, p.body); err != nil {
			return err
		}
	}
	key, err := w.Group.Key(alice.Address())
	if err != nil {
		return err
	}
	page, err := w.Group.Messages(ctx, demoChat, alice.Address(), key, "")
	if err != nil {
		return err
	}
	for _, m := range page.Messages {
		fmt.Fprintf(out, "[%s] %s\n", w.Names.ReverseResolve(ctx, m.From), renderGroup(m))
	}
	fmt.Fprintf(out, "more history: %v\n", page.HasMore)
	return nil
}

func preview(m domain.DecodedMessage) string {
	if t, ok := m.Content.(domain.TextContent); ok {
		return t.Text
	}
	return "Attachment"
}

func renderGroup(m domain.DecryptedGroupMessage) string {
	switch b := group.Render(m).(type) {
	case group.TextBody:
		return b.Text
	case group.MediaBody:
		return "media " + b.URL
	case group.MetaBody:
		return fmt.Sprintf("%s %d member(s)", b.Action, len(b.Affected))
	case group.UnsupportedBody:
		return b.Text
	default:
		return group.UnsupportedText
	}
}
