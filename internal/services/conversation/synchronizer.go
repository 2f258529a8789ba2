package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/services/session"
)

const (
	component = "conversation"

	// DefaultPreviewConcurrency bounds in-flight preview and consent loads.
	DefaultPreviewConcurrency = 10
	// DefaultSelfMarker prefixes previews of the inbox's own messages.
	DefaultSelfMarker = "You:"
)

// ErrEmptyMessage is returned when sending blank text.
var ErrEmptyMessage = errors.New("conversation: empty message")

// Sessions yields the live session of an address.
type Sessions interface {
	Require(addr domain.Address) (*session.Session, error)
}

// ConsentResolver resolves one conversation's consent state.
type ConsentResolver interface {
	Resolve(ctx context.Context, conv domain.Conversation, prefs *domain.ConsentPreferences) (domain.ConsentState, error)
}

// Registrar registers topics with the backend index.
type Registrar interface {
	RegisterTopics(ctx context.Context, addr domain.Address, topics []domain.TopicMetadata) (int, error)
}

// PreferenceLoader returns the legacy consent preferences for an inbox,
// or nil.
type PreferenceLoader func(ctx context.Context, owner domain.Address) *domain.ConsentPreferences

// Options tunes a Synchronizer.
type Options struct {
	PreviewConcurrency int
	SelfMarker         string
	Preferences        PreferenceLoader
}

// Synchronizer builds and maintains one timeline per inbox.
type Synchronizer struct {
	log       *logging.Logger
	reporter  *observe.Reporter
	sessions  Sessions
	consent   ConsentResolver
	registrar Registrar
	opts      Options

	mu        sync.Mutex
	timelines map[string]Timeline
}

// New returns a Synchronizer.
func New(
	sessions Sessions,
	consent ConsentResolver,
	registrar Registrar,
	opts Options,
	backend *log.Backend,
	reporter *observe.Reporter,
) *Synchronizer {
	if opts.PreviewConcurrency <= 0 {
		opts.PreviewConcurrency = DefaultPreviewConcurrency
	}
	if opts.SelfMarker == "" {
		opts.SelfMarker = DefaultSelfMarker
	}
	return &Synchronizer{
		log:       backend.GetLogger(component),
		reporter:  reporter,
		sessions:  sessions,
		consent:   consent,
		registrar: registrar,
		opts:      opts,
		timelines: make(map[string]Timeline),
	}
}

func (s *Synchronizer) previewer(addr domain.Address) Previewer {
	return Previewer{Self: addr, SelfMarker: s.opts.SelfMarker}
}

// Timeline returns the current timeline of addr.
func (s *Synchronizer) Timeline(addr domain.Address) Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timelines[addr.Key()]
}

func (s *Synchronizer) swap(addr domain.Address, fn func(Timeline) Timeline) Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.timelines[addr.Key()])
	s.timelines[addr.Key()] = next
	return next
}

// ListConversations refreshes the conversation list of addr and returns the
// rebuilt timeline. Per-conversation failures degrade that entry and are
// reported; a failed list refresh returns the previous timeline.
func (s *Synchronizer) ListConversations(ctx context.Context, addr domain.Address) (Timeline, error) {
	sess, err := s.sessions.Require(addr)
	if err != nil {
		return nil, err
	}
	if err := sess.Sync(ctx); err != nil {
		s.reporter.Report(component, fmt.Errorf("list conversations of %s: %w", sess.Address(), err))
		return s.Timeline(addr), nil
	}
	convs, err := sess.Conversations(ctx)
	if err != nil {
		s.reporter.Report(component, err)
		return s.Timeline(addr), nil
	}

	var prefs *domain.ConsentPreferences
	if s.opts.Preferences != nil {
		prefs = s.opts.Preferences(ctx, sess.Address())
	}

	p := s.previewer(sess.Address())
	metas := make(Timeline, len(convs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PreviewConcurrency)
	for i, conv := range convs {
		g.Go(func() error {
			metas[i] = s.load(gctx, conv, prefs, p)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Entries applied while the list was loading are newer than metas.
	next := s.swap(addr, func(cur Timeline) Timeline {
		return append(metas, cur...).Normalize()
	})
	s.log.Debugf("Listed %d conversations for %s", len(next), sess.Address())
	return next, nil
}

func (s *Synchronizer) load(ctx context.Context, conv domain.Conversation, prefs *domain.ConsentPreferences, p Previewer) Meta {
	state, err := s.consent.Resolve(ctx, conv, prefs)
	if err != nil {
		s.reporter.Report(component, err)
		state = domain.ConsentUnknown
	}
	m := newMeta(conv, conv.Topic(), conv.PeerAddress(), state)
	m.TimestampMillis = conv.CreatedAt().UnixMilli()

	msgs, err := conv.Messages(ctx, domain.ListOptions{Limit: 1, Descending: true})
	if err != nil {
		s.reporter.Report(component, fmt.Errorf("preview %s: %w", conv.Topic(), err))
		return m
	}
	if len(msgs) > 0 {
		m.Preview = p.Preview(msgs[0])
		m.TimestampMillis = msgs[0].SentMillis()
	}
	return m
}

// ApplyMessage folds msg into the timeline of addr and returns the result.
// A message on a topic not yet in the timeline triggers topic registration
// for its peer; registration failures are reported only.
func (s *Synchronizer) ApplyMessage(ctx context.Context, addr domain.Address, msg domain.DecodedMessage) (Timeline, error) {
	sess, err := s.sessions.Require(addr)
	if err != nil {
		return nil, err
	}
	p := s.previewer(sess.Address())

	var conv domain.Conversation
	if s.Timeline(addr).Index(msg.Topic) < 0 {
		conv = s.findConversation(ctx, sess, msg.Topic)
	}

	var isNew bool
	next := s.swap(addr, func(t Timeline) Timeline {
		var out Timeline
		out, isNew = t.WithMessage(msg, p, conv)
		return out
	})
	if isNew {
		s.registerNew(ctx, sess.Address(), next[next.Index(msg.Topic)])
	}
	return next, nil
}

func (s *Synchronizer) findConversation(ctx context.Context, sess *session.Session, topic string) domain.Conversation {
	lookup := func() domain.Conversation {
		convs, err := sess.Conversations(ctx)
		if err != nil {
			return nil
		}
		for _, c := range convs {
			if strings.EqualFold(c.Topic(), topic) {
				return c
			}
		}
		return nil
	}
	if c := lookup(); c != nil {
		return c
	}
	if err := sess.Sync(ctx); err != nil {
		s.reporter.Report(component, err)
		return nil
	}
	return lookup()
}

func (s *Synchronizer) registerNew(ctx context.Context, owner domain.Address, m Meta) {
	if m.Peer.IsZero() {
		return
	}
	t := domain.TopicMetadata{
		Topic:       m.Topic,
		PeerAddress: m.Peer,
		Accept:      m.ConsentState == domain.ConsentAllowed,
	}
	if _, err := s.registrar.RegisterTopics(ctx, owner, []domain.TopicMetadata{t}); err != nil {
		s.reporter.Report(component, fmt.Errorf("register %s: %w", m.Topic, err))
	}
}

// Send sends text to peer, opening the conversation if needed, and folds
// the authoritative copy of the sent message into the timeline.
func (s *Synchronizer) Send(ctx context.Context, addr, peer domain.Address, text string) (domain.DecodedMessage, error) {
	if strings.TrimSpace(text) == "" {
		return domain.DecodedMessage{}, ErrEmptyMessage
	}
	peer, err := domain.ParseAddress(peer.String())
	if err != nil {
		return domain.DecodedMessage{}, err
	}
	sess, err := s.sessions.Require(addr)
	if err != nil {
		return domain.DecodedMessage{}, err
	}
	conv, err := sess.Client().NewConversation(ctx, peer)
	if err != nil {
		return domain.DecodedMessage{}, fmt.Errorf("conversation: open with %s: %w", peer, err)
	}
	sess.Remember(conv)

	id, err := conv.Send(ctx, domain.TextContent{Text: text})
	if err != nil {
		return domain.DecodedMessage{}, fmt.Errorf("conversation: send: %w", err)
	}
	msg, err := conv.MessageByID(ctx, id)
	if err != nil {
		return domain.DecodedMessage{}, fmt.Errorf("conversation: fetch sent message: %w", err)
	}
	if _, err := s.ApplyMessage(ctx, addr, msg); err != nil {
		return domain.DecodedMessage{}, err
	}
	return msg, nil
}
