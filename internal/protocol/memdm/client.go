package memdm

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
)

// Client is one inbox's view of the network.
type Client struct {
	net    *Network
	inbox  *inbox
	closed atomic.Bool
}

// Address returns the inbox address.
func (c *Client) Address() domain.Address { return c.inbox.addr }

func (c *Client) check(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}
	if op == "" {
		return nil
	}
	return c.net.fault(op)
}

// Conversations returns every thread the inbox participates in.
func (c *Client) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if err := c.check(ctx, OpList); err != nil {
		return nil, err
	}
	var out []domain.Conversation
	for _, t := range c.net.threads {
		if t.members[0].Equal(c.inbox.addr) || t.members[1].Equal(c.inbox.addr) {
			out = append(out, &conversation{client: c, thread: t})
		}
	}
	slices.SortFunc(out, func(a, b domain.Conversation) int {
		return a.CreatedAt().Compare(b.CreatedAt())
	})
	return out, nil
}

// NewConversation opens, or creates, the thread with peer.
func (c *Client) NewConversation(ctx context.Context, peer domain.Address) (domain.Conversation, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if err := c.check(ctx, ""); err != nil {
		return nil, err
	}
	t, err := c.net.threadLocked(c.inbox.addr, peer)
	if err != nil {
		return nil, err
	}
	return &conversation{client: c, thread: t}, nil
}

// StreamAllMessages delivers every message on the inbox's threads until
// ctx is done. Slow consumers miss messages.
func (c *Client) StreamAllMessages(ctx context.Context) (<-chan domain.DecodedMessage, error) {
	c.net.mu.Lock()
	if err := c.check(ctx, ""); err != nil {
		c.net.mu.Unlock()
		return nil, err
	}
	sub := &subscription{ch: make(chan domain.DecodedMessage, 64)}
	c.inbox.subs[sub] = struct{}{}
	c.net.mu.Unlock()

	out := make(chan domain.DecodedMessage)
	go func() {
		defer close(out)
		defer func() {
			c.net.mu.Lock()
			delete(c.inbox.subs, sub)
			c.net.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-sub.ch:
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) setConsent(ctx context.Context, op Op, peers []domain.Address, state domain.ConsentState) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if err := c.check(ctx, op); err != nil {
		return err
	}
	for _, p := range peers {
		c.inbox.consent[p.Key()] = state
	}
	return nil
}

// Allow marks peers as allowed in the native consent list.
func (c *Client) Allow(ctx context.Context, peers []domain.Address) error {
	return c.setConsent(ctx, OpAllow, peers, domain.ConsentAllowed)
}

// Deny marks peers as denied in the native consent list.
func (c *Client) Deny(ctx context.Context, peers []domain.Address) error {
	return c.setConsent(ctx, OpDeny, peers, domain.ConsentDenied)
}

// PublicKeyProof returns the identity key followed by the wallet signature
// over it.
func (c *Client) PublicKeyProof(ctx context.Context) ([]byte, error) {
	if err := c.check(ctx, ""); err != nil {
		return nil, err
	}
	return slices.Clone(c.inbox.proof), nil
}

// Sign signs msg with the inbox identity key.
func (c *Client) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	c.net.mu.Lock()
	err := c.check(ctx, OpSign)
	c.net.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return crypto.SignEd25519(c.inbox.identity, msg), nil
}

// Close detaches the client. The inbox itself persists on the network.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

type conversation struct {
	client *Client
	thread *thread
}

func (cv *conversation) Topic() string { return cv.thread.topic }

func (cv *conversation) PeerAddress() domain.Address {
	return cv.thread.peerOf(cv.client.inbox.addr)
}

func (cv *conversation) CreatedAt() time.Time { return cv.thread.created }

func (cv *conversation) ConsentState(ctx context.Context) (domain.ConsentState, error) {
	n := cv.client.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := cv.client.check(ctx, OpConsent); err != nil {
		return domain.ConsentUnknown, err
	}
	if s, ok := cv.client.inbox.consent[cv.PeerAddress().Key()]; ok {
		return s, nil
	}
	return domain.ConsentUnknown, nil
}

func (cv *conversation) SetConsentState(ctx context.Context, state domain.ConsentState) error {
	op := OpAllow
	if state == domain.ConsentDenied {
		op = OpDeny
	}
	return cv.client.setConsent(ctx, op, []domain.Address{cv.PeerAddress()}, state)
}

func (cv *conversation) Messages(ctx context.Context, opts domain.ListOptions) ([]domain.DecodedMessage, error) {
	n := cv.client.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := cv.client.check(ctx, OpMessages); err != nil {
		return nil, err
	}
	msgs := slices.Clone(cv.thread.messages)
	if opts.Descending {
		slices.Reverse(msgs)
	}
	if opts.Limit > 0 && len(msgs) > opts.Limit {
		msgs = msgs[:opts.Limit]
	}
	return msgs, nil
}

func (cv *conversation) MessageByID(ctx context.Context, id string) (domain.DecodedMessage, error) {
	n := cv.client.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := cv.client.check(ctx, OpMessages); err != nil {
		return domain.DecodedMessage{}, err
	}
	for _, m := range cv.thread.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.DecodedMessage{}, ErrNotFound
}

func (cv *conversation) Send(ctx context.Context, content domain.Content) (string, error) {
	n := cv.client.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := cv.client.check(ctx, OpSend); err != nil {
		return "", err
	}
	return n.appendLocked(cv.thread, cv.client.inbox.addr, content).ID, nil
}

var (
	_ domain.DMClientFactory = (*Network)(nil)
	_ domain.DMClient        = (*Client)(nil)
	_ domain.Conversation    = (*conversation)(nil)
)
