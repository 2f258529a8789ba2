package memdm

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
)

// Op names a network operation that can be made to fail.
type Op string

const (
	OpCreate   Op = "create"
	OpList     Op = "list"
	OpConsent  Op = "consent"
	OpMessages Op = "messages"
	OpSend     Op = "send"
	OpAllow    Op = "allow"
	OpDeny     Op = "deny"
	OpSign     Op = "sign"
)

const identityChallenge = "dualinbox inbox identity: "

var (
	ErrWrongKey          = errors.New("memdm: database key does not match inbox")
	ErrPeerNotRegistered = errors.New("memdm: peer has no inbox on the network")
	ErrNotFound          = errors.New("memdm: not found")
	ErrClosed            = errors.New("memdm: client closed")
	ErrNoSignature       = errors.New("memdm: wallet returned an empty signature")
)

type inbox struct {
	addr     domain.Address
	dbKey    []byte
	identity ed25519.PrivateKey
	proof    []byte
	consent  map[string]domain.ConsentState
	subs     map[*subscription]struct{}
}

type thread struct {
	topic    string
	members  [2]domain.Address
	created  time.Time
	messages []domain.DecodedMessage
}

func (t *thread) peerOf(addr domain.Address) domain.Address {
	if t.members[0].Equal(addr) {
		return t.members[1]
	}
	return t.members[0]
}

type subscription struct {
	ch chan domain.DecodedMessage
}

// Network is a shared in-memory DM network.
type Network struct {
	mu      sync.Mutex
	inboxes map[string]*inbox
	threads map[string]*thread
	faults  map[Op]error
	now     func() time.Time

	created int
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		inboxes: make(map[string]*inbox),
		threads: make(map[string]*thread),
		faults:  make(map[Op]error),
		now:     time.Now,
	}
}

// SetClock replaces the network's time source.
func (n *Network) SetClock(now func() time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.now = now
}

// SetFault makes op fail with err until cleared with a nil err.
func (n *Network) SetFault(op Op, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.faults, op)
		return
	}
	n.faults[op] = err
}

// Created returns how many inbox identities have been created.
func (n *Network) Created() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.created
}

// fault must be called with mu held.
func (n *Network) fault(op Op) error {
	return n.faults[op]
}

// NewClient creates the inbox for signer's address if needed and returns a
// client bound to it. Restoring an existing inbox never asks the signer to
// sign.
func (n *Network) NewClient(ctx context.Context, signer domain.Signer, dbKey []byte) (domain.DMClient, error) {
	if len(dbKey) != crypto.KeySize {
		return nil, fmt.Errorf("memdm: database key must be %d bytes", crypto.KeySize)
	}
	addr := signer.Address()
	if _, err := domain.ParseAddress(addr.String()); err != nil {
		return nil, err
	}

	n.mu.Lock()
	ib, ok := n.inboxes[addr.Key()]
	if ok {
		n.mu.Unlock()
		if !bytes.Equal(ib.dbKey, dbKey) {
			return nil, ErrWrongKey
		}
		return &Client{net: n, inbox: ib}, nil
	}
	if err := n.fault(OpCreate); err != nil {
		n.mu.Unlock()
		return nil, err
	}
	n.mu.Unlock()

	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignMessage(ctx, append([]byte(identityChallenge), pub...))
	if err != nil {
		return nil, fmt.Errorf("memdm: sign identity: %w", err)
	}
	if len(sig) == 0 {
		return nil, ErrNoSignature
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if ib, ok := n.inboxes[addr.Key()]; ok {
		if !bytes.Equal(ib.dbKey, dbKey) {
			return nil, ErrWrongKey
		}
		return &Client{net: n, inbox: ib}, nil
	}
	ib = &inbox{
		addr:     addr.Checksum(),
		dbKey:    bytes.Clone(dbKey),
		identity: priv,
		proof:    append(bytes.Clone(pub), sig...),
		consent:  make(map[string]domain.ConsentState),
		subs:     make(map[*subscription]struct{}),
	}
	n.inboxes[addr.Key()] = ib
	n.created++
	return &Client{net: n, inbox: ib}, nil
}

func threadTopic(a, b domain.Address) string {
	keys := []string{a.Key(), b.Key()}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(keys[0] + "/" + keys[1]))
	return "/dm/1/" + hex.EncodeToString(sum[:16])
}

// Deliver appends a message from sender on the thread between sender and
// peer, creating the thread if needed. It is the raw network path used by
// clients and by tests that inject inbound traffic.
func (n *Network) Deliver(sender, peer domain.Address, content domain.Content) (domain.DecodedMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, err := n.threadLocked(sender, peer)
	if err != nil {
		return domain.DecodedMessage{}, err
	}
	return n.appendLocked(t, sender, content), nil
}

// threadLocked must be called with mu held.
func (n *Network) threadLocked(a, b domain.Address) (*thread, error) {
	for _, addr := range []domain.Address{a, b} {
		if _, ok := n.inboxes[addr.Key()]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrPeerNotRegistered, addr)
		}
	}
	topic := threadTopic(a, b)
	t, ok := n.threads[topic]
	if !ok {
		t = &thread{
			topic:   topic,
			members: [2]domain.Address{n.inboxes[a.Key()].addr, n.inboxes[b.Key()].addr},
			created: n.now(),
		}
		n.threads[topic] = t
	}
	return t, nil
}

// appendLocked must be called with mu held.
func (n *Network) appendLocked(t *thread, sender domain.Address, content domain.Content) domain.DecodedMessage {
	msg := domain.DecodedMessage{
		ID:      uuid.NewString(),
		Topic:   t.topic,
		Sender:  sender.Checksum(),
		Sent:    n.now(),
		Content: content,
	}
	t.messages = append(t.messages, msg)
	for _, member := range t.members {
		for sub := range n.inboxes[member.Key()].subs {
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
	return msg
}
