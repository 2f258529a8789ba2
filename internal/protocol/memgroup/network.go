package memgroup

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"dualinbox/internal/domain"
)

const userKeyChallenge = "dualinbox group key for "

var (
	ErrNotFound  = errors.New("memgroup: not found")
	ErrNotMember = errors.New("memgroup: account is not a chat member")
	ErrDecrypt   = errors.New("memgroup: cannot decrypt message")
)

type user struct {
	profile domain.GroupUser
	key     [32]byte
	subs    []domain.Subscription
}

type chat struct {
	id      string
	key     [32]byte
	members map[string]domain.Address
	head    string
}

// Network is a shared in-memory group network.
type Network struct {
	mu       sync.Mutex
	users    map[string]*user
	chats    map[string]*chat
	messages map[string]domain.EncryptedGroupMessage
	now      func() time.Time

	decrypts int
	history  int
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		users:    make(map[string]*user),
		chats:    make(map[string]*chat),
		messages: make(map[string]domain.EncryptedGroupMessage),
		now:      time.Now,
	}
}

// Decrypts returns how many times Decrypt has been called.
func (n *Network) Decrypts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.decrypts
}

// HistoryCalls returns how many times History has been called.
func (n *Network) HistoryCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.history
}

func accountKey(account string) (string, error) {
	addr, err := domain.ParseAddress(account)
	if err != nil {
		return "", err
	}
	return addr.Key(), nil
}

// CreateUser registers signer's account, deriving its key from a wallet
// signature. Registering again returns the same key.
func (n *Network) CreateUser(ctx context.Context, signer domain.Signer) (domain.GroupUser, []byte, error) {
	addr := signer.Address().Checksum()
	sig, err := signer.SignMessage(ctx, []byte(userKeyChallenge+addr.String()))
	if err != nil {
		return domain.GroupUser{}, nil, fmt.Errorf("memgroup: sign user key: %w", err)
	}
	var key [32]byte
	if _, err := io.ReadFull(hkdf.New(sha256.New, sig, []byte(addr.Key()), []byte("memgroup user key")), key[:]); err != nil {
		return domain.GroupUser{}, nil, err
	}
	pub := sha256.Sum256(key[:])

	n.mu.Lock()
	defer n.mu.Unlock()
	u, ok := n.users[addr.Key()]
	if !ok {
		u = &user{profile: domain.GroupUser{
			Account:   addr,
			DID:       addr.CAIP10(),
			PublicKey: pub[:],
		}}
		n.users[addr.Key()] = u
	}
	u.key = key
	return u.profile, key[:], nil
}

// User returns the profile of account.
func (n *Network) User(ctx context.Context, account string) (domain.GroupUser, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupUser{}, err
	}
	k, err := accountKey(account)
	if err != nil {
		return domain.GroupUser{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	u, ok := n.users[k]
	if !ok {
		return domain.GroupUser{}, ErrNotFound
	}
	return u.profile, nil
}

// SetName sets the display name of a registered account.
func (n *Network) SetName(addr domain.Address, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	u, ok := n.users[addr.Key()]
	if !ok {
		return ErrNotFound
	}
	u.profile.Name = name
	return nil
}

// Subscribe makes account follow channel.
func (n *Network) Subscribe(addr, channel domain.Address, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	u, ok := n.users[addr.Key()]
	if !ok {
		return ErrNotFound
	}
	u.subs = append(u.subs, domain.Subscription{Channel: channel.Checksum(), Name: name})
	return nil
}

// Subscriptions returns the channels account follows.
func (n *Network) Subscriptions(ctx context.Context, account string) ([]domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := accountKey(account)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	u, ok := n.users[k]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]domain.Subscription(nil), u.subs...), nil
}

// CreateChat opens a group chat among registered members.
func (n *Network) CreateChat(chatID string, members ...domain.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := &chat{id: chatID, members: make(map[string]domain.Address)}
	if _, err := rand.Read(c.key[:]); err != nil {
		return err
	}
	for _, m := range members {
		if _, ok := n.users[m.Key()]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, m)
		}
		c.members[m.Key()] = m.Checksum()
	}
	n.chats[chatID] = c
	return nil
}

// Post appends a message from a chat member and returns it.
func (n *Network) Post(chatID string, from domain.Address, kind domain.GroupMessageKind, plaintext []byte) (domain.EncryptedGroupMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.chats[chatID]
	if !ok {
		return domain.EncryptedGroupMessage{}, ErrNotFound
	}
	if _, ok := c.members[from.Key()]; !ok {
		return domain.EncryptedGroupMessage{}, ErrNotMember
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return domain.EncryptedGroupMessage{}, err
	}
	msg := domain.EncryptedGroupMessage{
		Link:       c.head,
		ChatID:     chatID,
		From:       from.CAIP10(),
		Kind:       kind,
		Secrets:    make(map[string][]byte, len(c.members)),
		Nonce:      nonce[:],
		Ciphertext: secretbox.Seal(nil, plaintext, &nonce, &c.key),
		Timestamp:  n.now().UnixMilli(),
	}
	for k := range c.members {
		var wrapNonce [24]byte
		if _, err := rand.Read(wrapNonce[:]); err != nil {
			return domain.EncryptedGroupMessage{}, err
		}
		uk := n.users[k].key
		msg.Secrets[k] = secretbox.Seal(wrapNonce[:], c.key[:], &wrapNonce, &uk)
	}
	h := sha256.New()
	h.Write([]byte(msg.Link))
	h.Write(msg.Nonce)
	h.Write(msg.Ciphertext)
	msg.CID = "bafy" + hex.EncodeToString(h.Sum(nil))[:32]

	n.messages[msg.CID] = msg
	c.head = msg.CID
	return msg, nil
}

// ConversationHash returns the newest message link of chatID.
func (n *Network) ConversationHash(ctx context.Context, chatID, account string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := accountKey(account)
	if err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.chats[chatID]
	if !ok {
		return "", ErrNotFound
	}
	if _, ok := c.members[k]; !ok {
		return "", ErrNotMember
	}
	return c.head, nil
}

// History walks back from threadHash, newest first.
func (n *Network) History(ctx context.Context, threadHash string, limit int, account string) ([]domain.EncryptedGroupMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := accountKey(account); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history++
	var out []domain.EncryptedGroupMessage
	for link := threadHash; link != "" && len(out) < limit; {
		m, ok := n.messages[link]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, link)
		}
		out = append(out, m)
		link = m.Link
	}
	return out, nil
}

// Decrypt unwraps the chat key with the account key and opens the message.
func (n *Network) Decrypt(ctx context.Context, msg domain.EncryptedGroupMessage, account string, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := accountKey(account)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.decrypts++
	n.mu.Unlock()

	wrapped, ok := msg.Secrets[k]
	if !ok || len(wrapped) < 24 || len(key) != 32 || len(msg.Nonce) != 24 {
		return nil, ErrDecrypt
	}
	var uk [32]byte
	copy(uk[:], key)
	var wrapNonce [24]byte
	copy(wrapNonce[:], wrapped[:24])
	chatKey, ok := secretbox.Open(nil, wrapped[24:], &wrapNonce, &uk)
	if !ok || len(chatKey) != 32 {
		return nil, ErrDecrypt
	}
	var ck [32]byte
	copy(ck[:], chatKey)
	var nonce [24]byte
	copy(nonce[:], msg.Nonce)
	pt, ok := secretbox.Open(nil, msg.Ciphertext, &nonce, &ck)
	if !ok {
		return nil, ErrDecrypt
	}
	return pt, nil
}

var _ domain.GroupClient = (*Network)(nil)
