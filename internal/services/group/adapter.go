package group

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/services/notify"
)

const (
	component = "group"

	// DefaultPageSize is the number of messages requested per page.
	DefaultPageSize = 20
)

// ErrNoKey is returned when an address has not registered with the group
// protocol.
var ErrNoKey = errors.New("group: no group key for address")

// Publisher receives newly decrypted messages of a chat's newest page.
type Publisher interface {
	Publish(ev notify.Event)
}

// Adapter is the group protocol client of one process.
type Adapter struct {
	log       *logging.Logger
	reporter  *observe.Reporter
	client    domain.GroupClient
	cache     domain.GroupCache
	keys      domain.KeyStore
	pageSize  int
	publisher Publisher
}

// New returns an Adapter. publisher may be nil.
func New(
	client domain.GroupClient,
	cache domain.GroupCache,
	keys domain.KeyStore,
	pageSize int,
	publisher Publisher,
	backend *log.Backend,
	reporter *observe.Reporter,
) *Adapter {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Adapter{
		log:       backend.GetLogger(component),
		reporter:  reporter,
		client:    client,
		cache:     cache,
		keys:      keys,
		pageSize:  pageSize,
		publisher: publisher,
	}
}

// PageSize returns the number of messages requested per page.
func (a *Adapter) PageSize() int { return a.pageSize }

// Key returns the stored group key of addr.
func (a *Adapter) Key(addr domain.Address) ([]byte, error) {
	key, ok, err := a.keys.LoadKey(domain.KeyGroup, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoKey, addr)
	}
	return key, nil
}

// Messages returns one page of chatID history, oldest first. An empty
// threadHash starts at the newest message. Only first decrypts on that
// newest page are published; older pages are backfill. Network failures
// are reported and yield an empty page.
func (a *Adapter) Messages(ctx context.Context, chatID string, addr domain.Address, key []byte, threadHash string) (domain.GroupPage, error) {
	if len(key) == 0 {
		return domain.GroupPage{}, fmt.Errorf("%w: %s", ErrNoKey, addr)
	}
	account := addr.CAIP10()

	hash := threadHash
	live := threadHash == ""
	if live {
		h, err := a.client.ConversationHash(ctx, chatID, account)
		if err != nil {
			a.reporter.Report(component, fmt.Errorf("thread hash of %s: %w", chatID, err))
			return domain.GroupPage{}, nil
		}
		hash = h
	}
	if hash == "" {
		return domain.GroupPage{}, nil
	}

	raw, err := a.client.History(ctx, hash, a.pageSize, account)
	if err != nil {
		a.reporter.Report(component, fmt.Errorf("history of %s: %w", chatID, err))
		return domain.GroupPage{}, nil
	}

	page := domain.GroupPage{HasMore: len(raw) == a.pageSize}
	if len(raw) > 0 {
		page.Cursor = raw[len(raw)-1].Link
	}
	for _, m := range raw {
		dm, ok := a.decrypt(ctx, m, account, key, live)
		if ok {
			page.Messages = append(page.Messages, dm)
		}
	}
	slices.Reverse(page.Messages)
	return page, nil
}

func (a *Adapter) decrypt(ctx context.Context, m domain.EncryptedGroupMessage, account string, key []byte, publish bool) (domain.DecryptedGroupMessage, bool) {
	if cached, ok, err := a.cache.LoadGroupMessage(m.CID); err != nil {
		a.reporter.Report(component, err)
	} else if ok {
		return cached, true
	}

	pt, err := a.client.Decrypt(ctx, m, account, key)
	if err != nil {
		a.reporter.Report(component, fmt.Errorf("decrypt %s: %w", m.CID, err))
		return domain.DecryptedGroupMessage{}, false
	}
	from, err := domain.ParseAddress(m.From)
	if err != nil {
		from = domain.Address(domain.StripCAIP10(m.From))
	}
	dm := domain.DecryptedGroupMessage{
		CID:       m.CID,
		Link:      m.Link,
		ChatID:    m.ChatID,
		From:      from,
		Kind:      m.Kind,
		Plaintext: pt,
		Timestamp: m.Timestamp,
	}
	if err := a.cache.SaveGroupMessage(dm); err != nil {
		a.reporter.Report(component, err)
	}
	if publish && a.publisher != nil {
		a.publisher.Publish(notify.ChatEvent{ChatID: m.ChatID, Message: dm})
	}
	return dm, true
}

// User returns the group profile of addr, cached after the first lookup.
func (a *Adapter) User(ctx context.Context, addr domain.Address) (domain.GroupUser, error) {
	if u, ok, err := a.cache.LoadGroupUser(addr); err != nil {
		a.reporter.Report(component, err)
	} else if ok {
		return u, nil
	}
	u, err := a.client.User(ctx, addr.CAIP10())
	if err != nil {
		return domain.GroupUser{}, fmt.Errorf("group: user %s: %w", addr, err)
	}
	if err := a.cache.SaveGroupUser(u); err != nil {
		a.reporter.Report(component, err)
	}
	return u, nil
}

// Register creates the group identity of signer and stores its key.
func (a *Adapter) Register(ctx context.Context, signer domain.Signer) (domain.GroupUser, error) {
	u, key, err := a.client.CreateUser(ctx, signer)
	if err != nil {
		return domain.GroupUser{}, fmt.Errorf("group: create user: %w", err)
	}
	if err := a.keys.SaveKey(domain.KeyGroup, signer.Address(), key); err != nil {
		return domain.GroupUser{}, fmt.Errorf("group: save key: %w", err)
	}
	if err := a.cache.SaveGroupUser(u); err != nil {
		a.reporter.Report(component, err)
	}
	a.log.Infof("Registered group user %s", u.DID)
	return u, nil
}

// Subscriptions returns the channels addr follows.
func (a *Adapter) Subscriptions(ctx context.Context, addr domain.Address) ([]domain.Subscription, error) {
	subs, err := a.client.Subscriptions(ctx, addr.CAIP10())
	if err != nil {
		return nil, fmt.Errorf("group: subscriptions of %s: %w", addr, err)
	}
	return subs, nil
}
